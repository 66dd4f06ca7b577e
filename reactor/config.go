// File: reactor/config.go
// Package reactor holds reactor configuration.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"fmt"
	"runtime"
	"time"

	"github.com/momentics/hioload-reactor/transport"
)

// Config holds all reactor-side configuration parameters.
type Config struct {
	IOThreadCount       int           // number of worker reactors
	SelectInterval      time.Duration // select loop polling period
	ShutdownGracePeriod time.Duration // wait before force-terminating workers
	SoTimeout           time.Duration // per-session idle timeout, 0 = none
	ConnectTimeout      time.Duration // outbound connect deadline, 0 = none
	TCPNoDelay          bool
	SoKeepAlive         bool
	SoLinger            int // seconds; negative leaves the system default
	SndBufSize          int // bytes; zero leaves the system default
	RcvBufSize          int // bytes; zero leaves the system default
}

// DefaultConfig returns sensible defaults: one worker per CPU core, one
// second select interval, half a second of shutdown grace.
func DefaultConfig() *Config {
	return &Config{
		IOThreadCount:       runtime.NumCPU(),
		SelectInterval:      time.Second,
		ShutdownGracePeriod: 500 * time.Millisecond,
		SoTimeout:           0,
		ConnectTimeout:      0,
		SoLinger:            -1,
	}
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if c.IOThreadCount < 1 {
		return fmt.Errorf("config: IOThreadCount must be >= 1, got %d", c.IOThreadCount)
	}
	if c.SelectInterval <= 0 {
		return fmt.Errorf("config: SelectInterval must be positive, got %v", c.SelectInterval)
	}
	if c.ShutdownGracePeriod < 0 {
		return fmt.Errorf("config: ShutdownGracePeriod must be >= 0, got %v", c.ShutdownGracePeriod)
	}
	if c.SoTimeout < 0 {
		return fmt.Errorf("config: SoTimeout must be >= 0, got %v", c.SoTimeout)
	}
	if c.SndBufSize < 0 || c.RcvBufSize < 0 {
		return fmt.Errorf("config: buffer sizes must be >= 0")
	}
	return nil
}

func (c *Config) socketConfig() transport.SocketConfig {
	return transport.SocketConfig{
		TCPNoDelay:  c.TCPNoDelay,
		SoKeepAlive: c.SoKeepAlive,
		SoLinger:    c.SoLinger,
		SndBufSize:  c.SndBufSize,
		RcvBufSize:  c.RcvBufSize,
	}
}
