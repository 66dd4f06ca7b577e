// File: reactor/handlers_test.go
// Package reactor test support.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"errors"
	"io"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/transport"
)

// funcHandler adapts optional callbacks to api.EventHandler.
type funcHandler struct {
	onConnected    func(api.Session)
	onInput        func(api.Session)
	onOutput       func(api.Session)
	onTimeout      func(api.Session)
	onException    func(api.Session, error)
	onDisconnected func(api.Session)
}

func (h *funcHandler) Connected(s api.Session) {
	if h.onConnected != nil {
		h.onConnected(s)
	}
}

func (h *funcHandler) InputReady(s api.Session) {
	if h.onInput != nil {
		h.onInput(s)
	}
}

func (h *funcHandler) OutputReady(s api.Session) {
	if h.onOutput != nil {
		h.onOutput(s)
	}
}

func (h *funcHandler) Timeout(s api.Session) {
	if h.onTimeout != nil {
		h.onTimeout(s)
	}
}

func (h *funcHandler) Exception(s api.Session, err error) {
	if h.onException != nil {
		h.onException(s, err)
	}
}

func (h *funcHandler) Disconnected(s api.Session) {
	if h.onDisconnected != nil {
		h.onDisconnected(s)
	}
}

// echoCounters aggregates lifecycle observations across sessions.
type echoCounters struct {
	connected    atomic.Int64
	disconnected atomic.Int64
	timeouts     atomic.Int64
	echoedBytes  atomic.Int64
	overlapped   atomic.Bool // set when two callbacks for one session overlap
}

// echoFactory builds handlers that echo want bytes back and then close the
// session. Each handler asserts callback serialization for its session.
func echoFactory(c *echoCounters, want int) api.EventHandlerFactory {
	return api.EventHandlerFactoryFunc(func(_ api.Session) api.EventHandler {
		var got int
		var inFlight atomic.Int32
		enter := func() {
			if inFlight.Add(1) != 1 {
				c.overlapped.Store(true)
			}
		}
		leave := func() { inFlight.Add(-1) }
		return &funcHandler{
			onConnected: func(_ api.Session) {
				enter()
				defer leave()
				c.connected.Add(1)
			},
			onInput: func(s api.Session) {
				enter()
				defer leave()
				buf := make([]byte, 4096)
				for {
					n, err := s.Channel().Read(buf)
					if n > 0 {
						got += n
						if _, werr := s.Channel().Write(buf[:n]); werr == nil {
							c.echoedBytes.Add(int64(n))
						}
					}
					if err != nil || n == 0 {
						break
					}
				}
				if got >= want {
					_ = s.Close()
				}
			},
			onTimeout: func(_ api.Session) {
				enter()
				defer leave()
				c.timeouts.Add(1)
			},
			onDisconnected: func(_ api.Session) {
				enter()
				defer leave()
				c.disconnected.Add(1)
			},
		}
	})
}

// readFull drains n bytes from a non-blocking channel, polling until the
// deadline.
func readFull(ch *transport.Channel, n int, deadline time.Time) ([]byte, error) {
	out := make([]byte, 0, n)
	buf := make([]byte, 4096)
	for len(out) < n {
		if time.Now().After(deadline) {
			return out, errors.New("read deadline exceeded")
		}
		r, err := ch.Read(buf)
		if r > 0 {
			out = append(out, buf[:r]...)
			continue
		}
		if err == nil || errors.Is(err, transport.ErrAgain) {
			time.Sleep(time.Millisecond)
			continue
		}
		if errors.Is(err, io.EOF) {
			return out, io.EOF
		}
		return out, err
	}
	return out, nil
}

// awaitCond polls fn until it returns true or the timeout elapses.
func awaitCond(timeout time.Duration, fn func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return fn()
}
