// File: reactor/base_test.go
// Package reactor single-worker loop tests.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux

package reactor

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/transport"
)

func testConfig() *Config {
	cfg := DefaultConfig()
	cfg.IOThreadCount = 1
	cfg.SelectInterval = 20 * time.Millisecond
	cfg.ShutdownGracePeriod = 500 * time.Millisecond
	return cfg
}

func startBase(t *testing.T, factory api.EventHandlerFactory, cfg *Config) (*baseIOReactor, chan error) {
	t.Helper()
	r, err := newBaseIOReactor(factory, cfg, zerolog.Nop(), nil)
	require.NoError(t, err)
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Execute(context.Background())
	}()
	require.True(t, awaitCond(time.Second, func() bool {
		return r.Status() == api.StatusActive
	}))
	return r, errCh
}

func TestBaseReactorEcho(t *testing.T) {
	counters := &echoCounters{}
	r, errCh := startBase(t, echoFactory(counters, 1024), testConfig())

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()

	require.NoError(t, r.EnqueuePendingSession(remote, nil))

	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = byte(i)
	}
	_, err = local.Write(payload)
	require.NoError(t, err)

	got, err := readFull(local, 1024, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	require.Equal(t, payload, got)

	require.True(t, awaitCond(2*time.Second, func() bool {
		return counters.disconnected.Load() == 1
	}), "session close was not reaped")

	r.GracefulShutdown()
	r.AwaitShutdown(2 * time.Second)
	require.Equal(t, api.StatusShutDown, r.Status())
	require.NoError(t, <-errCh)
}

func TestBaseReactorGracefulShutdownClosesSessions(t *testing.T) {
	counters := &echoCounters{}
	r, errCh := startBase(t, echoFactory(counters, 1<<20), testConfig())

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()
	require.NoError(t, r.EnqueuePendingSession(remote, nil))

	require.True(t, awaitCond(time.Second, func() bool {
		return counters.connected.Load() == 1
	}))

	r.GracefulShutdown()
	r.AwaitShutdown(2 * time.Second)
	require.Equal(t, api.StatusShutDown, r.Status())
	require.Equal(t, int64(1), counters.disconnected.Load())
	require.NoError(t, <-errCh)
}

func TestBaseReactorSessionTimeout(t *testing.T) {
	cfg := testConfig()
	cfg.SoTimeout = 200 * time.Millisecond
	counters := &echoCounters{}
	r, errCh := startBase(t, echoFactory(counters, 1<<20), cfg)

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()
	require.NoError(t, r.EnqueuePendingSession(remote, nil))

	// No traffic: the idle timeout must fire within a few select ticks.
	require.True(t, awaitCond(time.Second, func() bool {
		return counters.timeouts.Load() >= 1
	}), "timeout hook did not fire")

	r.HardShutdown()
	r.AwaitShutdown(2 * time.Second)
	require.NoError(t, <-errCh)
}

func TestBaseReactorClosedChannelFailsRequest(t *testing.T) {
	counters := &echoCounters{}
	r, errCh := startBase(t, echoFactory(counters, 1024), testConfig())

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()

	require.NoError(t, remote.Close())
	req := NewSessionRequest("test", nil, nil)
	_ = r.EnqueuePendingSession(remote, req)

	require.NoError(t, req.WaitFor(2*time.Second))
	require.ErrorIs(t, req.Err(), api.ErrClosedChannel)
	require.Nil(t, req.Session())

	r.HardShutdown()
	r.AwaitShutdown(2 * time.Second)
	require.NoError(t, <-errCh)
}

func TestBaseReactorHardShutdownFromOutside(t *testing.T) {
	counters := &echoCounters{}
	r, errCh := startBase(t, echoFactory(counters, 1<<20), testConfig())

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()
	require.NoError(t, r.EnqueuePendingSession(remote, nil))
	require.True(t, awaitCond(time.Second, func() bool {
		return counters.connected.Load() == 1
	}))

	r.HardShutdown()
	r.AwaitShutdown(2 * time.Second)
	require.Equal(t, api.StatusShutDown, r.Status())
	require.NoError(t, <-errCh)
	require.Equal(t, int64(1), counters.disconnected.Load())
}
