// File: reactor/multiworker_test.go
// Package reactor multi-worker lifecycle tests.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build linux

package reactor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/transport"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func startMulti(t *testing.T, r *MultiWorkerIOReactor) chan error {
	t.Helper()
	errCh := make(chan error, 1)
	go func() {
		errCh <- r.Execute(context.Background())
	}()
	require.True(t, awaitCond(time.Second, func() bool {
		return r.Status() >= api.StatusActive
	}))
	return errCh
}

func TestMultiWorkerHappyPath(t *testing.T) {
	const sessions = 100
	const payloadSize = 1024

	cfg := DefaultConfig()
	cfg.IOThreadCount = 2
	cfg.SelectInterval = 50 * time.Millisecond

	counters := &echoCounters{}
	r, err := NewMultiWorkerIOReactor(echoFactory(counters, payloadSize), cfg, nil,
		WithMetrics(prometheus.NewRegistry()))
	require.NoError(t, err)
	errCh := startMulti(t, r)

	payload := make([]byte, payloadSize)
	for i := range payload {
		payload[i] = byte(i * 7)
	}

	locals := make([]*transport.Channel, 0, sessions)
	for i := 0; i < sessions; i++ {
		local, remote, err := transport.Socketpair()
		require.NoError(t, err)
		locals = append(locals, local)
		require.NoError(t, r.EnqueuePendingSession(remote, nil))
		_, err = local.Write(payload)
		require.NoError(t, err)
	}

	for i, local := range locals {
		got, err := readFull(local, payloadSize, time.Now().Add(5*time.Second))
		require.NoError(t, err, "session %d", i)
		require.Equal(t, payload, got, "session %d", i)
	}
	require.True(t, awaitCond(5*time.Second, func() bool {
		return counters.disconnected.Load() == sessions
	}), "disconnected=%d", counters.disconnected.Load())

	require.Equal(t, int64(sessions), counters.connected.Load())
	require.False(t, counters.overlapped.Load(), "overlapping callbacks on one session")

	start := time.Now()
	require.NoError(t, r.ShutdownWait(time.Second))
	require.Less(t, time.Since(start), time.Second)
	require.NoError(t, <-errCh)
	require.Equal(t, api.StatusShutDown, r.Status())
	require.Empty(t, r.AuditLog())

	for _, local := range locals {
		local.Close()
	}
}

func TestMultiWorkerGracefulShutdownDeliversInFlightData(t *testing.T) {
	const payloadSize = 10 * 1024

	cfg := DefaultConfig()
	cfg.IOThreadCount = 1
	cfg.SelectInterval = 20 * time.Millisecond

	counters := &echoCounters{}
	payload := make([]byte, payloadSize)
	factory := api.EventHandlerFactoryFunc(func(_ api.Session) api.EventHandler {
		return &funcHandler{
			onConnected: func(s api.Session) {
				counters.connected.Add(1)
				_, _ = s.Channel().Write(payload)
				_ = s.Close()
			},
			onDisconnected: func(_ api.Session) {
				counters.disconnected.Add(1)
			},
		}
	})

	r, err := NewMultiWorkerIOReactor(factory, cfg, nil)
	require.NoError(t, err)
	errCh := startMulti(t, r)

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()
	require.NoError(t, r.EnqueuePendingSession(remote, nil))

	require.NoError(t, r.ShutdownWait(2*time.Second))

	got, err := readFull(local, payloadSize, time.Now().Add(2*time.Second))
	require.NoError(t, err)
	require.Len(t, got, payloadSize)

	require.NoError(t, <-errCh)
	require.Equal(t, api.StatusShutDown, r.Status())
	require.Equal(t, int64(1), counters.disconnected.Load())
	require.Empty(t, r.AuditLog())
}

func TestMultiWorkerHardShutdownOfStuckSession(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IOThreadCount = 1
	cfg.SelectInterval = 20 * time.Millisecond
	cfg.ShutdownGracePeriod = 200 * time.Millisecond

	counters := &echoCounters{}
	// Never reads, never closes.
	r, err := NewMultiWorkerIOReactor(echoFactory(counters, 1<<30), cfg, nil)
	require.NoError(t, err)
	errCh := startMulti(t, r)

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()
	require.NoError(t, r.EnqueuePendingSession(remote, nil))
	require.True(t, awaitCond(time.Second, func() bool {
		return counters.connected.Load() == 1
	}))

	start := time.Now()
	require.NoError(t, r.ShutdownWait(100*time.Millisecond))
	require.Less(t, time.Since(start), time.Second)

	require.NoError(t, <-errCh)
	require.Equal(t, api.StatusShutDown, r.Status())

	// The session's channel was forcibly closed: the peer sees EOF.
	buf := make([]byte, 16)
	require.True(t, awaitCond(time.Second, func() bool {
		_, err := local.Read(buf)
		return errors.Is(err, io.EOF)
	}))
}

func TestMultiWorkerWorkerDeathEscalates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IOThreadCount = 1
	cfg.SelectInterval = 20 * time.Millisecond

	factory := api.EventHandlerFactoryFunc(func(_ api.Session) api.EventHandler {
		panic("injected handler factory failure")
	})
	r, err := NewMultiWorkerIOReactor(factory, cfg, nil)
	require.NoError(t, err)
	errCh := startMulti(t, r)

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()
	req := NewSessionRequest("pair", nil, nil)
	require.NoError(t, r.EnqueuePendingSession(remote, req))

	require.NoError(t, req.WaitFor(2*time.Second))
	require.Error(t, req.Err())

	execErr := <-errCh
	require.Error(t, execErr)
	var re *api.IOReactorError
	require.ErrorAs(t, execErr, &re)

	require.Equal(t, api.StatusShutDown, r.Status())
	audit := r.AuditLog()
	require.NotEmpty(t, audit, "audit log must record the root cause")
	require.Contains(t, audit[0].Err.Error(), "handler factory failure")
}

func TestMultiWorkerExceptionHandlerSuppressesFatal(t *testing.T) {
	cfg := DefaultConfig()
	cfg.IOThreadCount = 1
	cfg.SelectInterval = 20 * time.Millisecond

	factory := api.EventHandlerFactoryFunc(func(_ api.Session) api.EventHandler {
		panic("transient factory failure")
	})
	r, err := NewMultiWorkerIOReactor(factory, cfg, nil,
		WithExceptionHandler(api.ExceptionHandlerFunc(func(err error) bool { return true })))
	require.NoError(t, err)
	errCh := startMulti(t, r)

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()
	req := NewSessionRequest("pair", nil, nil)
	require.NoError(t, r.EnqueuePendingSession(remote, req))

	require.NoError(t, req.WaitFor(2*time.Second))
	require.Error(t, req.Err())

	// The worker survived the suppressed failure.
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, api.StatusActive, r.Status())

	require.NoError(t, r.ShutdownWait(2*time.Second))
	require.NoError(t, <-errCh)
}

func TestMultiWorkerShutdownIsIdempotent(t *testing.T) {
	counters := &echoCounters{}
	cfg := DefaultConfig()
	cfg.IOThreadCount = 2
	cfg.SelectInterval = 20 * time.Millisecond

	r, err := NewMultiWorkerIOReactor(echoFactory(counters, 1024), cfg, nil)
	require.NoError(t, err)
	errCh := startMulti(t, r)

	require.NoError(t, r.ShutdownWait(2*time.Second))
	require.NoError(t, <-errCh)
	require.Equal(t, api.StatusShutDown, r.Status())

	// Second and third calls are no-ops.
	require.NoError(t, r.Shutdown())
	require.NoError(t, r.ShutdownWait(0))
	require.Equal(t, api.StatusShutDown, r.Status())
}

func TestMultiWorkerShutdownBeforeExecute(t *testing.T) {
	counters := &echoCounters{}
	r, err := NewMultiWorkerIOReactor(echoFactory(counters, 1024), DefaultConfig(), nil)
	require.NoError(t, err)

	require.NoError(t, r.Shutdown())
	require.Equal(t, api.StatusShutDown, r.Status())

	// Execute after shutdown returns immediately without error.
	require.NoError(t, r.Execute(context.Background()))
	require.Equal(t, api.StatusShutDown, r.Status())
}

func TestMultiWorkerEnqueueAfterShutdown(t *testing.T) {
	counters := &echoCounters{}
	r, err := NewMultiWorkerIOReactor(echoFactory(counters, 1024), DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, r.Shutdown())

	local, remote, err := transport.Socketpair()
	require.NoError(t, err)
	defer local.Close()

	req := NewSessionRequest("pair", nil, nil)
	require.ErrorIs(t, r.EnqueuePendingSession(remote, req), api.ErrShutdown)
	require.True(t, req.IsCompleted())
	require.True(t, remote.IsClosed())
}

func TestMultiWorkerStatusIsMonotonic(t *testing.T) {
	counters := &echoCounters{}
	cfg := DefaultConfig()
	cfg.IOThreadCount = 1
	cfg.SelectInterval = 10 * time.Millisecond

	r, err := NewMultiWorkerIOReactor(echoFactory(counters, 1024), cfg, nil)
	require.NoError(t, err)

	var mu sync.Mutex
	var observed []api.IOReactorStatus
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				// Final sample, taken after Execute has returned.
				mu.Lock()
				observed = append(observed, r.Status())
				mu.Unlock()
				return
			default:
			}
			mu.Lock()
			observed = append(observed, r.Status())
			mu.Unlock()
			time.Sleep(time.Millisecond)
		}
	}()

	errCh := startMulti(t, r)
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, r.ShutdownWait(2*time.Second))
	require.NoError(t, <-errCh)
	close(stop)
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(observed); i++ {
		require.GreaterOrEqual(t, observed[i], observed[i-1],
			"status regressed: %s -> %s", observed[i-1], observed[i])
	}
	require.Equal(t, api.StatusShutDown, observed[len(observed)-1])
}

func TestRoundRobinDistribution(t *testing.T) {
	const workers = 4
	const total = 400

	var c atomicCounter
	got := make(map[int]int)
	for i := 0; i < total; i++ {
		got[c.NextIndex(workers)]++
	}
	for i := 0; i < workers; i++ {
		require.Equal(t, total/workers, got[i], "worker %d", i)
	}
}

func TestRoundRobinToleratesWraparound(t *testing.T) {
	var c atomicCounter
	c.v.Store(-10)
	for i := 0; i < 100; i++ {
		idx := c.NextIndex(3)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, 3)
	}
}

func TestMultiWorkerConfigValidation(t *testing.T) {
	counters := &echoCounters{}
	for _, cfg := range []*Config{
		{IOThreadCount: 0, SelectInterval: time.Second},
		{IOThreadCount: 1, SelectInterval: 0},
		{IOThreadCount: 1, SelectInterval: time.Second, ShutdownGracePeriod: -1},
	} {
		_, err := NewMultiWorkerIOReactor(echoFactory(counters, 1), cfg, nil)
		require.Error(t, err, fmt.Sprintf("%+v", cfg))
	}
}
