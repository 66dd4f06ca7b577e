// File: reactor/base.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Single-worker reactor loop. Owns one selector and a set of sessions;
// runs select, dispatch, timeout validation, closed-session reaping, and
// pending-session intake on one goroutine. New channels arrive through the
// MPSC pending queue followed by a selector wakeup.

package reactor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/poll"
	"github.com/momentics/hioload-reactor/transport"
)

// selectBatch bounds the number of readiness events taken per loop tick.
const selectBatch = 256

type pendingSession struct {
	channel *transport.Channel
	request *SessionRequest
}

type baseIOReactor struct {
	cfg     *Config
	factory api.EventHandlerFactory
	sel     poll.Selector
	slab    *sessionSlab
	pending *mpscQueue
	closedQ *mpscQueue

	status   atomicStatus
	done     chan struct{}
	doneOnce onceCloser

	exceptionHandler api.ExceptionHandler
	log              zerolog.Logger
	metrics          *reactorMetrics

	events []poll.Event
}

func newBaseIOReactor(factory api.EventHandlerFactory, cfg *Config, log zerolog.Logger, metrics *reactorMetrics) (*baseIOReactor, error) {
	sel, err := poll.Open()
	if err != nil {
		return nil, api.NewIOReactorError(err, "failure opening selector")
	}
	return &baseIOReactor{
		cfg:     cfg,
		factory: factory,
		sel:     sel,
		slab:    newSessionSlab(),
		pending: newMPSCQueue(),
		closedQ: newMPSCQueue(),
		done:    make(chan struct{}),
		log:     log,
		metrics: metrics,
		events:  make([]poll.Event, selectBatch),
	}, nil
}

func (r *baseIOReactor) Status() api.IOReactorStatus {
	return r.status.Load()
}

// EnqueuePendingSession hands a connected channel to this worker. Safe from
// any goroutine; the worker observes it on its next loop iteration.
func (r *baseIOReactor) EnqueuePendingSession(ch *transport.Channel, req *SessionRequest) error {
	r.pending.Push(pendingSession{channel: ch, request: req})
	if r.status.Load() >= api.StatusShuttingDown {
		// The loop may already be past its intake step; sweep here so the
		// request still gets its one terminal signal.
		r.cancelPendingSessions()
		r.sel.Wakeup()
		return api.ErrShutdown
	}
	r.sel.Wakeup()
	return nil
}

// GracefulShutdown asks the loop to close sessions politely and exit once
// they have drained. Idempotent, safe from any goroutine.
func (r *baseIOReactor) GracefulShutdown() {
	if !r.status.Advance(api.StatusActive, api.StatusShuttingDown) {
		return
	}
	r.log.Debug().Msg("dispatcher graceful shutdown requested")
	r.sel.Wakeup()
}

// HardShutdown cancels pending sessions, force-closes active channels, and
// reaps the closed queue. Idempotent, safe from any goroutine.
func (r *baseIOReactor) HardShutdown() {
	r.hardShutdown()
}

// AwaitShutdown blocks until the reactor reaches SHUT_DOWN or timeout
// elapses. A zero timeout waits indefinitely.
func (r *baseIOReactor) AwaitShutdown(timeout time.Duration) {
	if timeout == 0 {
		<-r.done
		return
	}
	select {
	case <-r.done:
	case <-time.After(timeout):
	}
}

// Execute runs the select loop on the calling goroutine. Only
// *api.IOReactorError and *api.InterruptedIOError escape; the terminal step
// always performs a hard shutdown so channels are released even on error.
func (r *baseIOReactor) Execute(ctx context.Context) error {
	if !r.status.Advance(api.StatusInactive, api.StatusActive) {
		return api.NewIOReactorError(nil, "illegal reactor state %s", r.Status())
	}
	defer func() {
		r.hardShutdown()
		r.doneOnce.Close(r.done)
	}()

	for {
		n, err := r.sel.Select(r.events, r.cfg.SelectInterval)
		if err != nil {
			if errors.Is(err, api.ErrClosedSelector) {
				// Selector closed underneath the loop: terminate quietly.
				return nil
			}
			if ctx.Err() != nil {
				return &api.InterruptedIOError{Cause: ctx.Err()}
			}
			return api.NewIOReactorError(err, "unexpected selector failure")
		}
		if ctx.Err() != nil {
			return &api.InterruptedIOError{Cause: ctx.Err()}
		}

		st := r.Status()
		if st == api.StatusShutDown {
			return nil
		}
		if st == api.StatusShuttingDown {
			r.closeActiveSessions()
			r.cancelPendingSessions()
		}

		if n > 0 {
			now := time.Now()
			for i := 0; i < n; i++ {
				if err := r.processEvent(r.events[i], now); err != nil {
					return err
				}
			}
			r.metrics.eventsDispatched(n)
		}

		if err := r.validate(time.Now()); err != nil {
			return err
		}

		if err := r.processClosedSessions(); err != nil {
			return err
		}

		if r.Status() == api.StatusActive {
			if err := r.processPendingSessions(); err != nil {
				return err
			}
		}

		if r.Status() > api.StatusActive && r.slab.Len() == 0 {
			return nil
		}
	}
}

// processEvent dispatches one readiness notification. Read before write, so
// end-of-stream is discovered before output work.
func (r *baseIOReactor) processEvent(ev poll.Event, now time.Time) error {
	s := r.slab.Get(ev.Token)
	if s == nil {
		// Stale token: the slot was recycled after the event was queued.
		return nil
	}
	interest := s.EventMask()
	if ev.Ready&api.OpRead != 0 && interest&api.OpRead != 0 {
		s.resetLastRead(now)
		if err := r.dispatch(s, func(h api.EventHandler) { h.InputReady(s) }); err != nil {
			return err
		}
	}
	if ev.Ready&api.OpWrite != 0 && interest&api.OpWrite != 0 {
		s.resetLastWrite(now)
		if err := r.dispatch(s, func(h api.EventHandler) { h.OutputReady(s) }); err != nil {
			return err
		}
	}
	return nil
}

// dispatch invokes one handler callback, converting panics into errors and
// consulting the exception handler before declaring them fatal.
func (r *baseIOReactor) dispatch(s *ioSession, fn func(api.EventHandler)) error {
	h := s.Handler()
	if h == nil {
		return nil
	}
	err := func() (err error) {
		defer func() {
			if p := recover(); p != nil {
				err = fmt.Errorf("handler failure: %v", p)
			}
		}()
		fn(h)
		return nil
	}()
	if err == nil {
		return nil
	}
	if r.exceptionHandler != nil && r.exceptionHandler.Handle(err) {
		r.log.Warn().Err(err).Uint64("session", s.ID()).Msg("handler failure suppressed by exception handler")
		s.Shutdown()
		return nil
	}
	return api.NewIOReactorError(err, "fatal failure in I/O dispatch")
}

// validate runs the per-tick timeout check over all registered sessions.
func (r *baseIOReactor) validate(now time.Time) error {
	for _, s := range r.slab.Snapshot() {
		timeout := s.SocketTimeout()
		if timeout <= 0 {
			continue
		}
		if s.LastAccessTime().Add(timeout).Before(now) {
			r.metrics.sessionTimedOut()
			if err := r.dispatch(s, func(h api.EventHandler) { h.Timeout(s) }); err != nil {
				return err
			}
		}
	}
	return nil
}

// processClosedSessions reaps released sessions and delivers their single
// Disconnected notification.
func (r *baseIOReactor) processClosedSessions() error {
	for {
		v, ok := r.closedQ.Pop()
		if !ok {
			return nil
		}
		s := r.slab.Take(v.(uint64))
		if s == nil {
			continue
		}
		r.metrics.sessionClosed()
		if err := r.dispatch(s, func(h api.EventHandler) { h.Disconnected(s) }); err != nil {
			return err
		}
	}
}

// processPendingSessions drains the intake queue, registering each new
// channel for read readiness and wiring up its session and handler.
func (r *baseIOReactor) processPendingSessions() error {
	for {
		v, ok := r.pending.Pop()
		if !ok {
			return nil
		}
		p := v.(pendingSession)
		ch := p.channel

		if ch.IsClosed() {
			if p.request != nil {
				p.request.Failed(api.ErrClosedChannel)
			}
			// A closed channel here means the originator gave up; stop
			// draining this tick like any other registration race.
			return nil
		}
		if err := ch.SetNonblocking(); err != nil {
			if p.request != nil {
				p.request.Failed(err)
			}
			_ = ch.Close()
			return nil
		}

		s := newIOSession(ch, r.sel, r.closedQ)
		token := r.slab.Add(s)
		s.token = token
		if err := r.sel.Register(ch.Fd(), api.OpRead, token); err != nil {
			r.slab.Take(token)
			if errors.Is(err, api.ErrClosedChannel) {
				if p.request != nil {
					p.request.Failed(err)
				}
				_ = ch.Close()
				return nil
			}
			return api.NewIOReactorError(err, "failure registering channel with the selector")
		}
		s.mask.Store(uint32(api.OpRead))

		h, err := r.createHandler(s)
		if err != nil {
			// The session never became visible to a handler; unwind the
			// registration instead of surfacing it on the closed queue.
			r.slab.Take(token)
			_ = r.sel.Unregister(ch.Fd())
			_ = ch.Close()
			if p.request != nil {
				p.request.Failed(err)
			}
			if r.exceptionHandler != nil && r.exceptionHandler.Handle(err) {
				r.log.Warn().Err(err).Msg("handler factory failure suppressed by exception handler")
				continue
			}
			return api.NewIOReactorError(err, "failure creating session handler")
		}
		s.SetHandler(h)
		s.SetSocketTimeout(r.cfg.SoTimeout)
		r.metrics.sessionCreated()

		if p.request != nil {
			if att := p.request.Attachment(); att != nil {
				s.SetAttribute(api.AttachmentKey, att)
			}
			p.request.Completed(s)
		}
		if err := r.dispatch(s, func(h api.EventHandler) { h.Connected(s) }); err != nil {
			return err
		}
	}
}

func (r *baseIOReactor) createHandler(s *ioSession) (h api.EventHandler, err error) {
	defer func() {
		if p := recover(); p != nil {
			h = nil
			err = fmt.Errorf("handler factory failure: %v", p)
		}
	}()
	return r.factory.CreateHandler(s), nil
}

// closeActiveSessions asks every registered session to close politely.
func (r *baseIOReactor) closeActiveSessions() {
	for _, s := range r.slab.Snapshot() {
		_ = s.Close()
	}
}

// cancelPendingSessions cancels queued requests and closes their channels.
func (r *baseIOReactor) cancelPendingSessions() {
	for {
		v, ok := r.pending.Pop()
		if !ok {
			return
		}
		p := v.(pendingSession)
		if p.request != nil {
			p.request.Cancel()
		}
		_ = p.channel.Close()
	}
}

// hardShutdown is the terminal step: cancel intake, force-close every
// channel, release the selector, and reap whatever surfaced.
func (r *baseIOReactor) hardShutdown() {
	if !r.status.AdvanceTo(api.StatusShutDown) {
		return
	}
	r.log.Debug().Msg("dispatcher hard shutdown")
	r.cancelPendingSessions()
	for _, s := range r.slab.Snapshot() {
		s.Shutdown()
	}
	_ = r.sel.Close()
	r.reapClosedSessions()
	r.doneOnce.Close(r.done)
}

// reapClosedSessions delivers remaining Disconnected notifications without
// the fatal-error escalation of the in-loop path.
func (r *baseIOReactor) reapClosedSessions() {
	for {
		v, ok := r.closedQ.Pop()
		if !ok {
			return
		}
		s := r.slab.Take(v.(uint64))
		if s == nil {
			continue
		}
		r.metrics.sessionClosed()
		_ = r.dispatch(s, func(h api.EventHandler) { h.Disconnected(s) })
	}
}
