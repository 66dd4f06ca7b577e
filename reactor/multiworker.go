// File: reactor/multiworker.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multi-worker reactor. The calling goroutine drives the main selector
// (accepting or connecting channels through the LoopHooks); N worker
// goroutines each drive a single-worker reactor. Newly created channels are
// distributed round-robin across the workers. A worker that terminates
// abnormally takes the whole reactor down, with the root cause preserved in
// the audit log.

package reactor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/poll"
	"github.com/momentics/hioload-reactor/transport"
)

// defaultShutdownWait bounds Shutdown's wait for SHUT_DOWN.
const defaultShutdownWait = 2 * time.Second

// Event is one readiness notification delivered to LoopHooks.
type Event = poll.Event

// LoopHooks is the specialization point of the main selector loop:
// listeners accept, connectors finish connects. Both methods run on the
// goroutine driving Execute.
type LoopHooks interface {
	// ProcessEvents handles one tick of main-selector readiness events.
	// It is invoked on every tick while the reactor is ACTIVE, possibly
	// with no events.
	ProcessEvents(ready []Event) error

	// CancelRequests aborts whatever the specialization has in flight; it
	// runs once at the start of the shutdown sequence.
	CancelRequests() error
}

// NoopHooks is a LoopHooks that accepts nothing and connects nothing. Used
// when all channels are fed in externally via EnqueuePendingSession.
type NoopHooks struct{}

func (NoopHooks) ProcessEvents(ready []Event) error { return nil }
func (NoopHooks) CancelRequests() error             { return nil }

// ThreadFactory spawns a named worker goroutine. Callers may substitute a
// factory that applies naming, pinning, or pooling policy.
type ThreadFactory func(name string, run func())

func defaultThreadFactory(_ string, run func()) {
	go run()
}

type worker struct {
	dispatcher *baseIOReactor
	done       chan struct{}
	started    atomic.Bool

	mu  sync.Mutex
	err error
}

func (w *worker) exec(ctx context.Context, metrics *reactorMetrics) {
	metrics.workerStarted()
	defer func() {
		metrics.workerStopped()
		close(w.done)
	}()
	if err := w.dispatcher.Execute(ctx); err != nil {
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}
}

// fatal returns the error that terminated this worker, if any.
func (w *worker) fatal() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// MultiWorkerIOReactor distributes sessions across a pool of worker
// reactors and owns the top-level shutdown state machine.
type MultiWorkerIOReactor struct {
	cfg     *Config
	factory api.EventHandlerFactory
	hooks   LoopHooks
	sel     poll.Selector

	dispatchers []*baseIOReactor
	workers     []*worker

	threadFactory ThreadFactory
	audit         *auditLog
	counter       atomicCounter

	status   atomicStatus
	done     chan struct{}
	doneOnce onceCloser

	chanMu       sync.Mutex
	mainChannels map[uint64]*transport.Channel

	exceptionHandler api.ExceptionHandler
	log              zerolog.Logger
	metrics          *reactorMetrics

	events []poll.Event
}

var _ api.IOReactor = (*MultiWorkerIOReactor)(nil)

// NewMultiWorkerIOReactor builds a reactor with the given handler factory,
// configuration, and main-loop specialization. A nil cfg uses defaults; a
// nil hooks behaves as NoopHooks.
func NewMultiWorkerIOReactor(factory api.EventHandlerFactory, cfg *Config, hooks LoopHooks, opts ...Option) (*MultiWorkerIOReactor, error) {
	if factory == nil {
		return nil, errors.New("reactor: event handler factory is required")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if hooks == nil {
		hooks = NoopHooks{}
	}
	sel, err := poll.Open()
	if err != nil {
		return nil, api.NewIOReactorError(err, "failure opening selector")
	}
	r := &MultiWorkerIOReactor{
		cfg:           cfg,
		factory:       factory,
		hooks:         hooks,
		sel:           sel,
		threadFactory: defaultThreadFactory,
		audit:         newAuditLog(),
		done:          make(chan struct{}),
		mainChannels:  make(map[uint64]*transport.Channel),
		log:           zerolog.Nop(),
		events:        make([]poll.Event, selectBatch),
	}
	for _, o := range opts {
		o(r)
	}
	return r, nil
}

func (r *MultiWorkerIOReactor) Status() api.IOReactorStatus {
	return r.status.Load()
}

// AuditLog returns a snapshot copy of the errors recorded prior to and
// during shutdown.
func (r *MultiWorkerIOReactor) AuditLog() []api.ExceptionEvent {
	return r.audit.Snapshot()
}

// SetExceptionHandler installs the hook consulted before internal errors
// become fatal. Must be called before Execute.
func (r *MultiWorkerIOReactor) SetExceptionHandler(h api.ExceptionHandler) {
	r.exceptionHandler = h
}

func (r *MultiWorkerIOReactor) addAuditEvent(err error) {
	if err == nil {
		return
	}
	r.audit.Append(err)
	r.metrics.errorAudited()
	r.log.Warn().Err(err).Msg("reactor audit event")
}

// Execute starts the worker pool and drives the main selector loop until
// shutdown. It blocks the calling goroutine; only *api.IOReactorError and
// *api.InterruptedIOError escape it.
func (r *MultiWorkerIOReactor) Execute(ctx context.Context) error {
	r.status.mu.Lock()
	st := api.IOReactorStatus(r.status.v.Load())
	if st >= api.StatusShutdownRequest {
		// Shut down before it ever ran.
		r.status.v.Store(int32(api.StatusShutDown))
		r.status.mu.Unlock()
		r.doneOnce.Close(r.done)
		return nil
	}
	if st != api.StatusInactive {
		r.status.mu.Unlock()
		return api.NewIOReactorError(nil, "illegal reactor state %s", st)
	}

	workerCount := r.cfg.IOThreadCount
	r.dispatchers = make([]*baseIOReactor, workerCount)
	r.workers = make([]*worker, workerCount)
	for i := 0; i < workerCount; i++ {
		d, err := newBaseIOReactor(r.factory, r.cfg,
			r.log.With().Int("dispatcher", i).Logger(), r.metrics)
		if err != nil {
			for j := 0; j < i; j++ {
				r.dispatchers[j].HardShutdown()
			}
			r.status.v.Store(int32(api.StatusShutDown))
			r.status.mu.Unlock()
			r.doneOnce.Close(r.done)
			return api.NewIOReactorError(err, "failure creating I/O dispatcher")
		}
		d.exceptionHandler = r.exceptionHandler
		r.dispatchers[i] = d
		r.workers[i] = &worker{dispatcher: d, done: make(chan struct{})}
	}
	r.status.v.Store(int32(api.StatusActive))
	r.status.mu.Unlock()

	r.log.Info().Int("workers", workerCount).Msg("reactor starting")

	for i := 0; i < workerCount; i++ {
		if r.Status() != api.StatusActive {
			break
		}
		w := r.workers[i]
		w.started.Store(true)
		r.threadFactory(fmt.Sprintf("i/o dispatcher %d", i), func() {
			w.exec(ctx, r.metrics)
		})
	}

	loopErr := r.mainLoop(ctx)
	if loopErr != nil {
		var re *api.IOReactorError
		if errors.As(loopErr, &re) && re.Cause != nil {
			r.addAuditEvent(re.Cause)
		} else {
			r.addAuditEvent(loopErr)
		}
	}

	shutdownErr := r.doShutdown(ctx)

	r.status.AdvanceTo(api.StatusShutDown)
	r.doneOnce.Close(r.done)
	r.log.Info().Msg("reactor shut down")

	if loopErr != nil {
		return loopErr
	}
	return shutdownErr
}

func (r *MultiWorkerIOReactor) mainLoop(ctx context.Context) error {
	for {
		n, err := r.sel.Select(r.events, r.cfg.SelectInterval)
		if err != nil {
			if errors.Is(err, api.ErrClosedSelector) {
				r.addAuditEvent(err)
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

		if r.Status() == api.StatusActive {
			if err := r.hooks.ProcessEvents(r.events[:n]); err != nil {
				return api.NewIOReactorError(err, "failure processing main selector events")
			}
		}

		for _, w := range r.workers {
			if ex := w.fatal(); ex != nil {
				return api.NewIOReactorError(ex, "I/O dispatch worker terminated abnormally")
			}
		}

		if r.Status() > api.StatusActive {
			return nil
		}
	}
}

// doShutdown runs the orderly teardown sequence exactly once: cancel the
// specialization's requests, close main-selector channels, shut workers
// down gracefully, force the stragglers, and join every worker goroutine.
func (r *MultiWorkerIOReactor) doShutdown(ctx context.Context) error {
	if !r.status.AdvanceTo(api.StatusShuttingDown) {
		return nil
	}
	r.log.Info().Msg("reactor shutting down")

	if err := r.hooks.CancelRequests(); err != nil {
		r.addAuditEvent(err)
	}

	r.sel.Wakeup()
	if r.sel.IsOpen() {
		r.closeMainChannels()
		if err := r.sel.Close(); err != nil {
			r.addAuditEvent(err)
		}
	}

	for _, w := range r.workers {
		w.dispatcher.GracefulShutdown()
	}

	grace := r.cfg.ShutdownGracePeriod
	for _, w := range r.workers {
		d := w.dispatcher
		if d.Status() != api.StatusInactive {
			d.AwaitShutdown(grace)
		}
		if d.Status() != api.StatusShutDown {
			d.HardShutdown()
		}
	}

	for _, w := range r.workers {
		if !w.started.Load() {
			continue
		}
		select {
		case <-w.done:
		case <-time.After(grace):
		case <-ctx.Done():
			return &api.InterruptedIOError{Cause: ctx.Err()}
		}
	}
	return nil
}

// Shutdown performs a controlled teardown with the default wait.
func (r *MultiWorkerIOReactor) Shutdown() error {
	return r.ShutdownWait(defaultShutdownWait)
}

// ShutdownWait requests shutdown and waits up to wait for the reactor to
// reach SHUT_DOWN. A zero wait blocks until the terminal state. Calling it
// on an already stopping reactor is a no-op.
func (r *MultiWorkerIOReactor) ShutdownWait(wait time.Duration) error {
	r.status.mu.Lock()
	st := api.IOReactorStatus(r.status.v.Load())
	if st > api.StatusActive {
		r.status.mu.Unlock()
		return nil
	}
	if st == api.StatusInactive {
		// The loop never ran: no workers to stop, just release resources.
		r.status.v.Store(int32(api.StatusShutDown))
		r.status.mu.Unlock()
		if err := r.hooks.CancelRequests(); err != nil {
			r.addAuditEvent(err)
		}
		r.closeMainChannels()
		if err := r.sel.Close(); err != nil {
			r.addAuditEvent(err)
		}
		r.doneOnce.Close(r.done)
		return nil
	}
	r.status.v.Store(int32(api.StatusShutdownRequest))
	r.status.mu.Unlock()

	r.sel.Wakeup()
	r.awaitShutdown(wait)
	return nil
}

// awaitShutdown blocks until SHUT_DOWN or timeout; zero waits forever.
func (r *MultiWorkerIOReactor) awaitShutdown(timeout time.Duration) {
	if timeout == 0 {
		<-r.done
		return
	}
	select {
	case <-r.done:
	case <-time.After(timeout):
	}
}

// EnqueuePendingSession assigns the channel to worker
// abs(counter) mod N and hands it over. Safe from any goroutine.
func (r *MultiWorkerIOReactor) EnqueuePendingSession(ch *transport.Channel, req *SessionRequest) error {
	if r.Status() != api.StatusActive {
		if req != nil {
			req.Cancel()
		}
		_ = ch.Close()
		return api.ErrShutdown
	}
	i := r.counter.NextIndex(len(r.dispatchers))
	return r.dispatchers[i].EnqueuePendingSession(ch, req)
}

// RegisterChannel registers a channel with the main selector on behalf of
// a LoopHooks specialization; the channel is closed during doShutdown if
// still registered then.
func (r *MultiWorkerIOReactor) RegisterChannel(ch *transport.Channel, ops api.Ops, token uint64) error {
	r.chanMu.Lock()
	r.mainChannels[token] = ch
	r.chanMu.Unlock()
	if err := r.sel.Register(ch.Fd(), ops, token); err != nil {
		r.chanMu.Lock()
		delete(r.mainChannels, token)
		r.chanMu.Unlock()
		return err
	}
	return nil
}

// UnregisterChannel removes a main-selector registration. The channel
// itself stays open; ownership returns to the caller.
func (r *MultiWorkerIOReactor) UnregisterChannel(token uint64) {
	r.chanMu.Lock()
	ch, ok := r.mainChannels[token]
	delete(r.mainChannels, token)
	r.chanMu.Unlock()
	if ok {
		_ = r.sel.Unregister(ch.Fd())
	}
}

func (r *MultiWorkerIOReactor) closeMainChannels() {
	r.chanMu.Lock()
	channels := make([]*transport.Channel, 0, len(r.mainChannels))
	for _, ch := range r.mainChannels {
		channels = append(channels, ch)
	}
	r.mainChannels = make(map[uint64]*transport.Channel)
	r.chanMu.Unlock()
	for _, ch := range channels {
		if err := ch.Close(); err != nil {
			r.addAuditEvent(err)
		}
	}
}
