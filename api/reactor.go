// File: api/reactor.go
// Author: momentics <momentics@gmail.com>
//
// Defines the abstract surface of event-driven I/O reactors that multiplex
// connections across poll-mode backends.

package api

import (
	"context"
	"time"
)

// IOReactor is the top-level surface of a reactor.
type IOReactor interface {
	// Execute runs the select loop on the calling goroutine until the
	// reactor is shut down or ctx is cancelled. Only *IOReactorError and
	// *InterruptedIOError escape it.
	Execute(ctx context.Context) error

	// Status is a snapshot read of the lifecycle state. It may lag state
	// transitions by one select tick.
	Status() IOReactorStatus

	// Shutdown performs a controlled teardown with the default wait.
	Shutdown() error

	// ShutdownWait performs a controlled teardown, waiting up to wait for
	// the reactor to reach SHUT_DOWN.
	ShutdownWait(wait time.Duration) error

	// AuditLog returns a snapshot copy of the exception audit log.
	AuditLog() []ExceptionEvent

	// SetExceptionHandler installs the hook consulted before an internal
	// error is treated as fatal. Must be called before Execute.
	SetExceptionHandler(h ExceptionHandler)
}

// ExceptionEvent is one entry of the audit log: an error encountered by the
// reactor prior to or in the course of shutdown, with its time stamp.
type ExceptionEvent struct {
	Err       error
	Timestamp time.Time
}

// ExceptionHandler may intercept internal runtime or I/O errors before the
// reactor treats them as fatal. Returning true keeps the reactor alive.
type ExceptionHandler interface {
	Handle(err error) bool
}

// ExceptionHandlerFunc adapts a function to ExceptionHandler.
type ExceptionHandlerFunc func(err error) bool

func (f ExceptionHandlerFunc) Handle(err error) bool { return f(err) }
