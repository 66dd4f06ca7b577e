// File: internal/poll/poll.go
// Package poll defines the platform-neutral selector contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package poll

import (
	"time"

	"github.com/momentics/hioload-reactor/api"
)

// Event is one readiness notification returned by Select. Token is the
// opaque user value supplied at registration time; the reactor uses it to
// index its session slab.
type Event struct {
	Token uint64
	Ready api.Ops
}

// Selector multiplexes readiness notifications for registered descriptors.
// Register, Modify, Unregister, and Wakeup are safe to call from any
// goroutine; Select is driven by a single owner goroutine.
type Selector interface {
	// Select blocks up to timeout and fills events with ready
	// notifications. A wakeup returns zero events.
	Select(events []Event, timeout time.Duration) (int, error)

	// Register adds fd with the given interest ops and token.
	Register(fd int, ops api.Ops, token uint64) error

	// Modify replaces the interest ops of a registered fd.
	Modify(fd int, ops api.Ops, token uint64) error

	// Unregister removes fd from the interest set.
	Unregister(fd int) error

	// Wakeup interrupts a concurrent Select, making it return early.
	Wakeup()

	// IsOpen reports whether the selector has not been closed yet.
	IsOpen() bool

	// Close releases the selector. A blocked Select returns
	// api.ErrClosedSelector afterwards.
	Close() error
}

// Open creates the platform selector backend.
func Open() (Selector, error) {
	return openSelector()
}
