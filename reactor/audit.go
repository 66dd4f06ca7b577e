// File: reactor/audit.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Append-only audit log of errors encountered prior to and during reactor
// shutdown. Operators inspect it to decide whether a restart is safe.

package reactor

import (
	"sync"
	"time"

	"github.com/momentics/hioload-reactor/api"
)

type auditLog struct {
	mu     sync.Mutex
	events []api.ExceptionEvent
}

func newAuditLog() *auditLog {
	return &auditLog{}
}

// Append records err with the current time stamp. Nil errors are ignored.
func (l *auditLog) Append(err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	l.events = append(l.events, api.ExceptionEvent{Err: err, Timestamp: time.Now()})
	l.mu.Unlock()
}

// Snapshot returns a copy of the log in insertion order.
func (l *auditLog) Snapshot() []api.ExceptionEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]api.ExceptionEvent, len(l.events))
	copy(out, l.events)
	return out
}

func (l *auditLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
