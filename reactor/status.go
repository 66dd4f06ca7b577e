// File: reactor/status.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Forward-only status cell shared by the reactor implementations. Writes
// are serialized under a mutex; reads are lock-free and may lag a
// transition by one select tick.

package reactor

import (
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-reactor/api"
)

type atomicStatus struct {
	mu sync.Mutex
	v  atomic.Int32
}

func (s *atomicStatus) Load() api.IOReactorStatus {
	return api.IOReactorStatus(s.v.Load())
}

// Advance moves from exactly `from` to `to`. Returns false when the current
// state differs, preserving monotonicity.
func (s *atomicStatus) Advance(from, to api.IOReactorStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if api.IOReactorStatus(s.v.Load()) != from {
		return false
	}
	s.v.Store(int32(to))
	return true
}

// AdvanceTo moves forward to `to` from any earlier state. Returns false
// when the state is already at or past `to`.
func (s *atomicStatus) AdvanceTo(to api.IOReactorStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if api.IOReactorStatus(s.v.Load()) >= to {
		return false
	}
	s.v.Store(int32(to))
	return true
}

type onceCloser struct {
	once sync.Once
}

func (o *onceCloser) Close(ch chan struct{}) {
	o.once.Do(func() { close(ch) })
}
