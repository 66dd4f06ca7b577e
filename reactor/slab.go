// File: reactor/slab.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Dense session arena. Sessions are registered with the selector by token
// rather than pointer; a generation counter in the token's high half guards
// against readiness events that arrive for a recycled slot.

package reactor

import (
	"sync"
)

type slabEntry struct {
	session *ioSession
	gen     uint32
}

type sessionSlab struct {
	mu      sync.Mutex
	entries []slabEntry
	free    []uint32
	count   int
}

func newSessionSlab() *sessionSlab {
	return &sessionSlab{}
}

func slabToken(idx, gen uint32) uint64 {
	return uint64(gen)<<32 | uint64(idx)
}

func splitToken(token uint64) (idx, gen uint32) {
	return uint32(token), uint32(token >> 32)
}

// Add stores s and returns its token.
func (sl *sessionSlab) Add(s *ioSession) uint64 {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	var idx uint32
	if n := len(sl.free); n > 0 {
		idx = sl.free[n-1]
		sl.free = sl.free[:n-1]
		sl.entries[idx].session = s
	} else {
		idx = uint32(len(sl.entries))
		sl.entries = append(sl.entries, slabEntry{session: s})
	}
	sl.count++
	return slabToken(idx, sl.entries[idx].gen)
}

// Get returns the session for token, or nil if the slot was recycled.
func (sl *sessionSlab) Get(token uint64) *ioSession {
	idx, gen := splitToken(token)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if int(idx) >= len(sl.entries) {
		return nil
	}
	e := &sl.entries[idx]
	if e.gen != gen {
		return nil
	}
	return e.session
}

// Take removes and returns the session for token, or nil if already gone.
func (sl *sessionSlab) Take(token uint64) *ioSession {
	idx, gen := splitToken(token)
	sl.mu.Lock()
	defer sl.mu.Unlock()
	if int(idx) >= len(sl.entries) {
		return nil
	}
	e := &sl.entries[idx]
	if e.gen != gen || e.session == nil {
		return nil
	}
	s := e.session
	e.session = nil
	e.gen++
	sl.free = append(sl.free, idx)
	sl.count--
	return s
}

func (sl *sessionSlab) Len() int {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	return sl.count
}

// Snapshot copies the live sessions so callers can iterate without holding
// the slab lock across handler dispatch.
func (sl *sessionSlab) Snapshot() []*ioSession {
	sl.mu.Lock()
	defer sl.mu.Unlock()
	out := make([]*ioSession, 0, sl.count)
	for i := range sl.entries {
		if s := sl.entries[i].session; s != nil {
			out = append(out, s)
		}
	}
	return out
}
