// File: reactor/queue.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Multi-producer/single-consumer hand-off queue. Producers are arbitrary
// goroutines enqueueing pending sessions or closed-session tokens; the sole
// consumer is the owning worker's loop.

package reactor

import (
	"sync"

	"github.com/eapache/queue"
)

type mpscQueue struct {
	mu sync.Mutex
	q  *queue.Queue
}

func newMPSCQueue() *mpscQueue {
	return &mpscQueue{q: queue.New()}
}

func (m *mpscQueue) Push(v any) {
	m.mu.Lock()
	m.q.Add(v)
	m.mu.Unlock()
}

func (m *mpscQueue) Pop() (any, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.q.Length() == 0 {
		return nil, false
	}
	return m.q.Remove(), true
}

func (m *mpscQueue) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Length()
}
