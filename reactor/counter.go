// File: reactor/counter.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import "sync/atomic"

// atomicCounter produces round-robin worker indices. The counter is
// monotonic; the absolute value keeps the index positive across wraparound.
type atomicCounter struct {
	v atomic.Int64
}

func (c *atomicCounter) NextIndex(n int) int {
	i := (c.v.Add(1) - 1) % int64(n)
	if i < 0 {
		i = -i
	}
	return int(i)
}
