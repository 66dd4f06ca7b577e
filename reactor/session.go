// File: reactor/session.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Per-connection session state. A session is owned by exactly one worker
// reactor; handler callbacks for it run serially on that worker's
// goroutine. Close and Shutdown may be called from any goroutine and
// surface the session on the owner's closed queue exactly once.

package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/internal/poll"
	"github.com/momentics/hioload-reactor/transport"
)

type ioSession struct {
	token   uint64
	channel *transport.Channel
	sel     poll.Selector
	closedQ *mpscQueue

	mask      atomic.Uint32
	status    atomic.Int32
	timeout   atomic.Int64 // nanoseconds, 0 = none
	lastRead  atomic.Int64 // unix nanoseconds
	lastWrite atomic.Int64

	releaseOnce sync.Once
	attrs       sync.Map

	handler api.EventHandler // written at intake, read on the owner goroutine
}

var _ api.Session = (*ioSession)(nil)

func newIOSession(ch *transport.Channel, sel poll.Selector, closedQ *mpscQueue) *ioSession {
	s := &ioSession{
		channel: ch,
		sel:     sel,
		closedQ: closedQ,
	}
	now := time.Now().UnixNano()
	s.lastRead.Store(now)
	s.lastWrite.Store(now)
	return s
}

func (s *ioSession) ID() uint64 { return s.token }

func (s *ioSession) Channel() api.ByteChannel { return s.channel }

func (s *ioSession) EventMask() api.Ops {
	return api.Ops(s.mask.Load())
}

func (s *ioSession) SetEventMask(ops api.Ops) error {
	if s.Status() != api.SessionActive {
		return api.ErrCancelledKey
	}
	s.mask.Store(uint32(ops))
	return s.sel.Modify(s.channel.Fd(), ops, s.token)
}

func (s *ioSession) SetEvent(op api.Ops) error {
	return s.SetEventMask(api.Ops(s.mask.Load()) | op)
}

func (s *ioSession) ClearEvent(op api.Ops) error {
	return s.SetEventMask(api.Ops(s.mask.Load()) &^ op)
}

// Close transitions the session to CLOSING and releases it. The owner
// worker delivers Disconnected on its next loop iteration.
func (s *ioSession) Close() error {
	if !s.status.CompareAndSwap(int32(api.SessionActive), int32(api.SessionClosing)) {
		return nil
	}
	s.release()
	return nil
}

// Shutdown releases the session immediately. Idempotent.
func (s *ioSession) Shutdown() {
	st := s.status.Load()
	if st == int32(api.SessionClosed) {
		return
	}
	s.status.CompareAndSwap(st, int32(api.SessionClosing))
	s.release()
}

// release cancels the selector registration, closes the channel, and
// surfaces the token on the closed queue, exactly once.
func (s *ioSession) release() {
	s.releaseOnce.Do(func() {
		_ = s.sel.Unregister(s.channel.Fd())
		_ = s.channel.Close()
		s.status.Store(int32(api.SessionClosed))
		s.closedQ.Push(s.token)
		s.sel.Wakeup()
	})
}

func (s *ioSession) Status() api.SessionStatus {
	return api.SessionStatus(s.status.Load())
}

func (s *ioSession) SocketTimeout() time.Duration {
	return time.Duration(s.timeout.Load())
}

func (s *ioSession) SetSocketTimeout(d time.Duration) {
	s.timeout.Store(int64(d))
}

func (s *ioSession) LastReadTime() time.Time {
	return time.Unix(0, s.lastRead.Load())
}

func (s *ioSession) LastWriteTime() time.Time {
	return time.Unix(0, s.lastWrite.Load())
}

func (s *ioSession) LastAccessTime() time.Time {
	r, w := s.lastRead.Load(), s.lastWrite.Load()
	if r > w {
		return time.Unix(0, r)
	}
	return time.Unix(0, w)
}

// resetLastRead is called by the owner loop before read dispatch so the
// handler observes a current timestamp.
func (s *ioSession) resetLastRead(now time.Time) {
	s.lastRead.Store(now.UnixNano())
}

func (s *ioSession) resetLastWrite(now time.Time) {
	s.lastWrite.Store(now.UnixNano())
}

func (s *ioSession) Attribute(name string) any {
	v, _ := s.attrs.Load(name)
	return v
}

func (s *ioSession) SetAttribute(name string, value any) {
	s.attrs.Store(name, value)
}

func (s *ioSession) RemoveAttribute(name string) any {
	v, _ := s.attrs.LoadAndDelete(name)
	return v
}

func (s *ioSession) Handler() api.EventHandler { return s.handler }

func (s *ioSession) SetHandler(h api.EventHandler) { s.handler = h }
