//go:build linux
// +build linux

// File: internal/poll/epoll_linux.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Linux epoll selector with eventfd-based wakeup.

package poll

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"

	"github.com/momentics/hioload-reactor/api"
)

// wakeupToken marks readiness events originating from the wakeup eventfd.
const wakeupToken = ^uint64(0)

type epollSelector struct {
	epfd   int
	wakeFd int
	closed atomic.Bool

	mu    sync.Mutex // serializes Close against Wakeup
	evBuf []unix.EpollEvent
}

func openSelector() (Selector, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("epoll create: %w", err)
	}
	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd create: %w", err)
	}
	ev := unix.EpollEvent{Events: unix.EPOLLIN}
	putToken(&ev, wakeupToken)
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFd, &ev); err != nil {
		unix.Close(wakeFd)
		unix.Close(epfd)
		return nil, fmt.Errorf("epoll ctl add wakeup: %w", err)
	}
	return &epollSelector{epfd: epfd, wakeFd: wakeFd}, nil
}

// putToken packs a 64-bit token into the epoll_data field (Fd + Pad).
func putToken(ev *unix.EpollEvent, token uint64) {
	ev.Fd = int32(token)
	ev.Pad = int32(token >> 32)
}

func getToken(ev *unix.EpollEvent) uint64 {
	return uint64(uint32(ev.Fd)) | uint64(uint32(ev.Pad))<<32
}

func toEpollEvents(ops api.Ops) uint32 {
	var events uint32
	if ops&(api.OpRead|api.OpAccept) != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if ops&(api.OpWrite|api.OpConnect) != 0 {
		events |= unix.EPOLLOUT
	}
	return events
}

func fromEpollEvents(events uint32) api.Ops {
	var ready api.Ops
	if events&(unix.EPOLLIN|unix.EPOLLRDHUP|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		ready |= api.OpRead
	}
	if events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0 {
		ready |= api.OpWrite
	}
	return ready
}

func (s *epollSelector) Select(events []Event, timeout time.Duration) (int, error) {
	if s.closed.Load() {
		return 0, api.ErrClosedSelector
	}
	if cap(s.evBuf) < len(events) {
		s.evBuf = make([]unix.EpollEvent, len(events))
	}
	buf := s.evBuf[:len(events)]

	ms := int(timeout / time.Millisecond)
	if timeout > 0 && ms == 0 {
		ms = 1
	}
	n, err := unix.EpollWait(s.epfd, buf, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		if s.closed.Load() || err == unix.EBADF {
			return 0, api.ErrClosedSelector
		}
		return 0, fmt.Errorf("epoll wait: %w", err)
	}

	out := 0
	for i := 0; i < n; i++ {
		token := getToken(&buf[i])
		if token == wakeupToken {
			s.drainWakeup()
			continue
		}
		events[out] = Event{Token: token, Ready: fromEpollEvents(buf[i].Events)}
		out++
	}
	return out, nil
}

// drainWakeup resets the eventfd counter so subsequent selects block again.
func (s *epollSelector) drainWakeup() {
	var b [8]byte
	_, _ = unix.Read(s.wakeFd, b[:])
}

func (s *epollSelector) Register(fd int, ops api.Ops, token uint64) error {
	ev := unix.EpollEvent{Events: toEpollEvents(ops)}
	putToken(&ev, token)
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		if err == unix.EBADF {
			return api.ErrClosedChannel
		}
		return fmt.Errorf("epoll ctl add: %w", err)
	}
	return nil
}

func (s *epollSelector) Modify(fd int, ops api.Ops, token uint64) error {
	ev := unix.EpollEvent{Events: toEpollEvents(ops)}
	putToken(&ev, token)
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_MOD, fd, &ev); err != nil {
		if err == unix.ENOENT || err == unix.EBADF {
			return api.ErrCancelledKey
		}
		return fmt.Errorf("epoll ctl mod: %w", err)
	}
	return nil
}

func (s *epollSelector) Unregister(fd int) error {
	if err := unix.EpollCtl(s.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil {
		if err == unix.ENOENT || err == unix.EBADF {
			return nil
		}
		return fmt.Errorf("epoll ctl del: %w", err)
	}
	return nil
}

func (s *epollSelector) Wakeup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return
	}
	var b [8]byte
	b[0] = 1
	_, _ = unix.Write(s.wakeFd, b[:])
}

func (s *epollSelector) IsOpen() bool {
	return !s.closed.Load()
}

func (s *epollSelector) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	// Closing an epoll descriptor does not unblock a waiter; poke the
	// eventfd first so a concurrent Select observes the closed state.
	var b [8]byte
	b[0] = 1
	_, _ = unix.Write(s.wakeFd, b[:])
	err := unix.Close(s.epfd)
	if cerr := unix.Close(s.wakeFd); err == nil {
		err = cerr
	}
	return err
}
