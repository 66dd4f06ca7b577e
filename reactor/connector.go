// File: reactor/connector.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Connecting specialization: initiates non-blocking connects on the main
// selector, resolves their outcome on connect readiness, and hands
// established channels to the worker pool together with their session
// request.

package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/transport"
)

type connectEntry struct {
	token    uint64
	ch       *transport.Channel
	req      *SessionRequest
	deadline time.Time
}

// ConnectingIOReactor is a MultiWorkerIOReactor that opens outbound
// connections.
type ConnectingIOReactor struct {
	*MultiWorkerIOReactor

	mu        sync.Mutex
	inflight  map[uint64]*connectEntry
	nextToken atomic.Uint64
}

// NewConnectingIOReactor builds a connecting reactor.
func NewConnectingIOReactor(factory api.EventHandlerFactory, cfg *Config, opts ...Option) (*ConnectingIOReactor, error) {
	mw, err := NewMultiWorkerIOReactor(factory, cfg, nil, opts...)
	if err != nil {
		return nil, err
	}
	c := &ConnectingIOReactor{
		MultiWorkerIOReactor: mw,
		inflight:             make(map[uint64]*connectEntry),
	}
	mw.hooks = c
	return c, nil
}

// Connect starts a non-blocking connect to remoteAddr, a pre-resolved
// literal "ip:port", and returns its one-shot request handle. The reactor
// performs no name resolution. The outcome is reported through the request
// (and callback, when given): Completed once the session is registered on
// a worker, Failed on connect errors, TimedOut past ConnectTimeout,
// Cancelled on reactor shutdown.
func (c *ConnectingIOReactor) Connect(remoteAddr string, attachment any, callback api.SessionRequestCallback) (*SessionRequest, error) {
	req := NewSessionRequest(remoteAddr, attachment, callback)
	if c.Status() != api.StatusActive {
		req.Cancel()
		return req, api.ErrShutdown
	}
	fd, inProgress, err := transport.StartConnect(remoteAddr)
	if err != nil {
		req.Failed(err)
		return req, nil
	}
	ch := transport.NewChannel(fd)
	if !inProgress {
		// Connected synchronously (loopback fast path).
		if err := c.cfg.socketConfig().Apply(ch); err != nil {
			req.Failed(err)
			_ = ch.Close()
			return req, nil
		}
		_ = c.EnqueuePendingSession(ch, req)
		return req, nil
	}

	entry := &connectEntry{
		token: c.nextToken.Add(1),
		ch:    ch,
		req:   req,
	}
	if c.cfg.ConnectTimeout > 0 {
		entry.deadline = time.Now().Add(c.cfg.ConnectTimeout)
	}
	c.mu.Lock()
	c.inflight[entry.token] = entry
	c.mu.Unlock()

	if err := c.RegisterChannel(ch, api.OpConnect, entry.token); err != nil {
		c.take(entry.token)
		req.Failed(err)
		_ = ch.Close()
		return req, nil
	}
	c.sel.Wakeup()
	return req, nil
}

func (c *ConnectingIOReactor) take(token uint64) *connectEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.inflight[token]
	delete(c.inflight, token)
	return e
}

// ProcessEvents resolves ready connects and sweeps overdue requests.
func (c *ConnectingIOReactor) ProcessEvents(ready []Event) error {
	for _, ev := range ready {
		entry := c.take(ev.Token)
		if entry == nil {
			continue
		}
		c.UnregisterChannel(entry.token)
		if err := transport.FinishConnect(entry.ch.Fd()); err != nil {
			entry.req.Failed(err)
			_ = entry.ch.Close()
			continue
		}
		if err := c.cfg.socketConfig().Apply(entry.ch); err != nil {
			entry.req.Failed(err)
			_ = entry.ch.Close()
			continue
		}
		_ = c.EnqueuePendingSession(entry.ch, entry.req)
	}
	c.sweepTimeouts(time.Now())
	return nil
}

// sweepTimeouts fails requests whose connect deadline has elapsed.
func (c *ConnectingIOReactor) sweepTimeouts(now time.Time) {
	var overdue []*connectEntry
	c.mu.Lock()
	for token, e := range c.inflight {
		if !e.deadline.IsZero() && e.deadline.Before(now) {
			delete(c.inflight, token)
			overdue = append(overdue, e)
		}
	}
	c.mu.Unlock()
	for _, e := range overdue {
		c.UnregisterChannel(e.token)
		e.req.Timeout()
		_ = e.ch.Close()
	}
}

// CancelRequests aborts every in-flight connect. Runs once at the start of
// the shutdown sequence.
func (c *ConnectingIOReactor) CancelRequests() error {
	c.mu.Lock()
	entries := make([]*connectEntry, 0, len(c.inflight))
	for _, e := range c.inflight {
		entries = append(entries, e)
	}
	c.inflight = make(map[uint64]*connectEntry)
	c.mu.Unlock()
	for _, e := range entries {
		c.UnregisterChannel(e.token)
		e.req.Cancel()
		_ = e.ch.Close()
	}
	return nil
}
