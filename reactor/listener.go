// File: reactor/listener.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Listening specialization: binds non-blocking server sockets on the main
// selector, accepts on readiness, and distributes accepted channels across
// the worker pool.

package reactor

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/momentics/hioload-reactor/api"
	"github.com/momentics/hioload-reactor/transport"
)

// ListenerEndpoint is one bound listening socket.
type ListenerEndpoint struct {
	token uint64
	fd    int
	addr  string
	ch    *transport.Channel
}

// Addr returns the bound address in host:port form; useful when the
// requested port was 0.
func (e *ListenerEndpoint) Addr() string { return e.addr }

// ListeningIOReactor is a MultiWorkerIOReactor that accepts inbound
// connections.
type ListeningIOReactor struct {
	*MultiWorkerIOReactor

	mu        sync.Mutex
	endpoints map[uint64]*ListenerEndpoint
	paused    bool
	nextToken atomic.Uint64
}

// NewListeningIOReactor builds a listening reactor. Endpoints are added
// with Listen, before or after Execute.
func NewListeningIOReactor(factory api.EventHandlerFactory, cfg *Config, opts ...Option) (*ListeningIOReactor, error) {
	mw, err := NewMultiWorkerIOReactor(factory, cfg, nil, opts...)
	if err != nil {
		return nil, err
	}
	l := &ListeningIOReactor{
		MultiWorkerIOReactor: mw,
		endpoints:            make(map[uint64]*ListenerEndpoint),
	}
	mw.hooks = l
	return l, nil
}

// Listen binds a non-blocking listening socket on addr (a literal
// "ip:port") and registers it for accept readiness.
func (l *ListeningIOReactor) Listen(addr string) (*ListenerEndpoint, error) {
	if l.Status() > api.StatusActive {
		return nil, api.ErrShutdown
	}
	fd, err := transport.Listen(addr)
	if err != nil {
		return nil, err
	}
	ep := &ListenerEndpoint{
		token: l.nextToken.Add(1),
		fd:    fd,
		addr:  transport.LocalAddr(fd),
		ch:    transport.NewChannel(fd),
	}
	l.mu.Lock()
	l.endpoints[ep.token] = ep
	paused := l.paused
	l.mu.Unlock()

	if !paused {
		if err := l.RegisterChannel(ep.ch, api.OpAccept, ep.token); err != nil {
			l.mu.Lock()
			delete(l.endpoints, ep.token)
			l.mu.Unlock()
			_ = ep.ch.Close()
			return nil, err
		}
	}
	l.log.Info().Str("addr", ep.addr).Msg("listening")
	return ep, nil
}

// Endpoints returns the bound addresses.
func (l *ListeningIOReactor) Endpoints() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, 0, len(l.endpoints))
	for _, ep := range l.endpoints {
		out = append(out, ep.addr)
	}
	return out
}

// Pause stops accepting without closing the listening sockets.
func (l *ListeningIOReactor) Pause() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.paused {
		return
	}
	l.paused = true
	for _, ep := range l.endpoints {
		_ = l.sel.Unregister(ep.fd)
	}
}

// Resume re-arms accept readiness on all paused endpoints.
func (l *ListeningIOReactor) Resume() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.paused {
		return nil
	}
	l.paused = false
	for _, ep := range l.endpoints {
		if err := l.sel.Register(ep.fd, api.OpAccept, ep.token); err != nil {
			return err
		}
	}
	return nil
}

// ProcessEvents drains the accept backlog of every ready endpoint and
// hands the accepted channels to the worker pool.
func (l *ListeningIOReactor) ProcessEvents(ready []Event) error {
	for _, ev := range ready {
		l.mu.Lock()
		ep := l.endpoints[ev.Token]
		l.mu.Unlock()
		if ep == nil {
			continue
		}
		for {
			fd, err := transport.Accept(ep.fd)
			if err != nil {
				if errors.Is(err, transport.ErrAgain) {
					break
				}
				return err
			}
			ch := transport.NewChannel(fd)
			if err := l.cfg.socketConfig().Apply(ch); err != nil {
				l.addAuditEvent(err)
				_ = ch.Close()
				continue
			}
			if err := l.EnqueuePendingSession(ch, nil); err != nil {
				// Worker pool already stopping; the channel was closed.
				break
			}
		}
	}
	return nil
}

// CancelRequests implements LoopHooks; a listener has no pending requests.
func (l *ListeningIOReactor) CancelRequests() error { return nil }
