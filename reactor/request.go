// File: reactor/request.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// One-shot handle for an outbound connect attempt. Exactly one of
// Completed, Failed, Timeout, or Cancel ever takes effect; later signals
// are ignored.

package reactor

import (
	"errors"
	"sync"
	"time"

	"github.com/momentics/hioload-reactor/api"
)

// ErrConnectTimeout is the failure cause of a session request whose
// connect deadline elapsed.
var ErrConnectTimeout = errors.New("connection request timed out")

// ErrRequestCancelled is the failure cause reported by Err after Cancel.
var ErrRequestCancelled = errors.New("connection request cancelled")

type requestState int32

const (
	requestPending requestState = iota
	requestCompleted
	requestFailed
	requestTimedOut
	requestCancelled
)

// SessionRequest represents one outbound connect and its outcome.
type SessionRequest struct {
	remoteAddr string
	attachment any
	callback   api.SessionRequestCallback

	mu      sync.Mutex
	state   requestState
	session api.Session
	err     error
	done    chan struct{}
}

var _ api.SessionRequest = (*SessionRequest)(nil)

// NewSessionRequest creates a pending request. callback may be nil.
func NewSessionRequest(remoteAddr string, attachment any, callback api.SessionRequestCallback) *SessionRequest {
	return &SessionRequest{
		remoteAddr: remoteAddr,
		attachment: attachment,
		callback:   callback,
		done:       make(chan struct{}),
	}
}

func (r *SessionRequest) RemoteAddr() string { return r.remoteAddr }

func (r *SessionRequest) Attachment() any { return r.attachment }

// Session returns the established session once completed, nil otherwise.
func (r *SessionRequest) Session() api.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Err returns the failure cause once failed, timed out, or cancelled.
func (r *SessionRequest) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// IsCompleted reports whether the request reached a terminal outcome.
func (r *SessionRequest) IsCompleted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state != requestPending
}

// WaitFor blocks until the request reaches a terminal outcome or timeout
// elapses. A zero timeout waits indefinitely.
func (r *SessionRequest) WaitFor(timeout time.Duration) error {
	if timeout == 0 {
		<-r.done
		return nil
	}
	select {
	case <-r.done:
		return nil
	case <-time.After(timeout):
		return ErrConnectTimeout
	}
}

// settle moves the request out of the pending state. Returns false if a
// terminal outcome was already recorded.
func (r *SessionRequest) settle(state requestState, session api.Session, err error) bool {
	r.mu.Lock()
	if r.state != requestPending {
		r.mu.Unlock()
		return false
	}
	r.state = state
	r.session = session
	r.err = err
	close(r.done)
	r.mu.Unlock()
	return true
}

// Completed records the established session and notifies the callback.
func (r *SessionRequest) Completed(session api.Session) {
	if r.settle(requestCompleted, session, nil) && r.callback != nil {
		r.callback.Completed(r)
	}
}

// Failed records the failure cause and notifies the callback.
func (r *SessionRequest) Failed(err error) {
	if r.settle(requestFailed, nil, err) && r.callback != nil {
		r.callback.Failed(r)
	}
}

// Timeout fails the request with ErrConnectTimeout.
func (r *SessionRequest) Timeout() {
	if r.settle(requestTimedOut, nil, ErrConnectTimeout) && r.callback != nil {
		r.callback.TimedOut(r)
	}
}

// Cancel abandons the request. Returns true if it was still pending.
func (r *SessionRequest) Cancel() bool {
	ok := r.settle(requestCancelled, nil, ErrRequestCancelled)
	if ok && r.callback != nil {
		r.callback.Cancelled(r)
	}
	return ok
}
