// File: api/request.go
// Package api defines the outbound connect callback contract.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package api

// SessionRequest is the read-only view of a one-shot outbound connect
// handle. Exactly one of the completed, failed, timed-out, or cancelled
// outcomes is ever signalled for a request.
type SessionRequest interface {
	// RemoteAddr is the target endpoint of the connect attempt.
	RemoteAddr() string

	// Attachment is the opaque value supplied by the originator.
	Attachment() any

	// Session returns the established session once the request completed.
	Session() Session

	// Err returns the failure cause once the request failed or timed out.
	Err() error

	// IsCompleted reports whether the request has reached a terminal
	// outcome.
	IsCompleted() bool
}

// SessionRequestCallback receives the terminal outcome of a session
// request. At most one method is ever invoked per request.
type SessionRequestCallback interface {
	Completed(request SessionRequest)
	Failed(request SessionRequest)
	TimedOut(request SessionRequest)
	Cancelled(request SessionRequest)
}
