// Copyright (c) 2025
// Author: momentics <momentics@gmail.com>

// Package reactor implements the multi-worker non-blocking I/O reactor: a
// main selector loop that accepts or connects channels and a fixed pool of
// worker reactors, each confined to one goroutine, that register the
// channels, dispatch readiness events to handlers, account idle timeouts,
// and coordinate the graceful/hard shutdown sequence with an audit trail of
// every error encountered along the way.
package reactor
