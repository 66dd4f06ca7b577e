// File: reactor/options.go
// Package reactor defines functional options for reactor construction.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package reactor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/momentics/hioload-reactor/api"
)

// Option customizes reactor initialization.
type Option func(*MultiWorkerIOReactor)

// WithLogger attaches a zerolog logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(r *MultiWorkerIOReactor) {
		r.log = log
	}
}

// WithThreadFactory substitutes the goroutine spawner used for worker
// loops, allowing callers to apply naming or pinning policy.
func WithThreadFactory(tf ThreadFactory) Option {
	return func(r *MultiWorkerIOReactor) {
		if tf != nil {
			r.threadFactory = tf
		}
	}
}

// WithExceptionHandler installs the hook consulted before internal errors
// are treated as fatal.
func WithExceptionHandler(h api.ExceptionHandler) Option {
	return func(r *MultiWorkerIOReactor) {
		r.exceptionHandler = h
	}
}

// WithMetrics enables Prometheus instrumentation on the given registerer.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(r *MultiWorkerIOReactor) {
		r.metrics = newReactorMetrics(reg)
	}
}
