// File: reactor/metrics.go
// Package reactor
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Optional Prometheus instrumentation, enabled through WithMetrics. All
// methods are nil-receiver safe so the hot path carries no conditionals at
// call sites.

package reactor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type reactorMetrics struct {
	sessionsCreated  prometheus.Counter
	sessionsClosed   prometheus.Counter
	sessionTimeouts  prometheus.Counter
	dispatchedEvents prometheus.Counter
	auditedErrors    prometheus.Counter
	activeSessions   prometheus.Gauge
	workersAlive     prometheus.Gauge
}

func newReactorMetrics(reg prometheus.Registerer) *reactorMetrics {
	f := promauto.With(reg)
	return &reactorMetrics{
		sessionsCreated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hioload", Subsystem: "reactor", Name: "sessions_created_total",
			Help: "Sessions registered by worker reactors.",
		}),
		sessionsClosed: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hioload", Subsystem: "reactor", Name: "sessions_closed_total",
			Help: "Sessions reaped from the closed queue.",
		}),
		sessionTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hioload", Subsystem: "reactor", Name: "session_timeouts_total",
			Help: "Idle timeout notifications delivered to handlers.",
		}),
		dispatchedEvents: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hioload", Subsystem: "reactor", Name: "dispatched_events_total",
			Help: "Readiness events dispatched to handlers.",
		}),
		auditedErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "hioload", Subsystem: "reactor", Name: "audited_errors_total",
			Help: "Errors appended to the shutdown audit log.",
		}),
		activeSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "hioload", Subsystem: "reactor", Name: "active_sessions",
			Help: "Sessions currently registered across all workers.",
		}),
		workersAlive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "hioload", Subsystem: "reactor", Name: "workers_alive",
			Help: "Worker reactor goroutines currently running.",
		}),
	}
}

func (m *reactorMetrics) sessionCreated() {
	if m == nil {
		return
	}
	m.sessionsCreated.Inc()
	m.activeSessions.Inc()
}

func (m *reactorMetrics) sessionClosed() {
	if m == nil {
		return
	}
	m.sessionsClosed.Inc()
	m.activeSessions.Dec()
}

func (m *reactorMetrics) sessionTimedOut() {
	if m == nil {
		return
	}
	m.sessionTimeouts.Inc()
}

func (m *reactorMetrics) eventsDispatched(n int) {
	if m == nil {
		return
	}
	m.dispatchedEvents.Add(float64(n))
}

func (m *reactorMetrics) errorAudited() {
	if m == nil {
		return
	}
	m.auditedErrors.Inc()
}

func (m *reactorMetrics) workerStarted() {
	if m == nil {
		return
	}
	m.workersAlive.Inc()
}

func (m *reactorMetrics) workerStopped() {
	if m == nil {
		return
	}
	m.workersAlive.Dec()
}
