// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package session

import "github.com/prometheus/client_golang/prometheus"

var (
	transitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_session_transitions_total",
			Help: "Total session state transitions by event",
		},
		[]string{"event"},
	)

	authenticatedSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gatehouse_sessions_authenticated",
		Help: "Authenticated browser sessions held in memory at the last sweep",
	})

	persistFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_session_persist_failures_total",
			Help: "Session store writes that failed, by operation",
		},
		[]string{"operation"},
	)
)

// RegisterMetrics registers the session metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(transitionsTotal, authenticatedSessions, persistFailures)
}

func recordTransition(event Event) {
	transitionsTotal.WithLabelValues(string(event)).Inc()
}
