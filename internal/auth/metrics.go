// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Operation labels.
const (
	OpSignUp  = "sign_up"
	OpSignIn  = "sign_in"
	OpSignOut = "sign_out"
	OpRestore = "restore"
)

var (
	operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_auth_operations_total",
			Help: "Total auth gateway operations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatehouse_auth_operation_duration_seconds",
			Help:    "Auth backend round-trip latency by operation",
			Buckets: []float64{.01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)
)

// RegisterMetrics registers the auth gateway metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(operationsTotal, operationDuration)
}

func recordOperation(operation string, err error, elapsed time.Duration) {
	outcome := "success"
	if err != nil {
		outcome = KindOf(err).String()
	}
	operationsTotal.WithLabelValues(operation, outcome).Inc()
	operationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}
