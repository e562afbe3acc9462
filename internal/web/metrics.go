// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package web

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	requestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_http_requests_total",
			Help: "Total HTTP requests by method, route and status",
		},
		[]string{"method", "route", "status"},
	)

	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gatehouse_http_request_duration_seconds",
			Help:    "HTTP request latency by route",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	eventStreams = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gatehouse_event_streams",
		Help: "Open session event streams",
	})

	busySubmissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gatehouse_form_busy_total",
			Help: "Form submissions rejected because another was in flight",
		},
		[]string{"form"},
	)
)

// RegisterMetrics registers the web metrics with reg.
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(requestsTotal, requestDuration, eventStreams, busySubmissions)
}

func recordRequest(method, route string, status int, elapsed time.Duration) {
	requestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	if route != "/events" {
		requestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
	}
}
