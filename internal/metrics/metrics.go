// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package metrics instruments the API gateway with Prometheus metrics and
// serves them for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"peablog/internal/middleware"
)

// Collector records gateway traffic. It implements apiclient.Recorder.
type Collector struct {
	requests          *prometheus.CounterVec
	latency           *prometheus.HistogramVec
	transportFailures *prometheus.CounterVec
	sessionExpired    prometheus.Counter
}

// NewCollector creates a Collector and registers its metrics with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peablog_api_requests_total",
			Help: "Content service responses by method and status code.",
		}, []string{"method", "status_code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "peablog_api_request_duration_seconds",
			Help:    "Content service round-trip latency in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method"}),
		transportFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "peablog_api_transport_failures_total",
			Help: "Calls that produced no response.",
		}, []string{"method"}),
		sessionExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "peablog_session_expired_total",
			Help: "Session resets forced by a 401 response.",
		}),
	}

	reg.MustRegister(c.requests, c.latency, c.transportFailures, c.sessionExpired)
	return c
}

// RecordRequest records one completed exchange.
func (c *Collector) RecordRequest(method string, status int, d time.Duration) {
	c.requests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	c.latency.WithLabelValues(method).Observe(d.Seconds())
}

// RecordTransportFailure records a call that got no response.
func (c *Collector) RecordTransportFailure(method string) {
	c.transportFailures.WithLabelValues(method).Inc()
}

// RecordSessionExpired records a forced session reset.
func (c *Collector) RecordSessionExpired() {
	c.sessionExpired.Inc()
}

// Handler returns the Prometheus scrape handler for gatherer.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute returns a mux serving /metrics, wrapped in the request
// logger and panic recovery.
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return middleware.Recover(nil)(middleware.Logger(nil)(mux))
}
