// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// Auth attempt outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics holds the account service's Prometheus collectors.
type Metrics struct {
	AuthAttempts    *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the account service metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AuthAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "accounts_auth_attempts_total",
				Help: "Authentication attempts by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "accounts_http_request_duration_seconds",
				Help:    "HTTP request latency by method, route and status",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route", "status"},
		),
	}

	reg.MustRegister(m.AuthAttempts, m.RequestDuration)
	return m
}

// RecordAuthAttempt counts one register, login or logout attempt. Safe on a
// nil receiver.
func (m *Metrics) RecordAuthAttempt(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttempts.WithLabelValues(operation, outcome).Inc()
}

// ObserveRequest records one served HTTP request. Safe on a nil receiver.
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

// RegisterPoolStats exports connection pool gauges read from stat on scrape.
func RegisterPoolStats(reg prometheus.Registerer, stat func() *pgxpool.Stat) {
	gauge := func(name, help string, read func(*pgxpool.Stat) int32) prometheus.Collector {
		return prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
			return float64(read(stat()))
		})
	}
	reg.MustRegister(
		gauge("accounts_db_connections_total", "Open database connections",
			(*pgxpool.Stat).TotalConns),
		gauge("accounts_db_connections_acquired", "Database connections in use",
			(*pgxpool.Stat).AcquiredConns),
		gauge("accounts_db_connections_idle", "Idle database connections",
			(*pgxpool.Stat).IdleConns),
		gauge("accounts_db_connections_max", "Configured maximum database connections",
			(*pgxpool.Stat).MaxConns),
	)
}
