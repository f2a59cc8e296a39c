/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package healer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are per-process session counters. A CLI run is short-lived, so
// they are exported by writing a node-exporter textfile rather than served.
type Metrics struct {
	registry      *prometheus.Registry
	sessions      *prometheus.CounterVec
	stageFailures *prometheus.CounterVec
	duration      prometheus.Histogram
}

// NewMetrics registers the session metrics on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "selfheal_sessions_total",
			Help: "Healing sessions by outcome.",
		}, []string{"outcome"}),
		stageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "selfheal_stage_failures_total",
			Help: "Healing sessions that stopped at each stage.",
		}, []string{"stage"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "selfheal_session_duration_seconds",
			Help:    "Wall-clock duration of healing sessions.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
	}
	m.registry.MustRegister(m.sessions, m.stageFailures, m.duration)
	return m
}

func (m *Metrics) observe(s Summary) {
	outcome := "failure"
	if s.Success {
		outcome = "success"
	}
	m.sessions.WithLabelValues(outcome).Inc()
	if s.FailedStage != "" {
		m.stageFailures.WithLabelValues(string(s.FailedStage)).Inc()
	}
	m.duration.Observe(s.Duration.Seconds())
}

// Registerer lets other instrumentation share the registry, and with it the
// textfile.
func (m *Metrics) Registerer() prometheus.Registerer { return m.registry }

// Gatherer exposes the registry.
func (m *Metrics) Gatherer() prometheus.Gatherer { return m.registry }

// WriteTextfile writes the metrics in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
