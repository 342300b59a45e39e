// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the
// validation engine.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus
// and Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "veritas"

// Subsystem for validation metrics
const validatorSubsystem = "validator"

// Metrics holds all Prometheus metrics for validation operations.
//
// Initialize once per registry via NewMetrics(); tests pass their own
// registry so parallel engines never collide on registration.
type Metrics struct {
	// ValidationsTotal counts completed validations.
	// Labels: state (ACCEPTED, REJECTED_WITH_SUGGESTIONS, ...)
	ValidationsTotal *prometheus.CounterVec

	// ConsensusScore observes the final fused score distribution.
	ConsensusScore prometheus.Histogram

	// LayerLatencySeconds measures per-layer lookup latency.
	// Labels: layer (structural, temporal, documentation, memory, type)
	LayerLatencySeconds *prometheus.HistogramVec

	// LayerDegradedTotal counts layer timeouts and failures that
	// degraded into abstention.
	// Labels: layer
	LayerDegradedTotal *prometheus.CounterVec

	// CacheEventsTotal counts verdict cache activity.
	// Labels: event (hit, miss, invalidation)
	CacheEventsTotal *prometheus.CounterVec

	// CorrectionsProposedTotal counts correction candidates that
	// survived re-validation.
	CorrectionsProposedTotal prometheus.Counter

	// OutcomesTotal counts recorded outcomes.
	// Labels: result (success, failure), status (ok, error)
	OutcomesTotal *prometheus.CounterVec
}

// NewNopMetrics creates metrics backed by a throwaway registry.
// Useful in tests and embedded callers that do not scrape.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}

// NewMetrics creates and registers the metrics on the given
// registerer. Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ValidationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: validatorSubsystem,
				Name:      "validations_total",
				Help:      "Completed validations by terminal state.",
			},
			[]string{"state"},
		),
		ConsensusScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: validatorSubsystem,
				Name:      "consensus_score",
				Help:      "Distribution of fused consensus scores.",
				Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
			},
		),
		LayerLatencySeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: validatorSubsystem,
				Name:      "layer_latency_seconds",
				Help:      "Per-layer lookup latency.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
			},
			[]string{"layer"},
		),
		LayerDegradedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: validatorSubsystem,
				Name:      "layer_degraded_total",
				Help:      "Layer lookups that timed out or failed and were degraded to abstention.",
			},
			[]string{"layer"},
		),
		CacheEventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: validatorSubsystem,
				Name:      "cache_events_total",
				Help:      "Verdict cache hits, misses, and invalidations.",
			},
			[]string{"event"},
		),
		CorrectionsProposedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: validatorSubsystem,
				Name:      "corrections_proposed_total",
				Help:      "Correction candidates proposed on rejections.",
			},
		),
		OutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: validatorSubsystem,
				Name:      "outcomes_total",
				Help:      "Recorded usage outcomes.",
			},
			[]string{"result", "status"},
		),
	}
}

// ObserveValidation records one finished validation.
func (m *Metrics) ObserveValidation(state string, score float64) {
	m.ValidationsTotal.WithLabelValues(state).Inc()
	m.ConsensusScore.Observe(score)
}

// ObserveLayer records one layer lookup.
func (m *Metrics) ObserveLayer(layer string, elapsed time.Duration, degraded bool) {
	m.LayerLatencySeconds.WithLabelValues(layer).Observe(elapsed.Seconds())
	if degraded {
		m.LayerDegradedTotal.WithLabelValues(layer).Inc()
	}
}

// ObserveCache records a cache event: "hit", "miss", or
// "invalidation".
func (m *Metrics) ObserveCache(event string) {
	m.CacheEventsTotal.WithLabelValues(event).Inc()
}

// ObserveOutcome records a record-outcome attempt.
func (m *Metrics) ObserveOutcome(success bool, err error) {
	result := "failure"
	if success {
		result = "success"
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.OutcomesTotal.WithLabelValues(result, status).Inc()
}
