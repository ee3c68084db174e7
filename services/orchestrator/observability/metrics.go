// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the verification
// pipeline.
//
// # Description
//
// Metrics cover the full session lifecycle:
//   - Session counters (by terminal status)
//   - Phase latency histograms (retrieval, writer, skeptic, judge, revision)
//   - Evidence coverage distribution of completed sessions
//   - Revision cycle counts
//   - Ingestion counters and chunk histograms
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "groundcheck"

// Subsystem for pipeline metrics
const pipelineSubsystem = "pipeline"

// PipelineMetrics holds all Prometheus metrics for verification sessions.
//
// # Description
//
// Initialize once at startup via InitMetrics(); the promauto registration
// panics on duplicate registration.
type PipelineMetrics struct {
	// SessionsTotal counts finished sessions.
	// Labels: status (completed, error), mode (answer, draft)
	SessionsTotal *prometheus.CounterVec

	// PhaseDurationSeconds measures per-phase latency.
	// Labels: phase (retrieval, writer, skeptic, judge, revision)
	PhaseDurationSeconds *prometheus.HistogramVec

	// EvidenceCoverage is the coverage distribution of completed sessions.
	EvidenceCoverage prometheus.Histogram

	// RevisionCycles counts how many revision cycles sessions consumed.
	RevisionCycles prometheus.Histogram

	// RiskFlagsTotal counts emitted risk flags.
	// Labels: code (parse_error, unresolved_critical_contradiction, ...)
	RiskFlagsTotal *prometheus.CounterVec

	// DocumentsIngestedTotal counts ingestion outcomes.
	// Labels: status (ready, error)
	DocumentsIngestedTotal *prometheus.CounterVec

	// ChunksPerDocument is the chunk-count distribution per document.
	ChunksPerDocument prometheus.Histogram

	// ActiveSessions tracks currently running verification sessions.
	ActiveSessions prometheus.Gauge

	// RateLimitedTotal counts requests rejected by the rate limiter.
	// Labels: endpoint
	RateLimitedTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance of PipelineMetrics.
// Initialized by InitMetrics().
var DefaultMetrics *PipelineMetrics

// InitMetrics creates and registers all Prometheus metrics. Call once at
// application startup.
func InitMetrics() *PipelineMetrics {
	DefaultMetrics = &PipelineMetrics{
		SessionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "sessions_total",
				Help:      "Total finished verification sessions by status and mode",
			},
			[]string{"status", "mode"},
		),

		PhaseDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "phase_duration_seconds",
				Help:      "Per-phase latency in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"phase"},
		),

		EvidenceCoverage: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "evidence_coverage",
				Help:      "Evidence coverage of completed sessions",
				Buckets:   []float64{0.1, 0.3, 0.5, 0.7, 0.85, 0.9, 0.95, 1.0},
			},
		),

		RevisionCycles: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "revision_cycles",
				Help:      "Revision cycles consumed per session",
				Buckets:   []float64{0, 1, 2},
			},
		),

		RiskFlagsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "risk_flags_total",
				Help:      "Total risk flags emitted by code",
			},
			[]string{"code"},
		),

		DocumentsIngestedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "ingest",
				Name:      "documents_total",
				Help:      "Total document ingestion outcomes",
			},
			[]string{"status"},
		),

		ChunksPerDocument: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "ingest",
				Name:      "chunks_per_document",
				Help:      "Chunk count distribution per ingested document",
				Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
			},
		),

		ActiveSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: pipelineSubsystem,
				Name:      "active_sessions",
				Help:      "Number of currently running verification sessions",
			},
		),

		RateLimitedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "rate_limited_total",
				Help:      "Requests rejected by the rate limiter by endpoint",
			},
			[]string{"endpoint"},
		),
	}

	return DefaultMetrics
}
