// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the orchestrator.
//
// # Description
//
// Metrics cover:
//   - HTTP requests by endpoint and status class
//   - Duration of the pipeline stages (lint, audit, generate, deploy)
//   - Model repair attempts by template and outcome
//   - Deployments by network and error kind
//
// Metrics are registered against a caller-supplied registry so that each
// service instance (and each test) owns its own collectors. They are
// exposed via the /metrics endpoint.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

// Namespace for all metrics
const metricsNamespace = "metadag"

// Metrics holds all Prometheus collectors for the orchestrator.
//
// # Fields
//
//   - RequestsTotal: Counter of HTTP requests by endpoint and status
//   - StageDurationSeconds: Histogram of pipeline stage durations
//   - RepairsTotal: Counter of model repair attempts
//   - DeploymentsTotal: Counter of deployments by network and outcome
//
// # Thread Safety
//
// All operations are thread-safe.
type Metrics struct {
	// RequestsTotal counts HTTP requests.
	// Labels: endpoint (audit, deploy, ...), status (success, client_error, error)
	RequestsTotal *prometheus.CounterVec

	// StageDurationSeconds measures each pipeline stage.
	// Labels: stage (lint, audit, generate, deploy)
	StageDurationSeconds *prometheus.HistogramVec

	// RepairsTotal counts model repair attempts.
	// Labels: template (audit, repair), outcome (repaired, model_error, ...)
	RepairsTotal *prometheus.CounterVec

	// DeploymentsTotal counts deployment attempts.
	// Labels: network, outcome (success or an error kind)
	DeploymentsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all collectors on reg.
//
// # Inputs
//
//   - reg: Registry to register with. Use prometheus.NewRegistry() in tests.
//
// # Outputs
//
//   - *Metrics: The initialized metrics.
//
// # Limitations
//
//   - Panics if reg already holds collectors with the same names.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "http",
				Name:      "requests_total",
				Help:      "Total number of HTTP requests by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		StageDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
			},
			[]string{"stage"},
		),

		RepairsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "repairs_total",
				Help:      "Total model repair attempts by template and outcome",
			},
			[]string{"template", "outcome"},
		),

		DeploymentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: "pipeline",
				Name:      "deployments_total",
				Help:      "Total deployment attempts by network and outcome",
			},
			[]string{"network", "outcome"},
		),
	}
}

// =============================================================================
// Endpoint and Stage Names
// =============================================================================

// Endpoint labels an HTTP endpoint for metrics.
type Endpoint string

const (
	EndpointAudit          Endpoint = "audit"
	EndpointValidate       Endpoint = "validate"
	EndpointLint           Endpoint = "solhint_only"
	EndpointGenerate       Endpoint = "generate"
	EndpointDeploy         Endpoint = "deploy"
	EndpointSaveChat       Endpoint = "save_chat_history"
	EndpointGetChat        Endpoint = "get_chat_history"
	EndpointDeleteChat     Endpoint = "delete_chat_history"
	EndpointSaveDeployment Endpoint = "save_deployment"
	EndpointGetDeployments Endpoint = "get_deployments"
)

// Stage labels a pipeline stage.
type Stage string

const (
	StageLint     Stage = "lint"
	StageAudit    Stage = "audit"
	StageGenerate Stage = "generate"
	StageDeploy   Stage = "deploy"
)

// Request status labels.
const (
	StatusSuccess     = "success"
	StatusClientError = "client_error"
	StatusError       = "error"
)

// =============================================================================
// Helper Methods
// =============================================================================

// RecordRequest records a completed request. status is one of the Status*
// constants.
func (m *Metrics) RecordRequest(endpoint Endpoint, status string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(string(endpoint), status).Inc()
}

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDurationSeconds.WithLabelValues(string(stage)).Observe(d.Seconds())
}

// RecordRepair records one model repair attempt.
func (m *Metrics) RecordRepair(template, outcome string) {
	if m == nil {
		return
	}
	m.RepairsTotal.WithLabelValues(template, outcome).Inc()
}

// RecordDeployment records one deployment attempt. errorKind is empty on
// success.
func (m *Metrics) RecordDeployment(network string, success bool, errorKind string) {
	if m == nil {
		return
	}
	outcome := errorKind
	if success {
		outcome = StatusSuccess
	} else if outcome == "" {
		outcome = StatusError
	}
	m.DeploymentsTotal.WithLabelValues(network, outcome).Inc()
}
