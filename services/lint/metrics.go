// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lint

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Package-level tracer and meter for lint operations.
var (
	tracer = otel.Tracer("metadag.lint")
	meter  = otel.Meter("metadag.lint")
)

// Metrics for lint operations.
var (
	lintLatency   metric.Float64Histogram
	lintTotal     metric.Int64Counter
	errorsFound   metric.Int64Counter
	warningsFound metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes the metrics. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		lintLatency, err = meter.Float64Histogram(
			"lint_duration_seconds",
			metric.WithDescription("Duration of solhint runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		lintTotal, err = meter.Int64Counter(
			"lint_total",
			metric.WithDescription("Total number of solhint runs"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		errorsFound, err = meter.Int64Counter(
			"lint_errors_found_total",
			metric.WithDescription("Total number of solhint error lines"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		warningsFound, err = meter.Int64Counter(
			"lint_warnings_found_total",
			metric.WithDescription("Total number of solhint warning lines"),
		)
		if err != nil {
			metricsErr = err
		}
	})
	return metricsErr
}

// startLintSpan creates a span for a lint run.
func startLintSpan(ctx context.Context, command string, sourceBytes int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Runner.Lint",
		trace.WithAttributes(
			attribute.String("lint.command", command),
			attribute.Int("lint.source_bytes", sourceBytes),
		),
	)
}

// setLintSpanResult sets the result attributes on a lint span.
func setLintSpanResult(span trace.Span, result *Result) {
	span.SetAttributes(
		attribute.Int("lint.error_count", len(result.Errors)),
		attribute.Int("lint.warning_count", len(result.Warnings)),
		attribute.Int("lint.issue_count", len(result.Issues)),
		attribute.Bool("lint.linter_available", result.Available),
		attribute.Bool("lint.fault", result.Error != ""),
	)
}

// recordLintMetrics records metrics for a lint run.
func recordLintMetrics(ctx context.Context, result *Result) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.Bool("success", result.Success),
		attribute.Bool("available", result.Available),
	)
	lintLatency.Record(ctx, result.Duration.Seconds(), attrs)
	lintTotal.Add(ctx, 1, attrs)

	if result.Error == "" {
		errorsFound.Add(ctx, int64(len(result.Errors)))
		warningsFound.Add(ctx, int64(len(result.Warnings)))
	}
}
