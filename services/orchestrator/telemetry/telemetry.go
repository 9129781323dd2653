// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry trace and meter providers
// for the orchestrator.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Exporter names.
const (
	ExporterNone       = "none"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterPrometheus = "prometheus"
)

var (
	// ErrUnknownExporter is returned for an exporter name Init does not know.
	ErrUnknownExporter = errors.New("unknown exporter")

	// ErrMissingEndpoint is returned when the OTLP exporter has no endpoint.
	ErrMissingEndpoint = errors.New("OTLP exporter requires an endpoint")
)

// Config selects the exporters.
type Config struct {
	// ServiceName identifies this process in traces and metrics.
	ServiceName string

	// TraceExporter is otlp, stdout or none. Empty means otlp when
	// OTLPEndpoint is set and none otherwise.
	TraceExporter string

	// MetricExporter is prometheus, stdout or none. Empty means none.
	MetricExporter string

	// OTLPEndpoint is the collector gRPC address.
	OTLPEndpoint string

	// Registerer receives the Prometheus metric exporter. Nil means the
	// default registry.
	Registerer prometheus.Registerer
}

// Shutdown flushes and stops the providers installed by Init.
type Shutdown func(ctx context.Context) error

// Init installs the global trace and meter providers.
//
// # Description
//
// Traces go to an OTLP collector over insecure gRPC or to stdout. Metrics
// recorded through otel.Meter are bridged into a Prometheus registry or
// printed periodically to stdout. A "none" exporter leaves the matching
// global provider untouched.
//
// # Outputs
//
//   - Shutdown: Always non-nil when err is nil. Must be called on exit.
//   - error: Unknown exporter name or exporter construction failure.
//
// # Limitations
//
//   - Uses an insecure gRPC connection (appropriate for internal networks)
func Init(ctx context.Context, cfg Config) (Shutdown, error) {
	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdowns) - 1; i >= 0; i-- {
			if err := shutdowns[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String(cfg.ServiceName)))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	traceExporter := cfg.TraceExporter
	if traceExporter == "" {
		traceExporter = ExporterNone
		if cfg.OTLPEndpoint != "" {
			traceExporter = ExporterOTLP
		}
	}
	if traceExporter != ExporterNone {
		tp, closeConn, err := newTracerProvider(ctx, traceExporter, cfg.OTLPEndpoint, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
			propagation.TraceContext{}, propagation.Baggage{}))
		shutdowns = append(shutdowns, closeConn, tp.Shutdown)
	}

	if cfg.MetricExporter != "" && cfg.MetricExporter != ExporterNone {
		mp, err := newMeterProvider(cfg.MetricExporter, cfg.Registerer, res)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return shutdown, nil
}

// newTracerProvider builds a provider for the named exporter. The
// returned closer releases the gRPC connection, if any.
func newTracerProvider(ctx context.Context, name, endpoint string, res *resource.Resource) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }

	var exporter sdktrace.SpanExporter
	closeConn := noop

	switch name {
	case ExporterOTLP:
		if endpoint == "" {
			return nil, nil, ErrMissingEndpoint
		}
		conn, err := grpc.NewClient(endpoint,
			grpc.WithTransportCredentials(insecure.NewCredentials()))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create gRPC connection: %w", err)
		}
		exporter, err = otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
		if err != nil {
			conn.Close()
			return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}
		closeConn = func(context.Context) error { return conn.Close() }

	case ExporterStdout:
		var err error
		exporter, err = stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create trace exporter: %w", err)
		}

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, name)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	return tp, closeConn, nil
}

// stdoutMetricInterval is how often the stdout metric exporter prints.
const stdoutMetricInterval = 30 * time.Second

// newMeterProvider builds a provider for the named exporter.
func newMeterProvider(name string, reg prometheus.Registerer, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	switch name {
	case ExporterPrometheus:
		opts := []promexporter.Option{promexporter.WithNamespace("metadag")}
		if reg != nil {
			opts = append(opts, promexporter.WithRegisterer(reg))
		}
		exporter, err := promexporter.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		), nil

	case ExporterStdout:
		exporter, err := stdoutmetric.New(stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter,
				sdkmetric.WithInterval(stdoutMetricInterval))),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, name)
	}
}
