// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry trace and metric providers
// for one CLI invocation.
//
// swiftscript is short-lived, so there is no /metrics endpoint: the
// prometheus exporter gathers into a private registry that is written to a
// node-exporter textfile when the command exits.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrNilContext is returned by Init when ctx is nil.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unrecognised exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls telemetry. Exporter names match the config.yaml values.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// TraceExporter is "none", "stdout" or "otlp".
	TraceExporter string

	// MetricExporter is "none", "stdout" or "prometheus".
	MetricExporter string

	// OTLPEndpoint is the gRPC collector address. Default: localhost:4317
	OTLPEndpoint string

	// OTLPInsecure disables TLS to the collector.
	OTLPInsecure bool

	// MetricsTextfile is written on shutdown by the prometheus exporter.
	MetricsTextfile string

	// Output receives stdout exporter output. Default: os.Stderr, so that
	// script output on stdout stays clean.
	Output io.Writer
}

// DefaultConfig disables both exporters.
func DefaultConfig() Config {
	return Config{
		ServiceName:    "swiftscript",
		ServiceVersion: "dev",
		TraceExporter:  "none",
		MetricExporter: "none",
		OTLPEndpoint:   "localhost:4317",
		OTLPInsecure:   true,
	}
}

// Init installs the global providers selected by cfg.
//
// # Outputs
//
//   - shutdown: Flushes exporters, writes the metrics textfile and releases
//     resources. Must be called before exit; safe when nothing was enabled.
//   - error: ErrNilContext, ErrUnknownExporter, or an exporter failure.
func Init(ctx context.Context, cfg Config) (shutdown func(context.Context) error, err error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	var shutdownFuncs []func(context.Context) error
	shutdown = func(ctx context.Context) error {
		var errs []error
		for _, fn := range shutdownFuncs {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	if cfg.TraceExporter != "" && cfg.TraceExporter != "none" {
		tp, err := initTracer(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		otel.SetTracerProvider(tp)
		shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	}

	if cfg.MetricExporter != "" && cfg.MetricExporter != "none" {
		mp, flush, err := initMeter(cfg, res)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		otel.SetMeterProvider(mp)
		if flush != nil {
			shutdownFuncs = append(shutdownFuncs, flush)
		}
		shutdownFuncs = append(shutdownFuncs, mp.Shutdown)
	}

	return shutdown, nil
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*trace.TracerProvider, error) {
	var exporter trace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(cfg.Output), stdouttrace.WithPrettyPrint())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	// The process exits right after the command, so spans are exported
	// synchronously instead of batched.
	return trace.NewTracerProvider(
		trace.WithSyncer(exporter),
		trace.WithResource(res),
		trace.WithSampler(trace.AlwaysSample()),
	), nil
}

// initMeter returns the provider plus an optional flush step that must run
// before the provider shuts down.
func initMeter(cfg Config, res *resource.Resource) (*metric.MeterProvider, func(context.Context) error, error) {
	switch cfg.MetricExporter {
	case "prometheus":
		if cfg.MetricsTextfile == "" {
			return nil, nil, errors.New("prometheus exporter requires a metrics textfile")
		}
		reg := prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(reg))
		if err != nil {
			return nil, nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		flush := func(context.Context) error {
			if err := prometheus.WriteToTextfile(cfg.MetricsTextfile, reg); err != nil {
				return fmt.Errorf("write metrics textfile: %w", err)
			}
			return nil
		}
		return metric.NewMeterProvider(metric.WithResource(res), metric.WithReader(exporter)), flush, nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Output), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return metric.NewMeterProvider(
			metric.WithResource(res),
			metric.WithReader(metric.NewPeriodicReader(exporter)),
		), nil, nil

	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}
