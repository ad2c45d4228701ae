// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Package-level meter for lock and subprocess metrics.
var meter = otel.Meter("swiftscript.process")

var (
	lockAcquireTotal metric.Int64Counter
	lockWaitSeconds  metric.Float64Histogram
	lockHoldSeconds  metric.Float64Histogram
	lockStallTotal   metric.Int64Counter
	commandTotal     metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics initializes all metric instruments.
// Safe to call multiple times; uses sync.Once internally.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		lockAcquireTotal, err = meter.Int64Counter(
			"swiftscript_lock_acquire_total",
			metric.WithDescription("Lock acquisitions by outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		lockWaitSeconds, err = meter.Float64Histogram(
			"swiftscript_lock_wait_seconds",
			metric.WithDescription("Time spent waiting for the installation lock"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		lockHoldSeconds, err = meter.Float64Histogram(
			"swiftscript_lock_hold_seconds",
			metric.WithDescription("Time the installation lock was held"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		lockStallTotal, err = meter.Int64Counter(
			"swiftscript_lock_stall_total",
			metric.WithDescription("Acquisitions that exceeded the stall threshold"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		commandTotal, err = meter.Int64Counter(
			"swiftscript_external_command_total",
			metric.WithDescription("External commands run, by program and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordAcquire(ctx context.Context, waited time.Duration, stalled bool, err error) {
	if initMetrics() != nil {
		return
	}
	outcome := "acquired"
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "cancelled"
	default:
		outcome = "error"
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	lockAcquireTotal.Add(ctx, 1, attrs)
	lockWaitSeconds.Record(ctx, waited.Seconds(), attrs)
	if stalled {
		lockStallTotal.Add(ctx, 1)
	}
}

func recordHold(ctx context.Context, held time.Duration) {
	if initMetrics() != nil {
		return
	}
	lockHoldSeconds.Record(ctx, held.Seconds())
}

func recordCommand(ctx context.Context, program string, err error) {
	if initMetrics() != nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	commandTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("program", program),
		attribute.String("outcome", outcome),
	))
}
