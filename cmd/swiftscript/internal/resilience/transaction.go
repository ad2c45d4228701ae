// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// ErrTransactionClosed is returned when Commit follows Abort or vice versa.
var ErrTransactionClosed = errors.New("transaction already finished in the other phase")

var (
	txTracer = otel.Tracer("swiftscript.resilience")
	txMeter  = otel.Meter("swiftscript.resilience")
)

// Phase is the state of a Transaction.
type Phase int

const (
	// PhaseCaptured means the snapshot is held and writes may be in flight.
	PhaseCaptured Phase = iota

	// PhaseCommitted means all writes succeeded and the snapshot is gone.
	PhaseCommitted

	// PhaseAborted means the snapshot was restored.
	PhaseAborted
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCaptured:
		return "captured"
	case PhaseCommitted:
		return "committed"
	case PhaseAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Transaction is the two-phase wrapper around a Snapshot.
//
// # Description
//
// Begin captures the snapshot. The workflow then registers Abort as an
// interrupt handler before its first write, performs its writes, and calls
// Commit. Whichever of Commit or Abort runs first decides the terminal
// phase.
//
// # Thread Safety
//
// Safe for concurrent use. Abort may be called from a signal drain while
// the workflow goroutine is still running.
type Transaction struct {
	mu         sync.Mutex
	store      Store
	snap       *Snapshot
	phase      Phase
	restoreErr error
	logger     *slog.Logger
	span       trace.Span
}

// TxOption configures a Transaction.
type TxOption func(*Transaction)

// WithLogger sets the transaction logger.
func WithLogger(logger *slog.Logger) TxOption {
	return func(t *Transaction) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Begin captures fields from store and returns a Captured transaction.
func Begin(ctx context.Context, store Store, fields Field, opts ...TxOption) (*Transaction, error) {
	_, span := txTracer.Start(ctx, "resilience.transaction",
		trace.WithAttributes(attribute.String("tx.fields", fields.String())))

	snap, err := Capture(ctx, store, fields)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.End()
		return nil, err
	}

	t := &Transaction{
		store:  store,
		snap:   snap,
		phase:  PhaseCaptured,
		logger: slog.Default(),
		span:   span,
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger.Debug("transaction captured", "fields", fields.String())
	recordPhase(ctx, PhaseCaptured, nil)
	return t, nil
}

// Phase returns the current phase.
func (t *Transaction) Phase() Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.phase
}

// Snapshot returns the captured state. It is nil after Commit.
func (t *Transaction) Snapshot() *Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// Commit marks the writes as complete and discards the snapshot.
//
// # Outputs
//
//   - error: nil, including when already committed; ErrTransactionClosed
//     when the transaction was aborted.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.phase {
	case PhaseCommitted:
		return nil
	case PhaseAborted:
		return ErrTransactionClosed
	}
	t.phase = PhaseCommitted
	t.snap = nil
	t.logger.Debug("transaction committed")
	recordPhase(context.Background(), PhaseCommitted, nil)
	t.span.SetAttributes(attribute.String("tx.phase", PhaseCommitted.String()))
	t.span.SetStatus(codes.Ok, "")
	t.span.End()
	return nil
}

// Abort restores the snapshot.
//
// # Description
//
// The first Abort restores and moves to PhaseAborted. A later Abort is a
// no-op unless the earlier restore failed, in which case the restore is
// retried; Restore is idempotent so a retry can only help. Cancellation of
// ctx does not stop the restore.
//
// # Outputs
//
//   - error: Restore failures; ErrTransactionClosed after Commit.
func (t *Transaction) Abort(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.phase {
	case PhaseCommitted:
		return ErrTransactionClosed
	case PhaseAborted:
		if t.restoreErr == nil {
			return nil
		}
	}

	first := t.phase == PhaseCaptured
	t.phase = PhaseAborted
	t.restoreErr = Restore(ctx, t.store, t.snap)
	recordPhase(ctx, PhaseAborted, t.restoreErr)

	if t.restoreErr != nil {
		t.logger.Error("restore failed", "fields", t.snap.Fields().String(), "error", t.restoreErr)
	} else {
		t.logger.Info("restored original state", "fields", t.snap.Fields().String())
	}
	if first {
		t.span.SetAttributes(attribute.String("tx.phase", PhaseAborted.String()))
		if t.restoreErr != nil {
			t.span.RecordError(t.restoreErr)
			t.span.SetStatus(codes.Error, t.restoreErr.Error())
		}
		t.span.End()
	}
	return t.restoreErr
}

// =============================================================================
// Metrics
// =============================================================================

var (
	phaseTotal    metric.Int64Counter
	restoreErrors metric.Int64Counter
	metricsOnce   sync.Once
	metricsErr    error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		phaseTotal, err = txMeter.Int64Counter(
			"swiftscript_transaction_phase_total",
			metric.WithDescription("Transactions entering each phase"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		restoreErrors, err = txMeter.Int64Counter(
			"swiftscript_transaction_restore_errors_total",
			metric.WithDescription("Snapshot restores that failed"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func recordPhase(ctx context.Context, phase Phase, err error) {
	if initMetrics() != nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	phaseTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase.String())))
	if err != nil {
		restoreErrors.Add(ctx, 1)
	}
}
