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
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Saga Step
// =============================================================================

// SagaStep is one forward action with its undo.
//
// # Example
//
//	step := SagaStep{
//	    Name: "create runner directory",
//	    Execute: func(ctx context.Context) error {
//	        return os.MkdirAll(runnerDir, 0o755)
//	    },
//	    Compensate: func(ctx context.Context) error {
//	        return os.RemoveAll(runnerDir)
//	    },
//	}
//
// # Limitations
//
//   - Compensate should be idempotent and tolerate "already gone".
//   - Compensate may be nil when there is nothing to undo.
type SagaStep struct {
	// Name identifies the step in logs.
	Name string

	// Execute performs the forward action. It should respect ctx.
	Execute func(ctx context.Context) error

	// Compensate undoes Execute. It receives a context that is never
	// cancelled.
	Compensate func(ctx context.Context) error
}

// SagaConfig configures a Saga.
type SagaConfig struct {
	// Logger receives step progress. Default: slog.Default()
	Logger *slog.Logger

	// OnCompensate is called after each compensation attempt.
	OnCompensate func(step SagaStep, err error)
}

// =============================================================================
// Saga
// =============================================================================

// Saga runs steps in order and compensates completed steps in reverse
// order when a step fails or ctx is cancelled between steps.
//
// There are no step timeouts: a step runs until it returns, and
// cancellation is observed by the step itself and between steps.
type Saga struct {
	config    SagaConfig
	steps     []SagaStep
	completed []SagaStep
	lastError error
	mu        sync.Mutex
}

// NewSaga creates an empty saga.
func NewSaga(config SagaConfig) *Saga {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	return &Saga{config: config}
}

// AddStep appends a step.
func (s *Saga) AddStep(step SagaStep) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.steps = append(s.steps, step)
}

// Execute runs all steps.
//
// # Outputs
//
//   - error: nil when every step succeeded. Otherwise the step error (or
//     ctx.Err()) joined with any compensation failures, after completed
//     steps were compensated.
func (s *Saga) Execute(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.completed = s.completed[:0]
	s.lastError = nil

	for _, step := range s.steps {
		if err := ctx.Err(); err != nil {
			s.lastError = fmt.Errorf("cancelled before step %q: %w", step.Name, context.Cause(ctx))
			return s.fail(ctx)
		}

		start := time.Now()
		if err := step.Execute(ctx); err != nil {
			s.config.Logger.Debug("step failed", "step", step.Name, "duration", time.Since(start), "error", err)
			s.lastError = fmt.Errorf("step %q: %w", step.Name, err)
			return s.fail(ctx)
		}
		s.config.Logger.Debug("step completed", "step", step.Name, "duration", time.Since(start))
		s.completed = append(s.completed, step)
	}
	return nil
}

func (s *Saga) fail(ctx context.Context) error {
	if cerr := s.compensate(ctx); cerr != nil {
		return errors.Join(s.lastError, cerr)
	}
	return s.lastError
}

// compensate undoes completed steps, newest first. Every step is attempted.
func (s *Saga) compensate(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(s.completed) - 1; i >= 0; i-- {
		step := s.completed[i]
		if step.Compensate == nil {
			continue
		}
		err := step.Compensate(ctx)
		if err != nil {
			s.config.Logger.Warn("compensation failed", "step", step.Name, "error", err)
			errs = append(errs, fmt.Errorf("compensate %q: %w", step.Name, err))
		} else {
			s.config.Logger.Debug("compensated step", "step", step.Name)
		}
		if s.config.OnCompensate != nil {
			s.config.OnCompensate(step, err)
		}
	}
	s.completed = s.completed[:0]
	return errors.Join(errs...)
}

// CompletedSteps returns names of steps that succeeded and were not
// compensated.
func (s *Saga) CompletedSteps() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.completed))
	for i, step := range s.completed {
		names[i] = step.Name
	}
	return names
}

// LastError returns the error that caused the last Execute to fail.
func (s *Saga) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastError
}
