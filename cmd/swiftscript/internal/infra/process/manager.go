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
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"
)

// DefaultWaitDelay bounds how long an interrupted child may take to exit
// before it is killed.
const DefaultWaitDelay = 10 * time.Second

// Command describes one external program invocation.
type Command struct {
	// Name is the program, resolved through PATH unless it has a separator.
	Name string

	// Args are passed to the program.
	Args []string

	// Dir is the working directory. Default: current directory.
	Dir string

	// Stdin is connected to the child when non-nil.
	Stdin io.Reader

	// Stdout, when non-nil, receives the child's output instead of it being
	// captured in Result.Stdout.
	Stdout io.Writer

	// Stderr, when non-nil, also receives the child's error output. Stderr
	// is always captured for error reporting.
	Stderr io.Writer
}

// String renders the command line.
func (c Command) String() string {
	return strings.Join(append([]string{c.Name}, c.Args...), " ")
}

// Result is the captured outcome of a successful Run.
type Result struct {
	Stdout []byte
	Stderr []byte
}

// Manager runs external programs.
//
// # Description
//
// All subprocesses (the swift toolchain, compiled scripts) go through this
// interface so tests can substitute MockManager.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Manager interface {
	// Run executes cmd and waits for it.
	//
	// # Outputs
	//
	//   - Result: Captured stdout (unless redirected) and stderr.
	//   - error: *ExternalCommandError on non-zero exit or start failure;
	//     the cancellation cause when ctx ends first.
	Run(ctx context.Context, cmd Command) (Result, error)
}

// DefaultManager implements Manager with os/exec.
//
// # Description
//
// Cancellation is cooperative: ctx is checked before the child starts, and
// when ctx ends while it runs the child receives os.Interrupt (a kill on
// windows) and is given WaitDelay to flush and exit before it is killed.
type DefaultManager struct {
	WaitDelay time.Duration
	Logger    *slog.Logger
}

// NewDefaultManager creates a manager with DefaultWaitDelay.
func NewDefaultManager() *DefaultManager {
	return &DefaultManager{WaitDelay: DefaultWaitDelay, Logger: slog.Default()}
}

// Run implements Manager.
func (m *DefaultManager) Run(ctx context.Context, cmd Command) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, fmt.Errorf("%s not started: %w", cmd.Name, context.Cause(ctx))
	}
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Stdin = cmd.Stdin
	c.Cancel = func() error {
		if runtime.GOOS == "windows" {
			return c.Process.Kill()
		}
		return c.Process.Signal(os.Interrupt)
	}
	c.WaitDelay = m.WaitDelay

	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	if cmd.Stdout != nil {
		c.Stdout = cmd.Stdout
	}
	c.Stderr = &stderr
	if cmd.Stderr != nil {
		c.Stderr = io.MultiWriter(cmd.Stderr, &stderr)
	}

	logger.Debug("running external command", "command", cmd.String(), "dir", cmd.Dir)
	start := time.Now()
	err := c.Run()
	recordCommand(ctx, cmd.Name, err)
	logger.Debug("external command finished", "command", cmd.Name, "elapsed", time.Since(start), "error", err)

	if ctx.Err() != nil {
		return Result{}, fmt.Errorf("%s interrupted: %w", cmd.Name, context.Cause(ctx))
	}
	if err != nil {
		return Result{}, commandError(cmd, err, stderr.String())
	}
	return Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}, nil
}

func commandError(cmd Command, err error, stderr string) *ExternalCommandError {
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &exitErr):
		return NewExternalCommandError(cmd.String(), exitErr.ExitCode(), stderr, err)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return NewExternalCommandError(cmd.String(), ExitCommandNotFound,
			"command not found: "+cmd.Name, err)
	default:
		return NewExternalCommandError(cmd.String(), -1, stderr, err)
	}
}

// =============================================================================
// Mock Implementation
// =============================================================================

// MockManager records calls and delegates to RunFunc.
type MockManager struct {
	// RunFunc handles Run. Panics if nil.
	RunFunc func(ctx context.Context, cmd Command) (Result, error)

	// Calls records every invocation in order.
	Calls []Command

	mu sync.Mutex
}

// Run implements Manager.
func (m *MockManager) Run(ctx context.Context, cmd Command) (Result, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, cmd)
	fn := m.RunFunc
	m.mu.Unlock()
	if fn == nil {
		panic("MockManager.RunFunc not set")
	}
	return fn(ctx, cmd)
}

// GetCalls returns a copy of the recorded calls.
func (m *MockManager) GetCalls() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Command, len(m.Calls))
	copy(out, m.Calls)
	return out
}

var (
	_ Manager = (*DefaultManager)(nil)
	_ Manager = (*MockManager)(nil)
)
