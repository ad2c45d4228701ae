// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workflow

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/config"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/appenv"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/cancel"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/infra/process"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/resilience"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/toolchain"
)

// RestoreMessage is printed to stderr whenever a transaction is aborted.
const RestoreMessage = "Restoring original package manifest and installed packages"

var tracer = otel.Tracer("swiftscript.workflow")

// Config wires a Workflow to its collaborators.
type Config struct {
	// Env is the installation directory. Required.
	Env *appenv.Env

	// Toolchain runs swift and lists tags. Required.
	Toolchain toolchain.Toolchain

	// Controller receives the abort handler of every transaction.
	// Default: a controller that never sees OS signals.
	Controller *cancel.Controller

	// Lock serializes mutating workflows. Default: Env.Lock.
	Lock process.Locker

	// Out receives progress lines, Err the restore notice.
	// Default: io.Discard
	Out io.Writer
	Err io.Writer

	// In answers confirmation prompts when Interactive is set.
	In          io.Reader
	Interactive bool

	Logger *slog.Logger
}

// Workflow runs the user-facing commands against one installation.
//
// # Description
//
// Every mutating workflow follows the same discipline: take the
// ProcessLock, capture a snapshot of the state it will touch, register the
// snapshot's Abort with the cancellation controller, write, then commit.
// Any error or cancellation while the transaction is open aborts it before
// the lock is released.
//
// # Thread Safety
//
// Safe for concurrent use; the lock serializes the mutating parts.
type Workflow struct {
	env         *appenv.Env
	tc          toolchain.Toolchain
	ctl         *cancel.Controller
	lock        process.Locker
	outMu       sync.Mutex
	out         io.Writer
	errOut      io.Writer
	in          *bufio.Reader
	interactive bool
	logger      *slog.Logger
}

// New validates cfg and returns a Workflow.
func New(cfg Config) (*Workflow, error) {
	if cfg.Env == nil {
		return nil, errors.New("workflow: Env is required")
	}
	if cfg.Toolchain == nil {
		return nil, errors.New("workflow: Toolchain is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Controller == nil {
		cfg.Controller = cancel.New(cancel.WithSignals(), cancel.WithLogger(cfg.Logger))
	}
	if cfg.Lock == nil {
		cfg.Lock = cfg.Env.Lock(process.LockConfig{Logger: cfg.Logger})
	}
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Err == nil {
		cfg.Err = io.Discard
	}
	if cfg.In == nil {
		cfg.In = strings.NewReader("")
	}
	return &Workflow{
		env:         cfg.Env,
		tc:          cfg.Toolchain,
		ctl:         cfg.Controller,
		lock:        cfg.Lock,
		out:         cfg.Out,
		errOut:      cfg.Err,
		in:          bufio.NewReader(cfg.In),
		interactive: cfg.Interactive,
		logger:      cfg.Logger,
	}, nil
}

// printf writes one progress line. update --all prints from several
// goroutines.
func (w *Workflow) printf(format string, args ...any) {
	w.outMu.Lock()
	defer w.outMu.Unlock()
	fmt.Fprintf(w.out, format+"\n", args...)
}

// startSpan opens a span for one workflow.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "workflow."+name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// =============================================================================
// Transactions
// =============================================================================

// errNothingToDo ends a workflow from its check stage without opening a
// transaction.
var errNothingToDo = errors.New("nothing to do")

// transact runs body under the ProcessLock inside a snapshot transaction
// over fields.
//
// # Description
//
//  1. Acquire the lock (cancellable while waiting).
//  2. Run check, if any. It sees the locked state but must not write it;
//     a failure here returns without capturing anything, and
//     errNothingToDo ends the workflow successfully.
//  3. Capture fields.
//  4. Register Abort as an interrupt handler, before any write.
//  5. Run body.
//  6. Commit if body succeeded and ctx is still live; abort otherwise.
//
// The abort happens while the lock is still held, so no other process can
// observe the half-written state. The registered handler only matters if
// the drain runs before body returns; a second Abort is a no-op.
func (w *Workflow) transact(ctx context.Context, fields resilience.Field, check func(ctx context.Context) error, body func(ctx context.Context, tx *resilience.Transaction) error) error {
	return w.lock.WithLock(ctx, func(ctx context.Context) error {
		if check != nil {
			if err := check(ctx); err != nil {
				if errors.Is(err, errNothingToDo) {
					return nil
				}
				return err
			}
			if ctx.Err() != nil {
				return context.Cause(ctx)
			}
		}

		tx, err := resilience.Begin(ctx, w.env, fields, resilience.WithLogger(w.logger))
		if err != nil {
			return err
		}
		withdraw := w.ctl.Register(cancel.Interrupt, "restore "+fields.String(), func() error {
			return w.abort(context.Background(), tx)
		})
		defer withdraw()

		err = body(ctx, tx)
		if err == nil && ctx.Err() != nil {
			err = context.Cause(ctx)
		}
		if err != nil {
			if aerr := w.abort(ctx, tx); aerr != nil {
				return errors.Join(err, fmt.Errorf("restore failed: %w", aerr))
			}
			return err
		}
		return tx.Commit()
	})
}

func (w *Workflow) abort(ctx context.Context, tx *resilience.Transaction) error {
	if tx.Phase() != resilience.PhaseCaptured {
		err := tx.Abort(ctx)
		if errors.Is(err, resilience.ErrTransactionClosed) {
			return nil
		}
		return err
	}
	fmt.Fprintln(w.errOut, RestoreMessage)
	return tx.Abort(ctx)
}

// =============================================================================
// Shared steps
// =============================================================================

// manifestOptions resolves the tools version and platform for the manifest
// header. Config values win over what the toolchain reports.
func (w *Workflow) manifestOptions(ctx context.Context, cfg config.SwiftScriptConfig) (registry.ManifestOptions, error) {
	var opts registry.ManifestOptions
	if cfg.SwiftVersion != nil {
		opts.ToolsVersion = *cfg.SwiftVersion
	} else {
		v, err := w.tc.ToolsVersion(ctx)
		if err != nil {
			return opts, fmt.Errorf("detect swift version: %w", err)
		}
		opts.ToolsVersion = v
	}
	if cfg.MacOSVersion != nil {
		v := *cfg.MacOSVersion
		opts.MacOSVersion = &v
	} else {
		v, err := w.tc.HostMacOSVersion(ctx)
		if err != nil {
			return opts, fmt.Errorf("detect macOS version: %w", err)
		}
		opts.MacOSVersion = v
	}
	return opts, nil
}

// saveState writes packages.json and the manifest generated from it.
func (w *Workflow) saveState(ctx context.Context, reg registry.Registry, opts registry.ManifestOptions) error {
	w.printf("Saving updated installed packages")
	if err := w.env.SavePackages(ctx, reg); err != nil {
		return err
	}
	w.printf("Saving updated runner package manifest")
	return w.env.WriteManifest(ctx, reg, opts)
}

// buildRunner builds the runner, or only resolves it when noBuild is set.
func (w *Workflow) buildRunner(ctx context.Context, noBuild bool, args []string) error {
	if noBuild {
		w.printf("Resolving (will not build since `--no-build` is set)")
		return w.tc.Resolve(ctx, w.env.RunnerDir())
	}
	w.printf("Building")
	return w.tc.Build(ctx, w.env.RunnerDir(), args)
}

// probeLibraries discovers the library products of a package before it is
// added to the runner, using a throwaway package under temp/.
func (w *Workflow) probeLibraries(ctx context.Context, url, identity string, req registry.Requirement, opts registry.ManifestOptions) ([]string, error) {
	var libs []string
	err := w.env.WithTempDir(ctx, func(dir string) error {
		manifest := registry.RenderProbeManifest(url, req, opts)
		if err := writeFile(ctx, filepath.Join(dir, "Package.swift"), manifest); err != nil {
			return err
		}
		if err := w.tc.Resolve(ctx, dir); err != nil {
			return err
		}
		var err error
		libs, err = w.tc.DescribeProducts(ctx, filepath.Join(dir, ".build", "checkouts", identity))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch products of %s: %w", identity, err)
	}
	return libs, nil
}

// confirm asks a yes/no question. Only "y" and "yes" are a yes.
func (w *Workflow) confirm(ctx context.Context, question string) (bool, error) {
	if !w.interactive {
		return false, ErrConfirmationRequired
	}
	fmt.Fprint(w.out, question+" ")
	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := w.in.ReadString('\n')
		ch <- answer{line, err}
	}()
	select {
	case <-ctx.Done():
		return false, context.Cause(ctx)
	case a := <-ch:
		if a.err != nil && !errors.Is(a.err, io.EOF) {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}

func writeFile(ctx context.Context, path string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	return os.WriteFile(path, data, 0o644)
}
