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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/cancel"
)

// RunOptions are the inputs of Run.
type RunOptions struct {
	// Script is the path of the source file.
	Script string

	// Args are passed to the script.
	Args []string

	// BuildArgs are passed through to swift build.
	BuildArgs []string
}

// Run builds a script inside the runner package and executes it.
//
// # Description
//
// The script is copied into runner/Sources and built under the lock; the
// product is moved to a private exec/<uuid> path and the placeholder
// source is put back before the lock is released. The script then runs
// outside the lock, so several scripts can run at once. The exec copy is
// removed on every exit path.
//
// # Outputs
//
//   - error: *process.ExternalCommandError from the build, or from the
//     script itself carrying its exit code.
func (w *Workflow) Run(ctx context.Context, opts RunOptions) (err error) {
	if opts.Script == "" {
		return fmt.Errorf("%w: script path is required", ErrInvalidArguments)
	}
	source, err := os.ReadFile(opts.Script)
	if err != nil {
		return fmt.Errorf("read script: %w", err)
	}
	if err := w.env.CheckInitialized(); err != nil {
		return err
	}
	ctx, span := startSpan(ctx, "run", attribute.String("script", filepath.Base(opts.Script)))
	defer func() { endSpan(span, err) }()

	execPath := w.env.NewExecPath()
	w.logger.Debug("allocated execution path", "path", execPath)
	withdraw := w.ctl.Register(cancel.Always, "remove script executable", func() error {
		return removeIfExists(execPath)
	})
	defer func() {
		withdraw()
		if rerr := removeIfExists(execPath); rerr != nil {
			w.logger.Warn("failed to remove script executable", "path", execPath, "error", rerr)
		}
	}()

	err = w.lock.WithLock(ctx, func(ctx context.Context) (err error) {
		defer func() {
			if rerr := w.env.ResetSources(context.WithoutCancel(ctx)); rerr != nil {
				err = errors.Join(err, fmt.Errorf("restore placeholder script: %w", rerr))
			}
		}()

		typ, err := w.env.InstallScript(ctx, source)
		if err != nil {
			return err
		}
		w.logger.Debug("script type identified", "type", typ.String())
		span.SetAttributes(attribute.String("script.type", typ.String()))

		if err := w.tc.Build(ctx, w.env.RunnerDir(), opts.BuildArgs); err != nil {
			return err
		}
		if err := os.MkdirAll(w.env.ExecDir(), 0o755); err != nil {
			return err
		}
		return os.Rename(w.env.ProductPath(), execPath)
	})
	if err != nil {
		return err
	}

	w.logger.Debug("executing script", "path", execPath, "args", opts.Args)
	return w.tc.RunExecutable(ctx, execPath, opts.Args)
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
