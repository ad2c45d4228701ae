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
	"os"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/config"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/appenv"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/resilience"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
)

// InitOptions are the inputs of Init.
type InitOptions struct {
	// SwiftPath is stored in config.yaml. Empty means swift from PATH.
	SwiftPath string

	// SwiftVersion pins the manifest tools version.
	SwiftVersion *semver.Version
}

// Init creates the installation layout, the runner package and its first
// manifest.
//
// # Description
//
// The steps run as a saga under the lock. When a step fails or the
// command is interrupted, the completed steps are undone newest first, so
// an interrupted init leaves no partial installation behind. The lock file
// itself is left in place.
func (w *Workflow) Init(ctx context.Context, opts InitOptions) (err error) {
	switch err := w.env.CheckInitialized(); {
	case err == nil:
		return fmt.Errorf("%w at %s", ErrAlreadyInitialized, w.env.Home())
	case !errors.Is(err, appenv.ErrNotInitialized):
		return err
	}
	ctx, span := startSpan(ctx, "init")
	defer func() { endSpan(span, err) }()

	return w.lock.WithLock(ctx, func(ctx context.Context) error {
		saga := resilience.NewSaga(resilience.SagaConfig{
			Logger: w.logger,
			OnCompensate: func(step resilience.SagaStep, err error) {
				if err != nil {
					w.logger.Warn("failed to remove partial installation", "step", step.Name, "error", err)
				}
			},
		})
		for _, step := range w.initSteps(opts) {
			saga.AddStep(step)
		}
		if err := saga.Execute(ctx); err != nil {
			fmt.Fprintf(w.errOut, "Removing the partial installation at %s\n", w.env.Home())
			return err
		}
		w.printf("Installation complete at %s", w.env.Home())
		return nil
	})
}

func (w *Workflow) initSteps(opts InitOptions) []resilience.SagaStep {
	env := w.env
	dirs := []string{env.TempDir(), env.RunnerDir(), env.ExecDir(), env.BinDir()}
	cfg := config.DefaultConfig()
	cfg.SwiftPath = opts.SwiftPath
	if opts.SwiftVersion != nil {
		v := *opts.SwiftVersion
		cfg.SwiftVersion = &v
	}

	removeField := func(f resilience.Field) func(ctx context.Context) error {
		return func(ctx context.Context) error { return env.Remove(ctx, f) }
	}

	return []resilience.SagaStep{
		{
			Name: "create directories",
			Execute: func(ctx context.Context) error {
				for _, dir := range dirs {
					if err := os.MkdirAll(dir, 0o755); err != nil {
						return err
					}
				}
				return nil
			},
			Compensate: func(ctx context.Context) error {
				var errs []error
				for _, dir := range dirs {
					errs = append(errs, os.RemoveAll(dir))
				}
				return errors.Join(errs...)
			},
		},
		{
			Name: "write config",
			Execute: func(ctx context.Context) error {
				w.printf("Writing %s", env.ConfigPath())
				return env.SaveConfig(ctx, cfg)
			},
			Compensate: removeField(resilience.FieldConfig),
		},
		{
			Name: "create runner package",
			Execute: func(ctx context.Context) error {
				w.printf("Creating runner package")
				return w.tc.InitPackage(ctx, env.RunnerDir())
			},
			Compensate: func(ctx context.Context) error {
				return os.RemoveAll(env.RunnerDir())
			},
		},
		{
			Name: "write packages",
			Execute: func(ctx context.Context) error {
				return env.SavePackages(ctx, registry.Registry{})
			},
			Compensate: removeField(resilience.FieldPackages),
		},
		{
			Name: "write manifest",
			Execute: func(ctx context.Context) error {
				mopts, err := w.manifestOptions(ctx, cfg)
				if err != nil {
					return err
				}
				return env.WriteManifest(ctx, registry.Registry{}, mopts)
			},
			Compensate: removeField(resilience.FieldManifest),
		},
		{
			Name: "write placeholder script",
			Execute: func(ctx context.Context) error {
				return env.ResetSources(ctx)
			},
		},
	}
}
