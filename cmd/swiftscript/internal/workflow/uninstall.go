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
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/resilience"
)

// UninstallOptions are the inputs of Uninstall.
type UninstallOptions struct {
	Identities []string
	NoBuild    bool
	BuildArgs  []string
}

// Uninstall removes installed packages. Every identity must be installed;
// otherwise nothing is written.
func (w *Workflow) Uninstall(ctx context.Context, opts UninstallOptions) (err error) {
	ids := make([]string, 0, len(opts.Identities))
	for _, id := range opts.Identities {
		if id = strings.ToLower(strings.TrimSpace(id)); id != "" {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one package identity is required", ErrInvalidArguments)
	}
	if err := w.env.CheckInitialized(); err != nil {
		return err
	}
	ctx, span := startSpan(ctx, "uninstall", attribute.StringSlice("identities", ids))
	defer func() { endSpan(span, err) }()

	check := func(ctx context.Context) error {
		reg, err := w.env.LoadPackages(ctx)
		if err != nil {
			return err
		}
		_, err = reg.Remove(ids...)
		return err
	}
	return w.transact(ctx, resilience.FieldManifest|resilience.FieldPackages, check, func(ctx context.Context, tx *resilience.Transaction) error {
		reg, err := tx.Snapshot().Packages()
		if err != nil {
			return err
		}
		reg, err = reg.Remove(ids...)
		if err != nil {
			return err
		}
		cfg, err := w.env.LoadConfig(ctx)
		if err != nil {
			return err
		}
		mopts, err := w.manifestOptions(ctx, cfg)
		if err != nil {
			return err
		}

		w.printf("Removing %s", strings.Join(ids, ", "))
		if err := w.saveState(ctx, reg, mopts); err != nil {
			return err
		}
		return w.buildRunner(ctx, opts.NoBuild, opts.BuildArgs)
	})
}
