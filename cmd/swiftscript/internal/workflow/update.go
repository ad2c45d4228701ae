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
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/resilience"
)

// updateConcurrency bounds the parallel latest-version checks of
// update --all.
const updateConcurrency = 4

// UpdateOptions are the inputs of Update.
type UpdateOptions struct {
	// Identity selects one package. Mutually exclusive with All.
	Identity string

	// Version applies to a single-package update only.
	Version VersionSpec

	All bool

	// Yes skips the confirmation of update --all.
	Yes bool

	NoBuild   bool
	BuildArgs []string
}

// Validate checks the options before any state is touched.
func (o UpdateOptions) Validate() error {
	switch {
	case o.All && o.Identity != "":
		return fmt.Errorf("%w: a package and --all are mutually exclusive", ErrInvalidArguments)
	case !o.All && strings.TrimSpace(o.Identity) == "":
		return fmt.Errorf("%w: name a package or pass --all", ErrInvalidArguments)
	case o.All && !o.Version.IsZero():
		return fmt.Errorf("%w: version flags cannot be combined with --all", ErrInvalidArguments)
	}
	return o.Version.Validate()
}

// Update re-installs one package with new version flags, or moves every
// range requirement to the latest release.
func (w *Workflow) Update(ctx context.Context, opts UpdateOptions) error {
	if err := opts.Validate(); err != nil {
		return err
	}
	if opts.All {
		return w.updateAll(ctx, opts)
	}

	if err := w.env.CheckInitialized(); err != nil {
		return err
	}
	identity := strings.ToLower(strings.TrimSpace(opts.Identity))
	reg, err := w.env.LoadPackages(ctx)
	if err != nil {
		return err
	}
	pkg, ok := reg.Find(identity)
	if !ok {
		return &registry.UnknownPackagesError{Identities: []string{identity}}
	}
	return w.Install(ctx, InstallOptions{
		Package:   pkg.URL,
		Version:   opts.Version,
		Force:     true,
		NoBuild:   opts.NoBuild,
		BuildArgs: opts.BuildArgs,
	})
}

// updateAll checks every package concurrently and applies all changes in
// one transaction.
func (w *Workflow) updateAll(ctx context.Context, opts UpdateOptions) (err error) {
	if err := w.env.CheckInitialized(); err != nil {
		return err
	}
	ctx, span := startSpan(ctx, "update_all")
	defer func() { endSpan(span, err) }()

	return w.transact(ctx, resilience.FieldManifest|resilience.FieldPackages, nil, func(ctx context.Context, tx *resilience.Transaction) error {
		original, err := tx.Snapshot().Packages()
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

		updated, err := w.checkUpdates(ctx, original, mopts)
		if err != nil {
			return err
		}

		var changes []string
		for i := range original {
			if original[i].Requirement != updated[i].Requirement {
				changes = append(changes, fmt.Sprintf("%s: (%s) -> (%s)",
					original[i].Identity, original[i].Requirement, updated[i].Requirement))
			}
		}
		span.SetAttributes(attribute.Int("updates", len(changes)))
		if len(changes) == 0 {
			w.printf("No updatable packages found")
			return nil
		}
		w.printf("Package requirements will be updated as follow:\n%s", strings.Join(changes, "\n"))

		if !opts.Yes {
			yes, err := w.confirm(ctx, "Proceed? (y/n):")
			if err != nil {
				return err
			}
			if !yes {
				w.printf("Aborted")
				return nil
			}
		}

		if err := w.saveState(ctx, updated, mopts); err != nil {
			return err
		}
		return w.buildRunner(ctx, opts.NoBuild, opts.BuildArgs)
	})
}

// checkUpdates computes the new entry of every package. Exact and branch
// requirements are kept; a range moves to latest ..< next major, and the
// library list is re-probed when it does.
func (w *Workflow) checkUpdates(ctx context.Context, original registry.Registry, mopts registry.ManifestOptions) (registry.Registry, error) {
	updated := make(registry.Registry, len(original))
	copy(updated, original)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(updateConcurrency)
	for i, pkg := range original {
		if pkg.Requirement.Kind() != registry.KindRange {
			continue
		}
		g.Go(func() error {
			w.printf("[%d/%d] Checking %s", i+1, len(original), pkg.Identity)
			latest, err := w.tc.FetchLatestVersion(gctx, pkg.URL, nil)
			if err != nil {
				return fmt.Errorf("check %s: %w", pkg.Identity, err)
			}
			req, err := registry.RangeRequirement(latest.String(), "", registry.UpToNextMajor)
			if err != nil {
				return err
			}
			if req == pkg.Requirement {
				return nil
			}
			libs, err := w.probeLibraries(gctx, pkg.URL, pkg.Identity, req, mopts)
			if err != nil {
				return err
			}
			pkg.Requirement = req
			pkg.Libraries = libs
			updated[i] = pkg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return updated, nil
}
