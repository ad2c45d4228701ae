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
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/resilience"
)

// InstallOptions are the inputs of Install.
type InstallOptions struct {
	// Package is a package URL, or the identity of an installed package.
	Package string

	Version VersionSpec

	// Force replaces an installed package without asking.
	Force bool

	// NoBuild resolves the runner instead of building it.
	NoBuild bool

	// BuildArgs are passed through to swift build.
	BuildArgs []string
}

// Validate checks the options before any state is touched.
func (o InstallOptions) Validate() error {
	if strings.TrimSpace(o.Package) == "" {
		return fmt.Errorf("%w: package is required", ErrInvalidArguments)
	}
	return o.Version.Validate()
}

// isPackageURL reports whether s names a location rather than an identity.
func isPackageURL(s string) bool {
	return strings.Contains(s, "://") || strings.HasPrefix(s, "git@") || filepath.IsAbs(s)
}

// Install adds or replaces one package.
//
// # Description
//
// Under the lock, and before any snapshot is taken: resolve the package
// URL and handle a conflict with an installed package (prompt, or replace
// with Force). Then, inside a manifest+packages transaction: compute the
// requirement, probe the package's library products, write packages.json
// and Package.swift and build the runner. Any failure or interrupt from
// that point restores both files.
func (w *Workflow) Install(ctx context.Context, opts InstallOptions) (err error) {
	if err := opts.Validate(); err != nil {
		return err
	}
	if err := w.env.CheckInitialized(); err != nil {
		return err
	}
	input := strings.TrimSpace(opts.Package)
	ctx, span := startSpan(ctx, "install", attribute.String("package", input))
	defer func() { endSpan(span, err) }()

	var url, identity string
	var replacing bool
	check := func(ctx context.Context) error {
		reg, err := w.env.LoadPackages(ctx)
		if err != nil {
			return err
		}
		url, identity, err = resolvePackage(input, reg)
		if err != nil {
			return err
		}
		span.SetAttributes(attribute.String("identity", identity))

		existing, ok := reg.Find(identity)
		if !ok {
			return nil
		}
		replacing = true
		if opts.Force {
			return nil
		}
		w.printf("Package %s is already installed (%s)", existing.Identity, existing.Requirement)
		if !w.interactive {
			return ErrAlreadyInstalled
		}
		yes, err := w.confirm(ctx, "Would you like to overwrite it? [y/n] (default: n):")
		if err != nil {
			return err
		}
		if !yes {
			w.printf("Aborted")
			return errNothingToDo
		}
		return nil
	}

	return w.transact(ctx, resilience.FieldManifest|resilience.FieldPackages, check, func(ctx context.Context, tx *resilience.Transaction) error {
		reg, err := tx.Snapshot().Packages()
		if err != nil {
			return err
		}
		if replacing {
			w.printf("Removing package %s", identity)
		}

		cfg, err := w.env.LoadConfig(ctx)
		if err != nil {
			return err
		}
		mopts, err := w.manifestOptions(ctx, cfg)
		if err != nil {
			return err
		}

		req, err := opts.Version.Requirement(ctx, w.tc, url)
		if err != nil {
			return err
		}
		w.printf("Version requirement extracted as: %s", req)

		libs, err := w.probeLibraries(ctx, url, identity, req, mopts)
		if err != nil {
			return err
		}
		w.printf("Found products: %s", strings.Join(libs, ", "))

		reg = reg.Upsert(registry.InstalledPackage{
			Identity:    identity,
			URL:         url,
			Libraries:   libs,
			Requirement: req,
		})
		if err := w.saveState(ctx, reg, mopts); err != nil {
			return err
		}
		return w.buildRunner(ctx, opts.NoBuild, opts.BuildArgs)
	})
}

// resolvePackage returns the URL and identity for an install argument. A
// bare identity must already be installed; its recorded URL is reused.
func resolvePackage(input string, reg registry.Registry) (url, identity string, err error) {
	if isPackageURL(input) {
		identity, err := registry.Identity(input)
		if err != nil {
			return "", "", err
		}
		return input, identity, nil
	}
	identity = strings.ToLower(input)
	if p, ok := reg.Find(identity); ok {
		return p.URL, identity, nil
	}
	return "", "", fmt.Errorf("%w: %q is not installed; pass the package URL instead", ErrInvalidArguments, input)
}
