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
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/toolchain"
)

// PackageInfo describes one installed package as the runner sees it.
type PackageInfo struct {
	ListEntry

	// Description is read from the runner's checkout of the package.
	Description toolchain.PackageDescription
}

// Info reports an installed package: its registry entry, the description
// of its checkout and its resolved version.
//
// # Description
//
// Info writes nothing but runs under the ProcessLock, because describing a
// checkout reads the runner's build directory, which a concurrent install
// may be rebuilding. A package counts as installed only when it is in the
// registry and the runner has a checkout of it.
//
// # Outputs
//
//   - PackageInfo: Pin is nil when the runner has no pin for it yet.
//   - error: *registry.UnknownPackagesError when the package is not
//     installed; ErrInvalidArguments for a blank identity.
func (w *Workflow) Info(ctx context.Context, identity string) (info PackageInfo, err error) {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if identity == "" {
		return info, fmt.Errorf("%w: package identity is required", ErrInvalidArguments)
	}
	if err := w.env.CheckInitialized(); err != nil {
		return info, err
	}
	ctx, span := startSpan(ctx, "info", attribute.String("identity", identity))
	defer func() { endSpan(span, err) }()

	err = w.lock.WithLock(ctx, func(ctx context.Context) error {
		reg, err := w.env.LoadPackages(ctx)
		if err != nil {
			return err
		}
		pkg, ok := reg.Find(identity)
		if !ok {
			return &registry.UnknownPackagesError{Identities: []string{identity}}
		}
		checkout := w.env.CheckoutDir(identity)
		if _, err := os.Stat(checkout); errors.Is(err, fs.ErrNotExist) {
			return &registry.UnknownPackagesError{Identities: []string{identity}}
		}

		info.Package = pkg
		if info.Description, err = w.tc.DescribePackage(ctx, checkout); err != nil {
			return fmt.Errorf("describe %s: %w", identity, err)
		}

		pins, err := w.env.LoadPins(ctx)
		if err != nil {
			return err
		}
		if pin, ok := pins[identity]; ok {
			info.Pin = &pin
			if info.Status, err = registry.CheckPin(pkg.Requirement, pin); err != nil {
				w.logger.Warn("cannot check pin", "identity", identity, "error", err)
			}
		}
		return nil
	})
	return info, err
}

// ShowPackageDependencies prints the dependency tree of one installed
// package from its checkout in the runner.
func (w *Workflow) ShowPackageDependencies(ctx context.Context, identity string) error {
	identity = strings.ToLower(strings.TrimSpace(identity))
	if err := w.env.CheckInitialized(); err != nil {
		return err
	}
	return w.lock.WithLock(ctx, func(ctx context.Context) error {
		checkout := w.env.CheckoutDir(identity)
		if _, err := os.Stat(checkout); errors.Is(err, fs.ErrNotExist) {
			return &registry.UnknownPackagesError{Identities: []string{identity}}
		}
		return w.tc.ShowDependencies(ctx, checkout)
	})
}
