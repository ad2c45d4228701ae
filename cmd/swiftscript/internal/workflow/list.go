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

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
)

// ListEntry is one installed package with its resolved pin.
type ListEntry struct {
	Package registry.InstalledPackage

	// Pin is nil when the runner has not resolved the package yet.
	Pin *registry.Pin

	Status registry.PinStatus
}

// List reads the registry and Package.resolved. It takes no lock: both
// files are replaced atomically, so a reader sees either version.
func (w *Workflow) List(ctx context.Context) ([]ListEntry, error) {
	if err := w.env.CheckInitialized(); err != nil {
		return nil, err
	}
	reg, err := w.env.LoadPackages(ctx)
	if err != nil {
		return nil, err
	}
	pins, err := w.env.LoadPins(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, 0, len(reg))
	for _, pkg := range reg {
		entry := ListEntry{Package: pkg}
		if pin, ok := pins[pkg.Identity]; ok {
			entry.Pin = &pin
			status, err := registry.CheckPin(pkg.Requirement, pin)
			if err != nil {
				w.logger.Warn("cannot check pin", "identity", pkg.Identity, "error", err)
			}
			entry.Status = status
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ShowDependencies prints the resolved dependency tree of the runner.
func (w *Workflow) ShowDependencies(ctx context.Context) error {
	if err := w.env.CheckInitialized(); err != nil {
		return err
	}
	return w.tc.ShowDependencies(ctx, w.env.RunnerDir())
}
