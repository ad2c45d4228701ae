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

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/config"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/resilience"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
)

// ConfigChanges lists the settings config set may change. Nil fields are
// left alone.
type ConfigChanges struct {
	SwiftVersion *semver.Version
	MacOSVersion *semver.Version
	SwiftPath    *string
}

// IsZero reports whether nothing would change.
func (c ConfigChanges) IsZero() bool {
	return c.SwiftVersion == nil && c.MacOSVersion == nil && c.SwiftPath == nil
}

func (c ConfigChanges) apply(cfg *config.SwiftScriptConfig) {
	if c.SwiftVersion != nil {
		v := *c.SwiftVersion
		cfg.SwiftVersion = &v
	}
	if c.MacOSVersion != nil {
		v := *c.MacOSVersion
		cfg.MacOSVersion = &v
	}
	if c.SwiftPath != nil {
		cfg.SwiftPath = *c.SwiftPath
	}
}

// ConfigSet updates config.yaml and regenerates the manifest header from
// the new values, as one transaction.
func (w *Workflow) ConfigSet(ctx context.Context, changes ConfigChanges) (err error) {
	if changes.IsZero() {
		w.printf("No config update specified")
		return nil
	}
	if err := w.env.CheckInitialized(); err != nil {
		return err
	}
	ctx, span := startSpan(ctx, "config_set")
	defer func() { endSpan(span, err) }()

	return w.transact(ctx, resilience.FieldConfig|resilience.FieldManifest, nil, func(ctx context.Context, tx *resilience.Transaction) error {
		data, _ := tx.Snapshot().Bytes(resilience.FieldConfig)
		cfg, err := config.Decode(data)
		if err != nil {
			return err
		}
		if changes.SwiftVersion != nil {
			w.printf("Changing swift tools version from %s to %s", versionOrDefault(cfg.SwiftVersion), changes.SwiftVersion)
		}
		if changes.MacOSVersion != nil {
			w.printf("Changing macOS min support version from %s to %s", versionOrDefault(cfg.MacOSVersion), changes.MacOSVersion)
		}
		changes.apply(&cfg)

		w.printf("Saving updated configuration")
		if err := w.env.SaveConfig(ctx, cfg); err != nil {
			return err
		}

		reg, err := w.env.LoadPackages(ctx)
		if err != nil {
			return err
		}
		mopts, err := w.manifestOptions(ctx, cfg)
		if err != nil {
			return err
		}
		return w.env.WriteManifest(ctx, reg, mopts)
	})
}

func versionOrDefault(v *semver.Version) string {
	if v == nil {
		return "<toolchain default>"
	}
	return v.String()
}
