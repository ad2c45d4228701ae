// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package appenv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/config"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/resilience"
)

// path maps a snapshot field to its file.
func (e *Env) path(f resilience.Field) (string, error) {
	switch f {
	case resilience.FieldConfig:
		return e.ConfigPath(), nil
	case resilience.FieldManifest:
		return e.ManifestPath(), nil
	case resilience.FieldPackages:
		return e.PackagesPath(), nil
	default:
		return "", fmt.Errorf("unknown state field %s", f)
	}
}

// Read implements resilience.Store.
func (e *Env) Read(ctx context.Context, f resilience.Field) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	p, err := e.path(f)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// Write implements resilience.Store. The file is replaced atomically, so a
// crash leaves either the old or the new content.
func (e *Env) Write(ctx context.Context, f resilience.Field, data []byte) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	p, err := e.path(f)
	if err != nil {
		return err
	}
	return writeFileAtomic(p, data)
}

// Remove implements resilience.Store.
func (e *Env) Remove(ctx context.Context, f resilience.Field) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	p, err := e.path(f)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// =============================================================================
// Typed state
// =============================================================================

// LoadPackages reads packages.json. A missing file is an empty registry.
func (e *Env) LoadPackages(ctx context.Context) (registry.Registry, error) {
	data, err := e.Read(ctx, resilience.FieldPackages)
	if errors.Is(err, fs.ErrNotExist) {
		return registry.Registry{}, nil
	}
	if err != nil {
		return nil, err
	}
	reg, err := registry.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", e.PackagesPath(), err)
	}
	return reg, nil
}

// SavePackages validates and writes packages.json.
func (e *Env) SavePackages(ctx context.Context, reg registry.Registry) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	data, err := reg.Encode()
	if err != nil {
		return err
	}
	return e.Write(ctx, resilience.FieldPackages, data)
}

// LoadConfig reads config.yaml. A missing file yields the defaults.
func (e *Env) LoadConfig(ctx context.Context) (config.SwiftScriptConfig, error) {
	data, err := e.Read(ctx, resilience.FieldConfig)
	if errors.Is(err, fs.ErrNotExist) {
		return config.DefaultConfig(), nil
	}
	if err != nil {
		return config.SwiftScriptConfig{}, err
	}
	return config.Decode(data)
}

// SaveConfig validates and writes config.yaml.
func (e *Env) SaveConfig(ctx context.Context, cfg config.SwiftScriptConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	data, err := config.Encode(cfg)
	if err != nil {
		return err
	}
	return e.Write(ctx, resilience.FieldConfig, data)
}

// WriteManifest renders and writes runner/Package.swift.
func (e *Env) WriteManifest(ctx context.Context, reg registry.Registry, opts registry.ManifestOptions) error {
	return e.Write(ctx, resilience.FieldManifest, registry.RenderManifest(reg, opts))
}

// LoadPins reads runner/Package.resolved. A missing file yields no pins.
func (e *Env) LoadPins(ctx context.Context) (map[string]registry.Pin, error) {
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	data, err := os.ReadFile(e.ResolvedPath())
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]registry.Pin{}, nil
	}
	if err != nil {
		return nil, err
	}
	return registry.DecodePins(data)
}
