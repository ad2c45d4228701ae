// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
)

// =============================================================================
// Fields
// =============================================================================

// Field selects one piece of persistent state. Fields combine as a bitmask.
type Field uint8

const (
	// FieldConfig is config.yaml.
	FieldConfig Field = 1 << iota

	// FieldManifest is runner/Package.swift.
	FieldManifest

	// FieldPackages is packages.json.
	FieldPackages

	// AllFields selects everything.
	AllFields = FieldConfig | FieldManifest | FieldPackages
)

var fieldOrder = []Field{FieldConfig, FieldManifest, FieldPackages}

// Has reports whether f includes every bit of g.
func (f Field) Has(g Field) bool {
	return f&g == g
}

// String lists the selected fields, e.g. "manifest|packages".
func (f Field) String() string {
	var names []string
	for _, one := range fieldOrder {
		if f.Has(one) {
			names = append(names, fieldName(one))
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "|")
}

func fieldName(f Field) string {
	switch f {
	case FieldConfig:
		return "config"
	case FieldManifest:
		return "manifest"
	case FieldPackages:
		return "packages"
	default:
		return fmt.Sprintf("field(%d)", uint8(f))
	}
}

// =============================================================================
// Store
// =============================================================================

// Store is the persistent state a snapshot reads and restores.
//
// # Description
//
// Implemented by appenv.Env over the installation directory. Read must
// return an error matching fs.ErrNotExist for a missing file so the
// snapshot can remember that the file has to be removed on restore.
type Store interface {
	// Read returns the current bytes of a single field.
	Read(ctx context.Context, f Field) ([]byte, error)

	// Write replaces a single field.
	Write(ctx context.Context, f Field, data []byte) error

	// Remove deletes a single field. Removing a missing file is not an
	// error.
	Remove(ctx context.Context, f Field) error
}

// =============================================================================
// Snapshot
// =============================================================================

type capturedFile struct {
	data   []byte
	exists bool
}

// Snapshot is a point-in-time copy of selected fields.
type Snapshot struct {
	fields Field
	files  map[Field]capturedFile
}

// Capture reads the selected fields from store.
//
// # Inputs
//
//   - ctx: Checked before reading.
//   - store: Source of the current state.
//   - fields: Bitmask of fields to copy.
//
// # Outputs
//
//   - *Snapshot: The captured state. Missing files are recorded as absent.
//   - error: Any read failure other than a missing file.
func Capture(ctx context.Context, store Store, fields Field) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	snap := &Snapshot{fields: fields, files: make(map[Field]capturedFile)}
	for _, f := range fieldOrder {
		if !fields.Has(f) {
			continue
		}
		data, err := store.Read(ctx, f)
		switch {
		case err == nil:
			snap.files[f] = capturedFile{data: bytes.Clone(data), exists: true}
		case errors.Is(err, fs.ErrNotExist):
			snap.files[f] = capturedFile{}
		default:
			return nil, fmt.Errorf("capture %s: %w", fieldName(f), err)
		}
	}
	return snap, nil
}

// Fields returns the captured field set.
func (s *Snapshot) Fields() Field {
	return s.fields
}

// Bytes returns a copy of a captured field and whether the file existed.
func (s *Snapshot) Bytes(f Field) ([]byte, bool) {
	c, ok := s.files[f]
	if !ok || !c.exists {
		return nil, false
	}
	return bytes.Clone(c.data), true
}

// Packages decodes the captured registry. It returns an empty registry when
// packages.json was absent and an error when the field was not captured.
func (s *Snapshot) Packages() (registry.Registry, error) {
	c, ok := s.files[FieldPackages]
	if !ok {
		return nil, fmt.Errorf("packages were not captured")
	}
	return registry.Decode(c.data)
}

// Restore writes every captured field back to store.
//
// # Description
//
// Files that existed at capture time are rewritten byte for byte; files
// that did not exist are removed. Restore runs to completion even when ctx
// is already cancelled, because it is the cancellation path. Every field is
// attempted; failures are joined.
//
// Restore is idempotent: calling it again rewrites the same bytes.
func Restore(ctx context.Context, store Store, snap *Snapshot) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for _, f := range fieldOrder {
		c, ok := snap.files[f]
		if !ok {
			continue
		}
		var err error
		if c.exists {
			err = store.Write(ctx, f, c.data)
		} else {
			err = store.Remove(ctx, f)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("restore %s: %w", fieldName(f), err))
		}
	}
	return errors.Join(errs...)
}
