// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package toolchain

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
)

// =============================================================================
// Fake Implementation
// =============================================================================

// Fake is an in-memory Toolchain for tests that do not have swift
// installed.
//
// # Description
//
// Versions maps a package URL to its tags. Libraries maps a checkout
// directory's base name (the package identity) to its products;
// Descriptions overrides the full description of an identity. Hook
// functions, when set, run before the default behavior and may block or
// fail the call. Every call is recorded in Calls as "Method arg".
type Fake struct {
	Versions  map[string][]string
	Libraries map[string][]string
	Swift     semver.Version

	Descriptions map[string]PackageDescription
	MacOS     *semver.Version

	// ProductPath, when set, is created by Build so that run can move it.
	ProductPath string

	BuildHook   func(ctx context.Context, pkgDir string) error
	ResolveHook func(ctx context.Context, pkgDir string) error
	RunHook     func(ctx context.Context, path string, args []string) error

	mu    sync.Mutex
	calls []string
}

var _ Toolchain = (*Fake)(nil)

func (f *Fake) record(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
}

// Calls returns a copy of the recorded calls.
func (f *Fake) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	copy(out, f.calls)
	return out
}

// FetchVersions implements Toolchain.
func (f *Fake) FetchVersions(ctx context.Context, url string) ([]semver.SemanticVersion, error) {
	f.record("FetchVersions %s", url)
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	tags, ok := f.Versions[url]
	if !ok {
		return nil, fmt.Errorf("list tags of %s: repository not found", url)
	}
	return VersionsFromTags(tags), nil
}

// FetchLatestVersion implements Toolchain.
func (f *Fake) FetchLatestVersion(ctx context.Context, url string, upTo *semver.SemanticVersion) (semver.SemanticVersion, error) {
	versions, err := f.FetchVersions(ctx, url)
	if err != nil {
		return semver.SemanticVersion{}, err
	}
	return LatestVersion(versions, upTo, url)
}

// Resolve implements Toolchain. It creates .build/checkouts/<identity> for
// every identity in Libraries so that DescribeProducts can find them.
func (f *Fake) Resolve(ctx context.Context, pkgDir string) error {
	f.record("Resolve %s", pkgDir)
	if f.ResolveHook != nil {
		if err := f.ResolveHook(ctx, pkgDir); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	return f.checkout(pkgDir)
}

func (f *Fake) checkout(pkgDir string) error {
	for identity := range f.Libraries {
		if err := os.MkdirAll(filepath.Join(pkgDir, ".build", "checkouts", identity), 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Build implements Toolchain.
func (f *Fake) Build(ctx context.Context, pkgDir string, args []string) error {
	f.record("Build %s %v", pkgDir, args)
	if f.BuildHook != nil {
		if err := f.BuildHook(ctx, pkgDir); err != nil {
			return err
		}
	}
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	if err := f.checkout(pkgDir); err != nil {
		return err
	}
	if f.ProductPath != "" {
		if err := os.MkdirAll(filepath.Dir(f.ProductPath), 0o755); err != nil {
			return err
		}
		return os.WriteFile(f.ProductPath, []byte("#!fake\n"), 0o755)
	}
	return nil
}

// DescribeProducts implements Toolchain.
func (f *Fake) DescribeProducts(ctx context.Context, checkoutDir string) ([]string, error) {
	identity := filepath.Base(checkoutDir)
	f.record("DescribeProducts %s", identity)
	if err := ctx.Err(); err != nil {
		return nil, context.Cause(ctx)
	}
	if _, err := os.Stat(checkoutDir); err != nil {
		return nil, fmt.Errorf("describe %s: %w", identity, err)
	}
	return append([]string(nil), f.Libraries[identity]...), nil
}

// DescribePackage implements Toolchain. Without an entry in Descriptions
// every library is reported as a module of the same name.
func (f *Fake) DescribePackage(ctx context.Context, checkoutDir string) (PackageDescription, error) {
	identity := filepath.Base(checkoutDir)
	f.record("DescribePackage %s", identity)
	if err := ctx.Err(); err != nil {
		return PackageDescription{}, context.Cause(ctx)
	}
	if _, err := os.Stat(checkoutDir); err != nil {
		return PackageDescription{}, fmt.Errorf("describe %s: %w", identity, err)
	}
	if desc, ok := f.Descriptions[identity]; ok {
		return desc, nil
	}
	libs := append([]string(nil), f.Libraries[identity]...)
	return PackageDescription{Name: identity, Libraries: libs, Modules: libs}, nil
}

// ToolsVersion implements Toolchain.
func (f *Fake) ToolsVersion(ctx context.Context) (semver.Version, error) {
	f.record("ToolsVersion")
	return f.Swift, ctx.Err()
}

// InitPackage implements Toolchain. It writes a minimal executable package.
func (f *Fake) InitPackage(ctx context.Context, dir string) error {
	f.record("InitPackage %s", dir)
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	src := filepath.Join(dir, "Sources")
	if err := os.MkdirAll(src, 0o755); err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(src, "main.swift"), []byte("print(\"Hello, world!\")\n"), 0o644)
}

// ShowDependencies implements Toolchain.
func (f *Fake) ShowDependencies(ctx context.Context, pkgDir string) error {
	f.record("ShowDependencies %s", pkgDir)
	return ctx.Err()
}

// RunExecutable implements Toolchain.
func (f *Fake) RunExecutable(ctx context.Context, path string, args []string) error {
	f.record("RunExecutable %s", filepath.Base(path))
	if f.RunHook != nil {
		return f.RunHook(ctx, path, args)
	}
	return ctx.Err()
}

// HostMacOSVersion implements Toolchain.
func (f *Fake) HostMacOSVersion(ctx context.Context) (*semver.Version, error) {
	return f.MacOS, ctx.Err()
}
