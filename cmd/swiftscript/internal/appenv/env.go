// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package appenv locates the swiftscript installation and reads and writes
// its persistent state.
//
// # Layout
//
//	~/.swift-script/
//	├── config.yaml          persistent settings
//	├── packages.json        installed-package registry
//	├── lock.lock            ProcessLock file
//	├── runner/              hidden build project
//	│   ├── Package.swift    generated manifest
//	│   ├── Package.resolved
//	│   └── Sources/         the script being run
//	├── exec/                built executables, one per run
//	├── temp/                probe packages
//	├── bin/
//	└── logs/
//
// Nothing is cached between calls: every Load re-reads the file, because
// another process may have changed it since.
package appenv

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"

	"github.com/google/uuid"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/config"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/infra/process"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/resilience"
)

const (
	// HomeEnv overrides the installation directory.
	HomeEnv = "SWIFTSCRIPT_HOME"

	defaultDirName = ".swift-script"
	lockName       = "lock"
)

// ErrNotInitialized is returned when the installation directory has not
// been set up by init.
var ErrNotInitialized = errors.New("swiftscript is not initialized, run `swiftscript init` first")

// DefaultHome returns $SWIFTSCRIPT_HOME or ~/.swift-script.
func DefaultHome() (string, error) {
	if h := os.Getenv(HomeEnv); h != "" {
		return filepath.Abs(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, defaultDirName), nil
}

// Env is one installation directory.
type Env struct {
	home   string
	logger *slog.Logger
}

// New returns an Env rooted at home. It does not touch the filesystem.
func New(home string, logger *slog.Logger) *Env {
	if logger == nil {
		logger = slog.Default()
	}
	return &Env{home: home, logger: logger}
}

var _ resilience.Store = (*Env)(nil)

// =============================================================================
// Paths
// =============================================================================

func (e *Env) Home() string { return e.home }
func (e *Env) ConfigPath() string { return filepath.Join(e.home, config.FileName) }
func (e *Env) PackagesPath() string { return filepath.Join(e.home, "packages.json") }
func (e *Env) RunnerDir() string { return filepath.Join(e.home, "runner") }
func (e *Env) ManifestPath() string { return filepath.Join(e.RunnerDir(), "Package.swift") }
func (e *Env) ResolvedPath() string { return filepath.Join(e.RunnerDir(), "Package.resolved") }
func (e *Env) SourcesDir() string { return filepath.Join(e.RunnerDir(), "Sources") }
func (e *Env) CheckoutsDir() string { return filepath.Join(e.RunnerDir(), ".build", "checkouts") }
func (e *Env) ExecDir() string { return filepath.Join(e.home, "exec") }
func (e *Env) TempDir() string { return filepath.Join(e.home, "temp") }
func (e *Env) BinDir() string { return filepath.Join(e.home, "bin") }
func (e *Env) LogsDir() string { return filepath.Join(e.home, "logs") }
func (e *Env) LockPath() string { return filepath.Join(e.home, lockName+".lock") }

// CheckoutDir is where the resolved sources of identity live.
func (e *Env) CheckoutDir(identity string) string {
	return filepath.Join(e.CheckoutsDir(), identity)
}

// ProductPath is the executable produced by a release build of the runner.
func (e *Env) ProductPath() string {
	name := "Runner"
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(e.RunnerDir(), ".build", "release", name)
}

// NewExecPath returns a fresh path under exec/ for one run's executable.
func (e *Env) NewExecPath() string {
	name := uuid.NewString()
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return filepath.Join(e.ExecDir(), name)
}

// Lock returns the installation's ProcessLock.
func (e *Env) Lock(cfg process.LockConfig) *process.ProcessLock {
	cfg.Dir = e.home
	cfg.Name = lockName
	if cfg.Logger == nil {
		cfg.Logger = e.logger
	}
	return process.NewProcessLock(cfg)
}

// CheckInitialized returns ErrNotInitialized unless the runner manifest
// exists.
func (e *Env) CheckInitialized() error {
	if _, err := os.Stat(e.ManifestPath()); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return ErrNotInitialized
		}
		return err
	}
	return nil
}

// =============================================================================
// Temporary directories
// =============================================================================

// WithTempDir creates temp/<uuid>, runs fn in it and removes it afterwards.
func (e *Env) WithTempDir(ctx context.Context, fn func(dir string) error) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	dir := filepath.Join(e.TempDir(), uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			e.logger.Warn("failed to remove temp dir", "path", dir, "error", err)
		}
	}()
	return fn(dir)
}
