// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/appenv"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/cancel"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/infra/process"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/toolchain"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/workflow"
)

const collectionsURL = "https://github.com/apple/swift-collections.git"

// =============================================================================
// exitCode
// =============================================================================

func TestExitCode(t *testing.T) {
	_, parseErr := semver.Parse("1.x")
	require.Error(t, parseErr)

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, 0},
		{"generic", errors.New("boom"), 1},
		{"parse error", fmt.Errorf("install: %w", parseErr), 2},
		{"invalid arguments", fmt.Errorf("%w: --exact and --branch", workflow.ErrInvalidArguments), 2},
		{"lock", &process.LockAcquisitionError{Path: "/x/lock.lock", Op: "open", Err: os.ErrPermission}, 1},
		{"state", &registry.StateInconsistencyError{Subject: "range", Err: registry.ErrInvertedRange}, 1},
		{"external command", process.NewExternalCommandError("swift build", 65, "", nil), 65},
		{"external command unknown status", process.NewExternalCommandError("swift build", -1, "", nil), 1},
		{"signal", &cancel.ExitError{Code: 130, Err: &cancel.CancellationError{Signal: syscall.SIGINT}}, 130},
		{"signal during build", &cancel.ExitError{Code: 143, Err: process.NewExternalCommandError("swift build", 1, "", nil)}, 143},
		{"bare cancellation", &cancel.CancellationError{Signal: syscall.SIGTERM}, 143},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestScriptArgs(t *testing.T) {
	assert.Empty(t, scriptArgs(nil))
	assert.Equal(t, []string{"a"}, scriptArgs([]string{"--", "a"}))
	assert.Equal(t, []string{"a", "--", "b"}, scriptArgs([]string{"a", "--", "b"}))
}

func TestPrintList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, printList(&buf, nil))
	assert.Equal(t, "No packages installed\n", buf.String())

	req, err := registry.NewRange("1.2.0", "2.0.0")
	require.NoError(t, err)
	pin := registry.Pin{Identity: "swift-collections"}
	pin.State.Version = "1.2.3"

	buf.Reset()
	require.NoError(t, printList(&buf, []workflow.ListEntry{{
		Package: registry.InstalledPackage{
			Identity: "swift-collections", URL: collectionsURL,
			Libraries: []string{"Collections", "DequeModule"}, Requirement: req,
		},
		Pin:    &pin,
		Status: registry.PinSatisfied,
	}}))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "IDENTITY"))
	assert.Equal(t, []string{"swift-collections", "1.2.0", "-", "2.0.0", "1.2.3", "ok", "Collections,", "DequeModule"}, strings.Fields(lines[1]))
}

// =============================================================================
// Command line
// =============================================================================

type cli struct {
	t    *testing.T
	home string
	fake *toolchain.Fake
}

// newCLI points the commands at a fresh home and a Fake toolchain.
func newCLI(t *testing.T) *cli {
	t.Helper()
	home := filepath.Join(t.TempDir(), "home")
	fake := &toolchain.Fake{
		Versions:    map[string][]string{collectionsURL: {"1.0.0", "1.2.0"}},
		Libraries:   map[string][]string{"swift-collections": {"Collections"}},
		Swift:       semver.Version{Major: 5, Minor: 9},
		ProductPath: appenv.New(home, nil).ProductPath(),
	}

	prevToolchain, prevInteractive := newToolchain, isInteractive
	newToolchain = func(*session, *cobra.Command) toolchain.Toolchain { return fake }
	isInteractive = func() bool { return false }
	t.Cleanup(func() {
		newToolchain, isInteractive = prevToolchain, prevInteractive
		resetFlags(rootCmd)
	})
	return &cli{t: t, home: home, fake: fake}
}

// resetFlags restores every flag to its default between executions of the
// shared command tree.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func (c *cli) run(args ...string) (code int, stdout, stderr string) {
	c.t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	full := append([]string{"--home", c.home}, args...)
	code = execute(context.Background(), full, strings.NewReader(""), &out, &errOut)
	return code, out.String(), errOut.String()
}

func (c *cli) mustRun(args ...string) string {
	c.t.Helper()
	code, out, errOut := c.run(args...)
	require.Equal(c.t, 0, code, "stderr: %s", errOut)
	return out
}

func TestCLI_Lifecycle(t *testing.T) {
	c := newCLI(t)

	out := c.mustRun("init")
	assert.Contains(t, out, "Installation complete")

	out = c.mustRun("install", collectionsURL)
	assert.Contains(t, out, "Version requirement extracted as: 1.2.0 - 2.0.0")

	out = c.mustRun("list")
	assert.Contains(t, out, "swift-collections")
	assert.Contains(t, out, "1.2.0 - 2.0.0")

	c.mustRun("config", "set", "--swift-version", "5.10")
	out = c.mustRun("config", "show")
	assert.Contains(t, out, "swift_version: 5.10.0")

	manifest, err := os.ReadFile(appenv.New(c.home, nil).ManifestPath())
	require.NoError(t, err)
	assert.Contains(t, string(manifest), "swift-tools-version: 5.10.0")

	c.mustRun("rm", "swift-collections", "--no-build")
	out = c.mustRun("list")
	assert.Contains(t, out, "No packages installed")
}

func TestCLI_UsageErrorsExitTwo(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")

	tests := [][]string{
		{"install", collectionsURL, "--exact", "1.0.0", "--branch", "main"},
		{"install", collectionsURL, "--from", "1.x"},
		{"install"},
		{"install", collectionsURL, "--no-such-flag"},
		{"update"},
		{"update", "swift-collections", "--all"},
		{"config", "set", "--macos-version", "fourteen"},
	}
	for _, args := range tests {
		t.Run(strings.Join(args, " "), func(t *testing.T) {
			code, _, errOut := c.run(args...)
			assert.Equal(t, 2, code)
			assert.True(t, strings.HasPrefix(errOut, "Error: "), errOut)
		})
	}
}

func TestCLI_NotInitialized(t *testing.T) {
	c := newCLI(t)
	code, _, errOut := c.run("list")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "swiftscript init")
}

func TestCLI_UninstallUnknownExitsOne(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	code, _, errOut := c.run("uninstall", "swift-nio")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "swift-nio")
}

func TestCLI_BuildFailureExitStatus(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.fake.BuildHook = func(context.Context, string) error {
		return process.NewExternalCommandError("swift build", 1, "error: missing module", nil)
	}

	code, _, errOut := c.run("install", collectionsURL)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, workflow.RestoreMessage)
	assert.Contains(t, errOut, "error: missing module")
}

func TestCLI_RunPassesArguments(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	script := filepath.Join(t.TempDir(), "hello.swift")
	require.NoError(t, os.WriteFile(script, []byte("print(CommandLine.arguments)\n"), 0o644))

	var got []string
	c.fake.RunHook = func(_ context.Context, _ string, args []string) error {
		got = args
		return nil
	}
	c.mustRun("run", "--Xbuild", "-Xswiftc", script, "--", "--name", "x")
	assert.Equal(t, []string{"--name", "x"}, got)
	assert.Contains(t, c.fake.Calls(), fmt.Sprintf("Build %s [-Xswiftc]", appenv.New(c.home, nil).RunnerDir()))

	c.fake.RunHook = func(context.Context, string, []string) error {
		return process.NewExternalCommandError("hello", 3, "", nil)
	}
	code, _, _ := c.run("run", script)
	assert.Equal(t, 3, code)
}

func TestCLI_Info(t *testing.T) {
	c := newCLI(t)
	c.mustRun("init")
	c.mustRun("install", collectionsURL)

	out := c.mustRun("info", "swift-collections")
	assert.Contains(t, out, "Package identity: swift-collections\n")
	assert.Contains(t, out, "Specified Requirement: 1.2.0 - 2.0.0\n")
	assert.Contains(t, out, "Current Version: (not resolved)\n")
	assert.Contains(t, out, "Platforms: (Not Specified)\n")
	assert.Contains(t, out, "Modules: Collections\n")
	assert.NotContains(t, out, "Dependencies:")

	out = c.mustRun("info", "swift-collections", "--show-dependencies")
	assert.Contains(t, out, "\nDependencies:\n")
	checkout := appenv.New(c.home, nil).CheckoutDir("swift-collections")
	assert.Contains(t, c.fake.Calls(), "ShowDependencies "+checkout)

	code, _, errOut := c.run("info", "swift-nio")
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "swift-nio")

	code, _, _ = c.run("info")
	assert.Equal(t, 2, code)
}

func TestPrintInfo(t *testing.T) {
	req, err := registry.NewRange("1.2.0", "2.0.0")
	require.NoError(t, err)
	pin := registry.Pin{Identity: "swift-collections"}
	pin.State.Version = "2.1.0"

	var buf bytes.Buffer
	require.NoError(t, printInfo(&buf, workflow.PackageInfo{
		ListEntry: workflow.ListEntry{
			Package: registry.InstalledPackage{Identity: "swift-collections", URL: collectionsURL, Requirement: req},
			Pin:     &pin,
			Status:  registry.PinOutOfRange,
		},
		Description: toolchain.PackageDescription{
			Name:      "swift-collections",
			Platforms: []string{"macos 10.15", "ios 13.0"},
			Modules:   []string{"DequeModule", "OrderedCollections"},
		},
	}))
	assert.Equal(t, `Package identity: swift-collections
Package name: swift-collections
URL: `+collectionsURL+`
Specified Requirement: 1.2.0 - 2.0.0
Current Version: 2.1.0 (outside the requirement)
Platforms: macos 10.15, ios 13.0
Modules: DequeModule, OrderedCollections
`, buf.String())
}

func TestCLI_HomeFromEnvironment(t *testing.T) {
	c := newCLI(t)
	t.Setenv("SWIFTSCRIPT_HOME", c.home)

	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	code := execute(context.Background(), []string{"init"}, strings.NewReader(""), &out, &errOut)
	require.Equal(t, 0, code, errOut.String())
	assert.FileExists(t, appenv.New(c.home, nil).ManifestPath())
}

func TestCLI_Version(t *testing.T) {
	c := newCLI(t)
	code, out, _ := c.run("--version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, version)
}
