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
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/appenv"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/cancel"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/infra/process"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/toolchain"
)

const (
	collectionsURL = "https://github.com/apple/swift-collections.git"
	parserURL      = "https://github.com/apple/swift-argument-parser.git"
)

// =============================================================================
// Harness
// =============================================================================

type harness struct {
	env    *appenv.Env
	fake   *toolchain.Fake
	ctl    *cancel.Controller
	wf     *Workflow
	out    *bytes.Buffer
	errOut *bytes.Buffer
}

func newFake() *toolchain.Fake {
	return &toolchain.Fake{
		Versions: map[string][]string{
			collectionsURL: {"1.0.0", "1.1.0", "1.2.0", "2.0.0-beta.1"},
			parserURL:      {"1.3.0", "1.5.0"},
		},
		Libraries: map[string][]string{
			"swift-collections":     {"Collections", "DequeModule"},
			"swift-argument-parser": {"ArgumentParser"},
		},
		Swift: semver.Version{Major: 5, Minor: 9},
	}
}

// newHarness returns an initialized installation driven by a Fake
// toolchain.
func newHarness(t *testing.T) *harness {
	t.Helper()
	h := newBareHarness(t, newFake())
	require.NoError(t, h.wf.Init(context.Background(), InitOptions{}))
	h.out.Reset()
	return h
}

func newBareHarness(t *testing.T, tc *toolchain.Fake) *harness {
	t.Helper()
	env := appenv.New(filepath.Join(t.TempDir(), "home"), nil)
	tc.ProductPath = env.ProductPath()
	h := &harness{
		env:    env,
		fake:   tc,
		ctl:    cancel.New(cancel.WithSignals()),
		out:    &bytes.Buffer{},
		errOut: &bytes.Buffer{},
	}
	wf, err := New(Config{
		Env:        env,
		Toolchain:  tc,
		Controller: h.ctl,
		Out:        h.out,
		Err:        h.errOut,
	})
	require.NoError(t, err)
	h.wf = wf
	return h
}

func (h *harness) packages(t *testing.T) registry.Registry {
	t.Helper()
	reg, err := h.env.LoadPackages(context.Background())
	require.NoError(t, err)
	return reg
}

func (h *harness) read(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return data
}

func (h *harness) install(t *testing.T, url string) {
	t.Helper()
	require.NoError(t, h.wf.Install(context.Background(), InstallOptions{Package: url}))
}

func callsWithPrefix(calls []string, prefix string) []string {
	var out []string
	for _, c := range calls {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	return out
}

// =============================================================================
// New
// =============================================================================

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{Toolchain: newFake()})
	assert.Error(t, err)
	_, err = New(Config{Env: appenv.New(t.TempDir(), nil)})
	assert.Error(t, err)
}

// =============================================================================
// Init
// =============================================================================

func TestInit_CreatesLayout(t *testing.T) {
	h := newHarness(t)

	for _, dir := range []string{h.env.TempDir(), h.env.RunnerDir(), h.env.ExecDir(), h.env.BinDir()} {
		assert.DirExists(t, dir)
	}
	assert.FileExists(t, h.env.ConfigPath())
	assert.Equal(t, "[]\n", string(h.read(t, h.env.PackagesPath())))

	manifest := string(h.read(t, h.env.ManifestPath()))
	assert.Contains(t, manifest, "// swift-tools-version: 5.9.0")
	assert.Contains(t, manifest, `name: "swift-script-runner"`)

	placeholder := h.read(t, filepath.Join(h.env.SourcesDir(), "main.swift"))
	assert.Contains(t, string(placeholder), "Hello SwiftScript!")
}

func TestInit_StoresOptions(t *testing.T) {
	h := newBareHarness(t, newFake())
	v := semver.Version{Major: 6}
	require.NoError(t, h.wf.Init(context.Background(), InitOptions{SwiftPath: "/opt/swift/bin/swift", SwiftVersion: &v}))

	cfg, err := h.env.LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "/opt/swift/bin/swift", cfg.SwiftPath)
	require.NotNil(t, cfg.SwiftVersion)
	assert.Equal(t, "6.0.0", cfg.SwiftVersion.String())
	assert.Contains(t, string(h.read(t, h.env.ManifestPath())), "swift-tools-version: 6.0.0")
}

func TestInit_AlreadyInitialized(t *testing.T) {
	h := newHarness(t)
	err := h.wf.Init(context.Background(), InitOptions{})
	assert.ErrorIs(t, err, ErrAlreadyInitialized)
}

type failingInit struct {
	*toolchain.Fake
}

func (failingInit) InitPackage(context.Context, string) error {
	return process.NewExternalCommandError("swift package init", 1, "error: permission denied", nil)
}

func TestInit_FailureRemovesPartialInstallation(t *testing.T) {
	h := newBareHarness(t, newFake())
	wf, err := New(Config{Env: h.env, Toolchain: failingInit{h.fake}, Err: h.errOut})
	require.NoError(t, err)

	err = wf.Init(context.Background(), InitOptions{})
	var cmdErr *process.ExternalCommandError
	require.ErrorAs(t, err, &cmdErr)

	assert.NoFileExists(t, h.env.ConfigPath())
	assert.NoDirExists(t, h.env.RunnerDir())
	assert.NoDirExists(t, h.env.TempDir())
	assert.ErrorIs(t, h.env.CheckInitialized(), appenv.ErrNotInitialized)
	assert.Contains(t, h.errOut.String(), "Removing the partial installation")
}

func TestInit_Cancelled(t *testing.T) {
	h := newBareHarness(t, newFake())
	ctx, cancelFn := context.WithCancel(context.Background())
	cancelFn()

	err := h.wf.Init(ctx, InitOptions{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, h.env.ConfigPath())
}

func TestWorkflows_RequireInit(t *testing.T) {
	h := newBareHarness(t, newFake())
	ctx := context.Background()

	assert.ErrorIs(t, h.wf.Install(ctx, InstallOptions{Package: collectionsURL}), appenv.ErrNotInitialized)
	assert.ErrorIs(t, h.wf.Uninstall(ctx, UninstallOptions{Identities: []string{"a"}}), appenv.ErrNotInitialized)
	_, err := h.wf.List(ctx)
	assert.ErrorIs(t, err, appenv.ErrNotInitialized)
}

// =============================================================================
// Install
// =============================================================================

func TestInstall_DefaultRequirementIsLatestUpToNextMajor(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)

	reg := h.packages(t)
	require.Len(t, reg, 1)
	pkg := reg[0]
	assert.Equal(t, "swift-collections", pkg.Identity)
	assert.Equal(t, collectionsURL, pkg.URL)
	assert.Equal(t, []string{"Collections", "DequeModule"}, pkg.Libraries)
	assert.Equal(t, "1.2.0 - 2.0.0", pkg.Requirement.String())

	manifest := string(h.read(t, h.env.ManifestPath()))
	assert.Contains(t, manifest, `.package(url: "`+collectionsURL+`", "1.2.0" ..< "2.0.0")`)
	assert.Contains(t, manifest, `.product(name: "DequeModule", package: "swift-collections")`)

	assert.Len(t, callsWithPrefix(h.fake.Calls(), "Build "+h.env.RunnerDir()), 1)
	assert.Contains(t, h.out.String(), "Found products: Collections, DequeModule")
	assert.Empty(t, h.errOut.String())
}

func TestInstall_ProbeUsesTemporaryPackage(t *testing.T) {
	h := newHarness(t)
	h.install(t, parserURL)

	resolves := callsWithPrefix(h.fake.Calls(), "Resolve ")
	require.Len(t, resolves, 1)
	assert.True(t, strings.HasPrefix(resolves[0], "Resolve "+h.env.TempDir()), resolves[0])

	entries, err := os.ReadDir(h.env.TempDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "probe directory must be removed")
}

func TestInstall_VersionFlags(t *testing.T) {
	tests := []struct {
		name string
		spec VersionSpec
		want string
	}{
		{"exact", VersionSpec{Exact: "v1.1.0"}, "exact 1.1.0"},
		{"branch", VersionSpec{Branch: "main"}, "branch main"},
		{"from", VersionSpec{From: "1.0.0"}, "1.0.0 - 2.0.0"},
		{"minor", VersionSpec{UpToNextMinorFrom: "1.1.0"}, "1.1.0 - 1.2.0"},
		{"from with to", VersionSpec{From: "1.0.0", To: "1.5.0"}, "1.0.0 - 1.5.0"},
		{"to clamps latest", VersionSpec{To: "1.2.0"}, "1.1.0 - 1.2.0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			require.NoError(t, h.wf.Install(context.Background(), InstallOptions{
				Package: collectionsURL, Version: tt.spec, NoBuild: true,
			}))
			assert.Equal(t, tt.want, h.packages(t)[0].Requirement.String())
		})
	}
}

func TestInstall_NoBuildResolvesRunner(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.wf.Install(context.Background(), InstallOptions{Package: collectionsURL, NoBuild: true}))

	calls := h.fake.Calls()
	assert.Empty(t, callsWithPrefix(calls, "Build "))
	assert.Len(t, callsWithPrefix(calls, "Resolve "+h.env.RunnerDir()), 1)
}

func TestInstall_InvalidArgumentsTouchNothing(t *testing.T) {
	h := newHarness(t)
	before := h.read(t, h.env.ManifestPath())
	calls := len(h.fake.Calls())

	err := h.wf.Install(context.Background(), InstallOptions{
		Package: collectionsURL,
		Version: VersionSpec{Exact: "1.0.0", Branch: "main"},
	})
	assert.ErrorIs(t, err, ErrInvalidArguments)

	err = h.wf.Install(context.Background(), InstallOptions{
		Package: collectionsURL,
		Version: VersionSpec{From: "1.x"},
	})
	var parseErr *semver.ParseError
	assert.ErrorAs(t, err, &parseErr)

	assert.Len(t, h.fake.Calls(), calls)
	assert.Equal(t, before, h.read(t, h.env.ManifestPath()))
}

func TestInstall_InvertedRangeIsInconsistent(t *testing.T) {
	for _, spec := range []VersionSpec{
		{From: "1.5.0", To: "1.2.0"},
		{UpToNextMinorFrom: "1.5.0", To: "1.4.9"},
	} {
		h := newHarness(t)
		before := h.read(t, h.env.PackagesPath())
		calls := len(h.fake.Calls())

		err := h.wf.Install(context.Background(), InstallOptions{Package: parserURL, Version: spec})
		var inconsistent *registry.StateInconsistencyError
		require.ErrorAs(t, err, &inconsistent)
		assert.ErrorIs(t, err, registry.ErrInvertedRange)
		assert.Equal(t, before, h.read(t, h.env.PackagesPath()))
		assert.Len(t, h.fake.Calls(), calls)
		assert.Empty(t, h.errOut.String(), "nothing was written, so nothing is restored")
	}
}

func TestVersionSpec_ValidateRangeOrder(t *testing.T) {
	assert.NoError(t, VersionSpec{From: "1.2.0", To: "1.2.0"}.Validate())
	assert.NoError(t, VersionSpec{From: "1.2.0", To: "9.0.0"}.Validate())
	assert.NoError(t, VersionSpec{To: "0.0.1"}.Validate())
	assert.ErrorIs(t, VersionSpec{From: "2.0.0", To: "1.9.9"}.Validate(), registry.ErrInvertedRange)
	assert.ErrorIs(t, UpdateOptions{Identity: "x", Version: VersionSpec{From: "2.0.0", To: "1.0.0"}}.Validate(), registry.ErrInvertedRange)

	var perr *semver.ParseError
	assert.ErrorAs(t, VersionSpec{From: strconv.Itoa(math.MaxInt) + ".0.0"}.Validate(), &perr)
}

func TestInstall_ConflictWithoutTerminal(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	before := h.read(t, h.env.PackagesPath())

	err := h.wf.Install(context.Background(), InstallOptions{Package: collectionsURL, Version: VersionSpec{Exact: "1.0.0"}})
	assert.ErrorIs(t, err, ErrAlreadyInstalled)
	assert.Equal(t, before, h.read(t, h.env.PackagesPath()))
	assert.Empty(t, h.errOut.String())
	assert.NotContains(t, h.out.String(), "Removing package")
}

func TestInstall_ConflictPrompt(t *testing.T) {
	tests := []struct {
		answer string
		want   string
	}{
		{"n\n", "1.2.0 - 2.0.0"},
		{"\n", "1.2.0 - 2.0.0"},
		{"YES\n", "exact 1.0.0"},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.answer), func(t *testing.T) {
			h := newHarness(t)
			h.install(t, collectionsURL)

			wf, err := New(Config{
				Env: h.env, Toolchain: h.fake, Out: h.out, Err: h.errOut,
				In: strings.NewReader(tt.answer), Interactive: true,
			})
			require.NoError(t, err)
			require.NoError(t, wf.Install(context.Background(), InstallOptions{
				Package: collectionsURL, Version: VersionSpec{Exact: "1.0.0"},
			}))
			assert.Equal(t, tt.want, h.packages(t)[0].Requirement.String())
			assert.Contains(t, h.out.String(), "already installed")
			assert.Empty(t, h.errOut.String())
		})
	}
}

func TestInstall_ForceReplacesInPlace(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	h.install(t, parserURL)

	require.NoError(t, h.wf.Install(context.Background(), InstallOptions{
		Package: "swift-collections", Version: VersionSpec{Branch: "main"}, Force: true,
	}))

	reg := h.packages(t)
	assert.Equal(t, []string{"swift-collections", "swift-argument-parser"}, reg.Identities())
	assert.Equal(t, "branch main", reg[0].Requirement.String())
	assert.Contains(t, h.out.String(), "Removing package swift-collections")
}

func TestInstall_UnknownIdentity(t *testing.T) {
	h := newHarness(t)
	err := h.wf.Install(context.Background(), InstallOptions{Package: "swift-nio"})
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestInstall_BuildFailureRestoresState(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	packagesBefore := h.read(t, h.env.PackagesPath())
	manifestBefore := h.read(t, h.env.ManifestPath())

	h.fake.BuildHook = func(context.Context, string) error {
		return process.NewExternalCommandError("swift build", 1, "error: no such module", nil)
	}
	err := h.wf.Install(context.Background(), InstallOptions{Package: parserURL})

	var cmdErr *process.ExternalCommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Equal(t, packagesBefore, h.read(t, h.env.PackagesPath()))
	assert.Equal(t, manifestBefore, h.read(t, h.env.ManifestPath()))
	assert.Equal(t, RestoreMessage+"\n", h.errOut.String())
}

func TestInstall_NoMatchingVersion(t *testing.T) {
	h := newHarness(t)
	err := h.wf.Install(context.Background(), InstallOptions{Package: parserURL, Version: VersionSpec{To: "1.0.0"}})
	assert.ErrorIs(t, err, toolchain.ErrNoMatchingVersion)
	assert.Empty(t, h.packages(t))
}

// =============================================================================
// Uninstall
// =============================================================================

func TestUninstall_RemovesPackages(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	h.install(t, parserURL)

	require.NoError(t, h.wf.Uninstall(context.Background(), UninstallOptions{Identities: []string{"Swift-Collections"}}))

	assert.Equal(t, []string{"swift-argument-parser"}, h.packages(t).Identities())
	assert.NotContains(t, string(h.read(t, h.env.ManifestPath())), "swift-collections")
}

func TestUninstall_UnknownIdentityWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	before := h.read(t, h.env.PackagesPath())

	err := h.wf.Uninstall(context.Background(), UninstallOptions{Identities: []string{"swift-collections", "swift-nio"}})
	var unknown *registry.UnknownPackagesError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"swift-nio"}, unknown.Identities)
	assert.Equal(t, before, h.read(t, h.env.PackagesPath()))
	assert.Empty(t, h.errOut.String(), "nothing was written, so nothing is restored")
	assert.NotContains(t, h.out.String(), "Removing swift-collections")
}

func TestUninstall_RequiresIdentity(t *testing.T) {
	h := newHarness(t)
	err := h.wf.Uninstall(context.Background(), UninstallOptions{Identities: []string{"  "}})
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

// TestInstallThenInterruptedUninstall installs a package, then interrupts
// the uninstall after it has rewritten both files. The original files must
// be back byte for byte and the command must exit with 128+SIGINT.
func TestInstallThenInterruptedUninstall(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	packagesBefore := h.read(t, h.env.PackagesPath())
	manifestBefore := h.read(t, h.env.ManifestPath())

	h.fake.BuildHook = func(ctx context.Context, _ string) error {
		reg, err := h.env.LoadPackages(context.Background())
		require.NoError(t, err)
		assert.Empty(t, reg, "uninstall should have written before building")

		h.ctl.Trigger(syscall.SIGINT)
		<-ctx.Done()
		return context.Cause(ctx)
	}

	err := h.ctl.Run(context.Background(), func(ctx context.Context) error {
		return h.wf.Uninstall(ctx, UninstallOptions{Identities: []string{"swift-collections"}})
	})

	var exitErr *cancel.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 128+int(syscall.SIGINT), exitErr.Code)
	assert.True(t, cancel.IsCancellation(err))

	assert.Equal(t, packagesBefore, h.read(t, h.env.PackagesPath()))
	assert.Equal(t, manifestBefore, h.read(t, h.env.ManifestPath()))
	assert.Equal(t, []string{"swift-collections"}, h.packages(t).Identities())
	assert.Equal(t, 1, strings.Count(h.errOut.String(), RestoreMessage))
	assert.Equal(t, cancel.StateTerminated, h.ctl.State())
}

func TestInterruptWhileWaitingForLock(t *testing.T) {
	h := newHarness(t)
	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	lock := h.env.Lock(process.LockConfig{})
	go func() {
		defer close(done)
		_ = lock.WithLock(context.Background(), func(context.Context) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held
	defer func() {
		close(release)
		<-done
	}()

	ctx, cancelFn := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancelFn()
	err := h.wf.Install(ctx, InstallOptions{Package: collectionsURL})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, h.errOut.String(), "no transaction was opened")
	assert.Empty(t, callsWithPrefix(h.fake.Calls(), "FetchVersions"))
}

// =============================================================================
// Update
// =============================================================================

func TestUpdate_Validate(t *testing.T) {
	tests := []UpdateOptions{
		{},
		{Identity: "a", All: true},
		{All: true, Version: VersionSpec{Exact: "1.0.0"}},
	}
	for _, opts := range tests {
		assert.ErrorIs(t, opts.Validate(), ErrInvalidArguments)
	}
	assert.NoError(t, UpdateOptions{All: true}.Validate())
}

func TestUpdate_SinglePackageForcesReinstall(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.wf.Install(context.Background(), InstallOptions{Package: collectionsURL, Version: VersionSpec{Exact: "1.0.0"}}))

	require.NoError(t, h.wf.Update(context.Background(), UpdateOptions{Identity: "swift-collections"}))
	assert.Equal(t, "1.2.0 - 2.0.0", h.packages(t)[0].Requirement.String())
}

func TestUpdate_SinglePackageNotInstalled(t *testing.T) {
	h := newHarness(t)
	err := h.wf.Update(context.Background(), UpdateOptions{Identity: "swift-nio"})
	assert.ErrorIs(t, err, registry.ErrPackageNotInstalled)
}

func TestUpdateAll(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.wf.Install(ctx, InstallOptions{Package: collectionsURL, Version: VersionSpec{From: "1.0.0"}}))
	require.NoError(t, h.wf.Install(ctx, InstallOptions{Package: parserURL, Version: VersionSpec{Exact: "1.3.0"}}))

	h.fake.Versions[collectionsURL] = append(h.fake.Versions[collectionsURL], "2.1.0")
	h.out.Reset()

	require.NoError(t, h.wf.Update(ctx, UpdateOptions{All: true, Yes: true}))

	reg := h.packages(t)
	assert.Equal(t, "2.1.0 - 3.0.0", reg[0].Requirement.String())
	assert.Equal(t, "exact 1.3.0", reg[1].Requirement.String(), "exact requirements are kept")
	assert.Contains(t, h.out.String(), "swift-collections: (1.0.0 - 2.0.0) -> (2.1.0 - 3.0.0)")
	assert.Contains(t, string(h.read(t, h.env.ManifestPath())), `"2.1.0" ..< "3.0.0"`)
}

func TestUpdateAll_NothingToUpdate(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	before := h.read(t, h.env.PackagesPath())
	builds := len(callsWithPrefix(h.fake.Calls(), "Build "))

	require.NoError(t, h.wf.Update(context.Background(), UpdateOptions{All: true}))
	assert.Contains(t, h.out.String(), "No updatable packages found")
	assert.Equal(t, before, h.read(t, h.env.PackagesPath()))
	assert.Len(t, callsWithPrefix(h.fake.Calls(), "Build "), builds)
}

func TestUpdateAll_NeedsConfirmation(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.wf.Install(context.Background(), InstallOptions{Package: collectionsURL, Version: VersionSpec{From: "1.0.0"}}))
	before := h.read(t, h.env.PackagesPath())

	err := h.wf.Update(context.Background(), UpdateOptions{All: true})
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, before, h.read(t, h.env.PackagesPath()))
}

func TestUpdateAll_FetchFailureWritesNothing(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	h.install(t, parserURL)
	before := h.read(t, h.env.PackagesPath())

	delete(h.fake.Versions, parserURL)
	err := h.wf.Update(context.Background(), UpdateOptions{All: true, Yes: true})
	assert.Error(t, err)
	assert.Equal(t, before, h.read(t, h.env.PackagesPath()))
}

// =============================================================================
// Config
// =============================================================================

func TestConfigSet_UpdatesConfigAndManifest(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)

	v := semver.Version{Major: 5, Minor: 10}
	path := "/usr/local/bin/swift"
	require.NoError(t, h.wf.ConfigSet(context.Background(), ConfigChanges{SwiftVersion: &v, SwiftPath: &path}))

	cfg, err := h.env.LoadConfig(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5.10.0", cfg.SwiftVersion.String())
	assert.Equal(t, path, cfg.SwiftPath)

	manifest := string(h.read(t, h.env.ManifestPath()))
	assert.Contains(t, manifest, "swift-tools-version: 5.10.0")
	assert.Contains(t, manifest, "swift-collections", "packages stay in the manifest")
}

func TestConfigSet_NoChanges(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.wf.ConfigSet(context.Background(), ConfigChanges{}))
	assert.Contains(t, h.out.String(), "No config update specified")
}

type brokenVersions struct {
	*toolchain.Fake
}

func (brokenVersions) ToolsVersion(context.Context) (semver.Version, error) {
	return semver.Version{}, errors.New("swift not found")
}

func TestConfigSet_FailureRestoresConfig(t *testing.T) {
	h := newHarness(t)
	before := h.read(t, h.env.ConfigPath())

	wf, err := New(Config{Env: h.env, Toolchain: brokenVersions{h.fake}, Err: h.errOut})
	require.NoError(t, err)
	v := semver.Version{Major: 14}
	err = wf.ConfigSet(context.Background(), ConfigChanges{MacOSVersion: &v})
	assert.Error(t, err)
	assert.Equal(t, before, h.read(t, h.env.ConfigPath()))
	assert.Contains(t, h.errOut.String(), RestoreMessage)
}

// =============================================================================
// Run
// =============================================================================

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "script.swift")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRun_BuildsMovesAndCleansUp(t *testing.T) {
	h := newHarness(t)
	script := writeScript(t, "@main\nstruct App { static func main() {} }\n")

	var ranPath string
	h.fake.BuildHook = func(context.Context, string) error {
		assert.FileExists(t, filepath.Join(h.env.SourcesDir(), "Runner.swift"))
		return nil
	}
	h.fake.RunHook = func(_ context.Context, path string, args []string) error {
		ranPath = path
		assert.FileExists(t, path)
		assert.Equal(t, []string{"--name", "x"}, args)
		return nil
	}

	require.NoError(t, h.wf.Run(context.Background(), RunOptions{Script: script, Args: []string{"--name", "x"}}))

	assert.Equal(t, h.env.ExecDir(), filepath.Dir(ranPath))
	assert.NoFileExists(t, ranPath)
	assert.NoFileExists(t, h.env.ProductPath())
	assert.FileExists(t, filepath.Join(h.env.SourcesDir(), "main.swift"))
	assert.NoFileExists(t, filepath.Join(h.env.SourcesDir(), "Runner.swift"))
}

func TestRun_ScriptExitCodeSurfaces(t *testing.T) {
	h := newHarness(t)
	h.fake.RunHook = func(context.Context, string, []string) error {
		return process.NewExternalCommandError("script", 3, "", nil)
	}
	err := h.wf.Run(context.Background(), RunOptions{Script: writeScript(t, "print(1)\n")})

	var cmdErr *process.ExternalCommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	entries, _ := os.ReadDir(h.env.ExecDir())
	assert.Empty(t, entries)
}

func TestRun_BuildFailureRestoresPlaceholder(t *testing.T) {
	h := newHarness(t)
	h.fake.BuildHook = func(context.Context, string) error {
		return process.NewExternalCommandError("swift build", 1, "error: expected expression", nil)
	}
	err := h.wf.Run(context.Background(), RunOptions{Script: writeScript(t, "let = \n")})
	assert.Error(t, err)

	data := h.read(t, filepath.Join(h.env.SourcesDir(), "main.swift"))
	assert.Contains(t, string(data), "Hello SwiftScript!")
	assert.Empty(t, callsWithPrefix(h.fake.Calls(), "RunExecutable"))
}

func TestRun_MissingScript(t *testing.T) {
	h := newHarness(t)
	err := h.wf.Run(context.Background(), RunOptions{Script: filepath.Join(t.TempDir(), "nope.swift")})
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// List
// =============================================================================

func TestList_ReportsPins(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	h.install(t, parserURL)

	resolved := `{"pins":[
	  {"identity":"swift-collections","state":{"version":"1.2.3","revision":"abc"}},
	  {"identity":"swift-argument-parser","state":{"version":"3.0.0"}}
	],"version":2}`
	require.NoError(t, os.WriteFile(h.env.ResolvedPath(), []byte(resolved), 0o644))

	entries, err := h.wf.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, registry.PinSatisfied, entries[0].Status)
	assert.Equal(t, "1.2.3", entries[0].Pin.Resolved())
	assert.Equal(t, registry.PinOutOfRange, entries[1].Status)
}

func TestList_Unresolved(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)

	entries, err := h.wf.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].Pin)
	assert.Equal(t, registry.PinUnchecked, entries[0].Status)
}

func TestShowDependencies(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.wf.ShowDependencies(context.Background()))
	assert.Len(t, callsWithPrefix(h.fake.Calls(), "ShowDependencies "+h.env.RunnerDir()), 1)
}

// =============================================================================
// Info
// =============================================================================

func TestInfo_ReportsInstalledPackage(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)
	h.fake.Descriptions = map[string]toolchain.PackageDescription{
		"swift-collections": {
			Name:      "swift-collections",
			Platforms: []string{"macos 10.15"},
			Libraries: []string{"Collections", "DequeModule"},
			Modules:   []string{"Collections", "DequeModule", "OrderedCollections"},
		},
	}
	resolved := `{"pins":[{"identity":"swift-collections","state":{"version":"1.2.3"}}],"version":2}`
	require.NoError(t, os.WriteFile(h.env.ResolvedPath(), []byte(resolved), 0o644))
	before := h.read(t, h.env.PackagesPath())

	info, err := h.wf.Info(context.Background(), " Swift-Collections ")
	require.NoError(t, err)
	assert.Equal(t, collectionsURL, info.Package.URL)
	assert.Equal(t, "1.2.0 - 2.0.0", info.Package.Requirement.String())
	assert.Equal(t, []string{"macos 10.15"}, info.Description.Platforms)
	assert.Equal(t, []string{"Collections", "DequeModule", "OrderedCollections"}, info.Description.Modules)
	require.NotNil(t, info.Pin)
	assert.Equal(t, "1.2.3", info.Pin.Resolved())
	assert.Equal(t, registry.PinSatisfied, info.Status)

	assert.Contains(t, h.fake.Calls(), "DescribePackage swift-collections")
	assert.Equal(t, before, h.read(t, h.env.PackagesPath()))
	assert.Empty(t, h.errOut.String())
}

func TestInfo_Unresolved(t *testing.T) {
	h := newHarness(t)
	h.install(t, parserURL)

	info, err := h.wf.Info(context.Background(), "swift-argument-parser")
	require.NoError(t, err)
	assert.Nil(t, info.Pin)
	assert.Equal(t, registry.PinUnchecked, info.Status)
	assert.Equal(t, []string{"ArgumentParser"}, info.Description.Modules)
}

func TestInfo_NotInstalled(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)

	var unknown *registry.UnknownPackagesError
	_, err := h.wf.Info(context.Background(), "swift-nio")
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, []string{"swift-nio"}, unknown.Identities)

	require.NoError(t, os.RemoveAll(h.env.CheckoutDir("swift-collections")))
	_, err = h.wf.Info(context.Background(), "swift-collections")
	assert.ErrorAs(t, err, &unknown)

	_, err = h.wf.Info(context.Background(), " ")
	assert.ErrorIs(t, err, ErrInvalidArguments)
}

func TestShowPackageDependencies(t *testing.T) {
	h := newHarness(t)
	h.install(t, collectionsURL)

	require.NoError(t, h.wf.ShowPackageDependencies(context.Background(), "swift-collections"))
	assert.Contains(t, h.fake.Calls(), "ShowDependencies "+h.env.CheckoutDir("swift-collections"))

	var unknown *registry.UnknownPackagesError
	assert.ErrorAs(t, h.wf.ShowPackageDependencies(context.Background(), "swift-nio"), &unknown)
}

// =============================================================================
// Concurrency
// =============================================================================

// TestConcurrentInstalls runs installs of different packages from separate
// workflows sharing one installation. The lock must serialize them so that
// neither write is lost.
func TestConcurrentInstalls(t *testing.T) {
	h := newHarness(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, url := range []string{collectionsURL, parserURL} {
		wf, err := New(Config{Env: h.env, Toolchain: h.fake})
		require.NoError(t, err)
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = wf.Install(context.Background(), InstallOptions{Package: url})
		}()
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.ElementsMatch(t, []string{"swift-collections", "swift-argument-parser"}, h.packages(t).Identities())

	manifest := string(h.read(t, h.env.ManifestPath()))
	assert.Contains(t, manifest, "swift-collections")
	assert.Contains(t, manifest, "swift-argument-parser")
}
