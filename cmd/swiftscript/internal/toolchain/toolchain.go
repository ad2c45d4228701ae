// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolchain wraps the external collaborators swiftscript depends on:
// the swift toolchain, remote git tags and the compiled script itself.
//
// Every call goes through process.Manager, so failures surface as
// *process.ExternalCommandError carrying the tool's exit code and stderr.
package toolchain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/infra/process"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
)

var (
	// ErrNoMatchingVersion is returned when no tag satisfies the upper bound.
	ErrNoMatchingVersion = errors.New("failed to find any matching version")

	// ErrUnexpectedOutput is returned when a tool prints something that
	// cannot be parsed.
	ErrUnexpectedOutput = errors.New("unexpected toolchain output")
)

var tracer = otel.Tracer("swiftscript.toolchain")

// Toolchain is the boundary to everything swiftscript does not implement
// itself.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; update --all fetches
// versions for several packages at once.
type Toolchain interface {
	// FetchVersions lists the remote tags of url that parse as semantic
	// versions, ascending.
	FetchVersions(ctx context.Context, url string) ([]semver.SemanticVersion, error)

	// FetchLatestVersion returns the greatest release tag of url. When upTo
	// is non-nil only tags strictly below it are considered.
	FetchLatestVersion(ctx context.Context, url string, upTo *semver.SemanticVersion) (semver.SemanticVersion, error)

	// Resolve runs dependency resolution for the package in pkgDir.
	Resolve(ctx context.Context, pkgDir string) error

	// Build compiles the package in pkgDir in release mode. args are passed
	// through to the build command.
	Build(ctx context.Context, pkgDir string, args []string) error

	// DescribeProducts returns the library product names of the package
	// checked out at checkoutDir.
	DescribeProducts(ctx context.Context, checkoutDir string) ([]string, error)

	// DescribePackage returns the name, platforms, library products and
	// library modules of the package checked out at checkoutDir.
	DescribePackage(ctx context.Context, checkoutDir string) (PackageDescription, error)

	// ToolsVersion returns the installed compiler version.
	ToolsVersion(ctx context.Context) (semver.Version, error)

	// InitPackage creates an executable package in dir.
	InitPackage(ctx context.Context, dir string) error

	// ShowDependencies prints the dependency tree of the package in pkgDir.
	ShowDependencies(ctx context.Context, pkgDir string) error

	// RunExecutable runs a built script with the caller's standard streams.
	RunExecutable(ctx context.Context, path string, args []string) error

	// HostMacOSVersion returns the running macOS version, or nil on other
	// systems.
	HostMacOSVersion(ctx context.Context) (*semver.Version, error)
}

// =============================================================================
// Swift implementation
// =============================================================================

// SwiftToolchain implements Toolchain with the swift CLI and go-git.
type SwiftToolchain struct {
	// Swift is the swift executable. Default: "swift"
	Swift string

	// Runner executes every external command.
	Runner process.Manager

	// Tags lists remote tags. Default: GitTagLister
	Tags TagLister

	// Verbose streams resolve output as well as build output.
	Verbose bool

	// Stdin, Stdout and Stderr are the streams given to builds and scripts.
	// Nil writers discard.
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// GOOS overrides runtime.GOOS for HostMacOSVersion.
	GOOS string

	Logger *slog.Logger
}

// NewSwiftToolchain returns a toolchain running swiftPath through runner.
func NewSwiftToolchain(swiftPath string, runner process.Manager, logger *slog.Logger) *SwiftToolchain {
	if logger == nil {
		logger = slog.Default()
	}
	return &SwiftToolchain{
		Swift:  swiftPath,
		Runner: runner,
		Tags:   GitTagLister{},
		GOOS:   runtime.GOOS,
		Logger: logger,
	}
}

var _ Toolchain = (*SwiftToolchain)(nil)

func (s *SwiftToolchain) swift() string {
	if s.Swift == "" {
		return "swift"
	}
	return s.Swift
}

func (s *SwiftToolchain) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// run executes cmd inside a span named after op.
func (s *SwiftToolchain) run(ctx context.Context, op string, cmd process.Command) (process.Result, error) {
	ctx, span := tracer.Start(ctx, "toolchain."+op,
		trace.WithAttributes(attribute.String("command", cmd.String())))
	defer span.End()

	res, err := s.Runner.Run(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return res, err
	}
	return res, nil
}

// FetchVersions implements Toolchain.
func (s *SwiftToolchain) FetchVersions(ctx context.Context, url string) ([]semver.SemanticVersion, error) {
	ctx, span := tracer.Start(ctx, "toolchain.fetch_versions", trace.WithAttributes(attribute.String("url", url)))
	defer span.End()

	lister := s.Tags
	if lister == nil {
		lister = GitTagLister{}
	}
	tags, err := lister.ListTags(ctx, url)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	versions := VersionsFromTags(tags)
	s.logger().Debug("fetched versions", "url", url, "tags", len(tags), "versions", len(versions))
	return versions, nil
}

// FetchLatestVersion implements Toolchain. Prerelease tags are skipped.
func (s *SwiftToolchain) FetchLatestVersion(ctx context.Context, url string, upTo *semver.SemanticVersion) (semver.SemanticVersion, error) {
	versions, err := s.FetchVersions(ctx, url)
	if err != nil {
		return semver.SemanticVersion{}, err
	}
	return LatestVersion(versions, upTo, url)
}

// LatestVersion picks the greatest release version below upTo from an
// ascending list.
func LatestVersion(versions []semver.SemanticVersion, upTo *semver.SemanticVersion, url string) (semver.SemanticVersion, error) {
	for i := len(versions) - 1; i >= 0; i-- {
		v := versions[i]
		if v.IsPrerelease() {
			continue
		}
		if upTo != nil && !v.LessThan(*upTo) {
			continue
		}
		return v, nil
	}
	if upTo != nil {
		return semver.SemanticVersion{}, fmt.Errorf("%w for %s below %s", ErrNoMatchingVersion, url, upTo)
	}
	return semver.SemanticVersion{}, fmt.Errorf("%w for %s", ErrNoMatchingVersion, url)
}

// Resolve implements Toolchain.
func (s *SwiftToolchain) Resolve(ctx context.Context, pkgDir string) error {
	cmd := process.Command{
		Name: s.swift(),
		Args: []string{"package", "resolve", "--package-path", pkgDir},
	}
	if s.Verbose {
		cmd.Stdout, cmd.Stderr = s.Stdout, s.Stderr
	}
	_, err := s.run(ctx, "resolve", cmd)
	return err
}

// Build implements Toolchain. Build output is always streamed.
func (s *SwiftToolchain) Build(ctx context.Context, pkgDir string, args []string) error {
	cmd := process.Command{
		Name:   s.swift(),
		Args:   append([]string{"build", "--package-path", pkgDir, "-c", "release"}, args...),
		Stdout: s.Stdout,
		Stderr: s.Stderr,
	}
	_, err := s.run(ctx, "build", cmd)
	return err
}

// PackageDescription is what swiftscript reads from
// `swift package describe --type json`.
type PackageDescription struct {
	Name string

	// Platforms are "name version" pairs, e.g. "macos 10.15". Empty when
	// the package does not restrict them.
	Platforms []string

	// Libraries are the library product names.
	Libraries []string

	// Modules are the library targets that belong to a library product,
	// i.e. what a script can import.
	Modules []string
}

type describeOutput struct {
	Name      string `json:"name"`
	Platforms []struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"platforms"`
	Products []struct {
		Name string                     `json:"name"`
		Type map[string]json.RawMessage `json:"type"`
	} `json:"products"`
	Targets []struct {
		Name               string   `json:"name"`
		Type               string   `json:"type"`
		ProductMemberships []string `json:"product_memberships"`
	} `json:"targets"`
}

// DescribePackage implements Toolchain.
func (s *SwiftToolchain) DescribePackage(ctx context.Context, checkoutDir string) (PackageDescription, error) {
	res, err := s.run(ctx, "describe", process.Command{
		Name: s.swift(),
		Args: []string{"package", "describe", "--type", "json"},
		Dir:  checkoutDir,
	})
	if err != nil {
		return PackageDescription{}, err
	}
	return ParseDescription(res.Stdout)
}

// DescribeProducts implements Toolchain.
func (s *SwiftToolchain) DescribeProducts(ctx context.Context, checkoutDir string) ([]string, error) {
	desc, err := s.DescribePackage(ctx, checkoutDir)
	if err != nil {
		return nil, err
	}
	return desc.Libraries, nil
}

// ParseDescription decodes the JSON printed by
// `swift package describe --type json`.
func ParseDescription(data []byte) (PackageDescription, error) {
	var out describeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return PackageDescription{}, fmt.Errorf("%w: package description: %v", ErrUnexpectedOutput, err)
	}

	desc := PackageDescription{Name: out.Name, Libraries: []string{}, Modules: []string{}}
	for _, p := range out.Platforms {
		desc.Platforms = append(desc.Platforms, p.Name+" "+p.Version)
	}
	libraries := make(map[string]bool)
	for _, p := range out.Products {
		if _, ok := p.Type["library"]; ok {
			desc.Libraries = append(desc.Libraries, p.Name)
			libraries[p.Name] = true
		}
	}
	for _, t := range out.Targets {
		if t.Type != "library" {
			continue
		}
		for _, product := range t.ProductMemberships {
			if libraries[product] {
				desc.Modules = append(desc.Modules, t.Name)
				break
			}
		}
	}
	return desc, nil
}

// ParseLibraries extracts library product names from the JSON printed by
// `swift package describe --type json`.
func ParseLibraries(data []byte) ([]string, error) {
	desc, err := ParseDescription(data)
	if err != nil {
		return nil, err
	}
	return desc.Libraries, nil
}

var swiftVersionRE = regexp.MustCompile(`Swift version (\d+(?:\.\d+){0,2})`)

// ToolsVersion implements Toolchain.
func (s *SwiftToolchain) ToolsVersion(ctx context.Context) (semver.Version, error) {
	res, err := s.run(ctx, "version", process.Command{Name: s.swift(), Args: []string{"--version"}})
	if err != nil {
		return semver.Version{}, err
	}
	return ParseSwiftVersion(string(res.Stdout))
}

// ParseSwiftVersion reads the compiler version from `swift --version`.
func ParseSwiftVersion(out string) (semver.Version, error) {
	m := swiftVersionRE.FindStringSubmatch(out)
	if m == nil {
		return semver.Version{}, fmt.Errorf("%w: no swift version in %q", ErrUnexpectedOutput, strings.TrimSpace(out))
	}
	return semver.ParseVersion(m[1])
}

// InitPackage implements Toolchain.
func (s *SwiftToolchain) InitPackage(ctx context.Context, dir string) error {
	_, err := s.run(ctx, "init", process.Command{
		Name: s.swift(),
		Args: []string{"package", "init", "--type", "executable", "--name", "swift-script-runner"},
		Dir:  dir,
	})
	return err
}

// ShowDependencies implements Toolchain.
func (s *SwiftToolchain) ShowDependencies(ctx context.Context, pkgDir string) error {
	_, err := s.run(ctx, "show_dependencies", process.Command{
		Name:   s.swift(),
		Args:   []string{"package", "show-dependencies", "--package-path", pkgDir},
		Stdout: s.Stdout,
		Stderr: s.Stderr,
	})
	return err
}

// RunExecutable implements Toolchain.
func (s *SwiftToolchain) RunExecutable(ctx context.Context, path string, args []string) error {
	stdout := s.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	_, err := s.run(ctx, "run_script", process.Command{
		Name:   path,
		Args:   args,
		Stdin:  s.Stdin,
		Stdout: stdout,
		Stderr: s.Stderr,
	})
	return err
}

// HostMacOSVersion implements Toolchain.
func (s *SwiftToolchain) HostMacOSVersion(ctx context.Context) (*semver.Version, error) {
	if s.GOOS != "darwin" {
		return nil, nil
	}
	res, err := s.run(ctx, "macos_version", process.Command{Name: "sw_vers", Args: []string{"-productVersion"}})
	if err != nil {
		return nil, err
	}
	v, err := semver.ParseVersion(strings.TrimSpace(string(res.Stdout)))
	if err != nil {
		return nil, err
	}
	return &v, nil
}
