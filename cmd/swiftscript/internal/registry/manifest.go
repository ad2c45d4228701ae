// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
)

// ManifestOptions are the config values that shape a generated manifest.
type ManifestOptions struct {
	// ToolsVersion is written to the swift-tools-version header.
	ToolsVersion semver.Version

	// MacOSVersion, when non-nil, adds a .macOS(...) platform entry.
	MacOSVersion *semver.Version
}

// DependencyClause renders the .package(...) entry for pkg.
func DependencyClause(pkgURL string, req Requirement) string {
	switch req.Kind() {
	case KindExact:
		return fmt.Sprintf(".package(url: %q, exact: %q)", pkgURL, req.Version())
	case KindBranch:
		return fmt.Sprintf(".package(url: %q, branch: %q)", pkgURL, req.BranchName())
	default:
		b, _ := req.Bounds()
		return fmt.Sprintf(".package(url: %q, %q ..< %q)", pkgURL, b.Lower, b.Upper)
	}
}

// RenderManifest produces runner/Package.swift for the given registry.
//
// # Description
//
// The runner package has one executable target, "Runner", which depends on
// every library of every installed package. The output is deterministic:
// packages and libraries appear in registry order.
func RenderManifest(reg Registry, opts ManifestOptions) []byte {
	deps := make([]string, 0, len(reg))
	var products []string
	for _, p := range reg {
		deps = append(deps, DependencyClause(p.URL, p.Requirement))
		for _, lib := range p.Libraries {
			products = append(products, fmt.Sprintf(".product(name: %q, package: %q)", lib, p.Identity))
		}
	}

	var b strings.Builder
	writeHeader(&b, opts)
	b.WriteString("let package = Package(\n")
	b.WriteString("    name: \"swift-script-runner\",\n")
	fmt.Fprintf(&b, "    platforms: [%s],\n", platforms(opts))
	b.WriteString("    dependencies: [\n")
	writeList(&b, deps, "        ")
	b.WriteString("    ],\n")
	b.WriteString("    targets: [\n")
	b.WriteString("        .executableTarget(\n")
	b.WriteString("            name: \"Runner\",\n")
	b.WriteString("            dependencies: [\n")
	writeList(&b, products, "                ")
	b.WriteString("            ]\n")
	b.WriteString("        ),\n")
	b.WriteString("    ]\n")
	b.WriteString(")\n")
	return []byte(b.String())
}

// RenderProbeManifest produces a throwaway manifest that depends on a single
// package. Resolving it lets the toolchain fetch and describe the package
// before it is added to the runner.
func RenderProbeManifest(pkgURL string, req Requirement, opts ManifestOptions) []byte {
	var b strings.Builder
	writeHeader(&b, opts)
	b.WriteString("let package = Package(\n")
	b.WriteString("    name: \"temp\",\n")
	fmt.Fprintf(&b, "    platforms: [%s],\n", platforms(opts))
	b.WriteString("    dependencies: [\n")
	writeList(&b, []string{DependencyClause(pkgURL, req)}, "        ")
	b.WriteString("    ],\n")
	b.WriteString("    targets: [\n")
	b.WriteString("        .executableTarget(name: \"Runner\")\n")
	b.WriteString("    ]\n")
	b.WriteString(")\n")
	return []byte(b.String())
}

func writeHeader(b *strings.Builder, opts ManifestOptions) {
	fmt.Fprintf(b, "// swift-tools-version: %s\n", opts.ToolsVersion)
	b.WriteString("\nimport PackageDescription\n\n")
}

func platforms(opts ManifestOptions) string {
	if opts.MacOSVersion == nil {
		return ""
	}
	return fmt.Sprintf(".macOS(%q)", opts.MacOSVersion.String())
}

func writeList(b *strings.Builder, items []string, indent string) {
	for i, item := range items {
		b.WriteString(indent)
		b.WriteString(item)
		if i < len(items)-1 {
			b.WriteByte(',')
		}
		b.WriteByte('\n')
	}
}
