// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry models the installed-package registry and everything
// derived from it: requirements, version ranges and the generated runner
// manifest.
//
// The registry is persisted as packages.json, a JSON array read and written
// wholesale. Identity uniqueness holds for every value produced by Decode
// and by the mutation helpers in this package.
package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"path"
	"slices"
	"strings"
)

// InstalledPackage is one entry in packages.json.
type InstalledPackage struct {
	// Identity is the unique lowercase key, derived from URL.
	Identity string `json:"identity"`

	// URL is the package source location.
	URL string `json:"url"`

	// Libraries are the product names the runner depends on.
	Libraries []string `json:"libraries"`

	// Requirement constrains the resolved version.
	Requirement Requirement `json:"requirement"`
}

// Describe renders the multi-line block shown by list.
func (p InstalledPackage) Describe() string {
	return fmt.Sprintf("%s:\n    url: %s\n    libraries: %v\n    version requirement: %s",
		p.Identity, p.URL, p.Libraries, p.Requirement)
}

// Identity derives a package identity from its source URL: the last path
// component with any ".git" suffix removed, lowercased.
//
// # Example
//
//	Identity("https://github.com/apple/swift-argument-parser.git")
//	// "swift-argument-parser"
func Identity(rawURL string) (string, error) {
	p := strings.TrimSpace(rawURL)
	if strings.Contains(p, "://") {
		u, err := url.Parse(p)
		if err != nil {
			return "", fmt.Errorf("%w: %q: %v", ErrInvalidURL, rawURL, err)
		}
		p = u.Path
	} else if _, after, scp := strings.Cut(p, ":"); scp {
		// scp-like git@host:org/repo.git
		p = after
	}
	base := path.Base(strings.TrimRight(p, "/"))
	base = strings.TrimSuffix(base, ".git")
	if base == "" || base == "." || base == "/" {
		return "", fmt.Errorf("%w: %q has no path component", ErrInvalidURL, rawURL)
	}
	return strings.ToLower(base), nil
}

// =============================================================================
// Registry
// =============================================================================

// Registry is the ordered list of installed packages.
type Registry []InstalledPackage

// Decode parses packages.json. Empty input decodes to an empty registry.
//
// # Outputs
//
//   - Registry: The packages in file order.
//   - error: JSON errors, requirement validation errors, or a
//     *StateInconsistencyError when two entries share an identity.
func Decode(data []byte) (Registry, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Registry{}, nil
	}
	var reg Registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, fmt.Errorf("decode registry: %w", err)
	}
	if reg == nil {
		reg = Registry{}
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return reg, nil
}

// Encode renders the registry as indented JSON with a trailing newline.
func (r Registry) Encode() ([]byte, error) {
	out := r
	if out == nil {
		out = Registry{}
	}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode registry: %w", err)
	}
	return append(data, '\n'), nil
}

// Validate checks identity uniqueness.
func (r Registry) Validate() error {
	seen := make(map[string]struct{}, len(r))
	for _, p := range r {
		if _, dup := seen[p.Identity]; dup {
			return &StateInconsistencyError{
				Subject: "registry",
				Detail:  "identity " + p.Identity,
				Err:     ErrDuplicateIdentity,
			}
		}
		seen[p.Identity] = struct{}{}
	}
	return nil
}

// Find returns the package with identity and whether it exists.
func (r Registry) Find(identity string) (InstalledPackage, bool) {
	i := r.index(identity)
	if i < 0 {
		return InstalledPackage{}, false
	}
	return r[i], true
}

// Upsert returns a copy of r with pkg appended, or replacing the entry that
// shares its identity in place.
func (r Registry) Upsert(pkg InstalledPackage) Registry {
	out := slices.Clone(r)
	if i := out.index(pkg.Identity); i >= 0 {
		out[i] = pkg
		return out
	}
	return append(out, pkg)
}

// Remove returns a copy of r without the named identities. Every identity
// must be installed, otherwise r is left untouched and an
// *UnknownPackagesError lists the missing ones.
func (r Registry) Remove(identities ...string) (Registry, error) {
	var missing []string
	drop := make(map[string]struct{}, len(identities))
	for _, id := range identities {
		if r.index(id) < 0 {
			missing = append(missing, id)
		}
		drop[id] = struct{}{}
	}
	if len(missing) > 0 {
		return r, &UnknownPackagesError{Identities: missing}
	}
	return slices.DeleteFunc(slices.Clone(r), func(p InstalledPackage) bool {
		_, ok := drop[p.Identity]
		return ok
	}), nil
}

// Identities returns the identities in registry order.
func (r Registry) Identities() []string {
	ids := make([]string, len(r))
	for i, p := range r {
		ids[i] = p.Identity
	}
	return ids
}

func (r Registry) index(identity string) int {
	return slices.IndexFunc(r, func(p InstalledPackage) bool {
		return p.Identity == identity
	})
}
