// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package semver

import (
	"cmp"
	"fmt"
	"strings"
)

// Version is a plain major.minor.patch triple.
//
// # Description
//
// Used for config values such as the Swift tools version and the macOS
// deployment target, which never carry prerelease or build identifiers.
// For any plain "x.y.z" (or shorter) string, ParseVersion and Parse agree
// on the components and on ordering.
type Version struct {
	Major int
	Minor int
	Patch int
}

// ParseVersion parses one to three "."-separated non-negative integers.
// Missing trailing components default to 0. A leading "v" is not accepted.
func ParseVersion(text string) (Version, error) {
	s := strings.TrimSpace(text)
	if s == "" {
		return Version{}, parseErrorf(text, "blank version string")
	}
	core, err := parseCore(text, s)
	if err != nil {
		return Version{}, err
	}
	return Version{Major: core[0], Minor: core[1], Patch: core[2]}, nil
}

// String renders "major.minor.patch".
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0 or +1.
func (v Version) Compare(other Version) int {
	if c := cmp.Compare(v.Major, other.Major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.Minor, other.Minor); c != 0 {
		return c
	}
	return cmp.Compare(v.Patch, other.Patch)
}

// Semantic converts v to the canonical type.
func (v Version) Semantic() SemanticVersion {
	return SemanticVersion{major: v.Major, minor: v.Minor, patch: v.Patch}
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := ParseVersion(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
