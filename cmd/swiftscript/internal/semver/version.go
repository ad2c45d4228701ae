// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package semver implements the version model used for dependency
// requirements and tool configuration.
//
// Two types are provided:
//
//   - SemanticVersion: major.minor.patch with optional prerelease and build
//     identifiers, totally ordered. This is the canonical type.
//   - Version: a plain three-component version used for config values
//     (tools version, deployment target). It accepts the same plain x.y.z
//     strings as SemanticVersion and orders them identically.
//
// Both types are immutable values and are safe for concurrent use.
package semver

import (
	"cmp"
	"slices"
	"strconv"
	"strings"
)

// =============================================================================
// SemanticVersion
// =============================================================================

// SemanticVersion is a parsed semantic version.
//
// # Description
//
// Fields are unexported so a value cannot be changed after construction;
// the Prerelease and Build accessors return copies. Construct values with
// Parse, MustParse or New.
//
// # Ordering
//
// Major, minor and patch compare numerically. At an equal core, a version
// without prerelease identifiers is greater than one with them. Prerelease
// identifiers compare pairwise: numerically when both are all digits,
// numeric before alphanumeric, lexically otherwise. When one list is a
// prefix of the other the shorter list is smaller. Build identifiers never
// take part in ordering; use StrictEqual to compare them.
type SemanticVersion struct {
	major      int
	minor      int
	patch      int
	prerelease []string
	build      []string
}

// New builds a SemanticVersion from explicit fields.
//
// # Inputs
//
//   - major, minor, patch: Must be non-negative.
//   - prerelease, build: Identifiers; each must be non-empty and must not
//     contain '.', '+' or '-'. May be nil.
//
// # Outputs
//
//   - SemanticVersion: The constructed value.
//   - error: *ParseError when a field violates the grammar.
func New(major, minor, patch int, prerelease, build []string) (SemanticVersion, error) {
	v := SemanticVersion{
		major:      major,
		minor:      minor,
		patch:      patch,
		prerelease: slices.Clone(prerelease),
		build:      slices.Clone(build),
	}
	if major < 0 || minor < 0 || patch < 0 {
		return SemanticVersion{}, parseErrorf(v.String(), "core components must be non-negative")
	}
	for _, id := range v.prerelease {
		if err := checkIdentifier(v.String(), "prerelease", id); err != nil {
			return SemanticVersion{}, err
		}
	}
	for _, id := range v.build {
		if err := checkIdentifier(v.String(), "build", id); err != nil {
			return SemanticVersion{}, err
		}
	}
	return v, nil
}

// Parse parses text using the grammar
//
//	["v"|"V"] core ["-" prerelease] ["+" build]
//
// # Description
//
// Surrounding whitespace is trimmed and a single leading "v" or "V" is
// dropped. The first "+" splits off the build identifiers; a second "+" is
// rejected. The remainder may contain at most one "-", which splits off the
// prerelease identifiers. Both identifier lists are "."-separated and every
// identifier must be non-empty. The core has at most three "."-separated
// non-negative decimal integers; missing trailing components default to 0,
// so "1.2" parses as 1.2.0.
//
// # Outputs
//
//   - SemanticVersion: The parsed value.
//   - error: *ParseError describing the first rule the input broke.
//
// # Example
//
//	v, err := semver.Parse("v1.0.0-rc.1+exp.sha")
//	// v.String() == "1.0.0-rc.1+exp.sha"
func Parse(text string) (SemanticVersion, error) {
	s := trimPrefixV(strings.TrimSpace(text))
	if s == "" {
		return SemanticVersion{}, parseErrorf(text, "blank version string")
	}

	rest, buildText, hasBuild := strings.Cut(s, "+")
	var build []string
	if hasBuild {
		if strings.Contains(buildText, "+") {
			return SemanticVersion{}, parseErrorf(text, "more than one '+' separator")
		}
		build = strings.Split(buildText, ".")
		if slices.Contains(build, "") {
			return SemanticVersion{}, parseErrorf(text, "build identifiers must not be empty")
		}
	}

	groups := strings.Split(rest, "-")
	if len(groups) > 2 {
		return SemanticVersion{}, parseErrorf(text, "unexpected extra components %q", groups[2:])
	}
	var prerelease []string
	if len(groups) == 2 {
		prerelease = strings.Split(groups[1], ".")
		if slices.Contains(prerelease, "") {
			return SemanticVersion{}, parseErrorf(text, "prerelease identifiers must not be empty")
		}
	}

	core, err := parseCore(text, groups[0])
	if err != nil {
		return SemanticVersion{}, err
	}

	return SemanticVersion{
		major:      core[0],
		minor:      core[1],
		patch:      core[2],
		prerelease: prerelease,
		build:      build,
	}, nil
}

// MustParse is like Parse but panics on error. Intended for constants and
// tests.
func MustParse(text string) SemanticVersion {
	v, err := Parse(text)
	if err != nil {
		panic(err)
	}
	return v
}

// Major returns the major component.
func (v SemanticVersion) Major() int { return v.major }

// Minor returns the minor component.
func (v SemanticVersion) Minor() int { return v.minor }

// Patch returns the patch component.
func (v SemanticVersion) Patch() int { return v.patch }

// Prerelease returns a copy of the prerelease identifiers.
func (v SemanticVersion) Prerelease() []string { return slices.Clone(v.prerelease) }

// Build returns a copy of the build identifiers.
func (v SemanticVersion) Build() []string { return slices.Clone(v.build) }

// IsPrerelease reports whether v carries prerelease identifiers.
func (v SemanticVersion) IsPrerelease() bool { return len(v.prerelease) > 0 }

// Core returns major.minor.patch with prerelease and build dropped.
func (v SemanticVersion) Core() SemanticVersion {
	return SemanticVersion{major: v.major, minor: v.minor, patch: v.patch}
}

// NextMajor returns (major+1).0.0. It wraps when major is math.MaxInt.
func (v SemanticVersion) NextMajor() SemanticVersion {
	return SemanticVersion{major: v.major + 1}
}

// NextMinor returns major.(minor+1).0. It wraps when minor is math.MaxInt.
func (v SemanticVersion) NextMinor() SemanticVersion {
	return SemanticVersion{major: v.major, minor: v.minor + 1}
}

// String renders the canonical form major.minor.patch[-pre][+build].
func (v SemanticVersion) String() string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(v.major))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(v.minor))
	b.WriteByte('.')
	b.WriteString(strconv.Itoa(v.patch))
	if len(v.prerelease) > 0 {
		b.WriteByte('-')
		b.WriteString(strings.Join(v.prerelease, "."))
	}
	if len(v.build) > 0 {
		b.WriteByte('+')
		b.WriteString(strings.Join(v.build, "."))
	}
	return b.String()
}

// Compare returns -1, 0 or +1 when v is less than, equal to or greater
// than other. Build identifiers are ignored.
func (v SemanticVersion) Compare(other SemanticVersion) int {
	if c := cmp.Compare(v.major, other.major); c != 0 {
		return c
	}
	if c := cmp.Compare(v.minor, other.minor); c != 0 {
		return c
	}
	if c := cmp.Compare(v.patch, other.patch); c != 0 {
		return c
	}
	return comparePrerelease(v.prerelease, other.prerelease)
}

// LessThan reports v < other.
func (v SemanticVersion) LessThan(other SemanticVersion) bool { return v.Compare(other) < 0 }

// Equal reports whether v and other have the same precedence.
func (v SemanticVersion) Equal(other SemanticVersion) bool { return v.Compare(other) == 0 }

// StrictEqual is Equal plus identical build identifiers.
func (v SemanticVersion) StrictEqual(other SemanticVersion) bool {
	return v.Equal(other) && slices.Equal(v.build, other.build)
}

// Min returns the smaller of a and b, preferring a on a tie.
func Min(a, b SemanticVersion) SemanticVersion {
	if b.LessThan(a) {
		return b
	}
	return a
}

// =============================================================================
// Helpers
// =============================================================================

func trimPrefixV(s string) string {
	if strings.HasPrefix(s, "v") || strings.HasPrefix(s, "V") {
		return s[1:]
	}
	return s
}

// parseCore parses up to three numeric components and pads with zeros.
func parseCore(input, core string) ([3]int, error) {
	var out [3]int
	parts := strings.Split(core, ".")
	if len(parts) > 3 {
		return out, parseErrorf(input, "unexpected extra core components %q", parts[3:])
	}
	for i, p := range parts {
		if !isNumeric(p) {
			return out, parseErrorf(input, "core component %q is not a non-negative integer", p)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, parseErrorf(input, "core component %q is out of range", p)
		}
		out[i] = n
	}
	return out, nil
}

func checkIdentifier(input, kind, id string) error {
	if id == "" {
		return parseErrorf(input, "%s identifiers must not be empty", kind)
	}
	if strings.ContainsAny(id, ".+-") {
		return parseErrorf(input, "%s identifier %q contains a separator", kind, id)
	}
	return nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func comparePrerelease(a, b []string) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	case len(a) == 0:
		return 1
	case len(b) == 0:
		return -1
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareIdentifier(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(a), len(b))
}

// compareIdentifier orders numeric identifiers by value without a size
// limit. Numerically equal spellings such as "01" and "1" fall back to a
// byte comparison so the order stays total.
func compareIdentifier(a, b string) int {
	aNum, bNum := isNumeric(a), isNumeric(b)
	switch {
	case aNum && bNum:
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if c := cmp.Compare(len(ta), len(tb)); c != 0 {
			return c
		}
		if c := strings.Compare(ta, tb); c != 0 {
			return c
		}
		return strings.Compare(a, b)
	case aNum:
		return -1
	case bNum:
		return 1
	default:
		return strings.Compare(a, b)
	}
}
