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
	"math"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
)

// RangePolicy chooses the natural upper boundary of a derived range.
type RangePolicy int

const (
	// UpToNextMajor bounds the range at (major+1).0.0.
	UpToNextMajor RangePolicy = iota

	// UpToNextMinor bounds the range at major.(minor+1).0.
	UpToNextMinor
)

// String returns the policy name.
func (p RangePolicy) String() string {
	if p == UpToNextMinor {
		return "up-to-next-minor"
	}
	return "up-to-next-major"
}

// DeriveRange computes the [lower, upper) interval for a requirement.
//
// # Description
//
// The natural boundary is computed from the core of from: (major+1).0.0
// for UpToNextMajor, major.(minor+1).0 for UpToNextMinor. When to is
// non-empty the effective upper bound is min(to, natural), so a caller
// supplied bound can only shrink the range, never widen it. Both bounds
// come back as canonical strings.
//
// DeriveRange does not check the ordering of its result. A to below from
// yields an inverted interval; RangeRequirement rejects that case.
//
// # Inputs
//
//   - from: Lower bound text.
//   - to: Optional upper bound text ("" for none).
//   - policy: Natural boundary rule.
//
// # Outputs
//
//   - Bounds: The interval.
//   - error: *semver.ParseError when either input is malformed, or when
//     the component the policy increments is already math.MaxInt.
//
// # Example
//
//	b, _ := DeriveRange("1.2.0", "5.0.0", UpToNextMajor) // 1.2.0 ..< 2.0.0
//	b, _ = DeriveRange("1.2.0", "1.1.0", UpToNextMajor)  // 1.2.0 ..< 1.1.0
func DeriveRange(from, to string, policy RangePolicy) (Bounds, error) {
	lo, hi, err := deriveRange(from, to, policy)
	if err != nil {
		return Bounds{}, err
	}
	return Bounds{Lower: lo.String(), Upper: hi.String()}, nil
}

// RangeRequirement derives a range with DeriveRange and validates it.
//
// # Outputs
//
//   - Requirement: A KindRange requirement.
//   - error: *semver.ParseError for malformed input, or
//     *StateInconsistencyError when the supplied upper bound is below the
//     lower bound.
func RangeRequirement(from, to string, policy RangePolicy) (Requirement, error) {
	lo, hi, err := deriveRange(from, to, policy)
	if err != nil {
		return Requirement{}, err
	}
	return rangeOf(lo, hi)
}

func deriveRange(from, to string, policy RangePolicy) (semver.SemanticVersion, semver.SemanticVersion, error) {
	lo, err := semver.Parse(from)
	if err != nil {
		return semver.SemanticVersion{}, semver.SemanticVersion{}, err
	}

	var next semver.SemanticVersion
	switch {
	case policy == UpToNextMinor && lo.Minor() == math.MaxInt:
		return lo, lo, &semver.ParseError{Input: from, Reason: "minor component is out of range for an up-to-next-minor requirement"}
	case policy == UpToNextMinor:
		next = lo.NextMinor()
	case lo.Major() == math.MaxInt:
		return lo, lo, &semver.ParseError{Input: from, Reason: "major component is out of range for an up-to-next-major requirement"}
	default:
		next = lo.NextMajor()
	}

	if to == "" {
		return lo, next, nil
	}
	supplied, err := semver.Parse(to)
	if err != nil {
		return semver.SemanticVersion{}, semver.SemanticVersion{}, err
	}
	return lo, semver.Min(supplied, next), nil
}
