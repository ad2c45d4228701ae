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
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
)

// Kind discriminates the Requirement variants.
type Kind int

const (
	// KindExact pins a single version.
	KindExact Kind = iota + 1

	// KindBranch tracks a git branch.
	KindBranch

	// KindRange accepts any version in [lower, upper).
	KindRange
)

// String returns "exact", "branch" or "range".
func (k Kind) String() string {
	switch k {
	case KindExact:
		return "exact"
	case KindBranch:
		return "branch"
	case KindRange:
		return "range"
	default:
		return "unknown"
	}
}

// Bounds is a half-open version interval kept as canonical strings, so it
// can be written verbatim into the manifest and the registry file.
type Bounds struct {
	Lower string `json:"lower_bound"`
	Upper string `json:"upper_bound"`
}

// Requirement is the version constraint of an installed package.
//
// # Description
//
// A tagged union of exact(version), branch(name) and range(lower, upper).
// The zero value is invalid; build values with Exact, Branch, NewRange or
// RangeRequirement. A range Requirement always satisfies lower <= upper
// with both bounds valid semantic versions.
//
// # Serialization
//
//	{"exact": "1.2.3"}
//	{"branch": "main"}
//	{"range": {"lower_bound": "1.4.0", "upper_bound": "2.0.0"}}
type Requirement struct {
	kind   Kind
	value  string
	bounds Bounds
}

// Exact returns a requirement pinned to version.
func Exact(version string) Requirement {
	return Requirement{kind: KindExact, value: version}
}

// Branch returns a requirement tracking a branch.
func Branch(name string) Requirement {
	return Requirement{kind: KindBranch, value: name}
}

// NewRange validates and returns a range requirement.
//
// # Outputs
//
//   - Requirement: The range, with bounds rewritten to canonical form.
//   - error: *semver.ParseError when a bound is malformed;
//     *StateInconsistencyError when lower > upper.
func NewRange(lower, upper string) (Requirement, error) {
	lo, err := semver.Parse(lower)
	if err != nil {
		return Requirement{}, err
	}
	hi, err := semver.Parse(upper)
	if err != nil {
		return Requirement{}, err
	}
	return rangeOf(lo, hi)
}

func rangeOf(lo, hi semver.SemanticVersion) (Requirement, error) {
	if hi.LessThan(lo) {
		return Requirement{}, &StateInconsistencyError{
			Subject: "range",
			Detail:  fmt.Sprintf("lower %s, upper %s", lo, hi),
			Err:     ErrInvertedRange,
		}
	}
	return Requirement{
		kind:   KindRange,
		bounds: Bounds{Lower: lo.String(), Upper: hi.String()},
	}, nil
}

// Kind returns the variant.
func (r Requirement) Kind() Kind { return r.kind }

// IsZero reports whether r was never initialized.
func (r Requirement) IsZero() bool { return r.kind == 0 }

// Version returns the exact version, or "" for other kinds.
func (r Requirement) Version() string {
	if r.kind == KindExact {
		return r.value
	}
	return ""
}

// BranchName returns the branch, or "" for other kinds.
func (r Requirement) BranchName() string {
	if r.kind == KindBranch {
		return r.value
	}
	return ""
}

// Bounds returns the interval of a range requirement.
func (r Requirement) Bounds() (Bounds, bool) {
	return r.bounds, r.kind == KindRange
}

// String is the human-readable form shown by list and update.
func (r Requirement) String() string {
	switch r.kind {
	case KindExact:
		return "exact " + r.value
	case KindBranch:
		return "branch " + r.value
	case KindRange:
		return r.bounds.Lower + " - " + r.bounds.Upper
	default:
		return "<none>"
	}
}

// Constraint renders r for github.com/Masterminds/semver constraint
// checks. Branch requirements have no version constraint and return "".
func (r Requirement) Constraint() string {
	switch r.kind {
	case KindExact:
		return "=" + r.value
	case KindRange:
		return fmt.Sprintf(">= %s, < %s", r.bounds.Lower, r.bounds.Upper)
	default:
		return ""
	}
}

type requirementJSON struct {
	Exact  *string `json:"exact,omitempty"`
	Branch *string `json:"branch,omitempty"`
	Range  *Bounds `json:"range,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r Requirement) MarshalJSON() ([]byte, error) {
	var out requirementJSON
	switch r.kind {
	case KindExact:
		out.Exact = &r.value
	case KindBranch:
		out.Branch = &r.value
	case KindRange:
		out.Range = &r.bounds
	default:
		return nil, ErrMalformedRequirement
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler. Range bounds are validated.
func (r *Requirement) UnmarshalJSON(data []byte) error {
	var in requirementJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}

	set := 0
	for _, present := range []bool{in.Exact != nil, in.Branch != nil, in.Range != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return ErrMalformedRequirement
	}

	switch {
	case in.Exact != nil:
		*r = Exact(*in.Exact)
	case in.Branch != nil:
		*r = Branch(*in.Branch)
	default:
		parsed, err := NewRange(in.Range.Lower, in.Range.Upper)
		if err != nil {
			return err
		}
		*r = parsed
	}
	return nil
}
