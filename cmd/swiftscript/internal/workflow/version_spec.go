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
	"context"
	"fmt"
	"strings"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/toolchain"
)

// VersionSpec holds the version flags shared by install and update.
//
// At most one of Exact, Branch, From and UpToNextMinorFrom may be set. To
// narrows a range and only combines with From, UpToNextMinorFrom or with
// no selector at all.
type VersionSpec struct {
	Exact             string
	Branch            string
	From              string
	UpToNextMinorFrom string
	To                string
}

// IsZero reports whether no flag was given.
func (s VersionSpec) IsZero() bool {
	return s == VersionSpec{}
}

// Validate checks flag exclusivity, version syntax and the order of an
// explicit range.
//
// # Outputs
//
//   - error: ErrInvalidArguments for conflicting flags; *semver.ParseError
//     for a malformed version or a range bound that cannot be incremented;
//     *registry.StateInconsistencyError when To is below From or
//     UpToNextMinorFrom.
func (s VersionSpec) Validate() error {
	set := 0
	for _, v := range []string{s.Exact, s.Branch, s.From, s.UpToNextMinorFrom} {
		if v != "" {
			set++
		}
	}
	if set > 1 {
		return fmt.Errorf("%w: expect at most one of --exact, --branch, --from and --up-to-next-minor-from", ErrInvalidArguments)
	}
	if s.To != "" && (s.Exact != "" || s.Branch != "") {
		return fmt.Errorf("%w: --to only applies to version ranges", ErrInvalidArguments)
	}
	if strings.TrimSpace(s.Branch) == "" && s.Branch != "" {
		return fmt.Errorf("%w: branch name is blank", ErrInvalidArguments)
	}
	for _, v := range []string{s.Exact, s.From, s.UpToNextMinorFrom, s.To} {
		if v == "" {
			continue
		}
		if _, err := semver.Parse(v); err != nil {
			return err
		}
	}
	switch {
	case s.From != "":
		_, err := registry.RangeRequirement(s.From, s.To, registry.UpToNextMajor)
		return err
	case s.UpToNextMinorFrom != "":
		_, err := registry.RangeRequirement(s.UpToNextMinorFrom, s.To, registry.UpToNextMinor)
		return err
	}
	return nil
}

// Requirement turns the flags into a registry requirement. With no selector
// the latest release tag of url (below To, when given) becomes the lower
// bound of an up-to-next-major range.
func (s VersionSpec) Requirement(ctx context.Context, tc toolchain.Toolchain, url string) (registry.Requirement, error) {
	switch {
	case s.Exact != "":
		v, err := semver.Parse(s.Exact)
		if err != nil {
			return registry.Requirement{}, err
		}
		return registry.Exact(v.String()), nil
	case s.Branch != "":
		return registry.Branch(strings.TrimSpace(s.Branch)), nil
	case s.From != "":
		return registry.RangeRequirement(s.From, s.To, registry.UpToNextMajor)
	case s.UpToNextMinorFrom != "":
		return registry.RangeRequirement(s.UpToNextMinorFrom, s.To, registry.UpToNextMinor)
	}

	var upTo *semver.SemanticVersion
	if s.To != "" {
		v, err := semver.Parse(s.To)
		if err != nil {
			return registry.Requirement{}, err
		}
		upTo = &v
	}
	latest, err := tc.FetchLatestVersion(ctx, url, upTo)
	if err != nil {
		return registry.Requirement{}, err
	}
	return registry.RangeRequirement(latest.String(), s.To, registry.UpToNextMajor)
}
