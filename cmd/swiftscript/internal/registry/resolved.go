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
	"bytes"
	"encoding/json"
	"fmt"

	msemver "github.com/Masterminds/semver/v3"
)

// Pin is one resolved dependency from runner/Package.resolved.
type Pin struct {
	Identity string `json:"identity"`
	State    struct {
		Version  string `json:"version,omitempty"`
		Revision string `json:"revision,omitempty"`
		Branch   string `json:"branch,omitempty"`
	} `json:"state"`
}

// Resolved returns the pinned version, falling back to the commit hash.
func (p Pin) Resolved() string {
	switch {
	case p.State.Version != "":
		return p.State.Version
	case p.State.Revision != "":
		return p.State.Revision
	default:
		return "unknown"
	}
}

// PinStatus is the outcome of checking a pin against its requirement.
type PinStatus int

const (
	// PinUnchecked means the requirement has no version constraint
	// (branch) or the pin has no semantic version.
	PinUnchecked PinStatus = iota

	// PinSatisfied means the pinned version meets the requirement.
	PinSatisfied

	// PinOutOfRange means the pinned version violates the requirement and
	// the runner needs re-resolving.
	PinOutOfRange
)

// String returns a short label for list output.
func (s PinStatus) String() string {
	switch s {
	case PinSatisfied:
		return "ok"
	case PinOutOfRange:
		return "out of range"
	default:
		return "-"
	}
}

// DecodePins parses Package.resolved. Empty input yields no pins.
func DecodePins(data []byte) (map[string]Pin, error) {
	pins := make(map[string]Pin)
	if len(bytes.TrimSpace(data)) == 0 {
		return pins, nil
	}
	var file struct {
		Pins []Pin `json:"pins"`
	}
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("decode Package.resolved: %w", err)
	}
	for _, p := range file.Pins {
		pins[p.Identity] = p
	}
	return pins, nil
}

// CheckPin reports whether pin satisfies req.
//
// # Description
//
// Uses github.com/Masterminds/semver/v3 constraint matching. Exact and range
// requirements are translated by Requirement.Constraint; branch requirements
// and pins without a semantic version are PinUnchecked.
func CheckPin(req Requirement, pin Pin) (PinStatus, error) {
	constraint := req.Constraint()
	if constraint == "" || pin.State.Version == "" {
		return PinUnchecked, nil
	}
	c, err := msemver.NewConstraint(constraint)
	if err != nil {
		return PinUnchecked, fmt.Errorf("constraint %q: %w", constraint, err)
	}
	v, err := msemver.NewVersion(pin.State.Version)
	if err != nil {
		return PinUnchecked, fmt.Errorf("pinned version %q: %w", pin.State.Version, err)
	}
	if c.Check(v) {
		return PinSatisfied, nil
	}
	return PinOutOfRange, nil
}
