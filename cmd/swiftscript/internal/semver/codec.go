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
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// MarshalJSON encodes v as its canonical string.
func (v SemanticVersion) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a version string, rejecting malformed input.
func (v *SemanticVersion) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML encodes v as its canonical string.
func (v SemanticVersion) MarshalYAML() (any, error) {
	return v.String(), nil
}

// UnmarshalYAML decodes a scalar version string.
func (v *SemanticVersion) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML encodes v as "major.minor.patch".
func (v Version) MarshalYAML() (any, error) {
	return v.String(), nil
}

// UnmarshalYAML decodes a scalar version string.
func (v *Version) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
