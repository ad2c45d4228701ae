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
	"errors"
	"fmt"
)

// ErrInvalidVersion is the sentinel matched by every ParseError.
var ErrInvalidVersion = errors.New("invalid version")

// ParseError reports malformed version text.
//
// # Description
//
// Returned by Parse, ParseVersion and the JSON/YAML decoders. It is always
// a local validation failure raised before any state is touched, so callers
// never need to roll anything back when they see one.
//
// # Example
//
//	_, err := semver.Parse("1.a.0")
//	var perr *semver.ParseError
//	if errors.As(err, &perr) {
//	    fmt.Println(perr.Input) // "1.a.0"
//	}
type ParseError struct {
	// Input is the text as supplied by the caller.
	Input string

	// Reason describes which grammar rule the input broke.
	Reason string
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid version %q: %s", e.Input, e.Reason)
}

// Unwrap lets errors.Is(err, ErrInvalidVersion) match.
func (e *ParseError) Unwrap() error {
	return ErrInvalidVersion
}

func parseErrorf(input, format string, args ...any) *ParseError {
	return &ParseError{Input: input, Reason: fmt.Sprintf(format, args...)}
}
