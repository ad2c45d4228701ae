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
	"errors"
	"fmt"
)

// Sentinel errors for registry operations.
var (
	// Invariant errors
	ErrInvertedRange     = errors.New("range lower bound exceeds upper bound")
	ErrDuplicateIdentity = errors.New("duplicate package identity")

	// Lookup errors
	ErrPackageNotInstalled = errors.New("package is not installed")

	// Decode errors
	ErrMalformedRequirement = errors.New("requirement must have exactly one of exact, branch or range")
	ErrInvalidURL           = errors.New("invalid package url")
)

// StateInconsistencyError reports a violated registry invariant.
//
// # Description
//
// Raised when a computed or decoded value breaks an invariant the rest of
// the system relies on, such as a range whose lower bound is above its
// upper bound or two packages sharing an identity. It is never repaired
// silently: the caller surfaces it and aborts the operation.
type StateInconsistencyError struct {
	// Subject names what was inconsistent ("range", "registry").
	Subject string

	// Detail is a human-readable description of the values involved.
	Detail string

	// Err is the sentinel describing the broken invariant.
	Err error
}

// Error implements the error interface.
func (e *StateInconsistencyError) Error() string {
	return fmt.Sprintf("inconsistent %s: %v (%s)", e.Subject, e.Err, e.Detail)
}

// Unwrap returns the sentinel.
func (e *StateInconsistencyError) Unwrap() error {
	return e.Err
}

// UnknownPackagesError lists identities that were requested but are not
// installed.
type UnknownPackagesError struct {
	Identities []string
}

// Error implements the error interface.
func (e *UnknownPackagesError) Error() string {
	return fmt.Sprintf("packages not installed: %v", e.Identities)
}

// Unwrap returns ErrPackageNotInstalled.
func (e *UnknownPackagesError) Unwrap() error {
	return ErrPackageNotInstalled
}
