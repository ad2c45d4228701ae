// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"errors"
	"fmt"
	"strings"
)

// ExitCommandNotFound is the shell convention for a missing program.
const ExitCommandNotFound = 127

// ExternalCommandError is a failed external tool invocation.
//
// # Description
//
// Carries the full command line, the exit code and the captured standard
// error so the CLI can show the tool's own diagnostics verbatim and exit
// with the tool's status.
//
// # Example
//
//	err := NewExternalCommandError("swift build", 1, "error: no such module", nil)
//	fmt.Println(err.Error()) // "swift build (exit 1): error: no such module"
type ExternalCommandError struct {
	// Command is the full command line.
	Command string

	// ExitCode is the process exit code (-1 if unknown).
	ExitCode int

	// Stderr contains the captured standard error, trimmed.
	Stderr string

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns the command, exit code and stderr when available.
func (e *ExternalCommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Command, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Command, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Command, e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *ExternalCommandError) Unwrap() error {
	return e.Wrapped
}

// HasStderr returns true if stderr output is available.
func (e *ExternalCommandError) HasStderr() bool {
	return e.Stderr != ""
}

// NewExternalCommandError creates an ExternalCommandError. Stderr is
// trimmed of surrounding whitespace.
func NewExternalCommandError(cmd string, exitCode int, stderr string, wrapped error) *ExternalCommandError {
	return &ExternalCommandError{
		Command:  cmd,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}

// ExtractStderr returns the stderr of the first ExternalCommandError in
// err's chain, or "".
func ExtractStderr(err error) string {
	var cmdErr *ExternalCommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Stderr
	}
	return ""
}
