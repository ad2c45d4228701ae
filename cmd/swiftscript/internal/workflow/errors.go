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

import "errors"

var (
	// ErrInvalidArguments marks a usage error detected before the lock is
	// taken. The CLI maps it to exit code 2.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrAlreadyInstalled is returned by install when the package exists,
	// --force is not set and no terminal is available to ask.
	ErrAlreadyInstalled = errors.New("package is already installed (use --force to replace it)")

	// ErrConfirmationRequired is returned when a prompt would be needed but
	// stdin is not a terminal.
	ErrConfirmationRequired = errors.New("confirmation required but stdin is not a terminal (use --yes)")

	// ErrAlreadyInitialized is returned by init when the runner exists.
	ErrAlreadyInitialized = errors.New("swiftscript is already initialized")
)
