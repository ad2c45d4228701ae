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
)

// ErrLockUnavailable is the sentinel matched by every LockAcquisitionError.
var ErrLockUnavailable = errors.New("lock resource unavailable")

// LockAcquisitionError reports that the lock resource itself could not be
// created, opened or locked (permission denied, missing directory, system
// error). It is fatal and never retried. Contention is not an error: a
// held lock is waited for.
type LockAcquisitionError struct {
	// Path is the lock file path.
	Path string

	// Op is the failing step ("open", "lock", "mkdir").
	Op string

	// Err is the underlying OS error.
	Err error
}

// Error implements the error interface.
func (e *LockAcquisitionError) Error() string {
	return fmt.Sprintf("failed to %s lock %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the OS error.
func (e *LockAcquisitionError) Unwrap() error {
	return e.Err
}

// Is matches ErrLockUnavailable.
func (e *LockAcquisitionError) Is(target error) bool {
	return target == ErrLockUnavailable
}
