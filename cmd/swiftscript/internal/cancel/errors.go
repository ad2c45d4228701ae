// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cancel

import (
	"errors"
	"fmt"
	"os"
	"syscall"
)

// CancellationError is the cause attached to a context cancelled by a
// termination signal.
type CancellationError struct {
	Signal os.Signal
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("interrupted by %s", e.Signal)
}

// ExitCode returns 128 plus the signal number, the shell convention for a
// process terminated by a signal.
func (e *CancellationError) ExitCode() int {
	if s, ok := e.Signal.(syscall.Signal); ok {
		return 128 + int(s)
	}
	return 128 + int(syscall.SIGINT)
}

// IsCancellation reports whether err was caused by a termination signal.
func IsCancellation(err error) bool {
	var ce *CancellationError
	return errors.As(err, &ce)
}

// ExitError carries the process exit status chosen by Run.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}
