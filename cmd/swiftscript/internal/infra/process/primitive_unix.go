// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build unix

package process

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// flockPrimitive holds an flock(2) on the lock file. The holder PID is
// written into the locked file itself and truncated away on release.
type flockPrimitive struct {
	file *os.File
}

func openPrimitive(lockPath, _ string) (primitive, error) {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, err
	}
	return &flockPrimitive{file: f}, nil
}

func holderRecordPath(lockPath, _ string) string {
	return lockPath
}

func (p *flockPrimitive) tryLock() (bool, error) {
	err := unix.Flock(int(p.file.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	switch {
	case err == nil:
	case errors.Is(err, unix.EWOULDBLOCK), errors.Is(err, unix.EINTR):
		return false, nil
	default:
		return false, err
	}

	// Non-fatal: the lock is held even if the PID cannot be recorded.
	if err := p.file.Truncate(0); err == nil {
		_, _ = p.file.WriteAt([]byte(strconv.Itoa(os.Getpid())+"\n"), 0)
	}
	return true, nil
}

func (p *flockPrimitive) release() error {
	_ = p.file.Truncate(0)
	err := unix.Flock(int(p.file.Fd()), unix.LOCK_UN)
	// Closing also drops the flock if LOCK_UN failed.
	if cerr := p.file.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf("unlock: %w", err)
	}
	return nil
}

func (p *flockPrimitive) close() {
	_ = p.file.Close()
}
