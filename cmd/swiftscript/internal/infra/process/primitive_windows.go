// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

//go:build windows

package process

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"golang.org/x/sys/windows"
)

// mutexPrimitive holds a named mutex. Mutex ownership belongs to an OS
// thread, so every call runs on one goroutine pinned with LockOSThread.
// The holder PID goes to a sibling marker file that is removed on release.
type mutexPrimitive struct {
	pidPath string
	calls   chan func()
	done    chan struct{}
	handle  windows.Handle
	owned   bool
}

// mutexName derives a stable session-local name from the lock path.
func mutexName(lockPath string) string {
	abs, err := filepath.Abs(lockPath)
	if err != nil {
		abs = lockPath
	}
	sum := sha256.Sum256([]byte(strings.ToLower(abs)))
	return `Local\swiftscript-` + hex.EncodeToString(sum[:16])
}

func openPrimitive(lockPath, pidPath string) (primitive, error) {
	p := &mutexPrimitive{
		pidPath: pidPath,
		calls:   make(chan func()),
		done:    make(chan struct{}),
	}
	go p.loop()

	var openErr error
	p.do(func() {
		name, err := windows.UTF16PtrFromString(mutexName(lockPath))
		if err != nil {
			openErr = err
			return
		}
		h, err := windows.CreateMutex(nil, false, name)
		if h == 0 {
			openErr = err
			return
		}
		// ERROR_ALREADY_EXISTS comes back with a valid handle.
		if err != nil && !errors.Is(err, windows.ERROR_ALREADY_EXISTS) {
			windows.CloseHandle(h)
			openErr = err
			return
		}
		p.handle = h
	})
	if openErr != nil {
		close(p.done)
		return nil, fmt.Errorf("create mutex: %w", openErr)
	}
	return p, nil
}

func holderRecordPath(_, pidPath string) string {
	return pidPath
}

// loop executes queued calls on a single locked OS thread.
func (p *mutexPrimitive) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		select {
		case fn := <-p.calls:
			fn()
		case <-p.done:
			return
		}
	}
}

func (p *mutexPrimitive) do(fn func()) {
	finished := make(chan struct{})
	p.calls <- func() {
		defer close(finished)
		fn()
	}
	<-finished
}

func (p *mutexPrimitive) tryLock() (bool, error) {
	var (
		ok  bool
		err error
	)
	p.do(func() {
		event, werr := windows.WaitForSingleObject(p.handle, 0)
		switch event {
		case uint32(windows.WAIT_OBJECT_0), uint32(windows.WAIT_ABANDONED):
			// WAIT_ABANDONED: the previous holder exited without releasing.
			p.owned = true
			ok = true
		case uint32(windows.WAIT_TIMEOUT):
		default:
			err = fmt.Errorf("wait for mutex: %w", werr)
		}
	})
	if ok {
		// Non-fatal: the mutex is held even if the marker cannot be written.
		_ = writePID(p.pidPath)
	}
	return ok, err
}

func (p *mutexPrimitive) release() error {
	rmErr := os.Remove(p.pidPath)
	if errors.Is(rmErr, os.ErrNotExist) {
		rmErr = nil
	}

	var err error
	p.do(func() {
		if p.owned {
			err = windows.ReleaseMutex(p.handle)
			p.owned = false
		}
		if cerr := windows.CloseHandle(p.handle); cerr != nil && err == nil {
			err = cerr
		}
	})
	close(p.done)

	if err != nil {
		return fmt.Errorf("release mutex: %w", err)
	}
	if rmErr != nil {
		return fmt.Errorf("remove pid marker: %w", rmErr)
	}
	return nil
}

func (p *mutexPrimitive) close() {
	p.do(func() {
		windows.CloseHandle(p.handle)
	})
	close(p.done)
}
