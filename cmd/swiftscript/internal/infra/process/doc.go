// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

/*
Package process provides inter-process synchronization and external process
execution for swiftscript.

# Overview

This package contains two main components:

  - ProcessLock: serializes every mutating command across all processes that
    share one installation directory.
  - Manager: runs external tools (swift, the built script) with graceful
    interrupt on cancellation, for testability behind an interface.

# ProcessLock

ProcessLock wraps a critical section:

	lock := process.NewProcessLock(process.LockConfig{Dir: home})
	err := lock.WithLock(ctx, func(ctx context.Context) error {
	    // read-modify-write packages.json, Package.swift, config.yaml
	    return nil
	})

Acquisition polls a non-blocking exclusive lock every PollInterval. After
StallThreshold without success a single warning naming the lock path is
printed, and polling continues until the lock is acquired or ctx is
cancelled. The platform primitive is an flock(2) on unix and a named mutex
plus a PID marker file on windows; the retry loop is shared.

# Manager

	pm := process.NewDefaultManager()
	res, err := pm.Run(ctx, process.Command{Name: "swift", Args: []string{"build"}})

On cancellation the child receives os.Interrupt and is given WaitDelay to
exit before it is killed.

# Thread Safety

  - ProcessLock is safe for concurrent use; each WithLock call acquires its
    own OS handle, so goroutines in one process exclude each other as well.
  - Manager implementations are safe for concurrent use.

# Limitations

  - Advisory locks only bind processes that check them.
  - NFS and some network filesystems do not implement flock(2) reliably.
*/
package process
