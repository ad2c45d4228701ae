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
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	// DefaultPollInterval is the wait between acquisition attempts.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultStallThreshold is how long a waiter blocks before the stall
	// warning is printed.
	DefaultStallThreshold = 30 * time.Second

	defaultLockName = "lock"
)

var lockTracer = otel.Tracer("swiftscript.process.lock")

// Locker runs a body while holding an exclusive cross-process lock.
//
// # Description
//
// Workflows depend on this interface rather than on ProcessLock so tests
// can substitute an in-memory lock.
type Locker interface {
	// WithLock acquires the lock, runs body, and releases the lock whether
	// body returns, fails or panics.
	WithLock(ctx context.Context, body func(ctx context.Context) error) error
}

// LockConfig configures a ProcessLock.
//
// # Example
//
//	config := LockConfig{
//	    Dir:  "/home/me/.swift-script",
//	    Name: "lock",
//	}
type LockConfig struct {
	// Dir is the installation directory holding the lock file.
	// Created on first acquire if missing.
	Dir string

	// Name is the base name of the lock file ({Name}.lock).
	// Default: "lock"
	Name string

	// PollInterval is the retry interval while the lock is held elsewhere.
	// Default: 100ms
	PollInterval time.Duration

	// StallThreshold is the wait after which one warning is printed.
	// Default: 30s
	StallThreshold time.Duration

	// Stderr receives the stall warning.
	// Default: os.Stderr
	Stderr io.Writer

	// Logger receives debug and warning records.
	// Default: slog.Default()
	Logger *slog.Logger

	// DisableWatch turns off fsnotify wake-ups, leaving only polling.
	DisableWatch bool
}

// ProcessLock implements Locker over a lock file in the installation
// directory.
//
// # Description
//
// Each acquisition opens its own OS handle on {Dir}/{Name}.lock and retries
// a non-blocking exclusive lock until it succeeds or ctx is cancelled.
// While the lock is held the holder's PID is recorded so a stuck holder
// can be identified: inside the lock file on unix, in {Name}.lock.pid on
// windows.
//
// # How It Works
//
//  1. Create Dir and open the lock resource. Failure is a
//     LockAcquisitionError and is not retried.
//  2. Try the platform lock without blocking.
//  3. If held elsewhere, wait PollInterval (or until the holder touches
//     the lock files, via fsnotify) and try again.
//  4. After StallThreshold print one warning with the lock path and the
//     holder PID, then keep waiting.
//  5. Run the body, then release exactly once.
//
// # Thread Safety
//
// Safe for concurrent use. Concurrent WithLock calls in one process exclude
// each other just as separate processes do.
type ProcessLock struct {
	config   LockConfig
	lockPath string
	pidPath  string
	logger   *slog.Logger
}

// NewProcessLock creates a lock. It does not touch the filesystem.
//
// # Inputs
//
//   - config: Lock location and timing. Zero fields take defaults.
//
// # Outputs
//
//   - *ProcessLock: New lock, not yet acquired.
func NewProcessLock(config LockConfig) *ProcessLock {
	if config.Name == "" {
		config.Name = defaultLockName
	}
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.StallThreshold <= 0 {
		config.StallThreshold = DefaultStallThreshold
	}
	if config.Stderr == nil {
		config.Stderr = os.Stderr
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	lockPath := filepath.Join(config.Dir, config.Name+".lock")
	return &ProcessLock{
		config:   config,
		lockPath: lockPath,
		pidPath:  lockPath + ".pid",
		logger:   logger.With("lock_path", lockPath),
	}
}

// LockPath returns the lock file path.
func (p *ProcessLock) LockPath() string {
	return p.lockPath
}

// HolderPID returns the PID recorded by the current holder, or 0 when no
// holder is recorded or the record is unreadable.
//
// # Limitations
//
//   - May return a stale PID if the holder was killed before cleanup on
//     windows. On unix the record lives in the lock file and is cleared on
//     release.
func (p *ProcessLock) HolderPID() int {
	return readPID(holderRecordPath(p.lockPath, p.pidPath))
}

// WithLock acquires the lock, runs body, and releases the lock.
//
// # Description
//
// Blocks until the lock is acquired or ctx is cancelled. The release runs
// exactly once whether body returns nil, returns an error or panics. A
// release failure is logged, and returned only when body itself succeeded.
//
// # Outputs
//
//   - error: body's error; ctx.Err() if cancelled while waiting;
//     *LockAcquisitionError if the lock resource cannot be opened.
//
// # Example
//
//	err := lock.WithLock(ctx, func(ctx context.Context) error {
//	    return env.SavePackages(ctx, reg)
//	})
func (p *ProcessLock) WithLock(ctx context.Context, body func(ctx context.Context) error) (err error) {
	held, err := p.acquire(ctx)
	if err != nil {
		return err
	}
	acquiredAt := time.Now()

	defer func() {
		recordHold(ctx, time.Since(acquiredAt))
		if rerr := held.release(); rerr != nil {
			p.logger.Warn("failed to release lock", "error", rerr)
			if err == nil {
				err = fmt.Errorf("release lock %s: %w", p.lockPath, rerr)
			}
			return
		}
		p.logger.Debug("lock released")
	}()

	return body(ctx)
}

// Do runs body under lock and returns its value.
func Do[T any](ctx context.Context, lock Locker, body func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := lock.WithLock(ctx, func(ctx context.Context) error {
		v, err := body(ctx)
		out = v
		return err
	})
	return out, err
}

// acquire runs the shared retry loop around the platform primitive.
func (p *ProcessLock) acquire(ctx context.Context) (prim primitive, err error) {
	ctx, span := lockTracer.Start(ctx, "process.lock.acquire",
		trace.WithAttributes(attribute.String("lock.path", p.lockPath)))
	start := time.Now()
	stalled := false
	defer func() {
		recordAcquire(ctx, time.Since(start), stalled, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetStatus(codes.Ok, "")
		}
		span.SetAttributes(attribute.Bool("lock.stalled", stalled))
		span.End()
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(p.config.Dir, 0o755); err != nil {
		return nil, &LockAcquisitionError{Path: p.lockPath, Op: "mkdir", Err: err}
	}

	prim, err = openPrimitive(p.lockPath, p.pidPath)
	if err != nil {
		return nil, &LockAcquisitionError{Path: p.lockPath, Op: "open", Err: err}
	}

	wake, stopWatch := p.watch(ctx)
	defer stopWatch()

	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		ok, err := prim.tryLock()
		if err != nil {
			prim.close()
			return nil, &LockAcquisitionError{Path: p.lockPath, Op: "lock", Err: err}
		}
		if ok {
			p.logger.Debug("lock acquired", "attempts", attempt, "waited", time.Since(start))
			return prim, nil
		}

		if !stalled && time.Since(start) >= p.config.StallThreshold {
			stalled = true
			p.warnStalled(time.Since(start))
		}

		select {
		case <-ctx.Done():
			prim.close()
			return nil, ctx.Err()
		case <-ticker.C:
		case <-wake:
		}
	}
}

func (p *ProcessLock) warnStalled(waited time.Duration) {
	holder := "unknown"
	if pid := p.HolderPID(); pid > 0 {
		holder = strconv.Itoa(pid)
	}
	fmt.Fprintf(p.config.Stderr,
		"Warning: still waiting for the lock at %s after %s (holder PID %s).\n"+
			"If no other swiftscript process is running, the lock may be stale: "+
			"stop the holder or remove %s.\n",
		p.lockPath, waited.Round(time.Second), holder, p.lockPath)
	p.logger.Warn("lock acquisition stalled", "waited", waited, "holder_pid", holder)
}

// watch returns a channel that fires when the lock or PID file changes,
// which is how a release is usually observed before the next poll. The
// nil channel is returned when watching is disabled or unavailable.
func (p *ProcessLock) watch(ctx context.Context) (<-chan struct{}, func()) {
	if p.config.DisableWatch {
		return nil, func() {}
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		p.logger.Debug("lock watch unavailable", "error", err)
		return nil, func() {}
	}
	if err := watcher.Add(p.config.Dir); err != nil {
		p.logger.Debug("lock watch unavailable", "error", err)
		watcher.Close()
		return nil, func() {}
	}

	wake := make(chan struct{}, 1)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Name != p.lockPath && ev.Name != p.pidPath {
					continue
				}
				select {
				case wake <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return wake, func() {
		close(done)
		watcher.Close()
	}
}

// =============================================================================
// Platform primitive
// =============================================================================

// primitive is the platform half of the lock: one OS handle, tried without
// blocking. Implementations live in primitive_unix.go and
// primitive_windows.go.
type primitive interface {
	// tryLock attempts the exclusive lock once. It returns false with a nil
	// error when another holder has it.
	tryLock() (bool, error)

	// release unlocks, clears the holder record and closes the handle.
	release() error

	// close drops the handle without having acquired.
	close()
}

func writePID(path string) error {
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644)
}

func readPID(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// Compile-time interface satisfaction check
var _ Locker = (*ProcessLock)(nil)
