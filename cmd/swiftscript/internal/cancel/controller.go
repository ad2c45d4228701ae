// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cancel turns termination signals into context cancellation and
// runs registered cleanup handlers in reverse order.
//
// A Controller is created per command invocation and passed to the
// workflows that need to register cleanup; there is no process-global
// handler list.
//
//	ctrl := cancel.New(cancel.WithLogger(logger))
//	err := ctrl.Run(ctx, func(ctx context.Context) error {
//	    tx, _ := resilience.Begin(ctx, env, resilience.FieldPackages)
//	    ctrl.Register(cancel.Interrupt, "restore packages", func() error {
//	        return tx.Abort(ctx)
//	    })
//	    ...
//	})
package cancel

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
)

// State is the controller lifecycle position.
type State int

const (
	StateIdle State = iota
	StateListening
	StateSignaled
	StateDraining
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateListening:
		return "listening"
	case StateSignaled:
		return "signaled"
	case StateDraining:
		return "draining"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Mode selects which drain runs a handler.
type Mode int

const (
	// Interrupt handlers run only when a signal arrived. A body that fails
	// without a signal exits normally and must undo its own work.
	Interrupt Mode = iota + 1

	// NormalExit handlers run when no signal arrived, whether the body
	// succeeded or failed.
	NormalExit

	// Always handlers run on both paths.
	Always
)

func (m Mode) String() string {
	switch m {
	case Interrupt:
		return "interrupt"
	case NormalExit:
		return "normal-exit"
	case Always:
		return "always"
	default:
		return "unknown"
	}
}

func (m Mode) runsOn(interrupted bool) bool {
	switch m {
	case Always:
		return true
	case Interrupt:
		return interrupted
	case NormalExit:
		return !interrupted
	default:
		return false
	}
}

// DefaultSignals are the termination signals Listen subscribes to.
var DefaultSignals = []os.Signal{syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGQUIT}

type handler struct {
	mode Mode
	name string
	fn   func() error
	done bool
}

// Controller owns the signal subscription and the cleanup registry of one
// command invocation.
//
// # Thread Safety
//
// Safe for concurrent use. Signals arrive on a separate goroutine.
type Controller struct {
	mu       sync.Mutex
	state    State
	signal   os.Signal
	handlers []*handler
	cancel   context.CancelCauseFunc
	sigCh    chan os.Signal
	stopCh   chan struct{}

	signals []os.Signal
	logger  *slog.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger used for handler warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithSignals overrides the subscribed signals. An empty list subscribes to
// nothing, leaving Trigger as the only way in.
func WithSignals(sigs ...os.Signal) Option {
	return func(c *Controller) {
		c.signals = sigs
	}
}

// New creates an idle controller.
func New(opts ...Option) *Controller {
	c := &Controller{
		signals: DefaultSignals,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Signal returns the first received signal, or nil.
func (c *Controller) Signal() os.Signal {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.signal
}

// Listen subscribes to termination signals and returns a context that is
// cancelled with a *CancellationError cause on the first one.
//
// Listen is meant to be called once; later calls return a context derived
// from ctx that follows the same cancellation.
func (c *Controller) Listen(ctx context.Context) context.Context {
	ctx, cancel := context.WithCancelCause(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.cancel
	c.cancel = func(cause error) {
		cancel(cause)
		if prev != nil {
			prev(cause)
		}
	}
	if c.signal != nil {
		cancel(&CancellationError{Signal: c.signal})
	}
	if c.state != StateIdle {
		return ctx
	}
	c.state = StateListening

	c.stopCh = make(chan struct{})
	if len(c.signals) > 0 {
		c.sigCh = make(chan os.Signal, 1)
		signal.Notify(c.sigCh, c.signals...)
		go c.loop(c.sigCh, c.stopCh)
	}
	return ctx
}

func (c *Controller) loop(sigCh <-chan os.Signal, stop <-chan struct{}) {
	for {
		select {
		case sig := <-sigCh:
			c.Trigger(sig)
		case <-stop:
			return
		}
	}
}

// Trigger records sig as if it had been delivered by the OS. Only the first
// signal is recorded; later ones, and signals after draining has started,
// are ignored.
func (c *Controller) Trigger(sig os.Signal) {
	c.mu.Lock()
	if c.signal != nil || c.state >= StateDraining {
		c.mu.Unlock()
		return
	}
	c.signal = sig
	c.state = StateSignaled
	cancel := c.cancel
	c.mu.Unlock()

	c.logger.Debug("termination signal received", "signal", sig.String())
	if cancel != nil {
		cancel(&CancellationError{Signal: sig})
	}
}

// Register adds a cleanup handler and returns a function that withdraws it.
// Handlers registered after draining started are never run.
func (c *Controller) Register(mode Mode, name string, fn func() error) (withdraw func()) {
	h := &handler{mode: mode, name: name, fn: fn}
	c.mu.Lock()
	c.handlers = append(c.handlers, h)
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		h.done = true
		c.mu.Unlock()
	}
}

// Drain runs the handlers selected by interrupted, newest first.
//
// # Description
//
// Interrupt and Always handlers run when interrupted is true; NormalExit and
// Always handlers run otherwise. Each handler runs at most once across all
// Drain calls. A handler error or panic is logged as a warning and the
// drain continues. After the last handler the signal subscription is
// released and the controller is terminated.
func (c *Controller) Drain(interrupted bool) {
	c.mu.Lock()
	if c.state >= StateDraining {
		c.mu.Unlock()
		return
	}
	c.state = StateDraining
	var run []*handler
	for i := len(c.handlers) - 1; i >= 0; i-- {
		h := c.handlers[i]
		if h.done || !h.mode.runsOn(interrupted) {
			continue
		}
		h.done = true
		run = append(run, h)
	}
	c.mu.Unlock()

	for _, h := range run {
		if err := c.runHandler(h); err != nil {
			c.logger.Warn("cleanup handler failed", "handler", h.name, "mode", h.mode.String(), "error", err)
		}
	}

	c.mu.Lock()
	c.state = StateTerminated
	if c.sigCh != nil {
		signal.Stop(c.sigCh)
	}
	if c.stopCh != nil {
		close(c.stopCh)
	}
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel(context.Canceled)
	}
}

func (c *Controller) runHandler(h *handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.fn()
}

// Run executes body under signal supervision and drains the handlers.
//
// # Outputs
//
//   - error: body's error when no signal arrived; an *ExitError with code
//     128+signal when one did, wrapping body's error (or a
//     *CancellationError when body returned nil).
func (c *Controller) Run(ctx context.Context, body func(ctx context.Context) error) error {
	runCtx := c.Listen(ctx)
	err := body(runCtx)

	sig := c.Signal()
	c.Drain(sig != nil)

	if sig == nil {
		return err
	}
	ce := &CancellationError{Signal: sig}
	if err == nil || !IsCancellation(err) {
		if err != nil {
			err = fmt.Errorf("%w (%w)", ce, err)
		} else {
			err = ce
		}
	}
	return &ExitError{Code: ce.ExitCode(), Err: err}
}
