// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/config"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/appenv"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/cancel"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/infra/process"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/toolchain"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/workflow"
	"github.com/AleutianAI/swiftscript/internal/telemetry"
	"github.com/AleutianAI/swiftscript/pkg/logging"
)

// session is the per-invocation state built by setup.
type session struct {
	env     *appenv.Env
	cfg     config.SwiftScriptConfig
	logger  *logging.Logger
	verbose bool

	shutdownTelemetry func(context.Context) error
}

// sess is set by setup and released by execute.
var sess *session

// newToolchain builds the toolchain for a command. Tests replace it.
var newToolchain = func(s *session, cmd *cobra.Command) toolchain.Toolchain {
	runner := process.NewDefaultManager()
	runner.Logger = s.logger.Slog()
	tc := toolchain.NewSwiftToolchain(s.cfg.SwiftCommand(), runner, s.logger.Slog())
	tc.Verbose = s.verbose
	tc.Stdin = cmd.InOrStdin()
	tc.Stdout = cmd.OutOrStdout()
	tc.Stderr = cmd.ErrOrStderr()
	return tc
}

// isInteractive reports whether prompts can be answered. Tests replace it.
var isInteractive = func() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// setup resolves the installation directory, reads config.yaml and starts
// logging and telemetry. It runs before every command.
func setup(cmd *cobra.Command, _ []string) error {
	home := settings.GetString("home")
	if home == "" {
		h, err := appenv.DefaultHome()
		if err != nil {
			return err
		}
		home = h
	}

	cfg, err := appenv.New(home, nil).LoadConfig(cmd.Context())
	if err != nil {
		return err
	}

	verbose := settings.GetBool("verbose")
	level := logging.LevelWarn
	if verbose {
		level = logging.LevelDebug
	}
	logger := logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.LogDir,
		Service: "swiftscript",
		JSON:    settings.GetBool("log-json"),
		Output:  cmd.ErrOrStderr(),
	})

	tcfg := telemetry.DefaultConfig()
	tcfg.ServiceVersion = version
	tcfg.TraceExporter = cfg.Telemetry.TraceExporter
	tcfg.MetricExporter = cfg.Telemetry.MetricExporter
	if cfg.Telemetry.OTLPEndpoint != "" {
		tcfg.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	tcfg.MetricsTextfile = cfg.Telemetry.MetricsTextfile
	tcfg.Output = cmd.ErrOrStderr()
	shutdown, err := telemetry.Init(cmd.Context(), tcfg)
	if err != nil {
		_ = logger.Close()
		return err
	}

	sess = &session{
		env:               appenv.New(home, logger.Slog()),
		cfg:               cfg,
		logger:            logger,
		verbose:           verbose,
		shutdownTelemetry: shutdown,
	}
	logger.Debug("session started", "home", home, "version", version)
	return nil
}

// close flushes telemetry and the log file.
func (s *session) close() error {
	ctx, cancelFn := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelFn()
	var errs []error
	if s.shutdownTelemetry != nil {
		if err := s.shutdownTelemetry(ctx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}
	errs = append(errs, s.logger.Close())
	return errors.Join(errs...)
}

// runWorkflow runs body under a fresh cancellation controller, so that
// SIGINT and friends restore state before the process exits.
func runWorkflow(cmd *cobra.Command, body func(ctx context.Context, wf *workflow.Workflow) error) error {
	s := sess
	ctl := cancel.New(cancel.WithLogger(s.logger.Slog()))
	wf, err := workflow.New(workflow.Config{
		Env:         s.env,
		Toolchain:   newToolchain(s, cmd),
		Controller:  ctl,
		Out:         cmd.OutOrStdout(),
		Err:         cmd.ErrOrStderr(),
		In:          cmd.InOrStdin(),
		Interactive: isInteractive(),
		Logger:      s.logger.Slog(),
	})
	if err != nil {
		return err
	}
	return ctl.Run(cmd.Context(), func(ctx context.Context) error {
		return body(ctx, wf)
	})
}
