// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command swiftscript installs Swift packages into a shared runner package
// and builds and runs single-file scripts against them.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/cancel"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/infra/process"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/workflow"
)

// Exit statuses other than those carried by the error itself.
const (
	exitOK    = 0
	exitError = 1
	exitUsage = 2
)

func main() {
	os.Exit(execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// execute runs the command line and returns the process exit status.
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	err := rootCmd.ExecuteContext(ctx)
	if sess != nil {
		if cerr := sess.close(); cerr != nil {
			fmt.Fprintf(stderr, "Warning: %v\n", cerr)
		}
		sess = nil
	}
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps an error to the process exit status.
//
// A signal wins over everything else (128+signal). Bad arguments and
// unparseable versions exit 2; a failed external command passes its own
// status through; lock and state errors, and anything else, exit 1.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var exitErr *cancel.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var cancelled *cancel.CancellationError
	if errors.As(err, &cancelled) {
		return cancelled.ExitCode()
	}

	var parseErr *semver.ParseError
	if errors.As(err, &parseErr) || errors.Is(err, workflow.ErrInvalidArguments) {
		return exitUsage
	}

	var lockErr *process.LockAcquisitionError
	var stateErr *registry.StateInconsistencyError
	if errors.As(err, &lockErr) || errors.As(err, &stateErr) {
		return exitError
	}

	var cmdErr *process.ExternalCommandError
	if errors.As(err, &cmdErr) && cmdErr.ExitCode > 0 {
		return cmdErr.ExitCode
	}
	return exitError
}
