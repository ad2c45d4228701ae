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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/workflow"
)

func runScript(cmd *cobra.Command, args []string) error {
	opts := workflow.RunOptions{
		Script:    args[0],
		Args:      scriptArgs(args[1:]),
		BuildArgs: buildArgs,
	}
	return runWorkflow(cmd, func(ctx context.Context, wf *workflow.Workflow) error {
		return wf.Run(ctx, opts)
	})
}

// scriptArgs drops the "--" separating the script from its arguments.
// Flag parsing stops at the script path, so everything after it is kept
// verbatim.
func scriptArgs(rest []string) []string {
	if len(rest) > 0 && rest[0] == "--" {
		return rest[1:]
	}
	return rest
}
