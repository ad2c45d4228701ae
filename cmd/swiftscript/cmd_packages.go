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

func runInstall(cmd *cobra.Command, args []string) error {
	opts := workflow.InstallOptions{
		Package:   args[0],
		Version:   versionSpecFromFlags(),
		Force:     forceInstall,
		NoBuild:   noBuild,
		BuildArgs: buildArgs,
	}
	return runWorkflow(cmd, func(ctx context.Context, wf *workflow.Workflow) error {
		return wf.Install(ctx, opts)
	})
}

func runUninstall(cmd *cobra.Command, args []string) error {
	opts := workflow.UninstallOptions{
		Identities: args,
		NoBuild:    noBuild,
		BuildArgs:  buildArgs,
	}
	return runWorkflow(cmd, func(ctx context.Context, wf *workflow.Workflow) error {
		return wf.Uninstall(ctx, opts)
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	opts := workflow.UpdateOptions{
		Version:   versionSpecFromFlags(),
		All:       updateAllFlag,
		Yes:       assumeYes,
		NoBuild:   noBuild,
		BuildArgs: buildArgs,
	}
	if len(args) == 1 {
		opts.Identity = args[0]
	}
	return runWorkflow(cmd, func(ctx context.Context, wf *workflow.Workflow) error {
		return wf.Update(ctx, opts)
	})
}
