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

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/workflow"
)

func runInit(cmd *cobra.Command, _ []string) error {
	opts := workflow.InitOptions{SwiftPath: swiftPathFlag}
	if swiftVersionFlag != "" {
		v, err := semver.ParseVersion(swiftVersionFlag)
		if err != nil {
			return err
		}
		opts.SwiftVersion = &v
	}
	// The runner package is created with the swift that init was told
	// about, not the one from an older config.
	if opts.SwiftPath != "" {
		sess.cfg.SwiftPath = opts.SwiftPath
	}
	return runWorkflow(cmd, func(ctx context.Context, wf *workflow.Workflow) error {
		return wf.Init(ctx, opts)
	})
}
