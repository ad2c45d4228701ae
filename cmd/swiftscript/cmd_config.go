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
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/config"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/workflow"
)

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if err := sess.env.CheckInitialized(); err != nil {
		return err
	}
	cfg, err := sess.env.LoadConfig(cmd.Context())
	if err != nil {
		return err
	}
	data, err := config.Encode(cfg)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", sess.env.ConfigPath())
	_, err = out.Write(data)
	return err
}

func runConfigSet(cmd *cobra.Command, _ []string) error {
	changes, err := configChangesFromFlags(cmd)
	if err != nil {
		return err
	}
	return runWorkflow(cmd, func(ctx context.Context, wf *workflow.Workflow) error {
		return wf.ConfigSet(ctx, changes)
	})
}

// configChangesFromFlags keeps only the flags that were given, so that
// --swift-path "" can reset the path to the default.
func configChangesFromFlags(cmd *cobra.Command) (workflow.ConfigChanges, error) {
	var changes workflow.ConfigChanges
	flags := cmd.Flags()
	if flags.Changed("swift-version") {
		v, err := semver.ParseVersion(swiftVersionFlag)
		if err != nil {
			return changes, err
		}
		changes.SwiftVersion = &v
	}
	if flags.Changed("macos-version") {
		v, err := semver.ParseVersion(macOSVersionFlag)
		if err != nil {
			return changes, err
		}
		changes.MacOSVersion = &v
	}
	if flags.Changed("swift-path") {
		path := swiftPathFlag
		changes.SwiftPath = &path
	}
	return changes, nil
}
