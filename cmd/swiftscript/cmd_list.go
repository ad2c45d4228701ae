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
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/registry"
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/workflow"
)

func runList(cmd *cobra.Command, _ []string) error {
	return runWorkflow(cmd, func(ctx context.Context, wf *workflow.Workflow) error {
		if showTree {
			return wf.ShowDependencies(ctx)
		}
		entries, err := wf.List(ctx)
		if err != nil {
			return err
		}
		return printList(cmd.OutOrStdout(), entries)
	})
}

// printList writes one row per package:
//
//	IDENTITY           REQUIREMENT     RESOLVED  STATUS  LIBRARIES
//	swift-collections  1.2.0 - 2.0.0   1.2.3     ok      Collections, DequeModule
func printList(w io.Writer, entries []workflow.ListEntry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "No packages installed")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTITY\tREQUIREMENT\tRESOLVED\tSTATUS\tLIBRARIES")
	for _, e := range entries {
		resolved := "-"
		if e.Pin != nil {
			resolved = e.Pin.Resolved()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.Package.Identity, e.Package.Requirement, resolved, e.Status, strings.Join(e.Package.Libraries, ", "))
	}
	return tw.Flush()
}

func runInfo(cmd *cobra.Command, args []string) error {
	return runWorkflow(cmd, func(ctx context.Context, wf *workflow.Workflow) error {
		info, err := wf.Info(ctx, args[0])
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if err := printInfo(out, info); err != nil {
			return err
		}
		if !showDependencies {
			return nil
		}
		fmt.Fprintln(out, "\nDependencies:")
		return wf.ShowPackageDependencies(ctx, info.Package.Identity)
	})
}

func printInfo(w io.Writer, info workflow.PackageInfo) error {
	current := "(not resolved)"
	if info.Pin != nil {
		current = info.Pin.Resolved()
		if info.Status == registry.PinOutOfRange {
			current += " (outside the requirement)"
		}
	}
	platforms := "(Not Specified)"
	if len(info.Description.Platforms) > 0 {
		platforms = strings.Join(info.Description.Platforms, ", ")
	}
	_, err := fmt.Fprintf(w, `Package identity: %s
Package name: %s
URL: %s
Specified Requirement: %s
Current Version: %s
Platforms: %s
Modules: %s
`,
		info.Package.Identity, info.Description.Name, info.Package.URL, info.Package.Requirement,
		current, platforms, strings.Join(info.Description.Modules, ", "))
	return err
}
