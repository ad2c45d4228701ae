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
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/workflow"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// --- Global Command Variables ---
var (
	// settings holds the invocation settings: flags first, then
	// SWIFTSCRIPT_* environment variables.
	settings = viper.New()

	// install / update version selection
	exactVersion      string
	branchName        string
	fromVersion       string
	upToNextMinorFrom string
	toVersion         string

	forceInstall bool
	noBuild      bool
	buildArgs    []string

	updateAllFlag bool
	assumeYes     bool

	// config set / init
	swiftVersionFlag string
	macOSVersionFlag string
	swiftPathFlag    string

	showTree         bool
	showDependencies bool

	rootCmd = &cobra.Command{
		Use:   "swiftscript",
		Short: "Run Swift scripts that depend on Swift packages",
		Long: `swiftscript keeps a runner Swift package whose dependencies are the
packages you install, and builds and runs single-file scripts against it.`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: setup,
	}

	// --- Installation ---
	initCmd = &cobra.Command{
		Use:   "init",
		Short: "Create the swiftscript installation and its runner package",
		Args:  noArgs,
		RunE:  runInit, // Defined in cmd_init.go
	}

	// --- Packages ---
	installCmd = &cobra.Command{
		Use:   "install <package-url|identity>",
		Short: "Install a package so that scripts can import its libraries",
		Args:  exactArgs(1),
		RunE:  runInstall, // Defined in cmd_packages.go
	}
	uninstallCmd = &cobra.Command{
		Use:     "uninstall <identity>...",
		Aliases: []string{"remove", "rm"},
		Short:   "Remove installed packages",
		Args:    minArgs(1),
		RunE:    runUninstall, // Defined in cmd_packages.go
	}
	updateCmd = &cobra.Command{
		Use:   "update [identity]",
		Short: "Update one package, or every range requirement with --all",
		Args:  maxArgs(1),
		RunE:  runUpdate, // Defined in cmd_packages.go
	}
	listCmd = &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List installed packages and their resolved versions",
		Args:    noArgs,
		RunE:    runList, // Defined in cmd_list.go
	}

	infoCmd = &cobra.Command{
		Use:   "info <identity>",
		Short: "Show information about an installed package",
		Args:  exactArgs(1),
		RunE:  runInfo, // Defined in cmd_list.go
	}

	// --- Configuration ---
	configCmd = &cobra.Command{
		Use:   "config",
		Short: "Show or change the installation configuration",
	}
	configShowCmd = &cobra.Command{
		Use:   "show",
		Short: "Print config.yaml",
		Args:  noArgs,
		RunE:  runConfigShow, // Defined in cmd_config.go
	}
	configSetCmd = &cobra.Command{
		Use:   "set",
		Short: "Change the Swift tools version, macOS target or swift path",
		Args:  noArgs,
		RunE:  runConfigSet, // Defined in cmd_config.go
	}

	// --- Scripts ---
	runCmd = &cobra.Command{
		Use:   "run <script> [-- args...]",
		Short: "Build and run a Swift script",
		Args:  minArgs(1),
		RunE:  runScript, // Defined in cmd_run.go
	}
)

func addVersionFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&exactVersion, "exact", "", "Require exactly this version")
	cmd.Flags().StringVar(&branchName, "branch", "", "Track a branch")
	cmd.Flags().StringVar(&fromVersion, "from", "", "Require this version up to the next major")
	cmd.Flags().StringVar(&upToNextMinorFrom, "up-to-next-minor-from", "", "Require this version up to the next minor")
	cmd.Flags().StringVar(&toVersion, "to", "", "Cap the range below this version")
}

func addBuildFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVar(&noBuild, "no-build", false, "Resolve the runner package without building it")
	cmd.Flags().StringArrayVar(&buildArgs, "Xbuild", nil, "Pass an argument through to swift build (repeatable)")
}

func versionSpecFromFlags() workflow.VersionSpec {
	return workflow.VersionSpec{
		Exact:             exactVersion,
		Branch:            branchName,
		From:              fromVersion,
		UpToNextMinorFrom: upToNextMinorFrom,
		To:                toVersion,
	}
}

// Positional argument checks report usage errors as ErrInvalidArguments so
// that they exit with status 2.
func invalidArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return fmt.Errorf("%w: %v", workflow.ErrInvalidArguments, err)
		}
		return nil
	}
}

var noArgs = invalidArgs(cobra.NoArgs)

func exactArgs(n int) cobra.PositionalArgs { return invalidArgs(cobra.ExactArgs(n)) }
func minArgs(n int) cobra.PositionalArgs   { return invalidArgs(cobra.MinimumNArgs(n)) }
func maxArgs(n int) cobra.PositionalArgs   { return invalidArgs(cobra.MaximumNArgs(n)) }

func init() {
	rootCmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return fmt.Errorf("%w: %v", workflow.ErrInvalidArguments, err)
	})

	// Invocation settings, bound to SWIFTSCRIPT_HOME, SWIFTSCRIPT_VERBOSE
	// and SWIFTSCRIPT_LOG_JSON.
	rootCmd.PersistentFlags().String("home", "", "Installation directory (default ~/.swift-script)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Debug logging and streamed resolve output")
	rootCmd.PersistentFlags().Bool("log-json", false, "Log to stderr as JSON")
	settings.SetEnvPrefix("SWIFTSCRIPT")
	settings.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	settings.AutomaticEnv()
	for _, name := range []string{"home", "verbose", "log-json"} {
		if err := settings.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&swiftPathFlag, "swift-path", "", "Swift executable to use (default swift from PATH)")
	initCmd.Flags().StringVar(&swiftVersionFlag, "swift-version", "", "Swift tools version for the runner manifest")

	rootCmd.AddCommand(installCmd)
	addVersionFlags(installCmd)
	addBuildFlags(installCmd)
	installCmd.Flags().BoolVarP(&forceInstall, "force", "f", false, "Replace an installed package without asking")

	rootCmd.AddCommand(uninstallCmd)
	addBuildFlags(uninstallCmd)

	rootCmd.AddCommand(updateCmd)
	addVersionFlags(updateCmd)
	addBuildFlags(updateCmd)
	updateCmd.Flags().BoolVar(&updateAllFlag, "all", false, "Move every range requirement to the latest version")
	updateCmd.Flags().BoolVarP(&assumeYes, "yes", "y", false, "Apply --all changes without asking")

	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&showTree, "tree", false, "Print the resolved dependency tree")

	rootCmd.AddCommand(infoCmd)
	infoCmd.Flags().BoolVar(&showDependencies, "show-dependencies", false, "Print the dependency tree of the package")

	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
	configSetCmd.Flags().StringVar(&swiftVersionFlag, "swift-version", "", "Swift tools version for the runner manifest")
	configSetCmd.Flags().StringVar(&macOSVersionFlag, "macos-version", "", "Minimum macOS version for the runner manifest")
	configSetCmd.Flags().StringVar(&swiftPathFlag, "swift-path", "", "Swift executable to use")

	rootCmd.AddCommand(runCmd)
	runCmd.Flags().SetInterspersed(false)
	runCmd.Flags().StringArrayVar(&buildArgs, "Xbuild", nil, "Pass an argument through to swift build (repeatable)")
}
