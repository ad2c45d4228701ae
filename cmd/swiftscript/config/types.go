// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the persistent swiftscript settings stored in
// config.yaml under the installation directory.
package config

import (
	"github.com/AleutianAI/swiftscript/cmd/swiftscript/internal/semver"
)

// FileName is the config file name inside the installation directory.
const FileName = "config.yaml"

type SwiftScriptConfig struct {
	// SwiftVersion overrides the swift-tools-version written to the runner
	// manifest. When unset the toolchain is asked.
	SwiftVersion *semver.Version `yaml:"swift_version,omitempty"`

	// MacOSVersion overrides the deployment target on macOS. When unset the
	// host version is used.
	MacOSVersion *semver.Version `yaml:"macos_version,omitempty"`

	// SwiftPath is the swift executable. Empty means "swift" from PATH.
	SwiftPath string `yaml:"swift_path,omitempty"`

	// LogDir enables a JSON file log in this directory.
	LogDir string `yaml:"log_dir,omitempty"`

	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type TelemetryConfig struct {
	// TraceExporter is "none", "stdout" or "otlp".
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter is "none", "stdout" or "prometheus".
	MetricExporter string `yaml:"metric_exporter"`

	// OTLPEndpoint is the collector address for the otlp trace exporter,
	// e.g. localhost:4317.
	OTLPEndpoint string `yaml:"otlp_endpoint,omitempty"`

	// MetricsTextfile is where the prometheus exporter writes its
	// node-exporter textfile on exit.
	MetricsTextfile string `yaml:"metrics_textfile,omitempty"`
}

// Exporter names.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

// DefaultConfig returns the config written by init.
func DefaultConfig() SwiftScriptConfig {
	return SwiftScriptConfig{
		Telemetry: TelemetryConfig{
			TraceExporter:  ExporterNone,
			MetricExporter: ExporterNone,
		},
	}
}

// SwiftCommand returns the swift executable to run.
func (c SwiftScriptConfig) SwiftCommand() string {
	if c.SwiftPath == "" {
		return "swift"
	}
	return c.SwiftPath
}
