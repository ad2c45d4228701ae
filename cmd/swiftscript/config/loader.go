// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"slices"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by Validate failures.
var ErrInvalidConfig = errors.New("invalid config")

// Decode parses config.yaml. Missing keys keep their defaults and empty
// input yields DefaultConfig.
func Decode(data []byte) (SwiftScriptConfig, error) {
	cfg := DefaultConfig()
	if len(bytes.TrimSpace(data)) == 0 {
		return cfg, nil
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return SwiftScriptConfig{}, fmt.Errorf("failed to parse %s: %w", FileName, err)
	}
	if err := cfg.Validate(); err != nil {
		return SwiftScriptConfig{}, err
	}
	return cfg, nil
}

// Encode renders cfg as config.yaml.
func Encode(cfg SwiftScriptConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", FileName, err)
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks the exporter names.
func (c SwiftScriptConfig) Validate() error {
	trace := []string{"", ExporterNone, ExporterStdout, ExporterOTLP}
	if !slices.Contains(trace, c.Telemetry.TraceExporter) {
		return fmt.Errorf("%w: unknown trace_exporter %q", ErrInvalidConfig, c.Telemetry.TraceExporter)
	}
	metric := []string{"", ExporterNone, ExporterStdout, ExporterPrometheus}
	if !slices.Contains(metric, c.Telemetry.MetricExporter) {
		return fmt.Errorf("%w: unknown metric_exporter %q", ErrInvalidConfig, c.Telemetry.MetricExporter)
	}
	if c.Telemetry.MetricExporter == ExporterPrometheus && c.Telemetry.MetricsTextfile == "" {
		return fmt.Errorf("%w: metric_exporter prometheus requires metrics_textfile", ErrInvalidConfig)
	}
	return nil
}
