// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package appenv

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// ScriptType is how a script's entry point is declared.
type ScriptType int

const (
	// TopLevel scripts run their top-level statements (main.swift).
	TopLevel ScriptType = iota

	// MainEntry scripts declare an @main type (Runner.swift).
	MainEntry
)

func (t ScriptType) String() string {
	if t == MainEntry {
		return "Custom Main Entry"
	}
	return "Top Level"
}

// FileName is the name the script is copied to inside runner/Sources.
func (t ScriptType) FileName() string {
	if t == MainEntry {
		return "Runner.swift"
	}
	return "main.swift"
}

// mainAttr matches an @main attribute at the start of a line, possibly
// followed by a declaration on the same line.
var mainAttr = regexp.MustCompile(`^\s*@main\b`)

// ClassifyScript reports MainEntry when a line of source starts with the
// @main attribute outside a block comment.
func ClassifyScript(source []byte) ScriptType {
	inBlock := false
	sc := bufio.NewScanner(bytes.NewReader(source))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Text()
		if inBlock {
			end := strings.Index(line, "*/")
			if end < 0 {
				continue
			}
			inBlock = false
			line = line[end+2:]
		}
		if mainAttr.MatchString(line) {
			return MainEntry
		}
		if start := strings.LastIndex(line, "/*"); start >= 0 && !strings.Contains(line[start:], "*/") {
			inBlock = true
		}
	}
	return TopLevel
}

const placeholderScript = "print(\"Hello SwiftScript!\")\n"

// InstallScript replaces runner/Sources with the script. It returns the
// detected script type.
func (e *Env) InstallScript(ctx context.Context, source []byte) (ScriptType, error) {
	if err := e.cleanSources(ctx); err != nil {
		return TopLevel, err
	}
	typ := ClassifyScript(source)
	if err := writeFileAtomic(filepath.Join(e.SourcesDir(), typ.FileName()), source); err != nil {
		return typ, fmt.Errorf("copy script: %w", err)
	}
	return typ, nil
}

// ResetSources replaces runner/Sources with the placeholder script so the
// runner always builds.
func (e *Env) ResetSources(ctx context.Context) error {
	if err := e.cleanSources(ctx); err != nil {
		return err
	}
	return writeFileAtomic(filepath.Join(e.SourcesDir(), TopLevel.FileName()), []byte(placeholderScript))
}

func (e *Env) cleanSources(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return context.Cause(ctx)
	}
	entries, err := os.ReadDir(e.SourcesDir())
	if err != nil {
		if os.IsNotExist(err) {
			return os.MkdirAll(e.SourcesDir(), 0o755)
		}
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(e.SourcesDir(), entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
