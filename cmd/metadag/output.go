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
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
)

// Exit codes for CLI commands.
const (
	CLIExitSuccess  = 0 // Operation completed successfully
	CLIExitFindings = 1 // Operation completed with findings
	CLIExitError    = 2 // Operation failed
)

// exitError carries a non-zero exit code out of a command without an
// extra error message; the command has already reported.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

// findings is returned by commands that completed but found problems.
var findings = &exitError{code: CLIExitFindings}

// failed is returned by commands whose result reports failure.
var failed = &exitError{code: CLIExitError}

// OutputConfig controls output behavior.
type OutputConfig struct {
	JSON    bool // Output as JSON
	Compact bool // No indentation
}

// CommandResult wraps JSON command output with metadata.
type CommandResult struct {
	APIVersion string    `json:"api_version"`
	Command    string    `json:"command"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Data       any       `json:"data,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// writeJSON encodes data to w.
func writeJSON(w io.Writer, data any, compact bool) error {
	encoder := json.NewEncoder(w)
	if !compact {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(data)
}

// writeResult emits the JSON envelope for a command.
func writeResult(w io.Writer, cfg OutputConfig, cmd string, start time.Time, success bool, data any, errMsg string) error {
	return writeJSON(w, CommandResult{
		APIVersion: "1.0",
		Command:    cmd,
		Timestamp:  time.Now().UTC(),
		DurationMs: time.Since(start).Milliseconds(),
		Success:    success,
		Data:       data,
		Error:      errMsg,
	}, cfg.Compact)
}

// stderrIsTerminal reports whether stderr is an interactive terminal.
// Logs are text for terminals and JSON otherwise.
func stderrIsTerminal() bool {
	fd := os.Stderr.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
