// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package lint

import (
	"errors"
	"fmt"
)

// Sentinel errors for the lint package.
var (
	// ErrLinterNotInstalled indicates the linter binary was not found.
	ErrLinterNotInstalled = errors.New("linter not installed")

	// ErrLinterTimeout indicates the linter exceeded its configured timeout.
	ErrLinterTimeout = errors.New("linter timeout")

	// ErrLinterFailed indicates the linter process failed without output.
	ErrLinterFailed = errors.New("linter execution failed")

	// ErrInvalidOutput indicates the linter produced output that could not
	// be read as text: invalid UTF-8 or an overlong line.
	ErrInvalidOutput = errors.New("linter output is not readable text")
)

// LinterError wraps an execution fault with the command that caused it.
//
// Thread Safety: Immutable after creation.
type LinterError struct {
	// Linter is the command that was run (e.g., "solhint").
	Linter string

	// Err is the underlying error.
	Err error

	// Output contains any stderr output from the linter.
	Output string
}

// Error implements the error interface.
func (e *LinterError) Error() string {
	if e.Output != "" {
		return fmt.Sprintf("%s: %v: %s", e.Linter, e.Err, e.Output)
	}
	return fmt.Sprintf("%s: %v", e.Linter, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *LinterError) Unwrap() error {
	return e.Err
}

// NewLinterError creates a new LinterError.
func NewLinterError(linter string, err error) *LinterError {
	return &LinterError{Linter: linter, Err: err}
}

// WithOutput returns a copy of the error with stderr output attached.
func (e *LinterError) WithOutput(output string) *LinterError {
	return &LinterError{
		Linter: e.Linter,
		Err:    e.Err,
		Output: output,
	}
}
