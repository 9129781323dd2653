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
	"bufio"
	"fmt"
	"strings"
)

const (
	// successGlyph prefixes lines solhint prints for passing checks.
	successGlyph = "✓"

	// maxLineBytes is the longest output line ParseOutput accepts.
	maxLineBytes = 1024 * 1024
)

// Classify returns the bucket a single output line belongs to.
func Classify(line string) Severity {
	line = strings.TrimSpace(line)
	if line == "" {
		return SeverityNone
	}
	if strings.HasPrefix(line, "solhint") || strings.HasPrefix(line, "Solhint") {
		return SeverityNone
	}

	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error"):
		return SeverityError
	case strings.Contains(lower, "warning"):
		return SeverityWarning
	case strings.HasPrefix(line, successGlyph):
		return SeverityNone
	default:
		return SeverityIssue
	}
}

// ParseOutput classifies solhint's text output into a Result.
//
// Description:
//
//	Each non-blank line lands in exactly one bucket (see Classify). Lines
//	are stored trimmed. Success is set from whether any bucket is non-empty.
//	Output that cannot be scanned to the end, such as a line longer than
//	maxLineBytes, is an error rather than a partial result.
//
// Inputs:
//
//	output - The linter's stdout
//
// Outputs:
//
//	*Result - Classified findings; Available is true. Nil on error.
//	error - Wraps ErrInvalidOutput when the output could not be read
func ParseOutput(output string) (*Result, error) {
	result := newResult(true)

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch Classify(line) {
		case SeverityError:
			result.Errors = append(result.Errors, line)
		case SeverityWarning:
			result.Warnings = append(result.Warnings, line)
		case SeverityIssue:
			result.Issues = append(result.Issues, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
	}

	result.Success = !result.HasFindings()
	return result, nil
}
