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
	"strings"
	"time"
)

// =============================================================================
// SEVERITY
// =============================================================================

// Severity is the bucket a finding line was classified into.
type Severity int

const (
	// SeverityNone marks lines that are not findings (banners, blanks, ✓).
	SeverityNone Severity = iota

	// SeverityError is a line mentioning "error".
	SeverityError

	// SeverityWarning is a line mentioning "warning".
	SeverityWarning

	// SeverityIssue is any other non-success line.
	SeverityIssue
)

// String returns the lowercase name of the severity.
func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityIssue:
		return "issue"
	default:
		return "none"
	}
}

// =============================================================================
// LINT RESULT
// =============================================================================

// Result is the outcome of one lint run.
//
// Description:
//
//	Success is false iff any finding list is non-empty, or the run hit an
//	execution fault (Error set). A run where solhint is not installed is
//	successful with Available=false.
//
// Thread Safety: Not safe for concurrent modification.
type Result struct {
	// Success is true when the source produced no findings.
	Success bool `json:"success"`

	// Errors holds raw lines classified as errors.
	Errors []string `json:"errors"`

	// Warnings holds raw lines classified as warnings.
	Warnings []string `json:"warnings"`

	// Issues holds every other non-success line.
	Issues []string `json:"issues"`

	// Error describes an execution fault, empty otherwise.
	Error string `json:"error,omitempty"`

	// Available is false when solhint could not be found.
	Available bool `json:"linter_available"`

	// Duration is how long the run took.
	Duration time.Duration `json:"-"`
}

// newResult returns a successful, empty result.
func newResult(available bool) *Result {
	return &Result{
		Success:   true,
		Errors:    make([]string, 0),
		Warnings:  make([]string, 0),
		Issues:    make([]string, 0),
		Available: available,
	}
}

// faultResult returns a failed result carrying err.
func faultResult(err error) *Result {
	r := newResult(true)
	r.Success = false
	r.Error = "Solhint audit failed: " + err.Error()
	return r
}

// FindingCount returns the number of errors plus warnings.
func (r *Result) FindingCount() int {
	return len(r.Errors) + len(r.Warnings)
}

// HasFindings reports whether any list is non-empty.
func (r *Result) HasFindings() bool {
	return len(r.Errors) > 0 || len(r.Warnings) > 0 || len(r.Issues) > 0
}

// NoFindingsSummary is the summary used when a run produced no findings.
const NoFindingsSummary = "No issues found - contract passed solhint analysis"

// Summary renders the findings as a prefixed, newline-joined block for use
// in a repair prompt.
func (r *Result) Summary() string {
	var lines []string
	for _, e := range r.Errors {
		lines = append(lines, "ERROR: "+e)
	}
	for _, w := range r.Warnings {
		lines = append(lines, "WARNING: "+w)
	}
	for _, i := range r.Issues {
		lines = append(lines, "ISSUE: "+i)
	}
	if len(lines) == 0 {
		return NoFindingsSummary
	}
	return strings.Join(lines, "\n")
}
