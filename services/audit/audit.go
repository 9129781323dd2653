// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit runs the lint, repair and re-lint loop over a contract and
// summarizes what changed.
package audit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/MetaDAG/services/lint"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("metadag.audit")

// errNoLintResult is reported when a Linter breaks its contract.
var errNoLintResult = errors.New("linter returned no result")

// =============================================================================
// Collaborators
// =============================================================================

// Linter runs static analysis on source. Implementations report faults in
// the result rather than returning an error.
type Linter interface {
	Lint(ctx context.Context, source string) *lint.Result
}

// Fixer rewrites source given a findings summary. Implementations return
// the input unchanged when they cannot produce anything better.
type Fixer interface {
	Improve(ctx context.Context, source, findingsSummary string) string
}

// =============================================================================
// Report
// =============================================================================

// Report is the outcome of one audit. It is not modified after
// AuditAndFix returns it.
type Report struct {
	Success         bool            `json:"success"`
	OriginalCode    string          `json:"original_code"`
	CorrectedCode   string          `json:"corrected_code"`
	OriginalAudit   *lint.Result    `json:"original_audit,omitempty"`
	FinalAudit      *lint.Result    `json:"final_audit,omitempty"`
	IssuesFixed     int             `json:"issues_fixed"`
	RemainingIssues int             `json:"remaining_issues"`
	Improvements    *Improvements   `json:"improvements,omitempty"`
	FixChecks       map[string]bool `json:"fix_checks,omitempty"`
	Error           string          `json:"error,omitempty"`
}

func failedReport(source string, err error) *Report {
	return &Report{
		Success:       false,
		OriginalCode:  source,
		CorrectedCode: source,
		Error:         err.Error(),
	}
}

// =============================================================================
// Auditor
// =============================================================================

// Auditor wires a Linter and a Fixer into the audit loop.
//
// Thread Safety: Safe for concurrent use if both collaborators are.
type Auditor struct {
	linter Linter
	fixer  Fixer
}

// NewAuditor creates an Auditor.
func NewAuditor(linter Linter, fixer Fixer) *Auditor {
	return &Auditor{linter: linter, fixer: fixer}
}

// AuditAndFix lints source, asks the fixer for a corrected version, lints
// that, and reports the difference.
//
// # Description
//
//  1. Lint the original. A missing linter yields an empty successful run.
//  2. Summarize the findings with ERROR/WARNING/ISSUE prefixes.
//  3. Ask the fixer for a corrected contract.
//  4. Lint the corrected contract.
//  5. Detect heuristic improvements and known migration fixes.
//
// IssuesFixed counts original errors and warnings plus detected
// improvements. RemainingIssues counts final errors and warnings.
//
// # Inputs
//
//   - ctx: Bounds the lint runs and the model call.
//   - source: Contract source to audit.
//
// # Outputs
//
//   - *Report: Never nil. A fault anywhere in the loop, including a panic,
//     yields Success=false with Error set and both code fields equal to
//     source.
func (a *Auditor) AuditAndFix(ctx context.Context, source string) (report *Report) {
	ctx, span := tracer.Start(ctx, "Auditor.AuditAndFix")
	defer span.End()
	span.SetAttributes(attribute.Int("audit.source_bytes", len(source)))
	start := time.Now()

	defer func() {
		if p := recover(); p != nil {
			slog.Error("Audit panicked", slog.Any("panic", p))
			report = failedReport(source, fmt.Errorf("audit panicked: %v", p))
		}
		if !report.Success {
			span.SetStatus(codes.Error, report.Error)
		}
		span.SetAttributes(
			attribute.Int("audit.issues_fixed", report.IssuesFixed),
			attribute.Int("audit.remaining_issues", report.RemainingIssues),
		)
	}()

	original := a.linter.Lint(ctx, source)
	if original == nil {
		return failedReport(source, errNoLintResult)
	}
	slog.Info("Original lint completed",
		slog.Int("errors", len(original.Errors)),
		slog.Int("warnings", len(original.Warnings)),
		slog.Int("issues", len(original.Issues)),
	)

	corrected := a.fixer.Improve(ctx, source, original.Summary())

	final := a.linter.Lint(ctx, corrected)
	if final == nil {
		return failedReport(source, errNoLintResult)
	}

	improvements := DetectImprovements(source, corrected)
	report = &Report{
		Success:         true,
		OriginalCode:    source,
		CorrectedCode:   corrected,
		OriginalAudit:   original,
		FinalAudit:      final,
		IssuesFixed:     original.FindingCount() + improvements.Total,
		RemainingIssues: final.FindingCount(),
		Improvements:    &improvements,
		FixChecks:       FixChecks(source, corrected),
	}

	slog.Info("Audit completed",
		slog.Int("issues_fixed", report.IssuesFixed),
		slog.Int("remaining_issues", report.RemainingIssues),
		slog.Int("improvements", improvements.Total),
		slog.Duration("duration", time.Since(start)),
	)
	return report
}
