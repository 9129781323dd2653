// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/AleutianAI/MetaDAG/pkg/logging"
	"github.com/AleutianAI/MetaDAG/pkg/solidity"
	"github.com/AleutianAI/MetaDAG/services/audit"
	"github.com/AleutianAI/MetaDAG/services/lint"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/datatypes"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Auditor runs the lint, repair, re-lint loop.
type Auditor interface {
	AuditAndFix(ctx context.Context, source string) *audit.Report
}

// Linter runs the static linter alone.
type Linter interface {
	Lint(ctx context.Context, source string) *lint.Result
}

// HandleAudit serves POST /audit.
//
// # Description
//
// Validates the contract structure, runs the audit/fix loop and returns
// the report with the validation attached. A failed audit is still a 200:
// the report carries success=false and the error.
func HandleAudit(auditor Auditor, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleAudit")
		defer span.End()

		var req datatypes.ContractRequest
		if !bindRequest(c, span, m, observability.EndpointAudit, &req) {
			return
		}
		span.SetAttributes(attribute.Int("contract.bytes", len(req.ContractCode)))

		validation := solidity.Validate(req.ContractCode)

		start := time.Now()
		report := auditor.AuditAndFix(ctx, req.ContractCode)
		m.ObserveStage(observability.StageAudit, time.Since(start))

		span.SetAttributes(
			attribute.Bool("audit.success", report.Success),
			attribute.Int("audit.issues_fixed", report.IssuesFixed),
			attribute.Int("audit.remaining_issues", report.RemainingIssues),
		)
		status := observability.StatusSuccess
		if !report.Success {
			status = observability.StatusError
			logging.FromContext(ctx).Warn("Audit failed", "error", report.Error)
		}
		m.RecordRequest(observability.EndpointAudit, status)

		c.JSON(http.StatusOK, datatypes.AuditResponse{
			Report:     report,
			Validation: validation,
		})
	}
}

// HandleValidate serves POST /validate. It inspects structure only; no
// tools run.
func HandleValidate(m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, span := tracer.Start(c.Request.Context(), "HandleValidate")
		defer span.End()

		var req datatypes.ContractRequest
		if !bindRequest(c, span, m, observability.EndpointValidate, &req) {
			return
		}

		m.RecordRequest(observability.EndpointValidate, observability.StatusSuccess)
		c.JSON(http.StatusOK, datatypes.ValidateResponse{
			Success:    true,
			Validation: solidity.Validate(req.ContractCode),
		})
	}
}

// HandleLintOnly serves POST /solhint-only: one lint run, no model.
func HandleLintOnly(linter Linter, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleLintOnly")
		defer span.End()

		var req datatypes.ContractRequest
		if !bindRequest(c, span, m, observability.EndpointLint, &req) {
			return
		}

		result := linter.Lint(ctx, req.ContractCode)
		m.ObserveStage(observability.StageLint, result.Duration)
		span.SetAttributes(
			attribute.Bool("lint.available", result.Available),
			attribute.Int("lint.findings", result.FindingCount()),
		)

		m.RecordRequest(observability.EndpointLint, observability.StatusSuccess)
		c.JSON(http.StatusOK, datatypes.LintResponse{
			Success:     true,
			AuditResult: result,
		})
	}
}
