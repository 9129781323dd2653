// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"github.com/AleutianAI/MetaDAG/pkg/solidity"
	"github.com/AleutianAI/MetaDAG/services/audit"
	"github.com/AleutianAI/MetaDAG/services/history"
	"github.com/AleutianAI/MetaDAG/services/lint"
)

// StatusResponse is returned by GET /.
type StatusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status             string `json:"status"`
	LintAvailable      bool   `json:"lint_available"`
	ToolchainAvailable bool   `json:"toolchain_available"`
	StoreAvailable     bool   `json:"store_available"`
}

// AuditResponse is the audit report plus the structural validation of the
// submitted source.
type AuditResponse struct {
	*audit.Report
	Validation solidity.Structure `json:"validation"`
}

// ValidateResponse is returned by /validate.
type ValidateResponse struct {
	Success    bool               `json:"success"`
	Validation solidity.Structure `json:"validation"`
}

// LintResponse is returned by /solhint-only.
type LintResponse struct {
	Success     bool         `json:"success"`
	AuditResult *lint.Result `json:"audit_result"`
}

// GenerateResponse is returned by /generate.
type GenerateResponse struct {
	Contract string `json:"contract"`
	Code     string `json:"code"`
}

// SuccessResponse acknowledges a write.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ChatHistoryResponse is returned by /get_chat_history/:user_id.
type ChatHistoryResponse struct {
	UserID      string          `json:"user_id"`
	ChatHistory []history.Entry `json:"chat_history"`
}

// DeploymentsResponse is returned by /get_deployments/:user_id.
type DeploymentsResponse struct {
	UserID      string          `json:"user_id"`
	Deployments []history.Entry `json:"deployments"`
}

// ErrorResponse is returned for rejected or failed requests.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}
