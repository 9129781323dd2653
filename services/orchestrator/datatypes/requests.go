// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request and response types for the
// orchestrator's HTTP API.
//
// Field names follow the JSON contract the web frontend already speaks,
// which mixes snake_case (audit, history) and camelCase (deploy results).
package datatypes

import (
	"github.com/AleutianAI/MetaDAG/pkg/solidity"
	"github.com/AleutianAI/MetaDAG/services/deploy"
	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants for Input Limits
// =============================================================================

const (
	// MaxContractBytes is the largest contract source accepted.
	MaxContractBytes = 512 * 1024

	// MaxPromptBytes is the largest generation prompt accepted.
	MaxPromptBytes = 8 * 1024

	// MaxUserIDLength bounds user identifiers.
	MaxUserIDLength = 256

	// MaxChatEntriesPerRequest bounds a single chat history save.
	MaxChatEntriesPerRequest = 500
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// requestValidate is the validator instance for request datatypes.
// Initialized in init() with custom validators.
var requestValidate *validator.Validate

func init() {
	requestValidate = validator.New()

	_ = requestValidate.RegisterValidation("maxbytes", validateMaxBytes)
	_ = requestValidate.RegisterValidation("solidityident", validateSolidityIdent)
	_ = requestValidate.RegisterValidation("network", validateNetwork)
}

// validateMaxBytes checks the byte length (not rune count) of a contract
// source against MaxContractBytes.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxContractBytes
}

// validateSolidityIdent accepts names usable as a Solidity contract name.
func validateSolidityIdent(fl validator.FieldLevel) bool {
	return solidity.IsIdentifier(fl.Field().String())
}

// validateNetwork accepts names usable as a Hardhat --network argument.
func validateNetwork(fl validator.FieldLevel) bool {
	return deploy.ValidNetwork(fl.Field().String())
}

// =============================================================================
// Contract Requests
// =============================================================================

// ContractRequest is the body of /audit, /validate and /solhint-only.
//
// # Validation
//
//   - ContractCode: required, at most MaxContractBytes bytes
//   - Description: optional, free text kept for the audit log
type ContractRequest struct {
	ContractCode string `json:"contract_code" validate:"required,maxbytes"`
	Description  string `json:"description"`
}

// Validate validates the request fields.
func (r *ContractRequest) Validate() error {
	return requestValidate.Struct(r)
}

// GenerateRequest is the body of /generate. Prompt has the form
// "<contract type>|<features>".
type GenerateRequest struct {
	Prompt string `json:"prompt" validate:"required,max=8192"`
}

// Validate validates the request fields.
func (r *GenerateRequest) Validate() error {
	return requestValidate.Struct(r)
}

// DeployRequest is the body of /deploy.
//
// # Validation
//
//   - Code: required, at most MaxContractBytes bytes
//   - Network: optional Hardhat network name; empty means the configured default
//   - ContractName: optional Solidity identifier; empty means derive from Code
//   - UserID: optional; when set, a successful deployment is recorded in
//     the user's history
type DeployRequest struct {
	Code         string `json:"code" validate:"required,maxbytes"`
	Network      string `json:"network" validate:"omitempty,network"`
	ContractName string `json:"contract_name" validate:"omitempty,solidityident"`
	UserID       string `json:"user_id" validate:"omitempty,max=256"`
}

// Validate validates the request fields.
func (r *DeployRequest) Validate() error {
	return requestValidate.Struct(r)
}

// =============================================================================
// History Requests
// =============================================================================

// SaveChatRequest is the body of /save_chat_history.
type SaveChatRequest struct {
	UserID      string           `json:"user_id" validate:"required,max=256"`
	ChatHistory []map[string]any `json:"chat_history" validate:"required,min=1,max=500"`
}

// Validate validates the request fields.
func (r *SaveChatRequest) Validate() error {
	return requestValidate.Struct(r)
}

// SaveDeploymentRequest is the body of /save_deployment.
type SaveDeploymentRequest struct {
	UserID     string         `json:"user_id" validate:"required,max=256"`
	Deployment map[string]any `json:"deployment" validate:"required,min=1"`
}

// Validate validates the request fields.
func (r *SaveDeploymentRequest) Validate() error {
	return requestValidate.Struct(r)
}
