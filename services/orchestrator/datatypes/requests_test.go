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
	"encoding/json"
	"strings"
	"testing"

	"github.com/AleutianAI/MetaDAG/pkg/solidity"
	"github.com/AleutianAI/MetaDAG/services/audit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContractRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     ContractRequest
		wantErr bool
	}{
		{"valid", ContractRequest{ContractCode: "contract A {}"}, false},
		{"missing code", ContractRequest{Description: "x"}, true},
		{"at limit", ContractRequest{ContractCode: strings.Repeat("a", MaxContractBytes)}, false},
		{"over limit", ContractRequest{ContractCode: strings.Repeat("a", MaxContractBytes+1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDeployRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     DeployRequest
		wantErr bool
	}{
		{"code only", DeployRequest{Code: "contract A {}"}, false},
		{"all fields", DeployRequest{Code: "c", Network: "primordial", ContractName: "Token_1", UserID: "u"}, false},
		{"missing code", DeployRequest{Network: "primordial"}, true},
		{"bad network", DeployRequest{Code: "c", Network: "main net; rm -rf"}, true},
		{"bad contract name", DeployRequest{Code: "c", ContractName: "1Token"}, true},
		{"path traversal name", DeployRequest{Code: "c", ContractName: "../Token"}, true},
		{"long user id", DeployRequest{Code: "c", UserID: strings.Repeat("u", MaxUserIDLength+1)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestHistoryRequests_Validate(t *testing.T) {
	assert.NoError(t, (&SaveChatRequest{UserID: "u", ChatHistory: []map[string]any{{"role": "user"}}}).Validate())
	assert.Error(t, (&SaveChatRequest{UserID: "u"}).Validate())
	assert.Error(t, (&SaveChatRequest{ChatHistory: []map[string]any{{}}}).Validate())

	assert.NoError(t, (&SaveDeploymentRequest{UserID: "u", Deployment: map[string]any{"network": "x"}}).Validate())
	assert.Error(t, (&SaveDeploymentRequest{UserID: "u", Deployment: map[string]any{}}).Validate())
}

func TestGenerateRequest_Validate(t *testing.T) {
	assert.NoError(t, (&GenerateRequest{Prompt: "ERC20|mintable"}).Validate())
	assert.Error(t, (&GenerateRequest{}).Validate())
	assert.Error(t, (&GenerateRequest{Prompt: strings.Repeat("p", MaxPromptBytes+1)}).Validate())
}

func TestAuditResponse_FlattensReport(t *testing.T) {
	resp := AuditResponse{
		Report:     &audit.Report{Success: true, OriginalCode: "a", CorrectedCode: "b", IssuesFixed: 2},
		Validation: solidity.Validate("pragma solidity ^0.8.0;\ncontract A {}"),
	}
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "b", m["corrected_code"])
	assert.Equal(t, 2.0, m["issues_fixed"])
	validation, ok := m["validation"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "A", validation["contract_name"])
}
