// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package prompts

import (
	"testing"

	"github.com/AleutianAI/MetaDAG/services/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSource = `pragma solidity ^0.8.0;
contract A {
    mapping(address => uint256) balances;
    function f() public { require(msg.sender != address(0), "zero"); }
}`

func TestAudit_Render(t *testing.T) {
	msgs, err := Audit.Render(map[string]any{
		VarContractCode: sampleSource,
		VarAuditSummary: "ERROR: x",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[0].Content, "expert Solidity smart contract auditor")
	assert.Contains(t, msgs[0].Content, "Do not truncate the contract.")

	assert.Equal(t, llm.RoleUser, msgs[1].Role)
	assert.Contains(t, msgs[1].Content, "Here is the incomplete or incorrect smart contract:\n\n"+sampleSource)
	assert.Contains(t, msgs[1].Content, "Solhint audit results:\nERROR: x")
}

func TestRepair_Render(t *testing.T) {
	msgs, err := Repair.Render(map[string]any{
		VarContractCode: sampleSource,
		VarErrorMessage: `DeclarationError: Undeclared identifier "_exists".`,
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Contains(t, msgs[0].Content, "Ownable(msg.sender)")
	assert.Contains(t, msgs[1].Content, `Undeclared identifier "_exists"`)
	assert.Contains(t, msgs[1].Content, "Apply ALL the above fixes.")
}

func TestGenerate_Render(t *testing.T) {
	msgs, err := Generate.Render(map[string]any{
		VarContractType: "ERC-20",
		VarFeatures:     "burnable, capped",
	})
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t,
		"I want a ERC-20 contract with features like: burnable, capped. Make it secure and production-ready.",
		msgs[1].Content)
}

func TestRender_MissingVariable(t *testing.T) {
	_, err := Repair.Render(map[string]any{VarContractCode: "x"})
	assert.ErrorContains(t, err, VarErrorMessage)
}

func TestTemplateNames(t *testing.T) {
	assert.Equal(t, "audit", Audit.Name())
	assert.Equal(t, "repair", Repair.Name())
	assert.Equal(t, "generate", Generate.Name())
}
