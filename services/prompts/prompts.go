// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package prompts holds the chat templates sent to the language model.
//
// Each template is a two-message langchaingo ChatPromptTemplate: a fixed
// system directive and a human turn with Go-template placeholders. Render
// fills the placeholders and converts the result to llm.Message values.
package prompts

import (
	"fmt"

	"github.com/AleutianAI/MetaDAG/services/llm"
	"github.com/tmc/langchaingo/schema"
	lcprompts "github.com/tmc/langchaingo/prompts"
)

// Template variable names.
const (
	VarContractCode = "contract_code"
	VarAuditSummary = "audit_summary"
	VarErrorMessage = "error_message"
	VarContractType = "contract_type"
	VarFeatures     = "features"
)

// Template is a named chat prompt.
type Template struct {
	name string
	vars []string
	chat lcprompts.ChatPromptTemplate
}

func newTemplate(name, system, human string, vars ...string) Template {
	return Template{
		name: name,
		vars: vars,
		chat: lcprompts.NewChatPromptTemplate([]lcprompts.MessageFormatter{
			lcprompts.NewSystemMessagePromptTemplate(system, nil),
			lcprompts.NewHumanMessagePromptTemplate(human, vars),
		}),
	}
}

// Name identifies the template in logs and metrics.
func (t Template) Name() string {
	return t.name
}

// Render fills the template. Every declared variable must be present in
// values; extra keys are ignored.
func (t Template) Render(values map[string]any) ([]llm.Message, error) {
	for _, v := range t.vars {
		if _, ok := values[v]; !ok {
			return nil, fmt.Errorf("prompt %s: missing variable %q", t.name, v)
		}
	}

	msgs, err := t.chat.FormatMessages(values)
	if err != nil {
		return nil, fmt.Errorf("prompt %s: %w", t.name, err)
	}

	out := make([]llm.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, llm.Message{Role: roleFor(m.GetType()), Content: m.GetContent()})
	}
	return out, nil
}

func roleFor(t schema.ChatMessageType) string {
	switch t {
	case schema.ChatMessageTypeSystem:
		return llm.RoleSystem
	case schema.ChatMessageTypeAI:
		return llm.RoleAssistant
	default:
		return llm.RoleUser
	}
}

// =============================================================================
// Templates
// =============================================================================

const auditSystem = "You are an expert Solidity smart contract auditor and developer. Your task is to:\n" +
	"1. Analyze the provided incomplete or incorrect smart contract\n" +
	"2. Identify all issues, vulnerabilities, and missing components\n" +
	"3. Provide a complete, secure, and production-ready version of the contract\n" +
	"4. Follow Solidity best practices and security guidelines\n" +
	"5. Use OpenZeppelin contracts v5.x when appropriate\n" +
	"6. Ensure the contract compiles without errors\n" +
	"7. Add comprehensive comments explaining the fixes\n\n" +
	"IMPORTANT RULES:\n" +
	"- Always use pragma solidity ^0.8.0 or higher\n" +
	"- Remove SafeMath usage (not needed in Solidity ^0.8.0)\n" +
	"- Remove Counters usage (replaced with uint256 in OpenZeppelin v5.x)\n" +
	"- Replace _exists() with ownerOf() != address(0) for ERC721\n" +
	"- Add Ownable(msg.sender) to constructors when inheriting from Ownable\n" +
	"- Use reentrancy guards where appropriate\n" +
	"- Validate all inputs\n" +
	"- Handle edge cases and potential vulnerabilities\n\n" +
	"Return ONLY the ENTIRE corrected Solidity contract code, from the pragma statement to the last closing bracket, " +
	"with NO explanations, markdown, or comments outside the code. Do not truncate the contract."

const auditHuman = "Here is the incomplete or incorrect smart contract:\n\n{{.contract_code}}\n\n" +
	"Solhint audit results:\n{{.audit_summary}}\n\n" +
	"Please provide a complete, secure, and corrected version of this contract."

const repairSystem = "You are an expert Solidity developer. You MUST apply ALL of the following fixes to the contract below, even if it already compiles:\n" +
	"1. Replace all SafeMath imports/usages with native operators (remove SafeMath).\n" +
	"2. Replace all Counters imports/usages with simple uint256 variables (Counters was removed in OpenZeppelin v5.x).\n" +
	"3. Replace all _exists(tokenId) calls with ownerOf(tokenId) != address(0) (_exists was removed in OpenZeppelin v5.x).\n" +
	"4. If the contract inherits from Ownable, add Ownable(msg.sender) to the constructor call.\n" +
	"5. Ensure pragma solidity is ^0.8.0 or higher.\n" +
	"EXAMPLES:\n" +
	"Before: import \"@openzeppelin/contracts/utils/Counters.sol\";\n" +
	"After:  (remove this line)\n" +
	"Before: using Counters for Counters.Counter;\n" +
	"After:  (remove this line)\n" +
	"Before: Counters.Counter private _counter;\n" +
	"After:  uint256 private _counter;\n" +
	"Before: _counter.current()\n" +
	"After:  _counter\n" +
	"Before: _counter.increment()\n" +
	"After:  ++_counter\n" +
	"Before: _exists(tokenId)\n" +
	"After:  ownerOf(tokenId) != address(0)\n" +
	"Before: constructor() ERC721(\"Name\", \"SYMBOL\") {}\n" +
	"After:  constructor() ERC721(\"Name\", \"SYMBOL\") Ownable(msg.sender) {}\n" +
	"Before: import \"@openzeppelin/contracts/utils/math/SafeMath.sol\";\n" +
	"After:  (remove this line)\n" +
	"Before: using SafeMath for uint256;\n" +
	"After:  (remove this line)\n" +
	"Before: a.add(b)\n" +
	"After:  a + b\n" +
	"Return ONLY the corrected Solidity code, no explanations."

const repairHuman = "Here is the Solidity contract that failed to compile:\n\n{{.contract_code}}\n\n" +
	"And here is the compiler error message:\n\n{{.error_message}}\n\n" +
	"Apply ALL the above fixes."

const generateSystem = "You are a helpful assistant who creates smart contracts in Solidity for non-technical users. " +
	"Always explain the contract in plain language after generating the code."

const generateHuman = "I want a {{.contract_type}} contract with features like: {{.features}}. Make it secure and production-ready."

var (
	// Audit asks the model to rewrite a contract given its lint findings.
	Audit = newTemplate("audit", auditSystem, auditHuman, VarContractCode, VarAuditSummary)

	// Repair asks the model to fix a contract given a compiler error.
	Repair = newTemplate("repair", repairSystem, repairHuman, VarContractCode, VarErrorMessage)

	// Generate asks the model to draft a new contract.
	Generate = newTemplate("generate", generateSystem, generateHuman, VarContractType, VarFeatures)
)
