// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package autofix

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/AleutianAI/MetaDAG/services/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockLLMClient records the messages it receives and replies with a
// canned response.
type mockLLMClient struct {
	mu       sync.Mutex
	reply    string
	err      error
	panicMsg string
	calls    [][]llm.Message
	params   []llm.GenerationParams
}

func (m *mockLLMClient) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return m.Chat(ctx, []llm.Message{{Role: llm.RoleUser, Content: prompt}}, params)
}

func (m *mockLLMClient) Chat(_ context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, messages)
	m.params = append(m.params, params)
	if m.panicMsg != "" {
		panic(m.panicMsg)
	}
	return m.reply, m.err
}

const brokenSource = "pragma solidity ^0.8.0;\ncontract Broken { function f() public { _exists(1); } }"

func TestRepairer_Repair_ExtractsFixedSource(t *testing.T) {
	client := &mockLLMClient{
		reply: "Here is the fix:\n```solidity\npragma solidity ^0.8.0;\ncontract Broken {}\n```\nDone.",
	}
	var observed []Outcome
	r := NewRepairer(client, WithObserver(func(_ string, o Outcome, _ time.Duration) {
		observed = append(observed, o)
	}))

	fixed := r.Repair(context.Background(), brokenSource, "Undeclared identifier _exists")

	assert.Equal(t, "pragma solidity ^0.8.0;\ncontract Broken {}", fixed)
	require.Len(t, client.calls, 1)
	msgs := client.calls[0]
	require.Len(t, msgs, 2)
	assert.Equal(t, llm.RoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[1].Content, brokenSource)
	assert.Contains(t, msgs[1].Content, "Undeclared identifier _exists")
	require.NotNil(t, client.params[0].Temperature)
	assert.InDelta(t, DefaultTemperature, *client.params[0].Temperature, 0.0001)
	assert.Equal(t, []Outcome{OutcomeRepaired}, observed)
}

func TestRepairer_Improve_UsesAuditPrompt(t *testing.T) {
	client := &mockLLMClient{reply: "pragma solidity ^0.8.0;\ncontract Better {}"}
	r := NewRepairer(client, WithTemperature(0.3))

	fixed := r.Improve(context.Background(), brokenSource, "WARNING: 1:1 warning something")

	assert.Equal(t, "pragma solidity ^0.8.0;\ncontract Better {}", fixed)
	require.Len(t, client.calls, 1)
	assert.Contains(t, client.calls[0][0].Content, "smart contract auditor")
	assert.Contains(t, client.calls[0][1].Content, "Solhint audit results:\nWARNING: 1:1 warning something")
	assert.InDelta(t, 0.3, *client.params[0].Temperature, 0.0001)
}

func TestRepairer_FailSoft(t *testing.T) {
	tests := []struct {
		name    string
		client  *mockLLMClient
		outcome Outcome
	}{
		{"model error", &mockLLMClient{err: errors.New("rate limited")}, OutcomeModelError},
		{"prose only", &mockLLMClient{reply: "Sorry, I can't do that."}, OutcomeEmpty},
		{"empty reply", &mockLLMClient{reply: ""}, OutcomeEmpty},
		{"client panic", &mockLLMClient{panicMsg: "boom"}, OutcomePanic},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Outcome
			r := NewRepairer(tt.client, WithObserver(func(_ string, o Outcome, _ time.Duration) { got = o }))

			assert.Equal(t, brokenSource, r.Repair(context.Background(), brokenSource, "err"))
			assert.Equal(t, brokenSource, r.Improve(context.Background(), brokenSource, "summary"))
			assert.Equal(t, tt.outcome, got)
		})
	}
}

func TestRepairer_NeverEmptyForNonEmptyInput(t *testing.T) {
	replies := []string{"", "   ", "```solidity\n```", "no code here", "### just a header"}
	for _, reply := range replies {
		r := NewRepairer(&mockLLMClient{reply: reply})
		out := r.Repair(context.Background(), brokenSource, "err")
		assert.NotEmpty(t, out, "reply %q", reply)
	}
}
