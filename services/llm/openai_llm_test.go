// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/AleutianAI/MetaDAG/pkg/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturedRequest struct {
	Model       string    `json:"model"`
	Temperature float32   `json:"temperature"`
	Messages    []Message `json:"messages"`
}

func newFakeOpenAI(t *testing.T, status int, body string, captured *capturedRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		if captured != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(captured))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, srv *httptest.Server) *OpenAIClient {
	t.Helper()
	client, err := NewOpenAIClient(OpenAIConfig{
		APIKey:  secrets.New("openai", "sk-test"),
		BaseURL: srv.URL + "/v1/",
	})
	require.NoError(t, err)
	return client
}

const completionBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "gpt-4o-mini",
  "choices": [{"index": 0, "message": {"role": "assistant", "content": "pragma solidity ^0.8.0;"}, "finish_reason": "stop"}],
  "usage": {"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15}
}`

func TestNewOpenAIClient_RequiresKey(t *testing.T) {
	_, err := NewOpenAIClient(OpenAIConfig{})
	assert.ErrorIs(t, err, ErrMissingAPIKey)

	_, err = NewOpenAIClient(OpenAIConfig{APIKey: secrets.New("openai", "")})
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}

func TestNewOpenAIClient_DefaultModel(t *testing.T) {
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: secrets.New("openai", "sk-test")})
	require.NoError(t, err)
	assert.Equal(t, DefaultOpenAIModel, client.Model())
}

func TestOpenAIClient_Chat(t *testing.T) {
	var got capturedRequest
	srv := newFakeOpenAI(t, http.StatusOK, completionBody, &got)
	client := newTestClient(t, srv)

	reply, err := client.Chat(context.Background(), []Message{
		{Role: RoleSystem, Content: "You are an auditor."},
		{Role: RoleUser, Content: "Fix this."},
	}, GenerationParams{Temperature: Temperature(0.1)})

	require.NoError(t, err)
	assert.Equal(t, "pragma solidity ^0.8.0;", reply)
	assert.Equal(t, DefaultOpenAIModel, got.Model)
	assert.InDelta(t, 0.1, got.Temperature, 0.0001)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, "user", got.Messages[1].Role)
}

func TestOpenAIClient_Generate_UsesPersona(t *testing.T) {
	var got capturedRequest
	srv := newFakeOpenAI(t, http.StatusOK, completionBody, &got)
	client := newTestClient(t, srv)

	_, err := client.Generate(context.Background(), "hello", GenerationParams{})
	require.NoError(t, err)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, defaultPersona, got.Messages[0].Content)
	assert.Equal(t, "hello", got.Messages[1].Content)
}

func TestOpenAIClient_Chat_ServerError(t *testing.T) {
	srv := newFakeOpenAI(t, http.StatusInternalServerError,
		`{"error": {"message": "boom", "type": "server_error"}}`, nil)
	client := newTestClient(t, srv)

	_, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, GenerationParams{})
	assert.Error(t, err)
}

func TestOpenAIClient_Chat_NoChoices(t *testing.T) {
	srv := newFakeOpenAI(t, http.StatusOK,
		`{"id": "x", "object": "chat.completion", "choices": []}`, nil)
	client := newTestClient(t, srv)

	_, err := client.Chat(context.Background(), []Message{{Role: RoleUser, Content: "x"}}, GenerationParams{})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}
