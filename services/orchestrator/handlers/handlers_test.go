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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/AleutianAI/MetaDAG/services/audit"
	"github.com/AleutianAI/MetaDAG/services/deploy"
	"github.com/AleutianAI/MetaDAG/services/generate"
	"github.com/AleutianAI/MetaDAG/services/history"
	"github.com/AleutianAI/MetaDAG/services/lint"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/datatypes"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/middleware"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

const sampleContract = `// SPDX-License-Identifier: MIT
pragma solidity ^0.8.20;

contract Greeter {
    string public greeting;

    constructor(string memory _greeting) {
        greeting = _greeting;
    }
}`

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

func newTestRouter() *gin.Engine {
	r := gin.New()
	r.Use(middleware.RequestID())
	return r
}

func doJSON(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

// =============================================================================
// Fakes
// =============================================================================

type fakeAuditor struct {
	report *audit.Report
	got    string
}

func (f *fakeAuditor) AuditAndFix(_ context.Context, source string) *audit.Report {
	f.got = source
	return f.report
}

type fakeLinter struct {
	result *lint.Result
}

func (f *fakeLinter) Lint(context.Context, string) *lint.Result {
	return f.result
}

type fakeGenerator struct {
	draft *generate.Draft
	err   error
}

func (f *fakeGenerator) Generate(context.Context, string) (*generate.Draft, error) {
	return f.draft, f.err
}

type deployCall struct {
	source, name, network string
}

type fakeDeployer struct {
	result *deploy.Result
	calls  []deployCall
}

func (f *fakeDeployer) DeployTo(_ context.Context, source, name, network string) *deploy.Result {
	f.calls = append(f.calls, deployCall{source, name, network})
	return f.result
}

// memStore is an in-memory history.Store.
type memStore struct {
	mu          sync.Mutex
	chats       map[string][]history.Entry
	deployments map[string][]history.Entry
	err         error
}

func newMemStore() *memStore {
	return &memStore{
		chats:       map[string][]history.Entry{},
		deployments: map[string][]history.Entry{},
	}
}

func (s *memStore) check(userID string) error {
	if s.err != nil {
		return s.err
	}
	if userID == "" {
		return history.ErrInvalidUserID
	}
	return nil
}

func (s *memStore) AppendChat(_ context.Context, userID string, entries []history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(userID); err != nil {
		return err
	}
	s.chats[userID] = append(s.chats[userID], entries...)
	return nil
}

func (s *memStore) ChatHistory(_ context.Context, userID string) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(userID); err != nil {
		return nil, err
	}
	return append([]history.Entry{}, s.chats[userID]...), nil
}

func (s *memStore) DeleteChatHistory(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(userID); err != nil {
		return err
	}
	delete(s.chats, userID)
	return nil
}

func (s *memStore) AppendDeployment(_ context.Context, userID string, entry history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(userID); err != nil {
		return err
	}
	s.deployments[userID] = append(s.deployments[userID], entry)
	return nil
}

func (s *memStore) Deployments(_ context.Context, userID string) ([]history.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.check(userID); err != nil {
		return nil, err
	}
	return append([]history.Entry{}, s.deployments[userID]...), nil
}

func (s *memStore) Ping(context.Context) error  { return s.err }
func (s *memStore) Close(context.Context) error { return nil }

var _ history.Store = (*memStore)(nil)

// =============================================================================
// Contract Handlers
// =============================================================================

func TestHandleAudit(t *testing.T) {
	auditor := &fakeAuditor{report: &audit.Report{
		Success:         true,
		OriginalCode:    sampleContract,
		CorrectedCode:   sampleContract + "\n",
		OriginalAudit:   &lint.Result{Success: false, Errors: []string{"1:1 error x"}},
		FinalAudit:      &lint.Result{Success: true},
		IssuesFixed:     1,
		RemainingIssues: 0,
		Improvements:    &audit.Improvements{},
	}}
	m := newTestMetrics()
	r := newTestRouter()
	r.POST("/audit", HandleAudit(auditor, m))

	w := doJSON(t, r, http.MethodPost, "/audit", datatypes.ContractRequest{ContractCode: sampleContract, Description: "greeter"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, 1.0, body["issues_fixed"])
	assert.Equal(t, sampleContract+"\n", body["corrected_code"])
	validation := body["validation"].(map[string]any)
	assert.Equal(t, "Greeter", validation["contract_name"])
	assert.Equal(t, true, validation["has_constructor"])
	assert.Equal(t, sampleContract, auditor.got)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("audit", observability.StatusSuccess)))
}

func TestHandleAudit_FailedReportIsStillOK(t *testing.T) {
	auditor := &fakeAuditor{report: &audit.Report{
		Success:       false,
		OriginalCode:  "x",
		CorrectedCode: "x",
		Error:         "boom",
	}}
	m := newTestMetrics()
	r := newTestRouter()
	r.POST("/audit", HandleAudit(auditor, m))

	w := doJSON(t, r, http.MethodPost, "/audit", datatypes.ContractRequest{ContractCode: "x"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "boom", body["error"])
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("audit", observability.StatusError)))
}

func TestContractHandlers_RejectBadInput(t *testing.T) {
	m := newTestMetrics()
	r := newTestRouter()
	r.POST("/audit", HandleAudit(&fakeAuditor{}, m))
	r.POST("/validate", HandleValidate(m))
	r.POST("/solhint-only", HandleLintOnly(&fakeLinter{}, m))

	tests := []struct {
		name string
		path string
		body any
	}{
		{"audit malformed", "/audit", "{not json"},
		{"audit missing code", "/audit", map[string]string{"description": "x"}},
		{"audit oversized", "/audit", datatypes.ContractRequest{ContractCode: strings.Repeat("a", datatypes.MaxContractBytes+1)}},
		{"validate missing code", "/validate", map[string]string{}},
		{"lint missing code", "/solhint-only", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, r, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			body := decode[datatypes.ErrorResponse](t, w)
			assert.NotEmpty(t, body.Error)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestHandleValidate(t *testing.T) {
	r := newTestRouter()
	r.POST("/validate", HandleValidate(newTestMetrics()))

	w := doJSON(t, r, http.MethodPost, "/validate", datatypes.ContractRequest{ContractCode: "contract Bare {}"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["success"])
	validation := body["validation"].(map[string]any)
	assert.Equal(t, false, validation["has_pragma"])
	assert.Nil(t, validation["solidity_version"])
	assert.Equal(t, "Bare", validation["contract_name"])
}

func TestHandleLintOnly(t *testing.T) {
	linter := &fakeLinter{result: &lint.Result{
		Success:   false,
		Errors:    []string{"3:5 error Explicitly mark visibility"},
		Warnings:  []string{},
		Issues:    []string{},
		Available: true,
	}}
	r := newTestRouter()
	r.POST("/solhint-only", HandleLintOnly(linter, newTestMetrics()))

	w := doJSON(t, r, http.MethodPost, "/solhint-only", datatypes.ContractRequest{ContractCode: sampleContract})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[datatypes.LintResponse](t, w)
	assert.True(t, body.Success)
	require.NotNil(t, body.AuditResult)
	assert.False(t, body.AuditResult.Success)
	assert.Len(t, body.AuditResult.Errors, 1)
}

// =============================================================================
// Generate
// =============================================================================

func TestHandleGenerate(t *testing.T) {
	tests := []struct {
		name       string
		gen        *fakeGenerator
		body       any
		wantStatus int
	}{
		{
			name:       "success",
			gen:        &fakeGenerator{draft: &generate.Draft{Contract: "reply", Code: "pragma solidity ^0.8.0;"}},
			body:       datatypes.GenerateRequest{Prompt: "ERC20|mintable"},
			wantStatus: http.StatusOK,
		},
		{
			name:       "empty type",
			gen:        &fakeGenerator{err: generate.ErrEmptyPrompt},
			body:       datatypes.GenerateRequest{Prompt: "|mintable"},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "model failure",
			gen:        &fakeGenerator{err: errors.New("upstream 500: secret detail")},
			body:       datatypes.GenerateRequest{Prompt: "NFT"},
			wantStatus: http.StatusBadGateway,
		},
		{
			name:       "missing prompt",
			gen:        &fakeGenerator{},
			body:       map[string]string{},
			wantStatus: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter()
			r.POST("/generate", HandleGenerate(tt.gen, newTestMetrics()))

			w := doJSON(t, r, http.MethodPost, "/generate", tt.body)
			require.Equal(t, tt.wantStatus, w.Code)
			assert.NotContains(t, w.Body.String(), "secret detail")
			if tt.wantStatus == http.StatusOK {
				body := decode[datatypes.GenerateResponse](t, w)
				assert.Equal(t, "reply", body.Contract)
				assert.Equal(t, "pragma solidity ^0.8.0;", body.Code)
			}
		})
	}
}

// =============================================================================
// Deploy
// =============================================================================

func successfulDeploy() *deploy.Result {
	verified := true
	return &deploy.Result{
		Success:         true,
		ContractAddress: "0x5FbDB2315678afecb367f032d93F642f64180aa3",
		Network:         "primordial",
		ContractName:    "Greeter",
		ExplorerURL:     "https://primordial.bdagscan.com/address/0x5FbDB2315678afecb367f032d93F642f64180aa3",
		TransactionHash: "0xabc",
		Verified:        &verified,
		Message:         "Contract deployed successfully",
	}
}

func TestHandleDeploy_RecordsHistory(t *testing.T) {
	deployer := &fakeDeployer{result: successfulDeploy()}
	store := newMemStore()
	r := newTestRouter()
	r.POST("/deploy", HandleDeploy(deployer, store, newTestMetrics()))

	w := doJSON(t, r, http.MethodPost, "/deploy", datatypes.DeployRequest{
		Code:    sampleContract,
		Network: "primordial",
		UserID:  "user-1",
	})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", body["contractAddress"])
	assert.Equal(t, "primordial", body["network"])

	require.Len(t, deployer.calls, 1)
	assert.Equal(t, deployCall{sampleContract, "", "primordial"}, deployer.calls[0])

	deps, err := store.Deployments(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "0x5FbDB2315678afecb367f032d93F642f64180aa3", deps[0]["contractAddress"])
	assert.Equal(t, true, deps[0]["verified"])
	assert.Equal(t, "0xabc", deps[0]["transactionHash"])
}

func TestHandleDeploy_FailureIsOKAndNotRecorded(t *testing.T) {
	deployer := &fakeDeployer{result: &deploy.Result{
		Success:      false,
		Network:      "primordial",
		ContractName: "Greeter",
		Error:        "compilation failed",
		ErrorKind:    deploy.KindCompile,
	}}
	store := newMemStore()
	m := newTestMetrics()
	r := newTestRouter()
	r.POST("/deploy", HandleDeploy(deployer, store, m))

	w := doJSON(t, r, http.MethodPost, "/deploy", datatypes.DeployRequest{Code: sampleContract, UserID: "user-1"})
	require.Equal(t, http.StatusOK, w.Code)

	body := decode[map[string]any](t, w)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, "compile", body["errorKind"])

	deps, err := store.Deployments(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Empty(t, deps)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("deploy", observability.StatusError)))
}

func TestHandleDeploy_HistoryFailureDoesNotFailDeploy(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("mongo down")
	r := newTestRouter()
	r.POST("/deploy", HandleDeploy(&fakeDeployer{result: successfulDeploy()}, store, nil))

	w := doJSON(t, r, http.MethodPost, "/deploy", datatypes.DeployRequest{Code: sampleContract, UserID: "u"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, decode[map[string]any](t, w)["success"])
}

func TestHandleDeploy_Validation(t *testing.T) {
	deployer := &fakeDeployer{result: successfulDeploy()}
	r := newTestRouter()
	r.POST("/deploy", HandleDeploy(deployer, nil, newTestMetrics()))

	for _, body := range []datatypes.DeployRequest{
		{Network: "primordial"},
		{Code: sampleContract, Network: "prim ordial"},
		{Code: sampleContract, ContractName: "Bad-Name"},
	} {
		w := doJSON(t, r, http.MethodPost, "/deploy", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	}
	assert.Empty(t, deployer.calls)
}

// =============================================================================
// History
// =============================================================================

func newHistoryRouter(store history.Store) *gin.Engine {
	m := newTestMetrics()
	r := newTestRouter()
	r.POST("/save_chat_history", HandleSaveChatHistory(store, m))
	r.GET("/get_chat_history/:user_id", HandleGetChatHistory(store, m))
	r.DELETE("/chat_history/:user_id", HandleDeleteChatHistory(store, m))
	r.POST("/save_deployment", HandleSaveDeployment(store, m))
	r.GET("/get_deployments/:user_id", HandleGetDeployments(store, m))
	return r
}

func TestHistoryHandlers_RoundTrip(t *testing.T) {
	r := newHistoryRouter(newMemStore())

	w := doJSON(t, r, http.MethodPost, "/save_chat_history", datatypes.SaveChatRequest{
		UserID: "alice",
		ChatHistory: []map[string]any{
			{"role": "user", "content": "ERC20|mintable"},
			{"role": "assistant", "content": "pragma solidity ^0.8.0;"},
		},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[datatypes.SuccessResponse](t, w).Success)

	w = doJSON(t, r, http.MethodGet, "/get_chat_history/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	chats := decode[datatypes.ChatHistoryResponse](t, w)
	assert.Equal(t, "alice", chats.UserID)
	require.Len(t, chats.ChatHistory, 2)
	assert.Equal(t, "assistant", chats.ChatHistory[1]["role"])

	w = doJSON(t, r, http.MethodPost, "/save_deployment", datatypes.SaveDeploymentRequest{
		UserID:     "alice",
		Deployment: map[string]any{"contractAddress": "0x1", "network": "primordial"},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/get_deployments/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	deps := decode[datatypes.DeploymentsResponse](t, w)
	require.Len(t, deps.Deployments, 1)
	assert.Equal(t, "0x1", deps.Deployments[0]["contractAddress"])

	w = doJSON(t, r, http.MethodDelete, "/chat_history/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, r, http.MethodGet, "/get_chat_history/alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[datatypes.ChatHistoryResponse](t, w).ChatHistory)
}

func TestHistoryHandlers_UnknownUserIsEmptyList(t *testing.T) {
	r := newHistoryRouter(newMemStore())

	w := doJSON(t, r, http.MethodGet, "/get_deployments/nobody", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"nobody","deployments":[]}`, w.Body.String())
}

func TestHistoryHandlers_StoreFailureHidesDetails(t *testing.T) {
	store := newMemStore()
	store.err = errors.New("connection refused 10.0.0.5:27017")
	r := newHistoryRouter(store)

	w := doJSON(t, r, http.MethodGet, "/get_chat_history/alice", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "10.0.0.5")

	w = doJSON(t, r, http.MethodPost, "/save_chat_history", map[string]any{"user_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Health
// =============================================================================

func TestHandleHealth(t *testing.T) {
	tests := []struct {
		name       string
		probes     HealthProbes
		wantStatus string
		wantLint   bool
	}{
		{
			name: "all up",
			probes: HealthProbes{
				LintAvailable:      func() bool { return true },
				ToolchainAvailable: func() bool { return true },
				StorePing:          func(context.Context) error { return nil },
			},
			wantStatus: "ok",
			wantLint:   true,
		},
		{
			name: "store down",
			probes: HealthProbes{
				LintAvailable: func() bool { return false },
				StorePing:     func(context.Context) error { return errors.New("down") },
			},
			wantStatus: "degraded",
		},
		{
			name:       "no probes",
			wantStatus: "degraded",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRouter()
			r.GET("/health", HandleHealth(tt.probes))

			w := doJSON(t, r, http.MethodGet, "/health", nil)
			require.Equal(t, http.StatusOK, w.Code)
			body := decode[datatypes.HealthResponse](t, w)
			assert.Equal(t, tt.wantStatus, body.Status)
			assert.Equal(t, tt.wantLint, body.LintAvailable)
		})
	}
}

func TestHandleHealth_ThrottlesStoreWarnings(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	r := newTestRouter()
	r.GET("/health", HandleHealth(HealthProbes{
		StorePing: func(context.Context) error { return errors.New("connection refused") },
	}))

	for i := 0; i < 5; i++ {
		w := doJSON(t, r, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 1, strings.Count(logs.String(), "History store unreachable"))
}

func TestHandleRoot(t *testing.T) {
	r := newTestRouter()
	r.GET("/", HandleRoot)

	w := doJSON(t, r, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","message":"MetaDAG backend is running!"}`, w.Body.String())
}
