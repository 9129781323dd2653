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
	"errors"
	"net/http"

	"github.com/AleutianAI/MetaDAG/pkg/logging"
	"github.com/AleutianAI/MetaDAG/services/history"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/datatypes"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"
)

// HandleSaveChatHistory serves POST /save_chat_history.
func HandleSaveChatHistory(store history.Store, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleSaveChatHistory")
		defer span.End()

		var req datatypes.SaveChatRequest
		if !bindRequest(c, span, m, observability.EndpointSaveChat, &req) {
			return
		}

		entries := make([]history.Entry, len(req.ChatHistory))
		for i, e := range req.ChatHistory {
			entries[i] = history.Entry(e)
		}
		if err := store.AppendChat(ctx, req.UserID, entries); err != nil {
			storeFailure(c, span, m, observability.EndpointSaveChat, err)
			return
		}

		m.RecordRequest(observability.EndpointSaveChat, observability.StatusSuccess)
		c.JSON(http.StatusOK, datatypes.SuccessResponse{Success: true})
	}
}

// HandleGetChatHistory serves GET /get_chat_history/:user_id. An unknown
// user gets an empty list.
func HandleGetChatHistory(store history.Store, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleGetChatHistory")
		defer span.End()

		userID := c.Param("user_id")
		chats, err := store.ChatHistory(ctx, userID)
		if err != nil {
			storeFailure(c, span, m, observability.EndpointGetChat, err)
			return
		}

		m.RecordRequest(observability.EndpointGetChat, observability.StatusSuccess)
		c.JSON(http.StatusOK, datatypes.ChatHistoryResponse{UserID: userID, ChatHistory: chats})
	}
}

// HandleDeleteChatHistory serves DELETE /chat_history/:user_id.
func HandleDeleteChatHistory(store history.Store, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleDeleteChatHistory")
		defer span.End()

		if err := store.DeleteChatHistory(ctx, c.Param("user_id")); err != nil {
			storeFailure(c, span, m, observability.EndpointDeleteChat, err)
			return
		}

		m.RecordRequest(observability.EndpointDeleteChat, observability.StatusSuccess)
		c.JSON(http.StatusOK, datatypes.SuccessResponse{Success: true})
	}
}

// HandleSaveDeployment serves POST /save_deployment.
func HandleSaveDeployment(store history.Store, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleSaveDeployment")
		defer span.End()

		var req datatypes.SaveDeploymentRequest
		if !bindRequest(c, span, m, observability.EndpointSaveDeployment, &req) {
			return
		}

		if err := store.AppendDeployment(ctx, req.UserID, history.Entry(req.Deployment)); err != nil {
			storeFailure(c, span, m, observability.EndpointSaveDeployment, err)
			return
		}

		m.RecordRequest(observability.EndpointSaveDeployment, observability.StatusSuccess)
		c.JSON(http.StatusOK, datatypes.SuccessResponse{Success: true})
	}
}

// HandleGetDeployments serves GET /get_deployments/:user_id.
func HandleGetDeployments(store history.Store, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleGetDeployments")
		defer span.End()

		userID := c.Param("user_id")
		deps, err := store.Deployments(ctx, userID)
		if err != nil {
			storeFailure(c, span, m, observability.EndpointGetDeployments, err)
			return
		}

		m.RecordRequest(observability.EndpointGetDeployments, observability.StatusSuccess)
		c.JSON(http.StatusOK, datatypes.DeploymentsResponse{UserID: userID, Deployments: deps})
	}
}

// storeFailure maps a store error to a response. Backend details are
// logged, not returned.
func storeFailure(c *gin.Context, span trace.Span, m *observability.Metrics, endpoint observability.Endpoint, err error) {
	failSpan(span, err)
	if errors.Is(err, history.ErrInvalidUserID) {
		m.RecordRequest(endpoint, observability.StatusClientError)
		respondError(c, http.StatusBadRequest, err.Error())
		return
	}
	logging.FromContext(c.Request.Context()).Error("History store failure",
		"endpoint", string(endpoint), "error", err)
	m.RecordRequest(endpoint, observability.StatusError)
	respondError(c, http.StatusInternalServerError, "history store unavailable")
}
