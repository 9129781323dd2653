// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP request handlers for the orchestrator service.
//
// Each handler is a factory that closes over its collaborators and returns
// a gin.HandlerFunc. Collaborators are accepted as small interfaces so tests
// can substitute fakes for the linter, model, toolchain and store.
package handlers

import (
	"net/http"

	"github.com/AleutianAI/MetaDAG/pkg/logging"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/datatypes"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/middleware"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("metadag.orchestrator.handlers")

// validatable is implemented by every request type in datatypes.
type validatable interface {
	Validate() error
}

// bindRequest decodes the JSON body into req and validates it. On failure
// it writes a 400 response and returns false.
func bindRequest(c *gin.Context, span trace.Span, m *observability.Metrics, endpoint observability.Endpoint, req validatable) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		logging.FromContext(c.Request.Context()).Warn("Failed to parse request body",
			"endpoint", string(endpoint), "error", err)
		respondError(c, http.StatusBadRequest, "invalid request body")
		m.RecordRequest(endpoint, observability.StatusClientError)
		return false
	}
	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		respondError(c, http.StatusBadRequest, err.Error())
		m.RecordRequest(endpoint, observability.StatusClientError)
		return false
	}
	return true
}

// respondError writes an ErrorResponse carrying the request ID.
func respondError(c *gin.Context, status int, message string) {
	c.JSON(status, datatypes.ErrorResponse{
		Error:     message,
		RequestID: middleware.GetRequestID(c),
	})
}

// failSpan marks span as failed with err.
func failSpan(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
