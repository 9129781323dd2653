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
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/AleutianAI/MetaDAG/pkg/logging"
	"github.com/AleutianAI/MetaDAG/services/generate"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/datatypes"
	"github.com/AleutianAI/MetaDAG/services/orchestrator/observability"
	"github.com/gin-gonic/gin"
)

// Generator drafts a contract from a "<type>|<features>" prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*generate.Draft, error)
}

// HandleGenerate serves POST /generate.
//
// # Outputs
//
//   - 200 with {contract, code}
//   - 400 when the prompt names no contract type
//   - 502 when the model call fails; the model error is logged, not returned
func HandleGenerate(gen Generator, m *observability.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := tracer.Start(c.Request.Context(), "HandleGenerate")
		defer span.End()

		var req datatypes.GenerateRequest
		if !bindRequest(c, span, m, observability.EndpointGenerate, &req) {
			return
		}

		start := time.Now()
		draft, err := gen.Generate(ctx, req.Prompt)
		m.ObserveStage(observability.StageGenerate, time.Since(start))
		if err != nil {
			failSpan(span, err)
			if errors.Is(err, generate.ErrEmptyPrompt) {
				m.RecordRequest(observability.EndpointGenerate, observability.StatusClientError)
				respondError(c, http.StatusBadRequest, err.Error())
				return
			}
			logging.FromContext(ctx).Error("Contract generation failed", "error", err)
			m.RecordRequest(observability.EndpointGenerate, observability.StatusError)
			respondError(c, http.StatusBadGateway, "contract generation failed")
			return
		}

		m.RecordRequest(observability.EndpointGenerate, observability.StatusSuccess)
		c.JSON(http.StatusOK, datatypes.GenerateResponse{
			Contract: draft.Contract,
			Code:     draft.Code,
		})
	}
}
