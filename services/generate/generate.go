// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package generate drafts new contracts from a short description.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AleutianAI/MetaDAG/services/autofix"
	"github.com/AleutianAI/MetaDAG/services/llm"
	"github.com/AleutianAI/MetaDAG/services/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTemperature leaves a little room for variety in drafts.
const DefaultTemperature float32 = 0.2

// ErrEmptyPrompt is returned for a prompt with no contract type.
var ErrEmptyPrompt = errors.New("prompt must name a contract type")

var tracer = otel.Tracer("metadag.generate")

// Draft is a generated contract.
type Draft struct {
	// Contract is the model's full reply, code and explanation.
	Contract string `json:"contract"`

	// Code is the Solidity extracted from Contract, empty when the reply
	// had none.
	Code string `json:"code"`
}

// Generator drafts contracts with a language model.
type Generator struct {
	client      llm.LLMClient
	temperature float32
}

// NewGenerator creates a Generator backed by client.
func NewGenerator(client llm.LLMClient) *Generator {
	return &Generator{client: client, temperature: DefaultTemperature}
}

// ParsePrompt splits "<type>|<features>". Without a separator the whole
// prompt is the type and features are empty. Both parts are trimmed.
func ParsePrompt(prompt string) (contractType, features string) {
	contractType, features, _ = strings.Cut(prompt, "|")
	return strings.TrimSpace(contractType), strings.TrimSpace(features)
}

// Generate asks the model for a contract matching prompt.
//
// # Inputs
//
//   - ctx: Bounds the model call.
//   - prompt: "<type>|<features>", e.g. "ERC20 token|mintable, burnable".
//
// # Outputs
//
//   - *Draft: The reply and its extracted code.
//   - error: ErrEmptyPrompt, or the model error. Unlike repair, generation
//     has no input to fall back to, so model faults are returned.
func (g *Generator) Generate(ctx context.Context, prompt string) (*Draft, error) {
	ctx, span := tracer.Start(ctx, "Generator.Generate")
	defer span.End()

	contractType, features := ParsePrompt(prompt)
	if contractType == "" {
		return nil, ErrEmptyPrompt
	}
	span.SetAttributes(attribute.String("generate.contract_type", contractType))

	msgs, err := prompts.Generate.Render(map[string]any{
		prompts.VarContractType: contractType,
		prompts.VarFeatures:     features,
	})
	if err != nil {
		return nil, err
	}

	start := time.Now()
	reply, err := g.client.Chat(ctx, msgs, llm.GenerationParams{Temperature: llm.Temperature(g.temperature)})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		return nil, fmt.Errorf("generating %s contract: %w", contractType, err)
	}

	draft := &Draft{Contract: reply, Code: autofix.ExtractSource(reply)}
	slog.Info("Contract generated",
		slog.String("contract_type", contractType),
		slog.Int("reply_bytes", len(reply)),
		slog.Bool("has_code", draft.Code != ""),
		slog.Duration("duration", time.Since(start)),
	)
	return draft, nil
}
