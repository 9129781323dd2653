// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package autofix repairs Solidity source, first with deterministic regex
// rewrites and then by asking a language model.
//
// The model path never fails its caller: any model error, empty reply or
// unusable extraction degrades to returning the input unchanged.
package autofix

import (
	"context"
	"log/slog"
	"time"

	"github.com/AleutianAI/MetaDAG/services/llm"
	"github.com/AleutianAI/MetaDAG/services/prompts"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// DefaultTemperature keeps repair output close to deterministic.
const DefaultTemperature float32 = 0.1

var tracer = otel.Tracer("metadag.autofix")

// Outcome labels how a repair attempt ended.
type Outcome string

const (
	// OutcomeRepaired means the model returned usable source.
	OutcomeRepaired Outcome = "repaired"

	// OutcomeModelError means the model call failed.
	OutcomeModelError Outcome = "model_error"

	// OutcomeEmpty means nothing could be extracted from the reply.
	OutcomeEmpty Outcome = "empty_extraction"

	// OutcomePromptError means the prompt could not be rendered.
	OutcomePromptError Outcome = "prompt_error"

	// OutcomePanic means the attempt panicked and was recovered.
	OutcomePanic Outcome = "panic"
)

// Observer is notified after every repair attempt.
type Observer func(template string, outcome Outcome, duration time.Duration)

// Repairer asks the model to fix source and extracts the corrected code.
//
// Thread Safety: Safe for concurrent use if the LLMClient is.
type Repairer struct {
	client      llm.LLMClient
	temperature float32
	observer    Observer
}

// RepairerOption configures a Repairer.
type RepairerOption func(*Repairer)

// WithTemperature overrides DefaultTemperature.
func WithTemperature(t float32) RepairerOption {
	return func(r *Repairer) {
		r.temperature = t
	}
}

// WithObserver installs a callback for metrics.
func WithObserver(o Observer) RepairerOption {
	return func(r *Repairer) {
		r.observer = o
	}
}

// NewRepairer creates a Repairer backed by client.
func NewRepairer(client llm.LLMClient, opts ...RepairerOption) *Repairer {
	r := &Repairer{client: client, temperature: DefaultTemperature}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Repair asks the model to fix source that failed to compile.
//
// # Inputs
//
//   - ctx: Bounds the model call.
//   - source: The source that failed. Callers usually pass it through
//     RewriteKnownIdioms first.
//   - compilerOutput: The compiler's error text.
//
// # Outputs
//
//   - string: Corrected source, or source itself on any failure.
func (r *Repairer) Repair(ctx context.Context, source, compilerOutput string) string {
	return r.run(ctx, prompts.Repair, source, map[string]any{
		prompts.VarContractCode: source,
		prompts.VarErrorMessage: compilerOutput,
	})
}

// Improve asks the model to audit and rewrite source given a findings
// summary. Same failure semantics as Repair.
func (r *Repairer) Improve(ctx context.Context, source, findingsSummary string) string {
	return r.run(ctx, prompts.Audit, source, map[string]any{
		prompts.VarContractCode: source,
		prompts.VarAuditSummary: findingsSummary,
	})
}

func (r *Repairer) run(ctx context.Context, tmpl prompts.Template, source string, vars map[string]any) (out string) {
	ctx, span := tracer.Start(ctx, "Repairer."+tmpl.Name())
	defer span.End()
	start := time.Now()
	outcome := OutcomeRepaired

	defer func() {
		if p := recover(); p != nil {
			slog.Error("Repair panicked, returning input unchanged",
				slog.String("template", tmpl.Name()),
				slog.Any("panic", p),
			)
			out = source
			outcome = OutcomePanic
		}
		span.SetAttributes(
			attribute.String("autofix.outcome", string(outcome)),
			attribute.Bool("autofix.changed", out != source),
		)
		if r.observer != nil {
			r.observer(tmpl.Name(), outcome, time.Since(start))
		}
	}()

	msgs, err := tmpl.Render(vars)
	if err != nil {
		slog.Error("Rendering repair prompt failed", slog.String("error", err.Error()))
		outcome = OutcomePromptError
		return source
	}

	reply, err := r.client.Chat(ctx, msgs, llm.GenerationParams{Temperature: llm.Temperature(r.temperature)})
	if err != nil {
		slog.Warn("Model repair failed, returning input unchanged",
			slog.String("template", tmpl.Name()),
			slog.String("error", err.Error()),
		)
		span.RecordError(err)
		span.SetStatus(codes.Error, "model call failed")
		outcome = OutcomeModelError
		return source
	}

	fixed := ExtractSource(reply)
	if fixed == "" {
		slog.Warn("Model reply contained no source, returning input unchanged",
			slog.String("template", tmpl.Name()),
			slog.Int("reply_bytes", len(reply)),
		)
		outcome = OutcomeEmpty
		return source
	}

	slog.Debug("Model repair completed",
		slog.String("template", tmpl.Name()),
		slog.Duration("duration", time.Since(start)),
		slog.Int("source_bytes", len(source)),
		slog.Int("fixed_bytes", len(fixed)),
	)
	return fixed
}
