/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
)

// previewLimit bounds how much prompt and response text String renders.
const previewLimit = 200

// Exchange is one model request and its outcome.
type Exchange struct {
	ID        string `json:"id"`
	Operation string `json:"operation"`
	Model     string `json:"model"`
	// Attempt is 1-based.
	Attempt int    `json:"attempt"`
	System  string `json:"system"`
	Prompt  string `json:"prompt"`

	Response         string    `json:"response"`
	PromptTokens     int64     `json:"prompt_tokens"`
	CompletionTokens int64     `json:"completion_tokens"`
	Error            error     `json:"error,omitempty"`
	StartTime        time.Time `json:"start_time"`
	EndTime          time.Time `json:"end_time"`

	tracer Tracer
	span   oteltrace.Span
}

// Start opens an exchange and its span. The returned context carries the span
// and should be used for the model request.
func Start(ctx context.Context, operation, model string, attempt int, system, prompt string) (context.Context, *Exchange) {
	tr := otel.Tracer("chainguard.dev/selfheal/agents/agenttrace",
		oteltrace.WithInstrumentationVersion("1.0.0"))
	ctx, span := tr.Start(ctx, "agent.model_call", oteltrace.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("model", model),
		attribute.Int("attempt", attempt),
		attribute.Int("prompt.bytes", len(system)+len(prompt)),
	))

	return ctx, &Exchange{
		ID:        generateExchangeID(),
		Operation: operation,
		Model:     model,
		Attempt:   attempt,
		System:    system,
		Prompt:    prompt,
		StartTime: time.Now(),
		tracer:    FromContext(ctx),
		span:      span,
	}
}

// RecordTokenUsage stores token counts on the exchange and its span.
func (e *Exchange) RecordTokenUsage(promptTokens, completionTokens int64) {
	e.PromptTokens, e.CompletionTokens = promptTokens, completionTokens
	e.span.SetAttributes(
		attribute.Int64("tokens.input", promptTokens),
		attribute.Int64("tokens.output", completionTokens),
		attribute.Int64("tokens.total", promptTokens+completionTokens),
	)
}

// Complete ends the span and hands the exchange to its tracer. It must be
// called exactly once.
func (e *Exchange) Complete(response string, err error) {
	e.Response = response
	e.Error = err
	e.EndTime = time.Now()

	if err != nil {
		e.span.RecordError(err)
		e.span.SetStatus(codes.Error, err.Error())
	} else {
		e.span.SetStatus(codes.Ok, "")
	}
	e.span.End()

	e.tracer.Record(e)
}

// Duration returns the elapsed time, up to now if the exchange is open.
func (e *Exchange) Duration() time.Duration {
	if e.EndTime.IsZero() {
		return time.Since(e.StartTime)
	}
	return e.EndTime.Sub(e.StartTime)
}

// String renders a readable transcript with long text truncated.
func (e *Exchange) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Exchange %s ===\n", e.ID)
	fmt.Fprintf(&sb, "Operation: %s (attempt %d)\n", e.Operation, e.Attempt)
	fmt.Fprintf(&sb, "Model: %s\n", e.Model)
	fmt.Fprintf(&sb, "Duration: %v\n", e.Duration())
	fmt.Fprintf(&sb, "Tokens: %d in, %d out\n", e.PromptTokens, e.CompletionTokens)
	fmt.Fprintf(&sb, "Prompt: %q\n", preview(e.Prompt))
	if e.Error != nil {
		fmt.Fprintf(&sb, "Error: %v\n", e.Error)
	} else {
		fmt.Fprintf(&sb, "Response: %q\n", preview(e.Response))
	}
	return sb.String()
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLimit {
		return s
	}
	return string(r[:previewLimit-3]) + "..."
}

// generateExchangeID returns YYYYMMDD-HHMMSS-RRRRRRRR.
func generateExchangeID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102-150405.000000")
	}
	return fmt.Sprintf("%s-%s", time.Now().Format("20060102-150405"), hex.EncodeToString(b))
}
