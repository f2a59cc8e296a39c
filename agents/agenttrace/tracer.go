/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace

import (
	"context"

	"github.com/chainguard-dev/clog"
)

// Tracer receives completed exchanges.
type Tracer interface {
	Record(e *Exchange)
}

// ByCode adapts a function to a Tracer. A nil ByCode drops exchanges.
type ByCode func(e *Exchange)

func (f ByCode) Record(e *Exchange) {
	if f != nil {
		f(e)
	}
}

type tracerKey struct{}

// WithTracer attaches t to ctx for exchanges started from it.
func WithTracer(ctx context.Context, t Tracer) context.Context {
	return context.WithValue(ctx, tracerKey{}, t)
}

// FromContext returns the Tracer attached to ctx, or NewDefaultTracer(ctx).
func FromContext(ctx context.Context) Tracer {
	if t, ok := ctx.Value(tracerKey{}).(Tracer); ok && t != nil {
		return t
	}
	return NewDefaultTracer(ctx)
}

// NewDefaultTracer logs each exchange at debug level to the logger in ctx.
func NewDefaultTracer(ctx context.Context) Tracer {
	logger := clog.FromContext(ctx)
	return ByCode(func(e *Exchange) {
		logger.With(
			"exchange_id", e.ID,
			"operation", e.Operation,
			"attempt", e.Attempt,
			"duration_ms", e.Duration().Milliseconds(),
			"prompt_tokens", e.PromptTokens,
			"completion_tokens", e.CompletionTokens,
		).Debug("Model exchange completed", "exchange", e.String())
	})
}
