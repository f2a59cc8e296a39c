/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package metrics

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
)

// AttributeEnricher receives the base attributes (model, outcome) and returns
// the set to record.
type AttributeEnricher func(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue

type sessionKey struct{}

// WithSession stores the healing session id in ctx for SessionEnricher.
func WithSession(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionEnricher adds a session attribute when ctx carries one.
func SessionEnricher(ctx context.Context, baseAttrs []attribute.KeyValue) []attribute.KeyValue {
	if id, ok := ctx.Value(sessionKey{}).(string); ok && id != "" {
		return append(baseAttrs, attribute.String("session", id))
	}
	return baseAttrs
}
