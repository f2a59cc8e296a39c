/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package agenttrace_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"chainguard.dev/selfheal/agents/agenttrace"
)

func TestExchangeRecordedOnComplete(t *testing.T) {
	var got []*agenttrace.Exchange
	ctx := agenttrace.WithTracer(context.Background(), agenttrace.ByCode(func(e *agenttrace.Exchange) {
		got = append(got, e)
	}))

	_, ex := agenttrace.Start(ctx, "get_fix", "gpt-4", 2, "system", "fix tests/test_main.py")
	if len(got) != 0 {
		t.Fatalf("recorded %d exchanges before Complete", len(got))
	}
	ex.RecordTokenUsage(120, 40)
	ex.Complete("def test_add():\n    assert 4 == 4\n", nil)

	if len(got) != 1 {
		t.Fatalf("recorded %d exchanges, wanted 1", len(got))
	}
	e := got[0]
	if e.Operation != "get_fix" || e.Model != "gpt-4" || e.Attempt != 2 {
		t.Errorf("exchange = %+v, wanted get_fix/gpt-4/2", e)
	}
	if e.PromptTokens != 120 || e.CompletionTokens != 40 {
		t.Errorf("tokens = %d/%d, wanted 120/40", e.PromptTokens, e.CompletionTokens)
	}
	if e.EndTime.IsZero() || e.Duration() < 0 {
		t.Errorf("exchange not closed: %+v", e)
	}
	if e.ID == "" {
		t.Error("exchange has no ID")
	}
}

func TestExchangeString(t *testing.T) {
	ctx := agenttrace.WithTracer(context.Background(), agenttrace.ByCode(nil))

	_, ex := agenttrace.Start(ctx, "analyze_error", "claude-sonnet-4-5", 1, "", strings.Repeat("x", 500))
	ex.Complete("", errors.New("429 too many requests"))

	s := ex.String()
	for _, want := range []string{
		"Operation: analyze_error (attempt 1)",
		"Model: claude-sonnet-4-5",
		"Error: 429 too many requests",
		"...",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("String() missing %q:\n%s", want, s)
		}
	}
	if strings.Contains(s, strings.Repeat("x", 300)) {
		t.Errorf("String() did not truncate the prompt:\n%s", s)
	}
}

func TestFromContextDefaultsToLogger(t *testing.T) {
	if agenttrace.FromContext(context.Background()) == nil {
		t.Fatal("FromContext() = nil, wanted default tracer")
	}
	// The default tracer must not panic without a configured logger.
	_, ex := agenttrace.Start(context.Background(), "get_fix", "gpt-4", 1, "s", "u")
	ex.Complete("ok", nil)
}
