/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fixprovider

import (
	"context"
	"fmt"
	"strings"

	"chainguard.dev/selfheal/agents/executor/retry"
)

// Request is a single system + user exchange with a model.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

// Completion is the text a model returned along with its token usage.
type Completion struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

// Model is a chat-style language model backend.
type Model interface {
	// Name returns the model identifier sent to the provider.
	Name() string
	// Complete performs exactly one request. Implementations must not retry.
	Complete(ctx context.Context, req Request) (*Completion, error)
	// Classify maps an error returned by Complete onto a retry class.
	Classify(err error) retry.Class
}

// NewModel selects a backend from the model name:
//   - "claude-*" uses the Anthropic Messages API
//   - "gemini-*" uses the Gemini API
//   - anything else uses OpenAI chat completions
func NewModel(ctx context.Context, name, apiKey string) (Model, error) {
	if name == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required for model %s", name)
	}

	switch lower := strings.ToLower(name); {
	case strings.HasPrefix(lower, "claude-"):
		return newClaudeModel(name, apiKey), nil
	case strings.HasPrefix(lower, "gemini-"):
		return newGeminiModel(ctx, name, apiKey)
	default:
		return newOpenAIModel(name, apiKey), nil
	}
}
