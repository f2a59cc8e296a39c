/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fixprovider

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"chainguard.dev/selfheal/agents/executor/retry"
	"google.golang.org/genai"
)

type geminiModel struct {
	client *genai.Client
	name   string
}

func newGeminiModel(ctx context.Context, name, apiKey string) (*geminiModel, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &geminiModel{client: client, name: name}, nil
}

func (m *geminiModel) Name() string { return m.name }

func (m *geminiModel) Complete(ctx context.Context, req Request) (*Completion, error) {
	temperature := float32(req.Temperature)
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(req.MaxTokens),
	}
	if req.System != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.System}},
		}
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.name, genai.Text(req.User), config)
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, errors.New("gemini returned no candidates")
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && !part.Thought {
			text.WriteString(part.Text)
		}
	}
	c := &Completion{Text: text.String()}
	if resp.UsageMetadata != nil {
		c.PromptTokens = int64(resp.UsageMetadata.PromptTokenCount)
		c.CompletionTokens = int64(resp.UsageMetadata.CandidatesTokenCount)
	}
	return c, nil
}

// statusCode matches the HTTP status the SDK prints for transport errors
// that do not surface as a genai.APIError, such as "Error 429, Message: ...".
var statusCode = regexp.MustCompile(`\b(?:Error|status|code)[ :=]+(\d{3})\b`)

// Classify prefers the typed status code on genai.APIError and falls back to
// the status code or gRPC status name printed in the error text.
func (m *geminiModel) Classify(err error) retry.Class {
	if err == nil {
		return retry.Transient
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) && apiErr.Code != 0 {
		return classifyStatus(apiErr.Code)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil && apiErrPtr.Code != 0 {
		return classifyStatus(apiErrPtr.Code)
	}

	msg := err.Error()
	if match := statusCode.FindStringSubmatch(msg); match != nil {
		if code, convErr := strconv.Atoi(match[1]); convErr == nil && code >= 400 {
			return classifyStatus(code)
		}
	}
	for _, s := range []string{"RESOURCE_EXHAUSTED", "Resource exhausted", "rate limit", "quota exceeded", "Overloaded"} {
		if strings.Contains(msg, s) {
			return retry.RateLimited
		}
	}
	for _, s := range []string{"INVALID_ARGUMENT", "PERMISSION_DENIED", "UNAUTHENTICATED", "NOT_FOUND"} {
		if strings.Contains(msg, s) {
			return retry.Permanent
		}
	}
	return retry.Transient
}
