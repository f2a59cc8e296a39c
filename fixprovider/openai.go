/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fixprovider

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/selfheal/agents/executor/retry"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type openAIModel struct {
	client openai.Client
	name   string
}

func newOpenAIModel(name, apiKey string, opts ...option.RequestOption) *openAIModel {
	opts = append([]option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}, opts...)
	return &openAIModel{
		client: openai.NewClient(opts...),
		name:   name,
	}
}

func (m *openAIModel) Name() string { return m.name }

func (m *openAIModel) Complete(ctx context.Context, req Request) (*Completion, error) {
	resp, err := m.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(m.name),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature:         openai.Float(req.Temperature),
		MaxCompletionTokens: openai.Int(req.MaxTokens),
	})
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("openai chat completion returned no choices")
	}
	return &Completion{
		Text:             resp.Choices[0].Message.Content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

func (m *openAIModel) Classify(err error) retry.Class {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return retry.Transient
	}
	return classifyStatus(apiErr.StatusCode)
}

// classifyStatus maps an HTTP status from a provider API onto a retry class.
func classifyStatus(code int) retry.Class {
	switch {
	case code == 429 || code == 529:
		return retry.RateLimited
	case code == 408 || code >= 500:
		return retry.Transient
	default:
		return retry.Permanent
	}
}
