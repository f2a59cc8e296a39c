/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fixprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"chainguard.dev/selfheal/agents/executor/retry"
	"github.com/anthropics/anthropic-sdk-go"
	anthropicoption "github.com/anthropics/anthropic-sdk-go/option"
)

type claudeModel struct {
	client anthropic.Client
	name   string
}

func newClaudeModel(name, apiKey string, opts ...anthropicoption.RequestOption) *claudeModel {
	opts = append([]anthropicoption.RequestOption{
		anthropicoption.WithAPIKey(apiKey),
		anthropicoption.WithMaxRetries(0),
	}, opts...)
	return &claudeModel{
		client: anthropic.NewClient(opts...),
		name:   name,
	}
}

func (m *claudeModel) Name() string { return m.name }

func (m *claudeModel) Complete(ctx context.Context, req Request) (*Completion, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(m.name),
		MaxTokens: req.MaxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.User)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	msg, err := m.client.Messages.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("claude messages: %w", err)
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &Completion{
		Text:             text.String(),
		PromptTokens:     msg.Usage.InputTokens,
		CompletionTokens: msg.Usage.OutputTokens,
	}, nil
}

// Classify treats 429 and 529 (overloaded) as rate limits.
func (m *claudeModel) Classify(err error) retry.Class {
	var apiErr *anthropic.Error
	if !errors.As(err, &apiErr) {
		return retry.Transient
	}
	return classifyStatus(apiErr.StatusCode)
}
