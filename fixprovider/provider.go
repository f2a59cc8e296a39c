/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package fixprovider asks a language model for a corrected version of a
// failing file and validates what comes back.
package fixprovider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"chainguard.dev/selfheal/agents/agenttrace"
	"chainguard.dev/selfheal/agents/executor/retry"
	"chainguard.dev/selfheal/agents/metrics"
	"chainguard.dev/selfheal/agents/result"
	"chainguard.dev/selfheal/agents/schema"
	"chainguard.dev/selfheal/logparser"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel/attribute"
)

var (
	// ErrFixUnavailable is returned by GetFix once every attempt has failed.
	ErrFixUnavailable = errors.New("fix unavailable")

	// ErrInvalidFixContent marks a model response that is empty, shorter than
	// two lines, or identical to the original file.
	ErrInvalidFixContent = errors.New("invalid fix content")
)

const (
	temperature = 0.1
	maxTokens   = 4096

	// analyzeTailBytes bounds how much of the log is sent to AnalyzeError.
	analyzeTailBytes = 8000
)

// FixResult is a validated replacement for the failing file.
type FixResult struct {
	Content  string
	Valid    bool
	Attempts int
}

// Provider requests fixes and failure analyses from a Model.
type Provider struct {
	model   Model
	retry   retry.RetryConfig
	timeout time.Duration
	metrics *metrics.GenAI
}

// Option configures a Provider.
type Option func(*Provider)

// WithRetryConfig overrides the attempt count and backoff schedule.
func WithRetryConfig(cfg retry.RetryConfig) Option {
	return func(p *Provider) { p.retry = cfg }
}

// WithModelTimeout bounds each individual model request.
func WithModelTimeout(d time.Duration) Option {
	return func(p *Provider) { p.timeout = d }
}

// WithMetrics records token usage and attempt outcomes.
func WithMetrics(m *metrics.GenAI) Option {
	return func(p *Provider) { p.metrics = m }
}

// New returns a Provider backed by model.
func New(model Model, opts ...Option) *Provider {
	p := &Provider{
		model:   model,
		retry:   retry.DefaultRetryConfig(),
		timeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// GetFix asks the model for a corrected version of fileContent. Each attempt's
// response is stripped of code fences and validated; invalid content counts as
// a failed attempt. After the last attempt the error wraps ErrFixUnavailable.
func (p *Provider) GetFix(ctx context.Context, fileContent string, d logparser.FailureDescriptor) (*FixResult, error) {
	log := clog.FromContext(ctx).With("model", p.model.Name()).With("file", d.FilePath)

	system, err := fixSystemPrompt.Build()
	if err != nil {
		return nil, fmt.Errorf("building system prompt: %w", err)
	}
	bound, err := fixRequest{content: fileContent, descriptor: d}.Bind(fixUserPrompt)
	if err != nil {
		return nil, fmt.Errorf("binding fix prompt: %w", err)
	}
	user, err := bound.Build()
	if err != nil {
		return nil, fmt.Errorf("building fix prompt: %w", err)
	}
	req := Request{System: system, User: user, Temperature: temperature, MaxTokens: maxTokens}

	attempts := 0
	content, err := retry.Do(ctx, p.retry, "get_fix", p.classify, func(attempt int) (string, error) {
		attempts = attempt + 1
		completion, err := p.complete(ctx, "get_fix", attempts, req)
		if err != nil {
			p.recordAttempt(ctx, metrics.OutcomeError, attempts)
			return "", err
		}
		fixed, err := validateFix(fileContent, completion.Text)
		if err != nil {
			p.recordAttempt(ctx, metrics.OutcomeInvalid, attempts)
			return "", err
		}
		p.recordAttempt(ctx, metrics.OutcomeAccepted, attempts)
		return fixed, nil
	})
	if err != nil {
		log.With("attempts", attempts).With("error", err.Error()).Error("Could not acquire a fix")
		return nil, fmt.Errorf("%w: %w", ErrFixUnavailable, err)
	}

	log.With("attempts", attempts).Info("Acquired fix")
	return &FixResult{Content: content, Valid: true, Attempts: attempts}, nil
}

// analysis is the object AnalyzeError asks the model to return.
type analysis struct {
	FilePath     string `json:"file_path" jsonschema:"required,description=Repository-relative path of the file that must change"`
	ErrorMessage string `json:"error_message" jsonschema:"required,description=The error message that caused the failure"`
	LineNumber   int    `json:"line_number,omitempty" jsonschema:"description=Line number of the failure or 0 when unknown"`
	ErrorType    string `json:"error_type,omitempty" jsonschema:"enum=assertion,enum=syntax,enum=import,enum=runtime,enum=unknown"`
	Explanation  string `json:"explanation,omitempty" jsonschema:"description=One or two sentences on the likely cause"`
}

// AnalyzeError asks the model to locate the failure in a log the parser could
// not understand. Any failure yields nil.
func (p *Provider) AnalyzeError(ctx context.Context, logText string) *logparser.FailureDescriptor {
	log := clog.FromContext(ctx).With("model", p.model.Name())

	shape, err := schema.JSON[analysis]()
	if err != nil {
		log.With("error", err.Error()).Warn("Could not render analysis schema")
		return nil
	}
	system, err := analyzeSystemPrompt.Build()
	if err != nil {
		log.With("error", err.Error()).Warn("Could not build analysis prompt")
		return nil
	}
	bound, err := bindAll(analyzeUserPrompt, map[string]string{"schema": shape, "log": tail(logText, analyzeTailBytes)})
	if err != nil {
		log.With("error", err.Error()).Warn("Could not build analysis prompt")
		return nil
	}
	user, err := bound.Build()
	if err != nil {
		log.With("error", err.Error()).Warn("Could not build analysis prompt")
		return nil
	}

	completion, err := p.complete(ctx, "analyze_error", 1, Request{System: system, User: user, Temperature: temperature, MaxTokens: maxTokens})
	if err != nil {
		log.With("error", err.Error()).Warn("Log analysis request failed")
		return nil
	}

	a, err := result.Extract[analysis](completion.Text)
	if err != nil {
		log.With("error", err.Error()).Warn("Log analysis response was not valid JSON")
		return nil
	}
	d := logparser.FailureDescriptor{
		FilePath:     strings.TrimPrefix(strings.TrimSpace(a.FilePath), "./"),
		LineNumber:   max(a.LineNumber, 0),
		ErrorMessage: strings.TrimSpace(a.ErrorMessage),
		ErrorType:    logparser.ParseErrorType(strings.ToLower(strings.TrimSpace(a.ErrorType))),
		Framework:    logparser.FrameworkGeneric,
		Explanation:  strings.TrimSpace(a.Explanation),
	}
	if err := d.Validate(); err != nil {
		log.With("error", err.Error()).Warn("Log analysis response was incomplete")
		return nil
	}
	return &d
}

// complete sends one request, bounded by the model timeout, and records it as
// an agenttrace exchange.
func (p *Provider) complete(ctx context.Context, operation string, attempt int, req Request) (*Completion, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	ctx, ex := agenttrace.Start(ctx, operation, p.model.Name(), attempt, req.System, req.User)
	c, err := p.model.Complete(ctx, req)
	if err != nil {
		ex.Complete("", err)
		return nil, err
	}
	ex.RecordTokenUsage(c.PromptTokens, c.CompletionTokens)
	ex.Complete(c.Text, nil)
	if p.metrics != nil {
		p.metrics.RecordTokens(ctx, p.model.Name(), c.PromptTokens, c.CompletionTokens)
	}
	return c, nil
}

func (p *Provider) classify(err error) retry.Class {
	if errors.Is(err, ErrInvalidFixContent) {
		return retry.Transient
	}
	return p.model.Classify(err)
}

func (p *Provider) recordAttempt(ctx context.Context, outcome string, attempt int) {
	if p.metrics != nil {
		p.metrics.RecordAttempt(ctx, p.model.Name(), outcome, attribute.Int("attempt", attempt))
	}
}

// validateFix strips code fences from a model response and checks that the
// result is a plausible replacement for original. The returned content uses
// the original file's line endings and trailing-newline convention.
func validateFix(original, response string) (string, error) {
	fixed := normalizeNewlines(result.ExtractCode(response))
	fixed = strings.TrimRight(fixed, "\n")
	if strings.TrimSpace(fixed) == "" {
		return "", fmt.Errorf("%w: empty response", ErrInvalidFixContent)
	}
	if strings.HasPrefix(strings.TrimSpace(fixed), "```") {
		return "", fmt.Errorf("%w: unterminated code fence", ErrInvalidFixContent)
	}
	if !strings.Contains(fixed, "\n") {
		return "", fmt.Errorf("%w: fewer than two lines", ErrInvalidFixContent)
	}
	if fixed == strings.TrimRight(normalizeNewlines(original), "\n") {
		return "", fmt.Errorf("%w: identical to the original file", ErrInvalidFixContent)
	}
	if strings.HasSuffix(original, "\n") {
		fixed += "\n"
	}
	if strings.Contains(original, "\r\n") {
		fixed = strings.ReplaceAll(fixed, "\n", "\r\n")
	}
	return fixed, nil
}

func normalizeNewlines(s string) string {
	return strings.ReplaceAll(s, "\r\n", "\n")
}

// tail returns at most n bytes from the end of s without splitting a rune.
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
