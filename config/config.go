/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package config loads and validates the healer's environment configuration.
// A Config is built once at startup and passed by pointer; nothing mutates it
// afterwards.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

// Config is the process configuration.
type Config struct {
	// APIKey authenticates against whichever model backend Model selects.
	APIKey string `env:"OPENAI_API_KEY"`
	Model  string `env:"OPENAI_MODEL,default=gpt-4"`

	GitHubToken string `env:"GITHUB_TOKEN"`
	// Repository is the owner/repo slug.
	Repository string `env:"GITHUB_REPOSITORY"`
	BaseBranch string `env:"GITHUB_BASE_BRANCH,default=main"`

	MaxRetryAttempts      int    `env:"MAX_RETRY_ATTEMPTS,default=3"`
	HealingTimeoutSeconds int    `env:"HEALING_TIMEOUT,default=300"`
	BranchPrefix          string `env:"BRANCH_PREFIX,default=fix/ai-heal"`

	LogLevel string `env:"LOG_LEVEL,default=INFO"`
	LogFile  string `env:"LOG_FILE,default=healer.log"`

	RepoPath            string `env:"REPO_PATH,default=."`
	GitTimeoutSeconds   int    `env:"GIT_TIMEOUT,default=30"`
	ModelTimeoutSeconds int    `env:"MODEL_TIMEOUT,default=60"`
	CommitAuthor        string `env:"COMMIT_AUTHOR,default=ai-healer"`
	PRLabels            string `env:"PR_LABELS"`
	MetricsTextfile     string `env:"METRICS_TEXTFILE"`
	// TracesFile receives finished spans as JSON lines. Empty disables tracing.
	TracesFile string `env:"TRACES_FILE"`
}

// Load reads the configuration through lookuper (the process environment
// when nil) and validates it.
func Load(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	if lookuper == nil {
		lookuper = envconfig.OsLookuper()
	}

	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:   &cfg,
		Lookuper: lookuper,
	}); err != nil {
		return nil, &InvalidError{Var: "environment", Reason: err.Error()}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate returns a *MissingError naming every absent required variable, or
// an *InvalidError for the first malformed value.
func (c *Config) Validate() error {
	var missing []string
	for _, v := range []struct{ name, value string }{
		{"OPENAI_API_KEY", c.APIKey},
		{"GITHUB_TOKEN", c.GitHubToken},
		{"GITHUB_REPOSITORY", c.Repository},
	} {
		if strings.TrimSpace(v.value) == "" {
			missing = append(missing, v.name)
		}
	}
	if len(missing) > 0 {
		return &MissingError{Vars: missing}
	}

	if _, _, ok := splitRepository(c.Repository); !ok {
		return &InvalidError{Var: "GITHUB_REPOSITORY", Value: c.Repository, Reason: "expected owner/repo"}
	}
	if strings.TrimSpace(c.Model) == "" {
		return &InvalidError{Var: "OPENAI_MODEL", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(c.BaseBranch) == "" {
		return &InvalidError{Var: "GITHUB_BASE_BRANCH", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(c.BranchPrefix) == "" {
		return &InvalidError{Var: "BRANCH_PREFIX", Reason: "cannot be empty"}
	}
	if strings.TrimSpace(c.CommitAuthor) == "" {
		return &InvalidError{Var: "COMMIT_AUTHOR", Reason: "cannot be empty"}
	}
	if c.MaxRetryAttempts < 1 {
		return &InvalidError{Var: "MAX_RETRY_ATTEMPTS", Value: fmt.Sprint(c.MaxRetryAttempts), Reason: "must be at least 1"}
	}
	for _, v := range []struct {
		name  string
		value int
	}{
		{"HEALING_TIMEOUT", c.HealingTimeoutSeconds},
		{"GIT_TIMEOUT", c.GitTimeoutSeconds},
		{"MODEL_TIMEOUT", c.ModelTimeoutSeconds},
	} {
		if v.value <= 0 {
			return &InvalidError{Var: v.name, Value: fmt.Sprint(v.value), Reason: "must be a positive number of seconds"}
		}
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return &InvalidError{Var: "LOG_LEVEL", Value: c.LogLevel, Reason: err.Error()}
	}
	return nil
}

// Owner returns the repository owner from the owner/repo slug.
func (c *Config) Owner() string {
	owner, _, _ := splitRepository(c.Repository)
	return owner
}

// Repo returns the repository name from the owner/repo slug.
func (c *Config) Repo() string {
	_, repo, _ := splitRepository(c.Repository)
	return repo
}

func (c *Config) HealingTimeout() time.Duration {
	return time.Duration(c.HealingTimeoutSeconds) * time.Second
}

func (c *Config) GitTimeout() time.Duration {
	return time.Duration(c.GitTimeoutSeconds) * time.Second
}

func (c *Config) ModelTimeout() time.Duration {
	return time.Duration(c.ModelTimeoutSeconds) * time.Second
}

// Labels returns the non-empty, trimmed entries of PR_LABELS.
func (c *Config) Labels() []string {
	var labels []string
	for _, l := range strings.Split(c.PRLabels, ",") {
		if l = strings.TrimSpace(l); l != "" {
			labels = append(labels, l)
		}
	}
	return labels
}

// Level returns LOG_LEVEL as a slog.Level. Invalid values were rejected by
// Validate; Level falls back to info for an unvalidated Config.
func (c *Config) Level() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "WARNING":
		return slog.LevelWarn, nil
	case "CRITICAL", "FATAL":
		return slog.LevelError, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, errors.New("unknown level (want DEBUG, INFO, WARN or ERROR)")
	}
	return l, nil
}

func splitRepository(slug string) (owner, repo string, ok bool) {
	owner, repo, found := strings.Cut(strings.TrimSpace(slug), "/")
	if !found || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}
