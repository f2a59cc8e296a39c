/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"
)

func required() map[string]string {
	return map[string]string{
		"OPENAI_API_KEY":    "sk-test",
		"GITHUB_TOKEN":      "ghp_test",
		"GITHUB_REPOSITORY": "acme/widgets",
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), envconfig.MapLookuper(required()))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := &Config{
		APIKey:                "sk-test",
		Model:                 "gpt-4",
		GitHubToken:           "ghp_test",
		Repository:            "acme/widgets",
		BaseBranch:            "main",
		MaxRetryAttempts:      3,
		HealingTimeoutSeconds: 300,
		BranchPrefix:          "fix/ai-heal",
		LogLevel:              "INFO",
		LogFile:               "healer.log",
		RepoPath:              ".",
		GitTimeoutSeconds:     30,
		ModelTimeoutSeconds:   60,
		CommitAuthor:          "ai-healer",
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}

	if cfg.Owner() != "acme" || cfg.Repo() != "widgets" {
		t.Errorf("Owner()/Repo() = %q/%q, wanted acme/widgets", cfg.Owner(), cfg.Repo())
	}
	if cfg.HealingTimeout() != 300*time.Second {
		t.Errorf("HealingTimeout() = %v", cfg.HealingTimeout())
	}
	if cfg.GitTimeout() != 30*time.Second || cfg.ModelTimeout() != time.Minute {
		t.Errorf("GitTimeout()/ModelTimeout() = %v/%v", cfg.GitTimeout(), cfg.ModelTimeout())
	}
	if cfg.Level() != slog.LevelInfo {
		t.Errorf("Level() = %v, wanted INFO", cfg.Level())
	}
	if cfg.Labels() != nil {
		t.Errorf("Labels() = %v, wanted none", cfg.Labels())
	}
}

func TestLoadOverrides(t *testing.T) {
	env := required()
	env["OPENAI_MODEL"] = "claude-sonnet-4-5"
	env["GITHUB_BASE_BRANCH"] = "develop"
	env["MAX_RETRY_ATTEMPTS"] = "5"
	env["LOG_LEVEL"] = "debug"
	env["PR_LABELS"] = " ai-fix, ,automated "

	cfg, err := Load(context.Background(), envconfig.MapLookuper(env))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Model != "claude-sonnet-4-5" || cfg.BaseBranch != "develop" || cfg.MaxRetryAttempts != 5 {
		t.Errorf("Load() = %+v", cfg)
	}
	if cfg.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, wanted DEBUG", cfg.Level())
	}
	if diff := cmp.Diff([]string{"ai-fix", "automated"}, cfg.Labels()); diff != "" {
		t.Errorf("Labels() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(context.Background(), envconfig.MapLookuper(map[string]string{
		"GITHUB_REPOSITORY": "acme/widgets",
	}))

	var missing *MissingError
	if !errors.As(err, &missing) {
		t.Fatalf("Load() error = %v, wanted *MissingError", err)
	}
	if diff := cmp.Diff([]string{"OPENAI_API_KEY", "GITHUB_TOKEN"}, missing.Vars); diff != "" {
		t.Errorf("missing vars mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantVar string
	}{
		{"slug without slash", "GITHUB_REPOSITORY", "widgets", "GITHUB_REPOSITORY"},
		{"slug with extra path", "GITHUB_REPOSITORY", "acme/widgets/extra", "GITHUB_REPOSITORY"},
		{"zero retries", "MAX_RETRY_ATTEMPTS", "0", "MAX_RETRY_ATTEMPTS"},
		{"negative timeout", "HEALING_TIMEOUT", "-1", "HEALING_TIMEOUT"},
		{"zero git timeout", "GIT_TIMEOUT", "0", "GIT_TIMEOUT"},
		{"unknown level", "LOG_LEVEL", "LOUD", "LOG_LEVEL"},
		{"not a number", "MAX_RETRY_ATTEMPTS", "three", "environment"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := required()
			env[tt.key] = tt.value

			_, err := Load(context.Background(), envconfig.MapLookuper(env))
			var invalid *InvalidError
			if !errors.As(err, &invalid) {
				t.Fatalf("Load() error = %v, wanted *InvalidError", err)
			}
			if invalid.Var != tt.wantVar {
				t.Errorf("InvalidError.Var = %q, wanted %q", invalid.Var, tt.wantVar)
			}
		})
	}
}

func TestLevelAliases(t *testing.T) {
	for in, want := range map[string]slog.Level{
		"WARNING":  slog.LevelWarn,
		"warn":     slog.LevelWarn,
		"ERROR":    slog.LevelError,
		"CRITICAL": slog.LevelError,
	} {
		cfg := &Config{LogLevel: in}
		if got := cfg.Level(); got != want {
			t.Errorf("Level(%q) = %v, wanted %v", in, got, want)
		}
	}
}
