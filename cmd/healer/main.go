/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command healer reads a failed CI log, asks a model for a fix to the failing
// file and proposes it as a pull request.
//
// Usage:
//
//	healer <log-file>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"chainguard.dev/selfheal/agents/executor/retry"
	"chainguard.dev/selfheal/agents/metrics"
	"chainguard.dev/selfheal/config"
	"chainguard.dev/selfheal/fixprovider"
	"chainguard.dev/selfheal/gateway"
	"chainguard.dev/selfheal/healer"
	"chainguard.dev/selfheal/telemetry"
	"github.com/chainguard-dev/clog"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

var errHealingFailed = errors.New("healing failed")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errHealingFailed) {
			fmt.Fprintf(os.Stderr, "healer: %v\n", err)
		}
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "healer <log-file>",
		Short:         "Propose a pull request fixing the test failure in a CI log",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func run(ctx context.Context, stdout io.Writer, logPath string) error {
	cfg, err := config.Load(ctx, nil)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, closeLog, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer closeLog()
	ctx = clog.WithLogger(ctx, logger)

	sessionMetrics := healer.NewMetrics()
	shutdown, err := telemetry.Setup(ctx, telemetry.Config{
		ServiceName:    "selfheal",
		ServiceVersion: healer.Version,
		Registerer:     sessionMetrics.Registerer(),
		TracesFile:     cfg.TracesFile,
	})
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			clog.WarnContextf(ctx, "shutting down telemetry: %v", err)
		}
	}()

	model, err := fixprovider.NewModel(ctx, cfg.Model, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("creating model: %w", err)
	}
	genai := metrics.NewGenAI("chainguard.dev/selfheal")
	genai.SetAttributeEnricher(metrics.SessionEnricher)

	rc := retry.DefaultRetryConfig()
	rc.MaxAttempts = cfg.MaxRetryAttempts
	fixer := fixprovider.New(model,
		fixprovider.WithRetryConfig(rc),
		fixprovider.WithModelTimeout(cfg.ModelTimeout()),
		fixprovider.WithMetrics(genai),
	)

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.GitHubToken})
	gw, err := gateway.New(ctx, cfg.RepoPath, cfg.Owner(), cfg.Repo(), ts,
		gateway.WithBaseBranch(cfg.BaseBranch),
		gateway.WithIdentity(cfg.CommitAuthor),
		gateway.WithTimeout(cfg.GitTimeout()),
		gateway.WithLabels(cfg.Labels()...),
	)
	if err != nil {
		return fmt.Errorf("opening repository: %w", err)
	}

	h := healer.New(cfg, fixer, gw,
		healer.WithRepoFS(gw.Root(), os.DirFS(gw.Root())),
		healer.WithMetrics(sessionMetrics),
	)
	summary := h.Heal(ctx, logPath)

	if err := printSummary(stdout, summary); err != nil {
		clog.WarnContextf(ctx, "printing summary: %v", err)
	}
	if cfg.MetricsTextfile != "" {
		if err := sessionMetrics.WriteTextfile(cfg.MetricsTextfile); err != nil {
			clog.WarnContextf(ctx, "writing metrics textfile: %v", err)
		}
	}

	if !summary.Success {
		fmt.Fprintf(stdout, "Healing failed at %s: %s\n", summary.FailedStage, summary.Error)
		return errHealingFailed
	}
	fmt.Fprintf(stdout, "Pull request created: %s\n", summary.PRURL)
	return nil
}

// newLogger writes text records to stderr and, unless LOG_FILE is empty, to
// that file as well.
func newLogger(cfg *config.Config) (*clog.Logger, func(), error) {
	var (
		w       io.Writer = os.Stderr
		closeFn           = func() {}
	)
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeFn = func() { _ = f.Close() }
	}
	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: cfg.Level()})
	return clog.New(h), closeFn, nil
}
