/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package healer runs a healing session: it reads a CI log, locates the
// failing file, acquires a fix from a model and lands it as a pull request.
package healer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"chainguard.dev/selfheal/agents/metrics"
	"chainguard.dev/selfheal/config"
	"chainguard.dev/selfheal/fixprovider"
	"chainguard.dev/selfheal/gateway"
	"chainguard.dev/selfheal/logparser"
	"github.com/chainguard-dev/clog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("chainguard.dev/selfheal/healer")

// FixProvider acquires fixes and analyzes logs the parser cannot read.
type FixProvider interface {
	GetFix(ctx context.Context, fileContent string, d logparser.FailureDescriptor) (*fixprovider.FixResult, error)
	AnalyzeError(ctx context.Context, logText string) *logparser.FailureDescriptor
}

// Gateway mutates the repository and its hosting provider.
type Gateway interface {
	Snapshot(ctx context.Context) (gateway.RepoSnapshot, error)
	CreateBranch(ctx context.Context, name string) error
	WriteFile(ctx context.Context, path, content string) error
	CommitChanges(ctx context.Context, path, message string) (bool, error)
	PushChanges(ctx context.Context, branch string) error
	CreatePR(ctx context.Context, branch, title, body string) (string, error)
	CleanupBranch(ctx context.Context, branch string)
}

var (
	_ FixProvider = (*fixprovider.Provider)(nil)
	_ Gateway     = (*gateway.Gateway)(nil)
)

// Healer orchestrates a single Session.
type Healer struct {
	cfg     *config.Config
	fixer   FixProvider
	repo    Gateway
	root    string
	files   fs.FS
	metrics *Metrics
	now     func() time.Time
	session *Session
}

// Option configures a Healer.
type Option func(*Healer)

// WithRepoFS reads failing files from fsys, whose root is the absolute
// directory root. Defaults to the configured REPO_PATH.
func WithRepoFS(root string, fsys fs.FS) Option {
	return func(h *Healer) {
		h.root = root
		h.files = fsys
	}
}

// WithMetrics records session outcomes.
func WithMetrics(m *Metrics) Option {
	return func(h *Healer) { h.metrics = m }
}

// WithSessionID fixes the session id instead of generating one.
func WithSessionID(id string) Option {
	return func(h *Healer) { h.session = newSession(id, h.cfg.BranchPrefix) }
}

// New creates a Healer and its session. The session id and branch name are
// fixed from this point on.
func New(cfg *config.Config, fixer FixProvider, repo Gateway, opts ...Option) *Healer {
	root, err := filepath.Abs(cfg.RepoPath)
	if err != nil {
		root = cfg.RepoPath
	}
	h := &Healer{
		cfg:     cfg,
		fixer:   fixer,
		repo:    repo,
		root:    root,
		files:   os.DirFS(root),
		now:     time.Now,
		session: newSession(newSessionID(), cfg.BranchPrefix),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Session returns the session owned by h.
func (h *Healer) Session() *Session { return h.session }

// Heal runs every stage against the log at logPath and always returns a
// Summary. Stage failures and panics never escape; when an unexpected error
// occurs after the branch was created, the branch is cleaned up.
func (h *Healer) Heal(ctx context.Context, logPath string) (summary Summary) {
	s := h.session
	start := h.now()
	if s.StartedAt.IsZero() {
		s.StartedAt = start
	}

	ctx = metrics.WithSession(ctx, s.ID)
	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("session", s.ID))
	ctx, cancel := context.WithTimeout(ctx, h.cfg.HealingTimeout())
	defer cancel()
	ctx, span := tracer.Start(ctx, "healer.heal", trace.WithAttributes(
		attribute.String("session", s.ID),
		attribute.String("branch", s.BranchName),
	))
	defer span.End()

	clog.FromContext(ctx).With("log", logPath).With("branch", s.BranchName).Info("Starting healing session")

	var err error
	defer func() {
		if r := recover(); r != nil {
			err = &StageError{Stage: s.Stage, Err: fmt.Errorf("panic: %v", r)}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			h.fail(ctx, err)
		}
		summary = h.summarize(err, h.now().Sub(start))
		summary.Log(ctx)
		if h.metrics != nil {
			h.metrics.observe(summary)
		}
	}()

	err = h.run(ctx, logPath)
	return summary
}

func (h *Healer) run(ctx context.Context, logPath string) error {
	s := h.session
	if s.Status != StatusStarted {
		return &StageError{Stage: StageReadLog, Err: errSessionUsed}
	}
	if snap, err := h.repo.Snapshot(ctx); err == nil {
		clog.FromContext(ctx).With("current_branch", snap.CurrentBranch).
			With("clean", snap.IsClean).
			With("head", snap.Head).
			Info("Repository state")
	}

	logText, err := runStage(ctx, s, StageReadLog, func(context.Context) (string, error) {
		return readNonEmpty(logPath, os.ReadFile)
	})
	if err != nil {
		return err
	}

	d, err := runStage(ctx, s, StageParse, func(ctx context.Context) (logparser.FailureDescriptor, error) {
		return h.parse(ctx, logText)
	})
	if err != nil {
		return err
	}
	s.Descriptor = &d

	target, err := runStage(ctx, s, StageReadFile, func(context.Context) (string, error) {
		return h.resolve(d.FilePath)
	})
	if err != nil {
		return err
	}
	content, err := runStage(ctx, s, StageReadFile, func(context.Context) (string, error) {
		return readNonEmpty(target, func(name string) ([]byte, error) { return fs.ReadFile(h.files, name) })
	})
	if err != nil {
		return err
	}

	fix, err := runStage(ctx, s, StageGetFix, func(ctx context.Context) (*fixprovider.FixResult, error) {
		return h.fixer.GetFix(ctx, content, d)
	})
	if err != nil {
		return err
	}
	s.Status = StatusFixAcquired

	if _, err := runStage(ctx, s, StageCreateBranch, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.repo.CreateBranch(ctx, s.BranchName)
	}); err != nil {
		return err
	}
	s.BranchCreated = true
	s.Status = StatusBranchCreated

	if _, err := runStage(ctx, s, StageWriteFile, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.repo.WriteFile(ctx, target, fix.Content)
	}); err != nil {
		return err
	}

	if _, err := runStage(ctx, s, StageCommit, func(ctx context.Context) (struct{}, error) {
		committed, err := h.repo.CommitChanges(ctx, target, commitMessage(d))
		if err == nil && !committed {
			err = ErrNoChanges
		}
		return struct{}{}, err
	}); err != nil {
		return err
	}
	s.Status = StatusCommitted

	if _, err := runStage(ctx, s, StagePush, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, h.repo.PushChanges(ctx, s.BranchName)
	}); err != nil {
		return err
	}
	s.Status = StatusPushed

	url, err := runStage(ctx, s, StageCreatePR, func(ctx context.Context) (string, error) {
		body, err := renderPRBody(prBodyData{
			FailureDescriptor: d,
			Flaky:             logparser.IsFlaky(logText),
			Tests:             logparser.ExtractTestSummary(logText),
			SessionID:         s.ID,
			Version:           Version,
			Model:             h.cfg.Model,
		})
		if err != nil {
			return "", err
		}
		url, err := h.repo.CreatePR(ctx, s.BranchName, prTitle(d), body)
		if err == nil && url == "" {
			err = &gateway.PRCreationError{Err: errors.New("no pull request URL returned")}
		}
		return url, err
	})
	if err != nil {
		return err
	}
	s.PRURL = url
	s.Status = StatusPRCreated
	return nil
}

// runStage checks for cancellation, then runs fn inside a span. Failures are
// wrapped in a *StageError naming st.
func runStage[T any](ctx context.Context, s *Session, st Stage, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, &StageError{Stage: st, Err: err}
	}
	s.Stage = st

	ctx, span := tracer.Start(ctx, "healer."+string(st))
	defer span.End()

	v, err := fn(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return zero, &StageError{Stage: st, Err: err}
	}
	return v, nil
}

// parse runs the log parser and falls back to model analysis when it finds
// nothing usable.
func (h *Healer) parse(ctx context.Context, logText string) (logparser.FailureDescriptor, error) {
	log := clog.FromContext(ctx)

	d, err := logparser.ParseFailure(logText)
	if err == nil {
		err = d.Validate()
	}
	if err != nil {
		log.With("error", err.Error()).Info("Falling back to model log analysis")
		analyzed := h.fixer.AnalyzeError(ctx, logText)
		if analyzed == nil {
			return logparser.FailureDescriptor{}, logparser.ErrNoFailureFound
		}
		d = *analyzed
		if err := d.Validate(); err != nil {
			return logparser.FailureDescriptor{}, err
		}
	}

	log.With("file", d.FilePath).
		With("line", d.LineNumber).
		With("error_type", string(d.ErrorType)).
		With("framework", string(d.Framework)).
		Info("Located failure")
	return d, nil
}

// resolve maps a descriptor path, which may be absolute when the log came
// from a CI runner, onto a slash-separated path relative to the repository.
func (h *Healer) resolve(p string) (string, error) {
	rel := filepath.FromSlash(p)
	if filepath.IsAbs(rel) {
		r, err := filepath.Rel(h.root, rel)
		if err != nil {
			return "", &FileReadError{Path: p, Err: err}
		}
		rel = r
	}
	rel = filepath.ToSlash(filepath.Clean(rel))
	if !fs.ValidPath(rel) || rel == "." {
		return "", &FileReadError{Path: p, Err: errors.New("path is outside the repository")}
	}
	return rel, nil
}

func readNonEmpty(name string, read func(string) ([]byte, error)) (string, error) {
	b, err := read(name)
	if err != nil {
		return "", &FileReadError{Path: name, Err: err}
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", &FileReadError{Path: name, Err: errEmptyFile}
	}
	return string(b), nil
}

// fail marks the session failed and, for unexpected errors after a branch was
// created, cleans that branch up.
func (h *Healer) fail(ctx context.Context, err error) {
	s := h.session
	if errors.Is(err, errSessionUsed) {
		return
	}
	s.Status = StatusFailed
	if !s.BranchCreated || expected(err) {
		return
	}
	clog.FromContext(ctx).With("branch", s.BranchName).With("error", err.Error()).Warn("Unexpected failure, cleaning up branch")
	// The run context may already be done; cleanup only touches the local
	// working copy.
	h.repo.CleanupBranch(context.WithoutCancel(ctx), s.BranchName)
	s.Status = StatusCleanedUp
}
