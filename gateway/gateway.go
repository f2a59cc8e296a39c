/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gateway performs every git and GitHub mutation of a healing run
// against an existing working copy.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/google/go-github/v84/github"
	"golang.org/x/oauth2"
)

const remoteName = "origin"

// RepoSnapshot is the live state of the working copy.
type RepoSnapshot struct {
	CurrentBranch string
	IsClean       bool
	Head          string
}

// Gateway owns no copy of repository state; every call reads the working
// copy directly.
type Gateway struct {
	repo        *git.Repository
	root        string
	owner, name string
	baseBranch  string
	identity    string
	tokenSource oauth2.TokenSource
	remoteURL   string
	timeout     time.Duration
	labels      []string
	client      *github.Client
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithBaseBranch sets the branch fixes are proposed against (default main).
func WithBaseBranch(branch string) Option {
	return func(g *Gateway) { g.baseBranch = branch }
}

// WithIdentity sets the commit author name. Identities without a domain are
// given an @users.noreply.github.com email.
func WithIdentity(identity string) Option {
	return func(g *Gateway) { g.identity = identity }
}

// WithTimeout bounds each network operation (pull, push, ls-remote, API).
func WithTimeout(d time.Duration) Option {
	return func(g *Gateway) { g.timeout = d }
}

// WithLabels applies labels to created pull requests.
func WithLabels(labels ...string) Option {
	return func(g *Gateway) { g.labels = labels }
}

// WithRemoteURL overrides the https://github.com/<owner>/<repo>.git remote.
func WithRemoteURL(url string) Option {
	return func(g *Gateway) { g.remoteURL = url }
}

// WithGitHubClient overrides the API client built from the token source.
func WithGitHubClient(client *github.Client) Option {
	return func(g *Gateway) { g.client = client }
}

// New opens the working copy containing repoPath. tokenSource supplies the
// credential used for pull, push and the GitHub API.
func New(ctx context.Context, repoPath, owner, name string, tokenSource oauth2.TokenSource, opts ...Option) (*Gateway, error) {
	switch {
	case owner == "":
		return nil, errors.New("owner cannot be empty")
	case name == "":
		return nil, errors.New("repository name cannot be empty")
	case tokenSource == nil:
		return nil, errors.New("token source cannot be nil")
	}

	repo, err := git.PlainOpenWithOptions(repoPath, &git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", repoPath, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return nil, fmt.Errorf("getting worktree: %w", err)
	}

	g := &Gateway{
		repo:        repo,
		root:        wt.Filesystem.Root(),
		owner:       owner,
		name:        name,
		baseBranch:  "main",
		identity:    "ai-healer",
		tokenSource: tokenSource,
		remoteURL:   fmt.Sprintf("https://github.com/%s/%s.git", owner, name),
		timeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.client == nil {
		g.client = github.NewClient(oauth2.NewClient(ctx, tokenSource))
	}
	return g, nil
}

// Root returns the absolute path of the working tree.
func (g *Gateway) Root() string { return g.root }

// Snapshot reports the current branch (empty when detached), whether the
// worktree is clean, and the HEAD commit.
func (g *Gateway) Snapshot(_ context.Context) (RepoSnapshot, error) {
	head, err := g.repo.Head()
	if err != nil {
		return RepoSnapshot{}, &GitOperationError{Step: "head", Err: err}
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		return RepoSnapshot{}, &GitOperationError{Step: "worktree", Err: err}
	}
	status, err := wt.Status()
	if err != nil {
		return RepoSnapshot{}, &GitOperationError{Step: "status", Err: err}
	}

	snap := RepoSnapshot{IsClean: status.IsClean(), Head: head.Hash().String()}
	if head.Name().IsBranch() {
		snap.CurrentBranch = head.Name().Short()
	}
	return snap, nil
}

// CreateBranch switches to the base branch, pulls it, removes any local or
// remote branch called name, then creates name at HEAD and checks it out.
// Calling it twice with the same name leaves exactly one such branch.
func (g *Gateway) CreateBranch(ctx context.Context, name string) error {
	log := clog.FromContext(ctx).With("branch", name).With("base", g.baseBranch)

	if err := g.createBranch(ctx, name); err != nil {
		log.With("error", err.Error()).Error("Failed to create branch")
		return err
	}
	log.Info("Created branch")
	return nil
}

func (g *Gateway) createBranch(ctx context.Context, name string) error {
	refName := plumbing.NewBranchReferenceName(name)
	if name == "" {
		return &GitOperationError{Step: "validate branch", Err: errors.New("branch name cannot be empty")}
	}
	if err := refName.Validate(); err != nil {
		return &GitOperationError{Step: "validate branch", Branch: name, Err: err}
	}
	if name == g.baseBranch {
		return &GitOperationError{Step: "validate branch", Branch: name, Err: errors.New("refusing to recreate the base branch")}
	}

	if err := g.requireCleanTree(); err != nil {
		return err
	}
	if err := g.checkoutBase(); err != nil {
		return err
	}
	if err := g.pullBase(ctx); err != nil {
		return err
	}
	if err := g.deleteLocalBranch(name); err != nil {
		return err
	}
	if err := g.deleteRemoteBranch(ctx, name); err != nil {
		return err
	}

	head, err := g.repo.Head()
	if err != nil {
		return &GitOperationError{Step: "head", Branch: name, Err: err}
	}
	if err := g.repo.Storer.SetReference(plumbing.NewHashReference(refName, head.Hash())); err != nil {
		return &GitOperationError{Step: "create branch", Branch: name, Err: err}
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		return &GitOperationError{Step: "worktree", Branch: name, Err: err}
	}
	if err := wt.Checkout(&git.CheckoutOptions{Branch: refName, Force: true}); err != nil {
		return &GitOperationError{Step: "checkout", Branch: name, Err: err}
	}
	return nil
}

// requireCleanTree refuses to switch branches while tracked files have
// uncommitted changes, since the forced checkout below would discard them.
// Untracked files survive a checkout and are ignored.
func (g *Gateway) requireCleanTree() error {
	wt, err := g.repo.Worktree()
	if err != nil {
		return &GitOperationError{Step: "worktree", Err: err}
	}
	status, err := wt.Status()
	if err != nil {
		return &GitOperationError{Step: "status", Err: err}
	}
	var dirty []string
	for path, st := range status {
		if st.Worktree == git.Untracked && st.Staging == git.Untracked {
			continue
		}
		if st.Worktree != git.Unmodified || st.Staging != git.Unmodified {
			dirty = append(dirty, path)
		}
	}
	if len(dirty) == 0 {
		return nil
	}
	slices.Sort(dirty)
	return &GitOperationError{Step: "check worktree", Err: fmt.Errorf("uncommitted changes to %s", strings.Join(dirty, ", "))}
}

// checkoutBase force-checks out the base branch, creating it from the
// remote-tracking ref when there is no local copy.
func (g *Gateway) checkoutBase() error {
	baseRef := plumbing.NewBranchReferenceName(g.baseBranch)

	head, err := g.repo.Head()
	if err == nil && head.Name() == baseRef {
		return nil
	}

	wt, err := g.repo.Worktree()
	if err != nil {
		return &GitOperationError{Step: "worktree", Branch: g.baseBranch, Err: err}
	}

	opts := &git.CheckoutOptions{Branch: baseRef, Force: true}
	if _, err := g.repo.Reference(baseRef, true); errors.Is(err, plumbing.ErrReferenceNotFound) {
		remote, err := g.repo.Reference(plumbing.NewRemoteReferenceName(remoteName, g.baseBranch), true)
		if err != nil {
			return &GitOperationError{Step: "find base branch", Branch: g.baseBranch, Err: err}
		}
		opts.Create = true
		opts.Hash = remote.Hash()
	} else if err != nil {
		return &GitOperationError{Step: "find base branch", Branch: g.baseBranch, Err: err}
	}

	if err := wt.Checkout(opts); err != nil {
		return &GitOperationError{Step: "checkout base", Branch: g.baseBranch, Err: err}
	}
	return nil
}

func (g *Gateway) pullBase(ctx context.Context) error {
	auth, err := g.auth()
	if err != nil {
		return &GitOperationError{Step: "pull", Branch: g.baseBranch, Err: err}
	}
	wt, err := g.repo.Worktree()
	if err != nil {
		return &GitOperationError{Step: "worktree", Branch: g.baseBranch, Err: err}
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	err = wt.PullContext(ctx, &git.PullOptions{
		RemoteName:    remoteName,
		RemoteURL:     g.remoteURL,
		ReferenceName: plumbing.NewBranchReferenceName(g.baseBranch),
		SingleBranch:  true,
		Auth:          auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &GitOperationError{Step: "pull", Branch: g.baseBranch, Err: err}
	}
	return nil
}

func (g *Gateway) deleteLocalBranch(name string) error {
	refName := plumbing.NewBranchReferenceName(name)
	if _, err := g.repo.Reference(refName, false); err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil
		}
		return &GitOperationError{Step: "find local branch", Branch: name, Err: err}
	}
	if err := g.repo.Storer.RemoveReference(refName); err != nil {
		return &GitOperationError{Step: "delete local branch", Branch: name, Err: err}
	}
	if err := g.repo.DeleteBranch(name); err != nil && !errors.Is(err, git.ErrBranchNotFound) {
		return &GitOperationError{Step: "delete branch config", Branch: name, Err: err}
	}
	return nil
}

// deleteRemoteBranch lists the remote's refs and pushes a deletion when name
// exists there. The listing uses an in-memory remote so nothing is written to
// the repository configuration.
func (g *Gateway) deleteRemoteBranch(ctx context.Context, name string) error {
	auth, err := g.auth()
	if err != nil {
		return &GitOperationError{Step: "list remote", Branch: name, Err: err}
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: remoteName,
		URLs: []string{g.remoteURL},
	})
	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: auth})
	if err != nil {
		if errors.Is(err, transport.ErrEmptyRemoteRepository) {
			return nil
		}
		return &GitOperationError{Step: "list remote", Branch: name, Err: err}
	}

	refName := plumbing.NewBranchReferenceName(name)
	found := false
	for _, ref := range refs {
		if ref.Name() == refName {
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	clog.FromContext(ctx).With("branch", name).Info("Deleting stale remote branch")
	err = g.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RemoteURL:  g.remoteURL,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(":" + refName.String())},
		Auth:       auth,
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return &GitOperationError{Step: "delete remote branch", Branch: name, Err: err}
	}
	return nil
}

// WriteFile replaces the content of a working-tree file, keeping its mode.
// Paths that escape the repository root are rejected.
func (g *Gateway) WriteFile(_ context.Context, path, content string) error {
	fullPath, err := g.validatePath(path)
	if err != nil {
		return err
	}

	mode := os.FileMode(0o644)
	if info, err := os.Stat(fullPath); err == nil {
		mode = info.Mode().Perm()
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return fmt.Errorf("creating parent of %s: %w", path, err)
	}
	if err := os.WriteFile(fullPath, []byte(content), mode); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// CommitChanges stages path and commits it. It returns false without
// committing when staging path produced no change.
func (g *Gateway) CommitChanges(ctx context.Context, path, message string) (bool, error) {
	log := clog.FromContext(ctx).With("path", path)

	fullPath, err := g.validatePath(path)
	if err != nil {
		return false, &GitOperationError{Step: "commit", Err: err}
	}
	if _, err := os.Stat(fullPath); err != nil {
		return false, &GitOperationError{Step: "commit", Err: err}
	}
	rel, err := filepath.Rel(g.root, fullPath)
	if err != nil {
		return false, &GitOperationError{Step: "commit", Err: err}
	}
	rel = filepath.ToSlash(rel)

	wt, err := g.repo.Worktree()
	if err != nil {
		return false, &GitOperationError{Step: "worktree", Err: err}
	}
	if _, err := wt.Add(rel); err != nil {
		return false, &GitOperationError{Step: "add", Err: err}
	}

	status, err := wt.Status()
	if err != nil {
		return false, &GitOperationError{Step: "status", Err: err}
	}
	if s, ok := status[rel]; !ok || s.Staging == git.Unmodified {
		log.Warn("No changes to commit")
		return false, nil
	}

	hash, err := wt.Commit(message, &git.CommitOptions{Author: g.signature()})
	if err != nil {
		return false, &GitOperationError{Step: "commit", Err: err}
	}
	log.With("commit", hash.String()).Info("Committed changes")
	return true, nil
}

// PushChanges pushes refs/heads/<branch> using a credential that is passed
// per call and never stored in the repository configuration.
func (g *Gateway) PushChanges(ctx context.Context, branch string) error {
	log := clog.FromContext(ctx).With("branch", branch)

	auth, err := g.auth()
	if err != nil {
		return &GitOperationError{Step: "push", Branch: branch, Err: err}
	}
	if auth.Password == "" {
		return &GitOperationError{Step: "push", Branch: branch, Err: errors.New("no token configured")}
	}

	ctx, cancel := g.withTimeout(ctx)
	defer cancel()

	ref := plumbing.NewBranchReferenceName(branch)
	err = g.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: remoteName,
		RemoteURL:  g.remoteURL,
		RefSpecs:   []gitconfig.RefSpec{gitconfig.RefSpec(ref.String() + ":" + ref.String())},
		Auth:       auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		log.Info("Branch already up to date")
		return nil
	}
	if err != nil {
		log.With("error", err.Error()).Error("Push failed")
		return &GitOperationError{Step: "push", Branch: branch, Err: err}
	}
	log.Info("Pushed branch")
	return nil
}

// CleanupBranch force-checks out the base branch and deletes branch locally.
// Failures are logged and never returned.
func (g *Gateway) CleanupBranch(ctx context.Context, branch string) {
	log := clog.FromContext(ctx).With("branch", branch)

	if err := g.checkoutBase(); err != nil {
		log.With("error", err.Error()).Warn("Cleanup could not switch to the base branch")
		return
	}
	if err := g.deleteLocalBranch(branch); err != nil {
		log.With("error", err.Error()).Warn("Cleanup could not delete the branch")
		return
	}
	log.Info("Cleaned up branch")
}

func (g *Gateway) validatePath(path string) (string, error) {
	if path == "" {
		return "", errors.New("path cannot be empty")
	}
	fullPath := path
	if !filepath.IsAbs(path) {
		fullPath = filepath.Join(g.root, filepath.Clean(path))
	}
	rel, err := filepath.Rel(g.root, fullPath)
	if err != nil {
		return "", fmt.Errorf("path %q: %w", path, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the repository", path)
	}
	return fullPath, nil
}

func (g *Gateway) auth() (*githttp.BasicAuth, error) {
	token, err := g.tokenSource.Token()
	if err != nil {
		return nil, fmt.Errorf("getting token: %w", err)
	}
	return &githttp.BasicAuth{
		Username: "x-access-token",
		Password: token.AccessToken,
	}, nil
}

func (g *Gateway) signature() *object.Signature {
	email := g.identity
	if !strings.Contains(email, "@") {
		email = fmt.Sprintf("%s@users.noreply.github.com", email)
	}
	return &object.Signature{Name: g.identity, Email: email, When: time.Now()}
}

func (g *Gateway) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.timeout)
}
