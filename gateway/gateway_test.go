/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

const testFile = "tests/test_main.py"

type staticTokenSource string

func (s staticTokenSource) Token() (*oauth2.Token, error) {
	return &oauth2.Token{AccessToken: string(s)}, nil
}

// initOrigin creates a bare repository whose main branch holds one commit
// containing testFile.
func initOrigin(t *testing.T) string {
	t.Helper()

	seedDir := t.TempDir()
	seed, err := git.PlainInit(seedDir, false)
	require.NoError(t, err)
	require.NoError(t, seed.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName("main"))))

	require.NoError(t, os.MkdirAll(filepath.Join(seedDir, "tests"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(seedDir, testFile), []byte("def test_add():\n    assert 2 + 2 == 5\n"), 0o644))
	commitAll(t, seed, "initial")

	originDir := t.TempDir()
	_, err = git.PlainClone(originDir, true, &git.CloneOptions{URL: seedDir})
	require.NoError(t, err)
	return originDir
}

func commitAll(t *testing.T, repo *git.Repository, msg string) plumbing.Hash {
	t.Helper()
	wt, err := repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.AddWithOptions(&git.AddOptions{All: true}))
	hash, err := wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{Name: "Test", Email: "test@example.com", When: time.Now()},
	})
	require.NoError(t, err)
	return hash
}

func cloneOrigin(t *testing.T, originDir string) (string, *git.Repository) {
	t.Helper()
	dir := t.TempDir()
	repo, err := git.PlainClone(dir, false, &git.CloneOptions{URL: originDir})
	require.NoError(t, err)
	return dir, repo
}

func newTestGateway(t *testing.T, opts ...Option) (*Gateway, string) {
	t.Helper()
	originDir := initOrigin(t)
	cloneDir, _ := cloneOrigin(t, originDir)

	opts = append([]Option{
		WithRemoteURL(originDir),
		WithBaseBranch("main"),
		WithIdentity("ai-healer"),
		WithTimeout(10 * time.Second),
	}, opts...)
	g, err := New(context.Background(), cloneDir, "acme", "widgets", staticTokenSource("test-token"), opts...)
	require.NoError(t, err)
	return g, originDir
}

func branchCount(t *testing.T, repo *git.Repository, name string) int {
	t.Helper()
	iter, err := repo.Branches()
	require.NoError(t, err)
	n := 0
	require.NoError(t, iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Name().Short() == name {
			n++
		}
		return nil
	}))
	return n
}

func TestNewValidates(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	_, err := New(ctx, dir, "", "widgets", staticTokenSource("x"))
	require.Error(t, err)
	_, err = New(ctx, dir, "acme", "widgets", nil)
	require.Error(t, err)
	_, err = New(ctx, dir, "acme", "widgets", staticTokenSource("x"))
	require.Error(t, err, "a directory that is not a repository must be rejected")
}

func TestSnapshot(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	snap, err := g.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "main", snap.CurrentBranch)
	require.True(t, snap.IsClean)

	head, err := g.repo.Head()
	require.NoError(t, err)
	require.Equal(t, head.Hash().String(), snap.Head)

	require.NoError(t, os.WriteFile(filepath.Join(g.Root(), testFile), []byte("changed\n"), 0o644))
	snap, err = g.Snapshot(ctx)
	require.NoError(t, err)
	require.False(t, snap.IsClean)
}

func TestCreateBranchTwice(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	const branch = "fix/ai-heal-a1b2c3d4"

	require.NoError(t, g.CreateBranch(ctx, branch))
	require.NoError(t, g.CreateBranch(ctx, branch))

	snap, err := g.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, branch, snap.CurrentBranch)
	require.Equal(t, 1, branchCount(t, g.repo, branch))
}

func TestCreateBranchRejectsInvalidNames(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	for _, name := range []string{"", "main", "bad..name"} {
		err := g.CreateBranch(ctx, name)
		var gitErr *GitOperationError
		require.ErrorAs(t, err, &gitErr, "branch %q", name)
		require.Equal(t, "validate branch", gitErr.Step)
	}
}

func TestCreateBranchPullsBase(t *testing.T) {
	g, originDir := newTestGateway(t)
	ctx := context.Background()

	// Advance origin/main from another clone.
	otherDir, other := cloneOrigin(t, originDir)
	require.NoError(t, os.WriteFile(filepath.Join(otherDir, "README.md"), []byte("hello\n"), 0o644))
	newHead := commitAll(t, other, "add readme")
	require.NoError(t, other.Push(&git.PushOptions{}))

	require.NoError(t, g.CreateBranch(ctx, "fix/ai-heal-pull"))

	head, err := g.repo.Head()
	require.NoError(t, err)
	require.Equal(t, newHead, head.Hash())
	require.FileExists(t, filepath.Join(g.Root(), "README.md"))
}

func TestCreateBranchSwitchesToBase(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	base, err := g.repo.Head()
	require.NoError(t, err)

	// Move to a diverged feature branch first.
	wt, err := g.repo.Worktree()
	require.NoError(t, err)
	require.NoError(t, wt.Checkout(&git.CheckoutOptions{Branch: plumbing.NewBranchReferenceName("feature"), Create: true}))
	require.NoError(t, os.WriteFile(filepath.Join(g.Root(), "feature.txt"), []byte("wip\n"), 0o644))
	commitAll(t, g.repo, "feature work")

	require.NoError(t, g.CreateBranch(ctx, "fix/ai-heal-base"))

	head, err := g.repo.Head()
	require.NoError(t, err)
	require.Equal(t, "fix/ai-heal-base", head.Name().Short())
	require.Equal(t, base.Hash(), head.Hash())
	require.NoFileExists(t, filepath.Join(g.Root(), "feature.txt"))
}

func TestCreateBranchRefusesDirtyTree(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	// Untracked files do not block branch creation.
	require.NoError(t, os.WriteFile(filepath.Join(g.Root(), "scratch.txt"), []byte("notes\n"), 0o644))
	require.NoError(t, g.CreateBranch(ctx, "fix/ai-heal-untracked"))
	require.FileExists(t, filepath.Join(g.Root(), "scratch.txt"))

	const local = "def test_add():\n    assert 2 + 2 == 4  # local edit\n"
	require.NoError(t, os.WriteFile(filepath.Join(g.Root(), testFile), []byte(local), 0o644))

	err := g.CreateBranch(ctx, "fix/ai-heal-dirty")
	var gitErr *GitOperationError
	require.ErrorAs(t, err, &gitErr)
	require.Equal(t, "check worktree", gitErr.Step)
	require.ErrorContains(t, err, testFile)

	got, err := os.ReadFile(filepath.Join(g.Root(), testFile))
	require.NoError(t, err)
	require.Equal(t, local, string(got))

	head, err := g.repo.Head()
	require.NoError(t, err)
	require.Equal(t, "fix/ai-heal-untracked", head.Name().Short())
	require.Equal(t, 0, branchCount(t, g.repo, "fix/ai-heal-dirty"))
}

func TestCreateBranchDeletesRemoteBranch(t *testing.T) {
	g, originDir := newTestGateway(t)
	ctx := context.Background()
	const branch = "fix/ai-heal-stale"

	require.NoError(t, g.CreateBranch(ctx, branch))
	require.NoError(t, g.WriteFile(ctx, testFile, "def test_add():\n    assert 2 + 2 == 4\n"))
	committed, err := g.CommitChanges(ctx, testFile, "stale fix")
	require.NoError(t, err)
	require.True(t, committed)
	require.NoError(t, g.PushChanges(ctx, branch))

	origin, err := git.PlainOpen(originDir)
	require.NoError(t, err)
	_, err = origin.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)

	require.NoError(t, g.CreateBranch(ctx, branch))

	_, err = origin.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.ErrorIs(t, err, plumbing.ErrReferenceNotFound)

	// The recreated branch starts from the base, not the stale commit.
	head, err := g.repo.Head()
	require.NoError(t, err)
	main, err := g.repo.Reference(plumbing.NewBranchReferenceName("main"), true)
	require.NoError(t, err)
	require.Equal(t, main.Hash(), head.Hash())
}

func TestWriteFile(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	script := filepath.Join(g.Root(), "run.sh")
	require.NoError(t, os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755))

	require.NoError(t, g.WriteFile(ctx, "run.sh", "#!/bin/sh\necho ok\n"))
	info, err := os.Stat(script)
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o755), info.Mode().Perm())
	got, err := os.ReadFile(script)
	require.NoError(t, err)
	require.Equal(t, "#!/bin/sh\necho ok\n", string(got))

	for _, path := range []string{"../escape.py", "tests/../../escape.py", filepath.Join(t.TempDir(), "abs.py")} {
		require.Error(t, g.WriteFile(ctx, path, "x\ny\n"), "path %q", path)
	}
}

func TestCommitChanges(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()

	before, err := g.repo.Head()
	require.NoError(t, err)

	committed, err := g.CommitChanges(ctx, testFile, "nothing")
	require.NoError(t, err)
	require.False(t, committed)
	after, err := g.repo.Head()
	require.NoError(t, err)
	require.Equal(t, before.Hash(), after.Hash(), "a no-op commit must not create history")

	require.NoError(t, g.WriteFile(ctx, testFile, "def test_add():\n    assert 2 + 2 == 4\n"))
	require.NoError(t, os.WriteFile(filepath.Join(g.Root(), "unrelated.txt"), []byte("x\n"), 0o644))

	committed, err = g.CommitChanges(ctx, testFile, "fix: AI repair")
	require.NoError(t, err)
	require.True(t, committed)

	head, err := g.repo.Head()
	require.NoError(t, err)
	commit, err := g.repo.CommitObject(head.Hash())
	require.NoError(t, err)
	require.Equal(t, "fix: AI repair", commit.Message)
	require.Equal(t, "ai-healer", commit.Author.Name)
	require.Equal(t, "ai-healer@users.noreply.github.com", commit.Author.Email)

	stats, err := commit.Stats()
	require.NoError(t, err)
	require.Len(t, stats, 1)
	require.Equal(t, testFile, stats[0].Name)
}

func TestCommitChangesMissingPath(t *testing.T) {
	g, _ := newTestGateway(t)

	_, err := g.CommitChanges(context.Background(), "tests/missing.py", "msg")
	var gitErr *GitOperationError
	require.ErrorAs(t, err, &gitErr)
}

func TestPushChanges(t *testing.T) {
	g, originDir := newTestGateway(t)
	ctx := context.Background()
	const branch = "fix/ai-heal-push"

	require.NoError(t, g.CreateBranch(ctx, branch))
	require.NoError(t, g.WriteFile(ctx, testFile, "def test_add():\n    assert 2 + 2 == 4\n"))
	_, err := g.CommitChanges(ctx, testFile, "fix")
	require.NoError(t, err)
	require.NoError(t, g.PushChanges(ctx, branch))

	head, err := g.repo.Head()
	require.NoError(t, err)
	origin, err := git.PlainOpen(originDir)
	require.NoError(t, err)
	ref, err := origin.Reference(plumbing.NewBranchReferenceName(branch), true)
	require.NoError(t, err)
	require.Equal(t, head.Hash(), ref.Hash())

	// The credential is never persisted in the repository configuration.
	cfg, err := g.repo.Config()
	require.NoError(t, err)
	for _, remote := range cfg.Remotes {
		for _, u := range remote.URLs {
			require.NotContains(t, u, "test-token")
		}
	}
}

func TestPushChangesRequiresToken(t *testing.T) {
	originDir := initOrigin(t)
	cloneDir, _ := cloneOrigin(t, originDir)
	g, err := New(context.Background(), cloneDir, "acme", "widgets", staticTokenSource(""), WithRemoteURL(originDir))
	require.NoError(t, err)

	err = g.PushChanges(context.Background(), "main")
	var gitErr *GitOperationError
	require.ErrorAs(t, err, &gitErr)
	require.Equal(t, "push", gitErr.Step)
}

func TestCleanupBranch(t *testing.T) {
	g, _ := newTestGateway(t)
	ctx := context.Background()
	const branch = "fix/ai-heal-cleanup"

	require.NoError(t, g.CreateBranch(ctx, branch))
	require.NoError(t, g.WriteFile(ctx, testFile, "broken\ncontent\n"))

	g.CleanupBranch(ctx, branch)

	snap, err := g.Snapshot(ctx)
	require.NoError(t, err)
	require.Equal(t, "main", snap.CurrentBranch)
	require.Equal(t, 0, branchCount(t, g.repo, branch))

	// Cleaning up a branch that does not exist is harmless.
	g.CleanupBranch(ctx, "fix/ai-heal-missing")
}

func TestGitOperationError(t *testing.T) {
	inner := errors.New("exit status 128")
	err := error(&GitOperationError{Step: "push", Branch: "fix/x", Err: inner})
	require.ErrorIs(t, err, inner)
	require.Equal(t, "git push (fix/x): exit status 128", err.Error())
}
