/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package healer

import (
	"context"
	"errors"
	"fmt"

	"chainguard.dev/selfheal/fixprovider"
	"chainguard.dev/selfheal/gateway"
	"chainguard.dev/selfheal/logparser"
)

// Stage names a step of the healing pipeline.
type Stage string

const (
	StageReadLog      Stage = "read_log"
	StageParse        Stage = "parse"
	StageReadFile     Stage = "read_file"
	StageGetFix       Stage = "get_fix"
	StageCreateBranch Stage = "create_branch"
	StageWriteFile    Stage = "write_file"
	StageCommit       Stage = "commit"
	StagePush         Stage = "push"
	StageCreatePR     Stage = "create_pr"
)

var (
	// ErrNoChanges is returned when writing the fix left nothing to commit.
	ErrNoChanges = errors.New("no changes to commit")

	errEmptyFile   = errors.New("file is empty")
	errSessionUsed = errors.New("session has already run")
)

// FileReadError reports a log or source file that is missing, unreadable or
// empty.
type FileReadError struct {
	Path string
	Err  error
}

func (e *FileReadError) Error() string {
	return fmt.Sprintf("reading %s: %v", e.Path, e.Err)
}

func (e *FileReadError) Unwrap() error { return e.Err }

// StageError records the stage at which a run stopped.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// expected reports whether err is a failure mode a stage anticipates. Any
// other error, including a recovered panic, triggers branch cleanup.
func expected(err error) bool {
	var (
		gitErr  *gateway.GitOperationError
		prErr   *gateway.PRCreationError
		readErr *FileReadError
	)
	switch {
	case errors.Is(err, logparser.ErrNoFailureFound),
		errors.Is(err, logparser.ErrIncompleteDescriptor),
		errors.Is(err, fixprovider.ErrFixUnavailable),
		errors.Is(err, ErrNoChanges),
		errors.Is(err, errSessionUsed),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &gitErr),
		errors.As(err, &prErr),
		errors.As(err, &readErr):
		return true
	default:
		return false
	}
}
