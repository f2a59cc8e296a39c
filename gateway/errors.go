/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gateway

import "fmt"

// GitOperationError reports a failed git step. Step names the operation that
// failed so callers know which state the working copy may be left in.
type GitOperationError struct {
	Step   string
	Branch string
	Err    error
}

func (e *GitOperationError) Error() string {
	if e.Branch != "" {
		return fmt.Sprintf("git %s (%s): %v", e.Step, e.Branch, e.Err)
	}
	return fmt.Sprintf("git %s: %v", e.Step, e.Err)
}

func (e *GitOperationError) Unwrap() error { return e.Err }

// PRCreationError reports that the pull request endpoint did not answer with
// 201 Created. StatusCode is zero when no response was received.
type PRCreationError struct {
	StatusCode int
	Err        error
}

func (e *PRCreationError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("creating pull request: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("creating pull request: %v", e.Err)
}

func (e *PRCreationError) Unwrap() error { return e.Err }
