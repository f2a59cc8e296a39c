/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package healer

import (
	"strings"
	"time"

	"chainguard.dev/selfheal/logparser"
	"github.com/google/uuid"
)

// Status is the lifecycle state of a Session.
type Status string

const (
	StatusStarted       Status = "started"
	StatusFixAcquired   Status = "fix_acquired"
	StatusBranchCreated Status = "branch_created"
	StatusCommitted     Status = "committed"
	StatusPushed        Status = "pushed"
	StatusPRCreated     Status = "pr_created"
	StatusFailed        Status = "failed"
	StatusCleanedUp     Status = "cleaned_up"
)

// Session is one healing attempt. It lives only for the duration of the
// process and is owned by its Healer.
type Session struct {
	ID         string
	BranchName string
	Status     Status
	Stage      Stage

	BranchCreated bool
	Descriptor    *logparser.FailureDescriptor
	PRURL         string
	StartedAt     time.Time
}

func newSession(id, prefix string) *Session {
	return &Session{
		ID:         id,
		BranchName: prefix + "-" + id,
		Status:     StatusStarted,
	}
}

// newSessionID returns 8 hex characters from a random UUID.
func newSessionID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
