/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package healer

import (
	"context"
	"errors"
	"time"

	"github.com/chainguard-dev/clog"
)

// Summary is the outcome of a healing session. It is produced for every run,
// successful or not.
type Summary struct {
	SessionID    string
	Success      bool
	Status       Status
	Branch       string
	FilePath     string
	ErrorType    string
	ErrorMessage string
	PRURL        string
	// Error and FailedStage are set only on failure.
	Error       string
	FailedStage Stage
	Duration    time.Duration
}

func (h *Healer) summarize(err error, d time.Duration) Summary {
	s := h.session
	out := Summary{
		SessionID: s.ID,
		Success:   err == nil,
		Status:    s.Status,
		Branch:    s.BranchName,
		PRURL:     s.PRURL,
		Duration:  d,
	}
	if s.Descriptor != nil {
		out.FilePath = s.Descriptor.FilePath
		out.ErrorType = string(s.Descriptor.ErrorType)
		out.ErrorMessage = s.Descriptor.ErrorMessage
	}
	if err != nil {
		out.Error = err.Error()
		out.FailedStage = s.Stage
		var se *StageError
		if errors.As(err, &se) {
			out.FailedStage = se.Stage
		}
	}
	return out
}

// Log writes the summary as a single structured record.
func (s Summary) Log(ctx context.Context) {
	log := clog.FromContext(ctx).
		With("session", s.SessionID).
		With("status", string(s.Status)).
		With("branch", s.Branch).
		With("duration", s.Duration)
	if s.FilePath != "" {
		log = log.With("file", s.FilePath).With("error_type", s.ErrorType)
	}
	if s.Success {
		log.With("pr_url", s.PRURL).Info("Healing session succeeded")
		return
	}
	log.With("stage", string(s.FailedStage)).With("error", s.Error).Error("Healing session did not produce a pull request")
}
