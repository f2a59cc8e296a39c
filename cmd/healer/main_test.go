/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"chainguard.dev/selfheal/healer"
	"github.com/google/go-cmp/cmp"
)

func TestRootCmdRequiresOneArgument(t *testing.T) {
	for _, args := range [][]string{{}, {"a.log", "b.log"}} {
		cmd := newRootCmd()
		cmd.SetArgs(args)
		cmd.SetOut(&bytes.Buffer{})
		cmd.SetErr(&bytes.Buffer{})
		if err := cmd.Execute(); err == nil {
			t.Errorf("Execute(%v) = nil, wanted argument error", args)
		}
	}
}

func TestSummaryRows(t *testing.T) {
	got := summaryRows(healer.Summary{
		SessionID:   "abc12345",
		Status:      healer.StatusFailed,
		Branch:      "fix/ai-heal-abc12345",
		FailedStage: healer.StageParse,
		Error:       "parse: no recognizable test failure in log",
		Duration:    1500 * time.Microsecond,
	})
	want := [][]string{
		{"Session", "abc12345"},
		{"Success", "false"},
		{"Status", "failed"},
		{"Branch", "fix/ai-heal-abc12345"},
		{"Failed Stage", "parse"},
		{"Error", "parse: no recognizable test failure in log"},
		{"Duration", "2ms"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("summaryRows() mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	err := printSummary(&buf, healer.Summary{
		SessionID: "abc12345",
		Success:   true,
		Status:    healer.StatusPRCreated,
		PRURL:     "https://github.com/acme/widgets/pull/7",
	})
	if err != nil {
		t.Fatalf("printSummary() = %v", err)
	}
	for _, want := range []string{"abc12345", "pr_created", "https://github.com/acme/widgets/pull/7"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("summary table missing %q:\n%s", want, buf.String())
		}
	}
}
