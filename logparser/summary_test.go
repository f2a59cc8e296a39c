/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logparser_test

import (
	"testing"
	"time"

	"chainguard.dev/selfheal/logparser"
	"github.com/google/go-cmp/cmp"
)

func TestExtractTestSummary(t *testing.T) {
	tests := []struct {
		name string
		log  string
		want logparser.TestSummary
	}{{
		name: "pytest",
		log:  "FAILED tests/test_main.py::test_add\n========= 1 failed, 3 passed, 2 skipped in 1.50s =========\n",
		want: logparser.TestSummary{Passed: 3, Failed: 1, Skipped: 2, Total: 6, Duration: 1500 * time.Millisecond},
	}, {
		name: "pytest with errors and wall clock",
		log:  "==== 2 passed, 1 error in 3.00s (0:00:03) ====",
		want: logparser.TestSummary{Passed: 2, Failed: 1, Total: 3, Duration: 3 * time.Second},
	}, {
		name: "unittest failure",
		log:  "Ran 5 tests in 0.250s\n\nFAILED (failures=1, errors=1, skipped=1)\n",
		want: logparser.TestSummary{Passed: 2, Failed: 2, Skipped: 1, Total: 5, Duration: 250 * time.Millisecond},
	}, {
		name: "unittest ok",
		log:  "Ran 1 test in 0.500s\n\nOK\n",
		want: logparser.TestSummary{Passed: 1, Total: 1, Duration: 500 * time.Millisecond},
	}, {
		name: "no summary",
		log:  "tests/test_main.py:12: AssertionError\n",
		want: logparser.TestSummary{},
	}}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, logparser.ExtractTestSummary(tt.log)); diff != "" {
				t.Errorf("ExtractTestSummary() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIsFlaky(t *testing.T) {
	tests := map[string]bool{
		"requests.exceptions.ConnectTimeout: Timeout connecting": true,
		"ConnectionResetError: [Errno 104] Connection reset":     true,
		"assert random.choice(items) == 3":                       true,
		"E       assert 4 == 5":                                  false,
		"":                                                        false,
	}
	for log, want := range tests {
		if got := logparser.IsFlaky(log); got != want {
			t.Errorf("IsFlaky(%q) = %v, wanted %v", log, got, want)
		}
	}
}
