/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logparser

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// "==== 1 failed, 3 passed, 1 skipped in 0.12s ===="
	pytestSummaryRE = regexp.MustCompile(`(?m)^=+ (.*?) in ([\d.]+)s(?: \([^)]*\))? =+\s*$`)
	countRE         = regexp.MustCompile(`(\d+) (passed|failed|errors?|skipped|xfailed|xpassed|deselected)`)

	// "Ran 4 tests in 0.002s" followed by "FAILED (failures=1, errors=1)" or "OK".
	unittestRanRE    = regexp.MustCompile(`(?m)^Ran (\d+) tests? in ([\d.]+)s`)
	unittestResultRE = regexp.MustCompile(`(?m)^(?:FAILED|OK)(?: \(([^)]*)\))?\s*$`)
	unittestCountRE  = regexp.MustCompile(`(failures|errors|skipped|expected failures|unexpected successes)=(\d+)`)
)

// flakyKeywords mark failures that are likely environmental rather than a
// real regression.
var flakyKeywords = []string{
	"timeout",
	"connection",
	"network",
	"race condition",
	"timing",
	"random",
}

// ExtractTestSummary reads the aggregate counts from a pytest or unittest
// summary line. It returns a zero TestSummary when neither is present.
func ExtractTestSummary(log string) TestSummary {
	log = ansiRE.ReplaceAllString(log, "")

	if sm := lastSubmatch(pytestSummaryRE, log); sm != nil {
		var s TestSummary
		for _, c := range countRE.FindAllStringSubmatch(sm[1], -1) {
			n, _ := strconv.Atoi(c[1])
			switch c[2] {
			case "passed", "xpassed":
				s.Passed += n
			case "failed", "error", "errors":
				s.Failed += n
			case "skipped", "xfailed":
				s.Skipped += n
			}
		}
		s.Total = s.Passed + s.Failed + s.Skipped
		s.Duration = seconds(sm[2])
		return s
	}

	if sm := lastSubmatch(unittestRanRE, log); sm != nil {
		var s TestSummary
		s.Total, _ = strconv.Atoi(sm[1])
		s.Duration = seconds(sm[2])
		if rm := lastSubmatch(unittestResultRE, log); rm != nil {
			for _, c := range unittestCountRE.FindAllStringSubmatch(rm[1], -1) {
				n, _ := strconv.Atoi(c[2])
				switch c[1] {
				case "failures", "errors", "unexpected successes":
					s.Failed += n
				case "skipped", "expected failures":
					s.Skipped += n
				}
			}
		}
		s.Passed = max(s.Total-s.Failed-s.Skipped, 0)
		return s
	}

	return TestSummary{}
}

// IsFlaky reports whether the log mentions any keyword associated with
// non-deterministic failures.
func IsFlaky(log string) bool {
	lower := strings.ToLower(log)
	for _, kw := range flakyKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func lastSubmatch(re *regexp.Regexp, s string) []string {
	all := re.FindAllStringSubmatch(s, -1)
	if len(all) == 0 {
		return nil
	}
	return all[len(all)-1]
}

func seconds(s string) time.Duration {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
