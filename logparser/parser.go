/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logparser

import (
	"regexp"
	"strconv"
	"strings"
)

const (
	fallbackTestFailure = "Test failure detected"
	fallbackUnknown     = "Unknown error"
)

var (
	// ansiRE matches terminal color escapes emitted by CI runners.
	ansiRE = regexp.MustCompile(`\x1b\[[0-9;]*[A-Za-z]`)
	// timestampRE matches the RFC 3339 prefix GitHub Actions puts on every line.
	timestampRE = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?Z\s`)

	// pytestMarkerRE matches "tests/test_main.py:12: AssertionError".
	pytestMarkerRE = regexp.MustCompile(`(?:^|\s)([^\s:"'<>|]+\.[A-Za-z0-9]+):(\d+):(?:\s+([\w.]+))?`)
	// frameRE matches a Python traceback frame: File "path", line N
	frameRE = regexp.MustCompile(`File "([^"]+)", line (\d+)`)
	// unittestBannerRE matches the "FAIL: test_x (module.Class)" header.
	unittestBannerRE = regexp.MustCompile(`^(?:FAIL|ERROR): \w+`)
	// errorLineRE matches the exception line that closes a traceback.
	errorLineRE = regexp.MustCompile(`^\s*(?:[\w.]+\.)?(\w+(?:Error|Exception))(?::|$)`)
	// errorNameRE finds an exception class name anywhere in a message.
	errorNameRE = regexp.MustCompile(`\b(\w+(?:Error|Exception))\b`)
)

// messagePatterns is the ordered list of message sub-patterns. A line yields
// at most one candidate: the first pattern that matches it.
var messagePatterns = []*regexp.Regexp{
	// pytest failure marker: "E       assert 4 == 5"
	regexp.MustCompile(`^E\s+(.+?)\s*$`),
	// quoted source line: ">       assert response.json == {...}"
	regexp.MustCompile(`^>\s+(.+?)\s*$`),
	regexp.MustCompile(`\b(AssertionError:\s*.*?)\s*$`),
	regexp.MustCompile(`\b(\w+Error:\s*.*?)\s*$`),
}

// marker is the file/line location that selected a pattern family.
type marker struct {
	path      string
	line      int
	errorName string
}

type family struct {
	framework Framework
	fallback  string
	locate    func(lines []string) (marker, bool)
}

// families are evaluated in priority order; the first that locates a marker
// wins and the rest are not consulted.
var families = []family{{
	framework: FrameworkPytest,
	fallback:  fallbackTestFailure,
	locate:    locatePytest,
}, {
	framework: FrameworkUnittest,
	fallback:  fallbackTestFailure,
	locate:    locateUnittest,
}, {
	framework: FrameworkGeneric,
	fallback:  fallbackUnknown,
	locate:    locateTraceback,
}}

// ParseFailure extracts the failure descriptor from log text. It returns
// ErrNoFailureFound when no family recognizes a file/line marker.
func ParseFailure(log string) (FailureDescriptor, error) {
	lines := normalize(log)
	for _, f := range families {
		m, ok := f.locate(lines)
		if !ok {
			continue
		}
		return describe(f, m, lines), nil
	}
	return FailureDescriptor{}, ErrNoFailureFound
}

func normalize(log string) []string {
	raw := strings.Split(strings.ReplaceAll(log, "\r\n", "\n"), "\n")
	lines := make([]string, len(raw))
	for i, l := range raw {
		l = ansiRE.ReplaceAllString(l, "")
		lines[i] = timestampRE.ReplaceAllString(l, "")
	}
	return lines
}

func locatePytest(lines []string) (marker, bool) {
	for _, l := range lines {
		sm := pytestMarkerRE.FindStringSubmatch(l)
		if sm == nil {
			continue
		}
		n, err := strconv.Atoi(sm[2])
		if err != nil {
			continue
		}
		return marker{path: cleanPath(sm[1]), line: n, errorName: sm[3]}, true
	}
	return marker{}, false
}

func locateUnittest(lines []string) (marker, bool) {
	for i, l := range lines {
		if !unittestBannerRE.MatchString(l) {
			continue
		}
		if m, _, ok := lastFrame(lines[i+1:]); ok {
			return m, true
		}
	}
	return marker{}, false
}

func locateTraceback(lines []string) (marker, bool) {
	m, closed, ok := lastFrame(lines)
	return m, ok && closed
}

// lastFrame walks a traceback and returns the innermost project frame seen
// before the first closing error line. closed reports whether such an error
// line was found after at least one frame.
func lastFrame(lines []string) (m marker, closed, ok bool) {
	var frames []marker
	for _, l := range lines {
		if sm := frameRE.FindStringSubmatch(l); sm != nil {
			n, err := strconv.Atoi(sm[2])
			if err != nil {
				continue
			}
			frames = append(frames, marker{path: cleanPath(sm[1]), line: n})
			continue
		}
		if len(frames) == 0 {
			continue
		}
		if em := errorLineRE.FindStringSubmatch(l); em != nil {
			m = pickFrame(frames)
			m.errorName = em[1]
			return m, true, true
		}
	}
	if len(frames) == 0 {
		return marker{}, false, false
	}
	return pickFrame(frames), false, true
}

// pickFrame prefers the innermost frame that is not inside the interpreter
// or an installed package.
func pickFrame(frames []marker) marker {
	for i := len(frames) - 1; i >= 0; i-- {
		p := frames[i].path
		if strings.Contains(p, "site-packages") || strings.Contains(p, "/lib/python") || strings.HasPrefix(p, "<") {
			continue
		}
		return frames[i]
	}
	return frames[len(frames)-1]
}

type candidate struct {
	text  string
	rank  int
	index int
}

func describe(f family, m marker, lines []string) FailureDescriptor {
	var candidates []candidate
	for i, l := range lines {
		for rank, re := range messagePatterns {
			if sm := re.FindStringSubmatch(l); sm != nil {
				if text := strings.TrimSpace(sm[1]); text != "" {
					candidates = append(candidates, candidate{text: text, rank: rank, index: i})
				}
				break
			}
		}
	}

	d := FailureDescriptor{
		FilePath:   m.path,
		LineNumber: m.line,
		Framework:  f.framework,
	}

	if c, ok := preferAssert(candidates); ok {
		d.ErrorMessage = c.text
		d.ErrorType = ErrorTypeAssertion
		return d
	}

	if len(candidates) > 0 {
		d.ErrorMessage = candidates[0].text
		d.ErrorType = classify(candidates[0].text)
		if d.ErrorType == ErrorTypeUnknown && m.errorName != "" {
			d.ErrorType = classify(m.errorName)
		}
		return d
	}

	d.ErrorMessage = f.fallback
	d.ErrorType = classify(m.errorName)
	return d
}

// preferAssert returns the assert-bearing candidate from the highest priority
// sub-pattern, earliest in the log on ties.
func preferAssert(candidates []candidate) (candidate, bool) {
	var best candidate
	found := false
	for _, c := range candidates {
		if !strings.Contains(strings.ToLower(c.text), "assert") {
			continue
		}
		if !found || c.rank < best.rank {
			best, found = c, true
		}
	}
	return best, found
}

func classify(text string) ErrorType {
	if text == "" {
		return ErrorTypeUnknown
	}
	if strings.Contains(strings.ToLower(text), "assert") {
		return ErrorTypeAssertion
	}
	switch errorNameRE.FindString(text) {
	case "":
		return ErrorTypeUnknown
	case "SyntaxError", "IndentationError", "TabError":
		return ErrorTypeSyntax
	case "ImportError", "ModuleNotFoundError":
		return ErrorTypeImport
	default:
		return ErrorTypeRuntime
	}
}

func cleanPath(p string) string {
	return strings.TrimPrefix(strings.TrimSpace(p), "./")
}
