/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package logparser extracts a structured FailureDescriptor from raw CI
// console output.
//
// ParseFailure tries pattern families in a fixed priority order:
//   - pytest: a "path:line:" marker such as "tests/test_main.py:12: AssertionError"
//   - unittest: a `File "path", line N` marker in a log carrying a unittest
//     FAIL/ERROR banner
//   - generic: a `File "path", line N` traceback marker followed by an
//     "<Name>Error:" line
//
// The first family whose file/line marker matches wins. Within that family,
// every line is scanned for message candidates; candidates mentioning "assert"
// are preferred and classified as assertions.
//
// ExtractTestSummary and IsFlaky are secondary helpers that are not part of the
// primary parse path.
package logparser
