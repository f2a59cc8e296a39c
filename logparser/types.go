/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package logparser

import (
	"errors"
	"time"
)

var (
	// ErrNoFailureFound is returned when no pattern family recognizes a
	// file/line marker in the log.
	ErrNoFailureFound = errors.New("no recognizable test failure in log")

	// ErrIncompleteDescriptor is returned when a descriptor lacks a file path
	// or an error message.
	ErrIncompleteDescriptor = errors.New("failure descriptor is missing file path or error message")
)

// ErrorType classifies the failing error.
type ErrorType string

const (
	ErrorTypeAssertion ErrorType = "assertion"
	ErrorTypeSyntax    ErrorType = "syntax"
	ErrorTypeImport    ErrorType = "import"
	ErrorTypeRuntime   ErrorType = "runtime"
	ErrorTypeUnknown   ErrorType = "unknown"
)

// ParseErrorType maps free-form text (for example a model response) onto a
// known ErrorType, falling back to ErrorTypeUnknown.
func ParseErrorType(s string) ErrorType {
	switch t := ErrorType(s); t {
	case ErrorTypeAssertion, ErrorTypeSyntax, ErrorTypeImport, ErrorTypeRuntime:
		return t
	default:
		return ErrorTypeUnknown
	}
}

// Framework identifies the test framework whose output was recognized.
type Framework string

const (
	FrameworkPytest   Framework = "pytest"
	FrameworkUnittest Framework = "unittest"
	FrameworkGeneric  Framework = "generic"
)

// FailureDescriptor is the structured summary of a single test failure.
type FailureDescriptor struct {
	FilePath     string    `json:"file_path" yaml:"file_path"`
	LineNumber   int       `json:"line_number,omitempty" yaml:"line_number,omitempty"`
	ErrorMessage string    `json:"error_message" yaml:"error_message"`
	ErrorType    ErrorType `json:"error_type" yaml:"error_type"`
	Framework    Framework `json:"framework" yaml:"framework"`
	Explanation  string    `json:"explanation,omitempty" yaml:"explanation,omitempty"`
}

// Validate reports ErrIncompleteDescriptor unless both the file path and the
// error message are set.
func (d FailureDescriptor) Validate() error {
	if d.FilePath == "" || d.ErrorMessage == "" {
		return ErrIncompleteDescriptor
	}
	return nil
}

// TestSummary holds the aggregate counts reported at the end of a test run.
// All fields are zero when the log has no summary line.
type TestSummary struct {
	Passed   int
	Failed   int
	Skipped  int
	Total    int
	Duration time.Duration
}
