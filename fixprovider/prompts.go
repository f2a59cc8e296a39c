/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package fixprovider

import (
	"strconv"

	"chainguard.dev/selfheal/agents/promptbuilder"
	"chainguard.dev/selfheal/logparser"
)

var fixSystemPrompt = promptbuilder.MustNewPrompt(`You are an automated code repair agent. A test in a CI run has failed.

Rules:
- Return ONLY the complete corrected file. No explanations, no commentary.
- Make the smallest change that makes the failing test pass.
- Fix the code under test when the test is correct. Change the test itself only when it is provably wrong (for example asserting 2 + 2 == 5).
- Preserve imports, formatting and unrelated code exactly.`)

var fixUserPrompt = promptbuilder.MustNewPrompt(`A test failed with the following error.

File: {{file_path}}
Line: {{line_number}}
Error type: {{error_type}}
Error message:
{{error_message}}

Current content of {{file_path}}:
<<<FILE
{{file_content}}
FILE

Return the corrected content of the entire file.`)

var analyzeSystemPrompt = promptbuilder.MustNewPrompt(`You read CI logs and identify the single test failure that caused the run to fail.
Respond with one JSON object matching the schema you are given and nothing else.`)

var analyzeUserPrompt = promptbuilder.MustNewPrompt(`Identify the failing file and error in this CI log.

JSON schema of the expected response:
{{schema}}

Log (most recent output last):
{{log}}`)

// fixRequest carries the values bound into fixUserPrompt.
type fixRequest struct {
	content    string
	descriptor logparser.FailureDescriptor
}

var _ promptbuilder.Bindable = fixRequest{}

func (r fixRequest) Bind(p *promptbuilder.Prompt) (*promptbuilder.Prompt, error) {
	line := "unknown"
	if r.descriptor.LineNumber > 0 {
		line = strconv.Itoa(r.descriptor.LineNumber)
	}
	errorType := r.descriptor.ErrorType
	if errorType == "" {
		errorType = logparser.ErrorTypeUnknown
	}

	return bindAll(p, map[string]string{
		"file_path":     r.descriptor.FilePath,
		"line_number":   line,
		"error_type":    string(errorType),
		"error_message": r.descriptor.ErrorMessage,
		"file_content":  r.content,
	})
}

// bindAll binds every value as verbatim text.
func bindAll(p *promptbuilder.Prompt, values map[string]string) (*promptbuilder.Prompt, error) {
	var err error
	for name, value := range values {
		if p, err = p.BindText(name, value); err != nil {
			return nil, err
		}
	}
	return p, nil
}
