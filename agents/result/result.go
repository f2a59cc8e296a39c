/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package result pulls usable payloads out of free-form model responses,
// which often wrap code or JSON in markdown fences.
package result

import (
	"encoding/json"
	"strings"
)

// ExtractCode unwraps a reply whose remainder is a single fenced block: the
// last non-blank line is a closing ``` and the first line-anchored fence opens
// it, optionally after leading prose. The body is returned byte for byte,
// line endings included. Any other reply is returned unchanged, so fences
// inside a raw file are never mistaken for the answer.
func ExtractCode(responseText string) string {
	lines := strings.SplitAfter(responseText, "\n")

	closing := -1
	for i := len(lines) - 1; i >= 0; i-- {
		if strings.TrimSpace(lines[i]) != "" {
			closing = i
			break
		}
	}
	if closing < 1 || strings.TrimSpace(lines[closing]) != "```" {
		return responseText
	}

	for i, line := range lines[:closing] {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			return strings.Join(lines[i+1:closing], "")
		}
	}
	return responseText
}

// ExtractJSON returns the body of the first ```json block, or the trimmed
// response with any bare ``` fences removed.
func ExtractJSON(responseText string) string {
	if body, ok := fencedBlock(responseText, func(lang string) bool { return lang == "json" }); ok {
		return body
	}
	responseText = strings.TrimSpace(responseText)
	responseText = strings.TrimPrefix(responseText, "```")
	responseText = strings.TrimSuffix(responseText, "```")
	return strings.TrimSpace(responseText)
}

// Extract unmarshals the JSON payload of responseText into T.
func Extract[T any](responseText string) (T, error) {
	var out T
	if err := json.Unmarshal([]byte(ExtractJSON(responseText)), &out); err != nil {
		return out, err
	}
	return out, nil
}

// fencedBlock finds the first line-anchored ``` fence whose language tag
// satisfies accept and returns the lines up to the closing fence. An
// unterminated block runs to the end of the text.
func fencedBlock(text string, accept func(lang string) bool) (string, bool) {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "```") {
			continue
		}
		lang := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(trimmed, "```")))
		if !accept(lang) {
			continue
		}
		var body []string
		for _, l := range lines[i+1:] {
			if strings.TrimSpace(l) == "```" {
				break
			}
			body = append(body, l)
		}
		return strings.Join(body, "\n"), true
	}
	return "", false
}
