/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package healer

import (
	_ "embed"
	"fmt"
	"path"
	"strings"
	"text/template"
	"unicode"

	"chainguard.dev/selfheal/logparser"
)

// Version is reported in pull request bodies.
const Version = "1.0.0"

//go:embed templates/pr_body.md.tmpl
var prBodySource string

var prBodyTemplate = template.Must(template.New("pr_body").Parse(prBodySource))

// prBodyData is the input to prBodyTemplate.
type prBodyData struct {
	logparser.FailureDescriptor
	Flaky     bool
	Tests     logparser.TestSummary
	SessionID string
	Version   string
	Model     string
}

func renderPRBody(data prBodyData) (string, error) {
	var sb strings.Builder
	if err := prBodyTemplate.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("rendering pull request body: %w", err)
	}
	return sb.String(), nil
}

// prTitle renders "AI Fix: <Type> in <file>".
func prTitle(d logparser.FailureDescriptor) string {
	kind := string(d.ErrorType)
	if kind == "" {
		kind = "error"
	}
	return fmt.Sprintf("AI Fix: %s in %s", titleCase(kind), path.Base(d.FilePath))
}

// commitMessage truncates the error message to 50 characters.
func commitMessage(d logparser.FailureDescriptor) string {
	msg := []rune(d.ErrorMessage)
	if len(msg) > 50 {
		msg = msg[:50]
	}
	return fmt.Sprintf("fix: AI repair for %s...", string(msg))
}

func titleCase(s string) string {
	out := []rune(s)
	for i, r := range out {
		if i == 0 || !unicode.IsLetter(out[i-1]) {
			out[i] = unicode.ToUpper(r)
		} else {
			out[i] = unicode.ToLower(r)
		}
	}
	return string(out)
}
