/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package config

import (
	"fmt"
	"strings"
)

// MissingError lists required environment variables that were not set.
type MissingError struct {
	Vars []string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required configuration: %s", strings.Join(e.Vars, ", "))
}

// InvalidError reports a variable whose value cannot be used.
type InvalidError struct {
	Var    string
	Value  string
	Reason string
}

func (e *InvalidError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("invalid %s %q: %s", e.Var, e.Value, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Var, e.Reason)
}
