/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package schema_test

import (
	"encoding/json"
	"testing"

	"chainguard.dev/selfheal/agents/schema"
	"github.com/google/go-cmp/cmp"
)

type analysis struct {
	FilePath   string `json:"file_path" jsonschema:"required,description=Path of the failing file"`
	LineNumber int    `json:"line_number,omitempty" jsonschema:"description=Line of the failure"`
	Notes      []note `json:"notes,omitempty"`
}

type note struct {
	Text string `json:"text" jsonschema:"description=Free-form note"`
}

func TestReflectType(t *testing.T) {
	s := schema.ReflectType[analysis]()
	if s == nil {
		t.Fatal("ReflectType() = nil")
	}
	if s.Type != "object" {
		t.Errorf("Type = %q, wanted object", s.Type)
	}
	if diff := cmp.Diff([]string{"file_path"}, s.Required); diff != "" {
		t.Errorf("Required mismatch (-want +got):\n%s", diff)
	}

	fp, ok := s.Properties.Get("file_path")
	if !ok {
		t.Fatal("missing file_path property")
	}
	if fp.Description != "Path of the failing file" {
		t.Errorf("file_path description = %q", fp.Description)
	}

	notes, ok := s.Properties.Get("notes")
	if !ok || notes.Type != "array" {
		t.Fatalf("notes = %+v, wanted array", notes)
	}
	if _, ok := notes.Items.Properties.Get("text"); !ok {
		t.Error("nested note schema was not inlined")
	}
}

func TestJSON(t *testing.T) {
	out, err := schema.JSON[analysis]()
	if err != nil {
		t.Fatalf("JSON() error = %v", err)
	}

	var decoded struct {
		Type       string         `json:"type"`
		Required   []string       `json:"required"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal([]byte(out), &decoded); err != nil {
		t.Fatalf("JSON() produced invalid JSON: %v\n%s", err, out)
	}
	if decoded.Type != "object" {
		t.Errorf("type = %q, wanted object", decoded.Type)
	}
	for _, name := range []string{"file_path", "line_number", "notes"} {
		if _, ok := decoded.Properties[name]; !ok {
			t.Errorf("missing property %q in %s", name, out)
		}
	}
}
