/*
Copyright 2025 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package promptbuilder assembles model prompts from developer-authored
// templates with {{name}} placeholders.
//
// Substitution is single pass: text bound into a placeholder is never scanned
// for further placeholders, so file content containing "{{ }}" (Jinja, Go
// templates, Vue) reaches the model exactly as it appears on disk.
//
// Prompts are immutable; every Bind method returns a new Prompt.
package promptbuilder

import (
	"encoding/json"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"
)

// stringLiteral only accepts untyped string constants from callers outside
// this package, keeping templates under developer control.
type stringLiteral string

// Bindable is implemented by request types that know how to bind themselves
// into a prompt.
type Bindable interface {
	Bind(prompt *Prompt) (*Prompt, error)
}

// Prompt is a template together with the values bound so far.
type Prompt struct {
	template string
	values   map[string]*string
}

// NewPrompt parses a template literal and records its placeholders.
func NewPrompt(template stringLiteral) (*Prompt, error) {
	values := make(map[string]*string)
	if _, err := walkTemplate(string(template), func(name string) (string, error) {
		values[name] = nil
		return "", nil
	}); err != nil {
		return nil, err
	}
	return &Prompt{template: string(template), values: values}, nil
}

// MustNewPrompt is NewPrompt for package-level variables; it panics on a
// malformed template.
func MustNewPrompt(template stringLiteral) *Prompt {
	p, err := NewPrompt(template)
	if err != nil {
		panic(err)
	}
	return p
}

// Placeholders returns the set of placeholder names in the template.
func (p *Prompt) Placeholders() map[string]struct{} {
	names := make(map[string]struct{}, len(p.values))
	for name := range p.values {
		names[name] = struct{}{}
	}
	return names
}

// BindText binds a value verbatim.
func (p *Prompt) BindText(name, value string) (*Prompt, error) {
	return p.bind(name, value)
}

// BindJSON binds data marshaled as indented JSON.
func (p *Prompt) BindJSON(name string, data any) (*Prompt, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling %q as JSON: %w", name, err)
	}
	return p.bind(name, string(b))
}

// BindYAML binds data marshaled as YAML.
func (p *Prompt) BindYAML(name string, data any) (*Prompt, error) {
	b, err := yaml.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshaling %q as YAML: %w", name, err)
	}
	return p.bind(name, string(b))
}

func (p *Prompt) bind(name, value string) (*Prompt, error) {
	v, exists := p.values[name]
	if !exists {
		return nil, fmt.Errorf("binding %q not found in template", name)
	}
	if v != nil {
		return nil, fmt.Errorf("binding %q already bound", name)
	}
	next := &Prompt{
		template: p.template,
		values:   maps.Clone(p.values),
	}
	next.values[name] = &value
	return next, nil
}

// Build renders the prompt. Every placeholder must be bound.
func (p *Prompt) Build() (string, error) {
	return walkTemplate(p.template, func(name string) (string, error) {
		v := p.values[name]
		if v == nil {
			return "", fmt.Errorf("unbound placeholder: %s", name)
		}
		return *v, nil
	})
}
