/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package main

import (
	"io"
	"strconv"
	"time"

	"chainguard.dev/selfheal/healer"
	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
)

func newSummaryTable(w io.Writer) *tablewriter.Table {
	cfg := tablewriter.Config{
		Header: tw.CellConfig{
			Alignment:  tw.CellAlignment{Global: tw.AlignLeft},
			Formatting: tw.CellFormatting{AutoFormat: tw.Off},
		},
		Row: tw.CellConfig{
			Alignment: tw.CellAlignment{Global: tw.AlignLeft},
		},
		MaxWidth: 100,
		Behavior: tw.Behavior{TrimSpace: tw.Off},
	}
	return tablewriter.NewTable(w,
		tablewriter.WithConfig(cfg),
		tablewriter.WithHeader([]string{"Field", "Value"}),
		tablewriter.WithRenderer(renderer.NewBlueprint()),
		tablewriter.WithRendition(tw.Rendition{
			Symbols: tw.NewSymbols(tw.StyleMarkdown),
			Borders: tw.Border{Left: tw.On, Top: tw.Off, Right: tw.On, Bottom: tw.Off},
		}),
		tablewriter.WithRowAutoWrap(tw.WrapNone),
	)
}

// summaryRows lists the populated fields of s in display order.
func summaryRows(s healer.Summary) [][]string {
	rows := [][]string{
		{"Session", s.SessionID},
		{"Success", strconv.FormatBool(s.Success)},
		{"Status", string(s.Status)},
		{"Branch", s.Branch},
	}
	for _, r := range [][]string{
		{"File", s.FilePath},
		{"Error Type", s.ErrorType},
		{"Error Message", s.ErrorMessage},
		{"Pull Request", s.PRURL},
		{"Failed Stage", string(s.FailedStage)},
		{"Error", s.Error},
	} {
		if r[1] != "" {
			rows = append(rows, r)
		}
	}
	return append(rows, []string{"Duration", s.Duration.Round(time.Millisecond).String()})
}

func printSummary(w io.Writer, s healer.Summary) error {
	t := newSummaryTable(w)
	for _, r := range summaryRows(s) {
		if err := t.Append(r); err != nil {
			return err
		}
	}
	return t.Render()
}
