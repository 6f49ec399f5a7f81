// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package render turns a table into a business document.
//
// Renderers are deterministic: the same table and layout give the same bytes for the
// same clock. The only time-dependent content (when and by which run the document was
// generated) lives in a single metadata part named by Artifact.MetadataPart, and
// ContentHash ignores that part.
package render

import (
	"context"
	"fmt"
	"strings"
	"time"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/table"
)

// Format is an output document format.
type Format string

const (
	XLSX Format = "xlsx"
	PPTX Format = "pptx"
)

// Ext returns the file extension without the dot.
func (f Format) Ext() string { return string(f) }

// ChartType selects how a chart is drawn.
type ChartType string

const (
	ChartBar    ChartType = "bar"
	ChartColumn ChartType = "column"
	ChartLine   ChartType = "line"
)

// ChartSpec describes an optional chart over the rendered table.
type ChartSpec struct {
	Type     ChartType `yaml:"type" json:"type"`
	Category string    `yaml:"category" json:"category"`
	Values   []string  `yaml:"values" json:"values"`
}

// Layout controls presentation only; it never changes table content.
type Layout struct {
	// Title is the sheet name in a spreadsheet and the title slide text in a deck.
	Title        string            `yaml:"title" json:"title"`
	ColumnOrder  []string          `yaml:"column_order,omitempty" json:"column_order,omitempty"`
	NumberFormat map[string]string `yaml:"number_format,omitempty" json:"number_format,omitempty"`
	Chart        *ChartSpec        `yaml:"chart,omitempty" json:"chart,omitempty"`
}

// Artifact is a rendered document waiting to be published.
type Artifact struct {
	Format   Format
	Content  []byte
	Filename string
	// MetadataPart is the zip entry holding the generation metadata.
	MetadataPart string
}

// Renderer renders a table in one format.
type Renderer interface {
	Format() Format
	Render(ctx context.Context, t table.Table, layout Layout) (Artifact, error)
}

// Options are shared by all renderers of a run.
type Options struct {
	Report string
	RunID  string
	// Now supplies the generation time. Defaults to time.Now.
	Now func() time.Time
	// MaxBytes caps the rendered size. Zero means no cap.
	MaxBytes int
}

func (o Options) now() time.Time {
	if o.Now == nil {
		return time.Now().UTC()
	}
	return o.Now().UTC()
}

// New returns the renderer for format.
func New(format Format, opts Options) (Renderer, error) {
	switch format {
	case XLSX:
		return NewSpreadsheetRenderer(opts), nil
	case PPTX:
		return NewSlideDeckRenderer(opts), nil
	default:
		return nil, errs.Newf(errs.ConfigError, "unsupported output format %q", format)
	}
}

// ArtifactName returns {report}-{timestamp}.{ext}, or {report}-{output}-{timestamp}.{ext}
// when output is set.
func ArtifactName(report, output string, ts time.Time, f Format) string {
	parts := []string{report}
	if output != "" {
		parts = append(parts, output)
	}
	parts = append(parts, ts.UTC().Format("20060102T150405Z"))
	return strings.Join(parts, "-") + "." + f.Ext()
}

// view is a table projected through a layout.
type view struct {
	columns []table.Column
	index   []int
	rows    [][]any
	layout  Layout
	// chart columns, as positions in columns
	category int
	values   []int
}

func renderError(format Format, msg string, err error) error {
	if err == nil {
		return errs.New(errs.RenderError, msg).In(string(format) + " renderer")
	}
	return errs.Wrap(errs.RenderError, msg, err).In(string(format) + " renderer")
}

// project validates layout against t and applies the column order.
func project(format Format, t table.Table, layout Layout) (*view, error) {
	v := &view{layout: layout, category: -1}

	names := layout.ColumnOrder
	if len(names) == 0 {
		names = t.Names()
	}
	seen := map[string]bool{}
	for _, name := range names {
		i := t.Index(name)
		if i < 0 {
			return nil, renderError(format, fmt.Sprintf("layout column %q is not in the table", name), nil)
		}
		if seen[name] {
			return nil, renderError(format, fmt.Sprintf("layout column %q is listed twice", name), nil)
		}
		seen[name] = true
		v.columns = append(v.columns, t.Columns[i])
		v.index = append(v.index, i)
	}
	for name := range layout.NumberFormat {
		if !seen[name] {
			return nil, renderError(format, fmt.Sprintf("number format for column %q which is not rendered", name), nil)
		}
	}

	v.rows = make([][]any, len(t.Rows))
	for r, row := range t.Rows {
		out := make([]any, len(v.index))
		for c, i := range v.index {
			out[c] = row[i]
		}
		v.rows[r] = out
	}

	if ch := layout.Chart; ch != nil {
		switch ch.Type {
		case ChartBar, ChartColumn, ChartLine:
		default:
			return nil, renderError(format, fmt.Sprintf("unknown chart type %q", ch.Type), nil)
		}
		v.category = v.position(ch.Category)
		if v.category < 0 {
			return nil, renderError(format, fmt.Sprintf("chart category column %q is not rendered", ch.Category), nil)
		}
		if len(ch.Values) == 0 {
			return nil, renderError(format, "chart needs at least one value column", nil)
		}
		for _, name := range ch.Values {
			p := v.position(name)
			if p < 0 {
				return nil, renderError(format, fmt.Sprintf("chart value column %q is not rendered", name), nil)
			}
			if v.columns[p].Type != table.Number {
				return nil, renderError(format, fmt.Sprintf("chart value column %q is not numeric", name), nil)
			}
			v.values = append(v.values, p)
		}
	}
	return v, nil
}

func (v *view) position(name string) int {
	for i, c := range v.columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// checkSize enforces the MaxBytes ceiling.
func checkSize(format Format, content []byte, max int) error {
	if max > 0 && len(content) > max {
		return renderError(format, fmt.Sprintf("rendered %s is %d bytes, limit is %d", format, len(content), max), nil)
	}
	return nil
}
