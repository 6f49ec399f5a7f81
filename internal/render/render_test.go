// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/table"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func day(d int) time.Time { return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC) }

func salesTable(n int) table.Table {
	t := table.New(
		table.Column{Name: "region", Type: table.String},
		table.Column{Name: "sales", Type: table.Number},
		table.Column{Name: "day", Type: table.Date},
	)
	regions := []string{"east", "west", "north"}
	for i := 0; i < n; i++ {
		t.Rows = append(t.Rows, []any{regions[i%3], float64(10*i) + 0.5, day(1 + i%28)})
	}
	return t
}

func fixedClock(ts time.Time) func() time.Time { return func() time.Time { return ts } }

func renderers(now func() time.Time) []Renderer {
	opts := Options{Report: "sales", RunID: "a1b2c3d4", Now: now}
	return []Renderer{NewSpreadsheetRenderer(opts), NewSlideDeckRenderer(opts)}
}

var chartLayout = Layout{
	Title:        "Sales by region",
	ColumnOrder:  []string{"region", "sales", "day"},
	NumberFormat: map[string]string{"sales": "#,##0.00"},
	Chart:        &ChartSpec{Type: ChartColumn, Category: "region", Values: []string{"sales"}},
}

func TestRenderIsDeterministic(t *testing.T) {
	tbl := salesTable(20)
	t1 := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	t2 := t1.Add(36 * time.Hour)

	for i, r := range renderers(fixedClock(t1)) {
		t.Run(string(r.Format()), func(t *testing.T) {
			a, err := r.Render(context.Background(), tbl, chartLayout)
			require.NoError(t, err)
			for n := 0; n < 8; n++ {
				b, err := r.Render(context.Background(), tbl, chartLayout)
				require.NoError(t, err)
				require.True(t, bytes.Equal(a.Content, b.Content), "same clock must give identical bytes (render %d)", n+2)
			}

			later := renderers(fixedClock(t2))[i]
			c, err := later.Render(context.Background(), tbl, chartLayout)
			require.NoError(t, err)
			assert.False(t, bytes.Equal(a.Content, c.Content))

			ha, err := ContentHash(a)
			require.NoError(t, err)
			hc, err := ContentHash(c)
			require.NoError(t, err)
			assert.Equal(t, ha, hc)
		})
	}
}

func TestContentTypesAreSorted(t *testing.T) {
	const head = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` +
		`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`
	a := head + `<Default Extension="tiff" ContentType="image/tiff"/><Default Extension="bmp" ContentType="image/bmp"/>` +
		`<Override PartName="/xl/workbook.xml" ContentType="wb"/><Override PartName="/xl/drawings/drawing1.xml" ContentType="d"/></Types>`
	b := head + `<Default Extension="bmp" ContentType="image/bmp"/><Default Extension="tiff" ContentType="image/tiff"/>` +
		`<Override PartName="/xl/drawings/drawing1.xml" ContentType="d"/><Override PartName="/xl/workbook.xml" ContentType="wb"/></Types>`

	ca, err := canonicalContentTypes([]byte(a))
	require.NoError(t, err)
	cb, err := canonicalContentTypes([]byte(b))
	require.NoError(t, err)
	assert.Equal(t, string(ca), string(cb))
	assert.Less(t, strings.Index(string(ca), `"bmp"`), strings.Index(string(ca), `"tiff"`))
	assert.Contains(t, string(ca), `xmlns="http://schemas.openxmlformats.org/package/2006/content-types"`)
}

func TestSpreadsheetRoundTrip(t *testing.T) {
	tbl := salesTable(5)
	r := NewSpreadsheetRenderer(Options{Report: "sales", RunID: "a1b2c3d4", Now: fixedClock(day(2))})
	a, err := r.Render(context.Background(), tbl, Layout{Title: "Sales: Q1/2025"})
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(a.Content))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Sales_ Q1_2025", "_meta"}, f.GetSheetList())
	got, err := f.GetRows("Sales_ Q1_2025")
	require.NoError(t, err)

	want := [][]string{tbl.Names()}
	for _, row := range tbl.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = table.FormatValue(v)
		}
		want = append(want, cells)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}

	typ, err := f.GetCellType("Sales_ Q1_2025", "B2")
	require.NoError(t, err)
	assert.NotEqual(t, excelize.CellTypeSharedString, typ)

	visible, err := f.GetSheetVisible("_meta")
	require.NoError(t, err)
	assert.False(t, visible)
	runID, err := f.GetCellValue("_meta", "B2")
	require.NoError(t, err)
	assert.Equal(t, "a1b2c3d4", runID)
}

func TestSpreadsheetNumberFormatAndChart(t *testing.T) {
	r := NewSpreadsheetRenderer(Options{Report: "sales", Now: fixedClock(day(2))})
	a, err := r.Render(context.Background(), salesTable(3), chartLayout)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(a.Content))
	require.NoError(t, err)
	defer f.Close()

	v, err := f.GetCellValue("Sales by region", "B4")
	require.NoError(t, err)
	assert.Equal(t, "20.50", v)

	parts, err := readZip(a.Content)
	require.NoError(t, err)
	names := map[string]bool{}
	for _, p := range parts {
		names[p.name] = true
	}
	assert.True(t, names["xl/charts/chart1.xml"])
	assert.True(t, names[metaSheetPart])
}

func TestSlideDeckStructure(t *testing.T) {
	r := NewSlideDeckRenderer(Options{Report: "sales", RunID: "a1b2c3d4", Now: fixedClock(day(2))})
	a, err := r.Render(context.Background(), salesTable(20), chartLayout)
	require.NoError(t, err)

	// title, two table pages, chart, metadata
	assert.Equal(t, "ppt/slides/slide5.xml", a.MetadataPart)

	parts, err := readZip(a.Content)
	require.NoError(t, err)
	byName := map[string][]byte{}
	for _, p := range parts {
		byName[p.name] = p.data
		if strings.HasSuffix(p.name, ".xml") || strings.HasSuffix(p.name, ".rels") {
			assert.NoError(t, wellFormed(p.data), p.name)
		}
	}
	assert.Contains(t, string(byName["ppt/slides/slide2.xml"]), "Sales by region (1/2)")
	assert.Contains(t, string(byName["ppt/slides/slide2.xml"]), "<a:t>10.50</a:t>")
	assert.Contains(t, string(byName[a.MetadataPart]), "a1b2c3d4")
	assert.NotContains(t, string(byName["ppt/slides/slide1.xml"]), "a1b2c3d4")
	assert.Contains(t, string(byName["ppt/presentation.xml"]), `cx="12192000" cy="6858000"`)
}

func wellFormed(data []byte) error {
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		_, err := d.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func TestEmptyTableRenders(t *testing.T) {
	for _, r := range renderers(fixedClock(day(1))) {
		a, err := r.Render(context.Background(), salesTable(0), chartLayout)
		require.NoError(t, err, r.Format())
		assert.NotEmpty(t, a.Content)
	}
}

func TestRenderErrors(t *testing.T) {
	tests := []struct {
		name   string
		layout Layout
		opts   Options
	}{
		{name: "absent column", layout: Layout{ColumnOrder: []string{"region", "profit"}}},
		{name: "format for hidden column", layout: Layout{ColumnOrder: []string{"region"}, NumberFormat: map[string]string{"sales": "0"}}},
		{name: "text chart values", layout: Layout{Chart: &ChartSpec{Type: ChartBar, Category: "sales", Values: []string{"region"}}}},
		{name: "unknown chart", layout: Layout{Chart: &ChartSpec{Type: "pie", Category: "region", Values: []string{"sales"}}}},
		{name: "too large", opts: Options{MaxBytes: 100}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.opts.Now = fixedClock(day(1))
			for _, r := range []Renderer{NewSpreadsheetRenderer(tt.opts), NewSlideDeckRenderer(tt.opts)} {
				_, err := r.Render(context.Background(), salesTable(3), tt.layout)
				require.Error(t, err)
				e, ok := errs.As(err)
				require.True(t, ok)
				assert.Equal(t, errs.RenderError, e.Kind)
				assert.Contains(t, e.Component, string(r.Format()))
			}
		})
	}
}

func TestArtifactName(t *testing.T) {
	ts := time.Date(2025, 3, 1, 8, 4, 5, 0, time.FixedZone("CET", 3600))
	assert.Equal(t, "sales-20250301T070405Z.xlsx", ArtifactName("sales", "", ts, XLSX))
	assert.Equal(t, "sales-deck-20250301T070405Z.pptx", ArtifactName("sales", "deck", ts, PPTX))
}

func TestFormatNumber(t *testing.T) {
	tests := map[string]struct {
		in   float64
		want string
	}{
		"0.00":     {in: 3.14159, want: "3.14"},
		"#,##0":    {in: 1234567.8, want: "1,234,568"},
		"#,##0.00": {in: -1234.5, want: "-1,234.50"},
		"0.0%":     {in: 0.256, want: "25.6%"},
		"0":        {in: 7, want: "7"},
	}
	for format, tt := range tests {
		assert.Equal(t, tt.want, formatNumber(tt.in, format), format)
	}
}

func TestSheetName(t *testing.T) {
	assert.Equal(t, "Report", SheetName(""))
	assert.Equal(t, "Report", SheetName("_META"))
	assert.Equal(t, "a_b", SheetName("a/b"))
	assert.Len(t, []rune(SheetName(strings.Repeat("x", 40))), 31)
}
