// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package render

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"reportforge/cli/internal/table"

	"github.com/xuri/excelize/v2"
)

const (
	metaSheet     = "_meta"
	metaSheetPart = "xl/worksheets/sheet2.xml"
	defaultSheet  = "Report"
	dateFormat    = "yyyy-mm-dd"
)

// SpreadsheetRenderer writes one data sheet and a hidden metadata sheet.
type SpreadsheetRenderer struct {
	opts Options
}

func NewSpreadsheetRenderer(opts Options) *SpreadsheetRenderer {
	return &SpreadsheetRenderer{opts: opts}
}

func (r *SpreadsheetRenderer) Format() Format { return XLSX }

func (r *SpreadsheetRenderer) Render(ctx context.Context, t table.Table, layout Layout) (Artifact, error) {
	v, err := project(XLSX, t, layout)
	if err != nil {
		return Artifact{}, err
	}
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := SheetName(layout.Title)
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return Artifact{}, renderError(XLSX, "name data sheet", err)
	}
	if err := writeDataSheet(f, sheet, v); err != nil {
		return Artifact{}, renderError(XLSX, "write data sheet", err)
	}
	if v.layout.Chart != nil && len(v.rows) > 0 {
		if err := addChart(f, sheet, v); err != nil {
			return Artifact{}, renderError(XLSX, "add chart", err)
		}
	}
	if err := writeMetaSheet(f, r.opts, r.opts.now()); err != nil {
		return Artifact{}, renderError(XLSX, "write metadata sheet", err)
	}
	f.SetActiveSheet(0)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return Artifact{}, renderError(XLSX, "serialize workbook", err)
	}
	content, err := repack(buf.Bytes())
	if err != nil {
		return Artifact{}, renderError(XLSX, "pack workbook", err)
	}
	if err := checkSize(XLSX, content, r.opts.MaxBytes); err != nil {
		return Artifact{}, err
	}
	return Artifact{Format: XLSX, Content: content, MetadataPart: metaSheetPart}, nil
}

// SheetName turns a title into a valid worksheet name.
func SheetName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case ':', '\\', '/', '?', '*', '[', ']':
			return '_'
		}
		return r
	}, strings.TrimSpace(title))
	name = strings.Trim(name, "'")
	if utf8.RuneCountInString(name) > 31 {
		name = string([]rune(name)[:31])
	}
	if name == "" || strings.EqualFold(name, metaSheet) {
		return defaultSheet
	}
	return name
}

func writeDataSheet(f *excelize.File, sheet string, v *view) error {
	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"D9E1F2"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for c, col := range v.columns {
		cell, err := excelize.CoordinatesToCellName(c+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStr(sheet, cell, col.Name); err != nil {
			return err
		}
	}
	if len(v.columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(v.columns), 1)
		if err := f.SetCellStyle(sheet, "A1", last, header); err != nil {
			return err
		}
	}

	for r, row := range v.rows {
		for c, val := range row {
			if val == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			switch x := val.(type) {
			case string:
				err = f.SetCellStr(sheet, cell, x)
			case float64:
				err = f.SetCellFloat(sheet, cell, x, -1, 64)
			case time.Time:
				err = f.SetCellValue(sheet, cell, x)
			default:
				err = f.SetCellStr(sheet, cell, table.FormatValue(x))
			}
			if err != nil {
				return err
			}
		}
	}

	// Column styles go on after the values so they replace any default date style.
	for c, col := range v.columns {
		numFmt := v.layout.NumberFormat[col.Name]
		if numFmt == "" && col.Type == table.Date {
			numFmt = dateFormat
		}
		name, err := excelize.ColumnNumberToName(c + 1)
		if err != nil {
			return err
		}
		if numFmt != "" && len(v.rows) > 0 {
			style, err := f.NewStyle(&excelize.Style{CustomNumFmt: &numFmt})
			if err != nil {
				return err
			}
			if err := f.SetCellStyle(sheet, fmt.Sprintf("%s2", name), fmt.Sprintf("%s%d", name, len(v.rows)+1), style); err != nil {
				return err
			}
		}
		if err := f.SetColWidth(sheet, name, name, columnWidth(col, v.rows, c)); err != nil {
			return err
		}
	}

	return f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

// columnWidth sizes a column to its longest rendered value.
func columnWidth(col table.Column, rows [][]any, c int) float64 {
	width := utf8.RuneCountInString(col.Name)
	for _, row := range rows {
		if n := utf8.RuneCountInString(table.FormatValue(row[c])); n > width {
			width = n
		}
	}
	w := float64(width + 2)
	switch {
	case w < 8:
		return 8
	case w > 60:
		return 60
	}
	return w
}

var chartTypes = map[ChartType]excelize.ChartType{
	ChartBar:    excelize.Bar,
	ChartColumn: excelize.Col,
	ChartLine:   excelize.Line,
}

func addChart(f *excelize.File, sheet string, v *view) error {
	ch := v.layout.Chart
	lastRow := len(v.rows) + 1
	ref := func(col int, from, to int) string {
		name, _ := excelize.ColumnNumberToName(col + 1)
		return fmt.Sprintf("'%s'!$%s$%d:$%s$%d", sheet, name, from, name, to)
	}

	series := make([]excelize.ChartSeries, 0, len(v.values))
	for _, p := range v.values {
		hdr, _ := excelize.CoordinatesToCellName(p+1, 1, true)
		series = append(series, excelize.ChartSeries{
			Name:       fmt.Sprintf("'%s'!%s", sheet, hdr),
			Categories: ref(v.category, 2, lastRow),
			Values:     ref(p, 2, lastRow),
		})
	}

	anchor, err := excelize.CoordinatesToCellName(len(v.columns)+2, 2)
	if err != nil {
		return err
	}
	title := v.layout.Title
	if title == "" {
		title = strings.Join(ch.Values, ", ")
	}
	return f.AddChart(sheet, anchor, &excelize.Chart{
		Type:      chartTypes[ch.Type],
		Series:    series,
		Title:     []excelize.RichTextRun{{Text: title}},
		Legend:    excelize.ChartLegend{Position: "bottom"},
		Dimension: excelize.ChartDimension{Width: 640, Height: 360},
	})
}

// writeMetaSheet records the run in a hidden sheet. Values are inline strings so
// they never reach the shared string table.
func writeMetaSheet(f *excelize.File, opts Options, generated time.Time) error {
	if _, err := f.NewSheet(metaSheet); err != nil {
		return err
	}
	rows := [][2]string{
		{"report", opts.Report},
		{"run_id", opts.RunID},
		{"generated_at", generated.Format(time.RFC3339)},
	}
	for i, kv := range rows {
		if err := f.SetCellDefault(metaSheet, fmt.Sprintf("A%d", i+1), kv[0]); err != nil {
			return err
		}
		if err := f.SetCellDefault(metaSheet, fmt.Sprintf("B%d", i+1), kv[1]); err != nil {
			return err
		}
	}
	return f.SetSheetVisible(metaSheet, false)
}
