// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transform

import (
	"fmt"

	"reportforge/cli/internal/table"
)

// PivotSpec turns the distinct values of Column into columns, one output row per
// distinct value of Row, with cells aggregated from Value.
type PivotSpec struct {
	Row    string `yaml:"row" json:"row"`
	Column string `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
	// Func defaults to sum.
	Func Func `yaml:"func,omitempty" json:"func,omitempty"`
}

type pivotOp struct {
	rowIdx, colIdx int
	agg            boundAgg
	rowCol         table.Column
}

func compilePivot(spec PivotSpec, in table.Table) (op, error) {
	rowIdx, err := requireColumn(in, spec.Row)
	if err != nil {
		return nil, err
	}
	colIdx, err := requireColumn(in, spec.Column)
	if err != nil {
		return nil, err
	}
	if rowIdx == colIdx {
		return nil, fmt.Errorf("row and column keys must differ")
	}
	fn := spec.Func
	if fn == "" {
		fn = Sum
	}
	agg, err := bindAggregation(Aggregation{Column: spec.Value, Func: fn, As: spec.Value}, in)
	if err != nil {
		return nil, err
	}
	return &pivotOp{rowIdx: rowIdx, colIdx: colIdx, agg: agg, rowCol: in.Columns[rowIdx]}, nil
}

func (p *pivotOp) apply(in table.Table) (table.Table, error) {
	var rowKeys, colKeys []string
	rowVals := map[string]any{}
	colIndex := map[string]int{}
	cells := map[string]map[string]*accumulator{}

	for _, row := range in.Rows {
		rk := groupKey(row, []int{p.rowIdx})
		if _, ok := cells[rk]; !ok {
			cells[rk] = map[string]*accumulator{}
			rowKeys = append(rowKeys, rk)
			rowVals[rk] = row[p.rowIdx]
		}
		ck := table.FormatValue(row[p.colIdx])
		if row[p.colIdx] == nil {
			ck = "(null)"
		}
		if _, ok := colIndex[ck]; !ok {
			if ck == p.rowCol.Name {
				return table.Table{}, fmt.Errorf("pivoted column %q collides with the row key column", ck)
			}
			colIndex[ck] = len(colKeys)
			colKeys = append(colKeys, ck)
		}
		acc, ok := cells[rk][ck]
		if !ok {
			acc = newAccumulator(p.agg)
			cells[rk][ck] = acc
		}
		var v any
		if p.agg.col >= 0 {
			v = row[p.agg.col]
		}
		if err := acc.add(v); err != nil {
			return table.Table{}, err
		}
	}

	cols := []table.Column{p.rowCol}
	for _, ck := range colKeys {
		cols = append(cols, table.Column{Name: ck, Type: p.agg.out.Type})
	}
	out := table.New(cols...)
	for _, rk := range rowKeys {
		r := make([]any, len(cols))
		r[0] = rowVals[rk]
		for ck, acc := range cells[rk] {
			r[colIndex[ck]+1] = acc.result()
		}
		out.Rows = append(out.Rows, r)
	}
	return out, nil
}
