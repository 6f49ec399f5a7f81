// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transform

import (
	"fmt"
	"strings"
	"time"

	"reportforge/cli/internal/table"
)

// Func is an aggregation function.
type Func string

const (
	Sum   Func = "sum"
	Count Func = "count"
	Avg   Func = "avg"
	Min   Func = "min"
	Max   Func = "max"
)

// Aggregation computes one output column.
type Aggregation struct {
	// Column is the input column. Count accepts "" or "*" to count rows.
	Column string `yaml:"column" json:"column"`
	Func   Func   `yaml:"func" json:"func"`
	// As names the output column; defaults to "<func>_<column>".
	As string `yaml:"as,omitempty" json:"as,omitempty"`
}

// AggregateSpec groups rows by key columns and computes aggregations per group.
type AggregateSpec struct {
	GroupBy      []string      `yaml:"group_by" json:"group_by"`
	Aggregations []Aggregation `yaml:"aggregations" json:"aggregations"`
}

// boundAgg is an Aggregation resolved against a schema.
type boundAgg struct {
	fn     Func
	col    int // -1 counts rows
	out    table.Column
	inType table.Type
}

func bindAggregation(a Aggregation, in table.Table) (boundAgg, error) {
	b := boundAgg{fn: Func(strings.ToLower(string(a.Func))), col: -1}
	switch b.fn {
	case Sum, Count, Avg, Min, Max:
	default:
		return b, fmt.Errorf("unknown aggregation function %q", a.Func)
	}
	if b.fn == Count && (a.Column == "" || a.Column == "*") {
		b.out = table.Column{Name: outName(a, "rows"), Type: table.Number}
		return b, nil
	}
	idx, err := requireColumn(in, a.Column)
	if err != nil {
		return b, err
	}
	b.col = idx
	b.inType = in.Columns[idx].Type
	switch b.fn {
	case Sum, Avg:
		if b.inType != table.Number {
			return b, fmt.Errorf("type mismatch: %s(%s) needs a number column, got %s", b.fn, a.Column, b.inType)
		}
		b.out = table.Column{Name: outName(a, a.Column), Type: table.Number}
	case Count:
		b.out = table.Column{Name: outName(a, a.Column), Type: table.Number}
	case Min, Max:
		b.out = table.Column{Name: outName(a, a.Column), Type: b.inType}
	}
	return b, nil
}

func outName(a Aggregation, col string) string {
	if a.As != "" {
		return a.As
	}
	return fmt.Sprintf("%s_%s", strings.ToLower(string(a.Func)), col)
}

// accumulator folds values of one group. Nulls are skipped.
type accumulator struct {
	fn    Func
	n     int
	sum   float64
	best  any
	rows  int
	isRow bool
}

func newAccumulator(b boundAgg) *accumulator {
	return &accumulator{fn: b.fn, isRow: b.col < 0}
}

func (a *accumulator) add(v any) error {
	a.rows++
	if a.isRow || v == nil {
		return nil
	}
	a.n++
	switch a.fn {
	case Sum, Avg:
		f, ok := v.(float64)
		if !ok {
			return fmt.Errorf("type mismatch: %s over %T", a.fn, v)
		}
		a.sum += f
	case Min, Max:
		if a.best == nil {
			a.best = v
			return nil
		}
		c, err := compareValues(v, a.best)
		if err != nil {
			return err
		}
		if (a.fn == Min && c < 0) || (a.fn == Max && c > 0) {
			a.best = v
		}
	}
	return nil
}

func (a *accumulator) result() any {
	switch a.fn {
	case Count:
		if a.isRow {
			return float64(a.rows)
		}
		return float64(a.n)
	case Sum:
		if a.n == 0 {
			return nil
		}
		return a.sum
	case Avg:
		if a.n == 0 {
			return nil
		}
		return a.sum / float64(a.n)
	default:
		return a.best
	}
}

// compareValues orders two non-null scalars of the same type.
func compareValues(a, b any) (int, error) {
	switch x := a.(type) {
	case float64:
		y, ok := b.(float64)
		if !ok {
			break
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case string:
		y, ok := b.(string)
		if !ok {
			break
		}
		return strings.Compare(x, y), nil
	case time.Time:
		y, ok := b.(time.Time)
		if !ok {
			break
		}
		return x.Compare(y), nil
	}
	return 0, fmt.Errorf("type mismatch: cannot compare %T with %T", a, b)
}

// groupKey builds a collision-free key for the values of the group columns.
func groupKey(row []any, idx []int) string {
	var b strings.Builder
	for _, i := range idx {
		v := row[i]
		if v == nil {
			b.WriteString("n|")
			continue
		}
		s := table.FormatValue(v)
		fmt.Fprintf(&b, "%s%d:%s|", table.TypeOf(v), len(s), s)
	}
	return b.String()
}

type aggregateOp struct {
	groupIdx []int
	aggs     []boundAgg
	columns  []table.Column
}

func compileAggregate(spec AggregateSpec, in table.Table) (op, error) {
	if len(spec.Aggregations) == 0 {
		return nil, fmt.Errorf("aggregate needs at least one aggregation")
	}
	o := &aggregateOp{}
	seen := map[string]bool{}
	for _, g := range spec.GroupBy {
		idx, err := requireColumn(in, g)
		if err != nil {
			return nil, err
		}
		o.groupIdx = append(o.groupIdx, idx)
		o.columns = append(o.columns, in.Columns[idx])
		seen[g] = true
	}
	for _, a := range spec.Aggregations {
		b, err := bindAggregation(a, in)
		if err != nil {
			return nil, err
		}
		if seen[b.out.Name] {
			return nil, fmt.Errorf("duplicate output column %q", b.out.Name)
		}
		seen[b.out.Name] = true
		o.aggs = append(o.aggs, b)
		o.columns = append(o.columns, b.out)
	}
	return o, nil
}

// apply emits one row per distinct group, in order of first appearance.
// An empty input yields an empty output, with or without group columns.
func (o *aggregateOp) apply(in table.Table) (table.Table, error) {
	type group struct {
		key  []any
		accs []*accumulator
	}
	var order []*group
	groups := map[string]*group{}

	for _, row := range in.Rows {
		k := groupKey(row, o.groupIdx)
		g, ok := groups[k]
		if !ok {
			g = &group{key: make([]any, len(o.groupIdx)), accs: make([]*accumulator, len(o.aggs))}
			for i, idx := range o.groupIdx {
				g.key[i] = row[idx]
			}
			for i, b := range o.aggs {
				g.accs[i] = newAccumulator(b)
			}
			groups[k] = g
			order = append(order, g)
		}
		for i, b := range o.aggs {
			var v any
			if b.col >= 0 {
				v = row[b.col]
			}
			if err := g.accs[i].add(v); err != nil {
				return table.Table{}, err
			}
		}
	}

	out := table.New(o.columns...)
	for _, g := range order {
		r := make([]any, 0, len(o.columns))
		r = append(r, g.key...)
		for _, acc := range g.accs {
			r = append(r, acc.result())
		}
		out.Rows = append(out.Rows, r)
	}
	return out, nil
}
