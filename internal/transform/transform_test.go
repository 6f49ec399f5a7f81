// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transform

import (
	"errors"
	"testing"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/table"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func salesTable(t *testing.T) table.Table {
	t.Helper()
	tb := table.New(
		table.Column{Name: "region", Type: table.String},
		table.Column{Name: "sales", Type: table.Number},
	)
	require.NoError(t, tb.Append("east", 10))
	require.NoError(t, tb.Append("west", 20))
	require.NoError(t, tb.Append("east", 5))
	return tb
}

func TestAggregateSumByRegion(t *testing.T) {
	in := salesTable(t)
	out, err := Apply(in, []Step{{Aggregate: &AggregateSpec{
		GroupBy:      []string{"region"},
		Aggregations: []Aggregation{{Column: "sales", Func: Sum}},
	}}})
	require.NoError(t, err)

	assert.Equal(t, []table.Column{
		{Name: "region", Type: table.String},
		{Name: "sum_sales", Type: table.Number},
	}, out.Columns)
	want := [][]any{{"east", 15.0}, {"west", 20.0}}
	if diff := cmp.Diff(want, out.Rows); diff != "" {
		t.Errorf("aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateFunctions(t *testing.T) {
	in := salesTable(t)
	require.NoError(t, in.Append("west", nil))
	out, err := Apply(in, []Step{{Aggregate: &AggregateSpec{
		GroupBy: []string{"region"},
		Aggregations: []Aggregation{
			{Func: Count, As: "n"},
			{Column: "sales", Func: Count, As: "n_sales"},
			{Column: "sales", Func: Avg, As: "avg"},
			{Column: "sales", Func: Min, As: "lo"},
			{Column: "sales", Func: Max, As: "hi"},
		},
	}}})
	require.NoError(t, err)
	want := [][]any{
		{"east", 2.0, 2.0, 7.5, 5.0, 10.0},
		{"west", 2.0, 1.0, 20.0, 20.0, 20.0},
	}
	if diff := cmp.Diff(want, out.Rows); diff != "" {
		t.Errorf("aggregate mismatch (-want +got):\n%s", diff)
	}
}

func TestFilterAndDerive(t *testing.T) {
	in := salesTable(t)
	out, err := Apply(in, []Step{
		{Filter: `sales >= 10`},
		{Derive: &DeriveSpec{Name: "with_tax", Expression: "sales * 1.5"}},
		{Derive: &DeriveSpec{Name: "label", Expression: `upper(region) + "!"`}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "sales", "with_tax", "label"}, out.Names())
	assert.Equal(t, table.Number, out.Columns[2].Type)
	assert.Equal(t, table.String, out.Columns[3].Type)
	want := [][]any{{"east", 10.0, 15.0, "EAST!"}, {"west", 20.0, 30.0, "WEST!"}}
	if diff := cmp.Diff(want, out.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestPivot(t *testing.T) {
	tb := table.New(
		table.Column{Name: "region", Type: table.String},
		table.Column{Name: "quarter", Type: table.String},
		table.Column{Name: "sales", Type: table.Number},
	)
	require.NoError(t, tb.Append("east", "Q1", 10))
	require.NoError(t, tb.Append("east", "Q2", 4))
	require.NoError(t, tb.Append("west", "Q1", 20))
	require.NoError(t, tb.Append("east", "Q1", 5))

	out, err := Apply(tb, []Step{{Pivot: &PivotSpec{Row: "region", Column: "quarter", Value: "sales"}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"region", "Q1", "Q2"}, out.Names())
	want := [][]any{{"east", 15.0, 4.0}, {"west", 20.0, nil}}
	if diff := cmp.Diff(want, out.Rows); diff != "" {
		t.Errorf("pivot mismatch (-want +got):\n%s", diff)
	}
}

func TestEmptyTableNeverFails(t *testing.T) {
	empty := table.New(
		table.Column{Name: "region", Type: table.String},
		table.Column{Name: "sales", Type: table.Number},
	)
	sequences := [][]Step{
		{{Filter: "sales > 0"}},
		{{Derive: &DeriveSpec{Name: "ratio", Expression: "sales / 2"}}},
		{{Aggregate: &AggregateSpec{GroupBy: []string{"region"}, Aggregations: []Aggregation{{Column: "sales", Func: Sum}}}}},
		{{Aggregate: &AggregateSpec{Aggregations: []Aggregation{{Column: "sales", Func: Avg}}}}},
		{
			{Filter: `region != ""`},
			{Derive: &DeriveSpec{Name: "double", Expression: "sales * 2"}},
			{Aggregate: &AggregateSpec{GroupBy: []string{"region"}, Aggregations: []Aggregation{{Column: "double", Func: Max}}}},
		},
	}
	for i, steps := range sequences {
		out, err := Apply(empty, steps)
		require.NoError(t, err, "sequence %d", i)
		assert.Equal(t, 0, out.Len(), "sequence %d", i)
	}
}

func TestFailuresNameTheStep(t *testing.T) {
	tests := []struct {
		name   string
		steps  []Step
		index  int
		reason string
	}{
		{
			name:   "absent column in filter",
			steps:  []Step{{Filter: "revenue > 1"}},
			index:  0,
			reason: "revenue",
		},
		{
			name: "absent group column",
			steps: []Step{
				{Filter: "sales > 1"},
				{Aggregate: &AggregateSpec{GroupBy: []string{"country"}, Aggregations: []Aggregation{{Column: "sales", Func: Sum}}}},
			},
			index:  1,
			reason: `column "country" is absent`,
		},
		{
			name:   "sum over strings",
			steps:  []Step{{Aggregate: &AggregateSpec{Aggregations: []Aggregation{{Column: "region", Func: Sum}}}}},
			index:  0,
			reason: "type mismatch",
		},
		{
			name:   "division by zero",
			steps:  []Step{{Derive: &DeriveSpec{Name: "bad", Expression: "sales / (sales - sales)"}}},
			index:  0,
			reason: "division by zero",
		},
		{
			name:   "no step kind",
			steps:  []Step{{}},
			index:  0,
			reason: "exactly one",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := salesTable(t)
			before := in.Clone()
			_, err := Apply(in, tt.steps)
			require.Error(t, err)
			assert.True(t, errs.Is(err, errs.TransformError))

			var se *StepError
			require.True(t, errors.As(err, &se))
			assert.Equal(t, tt.index, se.Index)
			assert.Contains(t, se.Reason, tt.reason)

			if diff := cmp.Diff(before, in); diff != "" {
				t.Errorf("input was modified (-before +after):\n%s", diff)
			}
		})
	}
}

func TestApplyIsDeterministic(t *testing.T) {
	steps := []Step{
		{Derive: &DeriveSpec{Name: "bucket", Expression: `sales > 8 ? "big" : "small"`}},
		{Pivot: &PivotSpec{Row: "region", Column: "bucket", Value: "sales", Func: Count}},
	}
	a, err := Apply(salesTable(t), steps)
	require.NoError(t, err)
	b, err := Apply(salesTable(t), steps)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestValidateChecksSchemaOnly(t *testing.T) {
	schema := []table.Column{{Name: "region", Type: table.String}, {Name: "sales", Type: table.Number}}
	assert.NoError(t, Validate(schema, []Step{{Filter: "sales > 0"}}))
	assert.Error(t, Validate(schema, []Step{{Filter: "profit > 0"}}))
}

func TestNullOnlyMasksErrorsOfReferencedColumns(t *testing.T) {
	in := table.New(
		table.Column{Name: "name", Type: table.String},
		table.Column{Name: "pattern", Type: table.String},
		table.Column{Name: "note", Type: table.String},
	)
	require.NoError(t, in.Append("abc", "(", nil))

	_, err := Apply(in, []Step{{Filter: "name matches pattern"}})
	require.Error(t, err)
	var se *StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, KindFilter, se.Kind)

	nulls := table.New(
		table.Column{Name: "name", Type: table.String},
		table.Column{Name: "pattern", Type: table.String},
	)
	require.NoError(t, nulls.Append("abc", nil))
	out, err := Apply(nulls, []Step{{Filter: "name matches pattern"}})
	require.NoError(t, err)
	assert.Equal(t, 0, out.Len())
}
