// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package table

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendCoercesToSchema(t *testing.T) {
	tb := New(Column{Name: "region", Type: String}, Column{Name: "sales", Type: Number}, Column{Name: "day", Type: Date})
	require.NoError(t, tb.Append("east", int64(10), "2025-03-01"))
	require.NoError(t, tb.Append("west", "20.5", time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, tb.Append(nil, nil, nil))

	want := [][]any{
		{"east", 10.0, time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		{"west", 20.5, time.Date(2025, 3, 2, 0, 0, 0, 0, time.UTC)},
		{nil, nil, nil},
	}
	if diff := cmp.Diff(want, tb.Rows); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAppendRejectsBadValues(t *testing.T) {
	tb := New(Column{Name: "sales", Type: Number})
	assert.Error(t, tb.Append("lots"))
	assert.Error(t, tb.Append(1, 2))
	assert.Equal(t, 0, tb.Len())
}

func TestCloneIsIndependent(t *testing.T) {
	tb := New(Column{Name: "a", Type: Number})
	require.NoError(t, tb.Append(1))
	c := tb.Clone()
	c.Rows[0][0] = 99.0
	c.Columns[0].Name = "b"
	assert.Equal(t, 1.0, tb.Rows[0][0])
	assert.Equal(t, "a", tb.Columns[0].Name)
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{nil, ""},
		{"x", "x"},
		{15.0, "15"},
		{12.5, "12.5"},
		{-3.0, "-3"},
		{time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC), "2025-01-02"},
		{time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), "2025-01-02T03:04:05Z"},
	}
	for _, tt := range tests {
		if got := FormatValue(tt.in); got != tt.want {
			t.Errorf("FormatValue(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestIndexAndRecords(t *testing.T) {
	tb := New(Column{Name: "region", Type: String}, Column{Name: "sales", Type: Number})
	require.NoError(t, tb.Append("east", 10))
	assert.Equal(t, 1, tb.Index("sales"))
	assert.Equal(t, -1, tb.Index("missing"))
	assert.Equal(t, []string{"region", "sales"}, tb.Names())
	assert.Equal(t, []map[string]any{{"region": "east", "sales": 10.0}}, tb.Records())
}
