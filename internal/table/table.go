// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package table defines the tabular result passed between extraction, transformation
// and rendering. A Table has a fixed, ordered schema and rows of typed scalars:
// string, float64, time.Time or nil.
package table

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Type is the logical type of a column.
type Type string

const (
	String Type = "string"
	Number Type = "number"
	Date   Type = "date"
)

// Column describes one column of the schema.
type Column struct {
	Name string `json:"name"`
	Type Type   `json:"type"`
}

// Table is an ordered schema plus rows. Rows[i][j] holds the value of Columns[j].
type Table struct {
	Columns []Column `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// New returns an empty table with the given schema.
func New(cols ...Column) Table {
	return Table{Columns: append([]Column(nil), cols...), Rows: [][]any{}}
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Index returns the position of the named column, or -1.
func (t Table) Index(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	if i := t.Index(name); i >= 0 {
		return t.Columns[i], true
	}
	return Column{}, false
}

// Names returns the column names in schema order.
func (t Table) Names() []string {
	out := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		out[i] = c.Name
	}
	return out
}

// Clone returns a deep copy of the schema and row slices. Scalars are immutable values
// so they are shared.
func (t Table) Clone() Table {
	out := Table{Columns: append([]Column(nil), t.Columns...), Rows: make([][]any, len(t.Rows))}
	for i, r := range t.Rows {
		out.Rows[i] = append([]any(nil), r...)
	}
	return out
}

// Append adds a row after normalizing its values against the schema.
func (t *Table) Append(values ...any) error {
	if len(values) != len(t.Columns) {
		return fmt.Errorf("row has %d values, schema has %d columns", len(values), len(t.Columns))
	}
	row := make([]any, len(values))
	for i, v := range values {
		nv, err := Coerce(v, t.Columns[i].Type)
		if err != nil {
			return fmt.Errorf("column %q: %w", t.Columns[i].Name, err)
		}
		row[i] = nv
	}
	t.Rows = append(t.Rows, row)
	return nil
}

// Records returns rows as name→value maps, in row order.
func (t Table) Records() []map[string]any {
	out := make([]map[string]any, len(t.Rows))
	for i, r := range t.Rows {
		m := make(map[string]any, len(t.Columns))
		for j, c := range t.Columns {
			m[c.Name] = r[j]
		}
		out[i] = m
	}
	return out
}

// TypeOf returns the logical type of a normalized scalar. Nil returns "".
func TypeOf(v any) Type {
	switch v.(type) {
	case string:
		return String
	case float64:
		return Number
	case time.Time:
		return Date
	default:
		return ""
	}
}

// Normalize converts common Go scalar kinds into the table's value set.
// Integers and float32 become float64, []byte becomes string.
func Normalize(v any) (any, error) {
	switch x := v.(type) {
	case nil:
		return nil, nil
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int8:
		return float64(x), nil
	case int16:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case uint:
		return float64(x), nil
	case uint8:
		return float64(x), nil
	case uint16:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case uint64:
		return float64(x), nil
	case bool:
		if x {
			return 1.0, nil
		}
		return 0.0, nil
	case time.Time:
		return x.UTC(), nil
	case fmt.Stringer:
		return x.String(), nil
	default:
		return nil, fmt.Errorf("unsupported value type %T", v)
	}
}

// Coerce normalizes v and converts it to the column type where a lossless
// conversion exists (numeric strings into numbers, anything into strings).
func Coerce(v any, typ Type) (any, error) {
	nv, err := Normalize(v)
	if err != nil || nv == nil {
		return nv, err
	}
	switch typ {
	case String:
		return FormatValue(nv), nil
	case Number:
		switch x := nv.(type) {
		case float64:
			return x, nil
		case string:
			f, err := strconv.ParseFloat(x, 64)
			if err != nil {
				return nil, fmt.Errorf("%q is not a number", x)
			}
			return f, nil
		}
	case Date:
		switch x := nv.(type) {
		case time.Time:
			return x, nil
		case string:
			for _, layout := range []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02"} {
				if ts, err := time.Parse(layout, x); err == nil {
					return ts.UTC(), nil
				}
			}
			return nil, fmt.Errorf("%q is not a date", x)
		}
	}
	return nil, fmt.Errorf("cannot use %T as %s", nv, typ)
}

// FormatValue renders a normalized scalar as text. Numbers use the shortest
// representation that round-trips, dates use RFC 3339, nil is empty.
func FormatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		if math.Trunc(x) == x && math.Abs(x) < 1e15 {
			return strconv.FormatFloat(x, 'f', -1, 64)
		}
		return strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
