// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package datasource

import (
	"fmt"
	"math/big"
	"strings"
	"time"
	"unicode/utf8"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/table"

	"github.com/jackc/pgx/v5/pgtype"
)

// convertValue maps a driver value onto the table value set.
func convertValue(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case pgtype.Numeric:
		if !x.Valid {
			return nil
		}
		f, err := x.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	case *big.Int:
		f, _ := new(big.Float).SetInt(x).Float64()
		return f
	case [16]byte:
		return formatUUID(x[:])
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		return fmt.Sprintf("\\x%x", x)
	case bool:
		if x {
			return "true"
		}
		return "false"
	case time.Time:
		return x.UTC()
	case pgtype.Time:
		if !x.Valid {
			return nil
		}
		return time.Duration(x.Microseconds * int64(time.Microsecond)).String()
	case pgtype.Interval:
		if !x.Valid {
			return nil
		}
		return fmt.Sprintf("%d months %d days %s", x.Months, x.Days, time.Duration(x.Microseconds*int64(time.Microsecond)))
	}
	if nv, err := table.Normalize(v); err == nil {
		return nv
	}
	return fmt.Sprint(v)
}

// formatUUID uses %02x to ensure each byte is exactly 2 hex digits.
func formatUUID(v []byte) string {
	return fmt.Sprintf("%02x%02x%02x%02x-%02x%02x-%02x%02x-%02x%02x-%02x%02x%02x%02x%02x%02x",
		v[0], v[1], v[2], v[3], v[4], v[5], v[6], v[7],
		v[8], v[9], v[10], v[11], v[12], v[13], v[14], v[15])
}

// declaredType maps a database type name onto a column type. "" means infer from values.
func declaredType(name string) table.Type {
	n := strings.ToUpper(name)
	switch {
	case n == "":
		return ""
	case strings.Contains(n, "INT"), strings.Contains(n, "REAL"), strings.Contains(n, "FLOA"),
		strings.Contains(n, "DOUB"), strings.Contains(n, "NUMERIC"), strings.Contains(n, "DECIMAL"):
		return table.Number
	case strings.Contains(n, "DATE"), strings.Contains(n, "TIMESTAMP"):
		return table.Date
	default:
		return table.String
	}
}

// builder accumulates rows under a row cap and settles the schema at the end.
type builder struct {
	query    string
	names    []string
	declared []table.Type
	rows     [][]any
	maxRows  int
}

func newBuilder(query string, names []string, declared []table.Type, maxRows int) *builder {
	return &builder{query: query, names: names, declared: declared, maxRows: maxRows}
}

// add appends one row; it returns ResultTooLarge once the cap is exceeded.
func (b *builder) add(values []any) error {
	if b.maxRows > 0 && len(b.rows) >= b.maxRows {
		return errs.Newf(errs.ResultTooLarge, "query %q returned more than %d rows", b.query, b.maxRows).In("datasource")
	}
	row := make([]any, len(values))
	for i, v := range values {
		row[i] = convertValue(v)
	}
	b.rows = append(b.rows, row)
	return nil
}

// table infers undeclared column types from the first non-null value and coerces
// every cell to its column type. An inferred column holding values of more than one
// type becomes a String column. A value that does not fit a declared type fails
// the query.
func (b *builder) table() (table.Table, error) {
	cols := make([]table.Column, len(b.names))
	for i, name := range b.names {
		typ := b.declared[i]
		if typ == "" {
			typ = b.infer(i)
		}
		cols[i] = table.Column{Name: name, Type: typ}
	}

	for i := range cols {
		if err := b.coerceColumn(i, &cols[i]); err != nil {
			return table.Table{}, err
		}
	}
	out := table.New(cols...)
	out.Rows = b.rows
	if out.Rows == nil {
		out.Rows = [][]any{}
	}
	return out, nil
}

func (b *builder) infer(col int) table.Type {
	for _, r := range b.rows {
		if t := table.TypeOf(r[col]); t != "" {
			return t
		}
	}
	return table.String
}

// coerceColumn converts column i in place, widening an inferred column to text
// when a value does not fit.
func (b *builder) coerceColumn(i int, col *table.Column) error {
	converted := make([]any, len(b.rows))
	for n, r := range b.rows {
		cv, err := table.Coerce(r[i], col.Type)
		if err == nil {
			converted[n] = cv
			continue
		}
		if b.declared[i] != "" {
			return errs.Wrap(errs.QueryError,
				fmt.Sprintf("query %q: row %d: column %q is declared %s", b.query, n+1, col.Name, col.Type), err).In("datasource")
		}
		col.Type = table.String
		for m, r := range b.rows {
			if r[i] == nil {
				converted[m] = nil
				continue
			}
			converted[m] = table.FormatValue(r[i])
		}
		break
	}
	for n, r := range b.rows {
		r[i] = converted[n]
	}
	return nil
}
