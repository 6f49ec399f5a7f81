// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transform

import (
	"fmt"

	"reportforge/cli/internal/table"
)

// DeriveSpec adds a column computed from an expression over existing columns.
type DeriveSpec struct {
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
	// Type fixes the new column's type. When empty it is taken from the first non-null result.
	Type table.Type `yaml:"type,omitempty" json:"type,omitempty"`
}

type deriveOp struct {
	spec DeriveSpec
	expr *expression
}

func compileDerive(spec DeriveSpec, in table.Table) (op, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("derived column needs a name")
	}
	if in.Index(spec.Name) >= 0 {
		return nil, fmt.Errorf("column %q already exists", spec.Name)
	}
	switch spec.Type {
	case "", table.String, table.Number, table.Date:
	default:
		return nil, fmt.Errorf("unknown column type %q", spec.Type)
	}
	e, err := compileExpression(spec.Expression, in.Columns, false)
	if err != nil {
		return nil, err
	}
	return &deriveOp{spec: spec, expr: e}, nil
}

func (d *deriveOp) apply(in table.Table) (table.Table, error) {
	values := make([]any, len(in.Rows))
	typ := d.spec.Type
	for i, row := range in.Rows {
		v, err := d.expr.eval(row)
		if err != nil {
			return table.Table{}, fmt.Errorf("row %d: %w", i, err)
		}
		nv, err := table.Normalize(v)
		if err != nil {
			return table.Table{}, fmt.Errorf("row %d: %w", i, err)
		}
		if typ == "" && nv != nil {
			typ = table.TypeOf(nv)
		}
		values[i] = nv
	}
	if typ == "" {
		typ = table.Number
	}

	out := table.Table{
		Columns: append(append([]table.Column(nil), in.Columns...), table.Column{Name: d.spec.Name, Type: typ}),
		Rows:    make([][]any, len(in.Rows)),
	}
	for i, row := range in.Rows {
		v, err := table.Coerce(values[i], typ)
		if err != nil {
			return table.Table{}, fmt.Errorf("row %d: type mismatch: %w", i, err)
		}
		nr := make([]any, 0, len(row)+1)
		nr = append(nr, row...)
		out.Rows[i] = append(nr, v)
	}
	return out, nil
}
