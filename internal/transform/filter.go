// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transform

import (
	"reportforge/cli/internal/table"
)

type filterOp struct {
	pred *expression
}

func compileFilter(predicate string, in table.Table) (op, error) {
	e, err := compileExpression(predicate, in.Columns, true)
	if err != nil {
		return nil, err
	}
	return &filterOp{pred: e}, nil
}

// apply keeps rows for which the predicate is true. A null result drops the row.
func (f *filterOp) apply(in table.Table) (table.Table, error) {
	out := table.New(in.Columns...)
	for _, row := range in.Rows {
		v, err := f.pred.eval(row)
		if err != nil {
			return table.Table{}, err
		}
		if keep, _ := v.(bool); keep {
			out.Rows = append(out.Rows, append([]any(nil), row...))
		}
	}
	return out, nil
}
