// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package transform

import (
	"fmt"
	"math"
	"strings"
	"time"

	"reportforge/cli/internal/table"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"
)

// expression is a compiled expr program bound to a schema.
type expression struct {
	source  string
	program *vm.Program
	columns []table.Column
	// refs are the positions of the columns the source names.
	refs []int
}

type identCollector map[string]bool

func (c identCollector) Visit(node *ast.Node) {
	if id, ok := (*node).(*ast.IdentifierNode); ok {
		c[id.Value] = true
	}
}

func referencedColumns(source string, cols []table.Column) ([]int, error) {
	tree, err := parser.Parse(source)
	if err != nil {
		return nil, err
	}
	names := identCollector{}
	ast.Walk(&tree.Node, names)
	var refs []int
	for i, c := range cols {
		if names[c.Name] {
			refs = append(refs, i)
		}
	}
	return refs, nil
}

// typeEnv maps each column to a zero value of its type so the compiler can
// reject unknown names and mistyped operations.
func typeEnv(cols []table.Column) map[string]any {
	env := make(map[string]any, len(cols))
	for _, c := range cols {
		switch c.Type {
		case table.Number:
			env[c.Name] = 0.0
		case table.Date:
			env[c.Name] = time.Time{}
		default:
			env[c.Name] = ""
		}
	}
	return env
}

func compileExpression(source string, cols []table.Column, asBool bool) (*expression, error) {
	if strings.TrimSpace(source) == "" {
		return nil, fmt.Errorf("empty expression")
	}
	opts := []expr.Option{
		expr.Env(typeEnv(cols)),
		// Steps must not depend on the wall clock.
		expr.DisableBuiltin("now"),
	}
	if asBool {
		opts = append(opts, expr.AsBool())
	}
	program, err := expr.Compile(source, opts...)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %s", source, firstLine(err.Error()))
	}
	refs, err := referencedColumns(source, cols)
	if err != nil {
		return nil, fmt.Errorf("compile %q: %s", source, firstLine(err.Error()))
	}
	return &expression{source: source, program: program, columns: cols, refs: refs}, nil
}

// eval runs the program against one row. When a column the program names is null
// and the program cannot operate on it, the result is (nil, nil), mirroring SQL null
// propagation. Nulls in other columns do not hide evaluation errors.
func (e *expression) eval(row []any) (any, error) {
	env := make(map[string]any, len(e.columns))
	for i, c := range e.columns {
		env[c.Name] = row[i]
	}
	hasNull := false
	for _, i := range e.refs {
		if row[i] == nil {
			hasNull = true
			break
		}
	}
	out, err := expr.Run(e.program, env)
	if err != nil {
		if hasNull {
			return nil, nil
		}
		return nil, fmt.Errorf("evaluate %q: %s", e.source, firstLine(err.Error()))
	}
	if f, ok := asFloat(out); ok {
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return nil, fmt.Errorf("evaluate %q: division by zero", e.source)
		}
		return f, nil
	}
	return out, nil
}

func asFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	}
	return 0, false
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
