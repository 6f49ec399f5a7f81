// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package transform applies ordered, pure transformation steps to a table.
//
// Steps are compiled against the schema they receive before any row is touched, so a
// reference to an absent column fails even when the table is empty. Each step returns
// a new table; the input is never modified.
package transform

import (
	"fmt"

	errs "reportforge/cli/internal/errors"
	"reportforge/cli/internal/table"
)

// Kind names a step type.
type Kind string

const (
	KindFilter    Kind = "filter"
	KindAggregate Kind = "aggregate"
	KindPivot     Kind = "pivot"
	KindDerive    Kind = "derive"
)

// Step is one transformation as written in the run config. Exactly one field is set.
type Step struct {
	Filter    string         `yaml:"filter,omitempty" json:"filter,omitempty"`
	Aggregate *AggregateSpec `yaml:"aggregate,omitempty" json:"aggregate,omitempty"`
	Pivot     *PivotSpec     `yaml:"pivot,omitempty" json:"pivot,omitempty"`
	Derive    *DeriveSpec    `yaml:"derive,omitempty" json:"derive,omitempty"`
}

// Kind returns the step type, or "" when zero or several fields are set.
func (s Step) Kind() Kind {
	var k Kind
	n := 0
	if s.Filter != "" {
		k, n = KindFilter, n+1
	}
	if s.Aggregate != nil {
		k, n = KindAggregate, n+1
	}
	if s.Pivot != nil {
		k, n = KindPivot, n+1
	}
	if s.Derive != nil {
		k, n = KindDerive, n+1
	}
	if n != 1 {
		return ""
	}
	return k
}

// StepError identifies the failing step.
type StepError struct {
	Index  int
	Kind   Kind
	Reason string
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %d (%s): %s", e.Index, e.Kind, e.Reason)
}

// op is a compiled step bound to its input schema.
type op interface {
	apply(in table.Table) (table.Table, error)
}

// Apply runs steps in order and returns the final table. On failure the error is a
// TransformError wrapping a *StepError, and in is left untouched.
func Apply(in table.Table, steps []Step) (table.Table, error) {
	cur := in
	for i, s := range steps {
		o, err := compile(s, cur)
		if err != nil {
			return table.Table{}, stepFailure(i, s.Kind(), err)
		}
		next, err := o.apply(cur)
		if err != nil {
			return table.Table{}, stepFailure(i, s.Kind(), err)
		}
		cur = next
	}
	if len(steps) == 0 {
		return in.Clone(), nil
	}
	return cur, nil
}

// Validate compiles steps against a schema without touching any rows.
func Validate(schema []table.Column, steps []Step) error {
	_, err := Apply(table.New(schema...), steps)
	return err
}

func compile(s Step, in table.Table) (op, error) {
	switch s.Kind() {
	case KindFilter:
		return compileFilter(s.Filter, in)
	case KindAggregate:
		return compileAggregate(*s.Aggregate, in)
	case KindPivot:
		return compilePivot(*s.Pivot, in)
	case KindDerive:
		return compileDerive(*s.Derive, in)
	default:
		return nil, fmt.Errorf("a step must set exactly one of filter, aggregate, pivot, derive")
	}
}

func stepFailure(index int, kind Kind, err error) error {
	se := &StepError{Index: index, Kind: kind, Reason: err.Error()}
	return errs.Wrap(errs.TransformError, "transform failed", se).In("transformer")
}

// requireColumn returns the index of name in t or an absent-column error.
func requireColumn(t table.Table, name string) (int, error) {
	i := t.Index(name)
	if i < 0 {
		return -1, fmt.Errorf("column %q is absent", name)
	}
	return i, nil
}
