// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"fmt"

	errs "reportforge/cli/internal/errors"
)

// State is a position in the run lifecycle.
type State int

const (
	Idle State = iota
	ResolvingSecrets
	Connecting
	Extracting
	Transforming
	Rendering
	Publishing
	Done
	Failed
)

var stateNames = [...]string{
	Idle:             "Idle",
	ResolvingSecrets: "ResolvingSecrets",
	Connecting:       "Connecting",
	Extracting:       "Extracting",
	Transforming:     "Transforming",
	Rendering:        "Rendering",
	Publishing:       "Publishing",
	Done:             "Done",
	Failed:           "Failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == Done || s == Failed }

// CanTransition reports whether to may follow s. Runs only move forward one stage at
// a time; any non-terminal state may fail.
func (s State) CanTransition(to State) bool {
	if s.Terminal() {
		return false
	}
	if to == Failed {
		return true
	}
	return to == s+1
}

// defaultKind is the error kind reported for an unclassified failure in a stage.
func (s State) defaultKind() errs.Kind {
	switch s {
	case ResolvingSecrets:
		return errs.SecretUnavailable
	case Connecting:
		return errs.ConnectionError
	case Extracting:
		return errs.QueryError
	case Transforming:
		return errs.TransformError
	case Rendering:
		return errs.RenderError
	case Publishing:
		return errs.PublishError
	}
	return errs.ConfigError
}

// Failure is the single top-level error of a failed run.
type Failure struct {
	Stage State
	Kind  errs.Kind
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("run failed while %s (%s): %v", f.Stage, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }
