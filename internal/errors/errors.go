// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package errors defines typed errors with categories for user-friendly reporting.
// Every failure that can end a pipeline run is expressed as an *E carrying a machine-readable
// Kind, the component that raised it, and the retry bookkeeping of the operation that produced it.
//
// The package supports wrapping underlying errors while maintaining error kind information,
// so the orchestrator can surface one top-level failure reason per run.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Kind is a machine-readable error category.
type Kind string

const (
	// SecretUnavailable indicates a secret is missing, empty, or the vault is unreachable.
	SecretUnavailable Kind = "SecretUnavailable"
	// AuthFailure indicates the calling identity was rejected by the vault or database.
	AuthFailure Kind = "AuthFailure"
	// ConnectionError indicates the database could not be reached.
	ConnectionError Kind = "ConnectionError"
	// QueryError indicates a query was rejected by the database.
	QueryError Kind = "QueryError"
	// ResultTooLarge indicates a query returned more rows than the configured cap.
	ResultTooLarge Kind = "ResultTooLarge"
	// TransformError indicates a transform step failed.
	TransformError Kind = "TransformError"
	// RenderError indicates a document could not be rendered.
	RenderError Kind = "RenderError"
	// PublishError indicates an artifact could not be written to its destination.
	PublishError Kind = "PublishError"
	// ConfigError indicates invalid run configuration.
	ConfigError Kind = "ConfigError"
	// Canceled indicates the run was cancelled before completion.
	Canceled Kind = "Canceled"
)

// E wraps an error with kind and human-friendly message.
type E struct {
	Kind      Kind
	Component string
	Message   string
	Err       error
	// Attempts is the number of tries made by a retried operation (0 when not retried).
	Attempts int
	// Exhausted is set when the retry budget ran out.
	Exhausted bool
}

func (e *E) Error() string {
	prefix := string(e.Kind)
	if e.Component != "" {
		prefix = fmt.Sprintf("%s [%s]", e.Kind, e.Component)
	}
	msg := e.Message
	if e.Exhausted {
		msg = fmt.Sprintf("%s (gave up after %d attempts)", msg, e.Attempts)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, msg)
}

func (e *E) Unwrap() error { return e.Err }

// WithAttempts records the retry bookkeeping of the operation that produced e.
func (e *E) WithAttempts(attempts int, exhausted bool) *E {
	e.Attempts = attempts
	e.Exhausted = exhausted
	return e
}

// In sets the originating component and returns e.
func (e *E) In(component string) *E {
	e.Component = component
	return e
}

func Wrap(kind Kind, msg string, err error) *E { return &E{Kind: kind, Message: msg, Err: err} }
func New(kind Kind, msg string) *E             { return &E{Kind: kind, Message: msg} }

// Newf builds an *E with a formatted message.
func Newf(kind Kind, format string, args ...any) *E {
	return &E{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// As returns the outermost *E in err's chain.
func As(err error) (*E, bool) {
	var e *E
	if stderrors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the kind of the outermost *E in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return ""
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
