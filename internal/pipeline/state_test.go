// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"errors"
	"testing"

	errs "reportforge/cli/internal/errors"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	order := []State{Idle, ResolvingSecrets, Connecting, Extracting, Transforming, Rendering, Publishing, Done}
	for i := 0; i < len(order)-1; i++ {
		assert.True(t, order[i].CanTransition(order[i+1]), "%s -> %s", order[i], order[i+1])
		assert.True(t, order[i].CanTransition(Failed), "%s -> Failed", order[i])
		assert.False(t, order[i+1].CanTransition(order[i]), "%s -> %s", order[i+1], order[i])
	}
	assert.False(t, Idle.CanTransition(Extracting), "stages cannot be skipped")
	assert.False(t, Rendering.CanTransition(Done))
	assert.False(t, Done.CanTransition(Failed))
	assert.False(t, Failed.CanTransition(Idle))
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "ResolvingSecrets", ResolvingSecrets.String())
	assert.Equal(t, "State(42)", State(42).String())
	assert.True(t, Done.Terminal())
	assert.False(t, Publishing.Terminal())
}

func TestFailure(t *testing.T) {
	cause := errs.New(errs.QueryError, "query \"sales\" failed").In("datasource")
	f := &Failure{Stage: Extracting, Kind: errs.QueryError, Err: cause}
	assert.Equal(t, `run failed while Extracting (QueryError): QueryError [datasource]: query "sales" failed`, f.Error())
	assert.True(t, errors.Is(f, cause))
	assert.Equal(t, errs.QueryError, errs.KindOf(f))
	assert.Equal(t, errs.TransformError, Transforming.defaultKind())
}
