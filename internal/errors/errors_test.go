// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *E
		want string
	}{
		{
			name: "kind and message",
			err:  New(QueryError, "syntax error"),
			want: "QueryError: syntax error",
		},
		{
			name: "with component and cause",
			err:  Wrap(ConnectionError, "connect failed", stderrors.New("refused")).In("datasource"),
			want: "ConnectionError [datasource]: connect failed: refused",
		},
		{
			name: "exhausted retries",
			err:  &E{Kind: PublishError, Message: "upload", Attempts: 3, Exhausted: true},
			want: "PublishError: upload (gave up after 3 attempts)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestKindOfThroughWrapping(t *testing.T) {
	cause := stderrors.New("boom")
	inner := Wrap(RenderError, "chart", cause)
	outer := fmt.Errorf("rendering summary: %w", inner)

	assert.Equal(t, RenderError, KindOf(outer))
	assert.True(t, Is(outer, RenderError))
	assert.False(t, Is(outer, PublishError))
	assert.True(t, stderrors.Is(outer, cause))

	e, ok := As(outer)
	require.True(t, ok)
	assert.Equal(t, "chart", e.Message)

	assert.Equal(t, Kind(""), KindOf(cause))
	assert.False(t, Is(nil, RenderError))
}
