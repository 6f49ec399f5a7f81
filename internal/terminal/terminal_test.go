// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package terminal

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinesUsed(t *testing.T) {
	assert.Equal(t, 2, linesUsed(0, 80))
	assert.Equal(t, 2, linesUsed(80, 80))
	assert.Equal(t, 3, linesUsed(81, 80))
	assert.Equal(t, 3, linesUsed(100, 0), "falls back to 80 columns")
}

func TestClearLines(t *testing.T) {
	var buf bytes.Buffer
	clearLines(&buf, 2)
	assert.Equal(t, "\r\x1b[2K\x1b[1A\r\x1b[2K", buf.String())
}

func TestReadLine(t *testing.T) {
	v, err := readLine(strings.NewReader("s3cr3t value\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cr3t value", v)

	v, err = readLine(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", v)

	_, err = readLine(strings.NewReader("\n"))
	assert.ErrorIs(t, err, ErrEmptyInput)
}
