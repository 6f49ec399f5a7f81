// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package terminal provides prompt and screen helpers for interactive commands.
package terminal

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// Width returns the width of stdout, or 80 when it is not a terminal.
func Width() int {
	if width, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && width > 0 {
		return width
	}
	return 80
}

// IsInteractive reports whether both stdin and stdout are terminals.
func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
}

// linesUsed is how many rows textLength characters occupy at width, plus the
// empty row the cursor moved to when Enter was pressed.
func linesUsed(textLength, width int) int {
	if width < 1 {
		width = 80
	}
	n := (textLength + width - 1) / width
	if n < 1 {
		n = 1
	}
	return n + 1
}

// ClearPreviousLines erases a prompt of textLength characters from stdout.
func ClearPreviousLines(textLength int) {
	clearLines(os.Stdout, linesUsed(textLength, Width()))
}

func clearLines(w io.Writer, n int) {
	for i := 0; i < n; i++ {
		fmt.Fprint(w, "\r\x1b[2K") // start of line, clear it
		if i < n-1 {
			fmt.Fprint(w, "\x1b[1A") // up one
		}
	}
}
