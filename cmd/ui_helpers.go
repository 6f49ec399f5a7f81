// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"reportforge/cli/internal/terminal"

	"atomicgo.dev/cursor"
)

var spinnerFrames = []string{"|", "/", "-", "\\"}

// startInlineSpinner animates frames followed by text on the current line of w
// until the returned function is called, which clears the line.
func startInlineSpinner(w io.Writer, text string, frames []string, interval time.Duration) func() {
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	cursor.Hide()
	go func() {
		defer wg.Done()
		i := 0
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		line := func() string { return fmt.Sprintf("%s %s", frames[i%len(frames)], text) }
		for {
			select {
			case <-stop:
				fmt.Fprintf(w, "\r%*s\r", len(line()), "")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r%s", line())
				i++
			}
		}
	}()
	return func() {
		close(stop)
		wg.Wait()
		cursor.Show()
	}
}

// withSpinner runs fn behind an inline spinner when stdout is a terminal.
func withSpinner(text string, fn func() error) error {
	if verbose || !terminal.IsInteractive() {
		return fn()
	}
	stop := startInlineSpinner(os.Stdout, text, spinnerFrames, 120*time.Millisecond)
	defer stop()
	return fn()
}
