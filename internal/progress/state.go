// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package progress shows the stages of a run in the terminal.
package progress

import (
	"fmt"
	"strings"
	"sync"
	"unicode/utf8"

	"reportforge/cli/internal/pipeline"
)

// stageOrder is the display order of the pipeline stages.
var stageOrder = []pipeline.State{
	pipeline.ResolvingSecrets,
	pipeline.Connecting,
	pipeline.Extracting,
	pipeline.Transforming,
	pipeline.Rendering,
	pipeline.Publishing,
}

var stageLabels = map[pipeline.State]string{
	pipeline.ResolvingSecrets: "Resolving secrets",
	pipeline.Connecting:       "Connecting to database",
	pipeline.Extracting:       "Extracting datasets",
	pipeline.Transforming:     "Transforming datasets",
	pipeline.Rendering:        "Rendering outputs",
	pipeline.Publishing:       "Publishing artifacts",
}

// Status is the display status of a stage.
type Status int

const (
	Pending Status = iota
	Running
	Completed
	Errored
)

// Tracker folds pipeline events into per-stage progress. It is safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	status   map[pipeline.State]Status
	current  pipeline.State
	rows     map[string]int
	datasets []string
	files    []string
	uris     []string
	failure  error
}

// NewTracker returns a tracker with every stage pending.
func NewTracker() *Tracker {
	return &Tracker{
		status: make(map[pipeline.State]Status),
		rows:   make(map[string]int),
	}
}

// Handle applies one event.
func (t *Tracker) Handle(ev pipeline.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch ev.Type {
	case pipeline.EventStage:
		if t.current != pipeline.Idle && t.status[t.current] == Running {
			t.status[t.current] = Completed
		}
		switch ev.State {
		case pipeline.Failed:
			if t.current != pipeline.Idle {
				t.status[t.current] = Errored
			}
			t.failure = ev.Err
		case pipeline.Done:
		default:
			t.status[ev.State] = Running
			t.current = ev.State
		}
	case pipeline.EventDataset:
		if _, seen := t.rows[ev.Name]; !seen {
			t.datasets = append(t.datasets, ev.Name)
		}
		t.rows[ev.Name] = ev.Rows
	case pipeline.EventArtifact:
		t.files = append(t.files, fmt.Sprintf("%s (%s)", ev.Filename, byteSize(ev.Bytes)))
	case pipeline.EventPublished:
		t.uris = append(t.uris, ev.URI)
	}
}

// Status returns the display status of a stage.
func (t *Tracker) Status(s pipeline.State) Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status[s]
}

// Current returns the stage most recently entered.
func (t *Tracker) Current() pipeline.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current
}

// Published returns the committed URIs in order.
func (t *Tracker) Published() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.uris...)
}

// Lines renders the stages that have started. frame selects the spinner glyph for
// the running stage.
func (t *Tracker) Lines(frame string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var lines []string
	for _, s := range stageOrder {
		st := t.status[s]
		if st == Pending {
			continue
		}
		var mark string
		switch st {
		case Running:
			mark = frame
		case Completed:
			mark = "✓"
		case Errored:
			mark = "✗"
		}
		line := fmt.Sprintf("%s %s", mark, stageLabels[s])
		if detail := t.detail(s); detail != "" {
			line += "  " + detail
		}
		lines = append(lines, line)
	}
	return lines
}

func (t *Tracker) detail(s pipeline.State) string {
	switch s {
	case pipeline.Extracting, pipeline.Transforming:
		if len(t.datasets) == 0 {
			return ""
		}
		parts := make([]string, 0, len(t.datasets))
		for _, name := range t.datasets {
			parts = append(parts, fmt.Sprintf("%s=%d rows", name, t.rows[name]))
		}
		return strings.Join(parts, ", ")
	case pipeline.Rendering:
		return strings.Join(t.files, ", ")
	case pipeline.Publishing:
		if len(t.uris) > 0 {
			return fmt.Sprintf("%d committed", len(t.uris))
		}
	}
	return ""
}

// lineFormatter pads lines to the widest line seen so shorter updates fully
// overwrite longer ones.
type lineFormatter struct {
	mu         sync.Mutex
	maxLineLen int
}

func (f *lineFormatter) format(line string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := utf8.RuneCountInString(line)
	if n > f.maxLineLen {
		f.maxLineLen = n
	}
	if pad := f.maxLineLen - n; pad > 0 {
		return line + strings.Repeat(" ", pad)
	}
	return line
}

func byteSize(n int) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := unit, 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGT"[exp])
}
