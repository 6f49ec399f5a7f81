// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package progress

import (
	"errors"
	"testing"

	"reportforge/cli/internal/pipeline"

	"github.com/pterm/pterm"
	"github.com/stretchr/testify/assert"
)

func stage(s pipeline.State) pipeline.Event {
	return pipeline.Event{Type: pipeline.EventStage, State: s}
}

func TestTrackerFollowsRun(t *testing.T) {
	tr := NewTracker()
	tr.Handle(stage(pipeline.ResolvingSecrets))
	tr.Handle(stage(pipeline.Connecting))
	tr.Handle(stage(pipeline.Extracting))
	tr.Handle(pipeline.Event{Type: pipeline.EventDataset, Name: "sales", Rows: 3})
	tr.Handle(pipeline.Event{Type: pipeline.EventDataset, Name: "costs", Rows: 7})
	tr.Handle(stage(pipeline.Transforming))
	tr.Handle(pipeline.Event{Type: pipeline.EventDataset, Name: "sales", Rows: 2})
	tr.Handle(stage(pipeline.Rendering))
	tr.Handle(pipeline.Event{Type: pipeline.EventArtifact, Filename: "sales.xlsx", Bytes: 2048})

	assert.Equal(t, Completed, tr.Status(pipeline.Extracting))
	assert.Equal(t, Running, tr.Status(pipeline.Rendering))
	assert.Equal(t, Pending, tr.Status(pipeline.Publishing))
	assert.Equal(t, []string{
		"✓ Resolving secrets",
		"✓ Connecting to database",
		"✓ Extracting datasets  sales=2 rows, costs=7 rows",
		"✓ Transforming datasets  sales=2 rows, costs=7 rows",
		"/ Rendering outputs  sales.xlsx (2.0 KiB)",
	}, tr.Lines("/"))

	tr.Handle(stage(pipeline.Publishing))
	tr.Handle(pipeline.Event{Type: pipeline.EventPublished, URI: "file:///out/sales.xlsx"})
	tr.Handle(stage(pipeline.Done))
	assert.Equal(t, Completed, tr.Status(pipeline.Publishing))
	assert.Equal(t, []string{"file:///out/sales.xlsx"}, tr.Published())
}

func TestTrackerMarksFailedStage(t *testing.T) {
	tr := NewTracker()
	tr.Handle(stage(pipeline.ResolvingSecrets))
	tr.Handle(stage(pipeline.Connecting))
	tr.Handle(pipeline.Event{Type: pipeline.EventStage, State: pipeline.Failed, Err: errors.New("refused")})

	assert.Equal(t, Completed, tr.Status(pipeline.ResolvingSecrets))
	assert.Equal(t, Errored, tr.Status(pipeline.Connecting))
	assert.Equal(t, []string{"✓ Resolving secrets", "✗ Connecting to database"}, tr.Lines("|"))
}

func TestLineFormatterPads(t *testing.T) {
	var f lineFormatter
	assert.Equal(t, "long line", f.format("long line"))
	assert.Equal(t, "short    ", f.format("short"))
}

func TestByteSize(t *testing.T) {
	assert.Equal(t, "512 B", byteSize(512))
	assert.Equal(t, "1.5 KiB", byteSize(1536))
	assert.Equal(t, "3.0 MiB", byteSize(3<<20))
}

func TestNonInteractiveDisplayPrintsStagesOnce(t *testing.T) {
	pterm.DisableOutput()
	defer pterm.EnableOutput()

	d := NewDisplay(false)
	d.Start()
	d.Observe(stage(pipeline.Extracting))
	d.Observe(pipeline.Event{Type: pipeline.EventDataset, Name: "sales", Rows: 1})
	d.Observe(stage(pipeline.Done))
	d.Stop()

	assert.True(t, d.printed[pipeline.Extracting])
	assert.Equal(t, Completed, d.Tracker().Status(pipeline.Extracting))
}
