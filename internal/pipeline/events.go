// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import "time"

// EventType enumerates progress notifications emitted during a run.
type EventType string

const (
	// EventStage marks entry into a new state.
	EventStage EventType = "stage"
	// EventDataset reports a dataset extracted or transformed.
	EventDataset EventType = "dataset"
	// EventArtifact reports a rendered artifact.
	EventArtifact EventType = "artifact"
	// EventPublished reports a committed artifact.
	EventPublished EventType = "published"
)

// Event is a progress notification. Only the fields relevant to Type are set.
type Event struct {
	Type  EventType
	State State
	At    time.Time

	// Dataset or output name.
	Name string
	Rows int

	// Artifact
	Filename string
	Bytes    int

	// Published
	URI string

	// Failure, set with State == Failed
	Err error
}

// Observer receives events. It may be called from several goroutines at once.
type Observer func(Event)
