// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package pipeline

import (
	"fmt"
	"sync"
	"time"

	"reportforge/cli/internal/config"
	"reportforge/cli/internal/datasource"
	"reportforge/cli/internal/publish"
	"reportforge/cli/internal/render"
	"reportforge/cli/internal/secrets"
	"reportforge/cli/internal/table"
)

// RunContext owns everything one run creates. It is never shared between runs.
type RunContext struct {
	RunID   string
	Started time.Time
	Config  *config.RunConfig
	Outputs []config.Output

	Credentials *secrets.Credentials
	Handle      datasource.Handle
	Publisher   publish.Publisher

	mu        sync.Mutex
	state     State
	tables    map[string]table.Table
	artifacts []rendered
	staged    []stagedArtifact
	committed []publish.Locator
	closed    bool
}

type rendered struct {
	output   config.Output
	artifact render.Artifact
}

type stagedArtifact struct {
	name string
	st   publish.Staged
}

func newRunContext(runID string, started time.Time, cfg *config.RunConfig, outputs []config.Output) *RunContext {
	return &RunContext{
		RunID:   runID,
		Started: started,
		Config:  cfg,
		Outputs: outputs,
		tables:  make(map[string]table.Table),
	}
}

// State returns the current lifecycle state.
func (rc *RunContext) State() State {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

func (rc *RunContext) transition(to State) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if !rc.state.CanTransition(to) {
		return fmt.Errorf("invalid transition %s -> %s", rc.state, to)
	}
	rc.state = to
	return nil
}

func (rc *RunContext) setTable(name string, t table.Table) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	rc.tables[name] = t
}

// Table returns the current table of a dataset.
func (rc *RunContext) Table(name string) (table.Table, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	t, ok := rc.tables[name]
	return t, ok
}

// Locators returns the committed artifacts in commit order.
func (rc *RunContext) Locators() []publish.Locator {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return append([]publish.Locator(nil), rc.committed...)
}

// Close releases the connection and scrubs credentials. Rendered artifacts are
// dropped. It is safe to call more than once.
func (rc *RunContext) Close() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.closed {
		return
	}
	rc.closed = true
	if rc.Handle != nil {
		rc.Handle.Close()
		rc.Handle = nil
	}
	if rc.Credentials != nil {
		rc.Credentials.Scrub()
		rc.Credentials = nil
	}
	rc.tables = nil
	rc.artifacts = nil
	rc.staged = nil
}
