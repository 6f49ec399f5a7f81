// Copyright (c) 2025 Reportforge
// Licensed under the MIT License. See LICENSE file in the project root for details.

package progress

import (
	"strings"
	"sync"
	"time"

	"reportforge/cli/internal/pipeline"

	"atomicgo.dev/cursor"
	"github.com/pterm/pterm"
)

var frames = []string{"|", "/", "-", "\\"}

// Display renders a Tracker. On a terminal it animates a live area; otherwise it
// prints one line per stage change.
type Display struct {
	tracker     *Tracker
	interactive bool
	fmt         lineFormatter

	mu      sync.Mutex
	area    *pterm.AreaPrinter
	stop    chan struct{}
	wg      sync.WaitGroup
	frame   int
	printed map[pipeline.State]bool
}

// NewDisplay creates a display. interactive enables the animated area.
func NewDisplay(interactive bool) *Display {
	return &Display{
		tracker:     NewTracker(),
		interactive: interactive,
		printed:     make(map[pipeline.State]bool),
	}
}

// Tracker returns the underlying tracker.
func (d *Display) Tracker() *Tracker { return d.tracker }

// Start begins the animation. It is a no-op for non-interactive displays.
func (d *Display) Start() {
	if !d.interactive {
		return
	}
	cursor.Hide()
	area, err := pterm.DefaultArea.Start()
	if err != nil {
		cursor.Show()
		d.interactive = false
		return
	}
	d.area = area
	d.stop = make(chan struct{})
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		t := time.NewTicker(120 * time.Millisecond)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				d.redraw(true)
			case <-d.stop:
				return
			}
		}
	}()
}

// Observe is a pipeline.Observer.
func (d *Display) Observe(ev pipeline.Event) {
	d.tracker.Handle(ev)
	if d.interactive {
		d.redraw(false)
		return
	}
	if ev.Type != pipeline.EventStage {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	switch ev.State {
	case pipeline.Done, pipeline.Failed:
		return
	}
	if !d.printed[ev.State] {
		d.printed[ev.State] = true
		pterm.Println("• " + stageLabels[ev.State])
	}
}

// Stop freezes the final state on screen and restores the cursor.
func (d *Display) Stop() {
	if d.area == nil {
		return
	}
	close(d.stop)
	d.wg.Wait()
	d.redraw(false)
	_ = d.area.Stop()
	d.area = nil
	cursor.Show()
}

func (d *Display) redraw(advance bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.area == nil {
		return
	}
	if advance {
		d.frame++
	}
	lines := d.tracker.Lines(frames[d.frame%len(frames)])
	for i, l := range lines {
		lines[i] = d.fmt.format(l)
	}
	d.area.Update(strings.Join(lines, "\n"))
}
