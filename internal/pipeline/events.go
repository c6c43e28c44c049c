package pipeline

import (
	"fmt"

	"github.com/hkjang/codelens/internal/analysis"
)

// Event is one progress update from a running execution.
type Event struct {
	ExecutionID string
	Stage       analysis.Stage
	Status      analysis.StageStatus
	Progress    int
	Message     string
}

// Reporter emits progress events through a buffered channel.
type Reporter struct {
	ch chan Event
}

// NewReporter creates a Reporter with a buffered channel of size 64.
func NewReporter() *Reporter {
	return &Reporter{
		ch: make(chan Event, 64),
	}
}

// Emit sends a progress event in a non-blocking fashion.
// If the channel is full, the event is silently dropped.
func (r *Reporter) Emit(event Event) {
	select {
	case r.ch <- event:
	default:
		// Drop the event if the channel is full.
	}
}

// Events returns a read-only channel for consuming progress events.
func (r *Reporter) Events() <-chan Event {
	return r.ch
}

// Close closes the event channel. Emit must not be called afterwards.
func (r *Reporter) Close() {
	close(r.ch)
}

// FormatEvent formats an Event as a human-readable status line.
func FormatEvent(event Event) string {
	switch event.Status {
	case analysis.StatusPending:
		return fmt.Sprintf("  ○ %s (pending)", event.Stage)
	case analysis.StatusRunning:
		return fmt.Sprintf("  ◐ %s... %d%%", event.Stage, event.Progress)
	case analysis.StatusCompleted:
		if event.Message != "" {
			return fmt.Sprintf("  ✓ %s complete (%s)", event.Stage, event.Message)
		}
		return fmt.Sprintf("  ✓ %s complete", event.Stage)
	case analysis.StatusFailed:
		return fmt.Sprintf("  ✗ %s failed: %s", event.Stage, event.Message)
	case analysis.StatusSkipped:
		return fmt.Sprintf("  ⊘ %s skipped: %s", event.Stage, event.Message)
	default:
		return fmt.Sprintf("  ? %s (unknown status)", event.Stage)
	}
}
