// Package eventlog captures ingestion, generation, and run events to the
// activity log and forwards them to an optional broadcast callback.
package eventlog

import (
	"fmt"

	"testforge/internal/db"
	"testforge/internal/events"
)

// Handler records events for a single repository. It implements
// events.EventHandler.
type Handler struct {
	db       *db.DB
	repoID   string
	upstream events.EventHandler
	onEvent  func(repoID, eventType, detail string)
}

// New creates a Handler that logs events for the given repo. The upstream
// handler and onEvent callback are optional (nil-safe).
func New(database *db.DB, repoID string, upstream events.EventHandler, onEvent func(repoID, eventType, detail string)) *Handler {
	return &Handler{
		db:       database,
		repoID:   repoID,
		upstream: upstream,
		onEvent:  onEvent,
	}
}

// Handle processes an event: formats it, logs non-empty details to the DB,
// invokes the onEvent callback, and forwards to the upstream handler.
func (h *Handler) Handle(e events.Event) {
	eventType, detail := Format(e)
	if detail != "" {
		if h.db != nil {
			_ = h.db.LogActivity(h.repoID, eventType, detail)
		}
		if h.onEvent != nil {
			h.onEvent(h.repoID, eventType, detail)
		}
	}

	if h.upstream != nil {
		h.upstream.Handle(e)
	}
}

// Format converts an event to an activity type plus a human-readable
// detail string. An empty detail means the event is not logged.
func Format(e events.Event) (eventType, detail string) {
	switch ev := e.(type) {
	case events.FetchStarted:
		return "fetch", fmt.Sprintf("Fetching %s/%s via %s", ev.Owner, ev.Repo, ev.Source)
	case events.TreeResolved:
		if ev.Truncated {
			return "fetch", fmt.Sprintf("Resolved branch %s: %d entries (truncated)", ev.Branch, ev.Entries)
		}
		return "fetch", fmt.Sprintf("Resolved branch %s: %d entries", ev.Branch, ev.Entries)
	case events.FileFetched:
		return "fetch", fmt.Sprintf("+ %s (%d bytes)", ev.Path, ev.Size)
	case events.ContextBuilt:
		return "fetch", fmt.Sprintf("Context built: %d files, %d bytes", ev.Files, ev.Bytes)
	case events.FetchFailed:
		return "fetch", "Fetch failed: " + ev.Reason
	case events.GenerationStarted:
		return "generate", fmt.Sprintf("Generating test cases with %s", ev.Model)
	case events.GenerationDone:
		return "generate", fmt.Sprintf("Generated %d test cases", ev.TotalTests)
	case events.GenerationFailed:
		return "generate", "Generation failed: " + ev.Reason
	case events.RunStarted:
		return "run", fmt.Sprintf("Run started: %d cases", ev.Cases)
	case events.CaseResult:
		if ev.Mock != "" {
			return "run", fmt.Sprintf("%s: %s (mock %s)", ev.CaseName, ev.Status, ev.Mock)
		}
		return "run", fmt.Sprintf("%s: %s", ev.CaseName, ev.Status)
	case events.RunDone:
		return "run", fmt.Sprintf("Run done: %d passed, %d failed", ev.Passed, ev.Failed)
	}
	return "", ""
}
