package calsync

import "questpilot/internal/domain"

// DiffResult partitions the current fetch against the stored snapshots.
// Modified carries the current (newer) version of each event.
type DiffResult struct {
	New      []domain.CalendarEvent
	Deleted  []domain.CalendarEvent
	Modified []domain.CalendarEvent
}

// Diff compares by event id: new = current minus stored, deleted = stored
// minus current, modified = intersection where the stored snapshot's
// last-modified timestamp is older than the current one.
func Diff(stored, current []domain.CalendarEvent) DiffResult {
	storedByID := make(map[string]domain.CalendarEvent, len(stored))
	for _, ev := range stored {
		storedByID[ev.ID] = ev
	}
	currentByID := make(map[string]domain.CalendarEvent, len(current))
	for _, ev := range current {
		currentByID[ev.ID] = ev
	}
	var out DiffResult
	for _, ev := range current {
		prev, ok := storedByID[ev.ID]
		switch {
		case !ok:
			out.New = append(out.New, ev)
		case prev.LastModifiedMs < ev.LastModifiedMs:
			out.Modified = append(out.Modified, ev)
		}
	}
	for _, ev := range stored {
		if _, ok := currentByID[ev.ID]; !ok {
			out.Deleted = append(out.Deleted, ev)
		}
	}
	return out
}
