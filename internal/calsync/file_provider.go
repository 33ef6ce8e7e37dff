package calsync

import (
	"context"
	"encoding/json"
	"os"

	"questpilot/internal/domain"
)

// FileProvider serves calendar events from a JSON export on disk. It stands
// in for a platform calendar on machines where the real provider lives
// behind the UI layer; permission maps to file readability.
type FileProvider struct {
	Path string
}

func (p FileProvider) HasPermission(context.Context) bool {
	f, err := os.Open(p.Path)
	if err != nil {
		return false
	}
	f.Close()
	return true
}

func (p FileProvider) EventsInRange(_ context.Context, startMs, endMs int64, calendarIDs []string) ([]domain.CalendarEvent, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return nil, err
	}
	var all []domain.CalendarEvent
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	wanted := map[string]bool{}
	for _, id := range calendarIDs {
		wanted[id] = true
	}
	var res []domain.CalendarEvent
	for _, ev := range all {
		if ev.StartMs < startMs || ev.StartMs >= endMs {
			continue
		}
		if len(wanted) > 0 && !wanted[ev.CalendarID] {
			continue
		}
		res = append(res, ev)
	}
	return res, nil
}
