package engine

import (
	"context"

	"questpilot/internal/domain"
	"questpilot/internal/schedule"
)

// DayStatus is the per-day view of a quest used by list/report callers.
type DayStatus struct {
	Quest        domain.Quest `json:"quest"`
	ActiveToday  bool         `json:"active_today"`
	WithinWindow bool         `json:"within_window"`
	OverdueToday bool         `json:"overdue_today"`
	Destroyed    bool         `json:"destroyed"`
}

// Status evaluates a quest against the current day and minute, applying
// lazy destruction on the way.
func (e Engine) Status(ctx context.Context, q domain.Quest) (DayStatus, error) {
	st := DayStatus{Quest: q}
	destroyed, err := e.effectivelyDestroyed(ctx, &q)
	if err != nil {
		return st, err
	}
	st.Quest = q
	st.Destroyed = destroyed
	if destroyed {
		return st, nil
	}
	sched, err := schedule.FromJSON(q.ScheduleJSON)
	if err != nil {
		return st, err
	}
	st.ActiveToday = schedule.IsActiveOn(sched, e.today())
	if st.ActiveToday {
		nowMin := schedule.MinuteOfDay(e.now().UTC())
		st.WithinWindow = schedule.IsWithinTimeRange(q.StartMinute, q.EndMinute, nowMin)
		st.OverdueToday = schedule.IsOverdueForToday(q.EndMinute, nowMin)
	}
	return st, nil
}

// ListStatuses evaluates every live quest for the day.
func (e Engine) ListStatuses(ctx context.Context) ([]DayStatus, error) {
	quests, err := e.Quests.List(ctx, false)
	if err != nil {
		return nil, err
	}
	var res []DayStatus
	for _, q := range quests {
		st, err := e.Status(ctx, q)
		if err != nil {
			return nil, err
		}
		if st.Destroyed {
			continue
		}
		res = append(res, st)
	}
	return res, nil
}
