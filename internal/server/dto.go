package server

import (
	"questpilot/internal/domain"
	"questpilot/internal/engine"
	"questpilot/internal/schedule"
)

type CreateQuestRequest struct {
	Title           string            `json:"title"`
	Schedule        schedule.Schedule `json:"schedule"`
	StartMinute     int               `json:"start_minute,omitempty" minimum:"0" maximum:"1440"`
	EndMinute       int               `json:"end_minute,omitempty" minimum:"0" maximum:"1440"`
	RewardMin       int               `json:"reward_min,omitempty" minimum:"0"`
	RewardMax       int               `json:"reward_max,omitempty" minimum:"0"`
	DurationMinutes int               `json:"duration_minutes,omitempty" minimum:"0"`
	BreakMinutes    int               `json:"break_minutes,omitempty" minimum:"0"`
	ProofRequired   bool              `json:"proof_required,omitempty"`
	ProofPrompt     string            `json:"proof_prompt,omitempty"`
	AutoDestructOn  string            `json:"auto_destruct_on,omitempty" format:"date"`
}

// QuestResponse is the wire form of a quest. The stored schedule JSON is
// surfaced as a structured object.
type QuestResponse struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Schedule          schedule.Schedule `json:"schedule"`
	StartMinute       int               `json:"start_minute"`
	EndMinute         int               `json:"end_minute"`
	RewardMin         int               `json:"reward_min"`
	RewardMax         int               `json:"reward_max"`
	DurationMinutes   int               `json:"duration_minutes,omitempty"`
	BreakMinutes      int               `json:"break_minutes,omitempty"`
	ProofRequired     bool              `json:"proof_required,omitempty"`
	ProofPrompt       string            `json:"proof_prompt,omitempty"`
	CreatedOn         string            `json:"created_on" format:"date"`
	AutoDestructOn    *string           `json:"auto_destruct_on,omitempty" format:"date"`
	IsDestroyed       bool              `json:"is_destroyed"`
	LastCompletedOn   *string           `json:"last_completed_on,omitempty" format:"date"`
	LastCompletedAtMs int64             `json:"last_completed_at_ms,omitempty"`
	QuestStartedAtMs  int64             `json:"quest_started_at_ms,omitempty"`
	CalendarEventID   *string           `json:"calendar_event_id,omitempty"`
}

type DayStatusResponse struct {
	Quest        QuestResponse `json:"quest"`
	ActiveToday  bool          `json:"active_today"`
	WithinWindow bool          `json:"within_window"`
	OverdueToday bool          `json:"overdue_today"`
}

func questResponse(q domain.Quest) QuestResponse {
	sched, err := schedule.FromJSON(q.ScheduleJSON)
	if err != nil {
		sched = schedule.Schedule{}
	}
	return QuestResponse{
		ID:                q.ID,
		Title:             q.Title,
		Schedule:          sched,
		StartMinute:       q.StartMinute,
		EndMinute:         q.EndMinute,
		RewardMin:         q.RewardMin,
		RewardMax:         q.RewardMax,
		DurationMinutes:   q.DurationMinutes,
		BreakMinutes:      q.BreakMinutes,
		ProofRequired:     q.ProofRequired,
		ProofPrompt:       q.ProofPrompt,
		CreatedOn:         q.CreatedOn,
		AutoDestructOn:    q.AutoDestructOn,
		IsDestroyed:       q.IsDestroyed,
		LastCompletedOn:   q.LastCompletedOn,
		LastCompletedAtMs: q.LastCompletedAtMs,
		QuestStartedAtMs:  q.QuestStartedAtMs,
		CalendarEventID:   q.CalendarEventID,
	}
}

func statusResponse(st engine.DayStatus) DayStatusResponse {
	return DayStatusResponse{
		Quest:        questResponse(st.Quest),
		ActiveToday:  st.ActiveToday,
		WithinWindow: st.WithinWindow,
		OverdueToday: st.OverdueToday,
	}
}

func mapStatuses(items []engine.DayStatus) []DayStatusResponse {
	res := make([]DayStatusResponse, 0, len(items))
	for _, st := range items {
		res = append(res, statusResponse(st))
	}
	return res
}
