package domain

// Quest is a schedulable task unit with a reward range, a daily time window
// and completion tracking. Dates are canonical yyyy-MM-dd strings; *_ms
// fields are Unix epoch milliseconds.
type Quest struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	ScheduleJSON      string  `json:"schedule_json"`
	StartMinute       int     `json:"start_minute"`
	EndMinute         int     `json:"end_minute"`
	RewardMin         int     `json:"reward_min"`
	RewardMax         int     `json:"reward_max"`
	DurationMinutes   int     `json:"duration_minutes,omitempty"`
	BreakMinutes      int     `json:"break_minutes,omitempty"`
	ProofRequired     bool    `json:"proof_required,omitempty"`
	ProofPrompt       string  `json:"proof_prompt,omitempty"`
	CreatedOn         string  `json:"created_on" format:"date"`
	AutoDestructOn    *string `json:"auto_destruct_on,omitempty" format:"date"`
	IsDestroyed       bool    `json:"is_destroyed"`
	LastCompletedOn   *string `json:"last_completed_on,omitempty" format:"date"`
	LastCompletedAtMs int64   `json:"last_completed_at_ms,omitempty"`
	QuestStartedAtMs  int64   `json:"quest_started_at_ms,omitempty"`
	Synced            bool    `json:"synced"`
	LastUpdatedMs     int64   `json:"last_updated_ms"`
	CalendarEventID   *string `json:"calendar_event_id,omitempty"`
}

// Completion is one per-day outcome for a quest. A row exists only for days
// the quest was active; missed active days are backfilled as failures by the
// ledger, never inferred from absence.
type Completion struct {
	QuestID       string `json:"quest_id"`
	Day           string `json:"day" format:"date"`
	Successful    bool   `json:"successful"`
	CompletedAtMs *int64 `json:"completed_at_ms,omitempty"`
}

// CalendarEvent is a cached snapshot of an external calendar event. The
// external calendar stays the source of truth; snapshots exist only so the
// sync differ can detect new/modified/deleted events.
type CalendarEvent struct {
	ID             string `json:"id"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	StartMs        int64  `json:"start_ms"`
	EndMs          int64  `json:"end_ms"`
	CalendarID     string `json:"calendar_id"`
	AllDay         bool   `json:"all_day"`
	LastModifiedMs int64  `json:"last_modified_ms"`
	Deleted        bool   `json:"deleted,omitempty"`
}

// Player holds the single local player's currency and progression.
type Player struct {
	Coins int `json:"coins"`
	XP    int `json:"xp"`
	Level int `json:"level"`
}

// RewardOutcome is the result of completing a quest. It is returned to the
// caller instead of being accumulated in shared mutable state, so a retried
// or re-entered completion cannot double-apply.
type RewardOutcome struct {
	QuestID     string `json:"quest_id"`
	CoinsEarned int    `json:"coins_earned"`
	XPEarned    int    `json:"xp_earned"`
	LeveledUp   bool   `json:"leveled_up"`
	NewLevel    int    `json:"new_level"`
}

// QuestStats are the read-only aggregates exposed to reporting callers.
type QuestStats struct {
	QuestID          string  `json:"quest_id"`
	CurrentStreak    int     `json:"current_streak"`
	LongestStreak    int     `json:"longest_streak"`
	WeeklyAverage    float64 `json:"weekly_average"`
	Successes        int     `json:"successes"`
	Failures         int     `json:"failures"`
	TotalPerformable int     `json:"total_performable"`
}

// Event is one row of the append-only activity log.
type Event struct {
	ID      int64  `json:"id"`
	TS      string `json:"ts" format:"date-time"`
	Type    string `json:"type"`
	QuestID string `json:"quest_id,omitempty"`
	Payload string `json:"payload_json"`
}
