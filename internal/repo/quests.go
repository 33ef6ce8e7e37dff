package repo

import (
	"context"
	"database/sql"

	"questpilot/internal/domain"
)

// QuestRepo persists quest records.
type QuestRepo struct {
	DB *sql.DB
}

const questColumns = `id,title,schedule_json,start_minute,end_minute,reward_min,reward_max,
duration_minutes,break_minutes,proof_required,COALESCE(proof_prompt,'') AS proof_prompt,
created_on,auto_destruct_on,is_destroyed,last_completed_on,last_completed_at_ms,
quest_started_at_ms,synced,last_updated_ms,calendar_event_id`

func scanQuest(row scanner) (domain.Quest, error) {
	var q domain.Quest
	var autoDestruct, lastCompleted, calendarEvent sql.NullString
	err := row.Scan(&q.ID, &q.Title, &q.ScheduleJSON, &q.StartMinute, &q.EndMinute,
		&q.RewardMin, &q.RewardMax, &q.DurationMinutes, &q.BreakMinutes,
		&q.ProofRequired, &q.ProofPrompt, &q.CreatedOn, &autoDestruct, &q.IsDestroyed,
		&lastCompleted, &q.LastCompletedAtMs, &q.QuestStartedAtMs, &q.Synced,
		&q.LastUpdatedMs, &calendarEvent)
	if err == sql.ErrNoRows {
		return q, ErrNotFound
	}
	if err != nil {
		return q, err
	}
	if autoDestruct.Valid {
		q.AutoDestructOn = &autoDestruct.String
	}
	if lastCompleted.Valid {
		q.LastCompletedOn = &lastCompleted.String
	}
	if calendarEvent.Valid {
		q.CalendarEventID = &calendarEvent.String
	}
	return q, nil
}

func (r QuestRepo) Insert(ctx context.Context, q domain.Quest) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO quests(id,title,schedule_json,start_minute,end_minute,
reward_min,reward_max,duration_minutes,break_minutes,proof_required,proof_prompt,created_on,
auto_destruct_on,is_destroyed,last_completed_on,last_completed_at_ms,quest_started_at_ms,
synced,last_updated_ms,calendar_event_id)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		q.ID, q.Title, q.ScheduleJSON, q.StartMinute, q.EndMinute,
		q.RewardMin, q.RewardMax, q.DurationMinutes, q.BreakMinutes,
		q.ProofRequired, nullable(q.ProofPrompt), q.CreatedOn,
		nullablePtr(q.AutoDestructOn), q.IsDestroyed, nullablePtr(q.LastCompletedOn),
		q.LastCompletedAtMs, q.QuestStartedAtMs, q.Synced, q.LastUpdatedMs,
		nullablePtr(q.CalendarEventID))
	return err
}

func (r QuestRepo) Update(ctx context.Context, q domain.Quest) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE quests SET title=?,schedule_json=?,start_minute=?,end_minute=?,
reward_min=?,reward_max=?,duration_minutes=?,break_minutes=?,proof_required=?,proof_prompt=?,
auto_destruct_on=?,is_destroyed=?,last_completed_on=?,last_completed_at_ms=?,
quest_started_at_ms=?,synced=?,last_updated_ms=?,calendar_event_id=? WHERE id=?`,
		q.Title, q.ScheduleJSON, q.StartMinute, q.EndMinute,
		q.RewardMin, q.RewardMax, q.DurationMinutes, q.BreakMinutes,
		q.ProofRequired, nullable(q.ProofPrompt),
		nullablePtr(q.AutoDestructOn), q.IsDestroyed, nullablePtr(q.LastCompletedOn),
		q.LastCompletedAtMs, q.QuestStartedAtMs, q.Synced, q.LastUpdatedMs,
		nullablePtr(q.CalendarEventID), q.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r QuestRepo) ByID(ctx context.Context, id string) (domain.Quest, error) {
	return scanQuest(r.DB.QueryRowContext(ctx, `SELECT `+questColumns+` FROM quests WHERE id=?`, id))
}

// ByTitle resolves among non-destroyed quests only; destroyed quests free
// their title for reuse.
func (r QuestRepo) ByTitle(ctx context.Context, title string) (domain.Quest, error) {
	return scanQuest(r.DB.QueryRowContext(ctx, `SELECT `+questColumns+` FROM quests WHERE title=? AND is_destroyed=0`, title))
}

func (r QuestRepo) ByCalendarEventID(ctx context.Context, eventID string) (domain.Quest, error) {
	return scanQuest(r.DB.QueryRowContext(ctx, `SELECT `+questColumns+` FROM quests WHERE calendar_event_id=? AND is_destroyed=0`, eventID))
}

func (r QuestRepo) List(ctx context.Context, includeDestroyed bool) ([]domain.Quest, error) {
	query := `SELECT ` + questColumns + ` FROM quests`
	if !includeDestroyed {
		query += ` WHERE is_destroyed=0`
	}
	query += ` ORDER BY created_on ASC, title ASC`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Quest
	for rows.Next() {
		q, err := scanQuest(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, q)
	}
	return res, rows.Err()
}

func (r QuestRepo) Delete(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM quests WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkDestroyed flips the destroyed flag; completion history stays intact.
func (r QuestRepo) MarkDestroyed(ctx context.Context, id string, nowMs int64) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE quests SET is_destroyed=1, synced=0, last_updated_ms=? WHERE id=? AND is_destroyed=0`, nowMs, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// SweepDestroyed applies lazy destruction in bulk: every quest whose
// auto-destruct date is on or before today is marked destroyed. Canonical
// yyyy-MM-dd strings order lexicographically, so the comparison is textual.
func (r QuestRepo) SweepDestroyed(ctx context.Context, today string, nowMs int64) (int64, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE quests SET is_destroyed=1, synced=0, last_updated_ms=?
WHERE is_destroyed=0 AND auto_destruct_on IS NOT NULL AND auto_destruct_on <= ?`, nowMs, today)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return n, nil
}
