package repo

import (
	"context"
	"database/sql"

	"questpilot/internal/domain"
)

// CompletionRepo persists per-day quest outcomes. Rows are append/update
// only; nothing here deletes history.
type CompletionRepo struct {
	DB *sql.DB
}

func (r CompletionRepo) ForQuest(ctx context.Context, questID string) ([]domain.Completion, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT quest_id,day,successful,completed_at_ms
FROM completions WHERE quest_id=? ORDER BY day ASC`, questID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Completion
	for rows.Next() {
		var c domain.Completion
		var at sql.NullInt64
		if err := rows.Scan(&c.QuestID, &c.Day, &c.Successful, &at); err != nil {
			return nil, err
		}
		if at.Valid {
			c.CompletedAtMs = &at.Int64
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r CompletionRepo) ForDay(ctx context.Context, questID, day string) (domain.Completion, error) {
	var c domain.Completion
	var at sql.NullInt64
	err := r.DB.QueryRowContext(ctx, `SELECT quest_id,day,successful,completed_at_ms
FROM completions WHERE quest_id=? AND day=?`, questID, day).Scan(&c.QuestID, &c.Day, &c.Successful, &at)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	if at.Valid {
		c.CompletedAtMs = &at.Int64
	}
	return c, nil
}

func (r CompletionRepo) Upsert(ctx context.Context, c domain.Completion) error {
	var at any
	if c.CompletedAtMs != nil {
		at = *c.CompletedAtMs
	}
	_, err := r.DB.ExecContext(ctx, `INSERT INTO completions(quest_id,day,successful,completed_at_ms)
VALUES (?,?,?,?)
ON CONFLICT(quest_id,day) DO UPDATE SET successful=excluded.successful, completed_at_ms=excluded.completed_at_ms`,
		c.QuestID, c.Day, c.Successful, at)
	return err
}
