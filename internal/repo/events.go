package repo

import (
	"context"
	"database/sql"

	"questpilot/internal/domain"
)

// EventRepo reads the append-only activity log.
type EventRepo struct {
	DB *sql.DB
}

func (r EventRepo) Latest(ctx context.Context, n int, evtType, questID string) ([]domain.Event, error) {
	query := `SELECT id,ts,type,COALESCE(quest_id,'') AS quest_id,payload_json FROM events`
	var clauses []string
	var args []any
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if questID != "" {
		clauses = append(clauses, "quest_id=?")
		args = append(args, questID)
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY id DESC"
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, n)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &e.QuestID, &e.Payload); err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
