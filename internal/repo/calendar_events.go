package repo

import (
	"context"
	"database/sql"

	"questpilot/internal/domain"
)

// CalendarEventRepo caches external calendar event snapshots for diffing.
// Snapshots are soft-deleted so a re-appearing event id diffs as new.
type CalendarEventRepo struct {
	DB *sql.DB
}

const eventColumns = `id,title,COALESCE(description,'') AS description,start_ms,end_ms,calendar_id,all_day,last_modified_ms,deleted`

func scanCalendarEvent(row scanner) (domain.CalendarEvent, error) {
	var e domain.CalendarEvent
	err := row.Scan(&e.ID, &e.Title, &e.Description, &e.StartMs, &e.EndMs,
		&e.CalendarID, &e.AllDay, &e.LastModifiedMs, &e.Deleted)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r CalendarEventRepo) ByID(ctx context.Context, id string) (domain.CalendarEvent, error) {
	return scanCalendarEvent(r.DB.QueryRowContext(ctx, `SELECT `+eventColumns+` FROM calendar_events WHERE id=?`, id))
}

func (r CalendarEventRepo) InRange(ctx context.Context, startMs, endMs int64) ([]domain.CalendarEvent, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+eventColumns+` FROM calendar_events
WHERE deleted=0 AND start_ms >= ? AND start_ms < ? ORDER BY start_ms ASC`, startMs, endMs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.CalendarEvent
	for rows.Next() {
		e, err := scanCalendarEvent(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func (r CalendarEventRepo) Insert(ctx context.Context, e domain.CalendarEvent) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO calendar_events(id,title,description,start_ms,end_ms,calendar_id,all_day,last_modified_ms,deleted)
VALUES (?,?,?,?,?,?,?,?,0)
ON CONFLICT(id) DO UPDATE SET title=excluded.title, description=excluded.description,
start_ms=excluded.start_ms, end_ms=excluded.end_ms, calendar_id=excluded.calendar_id,
all_day=excluded.all_day, last_modified_ms=excluded.last_modified_ms, deleted=0`,
		e.ID, e.Title, nullable(e.Description), e.StartMs, e.EndMs, e.CalendarID, e.AllDay, e.LastModifiedMs)
	return err
}

func (r CalendarEventRepo) Update(ctx context.Context, e domain.CalendarEvent) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE calendar_events SET title=?, description=?, start_ms=?, end_ms=?,
calendar_id=?, all_day=?, last_modified_ms=? WHERE id=?`,
		e.Title, nullable(e.Description), e.StartMs, e.EndMs, e.CalendarID, e.AllDay, e.LastModifiedMs, e.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r CalendarEventRepo) MarkDeleted(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE calendar_events SET deleted=1 WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
