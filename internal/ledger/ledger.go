package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"questpilot/internal/domain"
	"questpilot/internal/schedule"
)

// Store is the persistence surface the ledger needs. Satisfied by
// repo.CompletionRepo.
type Store interface {
	ForQuest(ctx context.Context, questID string) ([]domain.Completion, error)
	Upsert(ctx context.Context, c domain.Completion) error
}

// Ledger owns per-day success/failure records. Reconciliation performs a
// read-then-write backfill, so callers must not invoke it concurrently for
// the same quest.
type Ledger struct {
	Store Store
}

// RecordSuccess upserts a successful completion for the given day. Upsert
// semantics let a success recorded after a reconcile pass overwrite the
// backfilled failure for the same day.
func (l Ledger) RecordSuccess(ctx context.Context, questID string, day, completedAt time.Time) error {
	ms := completedAt.UnixMilli()
	return l.Store.Upsert(ctx, domain.Completion{
		QuestID:       questID,
		Day:           schedule.FormatDay(day),
		Successful:    true,
		CompletedAtMs: &ms,
	})
}

// ReconcileFailures inserts an explicit failure record for every active day
// in (lastKnownCheckDate, today] that has no record yet, where
// lastKnownCheckDate is the newest recorded day, or the quest's creation
// date when nothing has been recorded. Running it twice without new
// completions in between is a no-op. Returns the number of backfilled days.
func (l Ledger) ReconcileFailures(ctx context.Context, quest domain.Quest, today time.Time) (int, error) {
	sched, err := schedule.FromJSON(quest.ScheduleJSON)
	if err != nil {
		return 0, err
	}
	records, err := l.Store.ForQuest(ctx, quest.ID)
	if err != nil {
		return 0, err
	}
	recorded := recordedDays(records)
	lastKnown, err := schedule.ParseDay(quest.CreatedOn)
	if err != nil {
		return 0, fmt.Errorf("quest %s created_on: %w", quest.ID, err)
	}
	for _, r := range records {
		d, err := schedule.ParseDay(r.Day)
		if err != nil {
			return 0, err
		}
		if d.After(lastKnown) {
			lastKnown = d
		}
	}
	backfilled := 0
	for d := lastKnown.AddDate(0, 0, 1); !d.After(today); d = d.AddDate(0, 0, 1) {
		if !schedule.IsActiveOn(sched, d) {
			continue
		}
		key := schedule.FormatDay(d)
		if recorded[key] {
			continue
		}
		if err := l.Store.Upsert(ctx, domain.Completion{
			QuestID:    quest.ID,
			Day:        key,
			Successful: false,
		}); err != nil {
			return backfilled, err
		}
		backfilled++
	}
	return backfilled, nil
}

// CurrentStreak walks backward day by day from today, skipping inactive
// days, and counts consecutive active days with a recorded success. The walk
// stops at the first active day without one and never goes past createdOn.
// An empty weekly selection yields 0 immediately.
func CurrentStreak(s schedule.Schedule, records []domain.Completion, createdOn, today time.Time) int {
	if s.Kind == schedule.KindWeekly && len(s.Weekdays) == 0 {
		return 0
	}
	success := successDays(records)
	streak := 0
	for d := today; !d.Before(createdOn); d = d.AddDate(0, 0, -1) {
		if !schedule.IsActiveOn(s, d) {
			continue
		}
		if !success[schedule.FormatDay(d)] {
			break
		}
		streak++
	}
	return streak
}

// LongestStreak scans all records in ascending day order, restricted to
// active days, resetting the running count on any active day without a
// success.
func LongestStreak(s schedule.Schedule, records []domain.Completion) int {
	sorted := make([]domain.Completion, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Day < sorted[j].Day })
	longest, run := 0, 0
	for _, r := range sorted {
		d, err := schedule.ParseDay(r.Day)
		if err != nil || !schedule.IsActiveOn(s, d) {
			continue
		}
		if r.Successful {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 0
		}
	}
	return longest
}

// WeeklyAverage groups successes by ISO week (weeks start on Monday) and
// averages the per-week success count across the weeks that contain at
// least one record of either outcome.
func WeeklyAverage(records []domain.Completion) float64 {
	weeks := map[string]bool{}
	successes := map[string]int{}
	for _, r := range records {
		d, err := schedule.ParseDay(r.Day)
		if err != nil {
			continue
		}
		year, week := d.ISOWeek()
		key := fmt.Sprintf("%04d-W%02d", year, week)
		weeks[key] = true
		if r.Successful {
			successes[key]++
		}
	}
	if len(weeks) == 0 {
		return 0
	}
	total := 0
	for _, n := range successes {
		total += n
	}
	return float64(total) / float64(len(weeks))
}

// Counts tallies recorded successes and failures.
func Counts(records []domain.Completion) (successes, failures int) {
	for _, r := range records {
		if r.Successful {
			successes++
		} else {
			failures++
		}
	}
	return successes, failures
}

func recordedDays(records []domain.Completion) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, r := range records {
		out[r.Day] = true
	}
	return out
}

func successDays(records []domain.Completion) map[string]bool {
	out := make(map[string]bool, len(records))
	for _, r := range records {
		if r.Successful {
			out[r.Day] = true
		}
	}
	return out
}
