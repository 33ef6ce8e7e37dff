package schedule

import (
	"fmt"
	"time"
)

// MinutesPerDay is the upper bound of a quest's time window. A window of
// [0, MinutesPerDay] means the quest is actionable all day.
const MinutesPerDay = 1440

// IsAllDay reports whether the window covers the whole day.
func IsAllDay(startMin, endMin int) bool {
	return startMin == 0 && endMin == MinutesPerDay
}

// ValidateWindow rejects windows that cross midnight or leave the day.
// Ranges never wrap in this model; end before start is invalid input.
func ValidateWindow(startMin, endMin int) error {
	if startMin < 0 || endMin > MinutesPerDay {
		return fmt.Errorf("time window must be within 0..%d", MinutesPerDay)
	}
	if endMin < startMin {
		return fmt.Errorf("time window end %d before start %d", endMin, startMin)
	}
	return nil
}

// IsWithinTimeRange reports whether nowMin falls inside [startMin, endMin].
// Both bounds are inclusive.
func IsWithinTimeRange(startMin, endMin, nowMin int) bool {
	if IsAllDay(startMin, endMin) {
		return true
	}
	return nowMin >= startMin && nowMin <= endMin
}

// IsOverdueForToday reports whether the window has already passed for the
// day. Strictly greater: the boundary minute is still in range, not overdue.
func IsOverdueForToday(endMin, nowMin int) bool {
	return nowMin > endMin
}

// MinuteOfDay converts a wall-clock time to its minute-of-day ordinal.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// MinuteLabel formats a minute-of-day for display. Minute 0 and minute 1440
// both render as 12 AM; the range check itself never wraps.
func MinuteLabel(min int) string {
	hour := (min / 60) % 24
	ampm := "AM"
	display := hour
	switch {
	case hour == 0:
		display = 12
	case hour == 12:
		ampm = "PM"
	case hour > 12:
		display = hour - 12
		ampm = "PM"
	}
	return fmt.Sprintf("%d:%02d %s", display, min%60, ampm)
}

// NeedsDestruction reports whether a quest whose auto-destruct date has
// arrived must be treated as permanently expired. Monotonic in today.
func NeedsDestruction(autoDestructOn, today time.Time) bool {
	return !truncateDay(today).Before(truncateDay(autoDestructOn))
}
