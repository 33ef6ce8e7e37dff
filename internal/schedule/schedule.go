package schedule

import (
	"encoding/json"
	"fmt"
	"time"
)

// DayFormat is the canonical date layout used everywhere in the core.
const DayFormat = "2006-01-02"

type Kind string

const (
	KindWeekly         Kind = "weekly"
	KindSpecificDate   Kind = "date"
	KindMonthlyDate    Kind = "monthly_date"
	KindMonthlyWeekday Kind = "monthly_weekday"
)

func (k Kind) IsValid() bool {
	switch k {
	case KindWeekly, KindSpecificDate, KindMonthlyDate, KindMonthlyWeekday:
		return true
	default:
		return false
	}
}

// OrdinalLast selects the last occurrence of a weekday in the month.
const OrdinalLast = -1

// Schedule is the tagged union describing when a quest recurs. Only the
// fields for the given Kind are meaningful.
type Schedule struct {
	Kind Kind `json:"kind"`

	// KindWeekly
	Weekdays []time.Weekday `json:"weekdays,omitempty"`

	// KindSpecificDate
	Date string `json:"date,omitempty"`

	// KindMonthlyDate
	DayOfMonth int `json:"day_of_month,omitempty"`

	// KindMonthlyWeekday
	Ordinal int          `json:"ordinal,omitempty"`
	Weekday time.Weekday `json:"weekday,omitempty"`
}

// ParseError reports a malformed date string or schedule descriptor. It is
// always localized to the single record being parsed.
type ParseError struct {
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("parse %q", e.Value)
}

func (e *ParseError) Unwrap() error { return e.Err }

// ParseDay parses a canonical yyyy-MM-dd date into a UTC midnight time.
func ParseDay(s string) (time.Time, error) {
	t, err := time.Parse(DayFormat, s)
	if err != nil {
		return time.Time{}, &ParseError{Value: s, Err: err}
	}
	return t, nil
}

// FormatDay renders a time as a canonical yyyy-MM-dd date.
func FormatDay(t time.Time) string { return t.Format(DayFormat) }

// FromJSON decodes a persisted schedule descriptor.
func FromJSON(data string) (Schedule, error) {
	var s Schedule
	if err := json.Unmarshal([]byte(data), &s); err != nil {
		return Schedule{}, &ParseError{Value: data, Err: err}
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// ToJSON encodes a schedule descriptor for persistence.
func (s Schedule) ToJSON() (string, error) {
	if err := s.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (s Schedule) Validate() error {
	switch s.Kind {
	case KindWeekly:
		for _, wd := range s.Weekdays {
			if wd < time.Sunday || wd > time.Saturday {
				return fmt.Errorf("invalid weekday %d", wd)
			}
		}
	case KindSpecificDate:
		if _, err := ParseDay(s.Date); err != nil {
			return err
		}
	case KindMonthlyDate:
		if s.DayOfMonth < 1 || s.DayOfMonth > 31 {
			return fmt.Errorf("day of month must be 1..31, got %d", s.DayOfMonth)
		}
	case KindMonthlyWeekday:
		if s.Ordinal != OrdinalLast && (s.Ordinal < 1 || s.Ordinal > 4) {
			return fmt.Errorf("week ordinal must be 1..4 or -1, got %d", s.Ordinal)
		}
		if s.Weekday < time.Sunday || s.Weekday > time.Saturday {
			return fmt.Errorf("invalid weekday %d", s.Weekday)
		}
	default:
		return fmt.Errorf("invalid schedule kind %q", s.Kind)
	}
	return nil
}

// IsActiveOn reports whether the schedule fires on the given calendar day.
func IsActiveOn(s Schedule, day time.Time) bool {
	switch s.Kind {
	case KindWeekly:
		for _, wd := range s.Weekdays {
			if day.Weekday() == wd {
				return true
			}
		}
		return false
	case KindSpecificDate:
		target, err := ParseDay(s.Date)
		if err != nil {
			return false
		}
		return sameDay(day, target)
	case KindMonthlyDate:
		// No rollover: day 31 never matches a 30-day month.
		return day.Day() == s.DayOfMonth
	case KindMonthlyWeekday:
		resolved, ok := nthWeekdayOfMonth(day.Year(), day.Month(), s.Ordinal, s.Weekday)
		return ok && sameDay(day, resolved)
	default:
		return false
	}
}

// CountActiveDaysBetween counts the active days in [start, end]. Returns 0
// when start is after end. Weekly schedules use a closed form; the other
// kinds iterate day by day, which is bounded by a quest's lifetime.
func CountActiveDaysBetween(s Schedule, start, end time.Time) int {
	start = truncateDay(start)
	end = truncateDay(end)
	if start.After(end) {
		return 0
	}
	if s.Kind == KindWeekly {
		total := 0
		seen := map[time.Weekday]bool{}
		for _, wd := range s.Weekdays {
			if seen[wd] {
				continue
			}
			seen[wd] = true
			total += countWeekday(start, end, wd)
		}
		return total
	}
	count := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if IsActiveOn(s, d) {
			count++
		}
	}
	return count
}

// countWeekday counts occurrences of wd in [start, end] without iterating
// full weeks: each complete 7-day block contributes exactly one.
func countWeekday(start, end time.Time, wd time.Weekday) int {
	days := int(end.Sub(start).Hours()/24) + 1
	count := days / 7
	d := start
	for i := 0; i < days%7; i++ {
		if d.Weekday() == wd {
			count++
		}
		d = d.AddDate(0, 0, 1)
	}
	return count
}

// nthWeekdayOfMonth resolves the Nth (or last) occurrence of a weekday in
// the given month. ok is false when the month has no Nth occurrence.
func nthWeekdayOfMonth(year int, month time.Month, ordinal int, wd time.Weekday) (time.Time, bool) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	offset := (int(wd) - int(first.Weekday()) + 7) % 7
	if ordinal == OrdinalLast {
		last := first.AddDate(0, 1, -1)
		back := (int(last.Weekday()) - int(wd) + 7) % 7
		return last.AddDate(0, 0, -back), true
	}
	candidate := first.AddDate(0, 0, offset+(ordinal-1)*7)
	if candidate.Month() != month {
		return time.Time{}, false
	}
	return candidate, true
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
