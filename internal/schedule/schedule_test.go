package schedule

import (
	"testing"
	"time"
)

func day(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDay(s)
	if err != nil {
		t.Fatalf("parse day %s: %v", s, err)
	}
	return d
}

func TestWeeklyDependsOnlyOnWeekday(t *testing.T) {
	s := Schedule{Kind: KindWeekly, Weekdays: []time.Weekday{time.Monday, time.Friday}}
	d := day(t, "2026-03-02") // a Monday
	for i := 0; i < 60; i++ {
		shifted := d.AddDate(0, 0, 7*i)
		if !IsActiveOn(s, shifted) {
			t.Fatalf("expected %s active (7-day shift of an active day)", FormatDay(shifted))
		}
		off := shifted.AddDate(0, 0, 1) // Tuesdays
		if IsActiveOn(s, off) {
			t.Fatalf("expected %s inactive", FormatDay(off))
		}
	}
}

func TestSpecificDateFiresOnce(t *testing.T) {
	s := Schedule{Kind: KindSpecificDate, Date: "2026-04-15"}
	if !IsActiveOn(s, day(t, "2026-04-15")) {
		t.Fatalf("expected active on the specific date")
	}
	if IsActiveOn(s, day(t, "2026-04-16")) || IsActiveOn(s, day(t, "2027-04-15")) {
		t.Fatalf("expected inactive on any other date")
	}
}

func TestMonthlyDate31NoRollover(t *testing.T) {
	s := Schedule{Kind: KindMonthlyDate, DayOfMonth: 31}
	if got := CountActiveDaysBetween(s, day(t, "2026-02-01"), day(t, "2026-02-28")); got != 0 {
		t.Fatalf("expected no active day in February, got %d", got)
	}
	if !IsActiveOn(s, day(t, "2026-03-31")) {
		t.Fatalf("expected active on March 31")
	}
	if IsActiveOn(s, day(t, "2026-03-01")) {
		t.Fatalf("expected inactive on March 1 (no rollover)")
	}
}

func TestMonthlyWeekday(t *testing.T) {
	// Second Tuesday of March 2026 is the 10th.
	s := Schedule{Kind: KindMonthlyWeekday, Ordinal: 2, Weekday: time.Tuesday}
	if !IsActiveOn(s, day(t, "2026-03-10")) {
		t.Fatalf("expected second Tuesday active")
	}
	if IsActiveOn(s, day(t, "2026-03-03")) || IsActiveOn(s, day(t, "2026-03-17")) {
		t.Fatalf("expected first/third Tuesday inactive")
	}
	// Last Friday of February 2026 is the 27th.
	last := Schedule{Kind: KindMonthlyWeekday, Ordinal: OrdinalLast, Weekday: time.Friday}
	if !IsActiveOn(last, day(t, "2026-02-27")) {
		t.Fatalf("expected last Friday active")
	}
	if IsActiveOn(last, day(t, "2026-02-20")) {
		t.Fatalf("expected second-to-last Friday inactive")
	}
}

func TestCountActiveDaysBetween(t *testing.T) {
	weekly := Schedule{Kind: KindWeekly, Weekdays: []time.Weekday{time.Monday, time.Wednesday, time.Friday}}
	// 2026-03-02 (Mon) .. 2026-03-15 (Sun): two full weeks.
	if got := CountActiveDaysBetween(weekly, day(t, "2026-03-02"), day(t, "2026-03-15")); got != 6 {
		t.Fatalf("expected 6 active days, got %d", got)
	}
	if got := CountActiveDaysBetween(weekly, day(t, "2026-03-15"), day(t, "2026-03-02")); got != 0 {
		t.Fatalf("expected 0 for start after end, got %d", got)
	}
	dup := Schedule{Kind: KindWeekly, Weekdays: []time.Weekday{time.Monday, time.Monday}}
	if got := CountActiveDaysBetween(dup, day(t, "2026-03-02"), day(t, "2026-03-08")); got != 1 {
		t.Fatalf("duplicate weekdays must not double count, got %d", got)
	}
	monthly := Schedule{Kind: KindMonthlyDate, DayOfMonth: 15}
	if got := CountActiveDaysBetween(monthly, day(t, "2026-01-01"), day(t, "2026-06-30")); got != 6 {
		t.Fatalf("expected 6 monthly hits, got %d", got)
	}
}

func TestScheduleJSONRoundTrip(t *testing.T) {
	in := Schedule{Kind: KindWeekly, Weekdays: []time.Weekday{time.Monday, time.Friday}}
	data, err := in.ToJSON()
	if err != nil {
		t.Fatalf("to json: %v", err)
	}
	out, err := FromJSON(data)
	if err != nil {
		t.Fatalf("from json: %v", err)
	}
	if out.Kind != KindWeekly || len(out.Weekdays) != 2 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
	if _, err := FromJSON(`{"kind":"sometimes"}`); err == nil {
		t.Fatalf("expected invalid kind to fail")
	}
}

func TestParseDayError(t *testing.T) {
	_, err := ParseDay("15/04/2026")
	if err == nil {
		t.Fatalf("expected parse error")
	}
	if _, ok := err.(*ParseError); !ok {
		t.Fatalf("expected *ParseError, got %T", err)
	}
}

func TestTimeWindow(t *testing.T) {
	if !IsWithinTimeRange(0, MinutesPerDay, 0) || !IsWithinTimeRange(0, MinutesPerDay, 1439) {
		t.Fatalf("all-day window must always match")
	}
	if !IsWithinTimeRange(540, 600, 540) || !IsWithinTimeRange(540, 600, 600) {
		t.Fatalf("bounds are inclusive")
	}
	if IsWithinTimeRange(540, 600, 601) || IsWithinTimeRange(540, 600, 539) {
		t.Fatalf("outside window must not match")
	}
	// The boundary minute is simultaneously in range and not overdue.
	if IsOverdueForToday(600, 600) {
		t.Fatalf("boundary minute is not overdue")
	}
	if !IsOverdueForToday(600, 601) {
		t.Fatalf("one past the boundary is overdue")
	}
	if err := ValidateWindow(600, 540); err == nil {
		t.Fatalf("expected wrap-around window to be rejected")
	}
}

func TestMinuteLabelMidnight(t *testing.T) {
	if MinuteLabel(0) != "12:00 AM" {
		t.Fatalf("minute 0: %s", MinuteLabel(0))
	}
	if MinuteLabel(MinutesPerDay) != "12:00 AM" {
		t.Fatalf("minute 1440: %s", MinuteLabel(MinutesPerDay))
	}
	if MinuteLabel(750) != "12:30 PM" {
		t.Fatalf("minute 750: %s", MinuteLabel(750))
	}
}

func TestNeedsDestructionMonotonic(t *testing.T) {
	on := day(t, "2026-05-10")
	if NeedsDestruction(on, day(t, "2026-05-09")) {
		t.Fatalf("not yet due")
	}
	for d := on; d.Before(day(t, "2026-06-10")); d = d.AddDate(0, 0, 1) {
		if !NeedsDestruction(on, d) {
			t.Fatalf("expected destruction to stay true on %s", FormatDay(d))
		}
	}
}
