package ledger

import (
	"strings"
	"time"
)

// =============================================================================
// PERIOD - Reset window of a task
// =============================================================================

// Period is a closed range of days [Start, End].
//
// Examples:
//   - Daily task:        [d, d]
//   - Weekly task:       last weekly reset .. +6
//   - Periodic task:     anchor + k*period .. +period-1
//   - Event task:        start_date .. end_date
type Period struct {
	Start DateKey
	End   DateKey
}

// SingleDay is the window of a daily task.
func SingleDay(d DateKey) Period { return Period{Start: d, End: d} }

// Contains returns true if d is within [Start, End].
func (p Period) Contains(d DateKey) bool {
	return d >= p.Start && d <= p.End
}

// Boundary is the first day after the window (the next reset).
func (p Period) Boundary() DateKey { return p.End.Next() }

// Days returns every day in the period in ascending order.
func (p Period) Days() []DateKey {
	var days []DateKey
	for d := p.Start; d <= p.End; d = d.Next() {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// ParseWeekday parses a weekday name case-insensitively ("monday", "Mon").
func ParseWeekday(s string) (time.Weekday, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) < 3 {
		return time.Sunday, false
	}
	for wd := time.Sunday; wd <= time.Saturday; wd++ {
		name := strings.ToLower(wd.String())
		if name == s || name[:3] == s {
			return wd, true
		}
	}
	return time.Sunday, false
}

// WeeklyPeriod returns the 7-day window containing d that starts on resetDay.
// A date that is itself a reset day starts a new window.
func WeeklyPeriod(d DateKey, resetDay time.Weekday) Period {
	back := (int(d.Weekday()) - int(resetDay) + 7) % 7
	start := d.AddDays(-back)
	return Period{Start: start, End: start.AddDays(6)}
}

// RecurringPeriod returns the window of length days containing d, with
// windows anchored at anchor. Dates before the anchor fall into earlier
// windows (floor division).
func RecurringPeriod(d, anchor DateKey, length int) Period {
	if length <= 0 {
		return SingleDay(d)
	}
	offset := DaysBetween(anchor, d)
	k := offset / length
	if offset%length != 0 && offset < 0 {
		k--
	}
	start := anchor.AddDays(k * length)
	return Period{Start: start, End: start.AddDays(length - 1)}
}
