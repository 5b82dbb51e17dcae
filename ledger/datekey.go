package ledger

import (
	"fmt"
	"strconv"
	"time"
)

// =============================================================================
// DATE KEY - YYYYMMDD calendar day in a region's reset-adjusted timeline
// =============================================================================

// DateKey is a calendar day encoded as YYYYMMDD (20240601).
// The encoding is not contiguous across month and year boundaries, so all
// arithmetic goes through time.Time.
type DateKey int

// NewDateKey builds a key from calendar parts.
func NewDateKey(year int, month time.Month, day int) DateKey {
	return DateKey(year*10000 + int(month)*100 + day)
}

// DateKeyFromTime returns the key of t's calendar date in t's location.
func DateKeyFromTime(t time.Time) DateKey {
	return NewDateKey(t.Year(), t.Month(), t.Day())
}

// ParseDateKey accepts "20240601" or "2024-06-01".
func ParseDateKey(s string) (DateKey, error) {
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return DateKeyFromTime(t), nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid date key %q", s)
	}
	d := DateKey(n)
	if !d.Valid() {
		return 0, fmt.Errorf("invalid date key %q", s)
	}
	return d, nil
}

// Valid reports whether d names a real calendar day.
func (d DateKey) Valid() bool {
	y, m, day := d.parts()
	if m < 1 || m > 12 || day < 1 || y < 1 {
		return false
	}
	return d.Time().Day() == day
}

func (d DateKey) parts() (int, int, int) {
	n := int(d)
	return n / 10000, (n / 100) % 100, n % 100
}

// Time returns midnight UTC of d.
func (d DateKey) Time() time.Time {
	y, m, day := d.parts()
	return time.Date(y, time.Month(m), day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns d shifted by n calendar days.
func (d DateKey) AddDays(n int) DateKey {
	return DateKeyFromTime(d.Time().AddDate(0, 0, n))
}

// Next is d+1.
func (d DateKey) Next() DateKey { return d.AddDays(1) }

// Prev is d-1.
func (d DateKey) Prev() DateKey { return d.AddDays(-1) }

// Weekday of d.
func (d DateKey) Weekday() time.Weekday { return d.Time().Weekday() }

// Before, After compare chronologically. Integer order matches calendar order
// for YYYYMMDD, so plain comparison is fine here; only arithmetic is not.
func (d DateKey) Before(o DateKey) bool { return d < o }
func (d DateKey) After(o DateKey) bool  { return d > o }

func (d DateKey) String() string {
	return d.Time().Format("2006-01-02")
}

// OffsetDateKey returns d shifted by offset days.
//
//	OffsetDateKey(20240131, 1) == 20240201
//	OffsetDateKey(20241231, 1) == 20250101
func OffsetDateKey(d DateKey, offset int) DateKey {
	return d.AddDays(offset)
}

// DaysBetween returns the number of calendar days from a to b (negative when b < a).
func DaysBetween(a, b DateKey) int {
	return int(b.Time().Sub(a.Time()).Hours() / 24)
}

// MinDate returns the earlier key.
func MinDate(a, b DateKey) DateKey {
	if a < b {
		return a
	}
	return b
}

// MaxDate returns the later key.
func MaxDate(a, b DateKey) DateKey {
	if a > b {
		return a
	}
	return b
}
