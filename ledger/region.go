package ledger

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// =============================================================================
// REGION - Server population with its own daily cutover
// =============================================================================

// Region is a server region of a game.
// ResetTime is "HH:MM:SS" optionally followed by a UTC offset:
// "04:00:00", "04:00:00 +08:00", "05:00:00 -05:00".
type Region struct {
	ID        string `json:"id" yaml:"id" validate:"required"`
	ResetTime string `json:"reset_time" yaml:"reset_time"`
}

// DefaultResetTime is midnight UTC.
const DefaultResetTime = "00:00:00"

// ResetClock is a parsed reset time.
type ResetClock struct {
	TimeOfDay time.Duration
	Offset    time.Duration
}

// ParseResetTime parses a region reset time string.
func ParseResetTime(s string) (ResetClock, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ResetClock{}, nil
	}

	fields := strings.Fields(s)
	clockPart := fields[0]
	offsetPart := ""
	if len(fields) > 1 {
		offsetPart = fields[1]
	} else if i := strings.IndexAny(clockPart, "+-"); i > 0 {
		clockPart, offsetPart = clockPart[:i], clockPart[i:]
	}

	tod, err := parseClock(clockPart)
	if err != nil {
		return ResetClock{}, fmt.Errorf("invalid reset time %q: %w", s, err)
	}

	var offset time.Duration
	if offsetPart != "" {
		sign := time.Duration(1)
		switch offsetPart[0] {
		case '-':
			sign = -1
			offsetPart = offsetPart[1:]
		case '+':
			offsetPart = offsetPart[1:]
		}
		o, err := parseClock(offsetPart)
		if err != nil {
			return ResetClock{}, fmt.Errorf("invalid reset offset %q: %w", s, err)
		}
		offset = sign * o
	}

	return ResetClock{TimeOfDay: tod, Offset: offset}, nil
}

func parseClock(s string) (time.Duration, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 1 || len(parts) > 3 {
		return 0, fmt.Errorf("expected HH[:MM[:SS]]")
	}
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	var total time.Duration
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("bad component %q", p)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

// Clock returns the parsed reset time, falling back to midnight UTC when the
// region has no data or the string cannot be parsed.
func (r Region) Clock(logger logrus.FieldLogger) ResetClock {
	if r.ID == "" && r.ResetTime == "" {
		logger.Warn("region data not found, using midnight UTC reset")
		return ResetClock{}
	}
	rc, err := ParseResetTime(r.ResetTime)
	if err != nil {
		logger.WithField("region", r.ID).WithError(err).Warn("using midnight UTC reset")
		return ResetClock{}
	}
	return rc
}

// CurrentDate returns the in-game date for now: the calendar date in the
// region's offset zone once the reset time-of-day is subtracted.
func (rc ResetClock) CurrentDate(now time.Time) DateKey {
	zone := time.FixedZone("", int(rc.Offset.Seconds()))
	return DateKeyFromTime(now.In(zone).Add(-rc.TimeOfDay))
}

// NextReset returns the instant of the next daily reset after now.
func (rc ResetClock) NextReset(now time.Time) time.Time {
	zone := time.FixedZone("", int(rc.Offset.Seconds()))
	today := rc.CurrentDate(now).Time()
	start := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, zone).Add(rc.TimeOfDay)
	return start.AddDate(0, 0, 1)
}
