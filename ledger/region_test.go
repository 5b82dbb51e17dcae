package ledger_test

import (
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/progress-tracker/ledger"
)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestParseResetTime(t *testing.T) {
	tests := []struct {
		in     string
		tod    time.Duration
		offset time.Duration
	}{
		{"04:00:00", 4 * time.Hour, 0},
		{"04:00:00 +08:00", 4 * time.Hour, 8 * time.Hour},
		{"04:00:00+08:00", 4 * time.Hour, 8 * time.Hour},
		{"05:30:00 -05:00", 5*time.Hour + 30*time.Minute, -5 * time.Hour},
		{"", 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			rc, err := ledger.ParseResetTime(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.tod, rc.TimeOfDay)
			assert.Equal(t, tt.offset, rc.Offset)
		})
	}

	_, err := ledger.ParseResetTime("ab:00:00")
	assert.Error(t, err)
}

func TestResetClock_CurrentDate(t *testing.T) {
	rc, err := ledger.ParseResetTime("04:00:00 +08:00")
	require.NoError(t, err)

	// 03:30 local is still the previous game day
	assert.Equal(t, ledger.DateKey(20240601), rc.CurrentDate(time.Date(2024, 6, 1, 19, 30, 0, 0, time.UTC)))
	// 04:30 local is past the reset
	assert.Equal(t, ledger.DateKey(20240602), rc.CurrentDate(time.Date(2024, 6, 1, 20, 30, 0, 0, time.UTC)))

	west, err := ledger.ParseResetTime("05:00:00 -05:00")
	require.NoError(t, err)
	assert.Equal(t, ledger.DateKey(20240531), west.CurrentDate(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)))
}

func TestResetClock_NextReset(t *testing.T) {
	rc, err := ledger.ParseResetTime("04:00:00 +08:00")
	require.NoError(t, err)

	next := rc.NextReset(time.Date(2024, 6, 1, 19, 30, 0, 0, time.UTC))
	assert.True(t, next.Equal(time.Date(2024, 6, 1, 20, 0, 0, 0, time.UTC)), "got %s", next)
}

func TestRegion_Clock_FallsBackToMidnightUTC(t *testing.T) {
	// GIVEN: no region data at all
	rc := ledger.Region{}.Clock(quietLogger())
	assert.Equal(t, ledger.ResetClock{}, rc)

	// GIVEN: an unparsable reset time
	rc = ledger.Region{ID: "na", ResetTime: "noon"}.Clock(quietLogger())
	assert.Equal(t, ledger.ResetClock{}, rc)

	now := time.Date(2024, 6, 1, 0, 0, 1, 0, time.UTC)
	assert.Equal(t, ledger.DateKey(20240601), rc.CurrentDate(now))
}
