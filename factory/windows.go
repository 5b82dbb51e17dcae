package factory

import (
	"github.com/warp/progress-tracker/ledger"
	"github.com/warp/progress-tracker/rewards"
)

// =============================================================================
// RESET WINDOWS
// =============================================================================

// Window returns the reset window of task that contains d.
//
//	daily:    [d, d]
//	weekly:   most recent weekly reset on or before d, 7 days
//	periodic: reset_day + k*reset_period, reset_period days
//	event:    [start_date, end_date]
//
// A periodic or event task with unusable window fields degrades to one day,
// as does an event task outside its own dates.
func (g *GameConfig) Window(t ledger.TaskType, task rewards.Task, d ledger.DateKey) ledger.Period {
	switch t {
	case ledger.TaskWeekly:
		return ledger.WeeklyPeriod(d, g.WeeklyReset())
	case ledger.TaskPeriodic:
		anchor, err := ledger.ParseDateKey(task.ResetDay)
		if err != nil {
			return ledger.SingleDay(d)
		}
		return ledger.RecurringPeriod(d, anchor, task.ResetPeriod)
	case ledger.TaskEvent:
		p, ok := EventPeriod(task)
		if !ok || !p.Contains(d) {
			return ledger.SingleDay(d)
		}
		return p
	}
	return ledger.SingleDay(d)
}

// EventPeriod is the [start_date, end_date] span of an event task. ok is
// false when either date is missing or the span is inverted.
func EventPeriod(task rewards.Task) (p ledger.Period, ok bool) {
	start, err1 := ledger.ParseDateKey(task.StartDate)
	end, err2 := ledger.ParseDateKey(task.EndDate)
	if err1 != nil || err2 != nil || end < start {
		return ledger.Period{}, false
	}
	return ledger.Period{Start: start, End: end}, true
}

// StageWindow is the window used for a ranked task's stage baselines. Stages
// may carry their own recurring reset; otherwise the task's window applies.
func (g *GameConfig) StageWindow(t ledger.TaskType, task rewards.Task, d ledger.DateKey) ledger.Period {
	if rs := task.RankedStages; rs != nil && rs.ResetDay != "" && rs.ResetPeriod > 0 {
		if anchor, err := ledger.ParseDateKey(rs.ResetDay); err == nil {
			return ledger.RecurringPeriod(d, anchor, rs.ResetPeriod)
		}
	}
	return g.Window(t, task, d)
}

// EarliestWindowStart is the earliest start among the weekly window and the
// window of every periodic task at d. The game view populates from here.
func (g *GameConfig) EarliestWindowStart(d ledger.DateKey) ledger.DateKey {
	earliest := ledger.WeeklyPeriod(d, g.WeeklyReset()).Start
	for _, task := range g.Periodic {
		earliest = ledger.MinDate(earliest, g.Window(ledger.TaskPeriodic, task, d).Start)
		if task.IsRanked() {
			earliest = ledger.MinDate(earliest, g.StageWindow(ledger.TaskPeriodic, task, d).Start)
		}
	}
	return earliest
}
