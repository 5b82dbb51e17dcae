/*
Package ledger provides the date-indexed session ledger of the tracker.

PURPOSE:
  For one (game, region) pair, keeps a sparse in-memory cache of per-day task
  progress and currency totals, fills it lazily from a persistence gateway,
  and keeps forward days consistent when an earlier day changes.

KEY CONCEPTS:
  - DateKey:  YYYYMMDD day, calendar arithmetic only
  - DayData:  one day's progress records, other/premium sources and totals
  - Totals:   initial (seed from the day before), calculated, override
  - GameSession: the cache for one (game, region) pair
  - Gateway:  the query/mutation contract of the backing store

CORE INVARIANTS:
  1. calculated[c].amount == initial[c].amount + calculated[c].gain, and gain is
     the sum of c over every source of the day. Always fully recomputed.
  2. If a day has an override, it is the day's effective value and seeds the
     next day's initial.
  3. Retroactive propagation walks forward only, in ascending date order, and
     stops at the first overridden day.

CONCURRENCY:
  A GameSession holds no locks. Callers serialize operations on one session
  (tracker.Tracker does).

SEE ALSO:
  - day.go: DayData and gain calculation
  - session.go: Population, baselines, initial seeding
  - retroactive.go: Forward propagation
  - store.go: Gateway contract
*/
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/warp/progress-tracker/currency"
)

// =============================================================================
// TASK TYPE - Closed set of progress containers
// =============================================================================

// TaskType selects which progress container a task lives in.
type TaskType int

const (
	TaskDaily TaskType = iota
	TaskWeekly
	TaskPeriodic
	TaskEvent
)

// TaskTypes lists every task type in storage order.
var TaskTypes = []TaskType{TaskDaily, TaskWeekly, TaskPeriodic, TaskEvent}

func (t TaskType) String() string {
	switch t {
	case TaskDaily:
		return "daily"
	case TaskWeekly:
		return "weekly"
	case TaskPeriodic:
		return "periodic"
	case TaskEvent:
		return "event"
	}
	return fmt.Sprintf("TaskType(%d)", int(t))
}

// Table is the task table backing this type.
func (t TaskType) Table() Table {
	switch t {
	case TaskDaily:
		return TableDaily
	case TaskWeekly:
		return TableWeekly
	case TaskPeriodic:
		return TablePeriodic
	case TaskEvent:
		return TableEvent
	}
	panic(fmt.Sprintf("ledger: unknown task type %d", int(t)))
}

// ParseTaskType parses "daily", "weekly", "periodic" or "event".
func ParseTaskType(s string) (TaskType, error) {
	switch strings.ToLower(s) {
	case "daily":
		return TaskDaily, nil
	case "weekly":
		return TaskWeekly, nil
	case "periodic":
		return TaskPeriodic, nil
	case "event":
		return TaskEvent, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownTaskType, s)
}

// =============================================================================
// RECORDS
// =============================================================================

// TrackedProgressData is one task's progress on one day.
// Currencies is the already-resolved reward delta of this record, not the
// task's static reward table.
type TrackedProgressData struct {
	Value             int              `json:"value"`
	Currencies        []currency.Value `json:"currencies"`
	RankedStageValues map[string]int   `json:"ranked_stage_values,omitempty"`
	Notes             string           `json:"notes,omitempty"`
}

func (p *TrackedProgressData) empty() bool {
	return p.Value == 0 && len(p.Currencies) == 0 && p.Notes == ""
}

func (p *TrackedProgressData) clone() *TrackedProgressData {
	cp := &TrackedProgressData{
		Value:      p.Value,
		Currencies: currency.Clone(p.Currencies),
		Notes:      p.Notes,
	}
	if p.RankedStageValues != nil {
		cp.RankedStageValues = make(map[string]int, len(p.RankedStageValues))
		for k, v := range p.RankedStageValues {
			cp.RankedStageValues[k] = v
		}
	}
	return cp
}

// OtherSource is a free-form named income source for a day.
type OtherSource struct {
	Notes      string           `json:"notes"`
	Currencies []currency.Value `json:"currencies"`
}

// PremiumSource is a manually entered purchase/spending record.
type PremiumSource struct {
	ID         int              `json:"id"`
	Name       string           `json:"name"`
	Category   string           `json:"category"`
	Currencies []currency.Value `json:"currencies"`
	Spending   decimal.Decimal  `json:"spending"`
	Notes      string           `json:"notes"`
}

// Totals is the currency state of a day.
type Totals struct {
	Initial    []currency.Value   `json:"initial"`
	Calculated []currency.History `json:"calculated"`
	Override   []currency.Value   `json:"override"`
}
