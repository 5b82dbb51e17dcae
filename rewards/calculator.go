package rewards

import (
	"github.com/warp/progress-tracker/currency"
)

// =============================================================================
// CALCULATOR
// =============================================================================

// Calculator resolves reward deltas. Only tracked currencies are ever
// returned; untracked entries of a reward table are dropped.
type Calculator struct {
	tracked currency.Set
}

// NewCalculator creates a calculator for the given tracked currencies.
func NewCalculator(tracked ...currency.ID) *Calculator {
	return &Calculator{tracked: currency.NewSet(tracked...)}
}

// Tracked reports whether c participates in totals.
func (c *Calculator) Tracked(id currency.ID) bool {
	return c.tracked.Has(id)
}

// Flat grants the static reward list once when value > 0.
func (c *Calculator) Flat(rewards []currency.Value, value int) []currency.Value {
	if value <= 0 {
		return nil
	}
	var out []currency.Value
	for _, r := range rewards {
		if !c.tracked.Has(r.Currency) {
			continue
		}
		out = currency.Accumulate(out, r)
	}
	return out
}

// Stepped sums the currencies of every threshold with baseline < step <= value.
// Entries are summed per currency, never replaced.
func (c *Calculator) Stepped(steps []Step, baseline, value int) []currency.Value {
	var out []currency.Value
	for _, s := range steps {
		if s.Step <= baseline || s.Step > value {
			continue
		}
		for _, cur := range s.Currencies {
			if !c.tracked.Has(cur.Currency) {
				continue
			}
			out = currency.Accumulate(out, cur)
		}
	}
	return out
}

// RankedStages resolves every stage of a ranked task against its own
// baseline. values and baselines are keyed by stage id; missing keys are 0.
func (c *Calculator) RankedStages(stages *RankedStages, baselines, values map[string]int) []currency.Value {
	if stages == nil {
		return nil
	}
	var out []currency.Value
	for _, stage := range stages.Stages {
		for _, v := range c.Stepped(stage.Rewards, baselines[stage.ID], values[stage.ID]) {
			out = currency.Accumulate(out, v)
		}
	}
	return out
}

// ForValue picks the policy of a non-ranked task: stepped when the task has
// a ladder, flat otherwise. Ranked tasks go through RankedStages.
func (c *Calculator) ForValue(task Task, baseline, value int) []currency.Value {
	if value <= 0 {
		return nil
	}
	if task.IsStepped() {
		return c.Stepped(task.SteppedRewards, baseline, value)
	}
	return c.Flat(task.Rewards, value)
}

// SumStageValues is the comparable value of a ranked task.
func SumStageValues(values map[string]int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}
