/*
Package rewards provides task reward definitions and the calculators that
turn a task's recorded progress into a currency delta.

PURPOSE:
  Every tracked task in a game configuration declares how it pays out. The
  same task may combine several policies; the calculator picks in this order:
  - Ranked stages:  independent stages, each with its own stepped ladder
  - Stepped:        cumulative thresholds ({step, currencies}) within a reset window
  - Flat:           a static reward list granted once when value > 0

REWARD POLICIES:
  Flat:
    value 0 -> nothing, value >= 1 -> Rewards (never scaled by value)

  Stepped:
    thresholds [{10: A}, {50: B}], baseline = highest value already recorded
    in the window before today, value = today's value
    grant every entry with baseline < step <= value

  Ranked stages:
    same rule per stage, baseline per stage; the task's comparable value is
    the sum of all stage values

EXAMPLE:
  task := rewards.Task{
      ID: "weekly-boss",
      SteppedRewards: []rewards.Step{
          {Step: 10, Currencies: []currency.Value{currency.NewValue("gold", 100)}},
          {Step: 20, Currencies: []currency.Value{currency.NewValue("gold", 200)}},
      },
  }
  calc := rewards.NewCalculator("gold")
  calc.Stepped(task.SteppedRewards, 0, 15)  // [{gold 100}]

SEE ALSO:
  - calculator.go: Reward resolution
  - factory/game.go: Loads tasks from game data files
  - ledger/retroactive.go: Re-derives stepped rewards for later days
*/
package rewards

import (
	"sort"

	"github.com/warp/progress-tracker/currency"
)

// =============================================================================
// TASK DEFINITIONS
// =============================================================================

// Task is one tracked task from a game configuration.
// Periodic and event tasks additionally carry their reset window.
type Task struct {
	ID             string           `json:"id" yaml:"id" validate:"required"`
	Rewards        []currency.Value `json:"rewards,omitempty" yaml:"rewards,omitempty" validate:"dive"`
	SteppedRewards []Step           `json:"stepped_rewards,omitempty" yaml:"stepped_rewards,omitempty" validate:"dive"`
	RankedStages   *RankedStages    `json:"ranked_stages,omitempty" yaml:"ranked_stages,omitempty"`

	// Periodic tasks: reset_day is the anchor date (YYYY-MM-DD) of any period
	// and reset_period its length in days.
	ResetDay    string `json:"reset_day,omitempty" yaml:"reset_day,omitempty"`
	ResetPeriod int    `json:"reset_period,omitempty" yaml:"reset_period,omitempty" validate:"gte=0"`

	// Event tasks.
	StartDate string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty" yaml:"end_date,omitempty"`
}

// Step is one threshold of a stepped reward ladder.
type Step struct {
	Step       int              `json:"step" yaml:"step" validate:"gt=0"`
	Currencies []currency.Value `json:"currencies" yaml:"currencies" validate:"dive"`
}

// RankedStages groups the independent stages of a ranked task.
type RankedStages struct {
	ResetDay       string   `json:"reset_day,omitempty" yaml:"reset_day,omitempty"`
	ResetPeriod    int      `json:"reset_period,omitempty" yaml:"reset_period,omitempty" validate:"gte=0"`
	ProgressLabels []string `json:"progress_labels,omitempty" yaml:"progress_labels,omitempty"`
	SumRewards     bool     `json:"sum_rewards,omitempty" yaml:"sum_rewards,omitempty"`
	Stages         []Stage  `json:"stages" yaml:"stages" validate:"required,dive"`
}

// Stage is one ranked stage with its own ladder.
type Stage struct {
	ID      string `json:"id" yaml:"id" validate:"required"`
	Rewards []Step `json:"rewards" yaml:"rewards" validate:"dive"`
}

// IsStepped reports whether the task pays through a stepped ladder.
func (t Task) IsStepped() bool { return len(t.SteppedRewards) > 0 }

// IsRanked reports whether the task is split into ranked stages.
func (t Task) IsRanked() bool { return t.RankedStages != nil && len(t.RankedStages.Stages) > 0 }

// IsFlat reports whether the task only has a static reward list.
func (t Task) IsFlat() bool { return !t.IsStepped() && !t.IsRanked() && len(t.Rewards) > 0 }

// Stage returns the stage with the given id, or nil.
func (t Task) Stage(id string) *Stage {
	if t.RankedStages == nil {
		return nil
	}
	for i := range t.RankedStages.Stages {
		if t.RankedStages.Stages[i].ID == id {
			return &t.RankedStages.Stages[i]
		}
	}
	return nil
}

// StageIDs lists the stage ids in configuration order.
func (t Task) StageIDs() []string {
	if t.RankedStages == nil {
		return nil
	}
	ids := make([]string, len(t.RankedStages.Stages))
	for i, s := range t.RankedStages.Stages {
		ids[i] = s.ID
	}
	return ids
}

// SortSteps orders a ladder by ascending step. Configuration files are not
// required to list thresholds in order.
func SortSteps(steps []Step) {
	sort.SliceStable(steps, func(i, j int) bool { return steps[i].Step < steps[j].Step })
}
