/*
Package factory provides game configuration loading.

PURPOSE:
  Converts per-game data files into GameConfig values. Each game lives in
  its own directory under the game data root with a data.json or data.yaml
  file; adding a game needs no code change.

DATA FILE:
  {
    "id": "genshin",
    "order": 1,
    "regions": [{"id": "asia", "reset_time": "04:00:00 +08:00"}],
    "weekly_reset_day": "monday",
    "currencies": [
      {"id": "primogem", "tracked": true, "primary": true},
      {"id": "mora"}
    ],
    "gacha": [{"id": "character", "pull_cost": [{"currency": "primogem", "amount": 160}], "rate": 0.006}],
    "daily":    [{"id": "commissions", "rewards": [{"currency": "primogem", "amount": 60}]}],
    "weekly":   [{"id": "boss", "stepped_rewards": [{"step": 1, "currencies": [...]}]}],
    "periodic": [{"id": "abyss", "reset_day": "2024-06-01", "reset_period": 14,
                  "ranked_stages": {"stages": [{"id": "floor-12", "rewards": [...]}]}}],
    "event":    [{"id": "lantern", "start_date": "2024-06-01", "end_date": "2024-06-21"}]
  }

VALIDATION:
  Struct tags are checked with go-playground/validator after decoding;
  cross-field rules (unique task ids, known currencies, window fields) are
  checked by Validate.

SEE ALSO:
  - loader.go: File and directory loading
  - rewards/types.go: Task shapes
*/
package factory

import (
	"fmt"
	"sort"
	"time"

	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/ledger"
	"github.com/warp/progress-tracker/rewards"
)

// DefaultOrder places games without an explicit order after ordered ones.
const DefaultOrder = 100

// =============================================================================
// CONFIG TYPES
// =============================================================================

// GameConfig is one game's static configuration.
type GameConfig struct {
	ID             string           `json:"id" yaml:"id" validate:"required"`
	Version        int              `json:"version" yaml:"version"`
	NameKey        string           `json:"name_key" yaml:"name_key"`
	Order          *int             `json:"order,omitempty" yaml:"order,omitempty"`
	Regions        []ledger.Region  `json:"regions" yaml:"regions" validate:"required,min=1,dive"`
	WeeklyResetDay string           `json:"weekly_reset_day" yaml:"weekly_reset_day"`
	AccentColor    string           `json:"accent_color,omitempty" yaml:"accent_color,omitempty"`
	Currencies     []CurrencyConfig `json:"currencies" yaml:"currencies" validate:"dive"`
	Gacha          []Banner         `json:"gacha,omitempty" yaml:"gacha,omitempty" validate:"dive"`

	Daily    []rewards.Task `json:"daily,omitempty" yaml:"daily,omitempty" validate:"dive"`
	Weekly   []rewards.Task `json:"weekly,omitempty" yaml:"weekly,omitempty" validate:"dive"`
	Periodic []rewards.Task `json:"periodic,omitempty" yaml:"periodic,omitempty" validate:"dive"`
	Event    []rewards.Task `json:"event,omitempty" yaml:"event,omitempty" validate:"dive"`
}

// CurrencyConfig marks a currency as tracked and/or primary.
type CurrencyConfig struct {
	ID      currency.ID `json:"id" yaml:"id" validate:"required"`
	Tracked bool        `json:"tracked,omitempty" yaml:"tracked,omitempty"`
	Primary bool        `json:"primary,omitempty" yaml:"primary,omitempty"`
}

// Banner is a gacha banner; PullCost is the price of one pull.
type Banner struct {
	ID               string           `json:"id" yaml:"id" validate:"required"`
	PullCost         []currency.Value `json:"pull_cost" yaml:"pull_cost" validate:"required,min=1,dive"`
	Rate             float64          `json:"rate" yaml:"rate" validate:"gte=0,lte=1"`
	FiftyFiftySystem bool             `json:"fifty_fifty_system,omitempty" yaml:"fifty_fifty_system,omitempty"`
	TargetRate       float64          `json:"target_rate,omitempty" yaml:"target_rate,omitempty" validate:"gte=0,lte=1"`
}

// Pulls returns how many pulls the balance pays for. Every cost currency
// must be covered; a banner with no positive cost yields 0.
func (b Banner) Pulls(balance []currency.Value) int64 {
	pulls := int64(-1)
	for _, cost := range b.PullCost {
		if !cost.Amount.IsPositive() {
			continue
		}
		n := currency.AmountOf(balance, cost.Currency).Div(cost.Amount).Floor().IntPart()
		if pulls < 0 || n < pulls {
			pulls = n
		}
	}
	if pulls < 0 {
		return 0
	}
	return pulls
}

// =============================================================================
// LOOKUPS
// =============================================================================

// SortOrder is the configured order, DefaultOrder when unset.
func (g *GameConfig) SortOrder() int {
	if g.Order == nil {
		return DefaultOrder
	}
	return *g.Order
}

// TrackedCurrencies lists tracked currencies in configuration order.
func (g *GameConfig) TrackedCurrencies() []currency.ID {
	var ids []currency.ID
	for _, c := range g.Currencies {
		if c.Tracked {
			ids = append(ids, c.ID)
		}
	}
	return ids
}

// PrimaryCurrency returns the currency flagged primary.
func (g *GameConfig) PrimaryCurrency() (currency.ID, bool) {
	for _, c := range g.Currencies {
		if c.Primary {
			return c.ID, true
		}
	}
	return "", false
}

// Region returns the region with id.
func (g *GameConfig) Region(id string) (ledger.Region, bool) {
	for _, r := range g.Regions {
		if r.ID == id {
			return r, true
		}
	}
	return ledger.Region{}, false
}

// DefaultRegion is the first configured region.
func (g *GameConfig) DefaultRegion() ledger.Region {
	if len(g.Regions) == 0 {
		return ledger.Region{}
	}
	return g.Regions[0]
}

// WeeklyReset parses weekly_reset_day. Missing or unknown names mean Monday.
func (g *GameConfig) WeeklyReset() time.Weekday {
	if wd, ok := ledger.ParseWeekday(g.WeeklyResetDay); ok {
		return wd
	}
	return time.Monday
}

// Tasks returns the task list of a type.
func (g *GameConfig) Tasks(t ledger.TaskType) []rewards.Task {
	switch t {
	case ledger.TaskDaily:
		return g.Daily
	case ledger.TaskWeekly:
		return g.Weekly
	case ledger.TaskPeriodic:
		return g.Periodic
	case ledger.TaskEvent:
		return g.Event
	}
	return nil
}

// Task finds a task by type and id.
func (g *GameConfig) Task(t ledger.TaskType, id string) (rewards.Task, bool) {
	for _, task := range g.Tasks(t) {
		if task.ID == id {
			return task, true
		}
	}
	return rewards.Task{}, false
}

// =============================================================================
// VALIDATION / NORMALIZATION
// =============================================================================

// Validate checks the rules struct tags cannot express.
func (g *GameConfig) Validate() error {
	known := currency.NewSet()
	primaries := 0
	for _, c := range g.Currencies {
		if known.Has(c.ID) {
			return fmt.Errorf("game %s: duplicate currency %q", g.ID, c.ID)
		}
		known[c.ID] = struct{}{}
		if c.Primary {
			primaries++
		}
	}
	if primaries > 1 {
		return fmt.Errorf("game %s: more than one primary currency", g.ID)
	}

	regions := make(map[string]bool)
	for _, r := range g.Regions {
		if regions[r.ID] {
			return fmt.Errorf("game %s: duplicate region %q", g.ID, r.ID)
		}
		regions[r.ID] = true
		if _, err := ledger.ParseResetTime(r.ResetTime); err != nil {
			return fmt.Errorf("game %s region %s: %w", g.ID, r.ID, err)
		}
	}

	if g.WeeklyResetDay != "" {
		if _, ok := ledger.ParseWeekday(g.WeeklyResetDay); !ok {
			return fmt.Errorf("game %s: invalid weekly_reset_day %q", g.ID, g.WeeklyResetDay)
		}
	}

	for _, t := range ledger.TaskTypes {
		seen := make(map[string]bool)
		for _, task := range g.Tasks(t) {
			if seen[task.ID] {
				return fmt.Errorf("game %s: duplicate %s task %q", g.ID, t, task.ID)
			}
			seen[task.ID] = true
			if err := validateTask(t, task, known); err != nil {
				return fmt.Errorf("game %s %s task %s: %w", g.ID, t, task.ID, err)
			}
		}
	}
	return nil
}

func validateTask(t ledger.TaskType, task rewards.Task, known currency.Set) error {
	check := func(list []currency.Value) error {
		for _, v := range list {
			if !known.Has(v.Currency) {
				return fmt.Errorf("unknown currency %q", v.Currency)
			}
		}
		return nil
	}
	if err := check(task.Rewards); err != nil {
		return err
	}
	for _, s := range task.SteppedRewards {
		if err := check(s.Currencies); err != nil {
			return err
		}
	}
	if task.RankedStages != nil {
		for _, stage := range task.RankedStages.Stages {
			for _, s := range stage.Rewards {
				if err := check(s.Currencies); err != nil {
					return err
				}
			}
		}
		if task.RankedStages.ResetDay != "" {
			if _, err := ledger.ParseDateKey(task.RankedStages.ResetDay); err != nil {
				return fmt.Errorf("ranked_stages.reset_day: %w", err)
			}
		}
	}

	switch t {
	case ledger.TaskPeriodic:
		if _, err := ledger.ParseDateKey(task.ResetDay); err != nil {
			return fmt.Errorf("reset_day: %w", err)
		}
		if task.ResetPeriod <= 0 {
			return fmt.Errorf("reset_period must be positive")
		}
	case ledger.TaskEvent:
		start, err := ledger.ParseDateKey(task.StartDate)
		if err != nil {
			return fmt.Errorf("start_date: %w", err)
		}
		end, err := ledger.ParseDateKey(task.EndDate)
		if err != nil {
			return fmt.Errorf("end_date: %w", err)
		}
		if end < start {
			return fmt.Errorf("end_date before start_date")
		}
	}
	return nil
}

// normalize sorts every stepped ladder so calculators can assume order.
func (g *GameConfig) normalize() {
	for _, t := range ledger.TaskTypes {
		for i := range g.Tasks(t) {
			task := &g.Tasks(t)[i]
			rewards.SortSteps(task.SteppedRewards)
			if task.RankedStages != nil {
				for j := range task.RankedStages.Stages {
					rewards.SortSteps(task.RankedStages.Stages[j].Rewards)
				}
			}
		}
	}
}

// SortGames orders games by SortOrder, then id.
func SortGames(games []*GameConfig) {
	sort.SliceStable(games, func(i, j int) bool {
		oi, oj := games[i].SortOrder(), games[j].SortOrder()
		if oi != oj {
			return oi < oj
		}
		return games[i].ID < games[j].ID
	})
}
