package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/ledger"
	"github.com/warp/progress-tracker/rewards"
)

func steppedTaskX() rewards.Task {
	return rewards.Task{
		ID: "X",
		SteppedRewards: []rewards.Step{
			{Step: 10, Currencies: []currency.Value{gold(100)}},
			{Step: 20, Currencies: []currency.Value{gold(200)}},
		},
	}
}

func TestAdjustCurrentHistory_WalksToToday(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	require.NoError(t, s.PopulateSessionData(ctx, 20240601))
	day := s.Day(20240601)
	day.SetInitial([]currency.Value{gold(0)})
	day.SetProgress(ledger.TaskDaily, "login", 1, []currency.Value{gold(100)})

	adjusted, err := s.AdjustCurrentHistoryRetroactive(ctx, 20240601)
	require.NoError(t, err)

	assert.Equal(t, []ledger.DateKey{20240602, 20240603, 20240604, 20240605}, adjusted)
	for _, d := range adjusted {
		assertAmount(t, 100, s.Day(d).GetCurrencyValue("gold"), "day %s", d)
	}
}

func TestAdjustCurrentHistory_StopsAtOverride(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	require.NoError(t, s.PopulateSessionDateRange(ctx, 20240601, 20240603))

	// GIVEN: d, d+1 with an override, d+2
	d := s.Day(20240601)
	d.SetInitial([]currency.Value{gold(0)})
	d.SetProgress(ledger.TaskDaily, "login", 1, []currency.Value{gold(100)})
	s.Day(20240602).SetCurrencyOverride("gold", decimal.NewFromInt(500))

	// WHEN: adjusting from d
	adjusted, err := s.AdjustCurrentHistoryRetroactive(ctx, 20240601)
	require.NoError(t, err)

	// THEN: nothing is adjusted; d+1 and d+2 are left alone
	assert.Empty(t, adjusted)
	assert.Empty(t, s.Day(20240602).Totals.Initial)
	assert.False(t, s.Day(20240603).Seeded())
	assertAmount(t, 500, s.Day(20240602).GetCurrencyValue("gold"))
}

func TestAdjustCurrentHistory_OverrideSeedsFollowingDays(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	require.NoError(t, s.PopulateSessionDateRange(ctx, 20240603, 20240605))

	s.Day(20240603).SetInitial([]currency.Value{gold(10)})
	s.Day(20240603).SetCurrencyOverride("gold", decimal.NewFromInt(300))

	adjusted, err := s.AdjustCurrentHistoryRetroactive(ctx, 20240603)
	require.NoError(t, err)
	assert.Equal(t, []ledger.DateKey{20240604, 20240605}, adjusted)
	assertAmount(t, 300, currency.AmountOf(s.Day(20240604).Totals.Initial, "gold"))
}

func TestAdjustCurrentHistory_TodayIsNoop(t *testing.T) {
	s := newTestSession(nil)
	adjusted, err := s.AdjustCurrentHistoryRetroactive(context.Background(), 20240605)
	require.NoError(t, err)
	assert.Nil(t, adjusted)
}

func TestAdjustCurrentHistory_ReseedsViewedDaysAfterToday(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	require.NoError(t, s.PopulateSessionDateRange(ctx, 20240605, 20240608))

	// GIVEN: today and the day after tomorrow already seeded at zero
	today := s.Day(20240605)
	today.SetInitial([]currency.Value{gold(0)})
	require.NoError(t, s.PopulateInitialCurrencyValue(ctx, 20240607))
	assertAmount(t, 0, currency.AmountOf(s.Day(20240607).Totals.Initial, "gold"))

	// WHEN: today earns gold
	today.SetProgress(ledger.TaskDaily, "login", 1, []currency.Value{gold(100)})
	adjusted, err := s.AdjustCurrentHistoryRetroactive(ctx, 20240605)
	require.NoError(t, err)

	// THEN: the walk reaches the seeded day and stops there
	assert.Equal(t, []ledger.DateKey{20240606, 20240607}, adjusted)
	assertAmount(t, 100, currency.AmountOf(s.Day(20240607).Totals.Initial, "gold"))
	assert.False(t, s.Day(20240608).Seeded())
}

func TestAdjustCurrentHistory_FutureOverrideStopsWalk(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	require.NoError(t, s.PopulateSessionDateRange(ctx, 20240605, 20240607))

	today := s.Day(20240605)
	today.SetInitial([]currency.Value{gold(0)})
	s.Day(20240606).SetCurrencyOverride("gold", decimal.NewFromInt(700))
	require.NoError(t, s.PopulateInitialCurrencyValue(ctx, 20240607))

	today.SetProgress(ledger.TaskDaily, "login", 1, []currency.Value{gold(100)})
	adjusted, err := s.AdjustCurrentHistoryRetroactive(ctx, 20240605)
	require.NoError(t, err)

	assert.Empty(t, adjusted)
	assertAmount(t, 700, currency.AmountOf(s.Day(20240607).Totals.Initial, "gold"))
}

func TestEndToEnd_SteppedTaskSeedsNextDay(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	task := steppedTaskX()
	const date ledger.DateKey = 20240601

	// GIVEN: no prior history
	require.NoError(t, s.PopulateInitialCurrencyValue(ctx, date))

	// WHEN: X is set to 15
	baseline := s.HighestProgressForTaskInRange(ledger.TaskDaily, task.ID, date, date).Value
	cur := s.Calculator().ForValue(task, baseline, 15)
	s.Day(date).SetProgress(ledger.TaskDaily, task.ID, 15, cur)
	_, err := s.AdjustCurrentHistoryRetroactive(ctx, date)
	require.NoError(t, err)

	// THEN: the day earns the first step only
	day := s.Day(date)
	p := day.Progress(ledger.TaskDaily, task.ID)
	require.NotNil(t, p)
	require.Len(t, p.Currencies, 1)
	assertAmount(t, 100, p.Currencies[0].Amount)
	assertAmount(t, 100, day.GetCurrencyValue("gold"))

	// AND: the next day starts from it
	assertAmount(t, 100, currency.AmountOf(s.Day(20240602).Totals.Initial, "gold"))
}

func TestAdjustSteppedRewards_RaisedEarlierDay(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	task := steppedTaskX()
	window := ledger.Period{Start: 20240603, End: 20240609}
	calc := s.Calculator()
	require.NoError(t, s.PopulateSessionDateRange(ctx, window.Start, window.End))

	// GIVEN: 15 on day 2 and 25 on day 3 of the week
	s.Day(20240604).SetProgress(ledger.TaskWeekly, "X", 15, calc.Stepped(task.SteppedRewards, 0, 15))
	s.Day(20240605).SetProgress(ledger.TaskWeekly, "X", 25, calc.Stepped(task.SteppedRewards, 15, 25))

	// WHEN: day 1 is edited to 20, which now earns both steps
	s.Day(20240603).SetProgress(ledger.TaskWeekly, "X", 20, calc.Stepped(task.SteppedRewards, 0, 20))
	adjusted, err := s.AdjustSteppedRewardsValuesRetroactive(ctx, task, ledger.TaskWeekly, 20240603, window, 20)
	require.NoError(t, err)

	// THEN: the later days lose the rewards day 1 now holds
	assert.Equal(t, []ledger.DateKey{20240604, 20240605}, adjusted)
	assert.Empty(t, s.Day(20240604).Progress(ledger.TaskWeekly, "X").Currencies)
	assert.Empty(t, s.Day(20240605).Progress(ledger.TaskWeekly, "X").Currencies)
	assert.Equal(t, 15, s.Day(20240604).ProgressValue(ledger.TaskWeekly, "X"))
}

func TestAdjustSteppedRewards_BoundedByWindow(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	task := steppedTaskX()
	calc := s.Calculator()
	require.NoError(t, s.PopulateSessionDateRange(ctx, 20240603, 20240610))

	// Next week's record is untouched
	s.Day(20240610).SetProgress(ledger.TaskWeekly, "X", 15, calc.Stepped(task.SteppedRewards, 0, 15))

	adjusted, err := s.AdjustSteppedRewardsValuesRetroactive(ctx, task, ledger.TaskWeekly, 20240603,
		ledger.Period{Start: 20240603, End: 20240609}, 20)
	require.NoError(t, err)
	assert.Empty(t, adjusted)
	require.Len(t, s.Day(20240610).Progress(ledger.TaskWeekly, "X").Currencies, 1)
}

func TestAdjustRankedStages_PerStageBaseline(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	task := rewards.Task{
		ID: "abyss",
		RankedStages: &rewards.RankedStages{Stages: []rewards.Stage{
			{ID: "floor-1", Rewards: []rewards.Step{{Step: 5, Currencies: []currency.Value{gold(10)}}}},
			{ID: "floor-2", Rewards: []rewards.Step{{Step: 5, Currencies: []currency.Value{gold(20)}}}},
		}},
	}
	window := ledger.Period{Start: 20240603, End: 20240609}
	calc := s.Calculator()
	require.NoError(t, s.PopulateSessionDateRange(ctx, window.Start, window.End))

	// GIVEN: both floors cleared on day 2
	later := map[string]int{"floor-1": 5, "floor-2": 5}
	cur := calc.RankedStages(task.RankedStages, nil, later)
	s.Day(20240604).SetRankedStageProgress(ledger.TaskWeekly, "abyss", "floor-1", 5, cur)
	s.Day(20240604).SetRankedStageProgress(ledger.TaskWeekly, "abyss", "floor-2", 5, cur)

	// WHEN: day 1 records floor-1 only
	earlier := map[string]int{"floor-1": 5}
	s.Day(20240603).SetRankedStageProgress(ledger.TaskWeekly, "abyss", "floor-1", 5,
		calc.RankedStages(task.RankedStages, nil, earlier))
	adjusted, err := s.AdjustRankedStageValuesRetroactive(ctx, task, ledger.TaskWeekly, 20240603, window, earlier)
	require.NoError(t, err)

	// THEN: day 2 keeps only the floor-2 reward
	assert.Equal(t, []ledger.DateKey{20240604}, adjusted)
	p := s.Day(20240604).Progress(ledger.TaskWeekly, "abyss")
	require.Len(t, p.Currencies, 1)
	assertAmount(t, 20, p.Currencies[0].Amount)
}

func TestAdjustSteppedRewards_StopsAtOverride(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	task := steppedTaskX()
	window := ledger.Period{Start: 20240603, End: 20240609}
	calc := s.Calculator()
	require.NoError(t, s.PopulateSessionDateRange(ctx, window.Start, window.End))

	// GIVEN: 5 on d, an override on d+1 and 15 on d+2
	s.Day(20240603).SetProgress(ledger.TaskWeekly, "X", 5, calc.Stepped(task.SteppedRewards, 0, 5))
	s.Day(20240604).SetCurrencyOverride("gold", decimal.NewFromInt(1000))
	s.Day(20240605).SetProgress(ledger.TaskWeekly, "X", 15, calc.Stepped(task.SteppedRewards, 5, 15))

	// WHEN: d is raised to 12
	s.Day(20240603).SetProgress(ledger.TaskWeekly, "X", 12, calc.Stepped(task.SteppedRewards, 0, 12))
	adjusted, err := s.AdjustSteppedRewardsValuesRetroactive(ctx, task, ledger.TaskWeekly, 20240603, window, 12)
	require.NoError(t, err)

	// THEN: nothing at or past the overridden day is re-derived
	assert.Empty(t, adjusted)
	p := s.Day(20240605).Progress(ledger.TaskWeekly, "X")
	require.Len(t, p.Currencies, 1)
	assertAmount(t, 100, p.Currencies[0].Amount)
}

func TestAdjustRankedStages_StopsAtOverride(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(nil)
	task := rewards.Task{
		ID: "abyss",
		RankedStages: &rewards.RankedStages{Stages: []rewards.Stage{
			{ID: "floor-1", Rewards: []rewards.Step{{Step: 5, Currencies: []currency.Value{gold(10)}}}},
		}},
	}
	window := ledger.Period{Start: 20240603, End: 20240609}
	calc := s.Calculator()
	require.NoError(t, s.PopulateSessionDateRange(ctx, window.Start, window.End))

	later := map[string]int{"floor-1": 5}
	s.Day(20240604).SetCurrencyOverride("gold", decimal.NewFromInt(1000))
	s.Day(20240605).SetRankedStageProgress(ledger.TaskWeekly, "abyss", "floor-1", 5,
		calc.RankedStages(task.RankedStages, nil, later))

	s.Day(20240603).SetRankedStageProgress(ledger.TaskWeekly, "abyss", "floor-1", 5,
		calc.RankedStages(task.RankedStages, nil, later))
	adjusted, err := s.AdjustRankedStageValuesRetroactive(ctx, task, ledger.TaskWeekly, 20240603, window, later)
	require.NoError(t, err)

	assert.Empty(t, adjusted)
	require.Len(t, s.Day(20240605).Progress(ledger.TaskWeekly, "abyss").Currencies, 1)
}
