package tracker_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/progress-tracker/coalescer"
	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/factory"
	"github.com/warp/progress-tracker/ledger"
	"github.com/warp/progress-tracker/ledger/store"
	"github.com/warp/progress-tracker/rewards"
	"github.com/warp/progress-tracker/tracker"
)

const debounce = 100 * time.Millisecond

// fixedNow pins "today" to Wednesday 2024-06-05 in the na region.
func fixedNow() time.Time { return time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC) }

func gold(n int64) currency.Value { return currency.NewValue("gold", n) }

func assertAmount(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	assert.True(t, got.Equal(decimal.NewFromInt(want)), "want %d, got %s", want, got)
}

func step(n int, amount int64) rewards.Step {
	return rewards.Step{Step: n, Currencies: []currency.Value{gold(amount)}}
}

func demoGame() *factory.GameConfig {
	return &factory.GameConfig{
		ID: "demo",
		Regions: []ledger.Region{
			{ID: "na", ResetTime: "00:00:00"},
			{ID: "asia", ResetTime: "04:00:00 +08:00"},
		},
		WeeklyResetDay: "monday",
		Currencies: []factory.CurrencyConfig{
			{ID: "gold", Tracked: true, Primary: true},
			{ID: "gems"},
		},
		Gacha: []factory.Banner{{ID: "standard", PullCost: []currency.Value{gold(100)}}},
		Daily: []rewards.Task{
			{ID: "login", Rewards: []currency.Value{gold(10), currency.NewValue("gems", 5)}},
		},
		Weekly: []rewards.Task{
			{ID: "boss", SteppedRewards: []rewards.Step{step(10, 100), step(20, 200)}},
		},
		Periodic: []rewards.Task{
			{ID: "abyss", ResetDay: "2024-06-01", ResetPeriod: 14, RankedStages: &rewards.RankedStages{
				Stages: []rewards.Stage{
					{ID: "floor-1", Rewards: []rewards.Step{step(3, 50)}},
					{ID: "floor-2", Rewards: []rewards.Step{step(3, 70)}},
				},
			}},
		},
	}
}

type fixture struct {
	tr    *tracker.Tracker
	gw    *store.Memory
	clock *coalescer.ManualClock
}

func newFixture(t *testing.T, now func() time.Time) fixture {
	t.Helper()
	clock := coalescer.NewManualClock(now())
	tr := tracker.New(tracker.Options{
		Now:    now,
		Writes: coalescer.New(debounce, coalescer.WithClock(clock)),
	})
	gw := store.NewMemory()
	require.NoError(t, tr.AddGame(demoGame(), gw))
	return fixture{tr: tr, gw: gw, clock: clock}
}

func (f fixture) setTask(t *testing.T, tt ledger.TaskType, id string, date ledger.DateKey, value int) tracker.Result {
	t.Helper()
	res, err := f.tr.HandleTaskRecordChange(context.Background(), "demo", tt, id, date, value)
	require.NoError(t, err)
	return res
}

func (f fixture) day(t *testing.T, date ledger.DateKey) *ledger.DayData {
	t.Helper()
	day, err := f.tr.Day(context.Background(), "demo", date)
	require.NoError(t, err)
	return day
}

// =============================================================================
// REGISTRATION
// =============================================================================

func TestTracker_AddGame(t *testing.T) {
	f := newFixture(t, fixedNow)

	err := f.tr.AddGame(demoGame(), store.NewMemory())
	assert.ErrorIs(t, err, tracker.ErrDuplicateGame)

	other := demoGame()
	other.ID = "other"
	assert.ErrorIs(t, f.tr.AddGame(other, nil), ledger.ErrNoGateway)
}

func TestTracker_Games(t *testing.T) {
	f := newFixture(t, fixedNow)
	first := 1
	early := demoGame()
	early.ID = "aaa"
	early.Order = &first
	require.NoError(t, f.tr.AddGame(early, store.NewMemory()))

	games := f.tr.Games()
	require.Len(t, games, 2)
	assert.Equal(t, "aaa", games[0].ID)
	assert.Equal(t, "demo", games[1].ID)
	assert.Equal(t, factory.DefaultOrder, games[1].Order)
	assert.Equal(t, []string{"na", "asia"}, games[1].Regions)
	assert.Equal(t, []currency.ID{"gold"}, games[1].Tracked)
	assert.Equal(t, currency.ID("gold"), games[1].Primary)
}

func TestTracker_Errors(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	_, err := f.tr.HandleTaskRecordChange(ctx, "nope", ledger.TaskDaily, "login", 20240605, 1)
	assert.True(t, tracker.IsNotFound(err))

	_, err = f.tr.HandleTaskRecordChange(ctx, "demo", ledger.TaskDaily, "missing", 20240605, 1)
	var notFound *tracker.TaskNotFoundError
	require.True(t, errors.As(err, &notFound))
	assert.Equal(t, "missing", notFound.Task)
	assert.True(t, tracker.IsNotFound(err))

	_, err = f.tr.HandleTaskRecordChange(ctx, "demo", ledger.TaskDaily, "login", 20240605, -1)
	assert.True(t, tracker.IsClientError(err))

	_, err = f.tr.HandleTaskRecordChange(ctx, "demo", ledger.TaskDaily, "login", 20240231, 1)
	assert.ErrorIs(t, err, tracker.ErrInvalidValue)
}

// =============================================================================
// TASK PROGRESS
// =============================================================================

func TestTracker_SteppedTaskSeedsNextDay(t *testing.T) {
	f := newFixture(t, fixedNow)

	// GIVEN: a stepped task on 2024-06-01 with no prior history
	// WHEN: the value is set to 15
	res := f.setTask(t, ledger.TaskWeekly, "boss", 20240601, 15)

	// THEN: the first step pays once
	p := res.Day.Progress(ledger.TaskWeekly, "boss")
	require.NotNil(t, p)
	assert.Equal(t, []currency.Value{gold(100)}, p.Currencies)
	assertAmount(t, 0, currency.AmountOf(res.Day.Totals.Initial, "gold"))
	assertAmount(t, 100, res.Day.GetCurrencyValue("gold"))

	// AND: every later day up to today is re-seeded
	assert.Equal(t, []ledger.DateKey{20240602, 20240603, 20240604, 20240605}, res.Adjusted)
	assertAmount(t, 100, currency.AmountOf(f.day(t, 20240602).Totals.Initial, "gold"))
}

func TestTracker_FlatRewardDropsUntrackedCurrencies(t *testing.T) {
	f := newFixture(t, fixedNow)

	res := f.setTask(t, ledger.TaskDaily, "login", 20240605, 3)

	p := res.Day.Progress(ledger.TaskDaily, "login")
	require.NotNil(t, p)
	assert.Equal(t, 3, p.Value)
	assert.Equal(t, []currency.Value{gold(10)}, p.Currencies)
}

func TestTracker_BaselineIsHighestInWindow(t *testing.T) {
	f := newFixture(t, fixedNow)

	// GIVEN: 20 then 15 recorded earlier in the week
	f.setTask(t, ledger.TaskWeekly, "boss", 20240603, 20)
	f.setTask(t, ledger.TaskWeekly, "boss", 20240604, 15)

	// WHEN: 20 is recorded again
	res := f.setTask(t, ledger.TaskWeekly, "boss", 20240605, 20)

	// THEN: the baseline is 20, not 15, so nothing new is paid
	assert.Empty(t, res.Day.Progress(ledger.TaskWeekly, "boss").Currencies)
	assert.Empty(t, f.day(t, 20240604).Progress(ledger.TaskWeekly, "boss").Currencies)
	assertAmount(t, 300, res.Day.GetCurrencyValue("gold"))
}

func TestTracker_BaselineResetsWithWindow(t *testing.T) {
	f := newFixture(t, fixedNow)

	// GIVEN: 20 recorded the week before
	f.setTask(t, ledger.TaskWeekly, "boss", 20240601, 20)

	// WHEN: 15 is recorded on Monday of the new week
	res := f.setTask(t, ledger.TaskWeekly, "boss", 20240603, 15)

	// THEN: the baseline starts over
	assert.Equal(t, []currency.Value{gold(100)}, res.Day.Progress(ledger.TaskWeekly, "boss").Currencies)
}

func TestTracker_EarlierEditRederivesLaterDays(t *testing.T) {
	f := newFixture(t, fixedNow)

	// GIVEN: 15 on Tuesday, 25 on Wednesday
	f.setTask(t, ledger.TaskWeekly, "boss", 20240604, 15)
	f.setTask(t, ledger.TaskWeekly, "boss", 20240605, 25)

	// WHEN: 12 is recorded on Monday
	res := f.setTask(t, ledger.TaskWeekly, "boss", 20240603, 12)

	// THEN: Monday takes the first step, Tuesday no longer pays it
	assert.Equal(t, []currency.Value{gold(100)}, res.Day.Progress(ledger.TaskWeekly, "boss").Currencies)
	assert.Equal(t, []ledger.DateKey{20240604, 20240605}, res.Adjusted)

	tue := f.day(t, 20240604)
	assert.Empty(t, tue.Progress(ledger.TaskWeekly, "boss").Currencies)
	assertAmount(t, 100, tue.GetCurrencyValue("gold"))

	wed := f.day(t, 20240605)
	assert.Equal(t, []currency.Value{gold(200)}, wed.Progress(ledger.TaskWeekly, "boss").Currencies)
	assertAmount(t, 300, wed.GetCurrencyValue("gold"))
}

func TestTracker_ZeroValueRemovesRecord(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	f.setTask(t, ledger.TaskDaily, "login", 20240605, 1)
	require.NoError(t, f.tr.FlushAll(ctx))

	res := f.setTask(t, ledger.TaskDaily, "login", 20240605, 0)
	require.NoError(t, f.tr.FlushAll(ctx))

	assert.Nil(t, res.Day.Progress(ledger.TaskDaily, "login"))
	rows, err := f.gw.RecordsForDay(ctx, ledger.TableDaily, 20240605, "na")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestTracker_TaskNotesKeepRow(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	_, err := f.tr.HandleTaskNotesChange(ctx, "demo", ledger.TaskDaily, "login", 20240605, "forgot")
	require.NoError(t, err)
	require.NoError(t, f.tr.FlushAll(ctx))

	rows, err := f.gw.RecordsForDay(ctx, ledger.TableDaily, 20240605, "na")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "forgot", rows[0].Notes)
	assert.Equal(t, 0, rows[0].Value)

	// AND: a later value keeps the notes
	res := f.setTask(t, ledger.TaskDaily, "login", 20240605, 1)
	assert.Equal(t, "forgot", res.Day.Progress(ledger.TaskDaily, "login").Notes)
}

// =============================================================================
// RANKED STAGES
// =============================================================================

func TestTracker_RankedStagesUsePerStageBaselines(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	// GIVEN: floor-1 cleared on Monday
	_, err := f.tr.HandleRankedStageRecordChange(ctx, "demo", ledger.TaskPeriodic, "abyss", "floor-1", 20240603, 3)
	require.NoError(t, err)

	// WHEN: both floors are cleared on Tuesday
	_, err = f.tr.HandleRankedStageRecordChange(ctx, "demo", ledger.TaskPeriodic, "abyss", "floor-1", 20240604, 3)
	require.NoError(t, err)
	res, err := f.tr.HandleRankedStageRecordChange(ctx, "demo", ledger.TaskPeriodic, "abyss", "floor-2", 20240604, 3)
	require.NoError(t, err)

	// THEN: only floor-2 pays on Tuesday
	p := res.Day.Progress(ledger.TaskPeriodic, "abyss")
	require.NotNil(t, p)
	assert.Equal(t, 6, p.Value)
	assert.Equal(t, map[string]int{"floor-1": 3, "floor-2": 3}, p.RankedStageValues)
	assert.Equal(t, []currency.Value{gold(70)}, p.Currencies)
	assertAmount(t, 120, res.Day.GetCurrencyValue("gold"))
}

func TestTracker_RankedStageErrors(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	_, err := f.tr.HandleRankedStageRecordChange(ctx, "demo", ledger.TaskDaily, "login", "floor-1", 20240605, 1)
	assert.ErrorIs(t, err, tracker.ErrNotRanked)

	_, err = f.tr.HandleRankedStageRecordChange(ctx, "demo", ledger.TaskPeriodic, "abyss", "floor-9", 20240605, 1)
	assert.ErrorIs(t, err, tracker.ErrStageNotFound)

	_, err = f.tr.HandleTaskRecordChange(ctx, "demo", ledger.TaskPeriodic, "abyss", 20240605, 1)
	assert.ErrorIs(t, err, tracker.ErrInvalidValue)
}

func TestTracker_RankedStagesPersistAndReload(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	_, err := f.tr.HandleRankedStageRecordChange(ctx, "demo", ledger.TaskPeriodic, "abyss", "floor-2", 20240605, 3)
	require.NoError(t, err)
	require.NoError(t, f.tr.FlushAll(ctx))

	stages, err := f.gw.RankedStagesForRange(ctx, 20240605, 20240605, "na")
	require.NoError(t, err)
	require.Len(t, stages, 1)
	assert.Equal(t, "floor-2", stages[0].StageName)
	assert.Equal(t, 3, stages[0].Value)

	// GIVEN: a fresh tracker over the same store
	fresh := tracker.New(tracker.Options{Now: fixedNow})
	require.NoError(t, fresh.AddGame(demoGame(), f.gw))

	day, err := fresh.Day(ctx, "demo", 20240605)
	require.NoError(t, err)
	p := day.Progress(ledger.TaskPeriodic, "abyss")
	require.NotNil(t, p)
	assert.Equal(t, map[string]int{"floor-2": 3}, p.RankedStageValues)
	assertAmount(t, 70, day.GetCurrencyValue("gold"))
}

func TestTracker_EventProgressOutsideEventDates(t *testing.T) {
	ctx := context.Background()
	cfg := demoGame()
	cfg.Event = []rewards.Task{
		{ID: "lantern", StartDate: "2024-06-03", EndDate: "2024-06-05", Rewards: []currency.Value{gold(40)}},
	}
	tr := tracker.New(tracker.Options{
		Now:    fixedNow,
		Writes: coalescer.New(debounce, coalescer.WithClock(coalescer.NewManualClock(fixedNow()))),
	})
	require.NoError(t, tr.AddGame(cfg, store.NewMemory()))

	_, err := tr.HandleTaskRecordChange(ctx, "demo", ledger.TaskEvent, "lantern", 20240602, 1)
	assert.ErrorIs(t, err, tracker.ErrInvalidValue)
	_, err = tr.HandleTaskRecordChange(ctx, "demo", ledger.TaskEvent, "lantern", 20240606, 1)
	assert.ErrorIs(t, err, tracker.ErrInvalidValue)

	res, err := tr.HandleTaskRecordChange(ctx, "demo", ledger.TaskEvent, "lantern", 20240604, 1)
	require.NoError(t, err)
	assert.Equal(t, []currency.Value{gold(40)}, res.Day.Progress(ledger.TaskEvent, "lantern").Currencies)
}

// =============================================================================
// CURRENCY OVERRIDES
// =============================================================================

func TestTracker_OverrideSeedsFollowingDays(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	res, err := f.tr.HandleCurrencyHistoryChange(ctx, "demo", 20240603, "gold", decimal.NewFromInt(500))
	require.NoError(t, err)

	assert.Equal(t, []ledger.DateKey{20240604, 20240605}, res.Adjusted)
	assertAmount(t, 500, res.Day.GetCurrencyValue("gold"))
	assertAmount(t, 500, currency.AmountOf(f.day(t, 20240605).Totals.Initial, "gold"))
}

func TestTracker_PropagationStopsAtOverride(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	// GIVEN: an override on Tuesday
	_, err := f.tr.HandleCurrencyHistoryChange(ctx, "demo", 20240604, "gold", decimal.NewFromInt(500))
	require.NoError(t, err)

	// WHEN: Monday earns gold
	res := f.setTask(t, ledger.TaskDaily, "login", 20240603, 1)

	// THEN: nothing past Monday is adjusted
	assert.Empty(t, res.Adjusted)
	assertAmount(t, 0, currency.AmountOf(f.day(t, 20240604).Totals.Initial, "gold"))
	assertAmount(t, 500, currency.AmountOf(f.day(t, 20240605).Totals.Initial, "gold"))
}

func TestTracker_OverrideInput(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	// Negative amounts clamp to zero
	res, err := f.tr.HandleCurrencyHistoryChange(ctx, "demo", 20240605, "gold", decimal.NewFromInt(-20))
	require.NoError(t, err)
	assertAmount(t, 0, res.Day.GetCurrencyValue("gold"))
	assert.True(t, res.Day.HasOverride())

	// Untracked currencies are rejected
	_, err = f.tr.HandleCurrencyHistoryChange(ctx, "demo", 20240605, "gems", decimal.NewFromInt(1))
	assert.ErrorIs(t, err, tracker.ErrInvalidValue)
}

func TestTracker_ClearOverride(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	f.setTask(t, ledger.TaskDaily, "login", 20240604, 1)
	_, err := f.tr.HandleCurrencyHistoryChange(ctx, "demo", 20240604, "gold", decimal.NewFromInt(500))
	require.NoError(t, err)

	res, err := f.tr.ClearCurrencyOverride(ctx, "demo", 20240604)
	require.NoError(t, err)

	assert.False(t, res.Day.HasOverride())
	assertAmount(t, 10, res.Day.GetCurrencyValue("gold"))
	assertAmount(t, 10, currency.AmountOf(f.day(t, 20240605).Totals.Initial, "gold"))
}

// =============================================================================
// OTHER & PREMIUM SOURCES
// =============================================================================

func TestTracker_OtherSources(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	res, err := f.tr.HandleOtherSourceChange(ctx, "demo", 20240605, "mail", "", []currency.Value{gold(25)})
	require.NoError(t, err)
	assertAmount(t, 25, res.Day.GetCurrencyValue("gold"))

	res, err = f.tr.HandleOtherSourceChange(ctx, "demo", 20240605, "mail", "", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Day.OtherSources)

	_, err = f.tr.HandleOtherSourceChange(ctx, "demo", 20240605, "", "", nil)
	assert.ErrorIs(t, err, tracker.ErrInvalidValue)
}

func TestTracker_PremiumSources(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	// GIVEN: two purchases
	res, err := f.tr.AddPremiumSource(ctx, "demo", 20240605, ledger.PremiumSource{
		Name: "pass", Spending: decimal.NewFromFloat(4.99), Currencies: []currency.Value{gold(300)}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.PremiumID)
	res, err = f.tr.AddPremiumSource(ctx, "demo", 20240605, ledger.PremiumSource{Name: "pack"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.PremiumID)

	// WHEN: one is updated and the other removed
	_, err = f.tr.UpdatePremiumSource(ctx, "demo", 20240605, ledger.PremiumSource{
		ID: 2, Name: "pack", Currencies: []currency.Value{gold(50)}})
	require.NoError(t, err)
	res, err = f.tr.RemovePremiumSource(ctx, "demo", 20240605, 1)
	require.NoError(t, err)
	require.NoError(t, f.tr.FlushAll(ctx))

	// THEN
	assertAmount(t, 50, res.Day.GetCurrencyValue("gold"))
	rows, err := f.gw.PremiumForRange(ctx, 20240605, 20240605, "na")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].ID)

	_, err = f.tr.RemovePremiumSource(ctx, "demo", 20240605, 9)
	assert.ErrorIs(t, err, tracker.ErrPremiumNotFound)
	_, err = f.tr.AddPremiumSource(ctx, "demo", 20240605, ledger.PremiumSource{Spending: decimal.NewFromInt(-1)})
	assert.ErrorIs(t, err, tracker.ErrInvalidValue)
}

// =============================================================================
// WRITE PATH
// =============================================================================

func TestTracker_BurstOfEditsWritesOnce(t *testing.T) {
	f := newFixture(t, fixedNow)

	// GIVEN: three edits of one record inside the debounce window
	f.setTask(t, ledger.TaskWeekly, "boss", 20240605, 5)
	f.setTask(t, ledger.TaskWeekly, "boss", 20240605, 9)
	f.setTask(t, ledger.TaskWeekly, "boss", 20240605, 15)
	assert.Equal(t, []string{"history/demo/na", "task/demo/na/weekly/boss"}, f.tr.Pending())
	assert.Equal(t, 0, f.gw.Writes())

	// WHEN: the window elapses
	f.clock.Advance(debounce)

	// THEN: one task write and one history write carry the final state
	assert.Equal(t, 2, f.gw.Writes())
	assert.Empty(t, f.tr.Pending())
	rows, err := f.gw.RecordsForDay(context.Background(), ledger.TableWeekly, 20240605, "na")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 15, rows[0].Value)
	assert.Equal(t, []currency.Value{gold(100)}, rows[0].Currencies)
}

func TestTracker_PropagatedHistoryIsPersisted(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	f.setTask(t, ledger.TaskDaily, "login", 20240603, 1)
	require.NoError(t, f.tr.FlushAll(ctx))

	rows, err := f.gw.CurrencyHistoryForRange(ctx, 20240603, 20240605, "na")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assertAmount(t, 10, currency.AmountOf(r.Currencies, "gold"))
	}

	// AND: a fresh tracker derives the same state from the store
	fresh := tracker.New(tracker.Options{Now: fixedNow})
	require.NoError(t, fresh.AddGame(demoGame(), f.gw))
	day, err := fresh.Day(ctx, "demo", 20240605)
	require.NoError(t, err)
	assertAmount(t, 10, currency.AmountOf(day.Totals.Initial, "gold"))
	assertAmount(t, 10, day.GetCurrencyValue("gold"))
}

func TestTracker_FlushReportsGatewayFailures(t *testing.T) {
	f := newFixture(t, fixedNow)
	boom := errors.New("disk full")

	f.setTask(t, ledger.TaskDaily, "login", 20240605, 1)
	f.gw.FailWith(boom)

	err := f.tr.FlushAll(context.Background())
	assert.ErrorIs(t, err, boom)

	// The cache stays the source of truth
	f.gw.FailWith(nil)
	assertAmount(t, 10, f.day(t, 20240605).GetCurrencyValue("gold"))
}

// =============================================================================
// VIEW, SELECTION & ROLLOVER
// =============================================================================

func TestTracker_UpdateGameView(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	_, err := f.tr.HandleCurrencyHistoryChange(ctx, "demo", 20240605, "gold", decimal.NewFromInt(350))
	require.NoError(t, err)

	v, err := f.tr.UpdateGameView(ctx, "demo")
	require.NoError(t, err)

	assert.Equal(t, "na", v.Region)
	assert.Equal(t, ledger.DateKey(20240605), v.Today)
	assert.Equal(t, ledger.DateKey(20240605), v.SelectedDay)
	assert.Equal(t, time.Date(2024, 6, 6, 0, 0, 0, 0, time.UTC), v.NextReset.UTC())
	assert.Equal(t, currency.ID("gold"), v.Primary)
	assertAmount(t, 350, currency.AmountOf(v.Balance, "gold"))
	assert.Equal(t, map[string]int64{"standard": 3}, v.Pulls)
}

func TestTracker_SelectDay(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	v, err := f.tr.SelectDay(ctx, "demo", 20240601)
	require.NoError(t, err)
	assert.Equal(t, ledger.DateKey(20240601), v.SelectedDay)
	assert.Equal(t, ledger.DateKey(20240605), v.Today)

	_, err = f.tr.SelectDay(ctx, "demo", 20241301)
	assert.ErrorIs(t, err, tracker.ErrInvalidValue)
}

func TestTracker_ViewedFutureDayFollowsLaterEdits(t *testing.T) {
	now := fixedNow()
	f := newFixture(t, func() time.Time { return now })
	ctx := context.Background()

	// GIVEN: tomorrow was viewed before anything was earned
	v, err := f.tr.SelectDay(ctx, "demo", 20240606)
	require.NoError(t, err)
	assertAmount(t, 0, currency.AmountOf(v.Day.Totals.Initial, "gold"))

	// WHEN: today earns gold
	res := f.setTask(t, ledger.TaskDaily, "login", 20240605, 1)
	assert.Equal(t, []ledger.DateKey{20240606}, res.Adjusted)

	// THEN: tomorrow starts from today's balance
	v, err = f.tr.SelectDay(ctx, "demo", 20240606)
	require.NoError(t, err)
	assertAmount(t, 10, currency.AmountOf(v.Day.Totals.Initial, "gold"))
	assertAmount(t, 10, currency.AmountOf(v.Balance, "gold"))

	// AND: the rollover carries the same balance
	now = now.Add(12 * time.Hour)
	_, err = f.tr.CheckRollover(ctx)
	require.NoError(t, err)
	assertAmount(t, 10, currency.AmountOf(f.day(t, 20240606).Totals.Initial, "gold"))
}

func TestTracker_SelectRegionFlushesAndRebuilds(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	f.setTask(t, ledger.TaskDaily, "login", 20240605, 1)
	require.NotEmpty(t, f.tr.Pending())

	v, err := f.tr.SelectRegion(ctx, "demo", "asia")
	require.NoError(t, err)

	assert.Empty(t, f.tr.Pending())
	assert.Equal(t, "asia", v.Region)
	assertAmount(t, 0, currency.AmountOf(v.Balance, "gold"))

	_, err = f.tr.SelectRegion(ctx, "demo", "eu")
	assert.ErrorIs(t, err, tracker.ErrRegionNotFound)
}

func TestTracker_CheckRollover(t *testing.T) {
	now := fixedNow()
	f := newFixture(t, func() time.Time { return now })
	ctx := context.Background()

	f.setTask(t, ledger.TaskDaily, "login", 20240605, 1)
	_, err := f.tr.UpdateGameView(ctx, "demo")
	require.NoError(t, err)

	rolled, err := f.tr.CheckRollover(ctx)
	require.NoError(t, err)
	assert.Empty(t, rolled)

	// WHEN: the region passes its reset
	now = now.Add(12 * time.Hour)
	rolled, err = f.tr.CheckRollover(ctx)
	require.NoError(t, err)

	// THEN: focus follows today and the new day is seeded
	assert.Equal(t, []string{"demo"}, rolled)
	v, err := f.tr.UpdateGameView(ctx, "demo")
	require.NoError(t, err)
	assert.Equal(t, ledger.DateKey(20240606), v.SelectedDay)
	assertAmount(t, 10, currency.AmountOf(v.Day.Totals.Initial, "gold"))
}

// =============================================================================
// REPORT
// =============================================================================

func TestTracker_RenderLedger(t *testing.T) {
	f := newFixture(t, fixedNow)
	ctx := context.Background()

	f.setTask(t, ledger.TaskDaily, "login", 20240603, 1)
	f.setTask(t, ledger.TaskWeekly, "boss", 20240604, 15)
	_, err := f.tr.HandleCurrencyHistoryChange(ctx, "demo", 20240605, "gold", decimal.NewFromInt(50))
	require.NoError(t, err)
	_, err = f.tr.HandleDayNotesChange(ctx, "demo", 20240605, "spent on banner")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, f.tr.RenderLedger(ctx, &buf, "demo", 20240603, 20240605))

	g := goldie.New(t)
	g.Assert(t, "ledger_report", buf.Bytes())
}
