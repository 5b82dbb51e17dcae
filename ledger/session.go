package ledger

import (
	"context"
	"io"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/rewards"
)

// =============================================================================
// GAME SESSION - Sparse day cache for one (game, region) pair
// =============================================================================

// GameSession owns the cached days of one game in one region.
// It is rebuilt from the gateway on demand and never persisted itself.
type GameSession struct {
	GameID          string
	Region          Region
	LastSelectedDay DateKey

	days    map[DateKey]*DayData
	tracked []currency.ID
	calc    *rewards.Calculator
	gateway Gateway
	clock   ResetClock
	now     func() time.Time
	logger  logrus.FieldLogger
}

// SessionOptions configures a GameSession.
type SessionOptions struct {
	Tracked []currency.ID
	Gateway Gateway
	Now     func() time.Time
	Logger  logrus.FieldLogger
}

// NewGameSession creates an empty session. A nil gateway yields a session
// whose days are always empty on population.
func NewGameSession(gameID string, region Region, opts SessionOptions) *GameSession {
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	logger = logger.WithFields(logrus.Fields{"game": gameID, "region": region.ID})

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	s := &GameSession{
		GameID:  gameID,
		Region:  region,
		days:    make(map[DateKey]*DayData),
		tracked: opts.Tracked,
		calc:    rewards.NewCalculator(opts.Tracked...),
		gateway: opts.Gateway,
		clock:   region.Clock(logger),
		now:     now,
		logger:  logger,
	}
	s.LastSelectedDay = s.Today()
	return s
}

// Today is the region's current in-game date.
func (s *GameSession) Today() DateKey {
	return s.clock.CurrentDate(s.now())
}

// NextReset is the instant of the region's next daily reset.
func (s *GameSession) NextReset() time.Time {
	return s.clock.NextReset(s.now())
}

// Calculator returns the reward calculator bound to the tracked currencies.
func (s *GameSession) Calculator() *rewards.Calculator { return s.calc }

// Tracked returns the tracked currencies.
func (s *GameSession) Tracked() []currency.ID { return s.tracked }

// Day returns the cached day, or nil when it was never accessed.
func (s *GameSession) Day(d DateKey) *DayData {
	return s.days[d]
}

// Days returns every cached date in ascending order.
func (s *GameSession) Days() []DateKey {
	keys := make([]DateKey, 0, len(s.days))
	for d := range s.days {
		keys = append(keys, d)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}

func (s *GameSession) ensureDay(d DateKey) *DayData {
	day, ok := s.days[d]
	if !ok {
		day = NewDayData(s.tracked)
		s.days[d] = day
	}
	return day
}

// =============================================================================
// POPULATION
// =============================================================================

// PopulateSessionData ensures date is cached.
func (s *GameSession) PopulateSessionData(ctx context.Context, date DateKey) error {
	return s.PopulateSessionDateRange(ctx, date, date)
}

// PopulateSessionDateRange ensures every date in [start, end] is cached.
// Dates already cached are never fetched again. Missing dates are filled
// with one query per table over the span of the missing dates.
func (s *GameSession) PopulateSessionDateRange(ctx context.Context, start, end DateKey) error {
	if end < start {
		return nil
	}

	missing := make(map[DateKey]*DayData)
	var lo, hi DateKey
	for d := start; d <= end; d = d.Next() {
		if _, ok := s.days[d]; ok {
			continue
		}
		missing[d] = s.ensureDay(d)
		if lo == 0 {
			lo = d
		}
		hi = d
	}
	if len(missing) == 0 || s.gateway == nil {
		return nil
	}

	loaded, err := s.load(ctx, lo, hi, missing)
	if err != nil {
		// Drop the empty days so a later population retries them.
		for d := range missing {
			delete(s.days, d)
		}
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"start":  lo.String(),
		"end":    hi.String(),
		"days":   len(missing),
		"loaded": loaded,
	}).Debug("populated session range")
	return nil
}

// load folds every row in [lo, hi] into the days of target. Rows for dates
// outside target belong to days that are already cached and are ignored.
func (s *GameSession) load(ctx context.Context, lo, hi DateKey, target map[DateKey]*DayData) (int, error) {
	loaded := 0
	touched := make(map[DateKey]bool)

	for _, t := range TaskTypes {
		rows, err := s.gateway.RecordsForRange(ctx, t.Table(), lo, hi, s.Region.ID)
		if err != nil {
			return 0, &GatewayError{Op: "load range", Table: t.Table(), Err: err}
		}
		for _, r := range rows {
			day, ok := target[r.Date]
			if !ok {
				continue
			}
			day.progressMap(t)[r.Name] = &TrackedProgressData{
				Value:      r.Value,
				Currencies: currency.Clone(r.Currencies),
				Notes:      r.Notes,
			}
			touched[r.Date] = true
			loaded++
		}
	}

	others, err := s.gateway.RecordsForRange(ctx, TableOther, lo, hi, s.Region.ID)
	if err != nil {
		return 0, &GatewayError{Op: "load range", Table: TableOther, Err: err}
	}
	for _, r := range others {
		if day, ok := target[r.Date]; ok {
			day.OtherSources[r.Name] = &OtherSource{Notes: r.Notes, Currencies: currency.Clone(r.Currencies)}
			touched[r.Date] = true
			loaded++
		}
	}

	stages, err := s.gateway.RankedStagesForRange(ctx, lo, hi, s.Region.ID)
	if err != nil {
		return 0, &GatewayError{Op: "load range", Table: TableRankedStage, Err: err}
	}
	for _, r := range stages {
		day, ok := target[r.Date]
		if !ok {
			continue
		}
		p := s.rankedParent(day, r.ParentTask)
		if p == nil {
			s.logger.WithFields(logrus.Fields{
				"date": r.Date.String(),
				"task": r.ParentTask,
			}).Warn("ranked stage without parent task record, skipping")
			continue
		}
		if p.RankedStageValues == nil {
			p.RankedStageValues = make(map[string]int)
		}
		p.RankedStageValues[r.StageName] = r.Value
		touched[r.Date] = true
		loaded++
	}

	premiums, err := s.gateway.PremiumForRange(ctx, lo, hi, s.Region.ID)
	if err != nil {
		return 0, &GatewayError{Op: "load range", Table: TablePremium, Err: err}
	}
	for _, r := range premiums {
		if day, ok := target[r.Date]; ok {
			day.PremiumSources = append(day.PremiumSources, &PremiumSource{
				ID:         r.ID,
				Name:       r.Name,
				Category:   r.Category,
				Currencies: currency.Clone(r.Currencies),
				Spending:   r.Spending,
				Notes:      r.Notes,
			})
			touched[r.Date] = true
			loaded++
		}
	}

	history, err := s.gateway.CurrencyHistoryForRange(ctx, lo, hi, s.Region.ID)
	if err != nil {
		return 0, &GatewayError{Op: "load range", Table: TableCurrencyHistory, Err: err}
	}
	histByDate := make(map[DateKey]CurrencyHistoryRecord, len(history))
	for _, r := range history {
		if _, ok := target[r.Date]; ok {
			histByDate[r.Date] = r
			touched[r.Date] = true
			loaded++
		}
	}

	for d := range touched {
		day := target[d]
		day.Populated = true
		if h, ok := histByDate[d]; ok {
			day.Notes = h.Notes
			day.Totals.Override = currency.Clone(h.Override)
			day.CalculateGainFromTasks()
			if len(h.Currencies) > 0 {
				day.Totals.Initial = deriveInitial(h.Currencies, day.Totals.Calculated)
				day.seeded = true
			}
		}
		day.CalculateGainFromTasks()
	}
	return loaded, nil
}

// deriveInitial recovers the initial amounts from persisted calculated
// amounts and the gains of the freshly loaded sources.
func deriveInitial(persisted []currency.Value, calculated []currency.History) []currency.Value {
	out := make([]currency.Value, 0, len(persisted))
	for _, p := range persisted {
		gain := decimal.Zero
		if h := currency.FindHistory(calculated, p.Currency); h != nil {
			gain = h.Gain
		}
		out = append(out, currency.Value{Currency: p.Currency, Amount: p.Amount.Sub(gain)})
	}
	return out
}

// rankedParent finds the progress record holding a ranked task.
func (s *GameSession) rankedParent(day *DayData, taskID string) *TrackedProgressData {
	for _, t := range TaskTypes {
		if p := day.Progress(t, taskID); p != nil {
			return p
		}
	}
	return nil
}

// =============================================================================
// BASELINES
// =============================================================================

// Highest is the maximum value recorded in a range and the date holding it.
// Date is zero when no day in the range recorded a value.
type Highest struct {
	Value int
	Date  DateKey
}

// HighestProgressForTaskInRange scans cached, populated days in [start, end)
// and returns the maximum value recorded for the task.
func (s *GameSession) HighestProgressForTaskInRange(t TaskType, taskID string, start, end DateKey) Highest {
	var best Highest
	for d := start; d < end; d = d.Next() {
		day := s.days[d]
		if day == nil || !day.Populated {
			continue
		}
		p := day.Progress(t, taskID)
		if p == nil {
			continue
		}
		if best.Date == 0 || p.Value > best.Value {
			best = Highest{Value: p.Value, Date: d}
		}
	}
	return best
}

// HighestProgressForRankedStagesInRange is the per-stage form of
// HighestProgressForTaskInRange.
func (s *GameSession) HighestProgressForRankedStagesInRange(t TaskType, taskID string, start, end DateKey) map[string]Highest {
	best := make(map[string]Highest)
	for d := start; d < end; d = d.Next() {
		day := s.days[d]
		if day == nil || !day.Populated {
			continue
		}
		p := day.Progress(t, taskID)
		if p == nil {
			continue
		}
		for stage, v := range p.RankedStageValues {
			cur, ok := best[stage]
			if !ok || v > cur.Value {
				best[stage] = Highest{Value: v, Date: d}
			}
		}
	}
	return best
}

// StageBaselines flattens a per-stage Highest map to values.
func StageBaselines(h map[string]Highest) map[string]int {
	out := make(map[string]int, len(h))
	for k, v := range h {
		out[k] = v.Value
	}
	return out
}

// =============================================================================
// INITIAL SEEDING
// =============================================================================

// PopulateInitialCurrencyValue seeds date's initial amounts from the
// effective amounts of the day before. When that day carries no currency
// state, the last persisted history row before it seeds it first.
func (s *GameSession) PopulateInitialCurrencyValue(ctx context.Context, date DateKey) error {
	prevDate := date.Prev()
	if err := s.PopulateSessionDateRange(ctx, prevDate, date); err != nil {
		return err
	}
	prev := s.days[prevDate]
	if !prev.hasTotals() {
		seed, err := s.lastKnownBefore(ctx, prevDate)
		if err != nil {
			return err
		}
		prev.SetInitial(seed)
	}
	s.days[date].SetInitial(prev.EffectiveCurrencies())
	return nil
}

// lastKnownBefore returns the effective amounts of the most recent history
// row before date, or zero for every tracked currency.
func (s *GameSession) lastKnownBefore(ctx context.Context, date DateKey) ([]currency.Value, error) {
	if s.gateway != nil {
		rec, err := s.gateway.LastCurrencyHistoryBefore(ctx, date, s.Region.ID)
		if err != nil {
			return nil, &GatewayError{Op: "last currency history", Table: TableCurrencyHistory, Err: err}
		}
		if rec != nil {
			values := currency.Clone(rec.Currencies)
			for _, o := range rec.Override {
				if v := currency.Find(values, o.Currency); v != nil {
					v.Amount = o.Amount
				} else {
					values = append(values, o)
				}
			}
			return values, nil
		}
	}
	zeros := make([]currency.Value, 0, len(s.tracked))
	for _, c := range s.tracked {
		zeros = append(zeros, currency.Value{Currency: c, Amount: decimal.Zero})
	}
	return zeros, nil
}

// =============================================================================
// SNAPSHOTS - Immutable rows for the write path
// =============================================================================

// TaskRecordFor snapshots a task's progress on date as a persisted row.
// An absent record yields an empty row, which deletes on upsert.
func (s *GameSession) TaskRecordFor(t TaskType, taskID string, date DateKey) TaskRecord {
	rec := TaskRecord{Date: date, Region: s.Region.ID, Name: taskID}
	if day := s.days[date]; day != nil {
		if p := day.Progress(t, taskID); p != nil {
			rec.Value = p.Value
			rec.Currencies = currency.Clone(p.Currencies)
			rec.Notes = p.Notes
		}
	}
	return rec
}

// RankedStageRecordFor snapshots one stage of a ranked task on date.
func (s *GameSession) RankedStageRecordFor(t TaskType, taskID, stageID string, date DateKey) RankedStageRecord {
	rec := RankedStageRecord{Date: date, Region: s.Region.ID, ParentTask: taskID, StageName: stageID}
	if day := s.days[date]; day != nil {
		if p := day.Progress(t, taskID); p != nil {
			rec.Value = p.RankedStageValues[stageID]
			rec.Score = rec.Value
		}
	}
	return rec
}

// OtherRecordFor snapshots an other source on date.
func (s *GameSession) OtherRecordFor(name string, date DateKey) TaskRecord {
	rec := TaskRecord{Date: date, Region: s.Region.ID, Name: name}
	if day := s.days[date]; day != nil {
		if o := day.OtherSources[name]; o != nil {
			rec.Currencies = currency.Clone(o.Currencies)
			rec.Notes = o.Notes
		}
	}
	return rec
}

// PremiumRecordFor snapshots a premium source; ok is false when it is absent.
func (s *GameSession) PremiumRecordFor(date DateKey, id int) (PremiumRecord, bool) {
	day := s.days[date]
	if day == nil {
		return PremiumRecord{}, false
	}
	p := day.PremiumSource(id)
	if p == nil {
		return PremiumRecord{}, false
	}
	return PremiumRecord{
		Date:       date,
		Region:     s.Region.ID,
		ID:         p.ID,
		Name:       p.Name,
		Category:   p.Category,
		Spending:   p.Spending,
		Currencies: currency.Clone(p.Currencies),
		Notes:      p.Notes,
	}, true
}

// CurrencyHistoryRecordFor snapshots a day's totals as a persisted row.
func (s *GameSession) CurrencyHistoryRecordFor(date DateKey) CurrencyHistoryRecord {
	rec := CurrencyHistoryRecord{Date: date, Region: s.Region.ID}
	if day := s.days[date]; day != nil {
		rec.Currencies = currency.Amounts(day.Totals.Calculated)
		rec.Override = currency.Clone(day.Totals.Override)
		rec.Notes = day.Notes
	}
	return rec
}
