package tracker

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/factory"
	"github.com/warp/progress-tracker/ledger"
	"github.com/warp/progress-tracker/rewards"
)

// Result is the outcome of a mutation: a copy of the edited day and every
// other day whose state changed as a consequence.
type Result struct {
	Date      ledger.DateKey   `json:"date"`
	Day       *ledger.DayData  `json:"day"`
	Adjusted  []ledger.DateKey `json:"adjusted,omitempty"`
	PremiumID int              `json:"premium_id,omitempty"`
}

func result(s *ledger.GameSession, date ledger.DateKey, adjusted []ledger.DateKey) Result {
	return Result{Date: date, Day: s.Day(date).Clone(), Adjusted: adjusted}
}

// prepare resolves the session and readies date for an edit by populating
// [from, date] and seeding date. Caller holds t.mu.
func (t *Tracker) prepare(ctx context.Context, gameID string, from, date ledger.DateKey) (*game, *ledger.GameSession, error) {
	if !date.Valid() {
		return nil, nil, fmt.Errorf("%w: date %d", ErrInvalidValue, int(date))
	}
	g, s, err := t.session(gameID)
	if err != nil {
		return nil, nil, err
	}
	if from == 0 || from > date {
		from = date
	}
	if err := s.PopulateSessionDateRange(ctx, from, date); err != nil {
		return nil, nil, err
	}
	if err := ensureSeeded(ctx, s, date); err != nil {
		return nil, nil, err
	}
	return g, s, nil
}

func (t *Tracker) lookupTask(g *game, tt ledger.TaskType, taskID string) (rewards.Task, error) {
	task, ok := g.cfg.Task(tt, taskID)
	if !ok {
		return rewards.Task{}, &TaskNotFoundError{Game: g.cfg.ID, Type: tt, Task: taskID}
	}
	return task, nil
}

// checkEventDate rejects progress on an event task outside its dates.
func checkEventDate(tt ledger.TaskType, task rewards.Task, date ledger.DateKey) error {
	if tt != ledger.TaskEvent {
		return nil
	}
	if p, ok := factory.EventPeriod(task); ok && !p.Contains(date) {
		return fmt.Errorf("%w: event %s runs %s", ErrInvalidValue, task.ID, p)
	}
	return nil
}

// propagate re-seeds the days after date up to today, or up to the last
// day already seeded past it, and queues the history rows of date, of extra
// and of every re-seeded day.
func (t *Tracker) propagate(ctx context.Context, g *game, s *ledger.GameSession, date ledger.DateKey, extra []ledger.DateKey) ([]ledger.DateKey, error) {
	seeded, err := s.AdjustCurrentHistoryRetroactive(ctx, date)
	if err != nil {
		return nil, err
	}
	t.queueHistory(g, s, unionDates([]ledger.DateKey{date}, extra, seeded)...)
	return unionDates(extra, seeded), nil
}

// =============================================================================
// TASK PROGRESS
// =============================================================================

// HandleTaskRecordChange records value for a flat or stepped task on date.
// The reward paid is resolved against the highest value recorded earlier in
// the task's reset window; later days of the window are re-derived.
func (t *Tracker) HandleTaskRecordChange(ctx context.Context, gameID string, tt ledger.TaskType, taskID string, date ledger.DateKey, value int) (Result, error) {
	if value < 0 {
		return Result{}, fmt.Errorf("%w: negative value %d", ErrInvalidValue, value)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.games[gameID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	task, err := t.lookupTask(g, tt, taskID)
	if err != nil {
		return Result{}, err
	}
	if task.IsRanked() {
		return Result{}, fmt.Errorf("%w: %s is ranked, record its stages", ErrInvalidValue, taskID)
	}
	if err := checkEventDate(tt, task, date); err != nil {
		return Result{}, err
	}

	window := g.cfg.Window(tt, task, date)
	g, s, err := t.prepare(ctx, gameID, window.Start, date)
	if err != nil {
		return Result{}, err
	}

	baseline := s.HighestProgressForTaskInRange(tt, taskID, window.Start, date).Value
	currencies := s.Calculator().ForValue(task, baseline, value)
	s.Day(date).SetProgress(tt, taskID, value, currencies)

	stepped, err := s.AdjustSteppedRewardsValuesRetroactive(ctx, task, tt, date, window, value)
	if err != nil {
		return Result{}, err
	}
	t.queueTaskRows(g, s, tt, taskID, unionDates([]ledger.DateKey{date}, stepped)...)

	adjusted, err := t.propagate(ctx, g, s, date, stepped)
	if err != nil {
		return Result{}, err
	}

	t.logger.WithFields(logrus.Fields{
		"game":     gameID,
		"task":     taskID,
		"date":     date.String(),
		"value":    value,
		"baseline": baseline,
		"adjusted": len(adjusted),
	}).Debug("task progress changed")
	return result(s, date, adjusted), nil
}

// HandleRankedStageRecordChange records value for one stage of a ranked
// task. Each stage resolves against its own baseline in the stage window.
func (t *Tracker) HandleRankedStageRecordChange(ctx context.Context, gameID string, tt ledger.TaskType, taskID, stageID string, date ledger.DateKey, value int) (Result, error) {
	if value < 0 {
		return Result{}, fmt.Errorf("%w: negative value %d", ErrInvalidValue, value)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	g, ok := t.games[gameID]
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrGameNotFound, gameID)
	}
	task, err := t.lookupTask(g, tt, taskID)
	if err != nil {
		return Result{}, err
	}
	if !task.IsRanked() {
		return Result{}, fmt.Errorf("%w: %s", ErrNotRanked, taskID)
	}
	if task.Stage(stageID) == nil {
		return Result{}, fmt.Errorf("%w: %s/%s", ErrStageNotFound, taskID, stageID)
	}
	if err := checkEventDate(tt, task, date); err != nil {
		return Result{}, err
	}

	window := g.cfg.StageWindow(tt, task, date)
	g, s, err := t.prepare(ctx, gameID, window.Start, date)
	if err != nil {
		return Result{}, err
	}

	baselines := ledger.StageBaselines(s.HighestProgressForRankedStagesInRange(tt, taskID, window.Start, date))
	day := s.Day(date)
	values := make(map[string]int)
	if p := day.Progress(tt, taskID); p != nil {
		for k, v := range p.RankedStageValues {
			values[k] = v
		}
	}
	if value == 0 {
		delete(values, stageID)
	} else {
		values[stageID] = value
	}
	currencies := s.Calculator().RankedStages(task.RankedStages, baselines, values)
	day.SetRankedStageProgress(tt, taskID, stageID, value, currencies)
	t.queueStageRow(g, s, tt, taskID, stageID, date)

	stepped, err := s.AdjustRankedStageValuesRetroactive(ctx, task, tt, date, window, values)
	if err != nil {
		return Result{}, err
	}
	t.queueTaskRows(g, s, tt, taskID, unionDates([]ledger.DateKey{date}, stepped)...)

	adjusted, err := t.propagate(ctx, g, s, date, stepped)
	if err != nil {
		return Result{}, err
	}

	t.logger.WithFields(logrus.Fields{
		"game":  gameID,
		"task":  taskID,
		"stage": stageID,
		"date":  date.String(),
		"value": value,
	}).Debug("ranked stage changed")
	return result(s, date, adjusted), nil
}

// HandleTaskNotesChange sets a task's notes on date. Notes alone keep the
// row stored; they never change currencies.
func (t *Tracker) HandleTaskNotesChange(ctx context.Context, gameID string, tt ledger.TaskType, taskID string, date ledger.DateKey, notes string) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, s, err := t.prepare(ctx, gameID, date, date)
	if err != nil {
		return Result{}, err
	}
	if _, err := t.lookupTask(g, tt, taskID); err != nil {
		return Result{}, err
	}
	s.Day(date).SetProgressNotes(tt, taskID, notes)
	t.queueTaskRows(g, s, tt, taskID, date)
	return result(s, date, nil), nil
}

// =============================================================================
// CURRENCY OVERRIDES
// =============================================================================

// HandleCurrencyHistoryChange sets the authoritative amount of a tracked
// currency on date. Negative amounts clamp to zero. Every later day up to
// today is re-seeded until the next overridden day.
func (t *Tracker) HandleCurrencyHistoryChange(ctx context.Context, gameID string, date ledger.DateKey, c currency.ID, amount decimal.Decimal) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, s, err := t.prepare(ctx, gameID, date, date)
	if err != nil {
		return Result{}, err
	}
	if !s.Calculator().Tracked(c) {
		return Result{}, fmt.Errorf("%w: currency %s is not tracked by %s", ErrInvalidValue, c, gameID)
	}
	if amount.IsNegative() {
		amount = decimal.Zero
	}
	s.Day(date).SetCurrencyOverride(c, amount)

	adjusted, err := t.propagate(ctx, g, s, date, nil)
	if err != nil {
		return Result{}, err
	}
	t.logger.WithFields(logrus.Fields{
		"game":     gameID,
		"date":     date.String(),
		"currency": string(c),
		"amount":   amount.String(),
	}).Debug("currency override set")
	return result(s, date, adjusted), nil
}

// ClearCurrencyOverride drops the override of date and re-seeds later days.
func (t *Tracker) ClearCurrencyOverride(ctx context.Context, gameID string, date ledger.DateKey) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, s, err := t.prepare(ctx, gameID, date, date)
	if err != nil {
		return Result{}, err
	}
	day := s.Day(date)
	if !day.HasOverride() {
		return result(s, date, nil), nil
	}
	day.ClearOverride()
	adjusted, err := t.propagate(ctx, g, s, date, nil)
	if err != nil {
		return Result{}, err
	}
	return result(s, date, adjusted), nil
}

// HandleDayNotesChange sets the free-form notes of date.
func (t *Tracker) HandleDayNotesChange(ctx context.Context, gameID string, date ledger.DateKey, notes string) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, s, err := t.prepare(ctx, gameID, date, date)
	if err != nil {
		return Result{}, err
	}
	s.Day(date).SetNotes(notes)
	t.queueHistory(g, s, date)
	return result(s, date, nil), nil
}

// =============================================================================
// OTHER & PREMIUM SOURCES
// =============================================================================

// HandleOtherSourceChange records a named income source on date. An entry
// without notes and currencies is removed.
func (t *Tracker) HandleOtherSourceChange(ctx context.Context, gameID string, date ledger.DateKey, name, notes string, currencies []currency.Value) (Result, error) {
	if name == "" {
		return Result{}, fmt.Errorf("%w: other source needs a name", ErrInvalidValue)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	g, s, err := t.prepare(ctx, gameID, date, date)
	if err != nil {
		return Result{}, err
	}
	s.Day(date).SetOtherSource(name, notes, currencies)
	t.queueOtherRow(g, s, name, date)

	adjusted, err := t.propagate(ctx, g, s, date, nil)
	if err != nil {
		return Result{}, err
	}
	return result(s, date, adjusted), nil
}

// AddPremiumSource appends a premium record to date with the next id.
func (t *Tracker) AddPremiumSource(ctx context.Context, gameID string, date ledger.DateKey, p ledger.PremiumSource) (Result, error) {
	if p.Spending.IsNegative() {
		return Result{}, fmt.Errorf("%w: negative spending", ErrInvalidValue)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	g, s, err := t.prepare(ctx, gameID, date, date)
	if err != nil {
		return Result{}, err
	}
	added := s.Day(date).AddPremiumSource(p)
	t.queuePremiumRow(g, s, date, added.ID)

	adjusted, err := t.propagate(ctx, g, s, date, nil)
	if err != nil {
		return Result{}, err
	}
	res := result(s, date, adjusted)
	res.PremiumID = added.ID
	return res, nil
}

// UpdatePremiumSource replaces the premium record with p.ID on date.
func (t *Tracker) UpdatePremiumSource(ctx context.Context, gameID string, date ledger.DateKey, p ledger.PremiumSource) (Result, error) {
	if p.Spending.IsNegative() {
		return Result{}, fmt.Errorf("%w: negative spending", ErrInvalidValue)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	g, s, err := t.prepare(ctx, gameID, date, date)
	if err != nil {
		return Result{}, err
	}
	if !s.Day(date).UpdatePremiumSource(p) {
		return Result{}, fmt.Errorf("%w: %s #%d", ErrPremiumNotFound, date, p.ID)
	}
	t.queuePremiumRow(g, s, date, p.ID)

	adjusted, err := t.propagate(ctx, g, s, date, nil)
	if err != nil {
		return Result{}, err
	}
	res := result(s, date, adjusted)
	res.PremiumID = p.ID
	return res, nil
}

// RemovePremiumSource deletes the premium record id from date.
func (t *Tracker) RemovePremiumSource(ctx context.Context, gameID string, date ledger.DateKey, id int) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	g, s, err := t.prepare(ctx, gameID, date, date)
	if err != nil {
		return Result{}, err
	}
	if !s.Day(date).RemovePremiumSource(id) {
		return Result{}, fmt.Errorf("%w: %s #%d", ErrPremiumNotFound, date, id)
	}
	t.queuePremiumRow(g, s, date, id)

	adjusted, err := t.propagate(ctx, g, s, date, nil)
	if err != nil {
		return Result{}, err
	}
	return result(s, date, adjusted), nil
}
