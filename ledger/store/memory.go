// Package store provides Gateway implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/ledger"
)

// =============================================================================
// MEMORY GATEWAY - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	tasks    map[taskKey]ledger.TaskRecord
	stages   map[stageKey]ledger.RankedStageRecord
	premium  map[premiumKey]ledger.PremiumRecord
	history  map[dayKey]ledger.CurrencyHistoryRecord
	writes   int
	failWith error
}

type dayKey struct {
	Date   ledger.DateKey
	Region string
}

type taskKey struct {
	Table ledger.Table
	dayKey
	Name string
}

type stageKey struct {
	dayKey
	Parent string
	Stage  string
}

type premiumKey struct {
	dayKey
	ID int
}

func NewMemory() *Memory {
	return &Memory{
		tasks:   make(map[taskKey]ledger.TaskRecord),
		stages:  make(map[stageKey]ledger.RankedStageRecord),
		premium: make(map[premiumKey]ledger.PremiumRecord),
		history: make(map[dayKey]ledger.CurrencyHistoryRecord),
	}
}

// FailWith makes every later call return err. nil restores normal operation.
func (m *Memory) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
}

// Writes returns the number of successful mutation calls.
func (m *Memory) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

func checkTaskTable(t ledger.Table) error {
	if !t.IsTaskTable() {
		return fmt.Errorf("%w: %q", ledger.ErrUnknownTable, t)
	}
	return nil
}

// =============================================================================
// QUERIES
// =============================================================================

func (m *Memory) RecordsForDay(ctx context.Context, table ledger.Table, date ledger.DateKey, region string) ([]ledger.TaskRecord, error) {
	return m.RecordsForRange(ctx, table, date, date, region)
}

func (m *Memory) RecordsForRange(_ context.Context, table ledger.Table, start, end ledger.DateKey, region string) ([]ledger.TaskRecord, error) {
	if err := checkTaskTable(table); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var out []ledger.TaskRecord
	for k, r := range m.tasks {
		if k.Table == table && k.Region == region && k.Date >= start && k.Date <= end {
			out = append(out, cloneTask(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (m *Memory) RankedStagesForRange(_ context.Context, start, end ledger.DateKey, region string) ([]ledger.RankedStageRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var out []ledger.RankedStageRecord
	for k, r := range m.stages {
		if k.Region == region && k.Date >= start && k.Date <= end {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].ParentTask != out[j].ParentTask {
			return out[i].ParentTask < out[j].ParentTask
		}
		return out[i].StageName < out[j].StageName
	})
	return out, nil
}

func (m *Memory) PremiumForRange(_ context.Context, start, end ledger.DateKey, region string) ([]ledger.PremiumRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var out []ledger.PremiumRecord
	for k, r := range m.premium {
		if k.Region == region && k.Date >= start && k.Date <= end {
			r.Currencies = currency.Clone(r.Currencies)
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CurrencyHistoryForRange(_ context.Context, start, end ledger.DateKey, region string) ([]ledger.CurrencyHistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var out []ledger.CurrencyHistoryRecord
	for k, r := range m.history {
		if k.Region == region && k.Date >= start && k.Date <= end {
			out = append(out, cloneHistory(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

func (m *Memory) LastCurrencyHistoryBefore(_ context.Context, date ledger.DateKey, region string) (*ledger.CurrencyHistoryRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failWith != nil {
		return nil, m.failWith
	}

	var best *ledger.CurrencyHistoryRecord
	for k, r := range m.history {
		if k.Region != region || k.Date >= date || !r.HasContent() {
			continue
		}
		if best == nil || r.Date > best.Date {
			rec := cloneHistory(r)
			best = &rec
		}
	}
	return best, nil
}

// =============================================================================
// MUTATIONS
// =============================================================================

func (m *Memory) UpsertTaskRecord(_ context.Context, table ledger.Table, rec ledger.TaskRecord) error {
	if err := checkTaskTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.upsertTaskLocked(table, rec)
	return nil
}

func (m *Memory) upsertTaskLocked(table ledger.Table, rec ledger.TaskRecord) {
	k := taskKey{Table: table, dayKey: dayKey{rec.Date, rec.Region}, Name: rec.Name}
	if rec.Empty() {
		delete(m.tasks, k)
	} else {
		m.tasks[k] = cloneTask(rec)
	}
	m.writes++
}

func (m *Memory) UpsertRankedStage(_ context.Context, rec ledger.RankedStageRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	k := stageKey{dayKey: dayKey{rec.Date, rec.Region}, Parent: rec.ParentTask, Stage: rec.StageName}
	if rec.Empty() {
		delete(m.stages, k)
	} else {
		m.stages[k] = rec
	}
	m.writes++
	return nil
}

func (m *Memory) UpsertPremium(_ context.Context, rec ledger.PremiumRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	rec.Currencies = currency.Clone(rec.Currencies)
	m.premium[premiumKey{dayKey: dayKey{rec.Date, rec.Region}, ID: rec.ID}] = rec
	m.writes++
	return nil
}

func (m *Memory) DeletePremium(_ context.Context, date ledger.DateKey, region string, id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	delete(m.premium, premiumKey{dayKey: dayKey{date, region}, ID: id})
	m.writes++
	return nil
}

func (m *Memory) UpsertCurrencyHistory(_ context.Context, rec ledger.CurrencyHistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.history[dayKey{rec.Date, rec.Region}] = cloneHistory(rec)
	m.writes++
	return nil
}

func (m *Memory) BulkUpdateTaskRecordsForRange(_ context.Context, table ledger.Table, region, id string, dates []ledger.DateKey, targets map[ledger.DateKey]ledger.TaskRecord) error {
	if err := checkTaskTable(table); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, d := range dates {
		rec, ok := targets[d]
		if !ok {
			continue
		}
		rec.Date, rec.Region, rec.Name = d, region, id
		m.upsertTaskLocked(table, rec)
	}
	return nil
}

func (m *Memory) BulkUpdateCurrencyHistoryForRange(_ context.Context, region string, dates []ledger.DateKey, targets map[ledger.DateKey]ledger.CurrencyHistoryRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	for _, d := range dates {
		rec, ok := targets[d]
		if !ok {
			continue
		}
		rec.Date, rec.Region = d, region
		m.history[dayKey{d, region}] = cloneHistory(rec)
		m.writes++
	}
	return nil
}

func cloneTask(r ledger.TaskRecord) ledger.TaskRecord {
	r.Currencies = currency.Clone(r.Currencies)
	return r
}

func cloneHistory(r ledger.CurrencyHistoryRecord) ledger.CurrencyHistoryRecord {
	r.Currencies = currency.Clone(r.Currencies)
	r.Override = currency.Clone(r.Override)
	return r
}

var _ ledger.Gateway = (*Memory)(nil)
