package tracker

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/progress-tracker/coalescer"
	"github.com/warp/progress-tracker/ledger"
)

// =============================================================================
// WRITE PATH - Snapshots handed to the coalescer
// =============================================================================
//
// Rows are snapshotted at schedule time into a buffer keyed like the
// coalescer key, so a timer never reads live session state. A later
// snapshot of the same row replaces the earlier one before it is written.
//
// Keys:
//   task/<game>/<region>/<type>/<id>     task rows of one task, any dates
//   other/<game>/<region>/<name>         other-source rows of one name
//   history/<game>/<region>              currency history rows
//   stage/<game>/<region>/<type>/<id>/<stage>/<date>
//   premium/<game>/<region>/<date>/<id>

type taskBatch struct {
	gw     ledger.Gateway
	table  ledger.Table
	region string
	id     string
	rows   map[ledger.DateKey]ledger.TaskRecord
}

type historyBatch struct {
	gw     ledger.Gateway
	region string
	rows   map[ledger.DateKey]ledger.CurrencyHistoryRecord
}

type writeBuffer struct {
	mu      sync.Mutex
	tasks   map[string]*taskBatch
	history map[string]*historyBatch
}

func newWriteBuffer() *writeBuffer {
	return &writeBuffer{
		tasks:   make(map[string]*taskBatch),
		history: make(map[string]*historyBatch),
	}
}

func (b *writeBuffer) takeTasks(key string) *taskBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.tasks[key]
	delete(b.tasks, key)
	return batch
}

func (b *writeBuffer) takeHistory(key string) *historyBatch {
	b.mu.Lock()
	defer b.mu.Unlock()
	batch := b.history[key]
	delete(b.history, key)
	return batch
}

func sortedDates[V any](rows map[ledger.DateKey]V) []ledger.DateKey {
	dates := make([]ledger.DateKey, 0, len(rows))
	for d := range rows {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i] < dates[j] })
	return dates
}

// =============================================================================
// QUEUEING - Called with the tracker lock held
// =============================================================================

func (t *Tracker) queueTaskRows(g *game, s *ledger.GameSession, tt ledger.TaskType, id string, dates ...ledger.DateKey) {
	if len(dates) == 0 {
		return
	}
	key := fmt.Sprintf("task/%s/%s/%s/%s", g.cfg.ID, s.Region.ID, tt, id)
	t.queueRows(key, g, tt.Table(), s.Region.ID, id, dates, func(d ledger.DateKey) ledger.TaskRecord {
		return s.TaskRecordFor(tt, id, d)
	})
}

func (t *Tracker) queueOtherRow(g *game, s *ledger.GameSession, name string, date ledger.DateKey) {
	key := fmt.Sprintf("other/%s/%s/%s", g.cfg.ID, s.Region.ID, name)
	t.queueRows(key, g, ledger.TableOther, s.Region.ID, name, []ledger.DateKey{date}, func(d ledger.DateKey) ledger.TaskRecord {
		return s.OtherRecordFor(name, d)
	})
}

func (t *Tracker) queueRows(key string, g *game, table ledger.Table, region, id string, dates []ledger.DateKey, snapshot func(ledger.DateKey) ledger.TaskRecord) {
	t.buf.mu.Lock()
	batch, ok := t.buf.tasks[key]
	if !ok {
		batch = &taskBatch{gw: g.gw, table: table, region: region, id: id, rows: make(map[ledger.DateKey]ledger.TaskRecord)}
		t.buf.tasks[key] = batch
	}
	for _, d := range dates {
		batch.rows[d] = snapshot(d)
	}
	t.buf.mu.Unlock()

	t.writes.Schedule(key, t.writeTaskBatch(key), 0)
}

func (t *Tracker) writeTaskBatch(key string) coalescer.Action {
	return func(ctx context.Context) error {
		batch := t.buf.takeTasks(key)
		if batch == nil {
			return nil
		}
		dates := sortedDates(batch.rows)
		if len(dates) == 1 {
			return batch.gw.UpsertTaskRecord(ctx, batch.table, batch.rows[dates[0]])
		}
		return batch.gw.BulkUpdateTaskRecordsForRange(ctx, batch.table, batch.region, batch.id, dates, batch.rows)
	}
}

func (t *Tracker) queueHistory(g *game, s *ledger.GameSession, dates ...ledger.DateKey) {
	if len(dates) == 0 {
		return
	}
	key := fmt.Sprintf("history/%s/%s", g.cfg.ID, s.Region.ID)

	t.buf.mu.Lock()
	batch, ok := t.buf.history[key]
	if !ok {
		batch = &historyBatch{gw: g.gw, region: s.Region.ID, rows: make(map[ledger.DateKey]ledger.CurrencyHistoryRecord)}
		t.buf.history[key] = batch
	}
	for _, d := range dates {
		batch.rows[d] = s.CurrencyHistoryRecordFor(d)
	}
	t.buf.mu.Unlock()

	t.writes.Schedule(key, t.writeHistoryBatch(key), 0)
}

func (t *Tracker) writeHistoryBatch(key string) coalescer.Action {
	return func(ctx context.Context) error {
		batch := t.buf.takeHistory(key)
		if batch == nil {
			return nil
		}
		dates := sortedDates(batch.rows)
		if len(dates) == 1 {
			return batch.gw.UpsertCurrencyHistory(ctx, batch.rows[dates[0]])
		}
		return batch.gw.BulkUpdateCurrencyHistoryForRange(ctx, batch.region, dates, batch.rows)
	}
}

func (t *Tracker) queueStageRow(g *game, s *ledger.GameSession, tt ledger.TaskType, id, stage string, date ledger.DateKey) {
	key := fmt.Sprintf("stage/%s/%s/%s/%s/%s/%d", g.cfg.ID, s.Region.ID, tt, id, stage, date)
	rec := s.RankedStageRecordFor(tt, id, stage, date)
	gw := g.gw
	t.writes.Schedule(key, func(ctx context.Context) error {
		return gw.UpsertRankedStage(ctx, rec)
	}, 0)
}

func (t *Tracker) queuePremiumRow(g *game, s *ledger.GameSession, date ledger.DateKey, id int) {
	key := fmt.Sprintf("premium/%s/%s/%d/%d", g.cfg.ID, s.Region.ID, date, id)
	rec, ok := s.PremiumRecordFor(date, id)
	region := s.Region.ID
	gw := g.gw
	t.writes.Schedule(key, func(ctx context.Context) error {
		if !ok {
			return gw.DeletePremium(ctx, date, region, id)
		}
		return gw.UpsertPremium(ctx, rec)
	}, 0)
}

// unionDates merges date lists, sorted and deduplicated.
func unionDates(lists ...[]ledger.DateKey) []ledger.DateKey {
	set := make(map[ledger.DateKey]struct{})
	for _, l := range lists {
		for _, d := range l {
			set[d] = struct{}{}
		}
	}
	return sortedDates(set)
}
