/*
store.go - Persistence gateway contract of the session ledger

PURPOSE:
  Defines the query/mutation contract between a GameSession and its backing
  store, one logical store per game. The session only reads through this
  contract; writes are issued by the tracker through the write coalescer.

TABLES:
  daily, weekly, periodic, event, other: (date, region, name, value, currencies, notes)
  ranked_stage:     (date, region, parent_task, stage_name, value, score, notes)
  premium:          (date, region, id, name, category, spending, currencies, notes)
  currency_history: (date, region, currencies, override, notes)

SPARSE STORAGE:
  UpsertTaskRecord and UpsertRankedStage delete the row when the resulting
  value is 0 with no currencies and no notes. A missing row and an empty row
  are indistinguishable to readers.

NO DATA IS NOT AN ERROR:
  Range queries return nil when nothing is stored; LastCurrencyHistoryBefore
  returns (nil, nil) when no prior row exists.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for tests and dry runs
  - store/sqlite/sqlite.go: SQLite, one database file per game

SEE ALSO:
  - session.go: Consumes the read half
  - tracker/writes.go: Issues the write half
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/warp/progress-tracker/currency"
)

// Table names a persisted table. The set is closed; gateways reject any other value.
type Table string

const (
	TableDaily           Table = "daily"
	TableWeekly          Table = "weekly"
	TablePeriodic        Table = "periodic"
	TableEvent           Table = "event"
	TableOther           Table = "other"
	TableRankedStage     Table = "ranked_stage"
	TablePremium         Table = "premium"
	TableCurrencyHistory Table = "currency_history"
)

// TaskTables are the tables sharing the task record shape.
var TaskTables = []Table{TableDaily, TableWeekly, TablePeriodic, TableEvent, TableOther}

// IsTaskTable reports whether t has the task record shape.
func (t Table) IsTaskTable() bool {
	for _, tt := range TaskTables {
		if t == tt {
			return true
		}
	}
	return false
}

// =============================================================================
// RECORDS - Persisted row shapes
// =============================================================================

// TaskRecord is one row of a task table. Name is the task id, or the source
// name for the other table.
type TaskRecord struct {
	Date       DateKey
	Region     string
	Name       string
	Value      int
	Currencies []currency.Value
	Notes      string
}

// Empty reports whether the row would be deleted on upsert.
func (r TaskRecord) Empty() bool {
	return r.Value == 0 && len(r.Currencies) == 0 && r.Notes == ""
}

// RankedStageRecord is one stage of a ranked task on one day.
type RankedStageRecord struct {
	Date       DateKey
	Region     string
	ParentTask string
	StageName  string
	Value      int
	Score      int
	Notes      string
}

// Empty reports whether the row would be deleted on upsert.
func (r RankedStageRecord) Empty() bool {
	return r.Value == 0 && r.Score == 0 && r.Notes == ""
}

// PremiumRecord is one premium source row.
type PremiumRecord struct {
	Date       DateKey
	Region     string
	ID         int
	Name       string
	Category   string
	Spending   decimal.Decimal
	Currencies []currency.Value
	Notes      string
}

// CurrencyHistoryRecord is the persisted totals of one day. Currencies holds
// the calculated amounts only; gain and loss are never stored.
type CurrencyHistoryRecord struct {
	Date       DateKey
	Region     string
	Currencies []currency.Value
	Override   []currency.Value
	Notes      string
}

// HasContent reports whether the row carries any calculated or override amount.
func (r CurrencyHistoryRecord) HasContent() bool {
	return len(r.Currencies) > 0 || len(r.Override) > 0
}

// =============================================================================
// GATEWAY - Query/mutation contract
// =============================================================================

// Gateway is the persistence contract of one game's store.
// Ranges are closed: [start, end].
type Gateway interface {
	// RecordsForDay returns the task-shaped rows of table for one day.
	RecordsForDay(ctx context.Context, table Table, date DateKey, region string) ([]TaskRecord, error)

	// RecordsForRange returns the task-shaped rows of table in [start, end].
	RecordsForRange(ctx context.Context, table Table, start, end DateKey, region string) ([]TaskRecord, error)

	// RankedStagesForRange returns ranked-stage rows in [start, end].
	RankedStagesForRange(ctx context.Context, start, end DateKey, region string) ([]RankedStageRecord, error)

	// PremiumForRange returns premium rows in [start, end], ordered by date then id.
	PremiumForRange(ctx context.Context, start, end DateKey, region string) ([]PremiumRecord, error)

	// CurrencyHistoryForRange returns currency history rows in [start, end].
	CurrencyHistoryForRange(ctx context.Context, start, end DateKey, region string) ([]CurrencyHistoryRecord, error)

	// LastCurrencyHistoryBefore returns the most recent row strictly before
	// date with non-empty currencies or override, or nil.
	LastCurrencyHistoryBefore(ctx context.Context, date DateKey, region string) (*CurrencyHistoryRecord, error)

	// UpsertTaskRecord inserts, updates or (when empty) deletes a task row.
	UpsertTaskRecord(ctx context.Context, table Table, rec TaskRecord) error

	// UpsertRankedStage inserts, updates or (when empty) deletes a stage row.
	UpsertRankedStage(ctx context.Context, rec RankedStageRecord) error

	// UpsertPremium inserts or replaces a premium row by (date, region, id).
	UpsertPremium(ctx context.Context, rec PremiumRecord) error

	// DeletePremium removes a premium row. Deleting a missing row is not an error.
	DeletePremium(ctx context.Context, date DateKey, region string, id int) error

	// UpsertCurrencyHistory writes a day's calculated amounts, override and notes.
	UpsertCurrencyHistory(ctx context.Context, rec CurrencyHistoryRecord) error

	// BulkUpdateTaskRecordsForRange writes targets[d] for every d in dates for
	// one task of table. Dates without a target are skipped.
	BulkUpdateTaskRecordsForRange(ctx context.Context, table Table, region, id string, dates []DateKey, targets map[DateKey]TaskRecord) error

	// BulkUpdateCurrencyHistoryForRange writes targets[d] for every d in dates.
	BulkUpdateCurrencyHistoryForRange(ctx context.Context, region string, dates []DateKey, targets map[DateKey]CurrencyHistoryRecord) error
}
