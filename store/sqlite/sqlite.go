/*
Package sqlite provides a SQLite-backed implementation of ledger.Gateway.

PURPOSE:
  Persists one game's session ledger in a single SQLite database file.
  Every query is parameterized; table names come from the closed
  ledger.Table set and are checked before they reach SQL.

KEY TABLES:
  daily, weekly, periodic, event, other:
                    Task-shaped rows keyed by (date, region, name)
  ranked_stage:     One row per (date, region, parent_task, stage_name)
  premium:          Purchases keyed by (date, region, id)
  currency_history: Calculated amounts, override and notes per (date, region)

SPARSE STORAGE:
  Task and stage upserts delete the row instead of storing an empty one.

CURRENCY PAYLOADS:
  Currency lists are stored as JSON arrays of {"currency", "amount"}. A row
  whose payload does not decode is logged and skipped; the rest of the
  range still loads.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection, so
  ":memory:" databases are shared by every call.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New(sqlite.PathFor("./data", "demo"))
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  tracker.AddGame(cfg, store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Gateway contract
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/ledger"
)

// Store implements ledger.Gateway using SQLite.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	logger logrus.FieldLogger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped rows.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(s *Store) { s.logger = logger }
}

// PathFor returns the database file of a game under dir.
func PathFor(dir, gameID string) string {
	return filepath.Join(dir, gameID+".db")
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	l := logrus.New()
	l.SetOutput(io.Discard)
	store := &Store{db: db, logger: l}
	for _, opt := range opts {
		opt(store)
	}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	var schema strings.Builder
	for _, t := range ledger.TaskTables {
		fmt.Fprintf(&schema, `
	CREATE TABLE IF NOT EXISTS %[1]s (
		date INTEGER NOT NULL,
		region TEXT NOT NULL,
		name TEXT NOT NULL,
		value INTEGER NOT NULL DEFAULT 0,
		currencies TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (date, region, name)
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_region_date ON %[1]s(region, date);
	`, t)
	}

	schema.WriteString(`
	CREATE TABLE IF NOT EXISTS ranked_stage (
		date INTEGER NOT NULL,
		region TEXT NOT NULL,
		parent_task TEXT NOT NULL,
		stage_name TEXT NOT NULL,
		value INTEGER NOT NULL DEFAULT 0,
		score INTEGER NOT NULL DEFAULT 0,
		notes TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (date, region, parent_task, stage_name)
	);

	CREATE TABLE IF NOT EXISTS premium (
		date INTEGER NOT NULL,
		region TEXT NOT NULL,
		id INTEGER NOT NULL,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT '',
		spending TEXT NOT NULL DEFAULT '0',
		currencies TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (date, region, id)
	);

	CREATE TABLE IF NOT EXISTS currency_history (
		date INTEGER NOT NULL,
		region TEXT NOT NULL,
		currencies TEXT NOT NULL DEFAULT '[]',
		override TEXT NOT NULL DEFAULT '[]',
		notes TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (date, region)
	);

	-- Walked backwards by LastCurrencyHistoryBefore
	CREATE INDEX IF NOT EXISTS idx_currency_history_region_date
		ON currency_history(region, date DESC);
	`)

	_, err := s.db.Exec(schema.String())
	return err
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func checkTaskTable(t ledger.Table) error {
	if !t.IsTaskTable() {
		return fmt.Errorf("%w: %q", ledger.ErrUnknownTable, t)
	}
	return nil
}

func gatewayError(op string, table ledger.Table, err error) error {
	return &ledger.GatewayError{Op: op, Table: table, Err: err}
}

// =============================================================================
// TASK TABLES
// =============================================================================

// RecordsForDay returns the task-shaped rows of table for one day.
func (s *Store) RecordsForDay(ctx context.Context, table ledger.Table, date ledger.DateKey, region string) ([]ledger.TaskRecord, error) {
	return s.RecordsForRange(ctx, table, date, date, region)
}

// RecordsForRange returns the task-shaped rows of table in [start, end].
func (s *Store) RecordsForRange(ctx context.Context, table ledger.Table, start, end ledger.DateKey, region string) ([]ledger.TaskRecord, error) {
	if err := checkTaskTable(table); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := fmt.Sprintf(`
		SELECT date, region, name, value, currencies, notes
		FROM %s
		WHERE region = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, name ASC
	`, table)

	rows, err := s.db.QueryContext(ctx, query, region, int(start), int(end))
	if err != nil {
		return nil, gatewayError("query", table, err)
	}
	defer rows.Close()

	var out []ledger.TaskRecord
	for rows.Next() {
		var (
			rec        ledger.TaskRecord
			date       int
			currencies string
		)
		if err := rows.Scan(&date, &rec.Region, &rec.Name, &rec.Value, &currencies, &rec.Notes); err != nil {
			return nil, gatewayError("scan", table, err)
		}
		rec.Date = ledger.DateKey(date)
		if rec.Currencies, err = decodeCurrencies(currencies); err != nil {
			s.skipRow(table, rec.Date, region, err)
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayError("query", table, err)
	}
	return out, nil
}

// UpsertTaskRecord inserts, updates or (when empty) deletes a task row.
func (s *Store) UpsertTaskRecord(ctx context.Context, table ledger.Table, rec ledger.TaskRecord) error {
	if err := checkTaskTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsertTask(ctx, s.db, table, rec)
}

func (s *Store) upsertTask(ctx context.Context, db execer, table ledger.Table, rec ledger.TaskRecord) error {
	if rec.Empty() {
		query := fmt.Sprintf(`DELETE FROM %s WHERE date = ? AND region = ? AND name = ?`, table)
		if _, err := db.ExecContext(ctx, query, int(rec.Date), rec.Region, rec.Name); err != nil {
			return gatewayError("delete", table, err)
		}
		return nil
	}

	currencies, err := encodeCurrencies(rec.Currencies)
	if err != nil {
		return gatewayError("encode", table, err)
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (date, region, name, value, currencies, notes)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, region, name) DO UPDATE SET
			value = excluded.value,
			currencies = excluded.currencies,
			notes = excluded.notes
	`, table)
	if _, err := db.ExecContext(ctx, query, int(rec.Date), rec.Region, rec.Name, rec.Value, currencies, rec.Notes); err != nil {
		return gatewayError("upsert", table, err)
	}
	return nil
}

// BulkUpdateTaskRecordsForRange writes targets[d] for every d in dates in
// one transaction.
func (s *Store) BulkUpdateTaskRecordsForRange(ctx context.Context, table ledger.Table, region, id string, dates []ledger.DateKey, targets map[ledger.DateKey]ledger.TaskRecord) error {
	if err := checkTaskTable(table); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gatewayError("begin", table, err)
	}
	defer tx.Rollback()

	for _, d := range dates {
		rec, ok := targets[d]
		if !ok {
			continue
		}
		rec.Date, rec.Region, rec.Name = d, region, id
		if err := s.upsertTask(ctx, tx, table, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return gatewayError("commit", table, err)
	}
	return nil
}

// =============================================================================
// RANKED STAGES
// =============================================================================

// RankedStagesForRange returns ranked-stage rows in [start, end].
func (s *Store) RankedStagesForRange(ctx context.Context, start, end ledger.DateKey, region string) ([]ledger.RankedStageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, region, parent_task, stage_name, value, score, notes
		FROM ranked_stage
		WHERE region = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, parent_task ASC, stage_name ASC
	`, region, int(start), int(end))
	if err != nil {
		return nil, gatewayError("query", ledger.TableRankedStage, err)
	}
	defer rows.Close()

	var out []ledger.RankedStageRecord
	for rows.Next() {
		var (
			rec  ledger.RankedStageRecord
			date int
		)
		if err := rows.Scan(&date, &rec.Region, &rec.ParentTask, &rec.StageName, &rec.Value, &rec.Score, &rec.Notes); err != nil {
			return nil, gatewayError("scan", ledger.TableRankedStage, err)
		}
		rec.Date = ledger.DateKey(date)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayError("query", ledger.TableRankedStage, err)
	}
	return out, nil
}

// UpsertRankedStage inserts, updates or (when empty) deletes a stage row.
func (s *Store) UpsertRankedStage(ctx context.Context, rec ledger.RankedStageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Empty() {
		_, err := s.db.ExecContext(ctx, `
			DELETE FROM ranked_stage
			WHERE date = ? AND region = ? AND parent_task = ? AND stage_name = ?
		`, int(rec.Date), rec.Region, rec.ParentTask, rec.StageName)
		if err != nil {
			return gatewayError("delete", ledger.TableRankedStage, err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ranked_stage (date, region, parent_task, stage_name, value, score, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, region, parent_task, stage_name) DO UPDATE SET
			value = excluded.value,
			score = excluded.score,
			notes = excluded.notes
	`, int(rec.Date), rec.Region, rec.ParentTask, rec.StageName, rec.Value, rec.Score, rec.Notes)
	if err != nil {
		return gatewayError("upsert", ledger.TableRankedStage, err)
	}
	return nil
}

// =============================================================================
// PREMIUM
// =============================================================================

// PremiumForRange returns premium rows in [start, end], ordered by date then id.
func (s *Store) PremiumForRange(ctx context.Context, start, end ledger.DateKey, region string) ([]ledger.PremiumRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT date, region, id, name, category, spending, currencies, notes
		FROM premium
		WHERE region = ? AND date >= ? AND date <= ?
		ORDER BY date ASC, id ASC
	`, region, int(start), int(end))
	if err != nil {
		return nil, gatewayError("query", ledger.TablePremium, err)
	}
	defer rows.Close()

	var out []ledger.PremiumRecord
	for rows.Next() {
		var (
			rec                  ledger.PremiumRecord
			date                 int
			spending, currencies string
		)
		if err := rows.Scan(&date, &rec.Region, &rec.ID, &rec.Name, &rec.Category, &spending, &currencies, &rec.Notes); err != nil {
			return nil, gatewayError("scan", ledger.TablePremium, err)
		}
		rec.Date = ledger.DateKey(date)
		if rec.Spending, err = decimal.NewFromString(spending); err != nil {
			s.skipRow(ledger.TablePremium, rec.Date, region, err)
			continue
		}
		if rec.Currencies, err = decodeCurrencies(currencies); err != nil {
			s.skipRow(ledger.TablePremium, rec.Date, region, err)
			continue
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayError("query", ledger.TablePremium, err)
	}
	return out, nil
}

// UpsertPremium inserts or replaces a premium row by (date, region, id).
func (s *Store) UpsertPremium(ctx context.Context, rec ledger.PremiumRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	currencies, err := encodeCurrencies(rec.Currencies)
	if err != nil {
		return gatewayError("encode", ledger.TablePremium, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO premium (date, region, id, name, category, spending, currencies, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, region, id) DO UPDATE SET
			name = excluded.name,
			category = excluded.category,
			spending = excluded.spending,
			currencies = excluded.currencies,
			notes = excluded.notes
	`, int(rec.Date), rec.Region, rec.ID, rec.Name, rec.Category, rec.Spending.String(), currencies, rec.Notes)
	if err != nil {
		return gatewayError("upsert", ledger.TablePremium, err)
	}
	return nil
}

// DeletePremium removes a premium row. Deleting a missing row is not an error.
func (s *Store) DeletePremium(ctx context.Context, date ledger.DateKey, region string, id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM premium WHERE date = ? AND region = ? AND id = ?`, int(date), region, id)
	if err != nil {
		return gatewayError("delete", ledger.TablePremium, err)
	}
	return nil
}

// =============================================================================
// CURRENCY HISTORY
// =============================================================================

const historyColumns = `date, region, currencies, override, notes`

// CurrencyHistoryForRange returns currency history rows in [start, end].
func (s *Store) CurrencyHistoryForRange(ctx context.Context, start, end ledger.DateKey, region string) ([]ledger.CurrencyHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM currency_history
		WHERE region = ? AND date >= ? AND date <= ?
		ORDER BY date ASC
	`, region, int(start), int(end))
	if err != nil {
		return nil, gatewayError("query", ledger.TableCurrencyHistory, err)
	}
	defer rows.Close()

	var out []ledger.CurrencyHistoryRecord
	for rows.Next() {
		rec, ok, err := s.scanHistory(rows, region)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayError("query", ledger.TableCurrencyHistory, err)
	}
	return out, nil
}

// LastCurrencyHistoryBefore walks history rows before date newest first and
// returns the first one with calculated or override content.
func (s *Store) LastCurrencyHistoryBefore(ctx context.Context, date ledger.DateKey, region string) (*ledger.CurrencyHistoryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+historyColumns+`
		FROM currency_history
		WHERE region = ? AND date < ?
		ORDER BY date DESC
	`, region, int(date))
	if err != nil {
		return nil, gatewayError("query", ledger.TableCurrencyHistory, err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, ok, err := s.scanHistory(rows, region)
		if err != nil {
			return nil, err
		}
		if ok && rec.HasContent() {
			return &rec, nil
		}
	}
	if err := rows.Err(); err != nil {
		return nil, gatewayError("query", ledger.TableCurrencyHistory, err)
	}
	return nil, nil
}

// scanHistory reads one history row. ok is false for a malformed row.
func (s *Store) scanHistory(rows *sql.Rows, region string) (rec ledger.CurrencyHistoryRecord, ok bool, err error) {
	var (
		date               int
		currencies, override string
	)
	if err := rows.Scan(&date, &rec.Region, &currencies, &override, &rec.Notes); err != nil {
		return rec, false, gatewayError("scan", ledger.TableCurrencyHistory, err)
	}
	rec.Date = ledger.DateKey(date)
	if rec.Currencies, err = decodeCurrencies(currencies); err != nil {
		s.skipRow(ledger.TableCurrencyHistory, rec.Date, region, err)
		return rec, false, nil
	}
	if rec.Override, err = decodeCurrencies(override); err != nil {
		s.skipRow(ledger.TableCurrencyHistory, rec.Date, region, err)
		return rec, false, nil
	}
	return rec, true, nil
}

// UpsertCurrencyHistory writes a day's calculated amounts, override and notes.
func (s *Store) UpsertCurrencyHistory(ctx context.Context, rec ledger.CurrencyHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.upsertHistory(ctx, s.db, rec)
}

func (s *Store) upsertHistory(ctx context.Context, db execer, rec ledger.CurrencyHistoryRecord) error {
	currencies, err := encodeCurrencies(rec.Currencies)
	if err != nil {
		return gatewayError("encode", ledger.TableCurrencyHistory, err)
	}
	override, err := encodeCurrencies(rec.Override)
	if err != nil {
		return gatewayError("encode", ledger.TableCurrencyHistory, err)
	}
	_, err = db.ExecContext(ctx, `
		INSERT INTO currency_history (date, region, currencies, override, notes)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, region) DO UPDATE SET
			currencies = excluded.currencies,
			override = excluded.override,
			notes = excluded.notes
	`, int(rec.Date), rec.Region, currencies, override, rec.Notes)
	if err != nil {
		return gatewayError("upsert", ledger.TableCurrencyHistory, err)
	}
	return nil
}

// BulkUpdateCurrencyHistoryForRange writes targets[d] for every d in dates
// in one transaction.
func (s *Store) BulkUpdateCurrencyHistoryForRange(ctx context.Context, region string, dates []ledger.DateKey, targets map[ledger.DateKey]ledger.CurrencyHistoryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return gatewayError("begin", ledger.TableCurrencyHistory, err)
	}
	defer tx.Rollback()

	for _, d := range dates {
		rec, ok := targets[d]
		if !ok {
			continue
		}
		rec.Date, rec.Region = d, region
		if err := s.upsertHistory(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return gatewayError("commit", ledger.TableCurrencyHistory, err)
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func encodeCurrencies(values []currency.Value) (string, error) {
	if len(values) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeCurrencies(payload string) ([]currency.Value, error) {
	if payload == "" || payload == "[]" {
		return nil, nil
	}
	var values []currency.Value
	if err := json.Unmarshal([]byte(payload), &values); err != nil {
		return nil, fmt.Errorf("malformed currencies %q: %w", payload, err)
	}
	return values, nil
}

func (s *Store) skipRow(table ledger.Table, date ledger.DateKey, region string, err error) {
	s.logger.WithFields(logrus.Fields{
		"table":  string(table),
		"date":   date.String(),
		"region": region,
	}).WithError(err).Warn("skipping malformed row")
}

var _ ledger.Gateway = (*Store)(nil)
