package tracker

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/ledger"
)

// =============================================================================
// TEXT LEDGER
// =============================================================================
//
//	demo na 2024-06-03..2024-06-04
//	DATE        CURRENCY      INITIAL       GAIN       LOSS      TOTAL
//	2024-06-03  gold                0         10          0         10
//	            daily/login = 1 (gold 10)
//	2024-06-04  gold               10          0         60         50 *
//
// Overridden totals are marked with "*". Each indented line is one source
// recorded that day.

const reportRow = "%-10s  %-10s %10s %10s %10s %10s%s\n"

// RenderLedger writes the days [start, end] of a game as a text table.
// Days are seeded in ascending order so each row reflects the one before.
func (t *Tracker) RenderLedger(ctx context.Context, w io.Writer, gameID string, start, end ledger.DateKey) error {
	if !start.Valid() || !end.Valid() || end < start {
		return fmt.Errorf("%w: range %d..%d", ErrInvalidValue, int(start), int(end))
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	_, s, err := t.session(gameID)
	if err != nil {
		return err
	}
	if err := s.PopulateSessionDateRange(ctx, start, end); err != nil {
		return err
	}

	fmt.Fprintf(w, "%s %s %s..%s\n", gameID, s.Region.ID, start, end)
	fmt.Fprintf(w, reportRow, "DATE", "CURRENCY", "INITIAL", "GAIN", "LOSS", "TOTAL", "")
	for d := start; d <= end; d = d.Next() {
		if err := ensureSeeded(ctx, s, d); err != nil {
			return err
		}
		writeDay(w, d, s.Day(d))
	}
	return nil
}

func writeDay(w io.Writer, date ledger.DateKey, day *ledger.DayData) {
	label := date.String()
	for _, h := range day.Totals.Calculated {
		mark := ""
		if currency.Find(day.Totals.Override, h.Currency) != nil {
			mark = " *"
		}
		fmt.Fprintf(w, reportRow,
			label,
			string(h.Currency),
			currency.AmountOf(day.Totals.Initial, h.Currency).String(),
			h.Gain.String(),
			h.Loss.String(),
			day.GetCurrencyValue(h.Currency).String(),
			mark,
		)
		label = ""
	}
	if label != "" {
		fmt.Fprintf(w, "%s\n", label)
	}
	for _, line := range sourceLines(day) {
		fmt.Fprintf(w, "%-10s  %s\n", "", line)
	}
	if day.Notes != "" {
		fmt.Fprintf(w, "%-10s  # %s\n", "", day.Notes)
	}
}

// sourceLines lists the day's sources in a stable order.
func sourceLines(day *ledger.DayData) []string {
	var lines []string
	for _, tt := range ledger.TaskTypes {
		for _, id := range day.TaskIDs(tt) {
			p := day.Progress(tt, id)
			lines = append(lines, fmt.Sprintf("%s/%s = %d%s", tt, id, p.Value, formatCurrencies(p.Currencies)))
		}
	}

	names := make([]string, 0, len(day.OtherSources))
	for name := range day.OtherSources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("other/%s%s", name, formatCurrencies(day.OtherSources[name].Currencies)))
	}

	for _, p := range day.PremiumSources {
		lines = append(lines, fmt.Sprintf("premium/%d %s%s", p.ID, p.Name, formatCurrencies(p.Currencies)))
	}
	return lines
}

func formatCurrencies(values []currency.Value) string {
	if len(values) == 0 {
		return ""
	}
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%s %s", v.Currency, v.Amount.String())
	}
	return " (" + strings.Join(parts, ", ") + ")"
}
