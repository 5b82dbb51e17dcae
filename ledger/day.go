package ledger

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/progress-tracker/currency"
)

// =============================================================================
// DAY DATA - Everything recorded for one date key
// =============================================================================

// DayData is one day of a session. It is created on first access for its
// date; Populated distinguishes "empty because never written" from "empty
// because not queried yet".
type DayData struct {
	DailyProgress    map[string]*TrackedProgressData `json:"daily_progress"`
	WeeklyProgress   map[string]*TrackedProgressData `json:"weekly_progress"`
	PeriodicProgress map[string]*TrackedProgressData `json:"periodic_progress"`
	EventProgress    map[string]*TrackedProgressData `json:"event_progress"`

	OtherSources   map[string]*OtherSource `json:"other_sources"`
	PremiumSources []*PremiumSource        `json:"premium_sources"`

	Totals Totals `json:"totals"`
	Notes  string `json:"notes,omitempty"`

	Populated bool `json:"populated"`

	tracked []currency.ID
	seeded  bool
}

// NewDayData creates an empty day for the given tracked currencies.
func NewDayData(tracked []currency.ID) *DayData {
	return &DayData{
		DailyProgress:    make(map[string]*TrackedProgressData),
		WeeklyProgress:   make(map[string]*TrackedProgressData),
		PeriodicProgress: make(map[string]*TrackedProgressData),
		EventProgress:    make(map[string]*TrackedProgressData),
		OtherSources:     make(map[string]*OtherSource),
		tracked:          tracked,
	}
}

// progressMap is the single storage selection for every task type.
func (d *DayData) progressMap(t TaskType) map[string]*TrackedProgressData {
	switch t {
	case TaskDaily:
		return d.DailyProgress
	case TaskWeekly:
		return d.WeeklyProgress
	case TaskPeriodic:
		return d.PeriodicProgress
	case TaskEvent:
		return d.EventProgress
	}
	panic(fmt.Sprintf("ledger: unknown task type %d", int(t)))
}

// Progress returns the record of a task, or nil when none is stored.
func (d *DayData) Progress(t TaskType, taskID string) *TrackedProgressData {
	return d.progressMap(t)[taskID]
}

// TaskIDs lists the tasks of type t recorded on the day, sorted.
func (d *DayData) TaskIDs(t TaskType) []string {
	m := d.progressMap(t)
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ProgressValue returns the task's value, 0 when absent.
func (d *DayData) ProgressValue(t TaskType, taskID string) int {
	if p := d.Progress(t, taskID); p != nil {
		return p.Value
	}
	return 0
}

func (d *DayData) record(t TaskType, taskID string) *TrackedProgressData {
	m := d.progressMap(t)
	p, ok := m[taskID]
	if !ok {
		p = &TrackedProgressData{}
		m[taskID] = p
	}
	return p
}

// compact drops a record that holds nothing.
func (d *DayData) compact(t TaskType, taskID string) {
	m := d.progressMap(t)
	if p, ok := m[taskID]; ok && p.empty() {
		delete(m, taskID)
	}
}

// SetProgress assigns a task's value and resolved currencies.
func (d *DayData) SetProgress(t TaskType, taskID string, value int, currencies []currency.Value) {
	p := d.record(t, taskID)
	p.Value = value
	p.Currencies = currency.Clone(currencies)
	d.compact(t, taskID)
	d.Populated = true
	d.CalculateGainFromTasks()
}

// SetRankedStageProgress assigns one stage's value. The record's Value becomes
// the sum of all stage values; currencies is the resolved delta of the whole task.
func (d *DayData) SetRankedStageProgress(t TaskType, taskID, stageID string, value int, currencies []currency.Value) {
	p := d.record(t, taskID)
	if p.RankedStageValues == nil {
		p.RankedStageValues = make(map[string]int)
	}
	if value == 0 {
		delete(p.RankedStageValues, stageID)
	} else {
		p.RankedStageValues[stageID] = value
	}
	total := 0
	for _, v := range p.RankedStageValues {
		total += v
	}
	p.Value = total
	p.Currencies = currency.Clone(currencies)
	d.compact(t, taskID)
	d.Populated = true
	d.CalculateGainFromTasks()
}

// SetProgressCurrencies replaces the resolved currencies of an existing record.
// Returns false when the task has no record that day.
func (d *DayData) SetProgressCurrencies(t TaskType, taskID string, currencies []currency.Value) bool {
	p := d.Progress(t, taskID)
	if p == nil {
		return false
	}
	p.Currencies = currency.Clone(currencies)
	d.compact(t, taskID)
	d.CalculateGainFromTasks()
	return true
}

// SetProgressNotes sets a task's notes, creating the record if needed.
func (d *DayData) SetProgressNotes(t TaskType, taskID, notes string) {
	d.record(t, taskID).Notes = notes
	d.compact(t, taskID)
	d.Populated = true
}

// DeleteProgress removes a task's record.
func (d *DayData) DeleteProgress(t TaskType, taskID string) {
	delete(d.progressMap(t), taskID)
	d.CalculateGainFromTasks()
}

// =============================================================================
// OTHER / PREMIUM SOURCES
// =============================================================================

// SetOtherSource records a named income source. An entry with no notes and
// no currencies is removed.
func (d *DayData) SetOtherSource(name, notes string, currencies []currency.Value) {
	if notes == "" && len(currencies) == 0 {
		delete(d.OtherSources, name)
	} else {
		d.OtherSources[name] = &OtherSource{Notes: notes, Currencies: currency.Clone(currencies)}
	}
	d.Populated = true
	d.CalculateGainFromTasks()
}

// PremiumSource returns the premium record with id, or nil.
func (d *DayData) PremiumSource(id int) *PremiumSource {
	for _, p := range d.PremiumSources {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// NextPremiumID is max(id)+1, starting at 1.
func (d *DayData) NextPremiumID() int {
	next := 1
	for _, p := range d.PremiumSources {
		if p.ID >= next {
			next = p.ID + 1
		}
	}
	return next
}

// AddPremiumSource appends p with the next sequential id and returns it.
func (d *DayData) AddPremiumSource(p PremiumSource) PremiumSource {
	p.ID = d.NextPremiumID()
	p.Currencies = currency.Clone(p.Currencies)
	d.PremiumSources = append(d.PremiumSources, &p)
	d.Populated = true
	d.CalculateGainFromTasks()
	return p
}

// UpdatePremiumSource replaces the record with p.ID. Returns false if absent.
func (d *DayData) UpdatePremiumSource(p PremiumSource) bool {
	existing := d.PremiumSource(p.ID)
	if existing == nil {
		return false
	}
	*existing = p
	existing.Currencies = currency.Clone(p.Currencies)
	d.CalculateGainFromTasks()
	return true
}

// RemovePremiumSource deletes the record with id. Returns false if absent.
func (d *DayData) RemovePremiumSource(id int) bool {
	for i, p := range d.PremiumSources {
		if p.ID == id {
			d.PremiumSources = append(d.PremiumSources[:i], d.PremiumSources[i+1:]...)
			d.CalculateGainFromTasks()
			return true
		}
	}
	return false
}

// =============================================================================
// TOTALS
// =============================================================================

// SetInitial seeds the day's initial amounts and recomputes.
func (d *DayData) SetInitial(values []currency.Value) {
	d.Totals.Initial = currency.Clone(values)
	d.seeded = true
	d.CalculateGainFromTasks()
}

// Seeded reports whether initial amounts were seeded or loaded.
func (d *DayData) Seeded() bool { return d.seeded }

// HasOverride reports whether a manual override is set.
func (d *DayData) HasOverride() bool { return len(d.Totals.Override) > 0 }

// SetCurrencyOverride sets the override of c to amount. The override list is
// completed with the calculated amount of every other currency, so the
// override always describes the full end-of-day state.
func (d *DayData) SetCurrencyOverride(c currency.ID, amount decimal.Decimal) {
	for _, h := range d.Totals.Calculated {
		existing := currency.Find(d.Totals.Override, h.Currency)
		if existing == nil {
			d.Totals.Override = append(d.Totals.Override, currency.Value{Currency: h.Currency, Amount: h.Amount})
			existing = &d.Totals.Override[len(d.Totals.Override)-1]
		}
		if h.Currency != c {
			existing.Amount = h.Amount
		}
	}
	if existing := currency.Find(d.Totals.Override, c); existing != nil {
		existing.Amount = amount
	} else {
		d.Totals.Override = append(d.Totals.Override, currency.Value{Currency: c, Amount: amount})
	}
	d.Populated = true
	d.CalculateGainFromTasks()
}

// ClearOverride removes the manual override.
func (d *DayData) ClearOverride() {
	d.Totals.Override = nil
	d.CalculateGainFromTasks()
}

// currencies lists the currencies participating in totals: the tracked list
// when configured, otherwise every currency seen on the day.
func (d *DayData) currencies() []currency.ID {
	if len(d.tracked) > 0 {
		return d.tracked
	}
	seen := currency.NewSet()
	var out []currency.ID
	add := func(list []currency.Value) {
		for _, v := range list {
			if !seen.Has(v.Currency) {
				seen[v.Currency] = struct{}{}
				out = append(out, v.Currency)
			}
		}
	}
	add(d.Totals.Initial)
	add(d.Totals.Override)
	d.eachSource(add)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// eachSource visits the currencies of every progress, other and premium source.
func (d *DayData) eachSource(fn func([]currency.Value)) {
	for _, t := range TaskTypes {
		for _, p := range d.progressMap(t) {
			fn(p.Currencies)
		}
	}
	for _, o := range d.OtherSources {
		fn(o.Currencies)
	}
	for _, p := range d.PremiumSources {
		fn(p.Currencies)
	}
}

// CalculateGainFromTasks recomputes calculated totals from initial plus every
// source of the day. Always a full recompute; idempotent and order-independent.
func (d *DayData) CalculateGainFromTasks() {
	ids := d.currencies()
	calculated := make([]currency.History, 0, len(ids))
	for _, c := range ids {
		gain := decimal.Zero
		d.eachSource(func(list []currency.Value) {
			for _, v := range list {
				if v.Currency == c {
					gain = gain.Add(v.Amount)
				}
			}
		})
		amount := currency.AmountOf(d.Totals.Initial, c).Add(gain)
		loss := decimal.Zero
		if o := currency.Find(d.Totals.Override, c); o != nil && o.Amount.LessThan(amount) {
			loss = amount.Sub(o.Amount)
		}
		calculated = append(calculated, currency.History{
			Value: currency.Value{Currency: c, Amount: amount},
			Gain:  gain,
			Loss:  loss,
		})
	}
	d.Totals.Calculated = calculated
}

// GetCurrencyValue returns the override amount of c if present, else the
// calculated amount, else zero.
func (d *DayData) GetCurrencyValue(c currency.ID) decimal.Decimal {
	if o := currency.Find(d.Totals.Override, c); o != nil {
		return o.Amount
	}
	if h := currency.FindHistory(d.Totals.Calculated, c); h != nil {
		return h.Amount
	}
	return decimal.Zero
}

// EffectiveCurrencies is the end-of-day value of every participating
// currency; it seeds the next day's initial.
func (d *DayData) EffectiveCurrencies() []currency.Value {
	ids := d.currencies()
	seen := currency.NewSet(ids...)
	out := make([]currency.Value, 0, len(ids))
	for _, c := range ids {
		out = append(out, currency.Value{Currency: c, Amount: d.GetCurrencyValue(c)})
	}
	// Override entries for currencies that are no longer tracked still carry over.
	for _, o := range d.Totals.Override {
		if !seen.Has(o.Currency) {
			out = append(out, o)
		}
	}
	return out
}

// hasTotals reports whether the day carries any currency state worth seeding from.
func (d *DayData) hasTotals() bool {
	return d.seeded || d.HasOverride()
}

// Clone returns a deep copy of the day, safe to hand out past the owner's lock.
func (d *DayData) Clone() *DayData {
	cp := NewDayData(d.tracked)
	for _, t := range TaskTypes {
		dst := cp.progressMap(t)
		for id, p := range d.progressMap(t) {
			dst[id] = p.clone()
		}
	}
	for name, o := range d.OtherSources {
		cp.OtherSources[name] = &OtherSource{Notes: o.Notes, Currencies: currency.Clone(o.Currencies)}
	}
	for _, p := range d.PremiumSources {
		pc := *p
		pc.Currencies = currency.Clone(p.Currencies)
		cp.PremiumSources = append(cp.PremiumSources, &pc)
	}
	cp.Totals = Totals{
		Initial:    currency.Clone(d.Totals.Initial),
		Calculated: currency.CloneHistory(d.Totals.Calculated),
		Override:   currency.Clone(d.Totals.Override),
	}
	cp.Notes = d.Notes
	cp.Populated = d.Populated
	cp.seeded = d.seeded
	return cp
}

// SetNotes sets the day's free-form notes.
func (d *DayData) SetNotes(notes string) {
	d.Notes = notes
	d.Populated = true
}
