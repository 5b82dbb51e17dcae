/*
Package currency provides the virtual-currency value types shared by the
ledger, the reward calculators and the persistence gateways.

KEY CONCEPTS:
  - ID:      A currency identifier from the game configuration ("gold", "gems")
  - Value:   An amount of one currency
  - History: A Value plus the derived gain/loss for one day

PRECISION:
  Amounts use decimal.Decimal, same as every other quantity in this module.
  Currency lists are small (a handful of tracked currencies per game), so the
  helpers below use linear scans and keep insertion order stable.

SEE ALSO:
  - ledger/day.go: Uses Value/History for per-day totals
  - rewards/calculator.go: Accumulates reward lists
*/
package currency

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// ID identifies a currency within one game.
type ID string

// =============================================================================
// VALUE
// =============================================================================

// Value is an amount of a single currency.
type Value struct {
	Currency ID              `json:"currency" yaml:"currency" validate:"required"`
	Amount   decimal.Decimal `json:"amount" yaml:"amount"`
}

// NewValue builds a Value from an integer amount.
func NewValue(c ID, amount int64) Value {
	return Value{Currency: c, Amount: decimal.NewFromInt(amount)}
}

// MarshalJSON writes the amount as a JSON number rather than a quoted string
// so persisted payloads stay compatible with rows written by older clients.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Currency ID          `json:"currency"`
		Amount   json.Number `json:"amount"`
	}{v.Currency, json.Number(v.Amount.String())})
}

// History is the computed state of one currency for one day.
// Gain and Loss are derived from Amount and the day's sources; only Amount
// is ever persisted.
type History struct {
	Value
	Gain decimal.Decimal `json:"gain"`
	Loss decimal.Decimal `json:"loss"`
}

func (h History) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Currency ID          `json:"currency"`
		Amount   json.Number `json:"amount"`
		Gain     json.Number `json:"gain"`
		Loss     json.Number `json:"loss"`
	}{h.Currency, json.Number(h.Amount.String()), json.Number(h.Gain.String()), json.Number(h.Loss.String())})
}

// =============================================================================
// LIST HELPERS
// =============================================================================

// Find returns the entry for c, or nil.
func Find(list []Value, c ID) *Value {
	for i := range list {
		if list[i].Currency == c {
			return &list[i]
		}
	}
	return nil
}

// FindHistory returns the history entry for c, or nil.
func FindHistory(list []History, c ID) *History {
	for i := range list {
		if list[i].Currency == c {
			return &list[i]
		}
	}
	return nil
}

// Accumulate adds v into list, summing with an existing entry of the same
// currency instead of appending a duplicate.
func Accumulate(list []Value, v Value) []Value {
	if existing := Find(list, v.Currency); existing != nil {
		existing.Amount = existing.Amount.Add(v.Amount)
		return list
	}
	return append(list, v)
}

// AmountOf returns the amount of c in list, zero when absent.
func AmountOf(list []Value, c ID) decimal.Decimal {
	if v := Find(list, c); v != nil {
		return v.Amount
	}
	return decimal.Zero
}

// Clone returns an independent copy of list. A nil list stays nil.
func Clone(list []Value) []Value {
	if list == nil {
		return nil
	}
	out := make([]Value, len(list))
	copy(out, list)
	return out
}

// CloneHistory returns an independent copy of list.
func CloneHistory(list []History) []History {
	if list == nil {
		return nil
	}
	out := make([]History, len(list))
	copy(out, list)
	return out
}

// Amounts strips gain/loss from a history list.
func Amounts(list []History) []Value {
	if len(list) == 0 {
		return nil
	}
	out := make([]Value, len(list))
	for i, h := range list {
		out[i] = h.Value
	}
	return out
}

// Equal reports whether a and b hold the same amounts for the same
// currencies, ignoring order.
func Equal(a, b []Value) bool {
	if len(a) != len(b) {
		return false
	}
	for _, v := range a {
		other := Find(b, v.Currency)
		if other == nil || !other.Amount.Equal(v.Amount) {
			return false
		}
	}
	return true
}

// Set is a membership set of currency IDs.
type Set map[ID]struct{}

// NewSet builds a Set from ids.
func NewSet(ids ...ID) Set {
	s := make(Set, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership. A nil Set has no members.
func (s Set) Has(id ID) bool {
	_, ok := s[id]
	return ok
}
