/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Dates travel as
  "YYYY-MM-DD" strings; amounts as JSON numbers or decimal strings.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request types carry go-playground/validator tags, checked by decode().

SEE ALSO:
  - handlers.go: Uses these types
  - tracker/tracker.go: View and Result
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/ledger"
	"github.com/warp/progress-tracker/tracker"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// SelectRequest moves a game's focus. Either field may be omitted.
type SelectRequest struct {
	Date   *string `json:"date,omitempty"`
	Region *string `json:"region,omitempty"`
}

// TaskValueRequest sets a task's or stage's progress value.
type TaskValueRequest struct {
	Value *int `json:"value" validate:"required,gte=0"`
}

// NotesRequest sets free-form notes.
type NotesRequest struct {
	Notes string `json:"notes" validate:"max=2000"`
}

// AmountRequest sets a currency override.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// OtherSourceRequest sets a named income source.
type OtherSourceRequest struct {
	Notes      string           `json:"notes" validate:"max=2000"`
	Currencies []currency.Value `json:"currencies" validate:"dive"`
}

// PremiumRequest creates or replaces a premium source.
type PremiumRequest struct {
	Name       string           `json:"name" validate:"required"`
	Category   string           `json:"category"`
	Spending   decimal.Decimal  `json:"spending"`
	Currencies []currency.Value `json:"currencies" validate:"dive"`
	Notes      string           `json:"notes" validate:"max=2000"`
}

func (p PremiumRequest) source(id int) ledger.PremiumSource {
	return ledger.PremiumSource{
		ID:         id,
		Name:       p.Name,
		Category:   p.Category,
		Spending:   p.Spending,
		Currencies: p.Currencies,
		Notes:      p.Notes,
	}
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ViewDTO is the game view.
type ViewDTO struct {
	Game        string           `json:"game"`
	Region      string           `json:"region"`
	SelectedDay string           `json:"selected_day"`
	Today       string           `json:"today"`
	NextReset   time.Time        `json:"next_reset"`
	Tracked     []currency.ID    `json:"tracked"`
	Primary     currency.ID      `json:"primary,omitempty"`
	Balance     []currency.Value `json:"balance"`
	Pulls       map[string]int64 `json:"pulls,omitempty"`
	Day         *ledger.DayData  `json:"day"`
}

func toViewDTO(v tracker.View) ViewDTO {
	return ViewDTO{
		Game:        v.Game,
		Region:      v.Region,
		SelectedDay: v.SelectedDay.String(),
		Today:       v.Today.String(),
		NextReset:   v.NextReset,
		Tracked:     v.Tracked,
		Primary:     v.Primary,
		Balance:     v.Balance,
		Pulls:       v.Pulls,
		Day:         v.Day,
	}
}

// DayDTO is one day, optionally with the days an edit adjusted.
type DayDTO struct {
	Date      string          `json:"date"`
	Day       *ledger.DayData `json:"day"`
	Adjusted  []string        `json:"adjusted,omitempty"`
	PremiumID int             `json:"premium_id,omitempty"`
}

func toDayDTO(res tracker.Result) DayDTO {
	dto := DayDTO{Date: res.Date.String(), Day: res.Day, PremiumID: res.PremiumID}
	for _, d := range res.Adjusted {
		dto.Adjusted = append(dto.Adjusted, d.String())
	}
	return dto
}

// FlushDTO reports a manual flush.
type FlushDTO struct {
	Flushed bool `json:"flushed"`
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
