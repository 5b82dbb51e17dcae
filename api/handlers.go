/*
handlers.go - HTTP API handlers for the progress tracker

PURPOSE:
  Exposes the tracker via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to tracker.Tracker.

ENDPOINTS:
  Games:
    GET    /api/games                                 List games
    GET    /api/games/{game}                          Refresh and return the game view
    POST   /api/games/{game}/select                   Select day and/or region

  Days:
    GET    /api/games/{game}/days/{date}              One day
    PUT    /api/games/{game}/days/{date}/notes        Day notes
    PUT    .../days/{date}/tasks/{type}/{task}        Task value
    PUT    .../days/{date}/tasks/{type}/{task}/notes  Task notes
    PUT    .../days/{date}/tasks/{type}/{task}/stages/{stage}  Ranked stage value
    PUT    .../days/{date}/currencies/{currency}      Currency override
    DELETE .../days/{date}/override                   Clear override
    PUT    .../days/{date}/other/{name}               Other source
    POST   .../days/{date}/premium                    Add premium source
    PUT    .../days/{date}/premium/{id}               Replace premium source
    DELETE .../days/{date}/premium/{id}               Remove premium source

  Admin:
    POST   /api/flush                                 Write pending edits now

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Game, task, stage, region or premium source not found
  - 500: Persistence and internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"github.com/warp/progress-tracker/currency"
	"github.com/warp/progress-tracker/ledger"
	"github.com/warp/progress-tracker/tracker"
)

// errBadRequest marks request parsing failures.
var errBadRequest = errors.New("bad request")

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tracker *tracker.Tracker

	validate *validator.Validate
	logger   logrus.FieldLogger
}

// NewHandler creates a handler over t. A nil logger discards output.
func NewHandler(t *tracker.Tracker, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Handler{Tracker: t, validate: validator.New(), logger: logger}
}

// =============================================================================
// GAME HANDLERS
// =============================================================================

// ListGames returns every registered game in display order.
func (h *Handler) ListGames(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Tracker.Games())
}

// GetGame refreshes and returns a game's view.
func (h *Handler) GetGame(w http.ResponseWriter, r *http.Request) {
	v, err := h.Tracker.UpdateGameView(r.Context(), chi.URLParam(r, "game"))
	if err != nil {
		h.writeTrackerError(w, "Failed to load game", err)
		return
	}
	writeJSON(w, http.StatusOK, toViewDTO(v))
}

// SelectGame changes the selected region and/or day of a game.
func (h *Handler) SelectGame(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	gameID := chi.URLParam(r, "game")

	var (
		v   tracker.View
		err error
	)
	if req.Region != nil {
		if v, err = h.Tracker.SelectRegion(r.Context(), gameID, *req.Region); err != nil {
			h.writeTrackerError(w, "Failed to select region", err)
			return
		}
	}
	if req.Date != nil {
		date, perr := ledger.ParseDateKey(*req.Date)
		if perr != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", perr)
			return
		}
		if v, err = h.Tracker.SelectDay(r.Context(), gameID, date); err != nil {
			h.writeTrackerError(w, "Failed to select day", err)
			return
		}
	}
	if req.Region == nil && req.Date == nil {
		if v, err = h.Tracker.UpdateGameView(r.Context(), gameID); err != nil {
			h.writeTrackerError(w, "Failed to load game", err)
			return
		}
	}
	writeJSON(w, http.StatusOK, toViewDTO(v))
}

// =============================================================================
// DAY HANDLERS
// =============================================================================

// GetDay returns one day of a game.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	day, err := h.Tracker.Day(r.Context(), chi.URLParam(r, "game"), date)
	if err != nil {
		h.writeTrackerError(w, "Failed to load day", err)
		return
	}
	writeJSON(w, http.StatusOK, DayDTO{Date: date.String(), Day: day})
}

// SetDayNotes sets a day's notes.
func (h *Handler) SetDayNotes(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	var req NotesRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Tracker.HandleDayNotesChange(r.Context(), chi.URLParam(r, "game"), date, req.Notes)
	h.writeResult(w, "Failed to set notes", res, err)
}

// SetTaskValue records a task's progress value.
func (h *Handler) SetTaskValue(w http.ResponseWriter, r *http.Request) {
	date, tt, err := taskParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task path", err)
		return
	}
	var req TaskValueRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Tracker.HandleTaskRecordChange(r.Context(), chi.URLParam(r, "game"), tt, chi.URLParam(r, "task"), date, *req.Value)
	h.writeResult(w, "Failed to record progress", res, err)
}

// SetTaskNotes sets a task's notes.
func (h *Handler) SetTaskNotes(w http.ResponseWriter, r *http.Request) {
	date, tt, err := taskParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task path", err)
		return
	}
	var req NotesRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Tracker.HandleTaskNotesChange(r.Context(), chi.URLParam(r, "game"), tt, chi.URLParam(r, "task"), date, req.Notes)
	h.writeResult(w, "Failed to set notes", res, err)
}

// SetStageValue records one stage of a ranked task.
func (h *Handler) SetStageValue(w http.ResponseWriter, r *http.Request) {
	date, tt, err := taskParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid task path", err)
		return
	}
	var req TaskValueRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Tracker.HandleRankedStageRecordChange(r.Context(), chi.URLParam(r, "game"), tt,
		chi.URLParam(r, "task"), chi.URLParam(r, "stage"), date, *req.Value)
	h.writeResult(w, "Failed to record stage", res, err)
}

// SetCurrency overrides a currency's amount for a day.
func (h *Handler) SetCurrency(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	var req AmountRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	c := currency.ID(chi.URLParam(r, "currency"))
	res, err := h.Tracker.HandleCurrencyHistoryChange(r.Context(), chi.URLParam(r, "game"), date, c, req.Amount)
	h.writeResult(w, "Failed to set currency", res, err)
}

// ClearOverride removes a day's currency override.
func (h *Handler) ClearOverride(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	res, err := h.Tracker.ClearCurrencyOverride(r.Context(), chi.URLParam(r, "game"), date)
	h.writeResult(w, "Failed to clear override", res, err)
}

// SetOtherSource records a named income source.
func (h *Handler) SetOtherSource(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	var req OtherSourceRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Tracker.HandleOtherSourceChange(r.Context(), chi.URLParam(r, "game"), date,
		chi.URLParam(r, "name"), req.Notes, req.Currencies)
	h.writeResult(w, "Failed to set other source", res, err)
}

// =============================================================================
// PREMIUM HANDLERS
// =============================================================================

// AddPremium appends a premium source to a day.
func (h *Handler) AddPremium(w http.ResponseWriter, r *http.Request) {
	date, err := dateParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}
	var req PremiumRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Tracker.AddPremiumSource(r.Context(), chi.URLParam(r, "game"), date, req.source(0))
	if err != nil {
		h.writeTrackerError(w, "Failed to add premium source", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDayDTO(res))
}

// UpdatePremium replaces a premium source.
func (h *Handler) UpdatePremium(w http.ResponseWriter, r *http.Request) {
	date, id, err := premiumParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid premium path", err)
		return
	}
	var req PremiumRequest
	if err := h.decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	res, err := h.Tracker.UpdatePremiumSource(r.Context(), chi.URLParam(r, "game"), date, req.source(id))
	h.writeResult(w, "Failed to update premium source", res, err)
}

// DeletePremium removes a premium source.
func (h *Handler) DeletePremium(w http.ResponseWriter, r *http.Request) {
	date, id, err := premiumParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid premium path", err)
		return
	}
	res, err := h.Tracker.RemovePremiumSource(r.Context(), chi.URLParam(r, "game"), date, id)
	h.writeResult(w, "Failed to remove premium source", res, err)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// Flush writes every pending edit now.
func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if err := h.Tracker.FlushAll(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to flush writes", err)
		return
	}
	writeJSON(w, http.StatusOK, FlushDTO{Flushed: true})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) decode(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	if err := h.validate.Struct(dst); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func dateParam(r *http.Request) (ledger.DateKey, error) {
	return ledger.ParseDateKey(chi.URLParam(r, "date"))
}

func taskParams(r *http.Request) (ledger.DateKey, ledger.TaskType, error) {
	date, err := dateParam(r)
	if err != nil {
		return 0, 0, err
	}
	tt, err := ledger.ParseTaskType(chi.URLParam(r, "type"))
	if err != nil {
		return 0, 0, err
	}
	return date, tt, nil
}

func premiumParams(r *http.Request) (ledger.DateKey, int, error) {
	date, err := dateParam(r)
	if err != nil {
		return 0, 0, err
	}
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil || id <= 0 {
		return 0, 0, fmt.Errorf("invalid premium id %q", chi.URLParam(r, "id"))
	}
	return date, id, nil
}

func (h *Handler) writeResult(w http.ResponseWriter, message string, res tracker.Result, err error) {
	if err != nil {
		h.writeTrackerError(w, message, err)
		return
	}
	writeJSON(w, http.StatusOK, toDayDTO(res))
}

// writeTrackerError maps tracker errors to status codes.
func (h *Handler) writeTrackerError(w http.ResponseWriter, message string, err error) {
	switch {
	case tracker.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case tracker.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		h.logger.WithError(err).Error(message)
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
