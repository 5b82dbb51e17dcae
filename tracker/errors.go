/*
errors.go - Error types for tracker operations

PURPOSE:
  Sentinel and structured errors returned by the tracker's handlers. The
  HTTP layer maps them with IsNotFound / IsClientError.

SEE ALSO:
  - ledger/errors.go: Ledger and gateway errors
  - api/handlers.go: Status code mapping
*/
package tracker

import (
	"errors"
	"fmt"

	"github.com/warp/progress-tracker/ledger"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrGameNotFound is returned for a game id that was never registered.
	ErrGameNotFound = errors.New("game not found")

	// ErrDuplicateGame is returned when registering a game id twice.
	ErrDuplicateGame = errors.New("game already registered")

	// ErrTaskNotFound is returned for a task id missing from the game config.
	ErrTaskNotFound = errors.New("task not found")

	// ErrStageNotFound is returned for a stage id missing from a ranked task.
	ErrStageNotFound = errors.New("stage not found")

	// ErrNotRanked is returned when a stage edit targets a task without stages.
	ErrNotRanked = errors.New("task has no ranked stages")

	// ErrRegionNotFound is returned for a region the game does not define.
	ErrRegionNotFound = errors.New("region not found")

	// ErrPremiumNotFound is returned for a premium id absent from the day.
	ErrPremiumNotFound = errors.New("premium source not found")

	// ErrInvalidValue is returned for input the ledger cannot record.
	ErrInvalidValue = errors.New("invalid value")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// TaskNotFoundError names the missing task.
type TaskNotFoundError struct {
	Game string
	Type ledger.TaskType
	Task string
}

func (e *TaskNotFoundError) Error() string {
	return fmt.Sprintf("task not found: %s %s task %q", e.Game, e.Type, e.Task)
}

func (e *TaskNotFoundError) Unwrap() error {
	return ErrTaskNotFound
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrGameNotFound) ||
		errors.Is(err, ErrTaskNotFound) ||
		errors.Is(err, ErrStageNotFound) ||
		errors.Is(err, ErrRegionNotFound) ||
		errors.Is(err, ErrPremiumNotFound)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidValue) ||
		errors.Is(err, ErrNotRanked) ||
		errors.Is(err, ledger.ErrUnknownTaskType)
}
