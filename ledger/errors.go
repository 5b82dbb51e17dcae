/*
errors.go - Error types for the session ledger

PURPOSE:
  Sentinel errors for the ledger and its gateways. Callers wrap these with
  context; "no data" is never an error anywhere in this package.

SEE ALSO:
  - tracker/errors.go: Handler-level errors wrapping these
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnknownTaskType is returned when a task type name is not one of
	// daily, weekly, periodic or event.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrUnknownTable is returned by gateways for a table outside the closed set.
	ErrUnknownTable = errors.New("unknown table")

	// ErrNoGateway is returned when a session operation needs persistence
	// but the session has none.
	ErrNoGateway = errors.New("session has no gateway")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// GatewayError wraps a persistence failure with the query that caused it.
type GatewayError struct {
	Op    string
	Table Table
	Err   error
}

func (e *GatewayError) Error() string {
	if e.Table != "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Table, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
