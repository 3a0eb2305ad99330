package engine

import (
    "fmt"
    "strings"

    "github.com/nkosimano/chartedart-api/internal/model"
)

// ConflictError reports that a piece is not in the state the requested
// transition needs.  Status carries the piece's current status so the
// caller can tell the user why the claim failed.  A reserved piece whose
// window has not lapsed and a sold piece both surface here.
type ConflictError struct {
    PieceID uint64
    Status  model.PieceStatus
}

func (e *ConflictError) Error() string {
    return fmt.Sprintf("piece %d is %s", e.PieceID, strings.ToLower(string(e.Status)))
}

// ExistingReservationError is a business-rule rejection: the holder already
// has an active reservation in the same movement.  It is distinct from
// ConflictError because the remedy is different (cancel the existing claim
// rather than pick another piece).
type ExistingReservationError struct {
    ReservationID uint64
    MovementID    uint64
}

func (e *ExistingReservationError) Error() string {
    return fmt.Sprintf("holder already has reservation %d in movement %d", e.ReservationID, e.MovementID)
}

// StoreUnavailableError wraps a failure to reach or commit against the
// backing store.  This is the only error class a caller may retry
// automatically; the wrapped error stays reachable through errors.Is/As.
type StoreUnavailableError struct {
    Err error
}

func (e *StoreUnavailableError) Error() string {
    return "store unavailable: " + e.Err.Error()
}

func (e *StoreUnavailableError) Unwrap() error {
    return e.Err
}
