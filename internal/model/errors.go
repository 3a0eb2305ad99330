// Sentinel errors shared between the repository layer and the engine.
// Higher layers use errors.Is on these to distinguish missing records
// from genuine store failures.
package model

import "errors"

// ErrMovementNotFound is returned when a referenced movement does not exist.
var ErrMovementNotFound = errors.New("movement not found")

// ErrPieceNotFound is returned when a referenced piece does not exist.
var ErrPieceNotFound = errors.New("piece not found")

// ErrReservationNotFound is returned when a referenced reservation does not exist.
var ErrReservationNotFound = errors.New("reservation not found")
