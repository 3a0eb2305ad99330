package model

import "time"

// ReservationState enumerates the lifecycle of a reservation.  ACTIVE is
// the only non-terminal state; COMPLETED, RELEASED and EXPIRED are final.
type ReservationState string

const (
    ReservationStateActive    ReservationState = "ACTIVE"
    ReservationStateCompleted ReservationState = "COMPLETED"
    ReservationStateReleased  ReservationState = "RELEASED"
    ReservationStateExpired   ReservationState = "EXPIRED"
)

// Terminal reports whether the state is final.
func (s ReservationState) Terminal() bool {
    return s != ReservationStateActive
}

// Reservation is a time-bounded claim on a piece by a holder.  At most one
// ACTIVE reservation exists per piece, and at most one per holder per
// movement.  MovementID is denormalized from the piece so the per-movement
// exclusivity check is a single indexed lookup inside the acquire
// transaction.
//
// An ACTIVE reservation whose ExpiresAt has passed is logically expired:
// readers must treat it as not blocking even before the sweeper records the
// EXPIRED state.
type Reservation struct {
    ID         uint64           `json:"id"`          // reservations.id
    PieceID    uint64           `json:"piece_id"`    // reservations.piece_id
    MovementID uint64           `json:"movement_id"` // reservations.movement_id
    HolderID   string           `json:"holder_id"`   // reservations.holder_id
    State      ReservationState `json:"state"`       // reservations.state
    ExpiresAt  time.Time        `json:"expires_at"`  // reservations.expires_at
    CreatedAt  time.Time        `json:"created_at"`  // reservations.created_at
    UpdatedAt  time.Time        `json:"updated_at"`  // reservations.updated_at
}

// ExpiredAt reports whether the reservation's window has lapsed at the
// given instant.  Only meaningful for ACTIVE reservations.
func (r Reservation) ExpiredAt(now time.Time) bool {
    return !r.ExpiresAt.After(now)
}
