// Package queue defines message payloads exchanged over the message broker.
package queue

// ReservationClosedEvent is published when a reservation leaves the ACTIVE
// state through the engine (completed or cancelled).  It carries enough
// context for downstream consumers to log or notify without querying the
// primary database.  Expiry sweeps are not published; they are internal
// bookkeeping visible only in the sweeper's own logs.
type ReservationClosedEvent struct {
    ReservationID uint64 `json:"reservation_id"`
    PieceID       uint64 `json:"piece_id"`
    MovementID    uint64 `json:"movement_id"`
    HolderID      string `json:"holder_id"`
    State         string `json:"state"`
    ClosedAt      string `json:"closed_at"`
}
