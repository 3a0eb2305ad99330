package model

import "time"

// PieceStatus enumerates the states a puzzle piece moves through.  A piece
// is RESERVED exactly while an ACTIVE reservation exists for it; SOLD is
// terminal and never leaves.
type PieceStatus string

const (
    PieceStatusAvailable PieceStatus = "AVAILABLE"
    PieceStatusReserved  PieceStatus = "RESERVED"
    PieceStatusSold      PieceStatus = "SOLD"
)

// Piece is a uniquely numbered unit of a movement's artwork.  PieceNumber
// is unique within its movement.  Status transitions are owned exclusively
// by the reservation engine; nothing else writes this column.
type Piece struct {
    ID          uint64      `json:"id"`           // pieces.id
    MovementID  uint64      `json:"movement_id"`  // pieces.movement_id
    PieceNumber uint32      `json:"piece_number"` // pieces.piece_number
    PriceCents  uint32      `json:"price_cents"`  // pieces.price_cents
    Status      PieceStatus `json:"status"`       // pieces.status
    CreatedAt   time.Time   `json:"created_at"`   // pieces.created_at
    UpdatedAt   time.Time   `json:"updated_at"`   // pieces.updated_at
}
