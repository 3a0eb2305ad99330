package model

import "time"

// MovementStatus enumerates the lifecycle of a movement campaign.
type MovementStatus string

const (
    MovementStatusActive   MovementStatus = "ACTIVE"
    MovementStatusComplete MovementStatus = "COMPLETED"
    MovementStatusArchived MovementStatus = "ARCHIVED"
)

// Movement is a donation campaign whose artwork is split into a grid of
// individually purchasable puzzle pieces.  Movements are created by an
// admin surface that is not part of this service; here they are read-only
// context for piece reservations and the public listing endpoints.
//
// Fields:
//  ID          – primary key identifier.
//  Title       – display title of the campaign.
//  Description – short blurb shown on listing pages.
//  Status      – campaign lifecycle state.
//  TotalPieces – number of pieces the artwork was split into.
//  CreatedAt   – creation timestamp.
//  UpdatedAt   – last update timestamp.
type Movement struct {
    ID          uint64         `json:"id"`           // movements.id
    Title       string         `json:"title"`        // movements.title
    Description string         `json:"description"`  // movements.description
    Status      MovementStatus `json:"status"`       // movements.status
    TotalPieces uint32         `json:"total_pieces"` // movements.total_pieces
    CreatedAt   time.Time      `json:"created_at"`   // movements.created_at
    UpdatedAt   time.Time      `json:"updated_at"`   // movements.updated_at
}
