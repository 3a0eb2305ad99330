package repository

import (
    "context"
    "database/sql"
    "errors"
    "time"

    "github.com/nkosimano/chartedart-api/internal/model"
)

// sqlTime wraps a scanned DATETIME for RFC3339 output.  The DSN sets
// parseTime=true and loc=UTC, so the driver hands back time.Time in UTC.
type sqlTime struct{ t time.Time }

func (s sqlTime) rfc3339() string { return s.t.UTC().Format(time.RFC3339) }

// MovementRepo serves the read-heavy listing queries for movements and
// their pieces.  These queries feed the cache-aside layer; they never
// mutate reservation state.
type MovementRepo struct {
    db *sql.DB
}

// NewMovementRepo returns a MovementRepo bound to the given database.
func NewMovementRepo(db *sql.DB) *MovementRepo { return &MovementRepo{db: db} }

// ListActive returns all ACTIVE movements, newest first.
func (r *MovementRepo) ListActive(ctx context.Context) ([]model.Movement, error) {
    const q = `SELECT id, title, description, status, total_pieces, created_at, updated_at
               FROM movements WHERE status = 'ACTIVE'
               ORDER BY created_at DESC`
    rows, err := r.db.QueryContext(ctx, q)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    movements := make([]model.Movement, 0)
    for rows.Next() {
        var m model.Movement
        if err := rows.Scan(&m.ID, &m.Title, &m.Description, &m.Status, &m.TotalPieces, &m.CreatedAt, &m.UpdatedAt); err != nil {
            return nil, err
        }
        movements = append(movements, m)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return movements, nil
}

// GetByID returns a single movement.  Returns model.ErrMovementNotFound
// when no such movement exists.
func (r *MovementRepo) GetByID(ctx context.Context, movementID uint64) (model.Movement, error) {
    const q = `SELECT id, title, description, status, total_pieces, created_at, updated_at
               FROM movements WHERE id = ?`
    var m model.Movement
    err := r.db.QueryRowContext(ctx, q, movementID).Scan(
        &m.ID, &m.Title, &m.Description, &m.Status, &m.TotalPieces, &m.CreatedAt, &m.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return model.Movement{}, model.ErrMovementNotFound
        }
        return model.Movement{}, err
    }
    return m, nil
}

// MovementMetrics is a point-in-time snapshot of a movement's piece pool.
// RaisedCents sums the price of sold pieces.  Served through the cache, so
// a few minutes of staleness is expected and accepted.
type MovementMetrics struct {
    MovementID  uint64 `json:"movement_id"`
    TotalPieces uint32 `json:"total_pieces"`
    Available   uint32 `json:"available"`
    Reserved    uint32 `json:"reserved"`
    Sold        uint32 `json:"sold"`
    RaisedCents uint64 `json:"raised_cents"`
}

// Metrics computes the status breakdown and amount raised for a movement.
func (r *MovementRepo) Metrics(ctx context.Context, movementID uint64) (MovementMetrics, error) {
    const q = `SELECT COUNT(*),
                      COALESCE(SUM(status = 'AVAILABLE'), 0),
                      COALESCE(SUM(status = 'RESERVED'), 0),
                      COALESCE(SUM(status = 'SOLD'), 0),
                      COALESCE(SUM(CASE WHEN status = 'SOLD' THEN price_cents ELSE 0 END), 0)
               FROM pieces WHERE movement_id = ?`
    m := MovementMetrics{MovementID: movementID}
    err := r.db.QueryRowContext(ctx, q, movementID).Scan(
        &m.TotalPieces, &m.Available, &m.Reserved, &m.Sold, &m.RaisedCents,
    )
    if err != nil {
        return MovementMetrics{}, err
    }
    return m, nil
}

// ListPieces returns a page of a movement's pieces ordered by piece
// number, optionally filtered by status.  Pass an empty status to list
// every piece.
func (r *MovementRepo) ListPieces(ctx context.Context, movementID uint64, status model.PieceStatus, limit, offset uint32) ([]model.Piece, error) {
    q := `SELECT id, movement_id, piece_number, price_cents, status, created_at, updated_at
          FROM pieces WHERE movement_id = ?`
    args := []any{movementID}
    if status != "" {
        q += ` AND status = ?`
        args = append(args, string(status))
    }
    q += ` ORDER BY piece_number LIMIT ? OFFSET ?`
    args = append(args, limit, offset)

    rows, err := r.db.QueryContext(ctx, q, args...)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    pieces := make([]model.Piece, 0, limit)
    for rows.Next() {
        var p model.Piece
        if err := rows.Scan(&p.ID, &p.MovementID, &p.PieceNumber, &p.PriceCents, &p.Status, &p.CreatedAt, &p.UpdatedAt); err != nil {
            return nil, err
        }
        pieces = append(pieces, p)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return pieces, nil
}

// HolderReservation is a reservation joined with its piece and movement
// context for the holder-facing listing.
type HolderReservation struct {
    ID            uint64                 `json:"id"`
    State         model.ReservationState `json:"state"`
    ExpiresAt     string                 `json:"expires_at"`
    CreatedAt     string                 `json:"created_at"`
    PieceID       uint64                 `json:"piece_id"`
    PieceNumber   uint32                 `json:"piece_number"`
    PriceCents    uint32                 `json:"price_cents"`
    MovementID    uint64                 `json:"movement_id"`
    MovementTitle string                 `json:"movement_title"`
}

// ReservationOwner returns the holder ID on a reservation, for ownership
// checks at the façade.  Returns model.ErrReservationNotFound when the
// reservation does not exist.
func (r *MovementRepo) ReservationOwner(ctx context.Context, reservationID uint64) (string, error) {
    const q = `SELECT holder_id FROM reservations WHERE id = ?`
    var holder string
    if err := r.db.QueryRowContext(ctx, q, reservationID).Scan(&holder); err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return "", model.ErrReservationNotFound
        }
        return "", err
    }
    return holder, nil
}

// ListByHolder returns the holder's reservations, newest first.  Read
// directly from the store, not the cache: the holder acting on a claim
// needs its real state.
func (r *MovementRepo) ListByHolder(ctx context.Context, holderID string) ([]HolderReservation, error) {
    const q = `SELECT r.id, r.state, r.expires_at, r.created_at,
                      p.id, p.piece_number, p.price_cents,
                      m.id, m.title
               FROM reservations r
               JOIN pieces p ON p.id = r.piece_id
               JOIN movements m ON m.id = r.movement_id
               WHERE r.holder_id = ?
               ORDER BY r.created_at DESC`
    rows, err := r.db.QueryContext(ctx, q, holderID)
    if err != nil {
        return nil, err
    }
    defer rows.Close()
    items := make([]HolderReservation, 0)
    for rows.Next() {
        var h HolderReservation
        var expiresAt, createdAt sqlTime
        if err := rows.Scan(
            &h.ID, &h.State, &expiresAt.t, &createdAt.t,
            &h.PieceID, &h.PieceNumber, &h.PriceCents,
            &h.MovementID, &h.MovementTitle,
        ); err != nil {
            return nil, err
        }
        h.ExpiresAt = expiresAt.rfc3339()
        h.CreatedAt = createdAt.rfc3339()
        items = append(items, h)
    }
    if err := rows.Err(); err != nil {
        return nil, err
    }
    return items, nil
}
