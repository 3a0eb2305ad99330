package repository

import (
    "context"
    "database/sql"
    "errors"
    "strings"
    "time"

    "github.com/nkosimano/chartedart-api/internal/model"
)

// ReservationStore is the MySQL implementation of the engine's store
// contract.  Piece rows are locked with SELECT ... FOR UPDATE inside the
// transaction carried on the context, which serializes concurrent acquires
// targeting the same piece.  All timestamps are stored and compared in UTC.
type ReservationStore struct {
    db *sql.DB
}

// NewReservationStore returns a ReservationStore bound to the given database.
func NewReservationStore(db *sql.DB) *ReservationStore { return &ReservationStore{db: db} }

// DB exposes the underlying handle for wiring read-path repositories.
func (s *ReservationStore) DB() *sql.DB { return s.db }

// WithTx runs fn inside a single transaction.  Row locks taken by the
// *ForUpdate reads are held until commit or rollback.
func (s *ReservationStore) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
    return withTx(ctx, s.db, fn)
}

func (s *ReservationStore) q(ctx context.Context) querier {
    if tx := txFromContext(ctx); tx != nil {
        return tx
    }
    return s.db
}

// PieceForUpdate locks and reads the piece row.  Must be called inside
// WithTx; outside a transaction the FOR UPDATE clause has no effect.
func (s *ReservationStore) PieceForUpdate(ctx context.Context, pieceID uint64) (model.Piece, error) {
    const q = `SELECT id, movement_id, piece_number, price_cents, status, created_at, updated_at
               FROM pieces WHERE id = ? FOR UPDATE`
    var p model.Piece
    err := s.q(ctx).QueryRowContext(ctx, q, pieceID).Scan(
        &p.ID, &p.MovementID, &p.PieceNumber, &p.PriceCents, &p.Status, &p.CreatedAt, &p.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return model.Piece{}, model.ErrPieceNotFound
        }
        return model.Piece{}, err
    }
    return p, nil
}

// SetPieceStatus updates the piece's status column.  Only the engine calls
// this, always under the piece's row lock.
func (s *ReservationStore) SetPieceStatus(ctx context.Context, pieceID uint64, status model.PieceStatus) error {
    const q = `UPDATE pieces SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`
    res, err := s.q(ctx).ExecContext(ctx, q, string(status), pieceID)
    if err != nil {
        return err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return err
    }
    if n == 0 {
        return model.ErrPieceNotFound
    }
    return nil
}

// ReservationForUpdate locks and reads the reservation row.
func (s *ReservationStore) ReservationForUpdate(ctx context.Context, reservationID uint64) (model.Reservation, error) {
    const q = `SELECT id, piece_id, movement_id, holder_id, state, expires_at, created_at, updated_at
               FROM reservations WHERE id = ? FOR UPDATE`
    var r model.Reservation
    err := s.q(ctx).QueryRowContext(ctx, q, reservationID).Scan(
        &r.ID, &r.PieceID, &r.MovementID, &r.HolderID, &r.State, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return model.Reservation{}, model.ErrReservationNotFound
        }
        return model.Reservation{}, err
    }
    return r, nil
}

// ActiveReservationForPiece returns the ACTIVE reservation on the piece
// regardless of its deadline, or nil when none exists.  The caller already
// holds the piece's row lock, which keeps this read stable.
func (s *ReservationStore) ActiveReservationForPiece(ctx context.Context, pieceID uint64) (*model.Reservation, error) {
    const q = `SELECT id, piece_id, movement_id, holder_id, state, expires_at, created_at, updated_at
               FROM reservations WHERE piece_id = ? AND state = 'ACTIVE'`
    var r model.Reservation
    err := s.q(ctx).QueryRowContext(ctx, q, pieceID).Scan(
        &r.ID, &r.PieceID, &r.MovementID, &r.HolderID, &r.State, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, nil
        }
        return nil, err
    }
    return &r, nil
}

// ActiveReservationForHolder returns the holder's unexpired ACTIVE
// reservation in the movement, or nil.  A lapsed-but-unswept reservation
// does not count against the holder.
func (s *ReservationStore) ActiveReservationForHolder(ctx context.Context, holderID string, movementID uint64, now time.Time) (*model.Reservation, error) {
    const q = `SELECT id, piece_id, movement_id, holder_id, state, expires_at, created_at, updated_at
               FROM reservations
               WHERE holder_id = ? AND movement_id = ? AND state = 'ACTIVE' AND expires_at > ?
               LIMIT 1`
    var r model.Reservation
    err := s.q(ctx).QueryRowContext(ctx, q, holderID, movementID, now.UTC()).Scan(
        &r.ID, &r.PieceID, &r.MovementID, &r.HolderID, &r.State, &r.ExpiresAt, &r.CreatedAt, &r.UpdatedAt,
    )
    if err != nil {
        if errors.Is(err, sql.ErrNoRows) {
            return nil, nil
        }
        return nil, err
    }
    return &r, nil
}

// CreateReservation inserts the reservation row and populates the
// generated ID on the passed record.
func (s *ReservationStore) CreateReservation(ctx context.Context, r *model.Reservation) error {
    const q = `INSERT INTO reservations (piece_id, movement_id, holder_id, state, expires_at, created_at, updated_at)
               VALUES (?, ?, ?, ?, ?, ?, ?)`
    res, err := s.q(ctx).ExecContext(ctx, q,
        r.PieceID, r.MovementID, r.HolderID, string(r.State),
        r.ExpiresAt.UTC(), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
    )
    if err != nil {
        return err
    }
    id, err := res.LastInsertId()
    if err != nil {
        return err
    }
    r.ID = uint64(id)
    return nil
}

// CloseReservation moves an ACTIVE reservation to the given terminal
// state.  The state = 'ACTIVE' predicate makes the update a no-op when an
// overlapping transaction got there first; the return value reports
// whether this call did the close.
func (s *ReservationStore) CloseReservation(ctx context.Context, reservationID uint64, to model.ReservationState, now time.Time) (bool, error) {
    const q = `UPDATE reservations SET state = ?, updated_at = ? WHERE id = ? AND state = 'ACTIVE'`
    res, err := s.q(ctx).ExecContext(ctx, q, string(to), now.UTC(), reservationID)
    if err != nil {
        return false, err
    }
    n, err := res.RowsAffected()
    if err != nil {
        return false, err
    }
    return n > 0, nil
}

// ExpireDueReservations reclaims every ACTIVE reservation whose deadline
// is at or before now.  The due pairs are read without locks, then the
// affected piece rows are locked before any reservation row is touched —
// the same piece-then-reservation order Acquire takes its locks in, so an
// overlapping acquire blocks instead of deadlocking.  Both tables are
// updated with predicated statements that tolerate rows moved by a
// concurrent transaction between the read and the locks.  Runs inside the
// caller's transaction; all-or-nothing.
func (s *ReservationStore) ExpireDueReservations(ctx context.Context, now time.Time) (int64, error) {
    rows, err := s.q(ctx).QueryContext(ctx,
        `SELECT id, piece_id FROM reservations WHERE state = 'ACTIVE' AND expires_at <= ?`,
        now.UTC(),
    )
    if err != nil {
        return 0, err
    }
    var resIDs, pieceIDs []uint64
    for rows.Next() {
        var rid, pid uint64
        if scanErr := rows.Scan(&rid, &pid); scanErr != nil {
            rows.Close()
            return 0, scanErr
        }
        resIDs = append(resIDs, rid)
        pieceIDs = append(pieceIDs, pid)
    }
    if err = rows.Close(); err != nil {
        return 0, err
    }
    if len(resIDs) == 0 {
        return 0, nil
    }

    lockQ := `SELECT id FROM pieces WHERE id IN (` + placeholders(len(pieceIDs)) + `) ORDER BY id FOR UPDATE`
    lockArgs := make([]any, len(pieceIDs))
    for i, id := range pieceIDs {
        lockArgs[i] = id
    }
    lockRows, err := s.q(ctx).QueryContext(ctx, lockQ, lockArgs...)
    if err != nil {
        return 0, err
    }
    for lockRows.Next() {
    }
    if err := lockRows.Err(); err != nil {
        lockRows.Close()
        return 0, err
    }
    if err := lockRows.Close(); err != nil {
        return 0, err
    }

    resQ := `UPDATE reservations SET state = 'EXPIRED', updated_at = ? WHERE state = 'ACTIVE' AND id IN (` +
        placeholders(len(resIDs)) + `)`
    args := make([]any, 0, len(resIDs)+1)
    args = append(args, now.UTC())
    for _, id := range resIDs {
        args = append(args, id)
    }
    res, err := s.q(ctx).ExecContext(ctx, resQ, args...)
    if err != nil {
        return 0, err
    }
    count, err := res.RowsAffected()
    if err != nil {
        return 0, err
    }

    pieceQ := `UPDATE pieces SET status = 'AVAILABLE', updated_at = ? WHERE status = 'RESERVED' AND id IN (` +
        placeholders(len(pieceIDs)) + `)`
    args = args[:0]
    args = append(args, now.UTC())
    for _, id := range pieceIDs {
        args = append(args, id)
    }
    if _, err := s.q(ctx).ExecContext(ctx, pieceQ, args...); err != nil {
        return 0, err
    }
    return count, nil
}

func placeholders(n int) string {
    return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
