// Package engine owns the reservation state machine: the atomic acquire,
// release and batch-expiry operations on pieces and reservations.  The
// engine itself is stateless; all serialization happens at the store via
// row locks scoped to a single piece, so any number of request workers may
// call into one engine concurrently.
package engine

import (
    "context"
    "errors"
    "time"

    "github.com/nkosimano/chartedart-api/internal/clock"
    "github.com/nkosimano/chartedart-api/internal/model"
)

// Store is the transactional persistence contract the engine needs.  WithTx
// runs fn inside a single transaction; the *ForUpdate reads take row locks
// that are held until the transaction commits or rolls back, which is what
// serializes concurrent acquires on the same piece.
type Store interface {
    WithTx(ctx context.Context, fn func(ctx context.Context) error) error

    // PieceForUpdate locks and returns the piece row.  Returns
    // model.ErrPieceNotFound when no such piece exists.
    PieceForUpdate(ctx context.Context, pieceID uint64) (model.Piece, error)
    SetPieceStatus(ctx context.Context, pieceID uint64, status model.PieceStatus) error

    // ReservationForUpdate locks and returns the reservation row.  Returns
    // model.ErrReservationNotFound when no such reservation exists.
    ReservationForUpdate(ctx context.Context, reservationID uint64) (model.Reservation, error)

    // ActiveReservationForPiece returns the ACTIVE reservation on the piece
    // regardless of its deadline, or nil when none exists.
    ActiveReservationForPiece(ctx context.Context, pieceID uint64) (*model.Reservation, error)

    // ActiveReservationForHolder returns the holder's ACTIVE reservation in
    // the movement whose deadline is still ahead of now, or nil.
    ActiveReservationForHolder(ctx context.Context, holderID string, movementID uint64, now time.Time) (*model.Reservation, error)

    CreateReservation(ctx context.Context, r *model.Reservation) error

    // CloseReservation moves an ACTIVE reservation to the given terminal
    // state.  The update is predicated on state = ACTIVE so overlapping
    // transactions cannot close the same reservation twice; it reports
    // whether a row was actually updated.
    CloseReservation(ctx context.Context, reservationID uint64, to model.ReservationState, now time.Time) (bool, error)

    // ExpireDueReservations moves every ACTIVE reservation with a deadline
    // at or before now to EXPIRED and frees the corresponding pieces,
    // returning the number of reservations reclaimed.
    ExpireDueReservations(ctx context.Context, now time.Time) (int64, error)
}

// Engine coordinates reservation state transitions against a Store.
type Engine struct {
    store  Store
    clock  clock.Clock
    window time.Duration
}

const defaultWindow = 15 * time.Minute

// New builds an Engine with the default 15 minute reservation window.
func New(store Store, clk clock.Clock, opts ...Option) *Engine {
    e := &Engine{
        store:  store,
        clock:  clk,
        window: defaultWindow,
    }
    for _, opt := range opts {
        opt(e)
    }
    return e
}

type Option func(*Engine)

// WithWindow overrides the reservation window for new claims.
func WithWindow(d time.Duration) Option {
    return func(e *Engine) {
        if d > 0 {
            e.window = d
        }
    }
}

// Window returns the configured reservation window.
func (e *Engine) Window() time.Duration { return e.window }

// Acquire claims the piece for the holder inside one locking transaction.
// For two concurrent calls on the same piece exactly one succeeds; the
// other observes ConflictError or ExistingReservationError.
//
// A piece held by a reservation whose window has already lapsed is expired
// inside the same transaction and the claim proceeds, so callers never see
// a conflict for a logically free piece.  The sweeper remains the backstop
// for pieces nobody asks for again.
func (e *Engine) Acquire(ctx context.Context, pieceID uint64, holderID string) (model.Reservation, error) {
    now := e.clock.Now()
    var result model.Reservation

    err := e.store.WithTx(ctx, func(txCtx context.Context) error {
        piece, err := e.store.PieceForUpdate(txCtx, pieceID)
        if err != nil {
            return err
        }

        if piece.Status == model.PieceStatusReserved {
            active, err := e.store.ActiveReservationForPiece(txCtx, pieceID)
            if err != nil {
                return err
            }
            if active != nil && active.ExpiredAt(now) {
                if _, err := e.store.CloseReservation(txCtx, active.ID, model.ReservationStateExpired, now); err != nil {
                    return err
                }
                if err := e.store.SetPieceStatus(txCtx, pieceID, model.PieceStatusAvailable); err != nil {
                    return err
                }
                piece.Status = model.PieceStatusAvailable
            }
        }

        if piece.Status != model.PieceStatusAvailable {
            return &ConflictError{PieceID: pieceID, Status: piece.Status}
        }

        // One claim per holder per movement, checked under the same lock so
        // two concurrent acquires cannot both pass.
        existing, err := e.store.ActiveReservationForHolder(txCtx, holderID, piece.MovementID, now)
        if err != nil {
            return err
        }
        if existing != nil {
            return &ExistingReservationError{ReservationID: existing.ID, MovementID: piece.MovementID}
        }

        r := model.Reservation{
            PieceID:    pieceID,
            MovementID: piece.MovementID,
            HolderID:   holderID,
            State:      model.ReservationStateActive,
            ExpiresAt:  now.Add(e.window),
            CreatedAt:  now,
            UpdatedAt:  now,
        }
        if err := e.store.CreateReservation(txCtx, &r); err != nil {
            return err
        }
        if err := e.store.SetPieceStatus(txCtx, pieceID, model.PieceStatusReserved); err != nil {
            return err
        }
        result = r
        return nil
    })
    if err != nil {
        return model.Reservation{}, classify(err)
    }
    return result, nil
}

// ReleaseReason selects the terminal state a release moves to.
type ReleaseReason string

const (
    // ReleaseReasonCancel returns the piece to the available pool.
    ReleaseReasonCancel ReleaseReason = "cancel"
    // ReleaseReasonPurchase marks the piece sold.
    ReleaseReasonPurchase ReleaseReason = "purchase"
)

// ReleaseResult reports the reservation after a release.  AlreadyClosed is
// set when the reservation was already terminal and the call was a no-op,
// which callers retrying a timed-out release rely on.
type ReleaseResult struct {
    Reservation   model.Reservation
    AlreadyClosed bool
}

// Release moves an ACTIVE reservation to RELEASED (cancel) or COMPLETED
// (purchase) and flips the piece to AVAILABLE or SOLD accordingly, in one
// transaction.  Releasing an already-terminal reservation succeeds without
// changing anything.  Returns model.ErrReservationNotFound when the
// reservation does not exist.
func (e *Engine) Release(ctx context.Context, reservationID uint64, reason ReleaseReason) (ReleaseResult, error) {
    now := e.clock.Now()
    var result ReleaseResult

    err := e.store.WithTx(ctx, func(txCtx context.Context) error {
        r, err := e.store.ReservationForUpdate(txCtx, reservationID)
        if err != nil {
            return err
        }
        if r.State.Terminal() {
            result = ReleaseResult{Reservation: r, AlreadyClosed: true}
            return nil
        }

        to := model.ReservationStateReleased
        pieceStatus := model.PieceStatusAvailable
        if reason == ReleaseReasonPurchase {
            to = model.ReservationStateCompleted
            pieceStatus = model.PieceStatusSold
        }

        closed, err := e.store.CloseReservation(txCtx, r.ID, to, now)
        if err != nil {
            return err
        }
        if !closed {
            // Lost the race to an overlapping close; re-read for the caller.
            r, err = e.store.ReservationForUpdate(txCtx, r.ID)
            if err != nil {
                return err
            }
            result = ReleaseResult{Reservation: r, AlreadyClosed: true}
            return nil
        }
        if err := e.store.SetPieceStatus(txCtx, r.PieceID, pieceStatus); err != nil {
            return err
        }

        r.State = to
        r.UpdatedAt = now
        result = ReleaseResult{Reservation: r}
        return nil
    })
    if err != nil {
        return ReleaseResult{}, classify(err)
    }
    return result, nil
}

// ExpireBatch reclaims every reservation whose window lapsed at or before
// now, returning the count.  The whole batch commits or rolls back as one
// transaction, and the predicate update makes overlapping sweeps safe:
// a reservation already moved off ACTIVE is not reclaimed again.
func (e *Engine) ExpireBatch(ctx context.Context, now time.Time) (int64, error) {
    var count int64
    err := e.store.WithTx(ctx, func(txCtx context.Context) error {
        n, err := e.store.ExpireDueReservations(txCtx, now)
        if err != nil {
            return err
        }
        count = n
        return nil
    })
    if err != nil {
        return 0, classify(err)
    }
    return count, nil
}

// classify passes domain failures through untouched and wraps everything
// else as StoreUnavailableError so callers never mistake a transient store
// fault for a conflict.
func classify(err error) error {
    var conflict *ConflictError
    var existing *ExistingReservationError
    switch {
    case errors.As(err, &conflict),
        errors.As(err, &existing),
        errors.Is(err, model.ErrPieceNotFound),
        errors.Is(err, model.ErrReservationNotFound):
        return err
    }
    return &StoreUnavailableError{Err: err}
}
