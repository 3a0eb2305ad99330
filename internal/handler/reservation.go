package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "strings"
    "time"

    "github.com/labstack/echo/v4"

    "github.com/nkosimano/chartedart-api/internal/engine"
    "github.com/nkosimano/chartedart-api/internal/model"
    "github.com/nkosimano/chartedart-api/internal/queue"
    "github.com/nkosimano/chartedart-api/internal/repository"
    queue_publisher "github.com/nkosimano/chartedart-api/internal/service"
)

// ReservationEngine is the slice of the engine the handler drives.
type ReservationEngine interface {
    Acquire(ctx context.Context, pieceID uint64, holderID string) (model.Reservation, error)
    Release(ctx context.Context, reservationID uint64, reason engine.ReleaseReason) (engine.ReleaseResult, error)
}

// ReservationReader serves the holder-facing reads.
type ReservationReader interface {
    ReservationOwner(ctx context.Context, reservationID uint64) (string, error)
    ListByHolder(ctx context.Context, holderID string) ([]repository.HolderReservation, error)
}

// ReservationHandler exposes the reservation engine over HTTP.  All
// endpoints sit behind HolderAuth, so the holder ID is always present in
// the context.  The handler only translates: parse the request, one engine
// call, map the result to a status code.  Every business rule lives in the
// engine.
type ReservationHandler struct {
    Engine    ReservationEngine
    Movements ReservationReader
}

// NewReservationHandler constructs a ReservationHandler.
func NewReservationHandler(eng ReservationEngine, movements ReservationReader) *ReservationHandler {
    if eng == nil || movements == nil {
        panic("nil dependency passed to NewReservationHandler")
    }
    return &ReservationHandler{Engine: eng, Movements: movements}
}

// holderID pulls the authenticated holder from the context.
func holderID(c echo.Context) (string, bool) {
    id, _ := c.Get("holder_id").(string)
    return id, id != ""
}

// Reserve handles POST /v1/pieces/:id/reservations.  On success it
// returns 201 with the reservation and its expiry.  Failure modes map to
// distinct responses so the client can tell the user exactly why:
// 404 unknown piece, 409 piece_unavailable (someone has it, or it is
// sold), 409 existing_reservation (the holder already holds a piece in
// this movement; the remedy is cancelling that one), 503 retryable store
// failure.
func (h *ReservationHandler) Reserve(c echo.Context) error {
    holder, ok := holderID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    pieceID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || pieceID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid piece id"})
    }

    res, err := h.Engine.Acquire(c.Request().Context(), pieceID, holder)
    if err != nil {
        return writeEngineError(c, err)
    }
    return c.JSON(http.StatusCreated, echo.Map{
        "reservation": res,
        "expires_at":  res.ExpiresAt.Format(time.RFC3339),
    })
}

// Cancel handles DELETE /v1/reservations/:id.  Cancelling returns the
// piece to the pool.  Retries are safe: a reservation that is already
// closed reports success with its settled state.
func (h *ReservationHandler) Cancel(c echo.Context) error {
    return h.release(c, engine.ReleaseReasonCancel)
}

// Complete handles POST /v1/reservations/:id/complete.  The purchase flow
// calls this after payment settles (payment itself is handled elsewhere);
// the piece becomes SOLD, which is terminal.
func (h *ReservationHandler) Complete(c echo.Context) error {
    return h.release(c, engine.ReleaseReasonPurchase)
}

func (h *ReservationHandler) release(c echo.Context, reason engine.ReleaseReason) error {
    holder, ok := holderID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    reservationID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || reservationID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid reservation id"})
    }

    // Ownership is checked before touching state.  A reservation's holder
    // never changes, so check-then-release is not racy, and to a stranger
    // the reservation simply does not exist.
    owner, err := h.Movements.ReservationOwner(c.Request().Context(), reservationID)
    if err != nil {
        if errors.Is(err, model.ErrReservationNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
        }
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store_unavailable"})
    }
    if owner != holder {
        return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
    }

    out, err := h.Engine.Release(c.Request().Context(), reservationID, reason)
    if err != nil {
        return writeEngineError(c, err)
    }

    if !out.AlreadyClosed {
        publishClosed(out.Reservation)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "reservation_id": out.Reservation.ID,
        "state":          out.Reservation.State,
    })
}

// MyReservations handles GET /v1/my-reservations.  Served straight from
// the store, not the cache: a holder deciding whether to cancel or
// complete needs the real state of their claim.
func (h *ReservationHandler) MyReservations(c echo.Context) error {
    holder, ok := holderID(c)
    if !ok {
        return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
    }
    items, err := h.Movements.ListByHolder(c.Request().Context(), holder)
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load reservations"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// publishClosed emits the lifecycle event without holding up the
// response.  The publisher logs its own failures; a lost event never
// fails a reservation.
func publishClosed(r model.Reservation) {
    ev := queue.ReservationClosedEvent{
        ReservationID: r.ID,
        PieceID:       r.PieceID,
        MovementID:    r.MovementID,
        HolderID:      r.HolderID,
        State:         string(r.State),
        ClosedAt:      r.UpdatedAt.UTC().Format(time.RFC3339),
    }
    go func() {
        ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
        defer cancel()
        _ = queue_publisher.PublishReservationClosed(ctx, ev)
    }()
}

// writeEngineError maps engine failures to transport responses.  The
// distinction matters to callers: a true conflict is pointless to retry,
// a store failure is expected to be retried, and a lock wait that timed
// out reads as contention rather than an outage.
func writeEngineError(c echo.Context, err error) error {
    var conflict *engine.ConflictError
    var existing *engine.ExistingReservationError
    var unavailable *engine.StoreUnavailableError

    switch {
    case errors.Is(err, model.ErrPieceNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "piece not found"})
    case errors.Is(err, model.ErrReservationNotFound):
        return c.JSON(http.StatusNotFound, echo.Map{"error": "reservation not found"})
    case errors.As(err, &conflict):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":  "piece_unavailable",
            "status": strings.ToLower(string(conflict.Status)),
        })
    case errors.As(err, &existing):
        return c.JSON(http.StatusConflict, echo.Map{
            "error":          "existing_reservation",
            "reservation_id": existing.ReservationID,
        })
    case errors.As(err, &unavailable):
        if errors.Is(err, context.DeadlineExceeded) {
            // The row lock could not be obtained within the request
            // deadline; the piece is contended, not the store down.
            return c.JSON(http.StatusConflict, echo.Map{"error": "piece_contended"})
        }
        return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "store_unavailable"})
    }
    return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
