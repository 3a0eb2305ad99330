package handler

import (
    "context"
    "errors"
    "net/http"
    "strconv"
    "strings"

    "github.com/labstack/echo/v4"

    "github.com/nkosimano/chartedart-api/internal/cache"
    "github.com/nkosimano/chartedart-api/internal/config"
    "github.com/nkosimano/chartedart-api/internal/model"
    "github.com/nkosimano/chartedart-api/internal/repository"
)

// MovementReader is the slice of the movement repository the listing
// endpoints read from.
type MovementReader interface {
    ListActive(ctx context.Context) ([]model.Movement, error)
    GetByID(ctx context.Context, movementID uint64) (model.Movement, error)
    Metrics(ctx context.Context, movementID uint64) (repository.MovementMetrics, error)
    ListPieces(ctx context.Context, movementID uint64, status model.PieceStatus, limit, offset uint32) ([]model.Piece, error)
}

// MovementHandler serves the public, read-heavy listing endpoints through
// the cache-aside layer.  Responses are point-in-time snapshots: a piece
// reserved a moment ago may still show as available until the key's TTL
// lapses, which the product accepts in exchange for keeping this traffic
// off the database.  The reserve endpoint is the source of truth either
// way.
type MovementHandler struct {
    Movements MovementReader
    Cache     *cache.Store
    Cfg       config.CacheConfig
}

// NewMovementHandler constructs a MovementHandler.
func NewMovementHandler(movements MovementReader, store *cache.Store, cfg config.CacheConfig) *MovementHandler {
    if movements == nil || store == nil {
        panic("nil dependency passed to NewMovementHandler")
    }
    return &MovementHandler{Movements: movements, Cache: store, Cfg: cfg}
}

// ListMovements handles GET /v1/movements.
func (h *MovementHandler) ListMovements(c echo.Context) error {
    ctx := c.Request().Context()
    key := cache.Key(h.Cfg.Prefix+":movements", "status", "ACTIVE")

    items, err := cache.GetOrCompute(ctx, h.Cache, key, h.Cfg.MovementsTTL,
        func(ctx2 context.Context) ([]model.Movement, error) {
            return h.Movements.ListActive(ctx2)
        })
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load movements"})
    }
    return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// movementDetail bundles a movement with its metrics snapshot so one cache
// entry serves the whole detail page.
type movementDetail struct {
    Movement model.Movement             `json:"movement"`
    Metrics  repository.MovementMetrics `json:"metrics"`
}

// GetMovement handles GET /v1/movements/:id.  A missing movement is never
// cached; the compute error propagates and nothing is written back.
func (h *MovementHandler) GetMovement(c echo.Context) error {
    movementID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || movementID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid movement id"})
    }
    ctx := c.Request().Context()
    key := cache.Key(h.Cfg.Prefix+":movement", "id", strconv.FormatUint(movementID, 10))

    detail, err := cache.GetOrCompute(ctx, h.Cache, key, h.Cfg.MetricsTTL,
        func(ctx2 context.Context) (movementDetail, error) {
            m, err := h.Movements.GetByID(ctx2, movementID)
            if err != nil {
                return movementDetail{}, err
            }
            metrics, err := h.Movements.Metrics(ctx2, movementID)
            if err != nil {
                return movementDetail{}, err
            }
            return movementDetail{Movement: m, Metrics: metrics}, nil
        })
    if err != nil {
        if errors.Is(err, model.ErrMovementNotFound) {
            return c.JSON(http.StatusNotFound, echo.Map{"error": "movement not found"})
        }
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load movement"})
    }
    return c.JSON(http.StatusOK, detail)
}

const (
    defaultPageSize = 100
    maxPageSize     = 500
)

// ListPieces handles GET /v1/movements/:id/pieces.  Optional query
// parameters: status (available|reserved|sold), page, per_page.  Every
// parameter that shapes the result participates in the cache key so two
// different queries never share an entry.
func (h *MovementHandler) ListPieces(c echo.Context) error {
    movementID, err := strconv.ParseUint(c.Param("id"), 10, 64)
    if err != nil || movementID == 0 {
        return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid movement id"})
    }

    var status model.PieceStatus
    if raw := c.QueryParam("status"); raw != "" {
        switch model.PieceStatus(strings.ToUpper(raw)) {
        case model.PieceStatusAvailable, model.PieceStatusReserved, model.PieceStatusSold:
            status = model.PieceStatus(strings.ToUpper(raw))
        default:
            return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status filter"})
        }
    }

    page := uint32(1)
    if raw := c.QueryParam("page"); raw != "" {
        // 20 bits keeps page*per_page inside uint32 even at the maximum
        // page size; anything larger falls back to the first page.
        if n, err := strconv.ParseUint(raw, 10, 20); err == nil && n > 0 {
            page = uint32(n)
        }
    }
    perPage := uint32(defaultPageSize)
    if raw := c.QueryParam("per_page"); raw != "" {
        if n, err := strconv.ParseUint(raw, 10, 32); err == nil && n > 0 && n <= maxPageSize {
            perPage = uint32(n)
        }
    }
    offset := (page - 1) * perPage

    ctx := c.Request().Context()
    key := cache.Key(h.Cfg.Prefix+":pieces",
        "movement", strconv.FormatUint(movementID, 10),
        "status", string(status),
        "limit", strconv.FormatUint(uint64(perPage), 10),
        "offset", strconv.FormatUint(uint64(offset), 10),
    )

    pieces, err := cache.GetOrCompute(ctx, h.Cache, key, h.Cfg.PiecesTTL,
        func(ctx2 context.Context) ([]model.Piece, error) {
            return h.Movements.ListPieces(ctx2, movementID, status, perPage, offset)
        })
    if err != nil {
        return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load pieces"})
    }
    return c.JSON(http.StatusOK, echo.Map{
        "items":    pieces,
        "page":     page,
        "per_page": perPage,
    })
}
