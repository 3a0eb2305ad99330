package handler

import (
    "context"
    "net/http"
    "testing"
    "time"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"

    "github.com/nkosimano/chartedart-api/internal/cache"
    "github.com/nkosimano/chartedart-api/internal/config"
    "github.com/nkosimano/chartedart-api/internal/model"
    "github.com/nkosimano/chartedart-api/internal/repository"
)

// fakeMovements serves canned listings and records the paging arguments
// it was asked for.
type fakeMovements struct {
    movements []model.Movement
    movement  model.Movement
    metrics   repository.MovementMetrics
    pieces    []model.Piece
    err       error

    gotStatus model.PieceStatus
    gotLimit  uint32
    gotOffset uint32
}

func (f *fakeMovements) ListActive(_ context.Context) ([]model.Movement, error) {
    return f.movements, f.err
}

func (f *fakeMovements) GetByID(_ context.Context, movementID uint64) (model.Movement, error) {
    if f.err != nil {
        return model.Movement{}, f.err
    }
    if movementID != f.movement.ID {
        return model.Movement{}, model.ErrMovementNotFound
    }
    return f.movement, nil
}

func (f *fakeMovements) Metrics(_ context.Context, _ uint64) (repository.MovementMetrics, error) {
    return f.metrics, f.err
}

func (f *fakeMovements) ListPieces(_ context.Context, _ uint64, status model.PieceStatus, limit, offset uint32) ([]model.Piece, error) {
    f.gotStatus = status
    f.gotLimit = limit
    f.gotOffset = offset
    return f.pieces, f.err
}

func testCacheConfig() config.CacheConfig {
    return config.CacheConfig{
        Enabled:      false,
        Prefix:       "test",
        MovementsTTL: time.Minute,
        PiecesTTL:    time.Minute,
        MetricsTTL:   time.Minute,
    }
}

func TestListMovements(t *testing.T) {
    t.Run("lists active movements", func(t *testing.T) {
        repo := &fakeMovements{movements: []model.Movement{
            {ID: 3, Title: "Ocean Cleanup", Status: model.MovementStatusActive},
        }}
        h := NewMovementHandler(repo, cache.New(nil), testCacheConfig())

        c, rec := request(http.MethodGet, "/v1/movements", "", nil, nil)
        require.NoError(t, h.ListMovements(c))

        assert.Equal(t, http.StatusOK, rec.Code)
        body := decodeBody(t, rec)
        items, ok := body["items"].([]any)
        require.True(t, ok)
        assert.Len(t, items, 1)
    })

    t.Run("store failure is 500", func(t *testing.T) {
        h := NewMovementHandler(&fakeMovements{err: assert.AnError}, cache.New(nil), testCacheConfig())

        c, rec := request(http.MethodGet, "/v1/movements", "", nil, nil)
        require.NoError(t, h.ListMovements(c))
        assert.Equal(t, http.StatusInternalServerError, rec.Code)
    })
}

func TestGetMovement(t *testing.T) {
    t.Run("returns the movement with its metrics", func(t *testing.T) {
        repo := &fakeMovements{
            movement: model.Movement{ID: 3, Title: "Ocean Cleanup", Status: model.MovementStatusActive},
            metrics:  repository.MovementMetrics{MovementID: 3, TotalPieces: 100, Available: 80, Reserved: 5, Sold: 15},
        }
        h := NewMovementHandler(repo, cache.New(nil), testCacheConfig())

        c, rec := request(http.MethodGet, "/v1/movements/3", "", []string{"id"}, []string{"3"})
        require.NoError(t, h.GetMovement(c))

        assert.Equal(t, http.StatusOK, rec.Code)
        body := decodeBody(t, rec)
        metrics, ok := body["metrics"].(map[string]any)
        require.True(t, ok)
        assert.Equal(t, float64(15), metrics["sold"])
    })

    t.Run("unknown movement is 404", func(t *testing.T) {
        repo := &fakeMovements{movement: model.Movement{ID: 3}}
        h := NewMovementHandler(repo, cache.New(nil), testCacheConfig())

        c, rec := request(http.MethodGet, "/v1/movements/99", "", []string{"id"}, []string{"99"})
        require.NoError(t, h.GetMovement(c))
        assert.Equal(t, http.StatusNotFound, rec.Code)
    })

    t.Run("malformed id is 400", func(t *testing.T) {
        h := NewMovementHandler(&fakeMovements{}, cache.New(nil), testCacheConfig())

        c, rec := request(http.MethodGet, "/v1/movements/three", "", []string{"id"}, []string{"three"})
        require.NoError(t, h.GetMovement(c))
        assert.Equal(t, http.StatusBadRequest, rec.Code)
    })
}

func TestListPieces(t *testing.T) {
    t.Run("applies defaults and the status filter", func(t *testing.T) {
        repo := &fakeMovements{pieces: []model.Piece{
            {ID: 7, MovementID: 3, PieceNumber: 12, Status: model.PieceStatusAvailable},
        }}
        h := NewMovementHandler(repo, cache.New(nil), testCacheConfig())

        c, rec := request(http.MethodGet, "/v1/movements/3/pieces?status=available", "", []string{"id"}, []string{"3"})
        require.NoError(t, h.ListPieces(c))

        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, model.PieceStatusAvailable, repo.gotStatus)
        assert.Equal(t, uint32(defaultPageSize), repo.gotLimit)
        assert.Equal(t, uint32(0), repo.gotOffset)
    })

    t.Run("paginates", func(t *testing.T) {
        repo := &fakeMovements{}
        h := NewMovementHandler(repo, cache.New(nil), testCacheConfig())

        c, rec := request(http.MethodGet, "/v1/movements/3/pieces?page=3&per_page=50", "", []string{"id"}, []string{"3"})
        require.NoError(t, h.ListPieces(c))

        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, uint32(50), repo.gotLimit)
        assert.Equal(t, uint32(100), repo.gotOffset)

        body := decodeBody(t, rec)
        assert.Equal(t, float64(3), body["page"])
        assert.Equal(t, float64(50), body["per_page"])
    })

    t.Run("oversized page cannot wrap the offset", func(t *testing.T) {
        repo := &fakeMovements{}
        h := NewMovementHandler(repo, cache.New(nil), testCacheConfig())

        c, rec := request(http.MethodGet, "/v1/movements/3/pieces?page=4294967295&per_page=500", "", []string{"id"}, []string{"3"})
        require.NoError(t, h.ListPieces(c))

        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, uint32(0), repo.gotOffset, "hostile page falls back to the first page")
    })

    t.Run("rejects an unknown status filter", func(t *testing.T) {
        h := NewMovementHandler(&fakeMovements{}, cache.New(nil), testCacheConfig())

        c, rec := request(http.MethodGet, "/v1/movements/3/pieces?status=pending", "", []string{"id"}, []string{"3"})
        require.NoError(t, h.ListPieces(c))
        assert.Equal(t, http.StatusBadRequest, rec.Code)
    })
}
