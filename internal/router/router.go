// Package router wires HTTP routes to their handlers.
package router

import (
    "github.com/labstack/echo/v4"

    "github.com/nkosimano/chartedart-api/internal/handler"
    "github.com/nkosimano/chartedart-api/internal/middleware"
)

// RegisterRoutes registers every route on the provided Echo instance.
// Listing endpoints are public and served through the cache; reservation
// endpoints require a holder token and always hit the engine directly.
func RegisterRoutes(e *echo.Echo, movements *handler.MovementHandler, reservations *handler.ReservationHandler, jwtSecret string) {
    e.GET("/healthz", handler.Health)

    // Public browse surface.  Guests can inspect movements and piece
    // availability before signing in to claim one.
    e.GET("/v1/movements", movements.ListMovements)
    e.GET("/v1/movements/:id", movements.GetMovement)
    e.GET("/v1/movements/:id/pieces", movements.ListPieces)

    // Holder surface: everything that creates or settles a claim.
    auth := e.Group("/v1")
    auth.Use(middleware.HolderAuth(jwtSecret))
    auth.POST("/pieces/:id/reservations", reservations.Reserve)
    auth.DELETE("/reservations/:id", reservations.Cancel)
    auth.POST("/reservations/:id/complete", reservations.Complete)
    auth.GET("/my-reservations", reservations.MyReservations)
}
