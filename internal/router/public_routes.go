package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/busbooking/internal/handler"
)

// RegisterPublic registers the client facing API under /api. Clients
// identify themselves with their PIN, so nothing here needs a session.
// limiter guards the endpoints that accept a bare PIN or contact pair, and
// cache serves the company profile.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, limiter, cache echo.MiddlewareFunc) {
	g := e.Group("/api")
	g.GET("/about", p.About, cache)

	g.POST("/reservations", p.SubmitReservation)
	g.PUT("/reservations/:id", p.EditReservation)
	g.POST("/reservations/:id/cancel", p.CancelReservation)

	g.GET("/clients/lookup", p.LookupClient, limiter)
	g.POST("/clients/recover", p.RecoverPIN, limiter)
	g.GET("/clients/qr", p.PINQRCode, limiter)
	g.POST("/profile", p.Profile, limiter)
}
