package router // package router defines how HTTP routes are registered for the API

import (
	"database/sql"
	"path/filepath"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/busbooking/internal/handler"
	"github.com/iliyamo/busbooking/internal/middleware"
)

// RegisterRoutes registers the health check and the PWA shell assets.
func RegisterRoutes(e *echo.Echo, db *sql.DB, staticDir string) {
	e.GET("/healthz", handler.Health(db))
	e.File("/manifest.json", filepath.Join(staticDir, "manifest.json"))
	e.File("/sw.js", filepath.Join(staticDir, "sw.js"))
	e.Static("/static", staticDir)
}

// RegisterAuth registers the dashboard login endpoints under /auth. They
// need no session; /auth/me reports the current one.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout)
	g.GET("/csrf", a.CSRFToken)
	g.GET("/me", a.Me, middleware.RequireLogin())
}
