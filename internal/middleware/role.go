package middleware // middleware provides shared request processing for handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// Paths the gates redirect to.
const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// RequireLogin redirects anonymous requests to the login page with a flash
// message instead of failing them.
func RequireLogin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if _, ok := CurrentSession(c); !ok {
				SetFlash(c, "Debe iniciar sesión para continuar.")
				return c.Redirect(http.StatusSeeOther, LoginPath)
			}
			return next(c)
		}
	}
}

// RequireRole returns a middleware function that enforces that the
// logged-in user has one of the specified roles.  Denial is soft: an
// anonymous request is sent to the login page and a logged-in user without
// the role is sent back to the dashboard, both with a 303 and a flash
// message.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	// Build a set of allowed roles for constant-time lookups.
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			s, ok := CurrentSession(c)
			if !ok {
				SetFlash(c, "Debe iniciar sesión para continuar.")
				return c.Redirect(http.StatusSeeOther, LoginPath)
			}
			if !allowed[s.Role] {
				SetFlash(c, "Acceso restringido a administradores.")
				return c.Redirect(http.StatusSeeOther, DashboardPath)
			}
			return next(c)
		}
	}
}
