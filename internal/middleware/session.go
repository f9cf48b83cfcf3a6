package middleware

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/utils"
)

// Cookie names used by the dashboard.
const (
	SessionCookie = "bb_session"
	RefreshCookie = "bb_refresh"
)

const sessionKey = "session"

// Session returns an Echo middleware that reads the session token from the
// session cookie (or an Authorization Bearer header) and stores the decoded
// model.Session in the context. Requests without a valid token pass through
// anonymously; the role gates decide what to do with them.
func Session(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := ""
			if ck, err := c.Cookie(SessionCookie); err == nil {
				raw = ck.Value
			} else if auth := c.Request().Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
				raw = strings.TrimPrefix(auth, "Bearer ")
			}
			if raw != "" {
				if s, err := utils.ParseSessionToken(secret, raw); err == nil {
					c.Set(sessionKey, s)
				}
			}
			return next(c)
		}
	}
}

// CurrentSession returns the session stored by Session.
func CurrentSession(c echo.Context) (model.Session, bool) {
	s, ok := c.Get(sessionKey).(model.Session)
	return s, ok
}
