package middleware

// identity.go defines helpers shared across middleware files.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// userID returns the id of the logged-in user as a string, or "anon".
func userID(c echo.Context) string {
	if s, ok := CurrentSession(c); ok {
		return strconv.FormatUint(s.UserID, 10)
	}
	return "anon"
}
