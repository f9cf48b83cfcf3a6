package handler // handler defines http handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/busbooking/internal/middleware"
	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/service"
)

// requestTimeout bounds the storage work of a single request.
const requestTimeout = 5 * time.Second

func requestCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// parseID reads the :id path parameter.
func parseID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id > 0
}

// session returns the caller's session; routes behind the role gate always
// have one.
func session(c echo.Context) model.Session {
	s, _ := middleware.CurrentSession(c)
	return s
}

// respondError converts a service error into a JSON response. Unknown
// errors are logged by the request logger and reported without detail.
func respondError(c echo.Context, err error) error {
	var (
		dup *service.DuplicateContactError
		ve  *service.ValidationError
	)
	switch {
	case errors.As(err, &dup):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":   "duplicate_contact",
			"field":   dup.Field,
			"message": duplicateMessage(dup.Field),
		})
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation", "field": ve.Field, "message": ve.Message})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrInvalidState):
		return c.JSON(http.StatusConflict, echo.Map{"error": "invalid_state", "message": "La reserva ya no está pendiente."})
	case errors.Is(err, service.ErrInvalidStatus):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrSelfAction):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "operation not allowed on own account"})
	case errors.Is(err, service.ErrInvalidCredentials):
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	case errors.Is(err, context.DeadlineExceeded):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "timeout"})
	default:
		c.Set(middleware.ErrorKey, err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

func duplicateMessage(field string) string {
	if field == "email" {
		return "El correo electrónico ya está registrado. Use su PIN o recupérelo."
	}
	return "El número de teléfono ya está registrado. Use su PIN o recupérelo."
}
