package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/busbooking/internal/handler"
	"github.com/iliyamo/busbooking/internal/middleware"
	"github.com/iliyamo/busbooking/internal/model"
)

// RegisterAdmin registers the dashboard. /dashboard only needs a session;
// everything else requires the admin role.
func RegisterAdmin(e *echo.Echo, h *handler.AdminHandler) {
	e.GET("/dashboard", h.Dashboard, middleware.RequireLogin())
	e.GET("/dashboard/export", h.ExportReport, middleware.RequireRole(model.RoleAdmin))

	g := e.Group("/admin", middleware.RequireRole(model.RoleAdmin))

	// ---- Reservations ----
	g.GET("/reservations", h.ListReservations)
	g.POST("/reservations/:id/review", h.ReviewReservation)
	g.PUT("/reservations/:id/status", h.SetReservationStatus)
	g.DELETE("/reservations/:id", h.DeleteReservation)

	// ---- Collaborators ----
	g.GET("/collaborators", h.ListCollaborators)
	g.POST("/collaborators", h.CreateCollaborator)
	g.GET("/collaborators/ownership", h.Ownership)
	g.GET("/collaborators/:id", h.GetCollaborator)
	g.PUT("/collaborators/:id", h.UpdateCollaborator)
	g.DELETE("/collaborators/:id", h.DeleteCollaborator)

	// ---- Company profile ----
	g.PUT("/about", h.UpsertAbout)

	// ---- Users ----
	g.GET("/users", h.ListUsers)
	g.DELETE("/users/:id", h.DeleteUser)
	g.PUT("/users/:id/role", h.ChangeUserRole)
}
