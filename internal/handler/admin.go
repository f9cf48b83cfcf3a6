package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/busbooking/internal/middleware"
	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/repository"
	"github.com/iliyamo/busbooking/internal/service"
)

// AboutRoute is the cached public route invalidated when the profile changes.
const AboutRoute = "/api/about"

// AdminHandler serves the dashboard. Every route is behind the role gate;
// the services check the session again.
type AdminHandler struct {
	Reservations *service.ReservationService
	Directory    *service.DirectoryService
	Accounts     *service.AccountService
	Cache        *middleware.ResponseCache
}

// NewAdminHandler constructs an AdminHandler and panics if a service is nil.
func NewAdminHandler(res *service.ReservationService, dir *service.DirectoryService, acc *service.AccountService, cache *middleware.ResponseCache) *AdminHandler {
	if res == nil || dir == nil || acc == nil {
		panic("nil service passed to NewAdminHandler")
	}
	return &AdminHandler{Reservations: res, Directory: dir, Accounts: acc, Cache: cache}
}

// Dashboard returns the counters, the current user and any pending flash.
func (h *AdminHandler) Dashboard(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	st, err := h.Directory.Stats(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"user":  session(c),
		"stats": st,
		"flash": middleware.PopFlash(c),
	})
}

// ExportReport downloads the plain text reservation report.
func (h *AdminHandler) ExportReport(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	var buf bytes.Buffer
	if err := h.Reservations.ExportReport(ctx, session(c), &buf); err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="reservas.txt"`)
	return c.Blob(http.StatusOK, echo.MIMETextPlainCharsetUTF8, buf.Bytes())
}

// ----- reservations -----

// ListReservations supports ?status=, ?category= and ?client_id= filters.
func (h *AdminHandler) ListReservations(c echo.Context) error {
	var f repository.ReservationFilter
	if s := c.QueryParam("status"); s != "" {
		st, err := model.ParseStatus(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid status"})
		}
		f.Status = st
	}
	if s := c.QueryParam("category"); s != "" {
		cat, err := model.ParseCategory(s)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid category"})
		}
		f.Category = cat
	}
	if s := c.QueryParam("client_id"); s != "" {
		id, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid client_id"})
		}
		f.ClientID = id
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	list, err := h.Reservations.ListAll(ctx, session(c), f)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// ReviewReservation marks a pending reservation as reviewed. Reviewing one
// that already left the pending state is not an error.
func (h *AdminHandler) ReviewReservation(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	changed, err := h.Reservations.MarkReviewed(ctx, session(c), id)
	if err != nil {
		return respondError(c, err)
	}
	if changed {
		h.Directory.InvalidateStats()
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "changed": changed})
}

type statusReq struct {
	Status string `json:"status" form:"status"`
}

// SetReservationStatus overwrites the status with any known label.
func (h *AdminHandler) SetReservationStatus(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req statusReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	r, err := h.Reservations.SetStatus(ctx, session(c), id, req.Status)
	if err != nil {
		return respondError(c, err)
	}
	h.Directory.InvalidateStats()
	return c.JSON(http.StatusOK, r)
}

// DeleteReservation removes a reservation.
func (h *AdminHandler) DeleteReservation(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Reservations.Delete(ctx, session(c), id); err != nil {
		return respondError(c, err)
	}
	h.Directory.InvalidateStats()
	return c.NoContent(http.StatusNoContent)
}

// ----- collaborators -----

type busReq struct {
	Brand       string     `json:"brand"`
	Plate       string     `json:"plate"`
	Year        flexString `json:"year"`
	Capacity    flexString `json:"capacity"`
	ServiceType string     `json:"service_type"`
}

type collaboratorReq struct {
	Name        string   `json:"name" form:"name"`
	LastName1   string   `json:"last_name1" form:"last_name1"`
	LastName2   string   `json:"last_name2" form:"last_name2"`
	PhoneFixed  string   `json:"phone_fixed" form:"phone_fixed"`
	Mobile      string   `json:"mobile" form:"mobile"`
	Email       string   `json:"email" form:"email"`
	LicenseType string   `json:"license_type" form:"license_type"`
	Ownership   string   `json:"ownership" form:"ownership"`
	Buses       []busReq `json:"buses" form:"-"`
}

func (r collaboratorReq) collaborator() (model.Collaborator, error) {
	col := model.Collaborator{
		Name:        r.Name,
		LastName1:   r.LastName1,
		LastName2:   r.LastName2,
		PhoneFixed:  r.PhoneFixed,
		Mobile:      r.Mobile,
		Email:       r.Email,
		LicenseType: r.LicenseType,
		Ownership:   r.Ownership,
		Buses:       make([]model.Bus, 0, len(r.Buses)),
	}
	for _, b := range r.Buses {
		year, err := atoiOrZero(string(b.Year))
		if err != nil {
			return col, &service.ValidationError{Field: "year", Message: "must be a number"}
		}
		capacity, err := atoiOrZero(string(b.Capacity))
		if err != nil {
			return col, &service.ValidationError{Field: "capacity", Message: "must be a number"}
		}
		col.Buses = append(col.Buses, model.Bus{
			Brand:       b.Brand,
			Plate:       b.Plate,
			Year:        year,
			Capacity:    capacity,
			ServiceType: b.ServiceType,
		})
	}
	return col, nil
}

func atoiOrZero(s string) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// bindCollaborator accepts JSON or a multipart form. In the multipart case
// the buses travel as a JSON array in the "buses" field next to an optional
// "photo" file.
func bindCollaborator(c echo.Context) (model.Collaborator, *service.Upload, func(), error) {
	noop := func() {}
	var req collaboratorReq
	if err := c.Bind(&req); err != nil {
		return model.Collaborator{}, nil, noop, &service.ValidationError{Field: "body", Message: "invalid body"}
	}
	if raw := c.FormValue("buses"); raw != "" && req.Buses == nil {
		if err := json.Unmarshal([]byte(raw), &req.Buses); err != nil {
			return model.Collaborator{}, nil, noop, &service.ValidationError{Field: "buses", Message: "invalid list"}
		}
	}
	col, err := req.collaborator()
	if err != nil {
		return col, nil, noop, err
	}
	up, closeFn, err := formUpload(c, "photo")
	return col, up, closeFn, err
}

// formUpload opens an optional multipart file field.
func formUpload(c echo.Context, field string) (*service.Upload, func(), error) {
	noop := func() {}
	if !strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		return nil, noop, nil
	}
	fh, err := c.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, noop, nil
	}
	if err != nil {
		return nil, noop, &service.ValidationError{Field: field, Message: "invalid upload"}
	}
	f, err := fh.Open()
	if err != nil {
		return nil, noop, &service.ValidationError{Field: field, Message: "invalid upload"}
	}
	return &service.Upload{Filename: fh.Filename, Body: f}, func() { _ = f.Close() }, nil
}

// CreateCollaborator stores a collaborator with its fleet and optional photo.
func (h *AdminHandler) CreateCollaborator(c echo.Context) error {
	col, photo, done, err := bindCollaborator(c)
	defer done()
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Directory.CreateCollaborator(ctx, session(c), col, photo)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

// ListCollaborators returns every collaborator with its buses.
func (h *AdminHandler) ListCollaborators(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	list, err := h.Directory.ListCollaborators(ctx, session(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// GetCollaborator returns one collaborator.
func (h *AdminHandler) GetCollaborator(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	col, err := h.Directory.GetCollaborator(ctx, session(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, col)
}

// UpdateCollaborator overwrites a collaborator and replaces its fleet.
func (h *AdminHandler) UpdateCollaborator(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	col, photo, done, err := bindCollaborator(c)
	defer done()
	if err != nil {
		return respondError(c, err)
	}
	col.ID = id
	ctx, cancel := requestCtx(c)
	defer cancel()
	out, err := h.Directory.UpdateCollaborator(ctx, session(c), col, photo)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// DeleteCollaborator removes a collaborator and its buses.
func (h *AdminHandler) DeleteCollaborator(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Directory.DeleteCollaborator(ctx, session(c), id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// Ownership returns the fleet summary per collaborator and per ownership label.
func (h *AdminHandler) Ownership(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	rows, totals, err := h.Directory.Ownership(ctx, session(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"collaborators": rows, "totals": totals})
}

// ----- company profile -----

type aboutReq struct {
	Mission       string `json:"mission" form:"mission"`
	Vision        string `json:"vision" form:"vision"`
	PhoneAdmin    string `json:"phone_admin" form:"phone_admin"`
	MobileAdmin   string `json:"mobile_admin" form:"mobile_admin"`
	MobileService string `json:"mobile_service" form:"mobile_service"`
	Email         string `json:"email" form:"email"`
	Description   string `json:"description" form:"description"`
}

// UpsertAbout saves the company profile and drops the cached public copy.
func (h *AdminHandler) UpsertAbout(c echo.Context) error {
	var req aboutReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	logo, done, err := formUpload(c, "logo")
	defer done()
	if err != nil {
		return respondError(c, err)
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Directory.UpsertAbout(ctx, session(c), model.CompanyProfile{
		Mission:       req.Mission,
		Vision:        req.Vision,
		PhoneAdmin:    req.PhoneAdmin,
		MobileAdmin:   req.MobileAdmin,
		MobileService: req.MobileService,
		Email:         req.Email,
		Description:   req.Description,
	}, logo)
	if err != nil {
		return respondError(c, err)
	}
	h.Cache.Invalidate(ctx, AboutRoute)
	return c.JSON(http.StatusOK, p)
}

// ----- users -----

// ListUsers returns every dashboard account.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	list, err := h.Accounts.ListUsers(ctx, session(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, list)
}

// DeleteUser removes an account other than the caller's.
func (h *AdminHandler) DeleteUser(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Accounts.DeleteUser(ctx, session(c), id); err != nil {
		return respondError(c, err)
	}
	h.Directory.InvalidateStats()
	return c.NoContent(http.StatusNoContent)
}

type roleReq struct {
	Role string `json:"role" form:"role"`
}

// ChangeUserRole sets the role of an account.
func (h *AdminHandler) ChangeUserRole(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req roleReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()
	if err := h.Accounts.ChangeRole(ctx, session(c), id, req.Role); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}
