package handler

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/labstack/echo/v4"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/service"
)

// PublicHandler serves the client side of the site. Clients never log in;
// they identify themselves with their PIN.
type PublicHandler struct {
	Reservations *service.ReservationService
	Identity     *service.IdentityService
	Directory    *service.DirectoryService
	BaseURL      string
}

// NewPublicHandler constructs a PublicHandler and panics if any dependency is nil.
func NewPublicHandler(res *service.ReservationService, id *service.IdentityService, dir *service.DirectoryService, baseURL string) *PublicHandler {
	if res == nil || id == nil || dir == nil {
		panic("nil service passed to NewPublicHandler")
	}
	return &PublicHandler{Reservations: res, Identity: id, Directory: dir, BaseURL: strings.TrimRight(baseURL, "/")}
}

// About returns the company profile shown on the home page.
func (h *PublicHandler) About(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()
	p, err := h.Directory.About(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, p)
}

// SubmitReservation stores a booking. A new client receives the PIN in the
// response; it is also emailed when mail is configured.
func (h *PublicHandler) SubmitReservation(c echo.Context) error {
	var req submitReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	out, err := h.Reservations.Submit(ctx, service.SubmitInput{
		PIN:     req.PIN,
		Contact: req.contact(),
		Form:    req.form(),
	})
	if err != nil {
		return respondError(c, err)
	}
	h.Directory.InvalidateStats()

	msg := "Solicitud enviada. Guarde su PIN para futuras reservas."
	if !out.IsNewClient {
		msg = "Solicitud enviada."
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"success":     true,
		"message":     msg,
		"pin":         out.Client.PIN,
		"new_client":  out.IsNewClient,
		"reservation": out.Reservation,
	})
}

// LookupClient lets the booking form prefill contact data from a PIN. The
// response is {success:false} for an unknown or empty PIN.
func (h *PublicHandler) LookupClient(c echo.Context) error {
	var req pinReq
	_ = c.Bind(&req)
	if strings.TrimSpace(req.PIN) == "" {
		return c.JSON(http.StatusOK, echo.Map{"success": false})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	cl, err := h.Identity.LookupByPIN(ctx, req.PIN)
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusOK, echo.Map{"success": false})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":    true,
		"name":       cl.Name,
		"last_name1": cl.LastName1,
		"last_name2": cl.LastName2,
		"phone":      cl.Phone,
		"email":      cl.Email,
	})
}

// RecoverPIN returns the PIN of the client matching both phone and email.
func (h *PublicHandler) RecoverPIN(c echo.Context) error {
	var req recoverReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	pin, err := h.Identity.RecoverPIN(ctx, req.Phone, req.Email)
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{
			"success": false,
			"message": "No encontramos un cliente con ese teléfono y correo.",
		})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "pin": pin})
}

// ProfileURL is the page a client lands on after scanning the PIN QR code.
func (h *PublicHandler) ProfileURL(pin string) string {
	return h.BaseURL + "/perfil?pin=" + url.QueryEscape(pin)
}

// PINQRCode renders a PNG QR code pointing at the profile page of a valid PIN.
func (h *PublicHandler) PINQRCode(c echo.Context) error {
	var req pinReq
	_ = c.Bind(&req)
	ctx, cancel := requestCtx(c)
	defer cancel()

	cl, err := h.Identity.LookupByPIN(ctx, req.PIN)
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false})
	}
	if err != nil {
		return respondError(c, err)
	}
	png, err := qrcode.Encode(h.ProfileURL(cl.PIN), qrcode.Medium, 256)
	if err != nil {
		return respondError(c, err)
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "no-store")
	return c.Blob(http.StatusOK, "image/png", png)
}

// Profile returns the client owning the PIN with its reservation history.
func (h *PublicHandler) Profile(c echo.Context) error {
	var req pinReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	p, err := h.Reservations.Profile(ctx, req.PIN)
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusNotFound, echo.Map{"success": false})
	}
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success":      true,
		"client":       p.Client,
		"reservations": p.Reservations,
	})
}

// EditReservation replaces the form fields of a pending reservation.
func (h *PublicHandler) EditReservation(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req editReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	r, err := h.Reservations.Edit(ctx, id, req.PIN, req.form())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, r)
}

// CancelReservation cancels a pending reservation of the PIN's owner.
func (h *PublicHandler) CancelReservation(c echo.Context) error {
	id, ok := parseID(c)
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var req pinReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	r, err := h.Reservations.Cancel(ctx, id, model.NormalizePIN(req.PIN))
	if err != nil {
		return respondError(c, err)
	}
	h.Directory.InvalidateStats()
	return c.JSON(http.StatusOK, r)
}
