package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/config"
	"github.com/iliyamo/busbooking/internal/middleware"
	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/queue"
	"github.com/iliyamo/busbooking/internal/repository"
	"github.com/iliyamo/busbooking/internal/service"
	"github.com/iliyamo/busbooking/internal/storage"
	"github.com/iliyamo/busbooking/internal/testutil"
	"github.com/iliyamo/busbooking/internal/utils"
)

const testSecret = "handler-secret"

type app struct {
	e      *echo.Echo
	events *queue.RecordingPublisher
}

// newApp wires the handlers the way the server does, on SQLite and without
// Redis, and registers the routes locally to avoid importing router.
func newApp(t *testing.T) *app {
	t.Helper()
	db := testutil.NewDB(t)
	log := zap.NewNop()
	events := &queue.RecordingPublisher{}

	clients := repository.NewClientRepo(db)
	resRepo := repository.NewReservationRepo(db)
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	identity := service.NewIdentityService(db, clients, service.NewPINGenerator(), events, log)
	res := service.NewReservationService(db, clients, resRepo, identity, events, log)
	dir := service.NewDirectoryService(repository.NewCollaboratorRepo(db), repository.NewAboutRepo(db),
		clients, resRepo, users, storage.NewLocalStore(t.TempDir(), "/static/uploads"), time.Minute, log)
	accounts := service.NewAccountService(users, tokens, 4, log)

	cache := middleware.NewResponseCache(config.CacheConfig{}, nil, log)
	pub := NewPublicHandler(res, identity, dir, "http://localhost:8080/")
	adm := NewAdminHandler(res, dir, accounts, cache)
	auth := NewAuthHandler(config.AuthConfig{JWTSecret: testSecret, AccessTTLMin: 5, RefreshTTLDays: 1}, accounts, tokens, log)

	e := echo.New()
	e.Use(middleware.Session(testSecret))
	e.POST("/api/reservations", pub.SubmitReservation)
	e.PUT("/api/reservations/:id", pub.EditReservation)
	e.POST("/api/reservations/:id/cancel", pub.CancelReservation)
	e.GET("/api/clients/lookup", pub.LookupClient)
	e.POST("/api/clients/recover", pub.RecoverPIN)
	e.GET("/api/clients/qr", pub.PINQRCode)
	e.POST("/api/profile", pub.Profile)
	e.GET("/api/about", pub.About)

	e.POST("/auth/register", auth.Register)
	e.POST("/auth/login", auth.Login)
	e.POST("/auth/refresh", auth.Refresh)
	e.POST("/auth/logout", auth.Logout)
	e.GET("/auth/me", auth.Me, middleware.RequireLogin())

	e.GET("/dashboard", adm.Dashboard, middleware.RequireLogin())
	g := e.Group("/admin", middleware.RequireRole(model.RoleAdmin))
	g.GET("/reservations", adm.ListReservations)
	g.POST("/reservations/:id/review", adm.ReviewReservation)
	g.PUT("/reservations/:id/status", adm.SetReservationStatus)
	g.DELETE("/reservations/:id", adm.DeleteReservation)
	g.GET("/export", adm.ExportReport)
	g.POST("/collaborators", adm.CreateCollaborator)
	g.GET("/collaborators/ownership", adm.Ownership)
	g.PUT("/about", adm.UpsertAbout)
	g.GET("/users", adm.ListUsers)
	g.DELETE("/users/:id", adm.DeleteUser)
	return &app{e: e, events: events}
}

func (a *app) do(t *testing.T, method, path string, body any, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for _, ck := range cookies {
		req.AddCookie(ck)
	}
	rec := httptest.NewRecorder()
	a.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func adminCookie(t *testing.T) *http.Cookie {
	t.Helper()
	tok, err := utils.NewSessionToken(testSecret, model.Session{UserID: 1, Username: "root", Role: model.RoleAdmin}, 5)
	require.NoError(t, err)
	return &http.Cookie{Name: middleware.SessionCookie, Value: tok.Token}
}

func booking() map[string]any {
	return map[string]any{
		"name":             "Ana",
		"last_name1":       "Mora",
		"phone":            "8888-1111",
		"email":            "Ana@Example.com",
		"service_category": "Special Services",
		"day":              5,
		"month":            "3",
		"year":             2024,
		"origin":           "San José",
		"destination":      "Limón",
		"capacity":         30,
		"needs_pickup":     true,
		"pickup_locations": "Parque Central",
	}
}

func submit(t *testing.T, a *app, body map[string]any) (pin string, id uint64) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/reservations", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	r := out["reservation"].(map[string]any)
	return out["pin"].(string), uint64(r["id"].(float64))
}

func TestSubmitAndLookup(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodPost, "/api/reservations", booking())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, true, out["new_client"])
	pin := out["pin"].(string)
	assert.Len(t, pin, service.PINLength)

	r := out["reservation"].(map[string]any)
	assert.Equal(t, "05-03-2024", r["date"])
	assert.Equal(t, float64(30), r["capacity_needed"])
	assert.Equal(t, "Parque Central", r["pickup_locations"])
	assert.Equal(t, string(model.StatusPending), r["status"])

	rec = a.do(t, http.MethodGet, "/api/clients/lookup?pin="+strings.ToLower(pin), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode(t, rec)
	assert.Equal(t, true, got["success"])
	assert.Equal(t, "Ana", got["name"])
	assert.Equal(t, "ana@example.com", got["email"])

	for _, q := range []string{"", "?pin=", "?pin=ZZZZZZZZ"} {
		rec = a.do(t, http.MethodGet, "/api/clients/lookup"+q, nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, map[string]any{"success": false}, decode(t, rec))
	}
	assert.Equal(t, []string{queue.TypeClientRegistered, queue.TypeReservationSubmitted}, a.events.Types())
}

func TestSubmitDuplicatePhone(t *testing.T) {
	a := newApp(t)
	submit(t, a, booking())

	other := booking()
	other["name"] = "Luis"
	other["email"] = "luis@example.com"
	rec := a.do(t, http.MethodPost, "/api/reservations", other)
	assert.Equal(t, http.StatusConflict, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, "duplicate_contact", out["error"])
	assert.Equal(t, "phone", out["field"])
}

func TestSubmitUnknownCategory(t *testing.T) {
	a := newApp(t)
	body := booking()
	body["service_category"] = "Cruise"
	rec := a.do(t, http.MethodPost, "/api/reservations", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "service_category", decode(t, rec)["field"])
}

func TestProfileEditCancel(t *testing.T) {
	a := newApp(t)
	pin, id := submit(t, a, booking())
	path := "/api/reservations/" + itoa(id)

	edit := booking()
	edit["pin"] = pin
	edit["service_category"] = "International Trips"
	edit["departure_date"] = "2024-05-01"
	edit["trip_description"] = "Panamá"
	edit["country"] = "Panamá"
	edit["trip_duration"] = "x"
	rec := a.do(t, http.MethodPut, path, edit)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r := decode(t, rec)
	assert.Equal(t, "2024-05-01", r["date"])
	assert.Equal(t, "Panamá", r["destination"])
	assert.Equal(t, float64(0), r["details"].(map[string]any)["trip_duration"])

	// another PIN cannot touch it
	rec = a.do(t, http.MethodPost, path+"/cancel", map[string]any{"pin": "AAAAAAAA"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, path+"/cancel", map[string]any{"pin": pin})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	r = decode(t, rec)
	assert.Equal(t, string(model.StatusCancelled), r["status"])
	assert.NotEmpty(t, r["cancelled_at"])

	rec = a.do(t, http.MethodPost, path+"/cancel", map[string]any{"pin": pin})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = a.do(t, http.MethodPut, path, edit)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/profile", map[string]any{"pin": pin})
	require.Equal(t, http.StatusOK, rec.Code)
	p := decode(t, rec)
	assert.Len(t, p["reservations"], 1)

	rec = a.do(t, http.MethodPost, "/api/profile", map[string]any{"pin": "NOPE"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])
}

func TestRecoverAndQRCode(t *testing.T) {
	a := newApp(t)
	pin, _ := submit(t, a, booking())

	rec := a.do(t, http.MethodPost, "/api/clients/recover", map[string]any{"phone": "8888-1111", "email": "ana@example.com"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pin, decode(t, rec)["pin"])

	rec = a.do(t, http.MethodPost, "/api/clients/recover", map[string]any{"phone": "8888-1111", "email": "other@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, false, decode(t, rec)["success"])

	rec = a.do(t, http.MethodGet, "/api/clients/qr?pin="+pin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")))

	rec = a.do(t, http.MethodGet, "/api/clients/qr?pin=ZZZZZZZZ", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminGateRedirects(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodGet, "/admin/reservations", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, middleware.LoginPath, rec.Header().Get(echo.HeaderLocation))

	tok, err := utils.NewSessionToken(testSecret, model.Session{UserID: 7, Username: "eve", Role: model.RoleUser}, 5)
	require.NoError(t, err)
	rec = a.do(t, http.MethodDelete, "/admin/reservations/1", nil, &http.Cookie{Name: middleware.SessionCookie, Value: tok.Token})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, middleware.DashboardPath, rec.Header().Get(echo.HeaderLocation))
}

func TestAdminReservationWorkflow(t *testing.T) {
	a := newApp(t)
	_, id := submit(t, a, booking())
	admin := adminCookie(t)
	path := "/admin/reservations/" + itoa(id)

	rec := a.do(t, http.MethodGet, "/admin/reservations?status=pending", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Ana Mora", list[0]["client_name"])

	rec = a.do(t, http.MethodGet, "/admin/reservations?status=bogus", nil, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, path+"/review", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["changed"])
	rec = a.do(t, http.MethodPost, path+"/review", nil, admin)
	assert.Equal(t, false, decode(t, rec)["changed"])

	rec = a.do(t, http.MethodPut, path+"/status", map[string]any{"status": "Archivada"}, admin)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = a.do(t, http.MethodPut, path+"/status", map[string]any{"status": "Aprobada"}, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, string(model.StatusApproved), decode(t, rec)["status"])

	rec = a.do(t, http.MethodGet, "/admin/export", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(rec.Body.String(), "REPORTE DE RESERVAS\n"))
	assert.Contains(t, rec.Body.String(), "Destino: Limón")

	rec = a.do(t, http.MethodGet, "/dashboard", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	stats := decode(t, rec)["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["reservations"])
	assert.Equal(t, float64(1), stats["clients"])

	rec = a.do(t, http.MethodDelete, path, nil, admin)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = a.do(t, http.MethodDelete, path, nil, admin)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCollaboratorsAndAbout(t *testing.T) {
	a := newApp(t)
	admin := adminCookie(t)

	rec := a.do(t, http.MethodPost, "/admin/collaborators", map[string]any{
		"name":       "Jorge",
		"last_name1": "Solís",
		"ownership":  "Propio",
		"buses": []map[string]any{
			{"brand": "Hino", "plate": "ab-123", "year": 2018, "capacity": "40"},
			{"brand": "Yutong", "plate": "CD-456", "year": "2020", "capacity": 52},
		},
	}, admin)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	col := decode(t, rec)
	buses := col["buses"].([]any)
	require.Len(t, buses, 2)
	assert.Equal(t, "AB-123", buses[0].(map[string]any)["plate"])

	rec = a.do(t, http.MethodGet, "/admin/collaborators/ownership", nil, admin)
	require.Equal(t, http.StatusOK, rec.Code)
	totals := decode(t, rec)["totals"].([]any)
	require.Len(t, totals, 1)
	assert.Equal(t, float64(92), totals[0].(map[string]any)["total_capacity"])

	rec = a.do(t, http.MethodPut, "/admin/about", map[string]any{"mission": "Servir", "email": "INFO@bus.cr"}, admin)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodGet, "/api/about", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	about := decode(t, rec)
	assert.Equal(t, "Servir", about["mission"])
	assert.Equal(t, "info@bus.cr", about["email"])
}

func TestRegisterLoginRefreshLogout(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodPost, "/auth/register", map[string]any{
		"username":         "maria",
		"email":            "maria@example.com",
		"password":         "secreto123",
		"confirm_password": "secreto12",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "confirm_password", decode(t, rec)["field"])

	rec = a.do(t, http.MethodPost, "/auth/register", map[string]any{
		"username":         "maria",
		"email":            "maria@example.com",
		"password":         "secreto123",
		"confirm_password": "secreto123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = a.do(t, http.MethodPost, "/auth/login", map[string]any{"email": "maria@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/auth/login", map[string]any{"email": "MARIA@example.com", "password": "secreto123"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	cookies := map[string]*http.Cookie{}
	for _, ck := range rec.Result().Cookies() {
		cookies[ck.Name] = ck
		assert.True(t, ck.HttpOnly)
	}
	require.Contains(t, cookies, middleware.SessionCookie)
	require.Contains(t, cookies, middleware.RefreshCookie)

	rec = a.do(t, http.MethodGet, "/auth/me", nil, cookies[middleware.SessionCookie])
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode(t, rec)
	assert.Equal(t, "maria", me["username"])
	assert.Equal(t, model.RoleUser, me["role"])

	// a plain user is sent back to the dashboard
	rec = a.do(t, http.MethodGet, "/admin/users", nil, cookies[middleware.SessionCookie])
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	// refresh rotates the token: the old one stops working
	oldRefresh := cookies[middleware.RefreshCookie]
	rec = a.do(t, http.MethodPost, "/auth/refresh", nil, oldRefresh)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec = a.do(t, http.MethodPost, "/auth/refresh", nil, oldRefresh)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = a.do(t, http.MethodPost, "/auth/logout", nil, cookies[middleware.SessionCookie])
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestAdminCannotDeleteSelf(t *testing.T) {
	a := newApp(t)
	rec := a.do(t, http.MethodDelete, "/admin/users/1", nil, adminCookie(t))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func itoa(id uint64) string { return strconv.FormatUint(id, 10) }
