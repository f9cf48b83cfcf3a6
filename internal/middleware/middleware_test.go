package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/config"
	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/utils"
)

const testSecret = "test-secret"

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, rdb
}

func sessionCookie(t *testing.T, s model.Session) *http.Cookie {
	t.Helper()
	tok, err := utils.NewSessionToken(testSecret, s, 5)
	require.NoError(t, err)
	return &http.Cookie{Name: SessionCookie, Value: tok.Token}
}

func TestTokenBucketBlocksAfterCapacity(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.RateLimitConfig{
		Enabled:        true,
		Capacity:       2,
		RefillTokens:   1,
		RefillInterval: time.Minute,
		TTL:            10 * time.Minute,
		KeyStrategy:    "ip_route",
		Prefix:         "rl",
	}
	e := echo.New()
	e.GET("/api/clients/lookup", func(c echo.Context) error { return c.String(http.StatusOK, "ok") },
		NewTokenBucket(cfg, rdb, zap.NewNop()))

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/clients/lookup?pin=X", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		last = httptest.NewRecorder()
		e.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
	assert.Equal(t, "2", last.Header().Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, last.Header().Get("Retry-After"))
	assert.Contains(t, last.Body.String(), "too_many_requests")

	// another client address has its own bucket
	req := httptest.NewRequest(http.MethodGet, "/api/clients/lookup?pin=X", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestBucketKeyStrategies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/clients/lookup", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/api/clients/lookup")

	key := func(strategy string) string {
		return bucketKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c)
	}
	assert.Equal(t, "rl:ip:10.0.0.9", key("ip"))
	assert.Equal(t, "rl:ip:10.0.0.9:route:GET /api/clients/lookup", key("IP_ROUTE"))
	assert.Equal(t, "rl:user:anon", key("user"))
	assert.Equal(t, "rl:ip:10.0.0.9:user:anon:route:GET /api/clients/lookup", key("bogus"))
}

func TestTokenBucketFailsOpenWithoutRedis(t *testing.T) {
	mr, rdb := newRedis(t)
	mr.Close()
	cfg := config.RateLimitConfig{Enabled: true, Capacity: 1, RefillTokens: 1, RefillInterval: time.Second, TTL: time.Minute}
	e := echo.New()
	e.GET("/x", func(c echo.Context) error { return c.NoContent(http.StatusOK) }, NewTokenBucket(cfg, rdb, zap.NewNop()))
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestResponseCacheHitAndInvalidate(t *testing.T) {
	_, rdb := newRedis(t)
	cfg := config.CacheConfig{
		Enabled:     true,
		TTL:         time.Minute,
		KeyStrategy: "route_query",
		Prefix:      "cache",
		Methods:     map[string]bool{http.MethodGet: true},
	}
	rc := NewResponseCache(cfg, rdb, zap.NewNop())
	calls := 0
	e := echo.New()
	e.GET("/api/about", func(c echo.Context) error {
		calls++
		return c.JSON(http.StatusOK, echo.Map{"calls": calls})
	}, rc.Middleware())

	get := func() *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/about", nil))
		return rec
	}

	first := get()
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	second := get()
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Contains(t, second.Header().Get(echo.HeaderContentType), echo.MIMEApplicationJSON)
	assert.Equal(t, 1, calls)

	rc.Invalidate(context.Background(), "/api/about")
	third := get()
	assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
	assert.Equal(t, 2, calls)
}

func TestResponseCacheSkipsErrors(t *testing.T) {
	_, rdb := newRedis(t)
	rc := NewResponseCache(config.CacheConfig{Enabled: true, Prefix: "cache"}, rdb, zap.NewNop())
	e := echo.New()
	e.GET("/broken", func(c echo.Context) error {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "boom"})
	}, rc.Middleware())
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/broken", nil))
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	}
}

func gatedEcho() *echo.Echo {
	e := echo.New()
	e.Use(Session(testSecret))
	ok := func(c echo.Context) error {
		s, _ := CurrentSession(c)
		return c.String(http.StatusOK, s.Username)
	}
	e.GET("/dashboard", ok, RequireLogin())
	e.GET("/admin/reservations", ok, RequireRole(model.RoleAdmin))
	return e
}

func TestRequireRoleRedirects(t *testing.T) {
	e := gatedEcho()

	// anonymous
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/reservations", nil))
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get(echo.HeaderLocation))
	assert.Contains(t, rec.Header().Get("Set-Cookie"), flashCookie)

	// logged in without the role
	req := httptest.NewRequest(http.MethodGet, "/admin/reservations", nil)
	req.AddCookie(sessionCookie(t, model.Session{UserID: 2, Username: "bob", Role: model.RoleUser}))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, DashboardPath, rec.Header().Get(echo.HeaderLocation))

	// admin
	req = httptest.NewRequest(http.MethodGet, "/admin/reservations", nil)
	req.AddCookie(sessionCookie(t, model.Session{UserID: 1, Username: "root", Role: model.RoleAdmin}))
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "root", rec.Body.String())
}

func TestSessionIgnoresForgedToken(t *testing.T) {
	e := gatedEcho()
	tok, err := utils.NewSessionToken("other-secret", model.Session{UserID: 1, Role: model.RoleAdmin}, 5)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, LoginPath, rec.Header().Get(echo.HeaderLocation))
}

func TestFlashRoundTrip(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	SetFlash(c, "Reserva cancelada: sí")

	res := rec.Result()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	for _, ck := range res.Cookies() {
		req.AddCookie(ck)
	}
	c = e.NewContext(req, httptest.NewRecorder())
	assert.Equal(t, "Reserva cancelada: sí", PopFlash(c))
}

func TestCSRFExemptsJSON(t *testing.T) {
	e := echo.New()
	e.Use(CSRF([]byte(strings.Repeat("k", 32)), false))
	e.POST("/submit", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) })

	req := httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(`{"a":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	form := url.Values{"a": {"1"}}
	req = httptest.NewRequest(http.MethodPost, "/submit", strings.NewReader(form.Encode()))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationForm)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid csrf token")
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	e := echo.New()
	e.Use(RequestLogger(zap.NewNop()))
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Len(t, rec.Header().Get(echo.HeaderXRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set(echo.HeaderXRequestID, "abc")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(echo.HeaderXRequestID))
}
