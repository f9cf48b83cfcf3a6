package middleware

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/config"
)

// cachedResponse is what gets stored in Redis for one request key.
type cachedResponse struct {
	Status int         `json:"s"`
	Header http.Header `json:"h"`
	Body   []byte      `json:"b"`
}

// teeWriter forwards the response and keeps a copy of the first limit bytes.
type teeWriter struct {
	http.ResponseWriter
	status    int
	body      bytes.Buffer
	limit     int
	truncated bool
}

func (w *teeWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *teeWriter) Write(b []byte) (int, error) {
	if !w.truncated {
		if w.limit > 0 && w.body.Len()+len(b) > w.limit {
			w.truncated = true
			w.body.Reset()
		} else {
			w.body.Write(b)
		}
	}
	return w.ResponseWriter.Write(b)
}

// cacheKey hashes the request parts selected by the key strategy, for
// example "method_route_query", under the configured prefix.
func cacheKey(cfg config.CacheConfig, method, route, query string) string {
	var b strings.Builder
	strategy := strings.ToLower(cfg.KeyStrategy)
	if strings.HasPrefix(strategy, "method_") {
		b.WriteString("method:" + strings.ToUpper(method) + ":")
	}
	b.WriteString("route:" + route)
	if strategy == "" || strings.HasSuffix(strategy, "_query") {
		b.WriteString(":q:" + query)
	}
	sum := sha1.Sum([]byte(b.String()))
	return cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// ResponseCache stores successful responses of selected routes in Redis.
type ResponseCache struct {
	cfg    config.CacheConfig
	rdb    *redis.Client
	logger *zap.Logger
}

// NewResponseCache returns a cache; a nil rdb or a disabled config makes
// every method a no-op.
func NewResponseCache(cfg config.CacheConfig, rdb *redis.Client, logger *zap.Logger) *ResponseCache {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if cfg.Methods == nil {
		cfg.Methods = map[string]bool{http.MethodGet: true}
	}
	return &ResponseCache{cfg: cfg, rdb: rdb, logger: logger}
}

func (rc *ResponseCache) active() bool { return rc != nil && rc.cfg.Enabled && rc.rdb != nil }

// Invalidate drops the cached GET response of route (without query).
func (rc *ResponseCache) Invalidate(ctx context.Context, route string) {
	if !rc.active() {
		return
	}
	if err := rc.rdb.Del(ctx, cacheKey(rc.cfg, http.MethodGet, route, "")).Err(); err != nil {
		rc.logger.Warn("cache invalidation failed", zap.String("route", route), zap.Error(err))
	}
}

func (rc *ResponseCache) load(ctx context.Context, key string) (cachedResponse, bool) {
	raw, err := rc.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return cachedResponse{}, false
	}
	var cr cachedResponse
	if err := json.Unmarshal(raw, &cr); err != nil || cr.Status == 0 {
		return cachedResponse{}, false
	}
	return cr, true
}

func (rc *ResponseCache) store(key string, cr cachedResponse) {
	raw, err := json.Marshal(cr)
	if err != nil {
		return
	}
	// The request context may already be cancelled once the body is sent.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := rc.rdb.Set(ctx, key, raw, rc.cfg.TTL).Err(); err != nil {
		rc.logger.Warn("cache store failed", zap.String("key", key), zap.Error(err))
	}
}

// Middleware replays cached responses with X-Cache: HIT and records 200
// responses on MISS together with their headers.
func (rc *ResponseCache) Middleware() echo.MiddlewareFunc {
	if !rc.active() {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			r := c.Request()
			if !rc.cfg.Methods[strings.ToUpper(r.Method)] {
				return next(c)
			}
			key := cacheKey(rc.cfg, r.Method, c.Path(), r.URL.RawQuery)
			res := c.Response()

			if cr, ok := rc.load(r.Context(), key); ok {
				for k, vs := range cr.Header {
					if k == echo.HeaderContentLength {
						continue
					}
					res.Header()[k] = vs
				}
				res.Header().Set("X-Cache", "HIT")
				res.WriteHeader(cr.Status)
				_, err := res.Write(cr.Body)
				return err
			}

			tw := &teeWriter{ResponseWriter: res.Writer, status: http.StatusOK, limit: rc.cfg.MaxBodyBytes}
			res.Writer = tw
			res.Header().Set("X-Cache", "MISS")
			if err := next(c); err != nil {
				return err
			}
			if tw.status != http.StatusOK || tw.truncated {
				return nil
			}
			hdr := res.Header().Clone()
			hdr.Del("X-Cache")
			rc.store(key, cachedResponse{Status: tw.status, Header: hdr, Body: tw.body.Bytes()})
			return nil
		}
	}
}
