package middleware

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/config"
)

// bucketScript refills a bucket in whole intervals and takes one token.
// KEYS[1] bucket; ARGV now_ms, capacity, refill, interval_ms, ttl_s.
// Returns {allowed, left, wait_ms}.
var bucketScript = redis.NewScript(`
local now, cap, refill, every, ttl =
	tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3]), tonumber(ARGV[4]), tonumber(ARGV[5])
local b = redis.call('HMGET', KEYS[1], 'left', 'at')
local left, at = tonumber(b[1]) or cap, tonumber(b[2]) or now
if every > 0 and refill > 0 and now > at then
	local n = math.floor((now - at) / every)
	left = math.min(cap, left + n * refill)
	at = at + n * every
end
local ok, wait = 0, 0
if left >= 1 then
	ok, left = 1, left - 1
else
	wait = math.max(0, every - (now - at))
end
redis.call('HSET', KEYS[1], 'left', left, 'at', at)
redis.call('EXPIRE', KEYS[1], ttl)
return {ok, left, wait}
`)

// bucketState is the outcome of one take from a bucket.
type bucketState struct {
	allowed bool
	left    int64
	wait    time.Duration
}

var errBucketReply = errors.New("unexpected bucket reply")

func take(ctx context.Context, rdb *redis.Client, cfg config.RateLimitConfig, key string) (bucketState, error) {
	res, err := bucketScript.Run(ctx, rdb, []string{key},
		time.Now().UnixMilli(), cfg.Capacity, cfg.RefillTokens,
		cfg.RefillInterval.Milliseconds(), int64(cfg.TTL.Seconds())).Int64Slice()
	if err != nil {
		return bucketState{}, err
	}
	if len(res) != 3 {
		return bucketState{}, errBucketReply
	}
	return bucketState{
		allowed: res[0] == 1,
		left:    res[1],
		wait:    time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// NewTokenBucket throttles requests per bucket key. It is a no-op when
// disabled or without Redis, and lets requests through when Redis fails.
func NewTokenBucket(cfg config.RateLimitConfig, rdb *redis.Client, logger *zap.Logger) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc { return next }
	}
	if cfg.TTL < time.Second {
		cfg.TTL = time.Second
	}
	limit := strconv.Itoa(cfg.Capacity)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := bucketKey(cfg, c)
			st, err := take(c.Request().Context(), rdb, cfg, key)
			if err != nil {
				logger.Warn("rate limiter unavailable", zap.String("key", key), zap.Error(err))
				return next(c)
			}

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(st.left, 10))
			if cfg.Debug {
				h.Set("X-RateLimit-Key", key)
			}
			if st.allowed {
				return next(c)
			}

			secs := int((st.wait + time.Second - 1) / time.Second)
			h.Set("Retry-After", strconv.Itoa(secs))
			if cfg.Debug {
				logger.Info("rate limited", zap.String("key", key), zap.Duration("wait", st.wait))
			}
			return c.JSON(http.StatusTooManyRequests, echo.Map{
				"error":       "too_many_requests",
				"message":     "rate limit exceeded",
				"retry_after": secs,
			})
		}
	}
}

// bucketKey joins the configured prefix with the request dimensions named
// by the key strategy, e.g. "ip_route". Unknown strategies use all three.
func bucketKey(cfg config.RateLimitConfig, c echo.Context) string {
	dims := map[string]string{
		"ip":    c.RealIP(),
		"user":  userID(c),
		"route": c.Request().Method + " " + c.Path(),
	}
	if dims["ip"] == "" {
		dims["ip"] = "unknown"
	}
	names := strings.Split(strings.ToLower(cfg.KeyStrategy), "_")
	for _, n := range names {
		if _, ok := dims[n]; !ok {
			names = []string{"ip", "user", "route"}
			break
		}
	}
	parts := []string{cfg.Prefix}
	for _, n := range names {
		parts = append(parts, n, dims[n])
	}
	return strings.Join(parts, ":")
}
