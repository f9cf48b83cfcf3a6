package middleware

import (
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorKey is the context key under which handlers leave an internal error
// they answered with a generic 500, so it still reaches the log.
const ErrorKey = "handler_error"

// RequestLogger tags each request with an id (reusing X-Request-ID when the
// caller sent one) and logs one line per request once the handler returns.
func RequestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			rid := req.Header.Get(echo.HeaderXRequestID)
			if rid == "" {
				rid = uuid.NewString()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, rid)

			start := time.Now()
			err := next(c)
			if err != nil {
				c.Error(err)
			} else if herr, ok := c.Get(ErrorKey).(error); ok {
				err = herr
			}

			fields := []zap.Field{
				zap.String("request_id", rid),
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.Int("status", c.Response().Status),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", c.RealIP()),
				zap.String("user", userID(c)),
			}
			switch {
			case err != nil:
				logger.Error("request failed", append(fields, zap.Error(err))...)
			case c.Response().Status >= 500:
				logger.Error("request", fields...)
			default:
				logger.Info("request", fields...)
			}
			return nil
		}
	}
}
