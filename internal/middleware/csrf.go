package middleware

import (
	"mime"
	"net/http"

	"github.com/gorilla/csrf"
	"github.com/labstack/echo/v4"
)

// CSRFHeader is the request header carrying the token for form posts made
// by scripts.
const CSRFHeader = "X-CSRF-Token"

// CSRF protects form posts with gorilla/csrf. JSON requests are exempt:
// browsers cannot send them cross-origin without a CORS preflight.
func CSRF(authKey []byte, secure bool) echo.MiddlewareFunc {
	protect := csrf.Protect(authKey,
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader(CSRFHeader),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`{"error":"invalid csrf token"}`))
		})),
	)
	return echo.WrapMiddleware(func(next http.Handler) http.Handler {
		h := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isJSON(r) {
				r = csrf.UnsafeSkipCheck(r)
			}
			if r.TLS == nil && !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			h.ServeHTTP(w, r)
		})
	})
}

// CSRFToken returns the token to embed in the next form post.
func CSRFToken(c echo.Context) string { return csrf.Token(c.Request()) }

func isJSON(r *http.Request) bool {
	mt, _, err := mime.ParseMediaType(r.Header.Get(echo.HeaderContentType))
	return err == nil && mt == echo.MIMEApplicationJSON
}
