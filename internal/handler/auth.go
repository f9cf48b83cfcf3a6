package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/config"
	"github.com/iliyamo/busbooking/internal/middleware"
	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/repository"
	"github.com/iliyamo/busbooking/internal/service"
	"github.com/iliyamo/busbooking/internal/utils"
)

// AuthHandler bundles dependencies for the dashboard login endpoints.
type AuthHandler struct {
	Cfg      config.AuthConfig
	Accounts *service.AccountService
	Tokens   *repository.TokenRepo
	Logger   *zap.Logger
}

// NewAuthHandler wires the login endpoints.
func NewAuthHandler(cfg config.AuthConfig, accounts *service.AccountService, tokens *repository.TokenRepo, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Accounts: accounts, Tokens: tokens, Logger: logger}
}

// Register creates an account with the user role. Admin rights are granted
// by an administrator or by the startup seed.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.Register(ctx, req.input())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{"user": u})
}

// Login verifies the credentials and starts a session: the signed session
// token and the refresh token are set as HttpOnly cookies and returned in
// the body for API clients.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email/password required"})
	}
	ctx, cancel := requestCtx(c)
	defer cancel()

	u, err := h.Accounts.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	resp, err := h.issue(ctx, c, u)
	if err != nil {
		return respondError(c, err)
	}
	h.Logger.Info("user logged in", zap.Uint64("user_id", u.ID))
	return c.JSON(http.StatusOK, resp)
}

// Refresh consumes the refresh token and issues a new pair carrying the
// current role of the account. A token replayed after rotation is rejected.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := refreshFrom(c)
	if raw == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh_token required"})
	}
	hash := utils.HashRefreshToken(raw)
	ctx, cancel := requestCtx(c)
	defer cancel()

	uid, err := h.Tokens.Consume(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return respondError(c, err)
	}
	u, err := h.Accounts.GetUser(ctx, uid)
	if errors.Is(err, service.ErrNotFound) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh"})
	}
	if err != nil {
		return respondError(c, err)
	}
	resp, err := h.issue(ctx, c, u)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the presented refresh token, or every token of the
// logged-in user when none is presented, and clears the cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := requestCtx(c)
	defer cancel()

	if raw := refreshFrom(c); raw != "" {
		if err := h.Tokens.Revoke(ctx, utils.HashRefreshToken(raw)); err != nil {
			h.Logger.Warn("revoke refresh token failed", zap.Error(err))
		}
	} else if s, ok := middleware.CurrentSession(c); ok {
		if _, err := h.Tokens.RevokeUser(ctx, s.UserID); err != nil {
			h.Logger.Warn("revoke user tokens failed", zap.Uint64("user_id", s.UserID), zap.Error(err))
		}
	}
	h.clearCookies(c)
	middleware.SetFlash(c, "Sesión cerrada.")
	return c.NoContent(http.StatusNoContent)
}

// Me returns the identity carried by the session cookie.
func (h *AuthHandler) Me(c echo.Context) error {
	return c.JSON(http.StatusOK, session(c))
}

// CSRFToken returns the token that form posts must echo back.
func (h *AuthHandler) CSRFToken(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"csrf_token": middleware.CSRFToken(c)})
}

func (h *AuthHandler) issue(ctx context.Context, c echo.Context, u model.User) (sessionResp, error) {
	access, err := utils.NewSessionToken(h.Cfg.JWTSecret, model.Session{UserID: u.ID, Username: u.Username, Role: u.Role}, h.Cfg.AccessTTLMin)
	if err != nil {
		return sessionResp{}, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
	if err != nil {
		return sessionResp{}, err
	}
	if err := h.Tokens.Store(ctx, u.ID, utils.HashRefreshToken(refresh.Raw), refresh.Exp); err != nil {
		return sessionResp{}, err
	}
	c.SetCookie(h.cookie(middleware.SessionCookie, access.Token, "/", access.Exp))
	c.SetCookie(h.cookie(middleware.RefreshCookie, refresh.Raw, "/auth", refresh.Exp))
	return sessionResp{
		User:    u,
		Access:  issuedToken{Token: access.Token, Expires: access.Exp},
		Refresh: issuedToken{Token: refresh.Raw, Expires: refresh.Exp},
	}, nil
}

func (h *AuthHandler) cookie(name, value, path string, exp time.Time) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		Expires:  exp,
		HttpOnly: true,
		Secure:   h.Cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	}
}

func (h *AuthHandler) clearCookies(c echo.Context) {
	for name, path := range map[string]string{middleware.SessionCookie: "/", middleware.RefreshCookie: "/auth"} {
		ck := h.cookie(name, "", path, time.Unix(0, 0))
		ck.MaxAge = -1
		c.SetCookie(ck)
	}
}

// refreshFrom reads the refresh token from the cookie or the body.
func refreshFrom(c echo.Context) string {
	if ck, err := c.Cookie(middleware.RefreshCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	var req refreshReq
	_ = c.Bind(&req)
	return strings.TrimSpace(req.RefreshToken)
}
