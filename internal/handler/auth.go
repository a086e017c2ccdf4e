package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/config"
	"github.com/inkfolio/commission-backend/internal/middleware"
	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/repository"
	"github.com/inkfolio/commission-backend/internal/utils"
)

// UserStore is the slice of the user repository the auth endpoints use.
type UserStore interface {
	Create(ctx context.Context, name, email, password string, cost int) (uint64, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	RecordLogin(ctx context.Context, id uint64, ip string) error
}

// SessionStore persists refresh-token records keyed by their hash.
type SessionStore interface {
	Store(ctx context.Context, userID uint64, tokenHash string, exp time.Time, ip, userAgent string) error
	Validate(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Cfg    config.Config
	Users  UserStore
	Tokens SessionStore
	Audit  AuditWriter
}

func NewAuthHandler(cfg config.Config, u UserStore, t SessionStore, a AuditWriter) *AuthHandler {
	return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Audit: a}
}

// ----- DTOs -----

type registerReq struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}
type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *AuthHandler) secureCookies() bool { return h.Cfg.Env == "prod" }

// issueSession mints an access/refresh pair, persists the refresh hash and
// sets both cookies.  The raw refresh token is also returned in the body for
// non-browser clients.
func (h *AuthHandler) issueSession(ctx context.Context, c echo.Context, u model.User) (echo.Map, error) {
	access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Email, u.Role, h.Cfg.AccessTTLMin)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.NewRefreshToken(h.Cfg.JWTSecret, u.ID, h.Cfg.RefreshTTLDays)
	if err != nil {
		return nil, err
	}
	if err := h.Tokens.Store(ctx, u.ID, utils.HashToken(refresh.Raw), refresh.Exp,
		c.RealIP(), c.Request().UserAgent()); err != nil {
		return nil, err
	}
	utils.SetAuthCookies(c, access, refresh, h.secureCookies())
	return echo.Map{
		"success":       true,
		"user":          userJSON(&u),
		"access_token":  access.Token,
		"refresh_token": refresh.Raw,
		"expires":       access.Exp,
	}, nil
}

// Register creates a user account and starts a session.
func (h *AuthHandler) Register(c echo.Context) error {
	var req registerReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	var details []echo.Map
	if req.Name == "" {
		details = append(details, echo.Map{"field": "name", "message": "name is required"})
	}
	if _, err := mail.ParseAddress(req.Email); req.Email == "" || err != nil {
		details = append(details, echo.Map{"field": "email", "message": "a valid email is required"})
	}
	if len(req.Password) < 8 {
		details = append(details, echo.Map{"field": "password", "message": "password must be at least 8 characters"})
	}
	if len(details) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "details": details})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := h.Users.Create(ctx, req.Name, req.Email, req.Password, h.Cfg.BcryptCost)
	if err != nil {
		if err == repository.ErrEmailExists {
			return c.JSON(http.StatusConflict, echo.Map{"error": "email already registered"})
		}
		c.Logger().Errorf("register: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		c.Logger().Errorf("register: load user: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}

	resp, err := h.issueSession(ctx, c, u)
	if err != nil {
		c.Logger().Errorf("register: issue session: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "registration failed"})
	}
	h.audit(c, &uid, model.ActionRegister, "user", req.Email, nil)
	return c.JSON(http.StatusCreated, resp)
}

// Login verifies credentials and starts a session.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and password are required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	u, err := h.Users.GetByEmail(ctx, req.Email)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
		}
		c.Logger().Errorf("login: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	if !utils.VerifyPassword(u.PasswordHash, req.Password) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid credentials"})
	}
	if u.Banned {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account banned", "reason": u.BanReason})
	}

	if err := h.Users.RecordLogin(ctx, u.ID, c.RealIP()); err != nil {
		c.Logger().Warnf("login: record last login: %v", err)
	}
	resp, err := h.issueSession(ctx, c, u)
	if err != nil {
		c.Logger().Errorf("login: issue session: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login failed"})
	}
	h.audit(c, &u.ID, model.ActionLogin, "user", u.Email, nil)
	return c.JSON(http.StatusOK, resp)
}

// refreshFromRequest pulls the raw refresh token from the scoped cookie or,
// failing that, the request body.
func refreshFromRequest(c echo.Context) string {
	if ck, err := c.Cookie(utils.RefreshCookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	var req refreshReq
	_ = c.Bind(&req)
	return strings.TrimSpace(req.RefreshToken)
}

// Refresh rotates the refresh token and mints a new access token.  The old
// refresh row is revoked before the new one is issued; a revoked or expired
// token is rejected even when its signature is still valid.
func (h *AuthHandler) Refresh(c echo.Context) error {
	raw := refreshFromRequest(c)
	if raw == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "refresh token required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	uid, err := utils.ParseRefreshToken(h.Cfg.JWTSecret, raw)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	hash := utils.HashToken(raw)
	owner, err := h.Tokens.Validate(ctx, hash)
	if err != nil || owner != uid {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}

	u, err := h.Users.GetByID(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid refresh token"})
	}
	if u.Banned {
		_ = h.Tokens.RevokeAllForUser(ctx, uid)
		return c.JSON(http.StatusForbidden, echo.Map{"error": "account banned"})
	}

	// Rotation: the old record is revoked and a new one inserted.  The raw
	// value is never reused.
	if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
		c.Logger().Errorf("refresh: revoke old token: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	resp, err := h.issueSession(ctx, c, u)
	if err != nil {
		c.Logger().Errorf("refresh: issue session: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "refresh failed"})
	}
	return c.JSON(http.StatusOK, resp)
}

// Logout revokes the presented refresh token (or, for an authenticated
// caller, all of their tokens) and clears both cookies.
func (h *AuthHandler) Logout(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if u, ok := middleware.CurrentUser(c); ok {
		if err := h.Tokens.RevokeAllForUser(ctx, u.ID); err != nil {
			c.Logger().Errorf("logout: revoke all: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	} else if raw := refreshFromRequest(c); raw != "" {
		if err := h.Tokens.RevokeByHash(ctx, utils.HashToken(raw)); err != nil {
			c.Logger().Errorf("logout: revoke token: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "logout failed"})
		}
	}
	utils.ClearAuthCookies(c, h.secureCookies())
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "user": userJSON(u)})
}

// audit writes a best-effort activity record; failures are logged, never
// surfaced.
func (h *AuthHandler) audit(c echo.Context, actor *uint64, action, resourceType, resourceID string, detail map[string]string) {
	var blob string
	if len(detail) > 0 {
		b, _ := json.Marshal(detail)
		blob = string(b)
	}
	if err := h.Audit.Insert(c.Request().Context(), model.ActivityLog{
		ActorID:      actor,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Detail:       blob,
		IP:           c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	}); err != nil {
		c.Logger().Warnf("audit %s: %v", action, err)
	}
}
