package middleware // middleware provides shared request processing for handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/config"
	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/utils"
)

// userContextKey is where the resolved *model.User is stored on the request.
const userContextKey = "current_user"

// UserStore is the slice of the user repository the guard needs.
type UserStore interface {
	GetByID(ctx context.Context, id uint64) (model.User, error)
	Demote(ctx context.Context, id uint64) error
}

// TokenStore revokes refresh tokens during termination.
type TokenStore interface {
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// AuditStore records security-relevant events.
type AuditStore interface {
	Insert(ctx context.Context, l model.ActivityLog) error
}

// Guard bundles identity resolution and permission enforcement.  Identity
// comes from a signed access token (cookie preferred, bearer header
// fallback); the user's current role, permission set and ban state are
// re-fetched from the store on every call so a stale token cannot outlive a
// ban or downgrade by more than one token lifetime.
type Guard struct {
	Cfg    config.Config
	Users  UserStore
	Tokens TokenStore
	Audit  AuditStore
}

// NewGuard constructs a Guard.
func NewGuard(cfg config.Config, users UserStore, tokens TokenStore, audit AuditStore) *Guard {
	return &Guard{Cfg: cfg, Users: users, Tokens: tokens, Audit: audit}
}

// CurrentUser returns the authenticated user stored by RequireAuth or
// OptionalAuth.
func CurrentUser(c echo.Context) (*model.User, bool) {
	u, ok := c.Get(userContextKey).(*model.User)
	return u, ok
}

// extractToken pulls the raw access token from the access cookie or, for
// non-browser clients, the Authorization bearer header.
func extractToken(c echo.Context) string {
	if ck, err := c.Cookie(utils.AccessCookieName); err == nil && ck.Value != "" {
		return ck.Value
	}
	auth := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}

// resolve parses the token and loads the live user record.
func (g *Guard) resolve(c echo.Context) (*model.User, error) {
	raw := extractToken(c)
	if raw == "" {
		return nil, utils.ErrInvalidToken
	}
	claims, err := utils.ParseAccessToken(g.Cfg.JWTSecret, raw)
	if err != nil {
		return nil, err
	}
	u, err := g.Users.GetByID(c.Request().Context(), claims.UserID)
	if err != nil {
		return nil, utils.ErrInvalidToken
	}
	return &u, nil
}

// RequireAuth resolves the current user or fails the request with 401.
// Banned accounts are rejected even while their token is still valid.
func (g *Guard) RequireAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, err := g.resolve(c)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if u.Banned {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "account banned"})
			}
			c.Set(userContextKey, u)
			return next(c)
		}
	}
}

// OptionalAuth resolves the current user when a usable token is present and
// silently continues as a guest otherwise.  Used by order creation, which
// serves both account holders and guests.
func (g *Guard) OptionalAuth() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if u, err := g.resolve(c); err == nil && !u.Banned {
				c.Set(userContextKey, u)
			}
			return next(c)
		}
	}
}

// RequireAdmin fails with 403 unless the resolved user holds the admin role.
// Must run after RequireAuth.
func (g *Guard) RequireAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if u.Role != model.RoleAdmin {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access required"})
			}
			return next(c)
		}
	}
}

// IsSuperAdmin reports whether the user is an admin whose email is on the
// configured allow-list.  Super-admins pass every permission check and are
// immune to termination.
func (g *Guard) IsSuperAdmin(u *model.User) bool {
	return u.Role == model.RoleAdmin && g.Cfg.IsSuperAdmin(u.Email)
}

// RequireSuperAdmin guards admin-management endpoints.  Must run after
// RequireAuth and RequireAdmin.
func (g *Guard) RequireSuperAdmin() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if !g.IsSuperAdmin(u) {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "super admin access required"})
			}
			return next(c)
		}
	}
}
