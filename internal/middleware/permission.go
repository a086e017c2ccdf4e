package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/model"
)

// RequirePermission gates an admin endpoint on a named fine-grained
// permission.  Super-admins pass unconditionally.  A non-super admin who
// probes an endpoint they lack the permission for is not merely denied:
// their admin privilege is terminated on the spot — demoted to role user,
// permission set cleared, every refresh token revoked, and the violation
// audit-logged — before the 403 is returned with a termination flag.  One
// unauthorized attempt ends that admin's privileged session state entirely.
// Must run after RequireAuth and RequireAdmin.
func (g *Guard) RequirePermission(perm string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			u, ok := CurrentUser(c)
			if !ok {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
			}
			if u.Role != model.RoleAdmin {
				return c.JSON(http.StatusForbidden, echo.Map{"error": "admin access required"})
			}
			if g.IsSuperAdmin(u) {
				return next(c)
			}
			if u.HasPermission(perm) {
				return next(c)
			}
			g.terminate(c, u, perm)
			return c.JSON(http.StatusForbidden, echo.Map{
				"error":      "permission denied",
				"terminated": true,
			})
		}
	}
}

// terminate revokes an admin's privilege after an unauthorized probe.  Each
// step is attempted even if an earlier one fails; failures are logged, since
// there is no useful recovery mid-termination.
func (g *Guard) terminate(c echo.Context, u *model.User, perm string) {
	ctx := c.Request().Context()
	if err := g.Users.Demote(ctx, u.ID); err != nil {
		c.Logger().Errorf("terminate: demote user %d: %v", u.ID, err)
	}
	if err := g.Tokens.RevokeAllForUser(ctx, u.ID); err != nil {
		c.Logger().Errorf("terminate: revoke tokens for user %d: %v", u.ID, err)
	}
	detail, _ := json.Marshal(map[string]string{
		"permission": perm,
		"path":       c.Request().Method + " " + c.Path(),
	})
	actorID := u.ID
	if err := g.Audit.Insert(ctx, model.ActivityLog{
		ActorID:      &actorID,
		Action:       model.ActionAccessViolation,
		ResourceType: "user",
		ResourceID:   u.Email,
		Detail:       string(detail),
		IP:           c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	}); err != nil {
		c.Logger().Errorf("terminate: audit log for user %d: %v", u.ID, err)
	}
}
