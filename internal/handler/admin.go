package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/config"
	"github.com/inkfolio/commission-backend/internal/middleware"
	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/pricing"
	"github.com/inkfolio/commission-backend/internal/repository"
)

// PricingStore persists the editable catalog.
type PricingStore interface {
	SaveCatalog(ctx context.Context, cat pricing.Catalog) error
}

// AuditStore extends the write side of the audit trail with the paging
// read the dashboard needs.
type AuditStore interface {
	AuditWriter
	List(ctx context.Context, limit, offset int) ([]model.ActivityLog, error)
}

// AdminHandler serves the dashboard, user administration and pricing
// management.  Fine-grained permission checks live in the router; this
// handler only enforces rules that depend on the target of the request.
type AdminHandler struct {
	Cfg     config.Config
	Users   *repository.UserRepo
	Tokens  *repository.TokenRepo
	Orders  *repository.OrderRepo
	Tickets *repository.TicketRepo
	Audit   AuditStore
	Pricing PricingStore
	Engine  *pricing.Engine

	// PurgePublicCache drops the cached response for a public route after
	// a write changes what it serves.  Nil when the cache is disabled.
	PurgePublicCache func(ctx context.Context, path string)
}

func NewAdminHandler(cfg config.Config, users *repository.UserRepo, tokens *repository.TokenRepo,
	orders *repository.OrderRepo, tickets *repository.TicketRepo, audit AuditStore,
	pricingStore PricingStore, engine *pricing.Engine,
	purge func(ctx context.Context, path string)) *AdminHandler {
	return &AdminHandler{
		Cfg: cfg, Users: users, Tokens: tokens, Orders: orders,
		Tickets: tickets, Audit: audit, Pricing: pricingStore, Engine: engine,
		PurgePublicCache: purge,
	}
}

// Stats aggregates the dashboard numbers.
func (h *AdminHandler) Stats(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	total, paid, revenue, err := h.Orders.Stats(ctx)
	if err != nil {
		c.Logger().Errorf("admin stats: orders: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	users, err := h.Users.Count(ctx)
	if err != nil {
		c.Logger().Errorf("admin stats: users: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	openTickets, err := h.Tickets.CountOpen(ctx)
	if err != nil {
		c.Logger().Errorf("admin stats: tickets: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"stats": echo.Map{
			"orders_total":    total,
			"orders_paid":     paid,
			"advance_revenue": revenue,
			"users_total":     users,
			"tickets_open":    openTickets,
		},
	})
}

// ListUsers pages through user accounts.
func (h *AdminHandler) ListUsers(c echo.Context) error {
	limit, offset := parsePage(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	users, err := h.Users.List(ctx, limit, offset)
	if err != nil {
		c.Logger().Errorf("list users: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(users))
	for i := range users {
		j := userJSON(&users[i])
		j["last_login"] = users[i].LastLogin
		out = append(out, j)
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "users": out})
}

type banReq struct {
	Reason string `json:"reason"`
}

// Ban flags an account and kills every live session it holds.  Super-admin
// accounts cannot be banned, and nobody can ban themselves.
func (h *AdminHandler) Ban(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req banReq
	_ = c.Bind(&req)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	target, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		c.Logger().Errorf("ban: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if h.Cfg.IsSuperAdmin(target.Email) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot ban this account"})
	}
	if u, ok := middleware.CurrentUser(c); ok && u.ID == id {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot ban yourself"})
	}

	if err := h.Users.SetBan(ctx, id, true, strings.TrimSpace(req.Reason)); err != nil {
		c.Logger().Errorf("ban: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
		c.Logger().Errorf("ban: revoke sessions: %v", err)
	}
	h.audit(c, model.ActionUserBanned, target.Email, map[string]string{"reason": req.Reason})
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Unban clears the flag; the user must log in again.
func (h *AdminHandler) Unban(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	target, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		c.Logger().Errorf("unban: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if err := h.Users.SetBan(ctx, id, false, ""); err != nil {
		c.Logger().Errorf("unban: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.audit(c, model.ActionUserUnbanned, target.Email, nil)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

type grantAdminReq struct {
	Permissions []string `json:"permissions"`
}

var knownPermissions = map[string]bool{
	model.PermManageOrders:  true,
	model.PermManageTickets: true,
	model.PermManageGallery: true,
	model.PermManageUsers:   true,
	model.PermViewLogs:      true,
}

// GrantAdmin elevates a user with an explicit permission set.  Reachable
// only by super-admins (enforced in the router); the granted set never
// includes anything outside the known permission names.
func (h *AdminHandler) GrantAdmin(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}
	var req grantAdminReq
	if err := c.Bind(&req); err != nil || len(req.Permissions) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "permissions are required"})
	}
	perms := map[string]bool{}
	for _, p := range req.Permissions {
		if !knownPermissions[p] {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown permission", "permission": p})
		}
		perms[p] = true
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	target, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		c.Logger().Errorf("grant admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if target.Banned {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "cannot grant admin to a banned account"})
	}
	if err := h.Users.GrantAdmin(ctx, id, perms); err != nil {
		c.Logger().Errorf("grant admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.audit(c, model.ActionAdminGranted, target.Email, map[string]string{
		"permissions": strings.Join(req.Permissions, ","),
	})
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// RevokeAdmin demotes an admin back to an ordinary user.  Their sessions
// are revoked so the role change takes effect immediately, not at token
// expiry.
func (h *AdminHandler) RevokeAdmin(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid user id"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	target, err := h.Users.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
		}
		c.Logger().Errorf("revoke admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if h.Cfg.IsSuperAdmin(target.Email) {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot demote this account"})
	}
	if err := h.Users.Demote(ctx, id); err != nil {
		c.Logger().Errorf("revoke admin: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	if err := h.Tokens.RevokeAllForUser(ctx, id); err != nil {
		c.Logger().Errorf("revoke admin: revoke sessions: %v", err)
	}
	h.audit(c, model.ActionAdminRevoked, target.Email, nil)
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Logs pages through the audit trail, newest first.
func (h *AdminHandler) Logs(c echo.Context) error {
	limit, offset := parsePage(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	logs, err := h.Audit.List(ctx, limit, offset)
	if err != nil {
		c.Logger().Errorf("logs: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(logs))
	for _, l := range logs {
		out = append(out, echo.Map{
			"id":            l.ID,
			"actor_id":      l.ActorID,
			"action":        l.Action,
			"resource_type": l.ResourceType,
			"resource_id":   l.ResourceID,
			"detail":        l.Detail,
			"ip":            l.IP,
			"created_at":    l.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "logs": out})
}

type pricingItemReq struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

type updatePricingReq struct {
	Services map[string]pricingItemReq `json:"services"`
	Sizes    map[string]pricingItemReq `json:"sizes"`
	Addons   map[string]pricingItemReq `json:"addons"`
}

// UpdatePricing replaces the stored catalog and drops the engine cache so
// the next quote reflects the new prices.
func (h *AdminHandler) UpdatePricing(c echo.Context) error {
	var req updatePricingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if len(req.Services) == 0 || len(req.Sizes) == 0 || len(req.Addons) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "services, sizes and addons are all required"})
	}

	cat := pricing.Catalog{
		Services: map[string]pricing.Item{},
		Sizes:    map[string]pricing.Item{},
		Addons:   map[string]pricing.Item{},
	}
	convert := func(dst map[string]pricing.Item, src map[string]pricingItemReq) bool {
		for key, it := range src {
			key = strings.TrimSpace(strings.ToLower(key))
			if key == "" || strings.TrimSpace(it.Name) == "" || it.Price < 0 {
				return false
			}
			dst[key] = pricing.Item{Name: strings.TrimSpace(it.Name), Price: it.Price}
		}
		return true
	}
	if !convert(cat.Services, req.Services) || !convert(cat.Sizes, req.Sizes) || !convert(cat.Addons, req.Addons) {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "every item needs a key, a name and a non-negative price"})
	}
	// The zero-price "none" addon must always exist so orders without an
	// addon keep pricing.
	if _, ok := cat.Addons["none"]; !ok {
		cat.Addons["none"] = pricing.Item{Name: "None", Price: 0}
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if err := h.Pricing.SaveCatalog(ctx, cat); err != nil {
		c.Logger().Errorf("update pricing: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "save failed"})
	}
	h.Engine.Invalidate()
	// The public catalog is also served through the response cache; drop it
	// so the new prices are visible immediately.
	if h.PurgePublicCache != nil {
		h.PurgePublicCache(ctx, "/api/v1/pricing")
	}
	h.audit(c, model.ActionPricingUpdated, "catalog", map[string]string{
		"services": strings.Join(keysOf(cat.Services), ","),
	})
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func keysOf(m map[string]pricing.Item) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (h *AdminHandler) audit(c echo.Context, action, resourceID string, detail map[string]string) {
	var blob string
	if len(detail) > 0 {
		b, _ := json.Marshal(detail)
		blob = string(b)
	}
	var actor *uint64
	if u, ok := middleware.CurrentUser(c); ok {
		actor = &u.ID
	}
	if err := h.Audit.Insert(c.Request().Context(), model.ActivityLog{
		ActorID:      actor,
		Action:       action,
		ResourceType: "admin",
		ResourceID:   resourceID,
		Detail:       blob,
		IP:           c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	}); err != nil {
		c.Logger().Warnf("audit %s: %v", action, err)
	}
}
