package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/captcha"
	"github.com/inkfolio/commission-backend/internal/config"
	"github.com/inkfolio/commission-backend/internal/middleware"
	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/pricing"
	"github.com/inkfolio/commission-backend/internal/repository"
)

// OrderHandler serves order creation, listing and admin status transitions.
type OrderHandler struct {
	Cfg     config.Config
	Orders  *repository.OrderRepo
	Pricing *pricing.Engine
	Gateway GatewayAPI
	Captcha captcha.Verifier
	Audit   *repository.ActivityRepo
}

func NewOrderHandler(cfg config.Config, orders *repository.OrderRepo, eng *pricing.Engine, gw GatewayAPI, cv captcha.Verifier, audit *repository.ActivityRepo) *OrderHandler {
	return &OrderHandler{Cfg: cfg, Orders: orders, Pricing: eng, Gateway: gw, Captcha: cv, Audit: audit}
}

type createOrderReq struct {
	Name         string `json:"name"`
	Email        string `json:"email"`
	Phone        string `json:"phone"`
	Service      string `json:"service"`
	Size         string `json:"size"`
	Addon        string `json:"addon"`
	Message      string `json:"message"`
	CaptchaToken string `json:"captcha_token"`
}

// newOrderNumber generates a human-shareable order number such as
// ART-20260830-7F3A2C.  Uniqueness is ultimately enforced by the database;
// callers retry on collision.
func newOrderNumber(now time.Time) (string, error) {
	buf := make([]byte, 3)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return fmt.Sprintf("ART-%s-%s", now.UTC().Format("20060102"),
		strings.ToUpper(hex.EncodeToString(buf))), nil
}

// GetPricing returns the active catalog for the order form.
func (h *OrderHandler) GetPricing(c echo.Context) error {
	cat, err := h.Pricing.GetPricing(c.Request().Context())
	if err != nil {
		c.Logger().Errorf("pricing: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "pricing unavailable"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "pricing": cat})
}

// Create validates and sanitizes the request, resolves the price server-side
// (client-submitted amounts are never trusted), persists the order and then
// mints a matching gateway order for the advance only.  If the gateway call
// fails after the database insert, the order row is deleted so no orphaned
// unpayable record survives: from the client's perspective the operation is
// atomic.
func (h *OrderHandler) Create(c echo.Context) error {
	var req createOrderReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.Message = strings.TrimSpace(req.Message)

	user, _ := middleware.CurrentUser(c)
	if user != nil {
		// Authenticated orders fall back to account contact details.
		if req.Name == "" {
			req.Name = user.Name
		}
		if req.Email == "" {
			req.Email = user.Email
		}
	}

	var details []echo.Map
	if req.Name == "" {
		details = append(details, echo.Map{"field": "name", "message": "name is required"})
	}
	if _, err := mail.ParseAddress(req.Email); req.Email == "" || err != nil {
		details = append(details, echo.Map{"field": "email", "message": "a valid email is required"})
	}
	if len(req.Message) > 2000 {
		details = append(details, echo.Map{"field": "message", "message": "message too long"})
	}
	if len(details) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "details": details})
	}

	if err := h.Captcha.Verify(c.Request().Context(), req.CaptchaToken, c.RealIP()); err != nil {
		if errors.Is(err, captcha.ErrCaptchaRequired) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "captcha validation failed"})
		}
		c.Logger().Errorf("captcha: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "captcha verification unavailable"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	breakdown, err := h.Pricing.CalculateOrderPrice(ctx, req.Service, req.Size, req.Addon)
	if err != nil {
		switch {
		case errors.Is(err, pricing.ErrInvalidService):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown service"})
		case errors.Is(err, pricing.ErrInvalidSize):
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown size"})
		}
		c.Logger().Errorf("order create: pricing: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "pricing unavailable"})
	}

	o := model.Order{
		CustomerName:  req.Name,
		CustomerEmail: req.Email,
		CustomerPhone: req.Phone,
		ServiceKey:    breakdown.ServiceKey,
		ServiceName:   breakdown.ServiceName,
		SizeKey:       breakdown.SizeKey,
		SizeName:      breakdown.SizeName,
		AddonKey:      breakdown.AddonKey,
		AddonName:     breakdown.AddonName,
		Message:       req.Message,
		BasePrice:     breakdown.BasePrice,
		SizePrice:     breakdown.SizePrice,
		AddonPrice:    breakdown.AddonPrice,
		Total:         breakdown.Total,
		Advance:       breakdown.Advance,
		Remaining:     breakdown.Remaining,
	}
	if user != nil {
		uid := user.ID
		o.UserID = &uid
	}

	// A duplicate order number is astronomically unlikely but cheap to
	// retry; the unique index is the arbiter.
	for attempt := 0; attempt < 3; attempt++ {
		o.OrderNumber, err = newOrderNumber(time.Now())
		if err != nil {
			c.Logger().Errorf("order create: number: %v", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "order creation failed"})
		}
		err = h.Orders.Create(ctx, &o)
		if err != repository.ErrDuplicateOrderNumber {
			break
		}
	}
	if err != nil {
		c.Logger().Errorf("order create: insert: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "order creation failed"})
	}

	// Gateway order covers the advance only: the deposit model is the
	// product, the remainder is collected on completion.
	gw, err := h.Gateway.CreateOrder(ctx, o.Advance*100, h.Cfg.Currency, o.OrderNumber,
		map[string]string{"order_number": o.OrderNumber})
	if err != nil {
		// Compensating action, not a two-phase commit: remove the
		// unpayable row so the client can simply retry.
		if delErr := h.Orders.Delete(ctx, o.ID); delErr != nil {
			c.Logger().Errorf("order create: compensating delete of %d: %v", o.ID, delErr)
		}
		c.Logger().Errorf("order create: gateway: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment gateway unavailable"})
	}
	if err := h.Orders.SetGatewayOrder(ctx, o.ID, gw.ID); err != nil {
		c.Logger().Errorf("order create: store gateway id: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "order creation failed"})
	}
	o.GatewayOrderID = gw.ID

	var actor *uint64
	if user != nil {
		actor = &user.ID
	}
	h.auditOrder(c, actor, model.ActionOrderCreated, o.OrderNumber,
		map[string]string{"total": fmt.Sprint(o.Total), "advance": fmt.Sprint(o.Advance)})

	return c.JSON(http.StatusCreated, echo.Map{
		"success":          true,
		"order":            orderJSON(o),
		"gateway_order_id": gw.ID,
		"gateway_key_id":   h.Cfg.GatewayKeyID,
		"amount":           o.Advance * 100,
		"currency":         h.Cfg.Currency,
	})
}

// ListMine returns the authenticated user's orders.
func (h *OrderHandler) ListMine(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	limit, offset := parsePage(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	orders, err := h.Orders.ListByUser(ctx, u.ID, limit, offset)
	if err != nil {
		c.Logger().Errorf("order list: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderJSON(o))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "orders": out})
}

// Get returns one order.  Ordinary users only see their own; admins see all.
func (h *OrderHandler) Get(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		c.Logger().Errorf("order get: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if u.Role != model.RoleAdmin && (o.UserID == nil || *o.UserID != u.ID) {
		// Resource/owner mismatch is indistinguishable from absence.
		return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "order": orderJSON(o)})
}

// ListAll returns all orders for the admin dashboard, optionally filtered by
// status.
func (h *OrderHandler) ListAll(c echo.Context) error {
	limit, offset := parsePage(c)
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	orders, err := h.Orders.List(ctx, c.QueryParam("status"), limit, offset)
	if err != nil {
		c.Logger().Errorf("order list all: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(orders))
	for _, o := range orders {
		out = append(out, orderJSON(o))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "orders": out})
}

// UpdateStatus moves an order through its lifecycle.  Only admins reach this
// handler; transition validity is enforced against the state machine.
func (h *OrderHandler) UpdateStatus(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	var req struct {
		Status string `json:"status"`
	}
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	o, err := h.Orders.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		c.Logger().Errorf("order status: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if !model.ValidOrderTransition(o.Status, req.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": fmt.Sprintf("cannot transition from %s to %s", o.Status, req.Status),
		})
	}
	if err := h.Orders.UpdateStatus(ctx, id, req.Status); err != nil {
		c.Logger().Errorf("order status: update: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}

	u, _ := middleware.CurrentUser(c)
	var actor *uint64
	if u != nil {
		actor = &u.ID
	}
	h.auditOrder(c, actor, model.ActionOrderStatusChanged, o.OrderNumber,
		map[string]string{"from": o.Status, "to": req.Status})
	return c.JSON(http.StatusOK, echo.Map{"success": true, "status": req.Status})
}

func (h *OrderHandler) auditOrder(c echo.Context, actor *uint64, action, orderNumber string, detail map[string]string) {
	blob, _ := json.Marshal(detail)
	if err := h.Audit.Insert(c.Request().Context(), model.ActivityLog{
		ActorID:      actor,
		Action:       action,
		ResourceType: "order",
		ResourceID:   orderNumber,
		Detail:       string(blob),
		IP:           c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	}); err != nil {
		c.Logger().Warnf("audit %s: %v", action, err)
	}
}
