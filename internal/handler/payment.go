package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/config"
	"github.com/inkfolio/commission-backend/internal/gateway"
	"github.com/inkfolio/commission-backend/internal/middleware"
	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/queue"
	"github.com/inkfolio/commission-backend/internal/repository"
)

// GatewayAPI is the slice of the gateway client the handlers use.
type GatewayAPI interface {
	CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (gateway.Order, error)
	FetchOrder(ctx context.Context, id string) (gateway.Order, error)
}

// PaymentOrderStore is the slice of the order repository the payment paths
// use.
type PaymentOrderStore interface {
	GetByID(ctx context.Context, id uint64) (model.Order, error)
	GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (model.Order, error)
	SetGatewayOrder(ctx context.Context, id uint64, gatewayOrderID string) error
	MarkPaid(ctx context.Context, id uint64, paymentID, signature string) (bool, error)
}

// TicketWriter creates the auto-ticket spawned by a verified payment.
type TicketWriter interface {
	Create(ctx context.Context, t *model.Ticket) error
	AddMessage(ctx context.Context, m *model.TicketMessage) error
}

// AuditWriter records payment audit events.
type AuditWriter interface {
	Insert(ctx context.Context, l model.ActivityLog) error
}

// PaymentHandler is the sole authority for marking an order paid.  Two
// independent entry points — the client-initiated verify call and the
// gateway webhook — converge on confirmPayment, whose idempotency rides on
// the order's payment_verified flag.
type PaymentHandler struct {
	Cfg     config.Config
	Orders  PaymentOrderStore
	Tickets TicketWriter
	Gateway GatewayAPI
	Audit   AuditWriter

	// Publish emits the order.paid event best-effort.  May be nil.
	Publish func(ctx context.Context, ev queue.OrderPaidEvent)
}

func NewPaymentHandler(cfg config.Config, orders PaymentOrderStore, tickets TicketWriter, gw GatewayAPI, audit AuditWriter, publish func(context.Context, queue.OrderPaidEvent)) *PaymentHandler {
	return &PaymentHandler{Cfg: cfg, Orders: orders, Tickets: tickets, Gateway: gw, Audit: audit, Publish: publish}
}

// CreatePaymentOrder mints (or reuses) a gateway order for an existing
// unpaid order, so a customer who abandoned checkout can pay later without
// duplicating gateway-side orders.
func (h *PaymentHandler) CreatePaymentOrder(c echo.Context) error {
	var req struct {
		OrderID uint64 `json:"order_id"`
	}
	if err := c.Bind(&req); err != nil || req.OrderID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_id is required"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 15*time.Second)
	defer cancel()

	o, err := h.Orders.GetByID(ctx, req.OrderID)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		c.Logger().Errorf("payment order: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	if o.PaymentVerified {
		return c.JSON(http.StatusConflict, echo.Map{"error": "order already paid"})
	}

	// Reuse a still-valid gateway order before minting a new one.
	if o.GatewayOrderID != "" {
		gw, err := h.Gateway.FetchOrder(ctx, o.GatewayOrderID)
		if err == nil && gw.Status != "paid" && gw.Amount == o.Advance*100 {
			return c.JSON(http.StatusOK, h.paymentOrderResponse(o, gw))
		}
		if err != nil {
			c.Logger().Warnf("payment order: fetch %s: %v", o.GatewayOrderID, err)
		}
	}
	gw, err := h.Gateway.CreateOrder(ctx, o.Advance*100, h.Cfg.Currency, o.OrderNumber,
		map[string]string{"order_number": o.OrderNumber})
	if err != nil {
		c.Logger().Errorf("payment order: gateway: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment gateway unavailable"})
	}
	if err := h.Orders.SetGatewayOrder(ctx, o.ID, gw.ID); err != nil {
		c.Logger().Errorf("payment order: store gateway id: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	o.GatewayOrderID = gw.ID
	return c.JSON(http.StatusOK, h.paymentOrderResponse(o, gw))
}

func (h *PaymentHandler) paymentOrderResponse(o model.Order, gw gateway.Order) echo.Map {
	return echo.Map{
		"success":          true,
		"order_number":     o.OrderNumber,
		"gateway_order_id": gw.ID,
		"gateway_key_id":   h.Cfg.GatewayKeyID,
		"amount":           o.Advance * 100,
		"currency":         h.Cfg.Currency,
	}
}

type verifyReq struct {
	OrderID          uint64 `json:"order_id"`
	GatewayOrderID   string `json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	GatewaySignature string `json:"gateway_signature"`
}

// Verify is the client-initiated confirmation path.  The signature is
// checked before any database mutation; only a cryptographically valid
// signature tied to the order's own gateway order can flip it to paid.
func (h *PaymentHandler) Verify(c echo.Context) error {
	var req verifyReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.GatewayOrderID = strings.TrimSpace(req.GatewayOrderID)
	req.GatewayPaymentID = strings.TrimSpace(req.GatewayPaymentID)
	req.GatewaySignature = strings.TrimSpace(req.GatewaySignature)
	if req.OrderID == 0 || req.GatewayOrderID == "" || req.GatewayPaymentID == "" || req.GatewaySignature == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "order_id, gateway_order_id, gateway_payment_id and gateway_signature are required"})
	}

	// Signature first: no write may be predicated on unverified input.
	if !gateway.VerifyPaymentSignature(h.Cfg.GatewayKeySecret, req.GatewayOrderID, req.GatewayPaymentID, req.GatewaySignature) {
		h.auditPayment(c, model.ActionPaymentRejected, fmt.Sprint(req.OrderID),
			map[string]string{"reason": "invalid signature", "gateway_order_id": req.GatewayOrderID})
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid payment signature"})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	o, err := h.Orders.GetByID(ctx, req.OrderID)
	if err != nil {
		if err == repository.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		c.Logger().Errorf("payment verify: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	// A valid signature for some other gateway order must not confirm this
	// order: replay protection across orders.
	if o.GatewayOrderID == "" || o.GatewayOrderID != req.GatewayOrderID {
		h.auditPayment(c, model.ActionPaymentRejected, o.OrderNumber,
			map[string]string{"reason": "order mismatch", "gateway_order_id": req.GatewayOrderID})
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "payment does not match order"})
	}
	if o.PaymentVerified {
		// Webhook or an earlier call won the race; confirm without
		// re-running side effects.
		return c.JSON(http.StatusOK, echo.Map{"success": true, "status": o.Status, "already_verified": true})
	}

	if err := h.confirmPayment(ctx, c, o, req.GatewayPaymentID, req.GatewaySignature); err != nil {
		c.Logger().Errorf("payment verify: confirm: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "payment confirmation failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "status": model.OrderAdvancePaid})
}

// webhookPayload mirrors the gateway's event envelope.
type webhookPayload struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

// Webhook is the asynchronous confirmation path.  Internal processing
// errors are acknowledged with 200 so the gateway does not retry-storm a
// transient fault; only a bad signature is refused.
func (h *PaymentHandler) Webhook(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, 1<<20))
	if err != nil {
		c.Logger().Errorf("webhook: read body: %v", err)
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}

	if h.Cfg.WebhookSecret != "" {
		sig := c.Request().Header.Get("X-Razorpay-Signature")
		if !gateway.VerifyWebhookSignature(h.Cfg.WebhookSecret, body, sig) {
			h.auditPayment(c, model.ActionPaymentRejected, "webhook",
				map[string]string{"reason": "invalid webhook signature"})
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid signature"})
		}
	}

	var ev webhookPayload
	if err := json.Unmarshal(body, &ev); err != nil {
		c.Logger().Errorf("webhook: unmarshal: %v", err)
		return c.JSON(http.StatusOK, echo.Map{"success": true})
	}

	switch ev.Event {
	case "payment.captured", "order.paid":
		h.handleCaptured(c, ev)
	case "payment.failed":
		h.auditPayment(c, model.ActionPaymentRejected, ev.Payload.Payment.Entity.OrderID,
			map[string]string{"reason": "payment failed", "payment_id": ev.Payload.Payment.Entity.ID})
	default:
		// Unhandled event types are acknowledged and ignored.
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *PaymentHandler) handleCaptured(c echo.Context, ev webhookPayload) {
	gatewayOrderID := ev.Payload.Payment.Entity.OrderID
	paymentID := ev.Payload.Payment.Entity.ID
	if gatewayOrderID == "" || paymentID == "" {
		c.Logger().Warnf("webhook: %s without ids", ev.Event)
		return
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	o, err := h.Orders.GetByGatewayOrderID(ctx, gatewayOrderID)
	if err != nil {
		c.Logger().Warnf("webhook: order for %s: %v", gatewayOrderID, err)
		return
	}
	if o.PaymentVerified {
		return // client path already ran; nothing to duplicate
	}
	if err := h.confirmPayment(ctx, c, o, paymentID, ""); err != nil {
		c.Logger().Errorf("webhook: confirm %s: %v", o.OrderNumber, err)
	}
}

// confirmPayment marks the order paid and runs the paid side effects exactly
// once.  MarkPaid's guarded write is the idempotency gate: when a concurrent
// caller won, it reports no flip and this call becomes a no-op.
func (h *PaymentHandler) confirmPayment(ctx context.Context, c echo.Context, o model.Order, paymentID, signature string) error {
	flipped, err := h.Orders.MarkPaid(ctx, o.ID, paymentID, signature)
	if err != nil {
		return err
	}
	if !flipped {
		return nil
	}

	if o.UserID != nil {
		if err := h.spawnTicket(ctx, o); err != nil {
			// The payment stands; the support thread is recoverable.
			c.Logger().Errorf("confirm payment: auto-ticket for %s: %v", o.OrderNumber, err)
		}
	}
	if h.Publish != nil {
		var uid uint64
		if o.UserID != nil {
			uid = *o.UserID
		}
		h.Publish(ctx, queue.OrderPaidEvent{
			OrderID:     o.ID,
			OrderNumber: o.OrderNumber,
			UserID:      uid,
			Advance:     o.Advance,
			Total:       o.Total,
			Currency:    h.Cfg.Currency,
			PaidAt:      time.Now().UTC().Format(time.RFC3339),
		})
	}
	h.auditPayment(c, model.ActionPaymentVerified, o.OrderNumber,
		map[string]string{"payment_id": paymentID, "advance": fmt.Sprint(o.Advance)})
	return nil
}

// spawnTicket creates the order's support thread with a system confirmation
// message.  This is the designed customer-support entry point for every paid
// order with an account behind it.
func (h *PaymentHandler) spawnTicket(ctx context.Context, o model.Order) error {
	oid := o.ID
	t := model.Ticket{
		UserID:   *o.UserID,
		OrderID:  &oid,
		Subject:  fmt.Sprintf("Order %s", o.OrderNumber),
		Category: "order",
		Priority: model.PriorityNormal,
		Status:   model.TicketOpen,
	}
	if err := h.Tickets.Create(ctx, &t); err != nil {
		return err
	}
	body := fmt.Sprintf(
		"Your order %s is confirmed. We received your advance payment of %d %s; the remaining %d %s is due on completion. Progress updates will appear in this thread.",
		o.OrderNumber, o.Advance, h.Cfg.Currency, o.Remaining, h.Cfg.Currency)
	return h.Tickets.AddMessage(ctx, &model.TicketMessage{
		TicketID:   t.ID,
		AuthorName: "system",
		IsSystem:   true,
		Body:       body,
	})
}

func (h *PaymentHandler) auditPayment(c echo.Context, action, resourceID string, detail map[string]string) {
	blob, _ := json.Marshal(detail)
	var actor *uint64
	if u, ok := middleware.CurrentUser(c); ok {
		actor = &u.ID
	}
	if err := h.Audit.Insert(c.Request().Context(), model.ActivityLog{
		ActorID:      actor,
		Action:       action,
		ResourceType: "payment",
		ResourceID:   resourceID,
		Detail:       string(blob),
		IP:           c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	}); err != nil {
		c.Logger().Warnf("audit %s: %v", action, err)
	}
}
