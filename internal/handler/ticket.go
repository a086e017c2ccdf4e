package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/middleware"
	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/repository"
)

const (
	maxAttachments    = 3
	maxAttachmentSize = 5 << 20 // bytes, metadata bound; files live in object storage
	maxSubjectLen     = 200
	maxMessageLen     = 5000
)

// TicketStore is the slice of the ticket repository the handler uses.
type TicketStore interface {
	Create(ctx context.Context, t *model.Ticket) error
	GetByID(ctx context.Context, id uint64) (model.Ticket, error)
	ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Ticket, error)
	List(ctx context.Context, status string, limit, offset int) ([]model.Ticket, error)
	UpdateStatus(ctx context.Context, id uint64, status string) error
	UpdatePriority(ctx context.Context, id uint64, priority string) error
	UpdateAssignee(ctx context.Context, id uint64, assigneeID *uint64) error
	Delete(ctx context.Context, id uint64) error
	AddMessage(ctx context.Context, m *model.TicketMessage) error
	ListMessages(ctx context.Context, ticketID uint64) ([]model.TicketMessage, error)
}

// TicketOrderReader checks order linkage on ticket creation.
type TicketOrderReader interface {
	GetByID(ctx context.Context, id uint64) (model.Order, error)
}

// TicketHandler serves the support-ticket endpoints.
type TicketHandler struct {
	Tickets TicketStore
	Orders  TicketOrderReader
	Audit   AuditWriter
}

func NewTicketHandler(t TicketStore, o TicketOrderReader, a AuditWriter) *TicketHandler {
	return &TicketHandler{Tickets: t, Orders: o, Audit: a}
}

type createTicketReq struct {
	Subject     string             `json:"subject"`
	Category    string             `json:"category"`
	Priority    string             `json:"priority"`
	OrderID     *uint64            `json:"order_id"`
	Message     string             `json:"message"`
	Attachments []model.Attachment `json:"attachments"`
}

func validAttachments(atts []model.Attachment) (string, bool) {
	if len(atts) > maxAttachments {
		return "too many attachments", false
	}
	for _, a := range atts {
		if strings.TrimSpace(a.Name) == "" || strings.TrimSpace(a.URL) == "" {
			return "attachment name and url are required", false
		}
		if a.Size <= 0 || a.Size > maxAttachmentSize {
			return "attachment exceeds the size limit", false
		}
	}
	return "", true
}

// Create opens a ticket with its initial message.  A linked order must
// belong to the caller; anything else is reported as not found so ticket
// creation cannot be used to probe order ids.
func (h *TicketHandler) Create(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	var req createTicketReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Subject = strings.TrimSpace(req.Subject)
	req.Message = strings.TrimSpace(req.Message)

	var details []echo.Map
	if req.Subject == "" || len(req.Subject) > maxSubjectLen {
		details = append(details, echo.Map{"field": "subject", "message": "subject is required and must be short"})
	}
	if req.Message == "" || len(req.Message) > maxMessageLen {
		details = append(details, echo.Map{"field": "message", "message": "message is required and bounded"})
	}
	switch req.Priority {
	case "", model.PriorityLow, model.PriorityNormal, model.PriorityHigh, model.PriorityUrgent:
	default:
		details = append(details, echo.Map{"field": "priority", "message": "unknown priority"})
	}
	if msg, ok := validAttachments(req.Attachments); !ok {
		details = append(details, echo.Map{"field": "attachments", "message": msg})
	}
	if len(details) > 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "details": details})
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if req.OrderID != nil {
		o, err := h.Orders.GetByID(ctx, *req.OrderID)
		if err != nil || o.UserID == nil || *o.UserID != u.ID {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
	}

	t := model.Ticket{
		UserID:   u.ID,
		OrderID:  req.OrderID,
		Subject:  req.Subject,
		Category: strings.TrimSpace(req.Category),
		Priority: req.Priority,
		Status:   model.TicketOpen,
	}
	if err := h.Tickets.Create(ctx, &t); err != nil {
		c.Logger().Errorf("create ticket: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create ticket"})
	}
	msg := model.TicketMessage{
		TicketID:    t.ID,
		AuthorID:    &u.ID,
		AuthorName:  u.Name,
		Body:        req.Message,
		Attachments: req.Attachments,
	}
	if err := h.Tickets.AddMessage(ctx, &msg); err != nil {
		c.Logger().Errorf("create ticket: initial message: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create ticket"})
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "ticket": ticketJSON(t)})
}

// ListMine returns the caller's tickets.
func (h *TicketHandler) ListMine(c echo.Context) error {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
	}
	limit, offset := parsePage(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ts, err := h.Tickets.ListByUser(ctx, u.ID, limit, offset)
	if err != nil {
		c.Logger().Errorf("list tickets: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(ts))
	for _, t := range ts {
		out = append(out, ticketJSON(t))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "tickets": out})
}

// ListAll returns all tickets for support staff, optionally filtered by
// status.
func (h *TicketHandler) ListAll(c echo.Context) error {
	limit, offset := parsePage(c)

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	ts, err := h.Tickets.List(ctx, c.QueryParam("status"), limit, offset)
	if err != nil {
		c.Logger().Errorf("list all tickets: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(ts))
	for _, t := range ts {
		out = append(out, ticketJSON(t))
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "tickets": out})
}

// load fetches the ticket and enforces visibility: admins see everything,
// everyone else only their own tickets, with missing and foreign tickets
// indistinguishable.
func (h *TicketHandler) load(ctx context.Context, c echo.Context) (model.Ticket, *model.User, bool) {
	u, ok := middleware.CurrentUser(c)
	if !ok {
		_ = c.JSON(http.StatusUnauthorized, echo.Map{"error": "authentication required"})
		return model.Ticket{}, nil, false
	}
	id, ok := parseID(c, "id")
	if !ok {
		_ = c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid ticket id"})
		return model.Ticket{}, nil, false
	}
	t, err := h.Tickets.GetByID(ctx, id)
	if err != nil {
		if err == repository.ErrNotFound {
			_ = c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
		} else {
			c.Logger().Errorf("load ticket: %v", err)
			_ = c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
		}
		return model.Ticket{}, nil, false
	}
	if u.Role != model.RoleAdmin && t.UserID != u.ID {
		_ = c.JSON(http.StatusNotFound, echo.Map{"error": "ticket not found"})
		return model.Ticket{}, nil, false
	}
	return t, u, true
}

// Get returns a ticket with its full message thread.
func (h *TicketHandler) Get(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, _, ok := h.load(ctx, c)
	if !ok {
		return nil
	}
	msgs, err := h.Tickets.ListMessages(ctx, t.ID)
	if err != nil {
		c.Logger().Errorf("ticket messages: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "query failed"})
	}
	out := make([]echo.Map, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, echo.Map{
			"id":          m.ID,
			"author_id":   m.AuthorID,
			"author_name": m.AuthorName,
			"is_admin":    m.IsAdmin,
			"is_system":   m.IsSystem,
			"body":        m.Body,
			"attachments": m.Attachments,
			"created_at":  m.CreatedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "ticket": ticketJSON(t), "messages": out})
}

type addMessageReq struct {
	Message     string             `json:"message"`
	Attachments []model.Attachment `json:"attachments"`
}

// AddMessage appends a reply to the thread.  A reply also moves the ball:
// a customer reply puts the ticket back in the staff's queue (open), a staff
// reply marks it waiting on the customer (pending).  Closed threads reject
// new messages.
func (h *TicketHandler) AddMessage(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, u, ok := h.load(ctx, c)
	if !ok {
		return nil
	}
	if t.Status == model.TicketClosed {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "ticket is closed"})
	}

	var req addMessageReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	req.Message = strings.TrimSpace(req.Message)
	if req.Message == "" || len(req.Message) > maxMessageLen {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "message is required and bounded"})
	}
	if msg, ok := validAttachments(req.Attachments); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}

	isAdmin := u.Role == model.RoleAdmin
	m := model.TicketMessage{
		TicketID:    t.ID,
		AuthorID:    &u.ID,
		AuthorName:  u.Name,
		IsAdmin:     isAdmin,
		Body:        req.Message,
		Attachments: req.Attachments,
	}
	if err := h.Tickets.AddMessage(ctx, &m); err != nil {
		c.Logger().Errorf("add message: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not add message"})
	}

	next := t.Status
	if isAdmin && t.Status == model.TicketOpen {
		next = model.TicketPending
	} else if !isAdmin && t.Status != model.TicketOpen {
		next = model.TicketOpen
	}
	if next != t.Status && model.ValidTicketTransition(t.Status, next) {
		if err := h.Tickets.UpdateStatus(ctx, t.ID, next); err != nil {
			c.Logger().Warnf("add message: status flip: %v", err)
		} else {
			t.Status = next
		}
	}
	return c.JSON(http.StatusCreated, echo.Map{"success": true, "status": t.Status, "message_id": m.ID})
}

type ticketStatusReq struct {
	Status string `json:"status"`
}

// UpdateStatus is the customer-facing status endpoint: the ticket's owner
// may close it, and nothing else.  Staff transitions go through
// AdminUpdateStatus, behind the manage_tickets permission, so this route
// grants no authority to an admin role on its own.
func (h *TicketHandler) UpdateStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, u, ok := h.load(ctx, c)
	if !ok {
		return nil
	}
	var req ticketStatusReq
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status is required"})
	}
	if req.Status != model.TicketClosed || t.UserID != u.ID {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "you may only close your own ticket"})
	}
	if !model.ValidTicketTransition(t.Status, req.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "invalid status transition", "from": t.Status, "to": req.Status,
		})
	}
	if err := h.Tickets.UpdateStatus(ctx, t.ID, req.Status); err != nil {
		c.Logger().Errorf("ticket status: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.auditTicket(c, u, "ticket_status_changed", t.ID, map[string]string{"from": t.Status, "to": req.Status})
	return c.JSON(http.StatusOK, echo.Map{"success": true, "status": req.Status})
}

// AdminUpdateStatus moves any ticket through its lifecycle (staff only,
// enforced in the router).
func (h *TicketHandler) AdminUpdateStatus(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, u, ok := h.load(ctx, c)
	if !ok {
		return nil
	}
	var req ticketStatusReq
	if err := c.Bind(&req); err != nil || req.Status == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "status is required"})
	}
	if !model.ValidTicketTransition(t.Status, req.Status) {
		return c.JSON(http.StatusBadRequest, echo.Map{
			"error": "invalid status transition", "from": t.Status, "to": req.Status,
		})
	}
	if err := h.Tickets.UpdateStatus(ctx, t.ID, req.Status); err != nil {
		c.Logger().Errorf("ticket status: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	h.auditTicket(c, u, "ticket_status_changed", t.ID, map[string]string{"from": t.Status, "to": req.Status})
	return c.JSON(http.StatusOK, echo.Map{"success": true, "status": req.Status})
}

type ticketPriorityReq struct {
	Priority string `json:"priority"`
}

// UpdatePriority changes a ticket's priority (staff only, enforced in the
// router).
func (h *TicketHandler) UpdatePriority(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, _, ok := h.load(ctx, c)
	if !ok {
		return nil
	}
	var req ticketPriorityReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	switch req.Priority {
	case model.PriorityLow, model.PriorityNormal, model.PriorityHigh, model.PriorityUrgent:
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unknown priority"})
	}
	if err := h.Tickets.UpdatePriority(ctx, t.ID, req.Priority); err != nil {
		c.Logger().Errorf("ticket priority: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true, "priority": req.Priority})
}

type assignReq struct {
	AssigneeID *uint64 `json:"assignee_id"`
}

// Assign sets or clears the handling staff member.
func (h *TicketHandler) Assign(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, _, ok := h.load(ctx, c)
	if !ok {
		return nil
	}
	var req assignReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	if err := h.Tickets.UpdateAssignee(ctx, t.ID, req.AssigneeID); err != nil {
		c.Logger().Errorf("ticket assign: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "update failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

// Delete removes a ticket and its thread (staff only, enforced in the
// router).
func (h *TicketHandler) Delete(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	t, u, ok := h.load(ctx, c)
	if !ok {
		return nil
	}
	if err := h.Tickets.Delete(ctx, t.ID); err != nil {
		c.Logger().Errorf("ticket delete: %v", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "delete failed"})
	}
	h.auditTicket(c, u, "ticket_deleted", t.ID, map[string]string{"subject": t.Subject})
	return c.JSON(http.StatusOK, echo.Map{"success": true})
}

func (h *TicketHandler) auditTicket(c echo.Context, u *model.User, action string, ticketID uint64, detail map[string]string) {
	blob, _ := json.Marshal(detail)
	if err := h.Audit.Insert(c.Request().Context(), model.ActivityLog{
		ActorID:      &u.ID,
		Action:       action,
		ResourceType: "ticket",
		ResourceID:   strconv.FormatUint(ticketID, 10),
		Detail:       string(blob),
		IP:           c.RealIP(),
		UserAgent:    c.Request().UserAgent(),
	}); err != nil {
		c.Logger().Warnf("audit %s: %v", action, err)
	}
}
