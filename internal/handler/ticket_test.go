package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/repository"
)

type fakeTicketStore struct {
	tickets  map[uint64]*model.Ticket
	messages []model.TicketMessage
}

func newFakeTicketStore(tickets ...*model.Ticket) *fakeTicketStore {
	f := &fakeTicketStore{tickets: map[uint64]*model.Ticket{}}
	for _, t := range tickets {
		f.tickets[t.ID] = t
	}
	return f
}

func (f *fakeTicketStore) Create(_ context.Context, t *model.Ticket) error {
	t.ID = uint64(len(f.tickets) + 1)
	f.tickets[t.ID] = t
	return nil
}

func (f *fakeTicketStore) GetByID(_ context.Context, id uint64) (model.Ticket, error) {
	t, ok := f.tickets[id]
	if !ok {
		return model.Ticket{}, repository.ErrNotFound
	}
	return *t, nil
}

func (f *fakeTicketStore) ListByUser(_ context.Context, userID uint64, _, _ int) ([]model.Ticket, error) {
	var out []model.Ticket
	for _, t := range f.tickets {
		if t.UserID == userID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTicketStore) List(_ context.Context, status string, _, _ int) ([]model.Ticket, error) {
	var out []model.Ticket
	for _, t := range f.tickets {
		if status == "" || t.Status == status {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTicketStore) UpdateStatus(_ context.Context, id uint64, status string) error {
	t, ok := f.tickets[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Status = status
	return nil
}

func (f *fakeTicketStore) UpdatePriority(_ context.Context, id uint64, priority string) error {
	t, ok := f.tickets[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.Priority = priority
	return nil
}

func (f *fakeTicketStore) UpdateAssignee(_ context.Context, id uint64, assigneeID *uint64) error {
	t, ok := f.tickets[id]
	if !ok {
		return repository.ErrNotFound
	}
	t.AssigneeID = assigneeID
	return nil
}

func (f *fakeTicketStore) Delete(_ context.Context, id uint64) error {
	if _, ok := f.tickets[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.tickets, id)
	return nil
}

func (f *fakeTicketStore) AddMessage(_ context.Context, m *model.TicketMessage) error {
	m.ID = uint64(len(f.messages) + 1)
	f.messages = append(f.messages, *m)
	return nil
}

func (f *fakeTicketStore) ListMessages(_ context.Context, ticketID uint64) ([]model.TicketMessage, error) {
	var out []model.TicketMessage
	for _, m := range f.messages {
		if m.TicketID == ticketID {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeOrderReader struct{ orders map[uint64]model.Order }

func (f *fakeOrderReader) GetByID(_ context.Context, id uint64) (model.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return model.Order{}, repository.ErrNotFound
	}
	return o, nil
}

func customer(id uint64) *model.User {
	return &model.User{ID: id, Name: "Rina", Email: "rina@example.com", Role: model.RoleUser}
}

func staff(id uint64) *model.User {
	return &model.User{ID: id, Name: "Mori", Email: "mori@example.com", Role: model.RoleAdmin}
}

// ticketRequest runs a handler with an authenticated user and an optional
// :id path parameter.
func ticketRequest(h func(echo.Context) error, u *model.User, method, path, id string, body any) *httptest.ResponseRecorder {
	blob, _ := json.Marshal(body)
	req := httptest.NewRequest(method, path, bytes.NewReader(blob))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if id != "" {
		c.SetParamNames("id")
		c.SetParamValues(id)
	}
	if u != nil {
		c.Set("current_user", u)
	}
	if err := h(c); err != nil {
		panic(err)
	}
	return rec
}

func TestCreateTicketWithOwnOrder(t *testing.T) {
	uid := uint64(3)
	store := newFakeTicketStore()
	orders := &fakeOrderReader{orders: map[uint64]model.Order{
		9: {ID: 9, UserID: &uid},
	}}
	h := NewTicketHandler(store, orders, &fakeAuditWriter{})

	oid := uint64(9)
	rec := ticketRequest(h.Create, customer(3), http.MethodPost, "/api/v1/tickets", "", createTicketReq{
		Subject: "Question about my commission", Message: "When do sketches arrive?", OrderID: &oid,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(store.tickets) != 1 || len(store.messages) != 1 {
		t.Fatalf("tickets=%d messages=%d, want 1 and 1", len(store.tickets), len(store.messages))
	}
	tk := store.tickets[1]
	if tk.Status != model.TicketOpen || tk.Priority != model.PriorityNormal {
		t.Errorf("ticket defaults wrong: %+v", tk)
	}
}

func TestCreateTicketForeignOrderHidden(t *testing.T) {
	other := uint64(99)
	store := newFakeTicketStore()
	orders := &fakeOrderReader{orders: map[uint64]model.Order{
		9: {ID: 9, UserID: &other},
	}}
	h := NewTicketHandler(store, orders, &fakeAuditWriter{})

	oid := uint64(9)
	rec := ticketRequest(h.Create, customer(3), http.MethodPost, "/api/v1/tickets", "", createTicketReq{
		Subject: "s", Message: "m", OrderID: &oid,
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, foreign orders must read as not found", rec.Code)
	}
	if len(store.tickets) != 0 {
		t.Error("no ticket may be created against a foreign order")
	}
}

func TestCreateTicketAttachmentBounds(t *testing.T) {
	h := NewTicketHandler(newFakeTicketStore(), &fakeOrderReader{}, &fakeAuditWriter{})

	tooMany := make([]model.Attachment, maxAttachments+1)
	for i := range tooMany {
		tooMany[i] = model.Attachment{Name: "a.png", URL: "https://cdn/a.png", Size: 100}
	}
	cases := []struct {
		name string
		atts []model.Attachment
	}{
		{"too many", tooMany},
		{"oversized", []model.Attachment{{Name: "a.png", URL: "https://cdn/a.png", Size: maxAttachmentSize + 1}}},
		{"missing url", []model.Attachment{{Name: "a.png", Size: 100}}},
	}
	for _, tc := range cases {
		rec := ticketRequest(h.Create, customer(3), http.MethodPost, "/api/v1/tickets", "", createTicketReq{
			Subject: "s", Message: "m", Attachments: tc.atts,
		})
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d, want 400", tc.name, rec.Code)
		}
	}
}

func TestReplyFlipsStatus(t *testing.T) {
	store := newFakeTicketStore(&model.Ticket{ID: 1, UserID: 3, Status: model.TicketOpen})
	h := NewTicketHandler(store, &fakeOrderReader{}, &fakeAuditWriter{})

	// Staff reply: the ball moves to the customer.
	rec := ticketRequest(h.AddMessage, staff(50), http.MethodPost, "/api/v1/tickets/1/messages", "1",
		addMessageReq{Message: "Sketch attached, please review."})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if got := store.tickets[1].Status; got != model.TicketPending {
		t.Fatalf("after staff reply status = %q, want pending", got)
	}

	// Customer reply: back in the staff queue.
	rec = ticketRequest(h.AddMessage, customer(3), http.MethodPost, "/api/v1/tickets/1/messages", "1",
		addMessageReq{Message: "Looks great, one change please."})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := store.tickets[1].Status; got != model.TicketOpen {
		t.Fatalf("after customer reply status = %q, want open", got)
	}
	if !store.messages[0].IsAdmin || store.messages[1].IsAdmin {
		t.Error("is_admin flags not recorded per author")
	}
}

func TestClosedTicketRejectsMessages(t *testing.T) {
	store := newFakeTicketStore(&model.Ticket{ID: 1, UserID: 3, Status: model.TicketClosed})
	h := NewTicketHandler(store, &fakeOrderReader{}, &fakeAuditWriter{})

	rec := ticketRequest(h.AddMessage, customer(3), http.MethodPost, "/api/v1/tickets/1/messages", "1",
		addMessageReq{Message: "hello?"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(store.messages) != 0 {
		t.Error("closed threads must stay append-free")
	}
}

func TestCustomerMayOnlyClose(t *testing.T) {
	store := newFakeTicketStore(&model.Ticket{ID: 1, UserID: 3, Status: model.TicketOpen})
	h := NewTicketHandler(store, &fakeOrderReader{}, &fakeAuditWriter{})

	rec := ticketRequest(h.UpdateStatus, customer(3), http.MethodPatch, "/api/v1/tickets/1/status", "1",
		ticketStatusReq{Status: model.TicketResolved})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, customers must not resolve tickets", rec.Code)
	}

	rec = ticketRequest(h.UpdateStatus, customer(3), http.MethodPatch, "/api/v1/tickets/1/status", "1",
		ticketStatusReq{Status: model.TicketClosed})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, customers may close their own tickets", rec.Code)
	}
	if store.tickets[1].Status != model.TicketClosed {
		t.Error("close did not persist")
	}
}

// The customer status route carries no permission gate, so it must grant
// nothing beyond closing one's own ticket, not even to an admin role.
func TestStatusRouteGrantsNoStaffAuthority(t *testing.T) {
	store := newFakeTicketStore(&model.Ticket{ID: 1, UserID: 3, Status: model.TicketOpen})
	h := NewTicketHandler(store, &fakeOrderReader{}, &fakeAuditWriter{})

	rec := ticketRequest(h.UpdateStatus, staff(50), http.MethodPatch, "/api/v1/tickets/1/status", "1",
		ticketStatusReq{Status: model.TicketResolved})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, admins must use the gated admin route to resolve", rec.Code)
	}
	rec = ticketRequest(h.UpdateStatus, staff(50), http.MethodPatch, "/api/v1/tickets/1/status", "1",
		ticketStatusReq{Status: model.TicketClosed})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, closing a foreign ticket must be refused", rec.Code)
	}
	if store.tickets[1].Status != model.TicketOpen {
		t.Errorf("ticket status changed to %q through the ungated route", store.tickets[1].Status)
	}
}

func TestAdminStatusTransitions(t *testing.T) {
	store := newFakeTicketStore(&model.Ticket{ID: 1, UserID: 3, Status: model.TicketOpen})
	h := NewTicketHandler(store, &fakeOrderReader{}, &fakeAuditWriter{})

	rec := ticketRequest(h.AdminUpdateStatus, staff(50), http.MethodPatch, "/api/v1/admin/tickets/1/status", "1",
		ticketStatusReq{Status: model.TicketResolved})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if store.tickets[1].Status != model.TicketResolved {
		t.Fatalf("resolve did not persist: %q", store.tickets[1].Status)
	}
}

func TestClosedIsTerminal(t *testing.T) {
	store := newFakeTicketStore(&model.Ticket{ID: 1, UserID: 3, Status: model.TicketClosed})
	h := NewTicketHandler(store, &fakeOrderReader{}, &fakeAuditWriter{})

	rec := ticketRequest(h.AdminUpdateStatus, staff(50), http.MethodPatch, "/api/v1/admin/tickets/1/status", "1",
		ticketStatusReq{Status: model.TicketOpen})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, closed must be terminal even for staff", rec.Code)
	}
}

func TestForeignTicketReadsAsMissing(t *testing.T) {
	store := newFakeTicketStore(&model.Ticket{ID: 1, UserID: 99, Status: model.TicketOpen})
	h := NewTicketHandler(store, &fakeOrderReader{}, &fakeAuditWriter{})

	rec := ticketRequest(h.Get, customer(3), http.MethodGet, "/api/v1/tickets/1", "1", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, foreign tickets must read as not found", rec.Code)
	}
}
