package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/config"
	"github.com/inkfolio/commission-backend/internal/gateway"
	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/queue"
	"github.com/inkfolio/commission-backend/internal/repository"
)

const (
	testKeySecret     = "test_key_secret"
	testWebhookSecret = "test_webhook_secret"
)

// ----- fakes -----

type fakePayOrders struct {
	orders map[uint64]*model.Order
}

func newFakePayOrders(orders ...*model.Order) *fakePayOrders {
	f := &fakePayOrders{orders: map[uint64]*model.Order{}}
	for _, o := range orders {
		f.orders[o.ID] = o
	}
	return f
}

func (f *fakePayOrders) GetByID(_ context.Context, id uint64) (model.Order, error) {
	o, ok := f.orders[id]
	if !ok {
		return model.Order{}, repository.ErrNotFound
	}
	return *o, nil
}

func (f *fakePayOrders) GetByGatewayOrderID(_ context.Context, gw string) (model.Order, error) {
	for _, o := range f.orders {
		if o.GatewayOrderID == gw {
			return *o, nil
		}
	}
	return model.Order{}, repository.ErrNotFound
}

func (f *fakePayOrders) SetGatewayOrder(_ context.Context, id uint64, gw string) error {
	o, ok := f.orders[id]
	if !ok {
		return repository.ErrNotFound
	}
	o.GatewayOrderID = gw
	return nil
}

func (f *fakePayOrders) MarkPaid(_ context.Context, id uint64, paymentID, signature string) (bool, error) {
	o, ok := f.orders[id]
	if !ok {
		return false, repository.ErrNotFound
	}
	if o.PaymentVerified {
		return false, nil
	}
	o.PaymentVerified = true
	o.Status = model.OrderAdvancePaid
	o.GatewayPaymentID = paymentID
	o.GatewaySignature = signature
	return true, nil
}

type fakeTicketWriter struct {
	tickets  []model.Ticket
	messages []model.TicketMessage
}

func (f *fakeTicketWriter) Create(_ context.Context, t *model.Ticket) error {
	t.ID = uint64(len(f.tickets) + 1)
	f.tickets = append(f.tickets, *t)
	return nil
}

func (f *fakeTicketWriter) AddMessage(_ context.Context, m *model.TicketMessage) error {
	m.ID = uint64(len(f.messages) + 1)
	f.messages = append(f.messages, *m)
	return nil
}

type fakeAuditWriter struct{ logs []model.ActivityLog }

func (f *fakeAuditWriter) Insert(_ context.Context, l model.ActivityLog) error {
	f.logs = append(f.logs, l)
	return nil
}

func (f *fakeAuditWriter) has(action string) bool {
	for _, l := range f.logs {
		if l.Action == action {
			return true
		}
	}
	return false
}

type fakeGatewayAPI struct {
	fetched map[string]gateway.Order
	created int
}

func (f *fakeGatewayAPI) CreateOrder(_ context.Context, amountMinor int64, currency, receipt string, _ map[string]string) (gateway.Order, error) {
	f.created++
	return gateway.Order{
		ID:       fmt.Sprintf("order_new_%d", f.created),
		Amount:   amountMinor,
		Currency: currency,
		Receipt:  receipt,
		Status:   "created",
	}, nil
}

func (f *fakeGatewayAPI) FetchOrder(_ context.Context, id string) (gateway.Order, error) {
	o, ok := f.fetched[id]
	if !ok {
		return gateway.Order{}, gateway.ErrGateway
	}
	return o, nil
}

// ----- helpers -----

func paymentTestConfig() config.Config {
	return config.Config{
		GatewayKeyID:     "key_test",
		GatewayKeySecret: testKeySecret,
		WebhookSecret:    testWebhookSecret,
		Currency:         "INR",
	}
}

func paidableOrder(id uint64, userID *uint64) *model.Order {
	return &model.Order{
		ID:             id,
		OrderNumber:    fmt.Sprintf("ART-20260101-%06d", id),
		UserID:         userID,
		Total:          1000,
		Advance:        500,
		Remaining:      500,
		GatewayOrderID: fmt.Sprintf("order_gw_%d", id),
		Status:         model.OrderPending,
	}
}

func postJSON(h func(echo.Context) error, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	blob, _ := json.Marshal(body)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(blob))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	c := echo.New().NewContext(req, rec)
	if err := h(c); err != nil {
		panic(err)
	}
	return rec
}

func newPaymentHandler(orders *fakePayOrders) (*PaymentHandler, *fakeTicketWriter, *fakeAuditWriter, *[]queue.OrderPaidEvent) {
	tickets := &fakeTicketWriter{}
	audit := &fakeAuditWriter{}
	var published []queue.OrderPaidEvent
	h := &PaymentHandler{
		Cfg:     paymentTestConfig(),
		Orders:  orders,
		Tickets: tickets,
		Gateway: &fakeGatewayAPI{fetched: map[string]gateway.Order{}},
		Audit:   audit,
		Publish: func(_ context.Context, ev queue.OrderPaidEvent) { published = append(published, ev) },
	}
	return h, tickets, audit, &published
}

// ----- verify -----

func TestVerifyValidSignature(t *testing.T) {
	uid := uint64(7)
	orders := newFakePayOrders(paidableOrder(1, &uid))
	h, tickets, audit, published := newPaymentHandler(orders)

	sig := gateway.SignPayment(testKeySecret, "order_gw_1", "pay_1")
	rec := postJSON(h.Verify, "/api/v1/payments/verify", verifyReq{
		OrderID: 1, GatewayOrderID: "order_gw_1", GatewayPaymentID: "pay_1", GatewaySignature: sig,
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	o := orders.orders[1]
	if !o.PaymentVerified || o.Status != model.OrderAdvancePaid {
		t.Fatalf("order not marked paid: verified=%v status=%s", o.PaymentVerified, o.Status)
	}
	if o.GatewayPaymentID != "pay_1" {
		t.Errorf("payment id = %q", o.GatewayPaymentID)
	}
	if len(tickets.tickets) != 1 {
		t.Fatalf("tickets = %d, want 1", len(tickets.tickets))
	}
	tk := tickets.tickets[0]
	if tk.UserID != uid || tk.Status != model.TicketOpen || tk.OrderID == nil || *tk.OrderID != 1 {
		t.Errorf("unexpected ticket: %+v", tk)
	}
	if len(tickets.messages) != 1 || !tickets.messages[0].IsSystem {
		t.Fatalf("expected one system message, got %+v", tickets.messages)
	}
	if !audit.has(model.ActionPaymentVerified) {
		t.Error("missing payment_verified audit record")
	}
	if len(*published) != 1 || (*published)[0].OrderNumber != o.OrderNumber {
		t.Errorf("published = %+v", *published)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	uid := uint64(7)
	orders := newFakePayOrders(paidableOrder(1, &uid))
	h, tickets, audit, _ := newPaymentHandler(orders)

	sig := gateway.SignPayment("wrong_secret", "order_gw_1", "pay_1")
	rec := postJSON(h.Verify, "/api/v1/payments/verify", verifyReq{
		OrderID: 1, GatewayOrderID: "order_gw_1", GatewayPaymentID: "pay_1", GatewaySignature: sig,
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if orders.orders[1].PaymentVerified {
		t.Fatal("order must not be marked paid on a bad signature")
	}
	if len(tickets.tickets) != 0 {
		t.Error("no ticket may be created on a bad signature")
	}
	if !audit.has(model.ActionPaymentRejected) {
		t.Error("signature failures must be audit-logged")
	}
}

func TestVerifyGatewayOrderMismatch(t *testing.T) {
	uid := uint64(7)
	orders := newFakePayOrders(paidableOrder(1, &uid))
	h, _, audit, _ := newPaymentHandler(orders)

	// A signature valid for some other gateway order must not confirm this
	// order.
	sig := gateway.SignPayment(testKeySecret, "order_gw_other", "pay_1")
	rec := postJSON(h.Verify, "/api/v1/payments/verify", verifyReq{
		OrderID: 1, GatewayOrderID: "order_gw_other", GatewayPaymentID: "pay_1", GatewaySignature: sig,
	}, nil)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if orders.orders[1].PaymentVerified {
		t.Fatal("mismatched gateway order must not confirm the order")
	}
	if !audit.has(model.ActionPaymentRejected) {
		t.Error("order mismatch must be audit-logged")
	}
}

func TestVerifyIdempotent(t *testing.T) {
	uid := uint64(7)
	orders := newFakePayOrders(paidableOrder(1, &uid))
	h, tickets, _, published := newPaymentHandler(orders)

	sig := gateway.SignPayment(testKeySecret, "order_gw_1", "pay_1")
	req := verifyReq{OrderID: 1, GatewayOrderID: "order_gw_1", GatewayPaymentID: "pay_1", GatewaySignature: sig}

	first := postJSON(h.Verify, "/api/v1/payments/verify", req, nil)
	second := postJSON(h.Verify, "/api/v1/payments/verify", req, nil)

	if first.Code != http.StatusOK || second.Code != http.StatusOK {
		t.Fatalf("statuses = %d, %d", first.Code, second.Code)
	}
	var resp struct {
		AlreadyVerified bool `json:"already_verified"`
	}
	if err := json.Unmarshal(second.Body.Bytes(), &resp); err != nil || !resp.AlreadyVerified {
		t.Errorf("second call should report already_verified, body %s", second.Body.String())
	}
	if len(tickets.tickets) != 1 {
		t.Fatalf("tickets = %d, want exactly 1 after double verify", len(tickets.tickets))
	}
	if len(*published) != 1 {
		t.Errorf("published = %d events, want 1", len(*published))
	}
}

func TestVerifyGuestOrderSkipsTicket(t *testing.T) {
	orders := newFakePayOrders(paidableOrder(1, nil))
	h, tickets, _, _ := newPaymentHandler(orders)

	sig := gateway.SignPayment(testKeySecret, "order_gw_1", "pay_1")
	rec := postJSON(h.Verify, "/api/v1/payments/verify", verifyReq{
		OrderID: 1, GatewayOrderID: "order_gw_1", GatewayPaymentID: "pay_1", GatewaySignature: sig,
	}, nil)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !orders.orders[1].PaymentVerified {
		t.Fatal("guest order should still be marked paid")
	}
	if len(tickets.tickets) != 0 {
		t.Error("guest orders have no account to attach a ticket to")
	}
}

// ----- webhook -----

func webhookBody(event, gatewayOrderID, paymentID string) []byte {
	body, _ := json.Marshal(map[string]any{
		"event": event,
		"payload": map[string]any{
			"payment": map[string]any{
				"entity": map[string]any{
					"id":       paymentID,
					"order_id": gatewayOrderID,
					"status":   "captured",
				},
			},
		},
	})
	return body
}

func TestWebhookCaptured(t *testing.T) {
	uid := uint64(7)
	orders := newFakePayOrders(paidableOrder(1, &uid))
	h, tickets, audit, _ := newPaymentHandler(orders)

	body := webhookBody("payment.captured", "order_gw_1", "pay_wh_1")
	rec := postJSON(h.Webhook, "/api/v1/payments/webhook", json.RawMessage(body), map[string]string{
		"X-Razorpay-Signature": gateway.SignWebhookBody(testWebhookSecret, body),
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !orders.orders[1].PaymentVerified {
		t.Fatal("webhook should confirm the order")
	}
	if len(tickets.tickets) != 1 {
		t.Errorf("tickets = %d, want 1", len(tickets.tickets))
	}
	if !audit.has(model.ActionPaymentVerified) {
		t.Error("missing payment_verified audit record")
	}
}

func TestWebhookBadSignature(t *testing.T) {
	uid := uint64(7)
	orders := newFakePayOrders(paidableOrder(1, &uid))
	h, _, audit, _ := newPaymentHandler(orders)

	body := webhookBody("payment.captured", "order_gw_1", "pay_wh_1")
	rec := postJSON(h.Webhook, "/api/v1/payments/webhook", json.RawMessage(body), map[string]string{
		"X-Razorpay-Signature": "not-a-signature",
	})

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if orders.orders[1].PaymentVerified {
		t.Fatal("forged webhook must not confirm the order")
	}
	if !audit.has(model.ActionPaymentRejected) {
		t.Error("forged webhook must be audit-logged")
	}
}

func TestWebhookAfterClientVerify(t *testing.T) {
	uid := uint64(7)
	orders := newFakePayOrders(paidableOrder(1, &uid))
	h, tickets, _, published := newPaymentHandler(orders)

	sig := gateway.SignPayment(testKeySecret, "order_gw_1", "pay_1")
	postJSON(h.Verify, "/api/v1/payments/verify", verifyReq{
		OrderID: 1, GatewayOrderID: "order_gw_1", GatewayPaymentID: "pay_1", GatewaySignature: sig,
	}, nil)

	body := webhookBody("payment.captured", "order_gw_1", "pay_1")
	rec := postJSON(h.Webhook, "/api/v1/payments/webhook", json.RawMessage(body), map[string]string{
		"X-Razorpay-Signature": gateway.SignWebhookBody(testWebhookSecret, body),
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(tickets.tickets) != 1 {
		t.Fatalf("tickets = %d, the webhook must not duplicate side effects", len(tickets.tickets))
	}
	if len(*published) != 1 {
		t.Errorf("published = %d events, want 1", len(*published))
	}
}

func TestWebhookUnknownEventAcknowledged(t *testing.T) {
	orders := newFakePayOrders()
	h, _, _, _ := newPaymentHandler(orders)

	body := webhookBody("refund.processed", "order_gw_9", "pay_9")
	rec := postJSON(h.Webhook, "/api/v1/payments/webhook", json.RawMessage(body), map[string]string{
		"X-Razorpay-Signature": gateway.SignWebhookBody(testWebhookSecret, body),
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, unhandled events must still be acknowledged", rec.Code)
	}
}

// ----- payment order creation -----

func TestCreatePaymentOrderReusesGatewayOrder(t *testing.T) {
	uid := uint64(7)
	orders := newFakePayOrders(paidableOrder(1, &uid))
	h, _, _, _ := newPaymentHandler(orders)
	gw := h.Gateway.(*fakeGatewayAPI)
	gw.fetched["order_gw_1"] = gateway.Order{ID: "order_gw_1", Amount: 500 * 100, Status: "created"}

	rec := postJSON(h.CreatePaymentOrder, "/api/v1/payments/order", map[string]uint64{"order_id": 1}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		GatewayOrderID string `json:"gateway_order_id"`
	}
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.GatewayOrderID != "order_gw_1" {
		t.Errorf("gateway order = %q, want the existing one reused", resp.GatewayOrderID)
	}
	if gw.created != 0 {
		t.Errorf("gateway CreateOrder called %d times, want 0", gw.created)
	}
}

func TestCreatePaymentOrderMintsWhenStale(t *testing.T) {
	uid := uint64(7)
	orders := newFakePayOrders(paidableOrder(1, &uid))
	h, _, _, _ := newPaymentHandler(orders)
	gw := h.Gateway.(*fakeGatewayAPI)
	// Stored gateway order is already paid on the gateway side: mint fresh.
	gw.fetched["order_gw_1"] = gateway.Order{ID: "order_gw_1", Amount: 500 * 100, Status: "paid"}

	rec := postJSON(h.CreatePaymentOrder, "/api/v1/payments/order", map[string]uint64{"order_id": 1}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if gw.created != 1 {
		t.Fatalf("gateway CreateOrder called %d times, want 1", gw.created)
	}
	if orders.orders[1].GatewayOrderID == "order_gw_1" {
		t.Error("stale gateway order id should be replaced")
	}
}

func TestCreatePaymentOrderAlreadyPaid(t *testing.T) {
	uid := uint64(7)
	o := paidableOrder(1, &uid)
	o.PaymentVerified = true
	orders := newFakePayOrders(o)
	h, _, _, _ := newPaymentHandler(orders)

	rec := postJSON(h.CreatePaymentOrder, "/api/v1/payments/order", map[string]uint64{"order_id": 1}, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}
