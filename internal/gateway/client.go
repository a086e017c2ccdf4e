// Package gateway is the payment-provider client: order creation, order
// lookup and HMAC signature verification for payments and webhooks.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrGateway wraps any provider-side failure so callers can distinguish
// gateway trouble from local errors.
var ErrGateway = errors.New("payment gateway error")

// Order is the provider-side record representing an amount to be collected.
// Amount is in minor currency units.
type Order struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

// Client talks to the gateway's REST API using key-pair basic auth.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
}

// NewClient builds a Client.  The zero-value http.Client timeout is replaced
// with a bounded one; no lock is ever held across these network calls.
func NewClient(baseURL, keyID, keySecret string) *Client {
	return &Client{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		http:      &http.Client{Timeout: 10 * time.Second},
	}
}

// CreateOrder asks the gateway to mint an order for the given amount in
// minor units.
func (c *Client) CreateOrder(ctx context.Context, amountMinor int64, currency, receipt string, notes map[string]string) (Order, error) {
	payload := map[string]any{
		"amount":   amountMinor,
		"currency": currency,
		"receipt":  receipt,
	}
	if len(notes) > 0 {
		payload["notes"] = notes
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return Order{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return Order{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

// FetchOrder retrieves an existing gateway order by id.
func (c *Client) FetchOrder(ctx context.Context, id string) (Order, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/orders/"+id, nil)
	if err != nil {
		return Order{}, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) (Order, error) {
	req.SetBasicAuth(c.keyID, c.keySecret)
	resp, err := c.http.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Order{}, fmt.Errorf("%w: status %d", ErrGateway, resp.StatusCode)
	}
	var o Order
	if err := json.Unmarshal(data, &o); err != nil {
		return Order{}, fmt.Errorf("%w: %v", ErrGateway, err)
	}
	return o, nil
}
