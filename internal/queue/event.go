// Package queue defines message payloads exchanged over the message broker.
package queue

// OrderPaidEvent is published when an order's advance payment is verified.
// It carries enough information for downstream consumers to log, notify, or
// trigger analytics without querying the primary database.
type OrderPaidEvent struct {
	OrderID     uint64 `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      uint64 `json:"user_id,omitempty"`
	Advance     int64  `json:"advance"`
	Total       int64  `json:"total"`
	Currency    string `json:"currency"`
	PaidAt      string `json:"paid_at"`
}
