package model

import "time"

// Order lifecycle statuses.  Delivered, cancelled and refunded are terminal.
const (
	OrderPending           = "pending"
	OrderAdvancePaid       = "advance_paid"
	OrderInProgress        = "in_progress"
	OrderRevisionRequested = "revision_requested"
	OrderCompleted         = "completed"
	OrderFinalPaid         = "final_paid"
	OrderDelivered         = "delivered"
	OrderCancelled         = "cancelled"
	OrderRefunded          = "refunded"
)

// orderTransitions maps each status to the set of statuses an admin may
// move it to.  Cancelled/refunded are reachable from every non-terminal
// state; creation always starts at pending and the paid transitions are
// additionally driven by the payment verifier.
var orderTransitions = map[string][]string{
	OrderPending:           {OrderAdvancePaid, OrderCancelled, OrderRefunded},
	OrderAdvancePaid:       {OrderInProgress, OrderCancelled, OrderRefunded},
	OrderInProgress:        {OrderRevisionRequested, OrderCompleted, OrderCancelled, OrderRefunded},
	OrderRevisionRequested: {OrderInProgress, OrderCancelled, OrderRefunded},
	OrderCompleted:         {OrderFinalPaid, OrderCancelled, OrderRefunded},
	OrderFinalPaid:         {OrderDelivered, OrderRefunded},
	OrderDelivered:         {},
	OrderCancelled:         {},
	OrderRefunded:          {},
}

// ValidOrderTransition reports whether an order may move from one status to
// another.
func ValidOrderTransition(from, to string) bool {
	for _, s := range orderTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminalOrderStatus reports whether the status permits no further
// transitions.
func IsTerminalOrderStatus(s string) bool {
	next, ok := orderTransitions[s]
	return ok && len(next) == 0
}

// Order is one commission request as stored in the `orders` table.  The
// pricing fields are fixed at creation from server-side lookups and are
// never recomputed from client input afterward.
type Order struct {
	ID          uint64  // orders.id
	OrderNumber string  // orders.order_number (unique, human-shareable)
	UserID      *uint64 // orders.user_id (nullable; guest orders store contact inline)

	CustomerName  string // orders.customer_name
	CustomerEmail string // orders.customer_email
	CustomerPhone string // orders.customer_phone

	ServiceKey  string // orders.service_key
	ServiceName string // orders.service_name
	SizeKey     string // orders.size_key
	SizeName    string // orders.size_name
	AddonKey    string // orders.addon_key
	AddonName   string // orders.addon_name
	Message     string // orders.message

	BasePrice  int64 // orders.base_price
	SizePrice  int64 // orders.size_price
	AddonPrice int64 // orders.addon_price
	Total      int64 // orders.total
	Advance    int64 // orders.advance
	Remaining  int64 // orders.remaining

	GatewayOrderID   string // orders.gateway_order_id
	GatewayPaymentID string // orders.gateway_payment_id
	GatewaySignature string // orders.gateway_signature

	PaymentVerified bool       // orders.payment_verified (false->true exactly once)
	Status          string     // orders.status
	PaidAt          *time.Time // orders.paid_at (nullable)
	CompletedAt     *time.Time // orders.completed_at (nullable)
	DeliveredAt     *time.Time // orders.delivered_at (nullable)
	CreatedAt       time.Time  // orders.created_at
	UpdatedAt       time.Time  // orders.updated_at
}
