package model

import "time"

// Ticket statuses.  Closed is terminal; replies flip open<->pending to model
// whose court the ball is in.
const (
	TicketOpen     = "open"
	TicketPending  = "pending"
	TicketResolved = "resolved"
	TicketClosed   = "closed"
)

// Ticket priorities.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

// ticketTransitions maps each ticket status to its allowed successors.
var ticketTransitions = map[string][]string{
	TicketOpen:     {TicketPending, TicketResolved, TicketClosed},
	TicketPending:  {TicketOpen, TicketResolved, TicketClosed},
	TicketResolved: {TicketOpen, TicketClosed},
	TicketClosed:   {},
}

// ValidTicketTransition reports whether a ticket may move between the two
// statuses.
func ValidTicketTransition(from, to string) bool {
	for _, s := range ticketTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Ticket is a support thread, optionally linked to an order and always
// owned by a user.
type Ticket struct {
	ID         uint64    // tickets.id
	UserID     uint64    // tickets.user_id
	OrderID    *uint64   // tickets.order_id (nullable)
	Subject    string    // tickets.subject
	Category   string    // tickets.category
	Priority   string    // tickets.priority
	Status     string    // tickets.status
	AssigneeID *uint64   // tickets.assignee_id (nullable admin)
	CreatedAt  time.Time // tickets.created_at
	UpdatedAt  time.Time // tickets.updated_at
}

// Attachment metadata recorded with a message.  Files themselves live in
// object storage outside this service; only bounded metadata is kept.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

// TicketMessage is an append-only entry in a ticket's thread.
type TicketMessage struct {
	ID          uint64       // ticket_messages.id
	TicketID    uint64       // ticket_messages.ticket_id
	AuthorID    *uint64      // ticket_messages.author_id (nullable for system entries)
	AuthorName  string       // ticket_messages.author_name
	IsAdmin     bool         // ticket_messages.is_admin
	IsSystem    bool         // ticket_messages.is_system
	Body        string       // ticket_messages.body
	Attachments []Attachment // ticket_messages.attachments (JSON)
	CreatedAt   time.Time    // ticket_messages.created_at
}
