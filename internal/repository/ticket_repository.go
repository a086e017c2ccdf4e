package repository

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/inkfolio/commission-backend/internal/model"
)

const ticketColumns = "id,user_id,order_id,subject,category,priority,status,assignee_id,created_at,updated_at"

// TicketRepo persists support tickets and their append-only message threads.
type TicketRepo struct{ DB *sql.DB }

func NewTicketRepo(db *sql.DB) *TicketRepo { return &TicketRepo{DB: db} }

// Create inserts a ticket and sets t.ID.
func (r *TicketRepo) Create(ctx context.Context, t *model.Ticket) error {
	if t.Priority == "" {
		t.Priority = model.PriorityNormal
	}
	if t.Status == "" {
		t.Status = model.TicketOpen
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO tickets (user_id, order_id, subject, category, priority, status) VALUES (?,?,?,?,?,?)",
		t.UserID, t.OrderID, t.Subject, t.Category, t.Priority, t.Status)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	return nil
}

// GetByID fetches a ticket.
func (r *TicketRepo) GetByID(ctx context.Context, id uint64) (model.Ticket, error) {
	t, err := r.scan(r.DB.QueryRowContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE id=? LIMIT 1", id))
	if err == sql.ErrNoRows {
		return model.Ticket{}, ErrNotFound
	}
	return t, err
}

// ListByUser returns a user's tickets, newest first.
func (r *TicketRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Ticket, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+ticketColumns+" FROM tickets WHERE user_id=? ORDER BY id DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// List returns all tickets, optionally filtered by status, newest first.
func (r *TicketRepo) List(ctx context.Context, status string, limit, offset int) ([]model.Ticket, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = r.DB.QueryContext(ctx,
			"SELECT "+ticketColumns+" FROM tickets WHERE status=? ORDER BY id DESC LIMIT ? OFFSET ?",
			status, limit, offset)
	} else {
		rows, err = r.DB.QueryContext(ctx,
			"SELECT "+ticketColumns+" FROM tickets ORDER BY id DESC LIMIT ? OFFSET ?",
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// UpdateStatus moves a ticket to a new status.  Transition validity is the
// caller's job.
func (r *TicketRepo) UpdateStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE tickets SET status=? WHERE id=?", status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdatePriority changes a ticket's priority.
func (r *TicketRepo) UpdatePriority(ctx context.Context, id uint64, priority string) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE tickets SET priority=? WHERE id=?", priority, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// UpdateAssignee assigns or clears the ticket's handling admin.
func (r *TicketRepo) UpdateAssignee(ctx context.Context, id uint64, assigneeID *uint64) error {
	res, err := r.DB.ExecContext(ctx, "UPDATE tickets SET assignee_id=? WHERE id=?", assigneeID, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// Delete removes a ticket and (via FK cascade) its messages.
func (r *TicketRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM tickets WHERE id=?", id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// CountOpen returns the number of tickets not yet closed.
func (r *TicketRepo) CountOpen(ctx context.Context) (int64, error) {
	var n int64
	err := r.DB.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM tickets WHERE status<>?", model.TicketClosed).Scan(&n)
	return n, err
}

// AddMessage appends a message to a ticket's thread and sets m.ID.
// Attachment metadata is stored as JSON.
func (r *TicketRepo) AddMessage(ctx context.Context, m *model.TicketMessage) error {
	var attachments any
	if len(m.Attachments) > 0 {
		blob, err := json.Marshal(m.Attachments)
		if err != nil {
			return err
		}
		attachments = string(blob)
	}
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO ticket_messages (ticket_id, author_id, author_name, is_admin, is_system, body, attachments) VALUES (?,?,?,?,?,?,?)",
		m.TicketID, m.AuthorID, m.AuthorName, m.IsAdmin, m.IsSystem, m.Body, attachments)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)
	return nil
}

// ListMessages returns a ticket's thread in insertion order.
func (r *TicketRepo) ListMessages(ctx context.Context, ticketID uint64) ([]model.TicketMessage, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id,ticket_id,author_id,author_name,is_admin,is_system,body,attachments,created_at FROM ticket_messages WHERE ticket_id=? ORDER BY id ASC",
		ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.TicketMessage
	for rows.Next() {
		var (
			m           model.TicketMessage
			authorID    sql.NullInt64
			attachments sql.NullString
		)
		if err := rows.Scan(&m.ID, &m.TicketID, &authorID, &m.AuthorName, &m.IsAdmin, &m.IsSystem, &m.Body, &attachments, &m.CreatedAt); err != nil {
			return nil, err
		}
		if authorID.Valid {
			id := uint64(authorID.Int64)
			m.AuthorID = &id
		}
		if attachments.Valid && attachments.String != "" {
			_ = json.Unmarshal([]byte(attachments.String), &m.Attachments)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *TicketRepo) collect(rows *sql.Rows) ([]model.Ticket, error) {
	defer rows.Close()
	var out []model.Ticket
	for rows.Next() {
		t, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *TicketRepo) scan(row rowScanner) (model.Ticket, error) {
	var (
		t          model.Ticket
		orderID    sql.NullInt64
		assigneeID sql.NullInt64
	)
	err := row.Scan(&t.ID, &t.UserID, &orderID, &t.Subject, &t.Category, &t.Priority, &t.Status, &assigneeID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return model.Ticket{}, err
	}
	if orderID.Valid {
		id := uint64(orderID.Int64)
		t.OrderID = &id
	}
	if assigneeID.Valid {
		id := uint64(assigneeID.Int64)
		t.AssigneeID = &id
	}
	return t, nil
}
