package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/inkfolio/commission-backend/internal/model"
)

const orderColumns = `id,order_number,user_id,customer_name,customer_email,customer_phone,
service_key,service_name,size_key,size_name,addon_key,addon_name,message,
base_price,size_price,addon_price,total,advance,remaining,
gateway_order_id,gateway_payment_id,gateway_signature,
payment_verified,status,paid_at,completed_at,delivered_at,created_at,updated_at`

// OrderRepo persists commission orders.
type OrderRepo struct{ DB *sql.DB }

func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{DB: db} }

// Create inserts a pending order and sets o.ID.  Pricing fields must already
// be resolved server-side; this layer never computes prices.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order) error {
	res, err := r.DB.ExecContext(ctx, `INSERT INTO orders
		(order_number, user_id, customer_name, customer_email, customer_phone,
		 service_key, service_name, size_key, size_name, addon_key, addon_name, message,
		 base_price, size_price, addon_price, total, advance, remaining, status)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.OrderNumber, o.UserID, o.CustomerName, o.CustomerEmail, o.CustomerPhone,
		o.ServiceKey, o.ServiceName, o.SizeKey, o.SizeName, o.AddonKey, o.AddonName, o.Message,
		o.BasePrice, o.SizePrice, o.AddonPrice, o.Total, o.Advance, o.Remaining, model.OrderPending)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "1062") {
			return ErrDuplicateOrderNumber
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	o.Status = model.OrderPending
	return nil
}

// Delete removes an order row.  Used as the compensating action when the
// gateway order could not be created after the database insert.
func (r *OrderRepo) Delete(ctx context.Context, id uint64) error {
	_, err := r.DB.ExecContext(ctx, "DELETE FROM orders WHERE id=?", id)
	return err
}

// GetByID fetches an order by primary key.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (model.Order, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE id=? LIMIT 1", id))
}

// GetByGatewayOrderID fetches the order tied to a gateway order, used when a
// webhook arrives carrying only gateway identifiers.
func (r *OrderRepo) GetByGatewayOrderID(ctx context.Context, gatewayOrderID string) (model.Order, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE gateway_order_id=? LIMIT 1", gatewayOrderID))
}

// SetGatewayOrder records the gateway-side order id minted for the advance.
func (r *OrderRepo) SetGatewayOrder(ctx context.Context, id uint64, gatewayOrderID string) error {
	_, err := r.DB.ExecContext(ctx,
		"UPDATE orders SET gateway_order_id=? WHERE id=?", gatewayOrderID, id)
	return err
}

// MarkPaid flips payment_verified and moves the order to advance_paid,
// recording the gateway payment identifiers.  The WHERE clause makes the
// write a no-op when the order is already verified, so the two confirmation
// paths can race safely.  Returns true when this call performed the flip.
func (r *OrderRepo) MarkPaid(ctx context.Context, id uint64, paymentID, signature string) (bool, error) {
	res, err := r.DB.ExecContext(ctx, `UPDATE orders
		SET payment_verified=1, status=?, gateway_payment_id=?, gateway_signature=?, paid_at=NOW()
		WHERE id=? AND payment_verified=0`,
		model.OrderAdvancePaid, paymentID, signature, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// statusUpdateQuery picks the UPDATE statement for a status change.  The
// statuses with a timestamp column stamp it alongside, so an admin moving
// an order manually leaves the same trace as the automated path.
func statusUpdateQuery(status string) string {
	switch status {
	case model.OrderAdvancePaid:
		return "UPDATE orders SET status=?, paid_at=NOW() WHERE id=?"
	case model.OrderCompleted:
		return "UPDATE orders SET status=?, completed_at=NOW() WHERE id=?"
	case model.OrderDelivered:
		return "UPDATE orders SET status=?, delivered_at=NOW() WHERE id=?"
	}
	return "UPDATE orders SET status=? WHERE id=?"
}

// UpdateStatus moves an order to a new lifecycle status, stamping the
// matching timestamp columns.  Transition validity is the caller's job.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id uint64, status string) error {
	res, err := r.DB.ExecContext(ctx, statusUpdateQuery(status), status, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ListByUser returns a user's orders, newest first.
func (r *OrderRepo) ListByUser(ctx context.Context, userID uint64, limit, offset int) ([]model.Order, error) {
	rows, err := r.DB.QueryContext(ctx,
		"SELECT "+orderColumns+" FROM orders WHERE user_id=? ORDER BY id DESC LIMIT ? OFFSET ?",
		userID, limit, offset)
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// List returns all orders, optionally filtered by status, newest first.
func (r *OrderRepo) List(ctx context.Context, status string, limit, offset int) ([]model.Order, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = r.DB.QueryContext(ctx,
			"SELECT "+orderColumns+" FROM orders WHERE status=? ORDER BY id DESC LIMIT ? OFFSET ?",
			status, limit, offset)
	} else {
		rows, err = r.DB.QueryContext(ctx,
			"SELECT "+orderColumns+" FROM orders ORDER BY id DESC LIMIT ? OFFSET ?",
			limit, offset)
	}
	if err != nil {
		return nil, err
	}
	return r.collect(rows)
}

// Stats aggregates order counts and the advance revenue of verified orders.
func (r *OrderRepo) Stats(ctx context.Context) (total, paid int64, revenue int64, err error) {
	err = r.DB.QueryRowContext(ctx, `SELECT COUNT(*),
		COALESCE(SUM(payment_verified),0),
		COALESCE(SUM(CASE WHEN payment_verified=1 THEN advance ELSE 0 END),0)
		FROM orders`).Scan(&total, &paid, &revenue)
	return
}

func (r *OrderRepo) collect(rows *sql.Rows) ([]model.Order, error) {
	defer rows.Close()
	var out []model.Order
	for rows.Next() {
		o, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (r *OrderRepo) scanOne(row *sql.Row) (model.Order, error) {
	o, err := r.scan(row)
	if err == sql.ErrNoRows {
		return model.Order{}, ErrNotFound
	}
	return o, err
}

func (r *OrderRepo) scan(row rowScanner) (model.Order, error) {
	var (
		o           model.Order
		userID      sql.NullInt64
		gwOrder     sql.NullString
		gwPayment   sql.NullString
		gwSignature sql.NullString
		paidAt      sql.NullTime
		completedAt sql.NullTime
		deliveredAt sql.NullTime
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &userID, &o.CustomerName, &o.CustomerEmail, &o.CustomerPhone,
		&o.ServiceKey, &o.ServiceName, &o.SizeKey, &o.SizeName, &o.AddonKey, &o.AddonName, &o.Message,
		&o.BasePrice, &o.SizePrice, &o.AddonPrice, &o.Total, &o.Advance, &o.Remaining,
		&gwOrder, &gwPayment, &gwSignature,
		&o.PaymentVerified, &o.Status, &paidAt, &completedAt, &deliveredAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return model.Order{}, err
	}
	if userID.Valid {
		uid := uint64(userID.Int64)
		o.UserID = &uid
	}
	o.GatewayOrderID = gwOrder.String
	o.GatewayPaymentID = gwPayment.String
	o.GatewaySignature = gwSignature.String
	if paidAt.Valid {
		t := paidAt.Time
		o.PaidAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		o.CompletedAt = &t
	}
	if deliveredAt.Valid {
		t := deliveredAt.Time
		o.DeliveredAt = &t
	}
	return o, nil
}
