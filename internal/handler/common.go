package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/model"
)

// dbTimeout bounds every repository call made from a handler.
const defaultLimit = 20
const maxLimit = 100

// parsePage reads limit/offset query parameters with sane bounds.
func parsePage(c echo.Context) (limit, offset int) {
	limit = defaultLimit
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// parseID parses a numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id != 0
}

// userJSON is the sanitized representation of a user returned by the API.
func userJSON(u *model.User) echo.Map {
	out := echo.Map{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"role":       u.Role,
		"banned":     u.Banned,
		"created_at": u.CreatedAt,
	}
	if u.Role == model.RoleAdmin {
		out["admin_permissions"] = u.AdminPermissions
	}
	if u.Banned {
		out["ban_reason"] = u.BanReason
	}
	return out
}

// orderJSON is the representation of an order returned by the API.
func orderJSON(o model.Order) echo.Map {
	return echo.Map{
		"id":               o.ID,
		"order_number":     o.OrderNumber,
		"customer_name":    o.CustomerName,
		"customer_email":   o.CustomerEmail,
		"service":          o.ServiceKey,
		"service_name":     o.ServiceName,
		"size":             o.SizeKey,
		"size_name":        o.SizeName,
		"addon":            o.AddonKey,
		"addon_name":       o.AddonName,
		"message":          o.Message,
		"base_price":       o.BasePrice,
		"size_price":       o.SizePrice,
		"addon_price":      o.AddonPrice,
		"total":            o.Total,
		"advance":          o.Advance,
		"remaining":        o.Remaining,
		"gateway_order_id": o.GatewayOrderID,
		"payment_verified": o.PaymentVerified,
		"status":           o.Status,
		"paid_at":          o.PaidAt,
		"created_at":       o.CreatedAt,
	}
}

// ticketJSON is the representation of a ticket returned by the API.
func ticketJSON(t model.Ticket) echo.Map {
	return echo.Map{
		"id":          t.ID,
		"user_id":     t.UserID,
		"order_id":    t.OrderID,
		"subject":     t.Subject,
		"category":    t.Category,
		"priority":    t.Priority,
		"status":      t.Status,
		"assignee_id": t.AssigneeID,
		"created_at":  t.CreatedAt,
		"updated_at":  t.UpdatedAt,
	}
}
