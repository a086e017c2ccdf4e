package model

import "time"

// Audit action tags written by the application.  The list is not closed;
// these constants exist so security-relevant tags are spelled consistently.
const (
	ActionLogin              = "login"
	ActionRegister           = "register"
	ActionOrderCreated       = "order_created"
	ActionOrderStatusChanged = "order_status_changed"
	ActionPaymentVerified    = "payment_verified"
	ActionPaymentRejected    = "payment_rejected"
	ActionUserBanned         = "user_banned"
	ActionUserUnbanned       = "user_unbanned"
	ActionAdminGranted       = "admin_granted"
	ActionAdminRevoked       = "admin_revoked"
	ActionAccessViolation    = "access_violation_termination"
	ActionPricingUpdated     = "pricing_updated"
)

// ActivityLog is an append-only audit record.  Writes are best-effort: a
// failed insert is logged and never aborts the primary operation.
type ActivityLog struct {
	ID           uint64    // activity_logs.id
	ActorID      *uint64   // activity_logs.actor_id (nullable)
	Action       string    // activity_logs.action
	ResourceType string    // activity_logs.resource_type
	ResourceID   string    // activity_logs.resource_id
	Detail       string    // activity_logs.detail (JSON blob)
	IP           string    // activity_logs.ip
	UserAgent    string    // activity_logs.user_agent
	CreatedAt    time.Time // activity_logs.created_at
}
