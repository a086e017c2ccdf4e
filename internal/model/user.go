package model

import "time"

// Role values stored in users.role.  Super-admin status is never stored; it
// is derived from the configured email allow-list at check time.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Named fine-grained admin permissions.  An admin's users.admin_permissions
// column holds a JSON object mapping these names to booleans.
const (
	PermManageOrders  = "manage_orders"
	PermManageTickets = "manage_tickets"
	PermManageGallery = "manage_gallery"
	PermManageUsers   = "manage_users"
	PermViewLogs      = "view_logs"
)

// User represents an application user record as stored in the `users`
// table.  AdminPermissions is the decoded JSON permission set; it is nil
// for ordinary users.
type User struct {
	ID               uint64          // users.id
	Name             string          // users.name
	Email            string          // users.email
	PasswordHash     string          // users.password_hash
	Role             string          // users.role ("user" | "admin")
	AdminPermissions map[string]bool // users.admin_permissions (JSON, nullable)
	Banned           bool            // users.banned
	BanReason        string          // users.ban_reason
	LastLogin        *time.Time      // users.last_login (nullable)
	LastIP           string          // users.last_ip
	CreatedAt        time.Time       // users.created_at
	UpdatedAt        time.Time       // users.updated_at
}

// HasPermission reports whether the user's stored permission set contains a
// truthy entry for the named permission.  Super-admin bypass is applied by
// the caller, not here, because the allow-list lives in configuration.
func (u *User) HasPermission(name string) bool {
	if u.Role != RoleAdmin {
		return false
	}
	return u.AdminPermissions[name]
}

// RefreshToken models an entry in the `refresh_tokens` table.  Each refresh
// token belongs to a user and contains metadata for expiry and revocation.
// The raw token is not stored; only its SHA-256 hash.
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable, never cleared)
	IssuedIP  string     // refresh_tokens.issued_ip
	UserAgent string     // refresh_tokens.user_agent
	CreatedAt time.Time  // refresh_tokens.created_at
}
