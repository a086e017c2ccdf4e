package model

import "time"

// RateLimitCounter is the single sliding-window row for an (identifier,
// action) pair in the `rate_limits` table.  A UNIQUE(identifier, action)
// constraint enforces the one-row invariant; writes use upsert semantics.
type RateLimitCounter struct {
	ID           uint64     // rate_limits.id
	Identifier   string     // rate_limits.identifier (client IP)
	Action       string     // rate_limits.action
	Attempts     int        // rate_limits.attempts
	WindowStart  time.Time  // rate_limits.window_start
	BlockedUntil *time.Time // rate_limits.blocked_until (nullable)
}
