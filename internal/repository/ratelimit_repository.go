package repository

import (
	"context"
	"database/sql"

	"github.com/inkfolio/commission-backend/internal/model"
)

// RateLimitRepo stores sliding-window counters centrally so limiting stays
// correct across multiple server instances.  A UNIQUE(identifier, action)
// constraint keeps at most one row per pair; writes use upsert semantics.
type RateLimitRepo struct{ DB *sql.DB }

func NewRateLimitRepo(db *sql.DB) *RateLimitRepo { return &RateLimitRepo{DB: db} }

// Get returns the counter row for the pair, or ErrNotFound.
func (r *RateLimitRepo) Get(ctx context.Context, identifier, action string) (model.RateLimitCounter, error) {
	var (
		c            model.RateLimitCounter
		blockedUntil sql.NullTime
	)
	err := r.DB.QueryRowContext(ctx,
		"SELECT id, identifier, action, attempts, window_start, blocked_until FROM rate_limits WHERE identifier=? AND action=? LIMIT 1",
		identifier, action).Scan(&c.ID, &c.Identifier, &c.Action, &c.Attempts, &c.WindowStart, &blockedUntil)
	if err != nil {
		if err == sql.ErrNoRows {
			return model.RateLimitCounter{}, ErrNotFound
		}
		return model.RateLimitCounter{}, err
	}
	if blockedUntil.Valid {
		t := blockedUntil.Time
		c.BlockedUntil = &t
	}
	return c, nil
}

// Upsert writes the counter state for the pair, inserting the row on first
// use.  The unique key makes concurrent first inserts collapse onto one row.
func (r *RateLimitRepo) Upsert(ctx context.Context, c model.RateLimitCounter) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO rate_limits
		(identifier, action, attempts, window_start, blocked_until)
		VALUES (?,?,?,?,?)
		ON DUPLICATE KEY UPDATE
		attempts=VALUES(attempts), window_start=VALUES(window_start), blocked_until=VALUES(blocked_until)`,
		c.Identifier, c.Action, c.Attempts, c.WindowStart, c.BlockedUntil)
	return err
}
