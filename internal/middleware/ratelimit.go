package middleware

import (
	"context"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/inkfolio/commission-backend/internal/model"
	"github.com/inkfolio/commission-backend/internal/repository"
)

// blockPenalty is how long an identifier stays blocked after exhausting its
// window.  The block outlives the window: requests stay rejected until the
// timer expires even though the window itself would have reset.
const blockPenalty = 5 * time.Minute

// RateLimitStore is the slice of the rate-limit repository the middleware
// needs.
type RateLimitStore interface {
	Get(ctx context.Context, identifier, action string) (model.RateLimitCounter, error)
	Upsert(ctx context.Context, c model.RateLimitCounter) error
}

// rateDecision is the outcome of one limiter check.
type rateDecision struct {
	allowed    bool
	retryAfter time.Duration
	next       model.RateLimitCounter
	write      bool // whether next must be persisted
}

// decideRateLimit applies the sliding-window rules to a counter row.  prev
// is nil when no row exists yet.  Pure so the window arithmetic is testable
// without storage.
func decideRateLimit(prev *model.RateLimitCounter, identifier, action string, now time.Time, maxAttempts int, window time.Duration) rateDecision {
	if prev == nil {
		return rateDecision{
			allowed: true,
			write:   true,
			next: model.RateLimitCounter{
				Identifier:  identifier,
				Action:      action,
				Attempts:    1,
				WindowStart: now,
			},
		}
	}
	c := *prev
	if c.BlockedUntil != nil && c.BlockedUntil.After(now) {
		return rateDecision{retryAfter: c.BlockedUntil.Sub(now), next: c}
	}
	if now.Sub(c.WindowStart) < window {
		if c.Attempts >= maxAttempts {
			until := now.Add(blockPenalty)
			c.BlockedUntil = &until
			return rateDecision{retryAfter: blockPenalty, next: c, write: true}
		}
		c.Attempts++
		return rateDecision{allowed: true, next: c, write: true}
	}
	// Window expired: restart it and clear any stale block.
	c.Attempts = 1
	c.WindowStart = now
	c.BlockedUntil = nil
	return rateDecision{allowed: true, next: c, write: true}
}

// RateLimit limits an action per client identity using a centrally stored
// sliding-window counter.  The identifier is the client network address
// (proxy-forwarded-for header trusted first via Echo's RealIP).  On storage
// errors the limiter fails open — availability over strict limiting, this is
// defense in depth — but the failure is logged.
func RateLimit(store RateLimitStore, action string, maxAttempts int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			identifier := c.RealIP()
			if identifier == "" {
				identifier = "unknown"
			}
			ctx := c.Request().Context()
			now := time.Now().UTC()

			var prev *model.RateLimitCounter
			row, err := store.Get(ctx, identifier, action)
			switch {
			case err == nil:
				prev = &row
			case errors.Is(err, repository.ErrNotFound):
				// first request for this pair
			default:
				c.Logger().Warnf("ratelimit: get %s/%s: %v", identifier, action, err)
				return next(c)
			}

			d := decideRateLimit(prev, identifier, action, now, maxAttempts, window)
			if d.write {
				if err := store.Upsert(ctx, d.next); err != nil {
					c.Logger().Warnf("ratelimit: upsert %s/%s: %v", identifier, action, err)
					return next(c)
				}
			}
			if !d.allowed {
				secs := int(math.Ceil(d.retryAfter.Seconds()))
				if secs < 1 {
					secs = 1
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too many requests",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}
