package middleware

import (
	"testing"
	"time"

	"github.com/inkfolio/commission-backend/internal/model"
)

func TestRateLimitFirstRequestCreatesRow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	d := decideRateLimit(nil, "1.2.3.4", "login", now, 5, time.Minute)
	if !d.allowed || !d.write {
		t.Fatalf("first request not allowed/persisted: %+v", d)
	}
	if d.next.Attempts != 1 || !d.next.WindowStart.Equal(now) {
		t.Fatalf("unexpected initial counter: %+v", d.next)
	}
}

func TestRateLimitExhaustionBlocks(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	c := model.RateLimitCounter{Identifier: "1.2.3.4", Action: "login", Attempts: 1, WindowStart: now}

	// attempts 2..5 within the window are allowed when max is 5
	for i := 2; i <= 5; i++ {
		d := decideRateLimit(&c, c.Identifier, c.Action, now.Add(time.Second), 5, time.Minute)
		if !d.allowed {
			t.Fatalf("attempt %d rejected early", i)
		}
		c = d.next
	}
	// the 6th within the window is rejected and sets the block timer
	d := decideRateLimit(&c, c.Identifier, c.Action, now.Add(2*time.Second), 5, time.Minute)
	if d.allowed {
		t.Fatal("attempt over max allowed")
	}
	if d.next.BlockedUntil == nil {
		t.Fatal("block timer not set")
	}
	if want := now.Add(2 * time.Second).Add(blockPenalty); !d.next.BlockedUntil.Equal(want) {
		t.Fatalf("block until = %v, want %v", d.next.BlockedUntil, want)
	}
}

func TestRateLimitBlockOutlivesWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	blockedUntil := now.Add(4 * time.Minute)
	c := model.RateLimitCounter{
		Identifier:   "1.2.3.4",
		Action:       "login",
		Attempts:     5,
		WindowStart:  now.Add(-10 * time.Minute), // window long expired
		BlockedUntil: &blockedUntil,
	}
	d := decideRateLimit(&c, c.Identifier, c.Action, now, 5, time.Minute)
	if d.allowed {
		t.Fatal("blocked identifier allowed before block expiry")
	}
	if d.retryAfter != 4*time.Minute {
		t.Fatalf("retryAfter = %v, want 4m", d.retryAfter)
	}
}

func TestRateLimitWindowResetClearsBlock(t *testing.T) {
	now := time.Unix(1_700_000_000, 0).UTC()
	blockedUntil := now.Add(-time.Second) // block already expired
	c := model.RateLimitCounter{
		Identifier:   "1.2.3.4",
		Action:       "login",
		Attempts:     5,
		WindowStart:  now.Add(-10 * time.Minute),
		BlockedUntil: &blockedUntil,
	}
	d := decideRateLimit(&c, c.Identifier, c.Action, now, 5, time.Minute)
	if !d.allowed {
		t.Fatal("request rejected after block and window both expired")
	}
	if d.next.Attempts != 1 || d.next.BlockedUntil != nil {
		t.Fatalf("counter not reset: %+v", d.next)
	}
}
