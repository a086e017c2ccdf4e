package handler

import (
	"regexp"
	"testing"
	"time"
)

func TestNewOrderNumberFormat(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	pattern := regexp.MustCompile(`^ART-20260830-[0-9A-F]{6}$`)

	seen := map[string]bool{}
	for i := 0; i < 50; i++ {
		n, err := newOrderNumber(now)
		if err != nil {
			t.Fatalf("newOrderNumber: %v", err)
		}
		if !pattern.MatchString(n) {
			t.Fatalf("order number %q does not match %s", n, pattern)
		}
		seen[n] = true
	}
	// 24 bits of randomness: 50 draws colliding is effectively impossible,
	// so repeated values indicate a broken generator.
	if len(seen) < 45 {
		t.Errorf("only %d distinct numbers out of 50", len(seen))
	}
}

func TestNewOrderNumberUsesUTC(t *testing.T) {
	east := time.FixedZone("UTC+9", 9*60*60)
	// 01:00 on Aug 31 in UTC+9 is still Aug 30 in UTC.
	now := time.Date(2026, 8, 31, 1, 0, 0, 0, east)
	n, err := newOrderNumber(now)
	if err != nil {
		t.Fatalf("newOrderNumber: %v", err)
	}
	if got := n[4:12]; got != "20260830" {
		t.Errorf("date part = %s, want the UTC date 20260830", got)
	}
}
