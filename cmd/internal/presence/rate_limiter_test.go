package presence

import (
	"testing"
	"time"
)

func TestRateLimiterAllowsWithinLimit(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(3, time.Second)
	now := time.Now()

	for i := 0; i < 3; i++ {
		if !rl.Allow(now) {
			t.Fatalf("event %d denied within limit", i)
		}
	}
	if rl.Allow(now) {
		t.Fatalf("event over limit allowed")
	}
}

func TestRateLimiterSlidesWindow(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(2, time.Second)
	now := time.Now()

	if !rl.Allow(now) || !rl.Allow(now) {
		t.Fatalf("initial events denied")
	}
	if rl.Allow(now.Add(500 * time.Millisecond)) {
		t.Fatalf("event inside window allowed over limit")
	}
	if !rl.Allow(now.Add(1100 * time.Millisecond)) {
		t.Fatalf("event after window expiry denied")
	}
}

func TestRateLimiterDefaultsOnInvalidInputs(t *testing.T) {
	t.Parallel()

	rl := NewRateLimiter(0, 0)
	if rl.limit != rateLimitEvents || rl.window != rateLimitWindow {
		t.Fatalf("defaults not applied: limit=%d window=%v", rl.limit, rl.window)
	}
}
