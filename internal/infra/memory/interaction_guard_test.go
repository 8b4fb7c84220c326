package memory

import (
	"context"
	"testing"
	"time"
)

func TestInteractionGuardThrottlesRepeatStarts(t *testing.T) {
	guard := NewInteractionGuard(time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	guard.clock = func() time.Time { return now }
	ctx := context.Background()

	if remaining, _ := guard.Cooldown(ctx, "u1", "quiz:energy"); remaining != 0 {
		t.Fatalf("first attempt must pass, got %v", remaining)
	}

	now = now.Add(20 * time.Second)
	remaining, _ := guard.Cooldown(ctx, "u1", "quiz:energy")
	if remaining != 40*time.Second {
		t.Fatalf("expected 40s remaining, got %v", remaining)
	}

	if remaining, _ := guard.Cooldown(ctx, "u2", "quiz:energy"); remaining != 0 {
		t.Fatalf("other user must not be throttled, got %v", remaining)
	}

	now = now.Add(time.Minute)
	if remaining, _ := guard.Cooldown(ctx, "u1", "quiz:energy"); remaining != 0 {
		t.Fatalf("expected cooldown elapsed, got %v", remaining)
	}
}
