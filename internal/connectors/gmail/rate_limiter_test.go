package gmail

import (
	"context"
	"testing"
	"time"
)

func TestRateLimiterSpacesCalls(t *testing.T) {
	rl := NewRateLimiter(20)
	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := rl.WaitTurn(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	if elapsed := time.Since(start); elapsed < 90*time.Millisecond {
		t.Fatalf("three calls at 20 rps took %v", elapsed)
	}
}

func TestRateLimiterHonoursContext(t *testing.T) {
	rl := NewRateLimiter(1)
	_ = rl.WaitTurn(context.Background())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := rl.WaitTurn(ctx); err == nil {
		t.Fatal("expected context error")
	}
}
