package ratelimit

import (
	"context"
	"testing"
	"time"
)

type manualClock struct {
	now time.Time
}

func (c *manualClock) Now() time.Time { return c.now }

func TestMemoryLimiterRejectsRequestOverLimit(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewMemoryLimiter(time.Minute, 3, clock.Now)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		decision, err := limiter.Allow(ctx, "10.0.0.1")
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !decision.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if decision.Remaining != 2-i {
			t.Fatalf("remaining mismatch: got %d", decision.Remaining)
		}
	}

	clock.now = clock.now.Add(20 * time.Second)
	decision, err := limiter.Allow(ctx, "10.0.0.1")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if decision.Allowed {
		t.Fatalf("request 4 should be rejected")
	}
	if decision.RetryAfter != 40*time.Second {
		t.Fatalf("retry after mismatch: %s", decision.RetryAfter)
	}

	other, _ := limiter.Allow(ctx, "10.0.0.2")
	if !other.Allowed {
		t.Fatalf("other key should have its own window")
	}
}

func TestMemoryLimiterWindowResets(t *testing.T) {
	clock := &manualClock{now: time.Unix(1_700_000_000, 0)}
	limiter := NewMemoryLimiter(time.Minute, 1, clock.Now)
	ctx := context.Background()

	if d, _ := limiter.Allow(ctx, "k"); !d.Allowed {
		t.Fatalf("first request should be allowed")
	}
	if d, _ := limiter.Allow(ctx, "k"); d.Allowed {
		t.Fatalf("second request should be rejected")
	}

	clock.now = clock.now.Add(time.Minute)
	if d, _ := limiter.Allow(ctx, "k"); !d.Allowed {
		t.Fatalf("request after window should be allowed")
	}
}

func TestRedisLimiterIntegration(t *testing.T) {
	client := NewRedisClient("localhost:6379", "", 0)
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skip("skipping redis integration test: redis not available")
	}
	defer client.Close()

	key := "test-" + time.Now().Format("150405.000000000")
	limiter := NewRedisLimiter(client, "relayer:test", 500*time.Millisecond, 2)

	for i := 0; i < 2; i++ {
		d, err := limiter.Allow(ctx, key)
		if err != nil {
			t.Fatalf("allow: %v", err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	d, err := limiter.Allow(ctx, key)
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if d.Allowed || d.RetryAfter <= 0 {
		t.Fatalf("third request should be rejected with retry-after: %+v", d)
	}

	time.Sleep(600 * time.Millisecond)
	if d, _ := limiter.Allow(ctx, key); !d.Allowed {
		t.Fatalf("request after window should be allowed")
	}
}
