package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	limiter := NewLimiter(2.0, 2)

	if !limiter.Allow("query1.finance.yahoo.com") {
		t.Error("First request should be allowed")
	}
	if !limiter.Allow("query1.finance.yahoo.com") {
		t.Error("Second request should be allowed")
	}
	if limiter.Allow("query1.finance.yahoo.com") {
		t.Error("Third request should be blocked")
	}
}

func TestLimiter_MultipleHosts(t *testing.T) {
	limiter := NewLimiter(1.0, 1)

	if !limiter.Allow("query1.finance.yahoo.com") {
		t.Error("First request to query1 should be allowed")
	}
	if !limiter.Allow("query2.finance.yahoo.com") {
		t.Error("First request to query2 should be allowed")
	}
	if limiter.Allow("query1.finance.yahoo.com") {
		t.Error("Second request to query1 should be blocked")
	}
}

func TestLimiter_WaitTimeout(t *testing.T) {
	limiter := NewLimiter(0.1, 1)
	limiter.Allow("slow.example")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "slow.example"); err == nil {
		t.Error("Wait should fail when the next token is past the deadline")
	}
}

func TestLimiter_ConcurrentAccess(t *testing.T) {
	limiter := NewLimiter(100.0, 10)

	var allowed, blocked int64
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 5; j++ {
				if limiter.Allow("concurrent.example") {
					atomic.AddInt64(&allowed, 1)
				} else {
					atomic.AddInt64(&blocked, 1)
				}
			}
		}()
	}
	wg.Wait()

	if allowed+blocked != 250 {
		t.Errorf("Total requests %d != 250", allowed+blocked)
	}
	if allowed < 10 {
		t.Errorf("Should allow at least the burst, allowed %d", allowed)
	}
	if blocked == 0 {
		t.Error("Should block some requests under this load")
	}
}

func TestLimiter_Tokens(t *testing.T) {
	limiter := NewLimiter(5.0, 10)
	limiter.Allow("stats.example")
	limiter.Allow("stats.example")

	tokens, ok := limiter.Tokens()["stats.example"]
	if !ok {
		t.Fatal("Tokens should include the host")
	}
	if tokens >= 10 {
		t.Errorf("Tokens should be < 10 after usage, got %f", tokens)
	}
}
