package ratelimit

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestMemoryLimiterAdmitsUpToLimit(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(3)

	for i := 0; i < 3; i++ {
		d, err := l.Admit(ctx, "u1")
		if err != nil {
			t.Fatalf("unexpected error on request %d: %v", i+1, err)
		}
		if !d.Allowed {
			t.Fatalf("request %d should be admitted", i+1)
		}
		if want := 3 - (i + 1); d.Remaining != want {
			t.Errorf("request %d remaining = %d, want %d", i+1, d.Remaining, want)
		}
	}

	d, err := l.Admit(ctx, "u1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Allowed {
		t.Error("request over limit should be denied")
	}
	if d.Remaining != 0 {
		t.Errorf("remaining = %d, want 0", d.Remaining)
	}
}

func TestMemoryLimiterIsolatesUsers(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLimiter(1)

	if d, _ := l.Admit(ctx, "u1"); !d.Allowed {
		t.Fatal("first request for u1 should be admitted")
	}
	if d, _ := l.Admit(ctx, "u1"); d.Allowed {
		t.Fatal("second request for u1 should be denied")
	}
	if d, _ := l.Admit(ctx, "u2"); !d.Allowed {
		t.Fatal("u2 should not be affected by u1's quota")
	}
}

func TestMemoryLimiterResetsAtDayBoundary(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 23, 59, 0, 0, time.Local)
	l := NewMemoryLimiterWithClock(2, func() time.Time { return now })

	l.Admit(ctx, "u1")
	l.Admit(ctx, "u1")
	if d, _ := l.Admit(ctx, "u1"); d.Allowed {
		t.Fatal("quota should be exhausted before midnight")
	}

	// Crossing midnight resets the counter exactly once.
	now = now.Add(2 * time.Minute)
	d, _ := l.Admit(ctx, "u1")
	if !d.Allowed {
		t.Fatal("counter should reset after day boundary")
	}
	if d.Remaining != 1 {
		t.Errorf("remaining after reset = %d, want 1", d.Remaining)
	}
}

func TestMemoryLimiterConcurrentAdmits(t *testing.T) {
	ctx := context.Background()
	limit := 50
	l := NewMemoryLimiter(limit)

	var wg sync.WaitGroup
	admitted := make(chan struct{}, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if d, _ := l.Admit(ctx, "u1"); d.Allowed {
				admitted <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(admitted)

	count := 0
	for range admitted {
		count++
	}
	if count != limit {
		t.Errorf("admitted %d requests, want exactly %d", count, limit)
	}
}
