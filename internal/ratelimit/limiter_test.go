package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestLocalLimiter(t *testing.T) {
	ctx := context.Background()

	newLimiter := func(start time.Time) (*LocalLimiter, *time.Time) {
		now := start
		l := NewLocalLimiter()
		l.now = func() time.Time { return now }
		return l, &now
	}

	t.Run("counts within the window", func(t *testing.T) {
		l, _ := newLimiter(time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC))

		for i := 0; i < 3; i++ {
			ok, err := l.Allow(ctx, "client-a", 3, time.Minute)
			if err != nil {
				t.Fatalf("Allow: %v", err)
			}
			if !ok {
				t.Fatalf("request %d denied, want allowed", i+1)
			}
		}
		ok, err := l.Allow(ctx, "client-a", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if ok {
			t.Error("fourth request allowed, want denied")
		}
	})

	t.Run("window rollover resets the count", func(t *testing.T) {
		l, now := newLimiter(time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC))

		for i := 0; i < 4; i++ {
			l.Allow(ctx, "client-a", 3, time.Minute)
		}
		*now = now.Add(61 * time.Second)

		ok, err := l.Allow(ctx, "client-a", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Error("request denied after window rollover")
		}
	})

	t.Run("keys are independent", func(t *testing.T) {
		l, _ := newLimiter(time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC))

		for i := 0; i < 4; i++ {
			l.Allow(ctx, "client-a", 3, time.Minute)
		}
		ok, err := l.Allow(ctx, "client-b", 3, time.Minute)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !ok {
			t.Error("client-b denied by client-a's budget")
		}
	})
}
