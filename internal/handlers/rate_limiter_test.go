package handlers

import (
	"testing"
	"time"
)

func TestPlacementLimiterSlidingWindow(t *testing.T) {
	now := time.Date(2026, 10, 15, 10, 0, 0, 0, time.UTC)
	l := newPlacementLimiter(2, time.Minute, func() time.Time { return now })

	for i := 0; i < 2; i++ {
		if ok, _ := l.Reserve("cust-1"); !ok {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		now = now.Add(20 * time.Second)
	}
	ok, wait := l.Reserve("cust-1")
	if ok {
		t.Fatal("third attempt inside the window should be refused")
	}
	if wait != 20*time.Second {
		t.Fatalf("expected 20s until the first attempt expires, got %s", wait)
	}
	if ok, _ := l.Reserve("cust-2"); !ok {
		t.Fatal("limits are per customer")
	}

	now = now.Add(21 * time.Second)
	if ok, _ := l.Reserve("cust-1"); !ok {
		t.Fatal("attempt after the oldest one expired should be allowed")
	}
}

func TestPlacementLimiterDisabled(t *testing.T) {
	l := newPlacementLimiter(0, time.Minute, nil)
	if l != nil {
		t.Fatal("non-positive limit disables the limiter")
	}
	if ok, _ := l.Reserve("cust-1"); !ok {
		t.Fatal("nil limiter allows everything")
	}
}
