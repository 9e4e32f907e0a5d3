package ratelimit

import (
	"testing"
	"time"
)

func TestLimiter_Allow(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewLimiter()
	l.now = func() time.Time { return now }

	key := "203.0.113.7"
	if !l.Allow(key, Config{RequestsPerSecond: 1, Burst: 1}) {
		t.Errorf("expected Allow to return true for initial request")
	}

	// Burst exceeded
	if l.Allow(key, Config{RequestsPerSecond: 1, Burst: 1}) {
		t.Errorf("expected Allow to return false when burst exceeded")
	}

	// Raising the rate applies to the existing bucket: 100 rps refills one token in 10ms.
	l.Allow(key, Config{RequestsPerSecond: 100, Burst: 5})
	now = now.Add(20 * time.Millisecond)
	if !l.Allow(key, Config{RequestsPerSecond: 100, Burst: 5}) {
		t.Errorf("expected Allow to return true after increasing rate and waiting")
	}
}

func TestLimiter_DifferentKeys(t *testing.T) {
	l := NewLimiter()
	cfg := Config{RequestsPerSecond: 1, Burst: 1}

	if !l.Allow("A", cfg) {
		t.Error("A should be allowed")
	}
	if l.Allow("A", cfg) {
		t.Error("A should be blocked")
	}

	// Key B (independent)
	if !l.Allow("B", cfg) {
		t.Error("B should be allowed (independent of A)")
	}
	if l.Len() != 2 {
		t.Fatalf("Len: got %d, want 2", l.Len())
	}
}

func TestLimiter_Prune(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewLimiter()
	l.now = func() time.Time { return now }
	cfg := Config{RequestsPerSecond: 1, Burst: 1}

	l.Allow("old", cfg)
	now = now.Add(10 * time.Minute)
	l.Allow("fresh", cfg)

	if n := l.Prune(5 * time.Minute); n != 1 {
		t.Fatalf("Prune: got %d removed, want 1", n)
	}
	if l.Len() != 1 {
		t.Fatalf("Len after prune: got %d, want 1", l.Len())
	}
	// A pruned client starts with a full bucket again.
	if !l.Allow("old", cfg) {
		t.Fatalf("pruned key should be allowed")
	}
	if l.Len() != 2 {
		t.Fatalf("Len after reuse: got %d, want 2", l.Len())
	}
}
