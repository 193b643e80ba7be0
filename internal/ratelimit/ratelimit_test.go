package ratelimit

import (
	"testing"
	"time"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{
			name:     "burst allows initial requests",
			rps:      1,
			burst:    3,
			calls:    3,
			wantPass: 3,
		},
		{
			name:     "exceeding burst blocks",
			rps:      1,
			burst:    2,
			calls:    5,
			wantPass: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl := New(tt.rps, tt.burst, 0)
			defer rl.Stop()

			passed := 0
			for i := 0; i < tt.calls; i++ {
				if rl.Allow("client") {
					passed++
				}
			}

			if passed != tt.wantPass {
				t.Errorf("Allow() passed %d, want %d", passed, tt.wantPass)
			}
		})
	}
}

func TestKeyedRateLimiter_IndependentKeys(t *testing.T) {
	rl := New(1, 1, 0)
	defer rl.Stop()

	if !rl.Allow("a") {
		t.Fatal("first request for a should pass")
	}
	if rl.Allow("a") {
		t.Error("second request for a should be limited")
	}
	if !rl.Allow("b") {
		t.Error("first request for b should pass")
	}
}

func TestKeyedRateLimiter_EvictIdle(t *testing.T) {
	rl := New(1, 1, time.Minute)
	defer rl.Stop()

	rl.Allow("a")
	rl.Allow("b")
	if rl.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", rl.Len())
	}

	rl.evictIdle(time.Now().Add(2 * time.Minute))
	if rl.Len() != 0 {
		t.Errorf("Len() after eviction = %d, want 0", rl.Len())
	}
}
