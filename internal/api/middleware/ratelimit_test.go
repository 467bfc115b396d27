// Package middleware provides HTTP middleware components for the Terascout
// control-plane API.
package middleware

import (
	"testing"
)

func TestRateLimiter_GlobalLimitEnforced(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   10,
		GlobalBurst: 10,
		ClientRPS:   50,
	})
	defer rl.Close()

	successCount := 0

	for i := 0; i < 11; i++ {
		if rl.Allow("client-a") {
			successCount++
		}
	}

	if successCount != 10 {
		t.Errorf("expected 10 successful requests, got %d", successCount)
	}
}

func TestRateLimiter_PerClientLimitEnforced(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   100,
		ClientRPS:   5,
		ClientBurst: 5,
	})
	defer rl.Close()

	successCount := 0

	for i := 0; i < 6; i++ {
		if rl.Allow("client-a") {
			successCount++
		}
	}

	if successCount != 5 {
		t.Errorf("expected 5 successful requests, got %d", successCount)
	}
}

func TestRateLimiter_IndependentClients(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   100,
		ClientRPS:   2,
		ClientBurst: 2,
	})
	defer rl.Close()

	if !rl.Allow("client-a") || !rl.Allow("client-a") {
		t.Fatal("expected client-a's first two requests to succeed")
	}

	if rl.Allow("client-a") {
		t.Error("expected client-a's third request to be rate limited")
	}

	if !rl.Allow("client-b") {
		t.Error("expected client-b to have its own independent bucket")
	}
}

func TestRateLimiter_EmptyClientKeySkipsPerClientTier(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	rl := NewInMemoryRateLimiter(&Config{
		GlobalRPS:   5,
		GlobalBurst: 5,
		ClientRPS:   1,
		ClientBurst: 1,
	})
	defer rl.Close()

	successCount := 0

	for i := 0; i < 5; i++ {
		if rl.Allow("") {
			successCount++
		}
	}

	if successCount != 5 {
		t.Errorf("expected empty clientKey to only be bound by the global tier, got %d successes", successCount)
	}
}

func TestComputeBurstCapacity(t *testing.T) {
	tests := []struct {
		name     string
		rps      int
		override int
		want     int
	}{
		{"no override doubles rps", 10, 0, 20},
		{"override wins", 10, 7, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := computeBurstCapacity(tt.rps, tt.override); got != tt.want {
				t.Errorf("computeBurstCapacity(%d, %d) = %d, want %d", tt.rps, tt.override, got, tt.want)
			}
		})
	}
}
