package ratelimit

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// setupTestRedis returns a client against a local Redis test database,
// skipping the test when Redis is not available.
func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	client := redis.NewClient(&redis.Options{
		Addr: "localhost:6379",
		DB:   15, // separate DB for tests
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("Redis not available: %v", err)
	}

	client.FlushDB(ctx)
	t.Cleanup(func() {
		client.FlushDB(context.Background())
		client.Close()
	})

	return client
}

func TestTracker_GetState_Default(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())

	state, err := tracker.GetState(context.Background())
	if err != nil {
		t.Fatalf("GetState() failed: %v", err)
	}

	// No data in Redis yet: assume healthy
	if !state.IsHealthy {
		t.Error("Expected default state to be healthy")
	}
	if state.Remaining != 100 {
		t.Errorf("Remaining = %d, want 100", state.Remaining)
	}
}

func TestTracker_UpdateFromHeaders(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())
	ctx := context.Background()

	headers := http.Header{}
	headers.Set("X-RateLimit-Remaining", "42")
	headers.Set("X-RateLimit-Reset", "120")

	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() failed: %v", err)
	}

	state, err := tracker.GetState(ctx)
	if err != nil {
		t.Fatalf("GetState() failed: %v", err)
	}

	if state.Remaining != 42 {
		t.Errorf("Remaining = %d, want 42", state.Remaining)
	}
	if state.IsHealthy {
		t.Error("Expected unhealthy below ThresholdHealthy")
	}

	until := time.Until(state.ResetAt)
	if until < 115*time.Second || until > 120*time.Second {
		t.Errorf("ResetAt %v from now, want ~120s", until)
	}
}

func TestTracker_UpdateFromHeaders_Parsing(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())

	tests := []struct {
		name      string
		remaining string
		reset     string
		wantErr   bool
	}{
		{"valid headers", "50", "60", false},
		{"no headers is a no-op", "", "", false},
		{"invalid remaining", "abc", "60", true},
		{"missing reset", "50", "", true},
		{"invalid reset", "50", "soon", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			headers := http.Header{}
			if tt.remaining != "" {
				headers.Set("X-RateLimit-Remaining", tt.remaining)
			}
			if tt.reset != "" {
				headers.Set("X-RateLimit-Reset", tt.reset)
			}

			err := tracker.UpdateFromHeaders(context.Background(), headers)
			if (err != nil) != tt.wantErr {
				t.Errorf("UpdateFromHeaders() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestTracker_ShouldAllowRequest(t *testing.T) {
	client := setupTestRedis(t)
	tracker := NewTracker(client, zerolog.Nop())
	ctx := context.Background()

	// Healthy budget: allow
	headers := http.Header{}
	headers.Set("X-RateLimit-Remaining", "80")
	headers.Set("X-RateLimit-Reset", "60")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() failed: %v", err)
	}

	allowed, err := tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() failed: %v", err)
	}
	if !allowed {
		t.Error("Expected request allowed with healthy budget")
	}

	// Critical budget: block
	headers.Set("X-RateLimit-Remaining", "2")
	if err := tracker.UpdateFromHeaders(ctx, headers); err != nil {
		t.Fatalf("UpdateFromHeaders() failed: %v", err)
	}

	allowed, err = tracker.ShouldAllowRequest(ctx)
	if err != nil {
		t.Fatalf("ShouldAllowRequest() failed: %v", err)
	}
	if allowed {
		t.Error("Expected request blocked with critical budget")
	}
}
