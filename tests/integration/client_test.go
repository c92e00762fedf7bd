package integration

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/forgeworks/anvil-go/internal/testutil"
	"github.com/forgeworks/anvil-go/pkg/api"
	"github.com/forgeworks/anvil-go/pkg/cache"
	"github.com/forgeworks/anvil-go/pkg/queue"
	"github.com/forgeworks/anvil-go/pkg/ratelimit"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// setupRedis creates a Redis container for integration testing.
func setupRedis(t *testing.T) (*redis.Client, func()) {
	t.Helper()

	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections"),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start Redis container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}

	port, err := container.MappedPort(ctx, "6379")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr: host + ":" + port.Port(),
	})

	cleanup := func() {
		redisClient.Close()
		container.Terminate(ctx)
	}

	return redisClient, cleanup
}

// newClient builds a transport against the mock broker, optionally sharing
// rate-limit state through Redis.
func newClient(t *testing.T, broker *testutil.MockBroker, redisClient *redis.Client) *api.Client {
	t.Helper()

	host, port := testutil.HostPort(broker.URL())
	cfg := api.DefaultConfig(host, "test", "test-token")
	cfg.Scheme = "http"
	cfg.Port = port
	cfg.InitialBackoff = 10 * time.Millisecond
	cfg.MaxBackoff = 50 * time.Millisecond
	cfg.Redis = redisClient

	client, err := api.New(cfg)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	return client
}

// TestFullRequeueFlow runs the complete requeue path with shared rate-limit
// state: Rate Limit → Read → Post → Delete → Redis state update.
func TestFullRequeueFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	broker := testutil.NewMockBroker()
	defer broker.Close()
	broker.SeedQueue("orders", "orders--errors")
	broker.SeedQueue("orders--errors", "", "a", "b", "c")

	client := newClient(t, broker, redisClient)
	q := queue.New(client, "orders")

	result, err := q.RequeueErrors(context.Background(), queue.RequeueOptions{})
	if err != nil {
		t.Fatalf("RequeueErrors() failed: %v", err)
	}

	if result.Count() != 3 {
		t.Errorf("Count() = %d, want 3", result.Count())
	}
	if !result.IsSuccess() {
		t.Errorf("IsSuccess() = false, Message = %q", result.Message)
	}
	if remaining := broker.QueueBodies("orders--errors"); len(remaining) != 0 {
		t.Errorf("Error queue still owns %v", remaining)
	}

	// Rate-limit state from broker headers landed in Redis
	remaining, err := redisClient.Get(context.Background(), ratelimit.RedisKeyRemaining).Int()
	if err != nil {
		t.Fatalf("Redis state missing: %v", err)
	}
	if remaining != 100 {
		t.Errorf("Stored remaining = %d, want 100", remaining)
	}
}

// TestCacheFlow exercises a full cache-aside round trip through the
// rate-limited transport.
func TestCacheFlow(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	broker := testutil.NewMockBroker()
	defer broker.Close()

	client := newClient(t, broker, redisClient)
	sessions := cache.New(client, "sessions")
	ctx := context.Background()

	type session struct {
		User string `json:"user"`
	}

	factoryCalls := 0
	var got session
	err := sessions.GetOrAdd(ctx, "user-1", &got,
		func(ctx context.Context) (any, error) {
			factoryCalls++
			return session{User: "alice"}, nil
		}, &cache.ItemOptions{ExpiresIn: time.Minute})
	if err != nil {
		t.Fatalf("GetOrAdd() failed: %v", err)
	}
	if got.User != "alice" {
		t.Errorf("Decoded %+v", got)
	}

	// Second call hits the stored value
	var again session
	err = sessions.GetOrAdd(ctx, "user-1", &again,
		func(ctx context.Context) (any, error) {
			factoryCalls++
			return session{User: "bob"}, nil
		}, nil)
	if err != nil {
		t.Fatalf("GetOrAdd() failed: %v", err)
	}
	if again.User != "alice" {
		t.Errorf("Decoded %+v, want cached alice", again)
	}
	if factoryCalls != 1 {
		t.Errorf("Factory called %d times, want 1", factoryCalls)
	}

	if gone, err := sessions.Delete(ctx, "user-1"); err != nil || !gone {
		t.Errorf("Delete() = %v, %v", gone, err)
	}
}

// TestSharedRateLimitState verifies that one client's observed budget gates
// another client sharing the same Redis.
func TestSharedRateLimitState(t *testing.T) {
	redisClient, cleanup := setupRedis(t)
	defer cleanup()

	broker := testutil.NewMockBroker()
	defer broker.Close()
	broker.SeedQueue("orders", "")
	broker.RateLimitRemaining = 2 // below the critical threshold

	first := newClient(t, broker, redisClient)
	second := newClient(t, broker, redisClient)
	ctx := context.Background()

	// The first request goes through (no state yet) and records the
	// critical budget from the response headers.
	if _, err := queue.New(first, "orders").Info(ctx); err != nil {
		t.Fatalf("Info() failed: %v", err)
	}

	// The second client must refuse to spend the remaining budget.
	_, err := queue.New(second, "orders").Info(ctx)
	if err == nil || !strings.Contains(err.Error(), "rate limit") {
		t.Errorf("Expected a rate limit block, got %v", err)
	}
}
