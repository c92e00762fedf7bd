// Command anvil-requeue drains a queue's error queue and reposts every
// failed message onto the origin queue. Intended as an ops tool: run it
// against a queue whose consumers have been fixed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/forgeworks/anvil-go/pkg/api"
	"github.com/forgeworks/anvil-go/pkg/logging"
	"github.com/forgeworks/anvil-go/pkg/queue"
	"github.com/redis/go-redis/v9"
)

func main() {
	logger := logging.Setup(logging.Config{
		Level:  logging.LogLevel(getEnv("LOG_LEVEL", "info")),
		Pretty: getEnv("LOG_PRETTY", "") != "",
		Output: os.Stderr,
	})

	// Configuration from environment
	host := getEnv("ANVIL_HOST", "mq.anvil.dev")
	projectID := os.Getenv("ANVIL_PROJECT_ID")
	token := os.Getenv("ANVIL_TOKEN")
	queueName := os.Getenv("ANVIL_QUEUE")
	limit := getEnvInt("ANVIL_LIMIT", 0)

	if projectID == "" || token == "" || queueName == "" {
		logger.Fatal().Msg("ANVIL_PROJECT_ID, ANVIL_TOKEN and ANVIL_QUEUE are required")
	}

	cfg := api.DefaultConfig(host, projectID, token)
	cfg.Scheme = getEnv("ANVIL_SCHEME", cfg.Scheme)
	cfg.Port = getEnvInt("ANVIL_PORT", cfg.Port)

	// Optional shared rate-limit state
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisURL})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer redisClient.Close()
		cfg.Redis = redisClient
		logger.Info().Str("redis", redisURL).Msg("Shared rate-limit state enabled")
	}

	client, err := api.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create Anvil client")
	}
	defer client.Close()

	// Ctrl-C stops the run cooperatively; messages already read but not
	// yet forwarded reappear after their visibility timeout.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	q := queue.New(client, queueName)

	logger.Info().
		Str("queue", queueName).
		Int("limit", limit).
		Msg("Starting requeue run")

	result, err := q.RequeueErrors(ctx, queue.RequeueOptions{Limit: limit})
	if err != nil {
		logger.Fatal().Err(err).Msg("Requeue run aborted")
	}

	out, _ := json.Marshal(result)
	fmt.Println(string(out))

	logger.Info().
		Int("forwarded", result.Count()).
		Bool("success", result.IsSuccess()).
		Msg("Requeue run finished")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
