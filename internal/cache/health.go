package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthChecker implements the observability.Checker interface for Redis.
type HealthChecker struct {
	client *redis.Client
}

// NewHealthChecker wraps a Redis client for readiness probing.
func NewHealthChecker(client *redis.Client) *HealthChecker {
	return &HealthChecker{client: client}
}

// Name identifies this checker in readiness output.
func (h *HealthChecker) Name() string {
	return "redis"
}

// Check verifies the Redis connection with a bounded ping.
func (h *HealthChecker) Check(ctx context.Context) error {
	if h.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	return h.client.Ping(ctx).Err()
}
