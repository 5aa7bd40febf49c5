package health

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisProbe checks the snapshot cache
type RedisProbe struct {
	BaseProbe
	client *redis.Client
}

// NewRedisProbe creates a probe on an existing client
func NewRedisProbe(client *redis.Client) *RedisProbe {
	return &RedisProbe{
		BaseProbe: BaseProbe{name: "redis"},
		client:    client,
	}
}

// Check pings Redis
func (p *RedisProbe) Check(ctx context.Context) error {
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis check failed: %w", err)
	}
	return nil
}
