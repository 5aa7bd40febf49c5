// Package cache stores dashboard snapshots of sessions in Redis so reads
// survive controller restarts without hitting the database.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/terra-clan/assessment-engine/internal/models"
)

const keyPrefix = "assessment:session:"

// RedisSnapshots implements session.SnapshotStore on Redis
type RedisSnapshots struct {
	client *redis.Client
	ttl    time.Duration
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisSnapshots creates a snapshot store. A zero ttl keeps entries forever.
func NewRedisSnapshots(client *redis.Client, ttl time.Duration) *RedisSnapshots {
	return &RedisSnapshots{client: client, ttl: ttl}
}

func key(id string) string {
	return keyPrefix + id
}

// Save stores the view under the session id
func (s *RedisSnapshots) Save(ctx context.Context, view models.SessionView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.client.Set(ctx, key(view.SessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load returns the stored view, or nil when absent
func (s *RedisSnapshots) Load(ctx context.Context, id string) (*models.SessionView, error) {
	data, err := s.client.Get(ctx, key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}

	var view models.SessionView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &view, nil
}

// Delete drops the stored view
func (s *RedisSnapshots) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}
