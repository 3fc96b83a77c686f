package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/document-tables/internal/models"
)

// StatusCache keeps the latest status view of each document in Redis.
type StatusCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewStatusCache(client *redis.Client, ttl time.Duration) *StatusCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &StatusCache{redis: client, ttl: ttl}
}

// NewRedisClient connects and pings so misconfiguration fails at startup.
func NewRedisClient(ctx context.Context, cfg *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func statusKey(documentID int64) string {
	return fmt.Sprintf("document_status:%d", documentID)
}

// Get returns nil without error on a cache miss.
func (c *StatusCache) Get(ctx context.Context, documentID int64) (*models.DocumentStatusView, error) {
	data, err := c.redis.Get(ctx, statusKey(documentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	var view models.DocumentStatusView
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to unmarshal status: %w", err)
	}
	return &view, nil
}

func (c *StatusCache) Set(ctx context.Context, view *models.DocumentStatusView) error {
	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := c.redis.Set(ctx, statusKey(view.ID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (c *StatusCache) Delete(ctx context.Context, documentID int64) error {
	if err := c.redis.Del(ctx, statusKey(documentID)).Err(); err != nil {
		return fmt.Errorf("failed to evict status: %w", err)
	}
	return nil
}
