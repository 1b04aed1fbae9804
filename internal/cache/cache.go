// Package cache keeps category contexts in Redis under explicit keys with a
// TTL and explicit invalidation. The pipeline snapshots the context once per
// request, so no implicit global mutable state exists.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/postsmith/postsmith/internal/models"
)

type ContextCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(addr string, ttl time.Duration) (*ContextCache, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return NewWithClient(rdb, ttl), nil
}

func NewWithClient(rdb *redis.Client, ttl time.Duration) *ContextCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &ContextCache{rdb: rdb, ttl: ttl}
}

func key(accountID uuid.UUID, category string) string {
	return fmt.Sprintf("ctx:%s:%s", accountID, category)
}

// Get returns the cached context or (nil, nil) on a miss.
func (c *ContextCache) Get(ctx context.Context, accountID uuid.UUID, category string) (*models.CategoryContext, error) {
	val, err := c.rdb.Get(ctx, key(accountID, category)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}
	var cc models.CategoryContext
	if err := json.Unmarshal(val, &cc); err != nil {
		return nil, fmt.Errorf("cache decode: %w", err)
	}
	return &cc, nil
}

func (c *ContextCache) Put(ctx context.Context, accountID uuid.UUID, cc models.CategoryContext) error {
	data, err := json.Marshal(cc)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.rdb.Set(ctx, key(accountID, cc.Name), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Invalidate drops a keyed entry; callers invoke it when settings change.
func (c *ContextCache) Invalidate(ctx context.Context, accountID uuid.UUID, category string) error {
	if err := c.rdb.Del(ctx, key(accountID, category)).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}

func (c *ContextCache) Close() error {
	return c.rdb.Close()
}
