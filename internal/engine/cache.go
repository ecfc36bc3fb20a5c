package engine

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache stores engine listings for a short time. Implementations treat every
// backend error as a miss.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type memoryEntry struct {
	val []byte
	exp time.Time
}

type memoryCache struct {
	mu  sync.Mutex
	m   map[string]memoryEntry
	now func() time.Time
}

func NewMemoryCache() Cache {
	return &memoryCache{m: map[string]memoryEntry{}, now: time.Now}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.exp) {
		delete(c.m, key)
		return nil, false
	}
	return e.val, true
}

func (c *memoryCache) Set(_ context.Context, key string, val []byte, ttl time.Duration) {
	c.mu.Lock()
	c.m[key] = memoryEntry{val: val, exp: c.now().Add(ttl)}
	c.mu.Unlock()
}

func (c *memoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.m, key)
	c.mu.Unlock()
}

type redisCache struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisCache shares listings between service replicas.
func NewRedisCache(rdb *redis.Client) Cache {
	return &redisCache{rdb: rdb, prefix: "zienshield:"}
}

func (c *redisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	b, err := c.rdb.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		return nil, false
	}
	return b, true
}

func (c *redisCache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	_ = c.rdb.Set(ctx, c.prefix+key, val, ttl).Err()
}

func (c *redisCache) Delete(ctx context.Context, key string) {
	_ = c.rdb.Del(ctx, c.prefix+key).Err()
}

// cached returns the decoded value under key or loads and stores it.
func cached[T any](ctx context.Context, cache Cache, key string, ttl time.Duration, load func() (T, error)) (T, error) {
	var zero T
	if b, ok := cache.Get(ctx, key); ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		cache.Delete(ctx, key)
	}
	v, err := load()
	if err != nil {
		return zero, err
	}
	if b, err := json.Marshal(v); err == nil {
		cache.Set(ctx, key, b, ttl)
	}
	return v, nil
}
