// Package cache stores rendered answers keyed by document, questions and format.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"docqa/pkg/util"

	"github.com/go-redis/redis/v8"
)

const keyPrefix = "docqa:answers:"

// Entry is a cached successful run.
type Entry struct {
	Answers  []string  `json:"answers"`
	Strategy string    `json:"strategy,omitempty"`
	StoredAt time.Time `json:"stored_at"`
}

// Cache is safe for concurrent use. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*Entry, error)
	Set(ctx context.Context, key string, entry *Entry) error
}

// Key hashes the inputs that determine a run's answers. Fields are length
// prefixed so different splits of the same bytes never collide.
func Key(document string, questions []string, format string) string {
	h := sha256.New()
	write := func(s string) {
		fmt.Fprintf(h, "%d:%s", len(s), s)
	}
	write(document)
	write(format)
	fmt.Fprintf(h, "n=%d;", len(questions))
	for _, q := range questions {
		write(q)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// RedisCache keeps entries as JSON strings with a TTL.
type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := c.rdb.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// an unreadable entry is treated as a miss and overwritten later
		return nil, nil
	}
	return &e, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, entry *Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.rdb.Set(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// MemoryCache is an in-process LRU used when Redis is not configured.
type MemoryCache struct {
	lru *util.LRU[string, Entry]
}

func NewMemoryCache(capacity int, ttl time.Duration) (*MemoryCache, error) {
	lru, err := util.NewLRU(util.LRUConfig[string, Entry]{Capacity: capacity, TTL: ttl})
	if err != nil {
		return nil, err
	}
	return &MemoryCache{lru: lru}, nil
}

func (c *MemoryCache) Get(ctx context.Context, key string) (*Entry, error) {
	e, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	e.Answers = append([]string(nil), e.Answers...)
	return &e, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, entry *Entry) error {
	e := *entry
	e.Answers = append([]string(nil), entry.Answers...)
	c.lru.Put(key, e, 1)
	return nil
}

var (
	_ Cache = (*RedisCache)(nil)
	_ Cache = (*MemoryCache)(nil)
)
