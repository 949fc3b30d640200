package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTierConfig configures the Redis-backed distributed tier.
type RedisTierConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string

	// Password is the Redis password, if any.
	Password string

	// DB selects the Redis logical database.
	DB int

	// Namespace prefixes every key to isolate this cache from other users
	// of the same Redis instance. Default: "repguard"
	Namespace string
}

// RedisTier is a distributed cache tier backed by Redis. Entries are stored
// as JSON documents with their metadata; the native Redis TTL mirrors the
// entry TTL as an outer bound so abandoned keys self-clean.
type RedisTier struct {
	client    *redis.Client
	namespace string
}

// NewRedisTier creates a Redis-backed tier.
func NewRedisTier(config RedisTierConfig) *RedisTier {
	if config.Namespace == "" {
		config.Namespace = "repguard"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
	})
	return &RedisTier{client: client, namespace: config.Namespace}
}

// NewRedisTierFromClient wraps an existing Redis client.
func NewRedisTierFromClient(client *redis.Client, namespace string) *RedisTier {
	if namespace == "" {
		namespace = "repguard"
	}
	return &RedisTier{client: client, namespace: namespace}
}

func (t *RedisTier) redisKey(key string) string {
	return fmt.Sprintf("%s:%s", t.namespace, key)
}

// Get retrieves an entry. Undecodable payloads are purged and reported as
// ErrCorruptEntry, never silently retained.
func (t *RedisTier) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := t.client.Get(ctx, t.redisKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache: redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil || entry.Corrupt() {
		_ = t.client.Del(ctx, t.redisKey(key)).Err()
		return Entry{}, false, ErrCorruptEntry
	}
	if entry.FreshnessAt(time.Now()) == Expired {
		return Entry{}, false, nil
	}
	return entry, true, nil
}

// Set stores an entry with a Redis expiry matching the remaining TTL.
func (t *RedisTier) Set(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("cache: redis encode: %w", err)
	}

	remaining := time.Until(entry.Meta.CreatedAt.Add(entry.Meta.TTL))
	if remaining <= 0 {
		return nil
	}
	if err := t.client.Set(ctx, t.redisKey(key), raw, remaining).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

// Delete removes an entry. Idempotent - no error on miss.
func (t *RedisTier) Delete(ctx context.Context, key string) error {
	if err := t.client.Del(ctx, t.redisKey(key)).Err(); err != nil {
		return fmt.Errorf("cache: redis delete: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection.
func (t *RedisTier) Close() error {
	return t.client.Close()
}

// Ensure RedisTier implements Tier
var _ Tier = (*RedisTier)(nil)
