package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	dedupeKeyPrefix = "idem"
	// pendingMarker is stored while the request holding the key is running.
	pendingMarker = "-"
	// IdempotencyKeyHeader names the header clients use to make creates safe
	// to retry.
	IdempotencyKeyHeader = "Idempotency-Key"
)

// ErrRequestInFlight is returned by Result while the first request using a
// key has not completed.
var ErrRequestInFlight = errors.New("request with this idempotency key is in progress")

// RedisDeduper stores idempotency keys in Redis so every instance sees a
// create exactly once.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(userID, key string) string {
	return fmt.Sprintf("%s:%s:%s", userID, dedupeKeyPrefix, key)
}

// Add records the key if it does not already exist. It returns true when the
// key was newly added.
func (r *RedisDeduper) Add(ctx context.Context, userID, key string) (bool, error) {
	return r.client.SetNX(ctx, r.key(userID, key), pendingMarker, r.ttl).Result()
}

// Complete stores the id of the entity created under key.
func (r *RedisDeduper) Complete(ctx context.Context, userID, key, resultID string) error {
	return r.client.Set(ctx, r.key(userID, key), resultID, r.ttl).Err()
}

// Result returns the id stored by Complete. It fails with ErrRequestInFlight
// while the key is still pending and with redis.Nil when the key is unknown.
func (r *RedisDeduper) Result(ctx context.Context, userID, key string) (string, error) {
	v, err := r.client.Get(ctx, r.key(userID, key)).Result()
	if err != nil {
		return "", err
	}
	if v == pendingMarker {
		return "", ErrRequestInFlight
	}
	return v, nil
}

// Remove deletes a previously recorded key so the client may retry after a
// failure.
func (r *RedisDeduper) Remove(ctx context.Context, userID, key string) error {
	return r.client.Del(ctx, r.key(userID, key)).Err()
}
