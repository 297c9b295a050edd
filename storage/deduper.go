package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrInFlight is returned by Reserve when another request holding the same
// idempotency key has not finished yet.
var ErrInFlight = errors.New("storage: request with this idempotency key is in progress")

// RedisDeduper stores idempotency keys in Redis so a retried create returns
// the task the first attempt produced instead of creating a second one.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDeduper creates a deduper using the provided Redis client and TTL.
func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	return &RedisDeduper{client: client, ttl: ttl}
}

func (r *RedisDeduper) key(owner, key string) string {
	return fmt.Sprintf("idem:%s:%s", ownerKey(owner), key)
}

// Reserve records the key if it does not already exist. It returns ("", true)
// when the key was newly reserved, and the remembered task id when a previous
// request already completed under it.
func (r *RedisDeduper) Reserve(ctx context.Context, owner, key string) (string, bool, error) {
	added, err := r.client.SetNX(ctx, r.key(owner, key), "", r.ttl).Result()
	if err != nil {
		return "", false, err
	}
	if added {
		return "", true, nil
	}
	id, err := r.client.Get(ctx, r.key(owner, key)).Result()
	if errors.Is(err, redis.Nil) {
		// Expired between the two calls; try once more.
		added, err = r.client.SetNX(ctx, r.key(owner, key), "", r.ttl).Result()
		if err != nil {
			return "", false, err
		}
		if added {
			return "", true, nil
		}
		return "", false, ErrInFlight
	}
	if err != nil {
		return "", false, err
	}
	if id == "" {
		return "", false, ErrInFlight
	}
	return id, false, nil
}

// Remember stores the id produced under a reserved key.
func (r *RedisDeduper) Remember(ctx context.Context, owner, key, id string) error {
	return r.client.Set(ctx, r.key(owner, key), id, r.ttl).Err()
}

// Remove deletes a previously reserved key. It is used when downstream
// processing fails so the caller may retry.
func (r *RedisDeduper) Remove(ctx context.Context, owner, key string) error {
	return r.client.Del(ctx, r.key(owner, key)).Err()
}
