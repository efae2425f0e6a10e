package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry is a Registry stored in two Redis lists, so that several
// runtime processes can share one event history. RPUSH is atomic on the
// server, which gives the all-or-nothing append the registry requires.
//
// Keys used:
//   - {prefix}:connects
//   - {prefix}:disconnects
type RedisRegistry struct {
	client redis.Cmdable
	prefix string
}

// NewRedisRegistry creates a registry that stores its logs under prefix.
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	reg := NewRedisRegistry(client, "wsconformance")
//
// Parameters:
//   - client: A go-redis client (or cluster/ring client)
//   - prefix: Key prefix; different prefixes give independent registries
//
// Returns:
//   - A new *RedisRegistry
func NewRedisRegistry(client redis.Cmdable, prefix string) *RedisRegistry {
	return &RedisRegistry{
		client: client,
		prefix: prefix,
	}
}

func (r *RedisRegistry) connectsKey() string {
	return fmt.Sprintf("%s:connects", r.prefix)
}

func (r *RedisRegistry) disconnectsKey() string {
	return fmt.Sprintf("%s:disconnects", r.prefix)
}

// RecordConnect implements Registry.
func (r *RedisRegistry) RecordConnect(ctx context.Context, id string) error {
	if err := r.client.RPush(ctx, r.connectsKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to record connect %s: %w", id, err)
	}

	return nil
}

// RecordDisconnect implements Registry.
func (r *RedisRegistry) RecordDisconnect(ctx context.Context, id string) error {
	if err := r.client.RPush(ctx, r.disconnectsKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to record disconnect %s: %w", id, err)
	}

	return nil
}

// Connects implements Registry.
func (r *RedisRegistry) Connects(ctx context.Context) ([]string, error) {
	return r.snapshot(ctx, r.connectsKey())
}

// Disconnects implements Registry.
func (r *RedisRegistry) Disconnects(ctx context.Context) ([]string, error) {
	return r.snapshot(ctx, r.disconnectsKey())
}

func (r *RedisRegistry) snapshot(ctx context.Context, key string) ([]string, error) {
	ids, err := r.client.LRange(ctx, key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", key, err)
	}

	if ids == nil {
		ids = []string{}
	}

	return ids, nil
}

// Reset deletes both logs. It is meant for test setup and teardown; the
// registry itself never removes entries.
//
// Parameters:
//   - ctx: Context for cancellation and timeout control
//
// Returns:
//   - An error if the keys could not be deleted
func (r *RedisRegistry) Reset(ctx context.Context) error {
	if err := r.client.Del(ctx, r.connectsKey(), r.disconnectsKey()).Err(); err != nil {
		return fmt.Errorf("failed to reset registry: %w", err)
	}

	return nil
}
