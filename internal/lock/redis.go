package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "bracket:lock:"

// unlockScript deletes the key only while it still holds our token
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis is a cross-node locker built on SET NX with expiry. A holder that
// dies releases the key when the TTL runs out.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	retry  time.Duration
}

// Connect opens a Redis client and verifies connectivity
func Connect(ctx context.Context, address, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// NewRedis creates a Redis locker. Keys expire after ttl.
func NewRedis(client *redis.Client, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{
		client: client,
		ttl:    ttl,
		retry:  50 * time.Millisecond,
	}
}

// Lock acquires key, polling until it is free or ctx is done
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()
	redisKey := keyPrefix + key

	for {
		ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(r.retry):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.release(key, redisKey, token) })
	}, nil
}

func (r *Redis) release(key, redisKey, token string) {
	// the caller's context may already be cancelled
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := unlockScript.Run(ctx, r.client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
		slog.Warn("failed to release lock", "key", key, "error", err)
	}
}
