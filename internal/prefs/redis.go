package prefs

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// Redis stores preferences as plain string keys in Redis.
type Redis struct {
	client *redis.Client
	key    string
}

// RedisOptions configures [NewRedis].
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// Key is the Redis key. Default: "langswap:" + [DefaultKey].
	Key string
}

// NewRedis connects to Redis. The connection is lazy; call Ping to check it.
func NewRedis(opts RedisOptions) (*Redis, error) {
	if opts.Addr == "" {
		return nil, errors.New("prefs: redis address must not be empty")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	return NewRedisFromClient(client, opts.Key), nil
}

// NewRedisFromClient wraps an existing client.
func NewRedisFromClient(client *redis.Client, key string) *Redis {
	if key == "" {
		key = "langswap:" + DefaultKey
	}
	return &Redis{client: client, key: key}
}

// LoadMute implements [MuteStore].
func (r *Redis) LoadMute(ctx context.Context) (bool, error) {
	val, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("prefs: redis get %s: %w", r.key, err)
	}
	muted, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("prefs: redis %s holds %q: %w", r.key, val, err)
	}
	return muted, nil
}

// SaveMute implements [MuteStore].
func (r *Redis) SaveMute(ctx context.Context, muted bool) error {
	if err := r.client.Set(ctx, r.key, strconv.FormatBool(muted), 0).Err(); err != nil {
		return fmt.Errorf("prefs: redis set %s: %w", r.key, err)
	}
	return nil
}

// Ping implements [Store].
func (r *Redis) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("prefs: redis ping: %w", err)
	}
	return nil
}

// Close implements [Store].
func (r *Redis) Close() error { return r.client.Close() }
