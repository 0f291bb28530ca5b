package api

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter counts attempts per key in fixed windows and remembers revoked refresh tokens.
type Limiter interface {
	// Hit increments key and returns the count inside the current window.
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
	Locked(ctx context.Context, key string) (bool, error)
	Lock(ctx context.Context, key string, ttl time.Duration) error
	Reset(ctx context.Context, key string) error
}

// RevocationList stores refresh token ids until they expire.
type RevocationList interface {
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	Revoked(ctx context.Context, jti string) (bool, error)
}

const refreshTokenBlacklistKeyPrefix = "auth:refresh:blacklist:"

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}

// RedisLimiter implements Limiter and RevocationList on one Redis client.
type RedisLimiter struct {
	client redis.UniversalClient
}

func NewRedisLimiter(client redis.UniversalClient) *RedisLimiter {
	return &RedisLimiter{client: client}
}

func (r *RedisLimiter) Hit(ctx context.Context, key string, window time.Duration) (int64, error) {
	return incrWithTTL(ctx, r.client, key, window)
}

func (r *RedisLimiter) Locked(ctx context.Context, key string) (bool, error) {
	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return ttl > 0, nil
}

func (r *RedisLimiter) Lock(ctx context.Context, key string, ttl time.Duration) error {
	return r.client.Set(ctx, key, "1", ttl).Err()
}

func (r *RedisLimiter) Reset(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

func (r *RedisLimiter) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.client.Set(ctx, refreshTokenBlacklistKeyPrefix+jti, "revoked", ttl).Err()
}

func (r *RedisLimiter) Revoked(ctx context.Context, jti string) (bool, error) {
	err := r.client.Get(ctx, refreshTokenBlacklistKeyPrefix+jti).Err()
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, redis.Nil):
		return false, nil
	default:
		return false, err
	}
}
