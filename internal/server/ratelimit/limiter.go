// Package ratelimit throttles repeated failed logins per email using
// fixed-window counters in Redis.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/modauth/internal/common"
	"github.com/dmitrijs2005/modauth/internal/logging"
	"github.com/redis/go-redis/v9"
)

// LoginLimiter tracks failed login attempts.
type LoginLimiter interface {
	// Check returns common.ErrTooManyAttempts when email is blocked.
	Check(ctx context.Context, email string) error
	Fail(ctx context.Context, email string)
	Reset(ctx context.Context, email string)
}

type Config struct {
	MaxAttempts int
	Cooldown    time.Duration
}

// RedisLimiter is a LoginLimiter over Redis. Redis failures are logged and
// never block a login.
type RedisLimiter struct {
	redis  redis.UniversalClient
	config Config
	logger logging.Logger
}

func NewRedisLimiter(client redis.UniversalClient, cfg Config, logger logging.Logger) *RedisLimiter {
	if logger == nil {
		logger = logging.NopLogger{}
	}
	return &RedisLimiter{redis: client, config: cfg, logger: logger.With("module", "ratelimit")}
}

func (l *RedisLimiter) Check(ctx context.Context, email string) error {
	count, err := l.redis.Get(ctx, loginKey(email)).Int64()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			l.logger.Warn(ctx, "limiter check failed", "error", err)
		}
		return nil
	}
	if count >= int64(l.config.MaxAttempts) {
		return common.ErrTooManyAttempts
	}
	return nil
}

func (l *RedisLimiter) Fail(ctx context.Context, email string) {
	key := loginKey(email)
	// NX keeps the window anchored at the first failure and still heals a
	// counter that was left without a TTL.
	_, err := l.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, l.config.Cooldown)
		return nil
	})
	if err != nil {
		l.logger.Warn(ctx, "limiter increment failed", "error", err)
	}
}

func (l *RedisLimiter) Reset(ctx context.Context, email string) {
	if err := l.redis.Del(ctx, loginKey(email)).Err(); err != nil {
		l.logger.Warn(ctx, "limiter reset failed", "error", err)
	}
}

func loginKey(email string) string {
	return "modauth:login:" + email
}

// NopLimiter never blocks.
type NopLimiter struct{}

func (NopLimiter) Check(context.Context, string) error { return nil }
func (NopLimiter) Fail(context.Context, string)        {}
func (NopLimiter) Reset(context.Context, string)       {}
