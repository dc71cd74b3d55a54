package ratelimit

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/junobuild/satellite/common/logger"
)

//go:embed rate_limit.lua
var rateLimitScript string

// Result reports the outcome of one rate limit check
type Result struct {
	Allowed           bool
	CurrentCount      int64
	Limit             int64
	RetryAfterSeconds int64
}

// Limiter throttles the write surface with fixed-window counters kept in
// Redis, incremented atomically by a Lua script
type Limiter struct {
	redis  *goredis.Client
	script *goredis.Script
	log    *logger.Logger
}

// NewLimiter creates a limiter over the Redis client
func NewLimiter(redisClient *goredis.Client, log *logger.Logger) *Limiter {
	return &Limiter{
		redis:  redisClient,
		script: goredis.NewScript(rateLimitScript),
		log:    log,
	}
}

// CheckGlobal checks the service-wide limit over a one minute window
func (l *Limiter) CheckGlobal(ctx context.Context, limit int64) (*Result, error) {
	return l.check(ctx, "rate_limit:global", limit, 60)
}

// CheckCaller checks the per-caller limit over a one minute window
func (l *Limiter) CheckCaller(ctx context.Context, caller uuid.UUID, limit int64) (*Result, error) {
	return l.check(ctx, "rate_limit:caller:"+caller.String(), limit, 60)
}

func (l *Limiter) check(ctx context.Context, key string, limit int64, windowSec int) (*Result, error) {
	raw, err := l.script.Run(ctx, l.redis, []string{key}, limit, windowSec).Result()
	if err != nil {
		return nil, fmt.Errorf("rate limit check failed: %w", err)
	}

	fields, ok := raw.([]interface{})
	if !ok || len(fields) != 4 {
		return nil, fmt.Errorf("unexpected rate limit script result %v", raw)
	}

	result := &Result{
		Allowed:           fields[0].(int64) == 1,
		CurrentCount:      fields[1].(int64),
		Limit:             fields[2].(int64),
		RetryAfterSeconds: fields[3].(int64),
	}

	if !result.Allowed {
		l.log.Warn("rate limit exceeded",
			"key", key,
			"current", result.CurrentCount,
			"limit", result.Limit,
			"retry_after", result.RetryAfterSeconds,
		)
	}
	return result, nil
}

// Reset clears a counter, for tests and admin tooling
func (l *Limiter) Reset(ctx context.Context, key string) error {
	return l.redis.Del(ctx, key).Err()
}
