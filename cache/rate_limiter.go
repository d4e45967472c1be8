package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const rateLimitKey = "tunehub:ratelimit:%s" // String: 窗口内请求计数

// RateResult is the outcome of one Allow call.
type RateResult struct {
	Allowed   bool
	Remaining int64
	ResetIn   time.Duration
}

// RateLimiter is a fixed-window request counter shared through Redis.
type RateLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRateLimiter creates a limiter allowing limit requests per window.
func NewRateLimiter(client *redis.Client, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{client: client, limit: int64(limit), window: window}
}

// Allow counts one request for key. When Redis cannot be reached the request
// is allowed and the error is returned for logging.
func (l *RateLimiter) Allow(ctx context.Context, key string) (RateResult, error) {
	open := RateResult{Allowed: true, Remaining: l.limit, ResetIn: l.window}
	if l.client == nil {
		return open, fmt.Errorf("Redis client not initialized")
	}
	if l.limit <= 0 {
		return open, nil
	}

	redisKey := fmt.Sprintf(rateLimitKey, key)
	pipe := l.client.Pipeline()
	incr := pipe.Incr(ctx, redisKey)
	ttl := pipe.PTTL(ctx, redisKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return open, fmt.Errorf("failed to count request: %w", err)
	}

	resetIn := ttl.Val()
	// 第一次请求或 key 没有过期时间时设置窗口
	if resetIn < 0 {
		if err := l.client.PExpire(ctx, redisKey, l.window).Err(); err != nil {
			return open, fmt.Errorf("failed to set window: %w", err)
		}
		resetIn = l.window
	}

	return evaluate(incr.Val(), l.limit, resetIn), nil
}

func evaluate(count, limit int64, resetIn time.Duration) RateResult {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return RateResult{Allowed: count <= limit, Remaining: remaining, ResetIn: resetIn}
}
