package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RateLimiter is a sliding-window limiter shared by every API instance
// ⭐ SSOT: 분산 레이트 리밋은 여기서만
type RateLimiter struct {
	client *Client
	prefix string
}

// RateLimitConfig is one window: at most Limit requests per Window for Key
type RateLimitConfig struct {
	Key    string // e.g. "api:<client ip>"
	Limit  int
	Window time.Duration
}

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration // 거절 시 가장 오래된 요청이 창을 벗어날 때까지
}

// NewRateLimiter creates a limiter whose keys live under prefix
func NewRateLimiter(client *Client, prefix string) *RateLimiter {
	return &RateLimiter{client: client, prefix: prefix}
}

// Enabled reports whether the limiter is backed by Redis
func (r *RateLimiter) Enabled() bool {
	return r.client.Enabled()
}

// KEYS[1] window zset; ARGV now_ms, window_ms, limit, member
// 반환: {allowed, remaining, retry_after_ms}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)

local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, limit - count - 1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local wait = window
if oldest[2] then
	wait = tonumber(oldest[2]) + window - now
end
return {0, 0, wait}
`)

// Allow records a request if the window has room.
// A disabled client allows everything.
func (r *RateLimiter) Allow(ctx context.Context, cfg RateLimitConfig) (Decision, error) {
	if !r.client.Enabled() {
		return Decision{Allowed: true, Remaining: cfg.Limit}, nil
	}

	key := fmt.Sprintf("%s:ratelimit:%s", r.prefix, cfg.Key)
	// 같은 ms 요청이 겹치지 않도록 멤버는 고유값
	res, err := slidingWindowScript.Run(ctx, r.client.Redis(), []string{key},
		time.Now().UnixMilli(),
		cfg.Window.Milliseconds(),
		cfg.Limit,
		uuid.NewString(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("rate limit script: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("rate limit script: unexpected reply %v", res)
	}

	return Decision{
		Allowed:    res[0] == 1,
		Remaining:  int(res[1]),
		RetryAfter: time.Duration(res[2]) * time.Millisecond,
	}, nil
}

// APIRateLimit converts a per-second rate into a one-minute window per client
func APIRateLimit(client string, perSecond float64) RateLimitConfig {
	limit := int(perSecond * 60)
	if limit < 1 {
		limit = 1
	}
	return RateLimitConfig{
		Key:    "api:" + client,
		Limit:  limit,
		Window: time.Minute,
	}
}
