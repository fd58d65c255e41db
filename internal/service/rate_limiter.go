package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/industrialcatalog/catalog-server/internal/config"
)

// rateLimitScript is a Lua script for sliding window rate limiting
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('EXPIRE', key, window + 10)

local resetAt = now + window
return {1, resetAt}
`)

// SignInLimiter throttles code requests per administrator and code attempts
// per administrator and client address.
type SignInLimiter interface {
	AllowSendCode(ctx context.Context, adminID int64) (allowed bool, resetAt time.Time)
	AllowVerifyCode(ctx context.Context, adminID int64, clientIP string) (allowed bool, resetAt time.Time)
}

// RateLimiter provides generic rate limiting functionality
type RateLimiter struct {
	client redis.Scripter
	now    func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(client redis.Scripter) *RateLimiter {
	return &RateLimiter{client: client, now: time.Now}
}

// CheckLimit checks if a request is allowed under the rate limit.
// Redis failures deny the request.
func (rl *RateLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (allowed bool, resetAt time.Time) {
	now := rl.now()
	fullKey := fmt.Sprintf("ratelimit:%s", key)

	result, err := rateLimitScript.Run(
		ctx,
		rl.client,
		[]string{fullKey},
		now.Unix(),
		int64(window.Seconds()),
		limit,
	).Int64Slice()

	if err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("rate limit check failed, denying request for safety")
		return false, now.Add(window)
	}

	if len(result) != 2 {
		log.Warn().Str("key", key).Msg("unexpected rate limit result, denying request for safety")
		return false, now.Add(window)
	}

	return result[0] == 1, time.Unix(result[1], 0)
}

func (rl *RateLimiter) AllowSendCode(ctx context.Context, adminID int64) (bool, time.Time) {
	return rl.CheckLimit(ctx, fmt.Sprintf("send_code:%d", adminID), config.SendCodeLimit, config.SendCodeWindow)
}

func (rl *RateLimiter) AllowVerifyCode(ctx context.Context, adminID int64, clientIP string) (bool, time.Time) {
	return rl.CheckLimit(ctx, verifyCodeKey(adminID, clientIP), config.VerifyCodeLimit, config.VerifyCodeWindow)
}

func verifyCodeKey(adminID int64, clientIP string) string {
	return fmt.Sprintf("verify_code:%d:%s", adminID, clientIP)
}
