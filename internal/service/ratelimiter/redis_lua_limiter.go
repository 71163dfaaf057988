// Package ratelimiter provides a Redis-backed token bucket used to throttle
// submission intake. State lives in Redis so the limit holds across server
// restarts; a Redis outage fails open because refusing all submissions is
// worse than briefly not throttling them.
package ratelimiter

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter is the token bucket contract: spend cost tokens from the bucket
// behind key, or report how long until the bucket could cover it.
type Limiter interface {
	Allow(ctx context.Context, key string, cost int64) (allowed bool, retryAfter time.Duration, err error)
}

// BucketConfig sizes one bucket. Capacity is the burst; RefillRate is
// tokens per second.
type BucketConfig struct {
	Capacity   int64
	RefillRate float64
}

// NewBucketConfig sizes a bucket that admits burst submissions per window.
func NewBucketConfig(burst int, window time.Duration) BucketConfig {
	if burst <= 0 || window <= 0 {
		return BucketConfig{}
	}
	return BucketConfig{
		Capacity:   int64(burst),
		RefillRate: float64(burst) / window.Seconds(),
	}
}

// RedisLuaLimiter runs the token bucket atomically in Redis via a Lua
// script. Every key gets the default bucket unless overridden.
type RedisLuaLimiter struct {
	redis     *redis.Client
	def       BucketConfig
	overrides map[string]BucketConfig
	script    *redis.Script
	mu        sync.RWMutex

	// Now is the clock handed to the script; tests pin it.
	Now func() time.Time
}

// NewRedisLuaLimiter builds a limiter on rdb with def applied to every key.
// A zero def disables limiting.
func NewRedisLuaLimiter(rdb *redis.Client, def BucketConfig) *RedisLuaLimiter {
	if rdb == nil {
		return nil
	}
	return &RedisLuaLimiter{
		redis:     rdb,
		def:       def,
		overrides: map[string]BucketConfig{},
		script:    redis.NewScript(luaTokenBucketScript),
		Now:       time.Now,
	}
}

const luaTokenBucketScript = `
local key = KEYS[1]
local capacity = tonumber(ARGV[1])
local refill_rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = tonumber(ARGV[4])

local tokens = capacity
local last_refill = now

local data = redis.call("HMGET", key, "tokens", "last_refill")
if data[1] ~= false and data[1] ~= nil then
  tokens = tonumber(data[1])
end
if data[2] ~= false and data[2] ~= nil then
  last_refill = tonumber(data[2])
end

if last_refill == nil then
  last_refill = now
end

local delta = now - last_refill
if delta < 0 then
  delta = 0
end

tokens = math.min(capacity, tokens + delta * refill_rate)
last_refill = now

local allowed = 0
local retry_after = 0

if tokens >= cost then
  tokens = tokens - cost
  allowed = 1
else
  local shortage = cost - tokens
  if refill_rate > 0 then
    retry_after = shortage / refill_rate
  else
    retry_after = 0
  end
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)

return { allowed, tokens, last_refill, retry_after }
`

// Allow spends cost tokens from key's bucket. Redis failures report
// allowed=true alongside the error so callers can fail open.
func (l *RedisLuaLimiter) Allow(ctx context.Context, key string, cost int64) (bool, time.Duration, error) {
	if l == nil || l.redis == nil {
		return true, 0, nil
	}
	l.mu.RLock()
	cfg, ok := l.overrides[key]
	l.mu.RUnlock()
	if !ok {
		cfg = l.def
	}
	if cfg.Capacity <= 0 || cfg.RefillRate <= 0 {
		return true, 0, nil
	}
	if cost <= 0 {
		cost = 1
	}

	nowSec := float64(l.Now().UnixNano()) / 1e9

	redisKey := "rate:" + key
	res, err := l.script.Run(ctx, l.redis, []string{redisKey}, cfg.Capacity, cfg.RefillRate, nowSec, cost).Result()
	if err != nil {
		slog.Error("redis rate limiter script error", slog.String("key", key), slog.Any("error", err))
		return true, 0, err
	}

	vals, ok := res.([]interface{})
	if !ok || len(vals) < 4 {
		slog.Error("redis rate limiter unexpected script result", slog.String("key", key), slog.Any("result", res))
		return true, 0, nil
	}

	allowed := toInt64(vals[0]) == 1
	retryAfterSec := toFloat64(vals[3])
	retryAfter := time.Duration(retryAfterSec * float64(time.Second))
	return allowed, retryAfter, nil
}

// SetBucketConfig overrides the bucket for one key. Safe for concurrent use.
func (l *RedisLuaLimiter) SetBucketConfig(key string, cfg BucketConfig) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides[key] = cfg
}

// SubmitThrottle adapts the limiter to the submission intake port: one
// token per attempt. A nil limiter admits everything.
type SubmitThrottle struct {
	Limiter *RedisLuaLimiter
}

// Allow reports whether the key may submit now.
func (t SubmitThrottle) Allow(ctx context.Context, key string) (bool, error) {
	ok, _, err := t.Limiter.Allow(ctx, key, 1)
	return ok, err
}

var _ Limiter = (*RedisLuaLimiter)(nil)

func toInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int:
		return int64(t)
	case float64:
		return int64(t)
	default:
		return 0
	}
}

func toFloat64(v interface{}) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case int64:
		return float64(t)
	case int:
		return float64(t)
	default:
		return math.NaN()
	}
}
