package infra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"apigateway/internal/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// Algorithm selects which Lua script RedisStore runs per Check call.
type Algorithm int

const (
	AlgorithmTokenBucket Algorithm = iota
	AlgorithmSlidingWindow
)

// tokenBucketScript runs the same refill-then-deduct math as the memory
// token-bucket backend, but as a single EVAL so the read-modify-write
// stays atomic across gateway instances sharing one Redis.
const tokenBucketScript = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local refill_per_sec = tonumber(ARGV[3])
local ttl_ms = tonumber(ARGV[4])

local state = redis.call('HMGET', key, 'tokens', 'ts')
local tokens = tonumber(state[1])
local ts = tonumber(state[2])
if tokens == nil then tokens = capacity end
if ts == nil then ts = now_ms end

local elapsed = math.max(0, now_ms - ts)
tokens = math.min(capacity, tokens + elapsed * refill_per_sec / 1000.0)

if tokens >= 1.0 then
  tokens = tokens - 1.0
  redis.call('HMSET', key, 'tokens', tokens, 'ts', now_ms)
  redis.call('PEXPIRE', key, ttl_ms)
  return {1, 0}
else
  local need = 1.0 - tokens
  local wait_ms = math.ceil(need / refill_per_sec * 1000.0)
  redis.call('HMSET', key, 'tokens', tokens, 'ts', now_ms)
  redis.call('PEXPIRE', key, ttl_ms)
  return {0, wait_ms}
end
`

// slidingWindowScript uses a Redis sorted set keyed by timestamp,
// trimming out-of-window members before counting.
const slidingWindowScript = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local window_ms = tonumber(ARGV[2])
local max_n = tonumber(ARGV[3])

local cutoff = now_ms - window_ms
redis.call('ZREMRANGEBYSCORE', key, '-inf', cutoff)

local count = redis.call('ZCARD', key)
if count < max_n then
  redis.call('ZADD', key, now_ms, now_ms .. '-' .. math.random(1, 1000000000))
  redis.call('PEXPIRE', key, window_ms)
  return {1, 0}
else
  local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
  local oldest_ts = tonumber(oldest[2])
  local wait_ms = math.ceil(oldest_ts + window_ms - now_ms)
  if wait_ms < 1 then wait_ms = 1 end
  return {0, wait_ms}
end
`

// RedisStore implements domain.Backend with atomic server-side scripts, so
// concurrent gateway instances share one source of truth for a key. Keys
// are namespaced by prefix; TTLs keep idle keys from accumulating forever.
type RedisStore struct {
	client    *redis.Client
	script    *redis.Script
	algorithm Algorithm
	prefix    string

	capacity     int
	refillPerSec float64
	window       time.Duration
	max          int
}

type RedisStoreOption func(*RedisStore)

func WithRedisPrefix(prefix string) RedisStoreOption {
	return func(s *RedisStore) { s.prefix = strings.Trim(prefix, ":") }
}

// NewRedisTokenBucketStore builds a Redis-backed token bucket with
// capacity C and refill rate R, namespaced under prefix (default
// "gateway:ratelimit").
func NewRedisTokenBucketStore(client *redis.Client, capacity int, refillPerSec float64, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:       client,
		script:       redis.NewScript(tokenBucketScript),
		algorithm:    AlgorithmTokenBucket,
		prefix:       "gateway:ratelimit",
		capacity:     capacity,
		refillPerSec: refillPerSec,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewRedisSlidingWindowStore builds a Redis-backed sliding window with
// window W and max N requests, namespaced under prefix.
func NewRedisSlidingWindowStore(client *redis.Client, window time.Duration, max int, opts ...RedisStoreOption) *RedisStore {
	s := &RedisStore{
		client:    client,
		script:    redis.NewScript(slidingWindowScript),
		algorithm: AlgorithmSlidingWindow,
		prefix:    "gateway:ratelimit",
		window:    window,
		max:       max,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Check implements domain.Backend. Network errors, script errors, or
// timeouts surface as a backend error; the caller (application.Service)
// maps that to fail-open/fail-closed per the configured policy.
func (s *RedisStore) Check(ctx context.Context, key domain.Key, now time.Time) (domain.Decision, error) {
	redisKey := fmt.Sprintf("%s:%s", s.prefix, key)
	nowMs := now.UnixMilli()

	var res any
	var err error
	switch s.algorithm {
	case AlgorithmTokenBucket:
		ttlMs := int64(float64(s.capacity) / s.refillPerSec * 1000)
		if ttlMs <= 0 {
			ttlMs = 60000
		}
		res, err = s.script.Run(ctx, s.client, []string{redisKey}, nowMs, s.capacity, s.refillPerSec, ttlMs).Result()
	case AlgorithmSlidingWindow:
		res, err = s.script.Run(ctx, s.client, []string{redisKey}, nowMs, s.window.Milliseconds(), s.max).Result()
	}
	if err != nil {
		return domain.Decision{}, err
	}

	arr, ok := res.([]any)
	if !ok || len(arr) != 2 {
		return domain.Decision{}, fmt.Errorf("ratelimit: unexpected script result %v", res)
	}
	allowed, _ := arr[0].(int64)
	waitMs, _ := arr[1].(int64)
	return domain.Decision{Allowed: allowed == 1, RetryAfterMs: waitMs}, nil
}
