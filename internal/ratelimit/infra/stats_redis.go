package infra

import (
	"context"
	"strings"
	"time"

	"apigateway/internal/ratelimit/domain"

	"github.com/redis/go-redis/v9"
)

// recordScript bundles every counter touched by one decision into a
// single EVAL, the same atomicity idiom RedisStore uses for the
// check-and-decrement rate-limit scripts: one round trip instead of a
// pipeline of HINCRBYs racing independent TTLs.
const recordScript = `
local total_key = KEYS[1]
local bucket_key = KEYS[2]
local route_key = KEYS[3]
local key_key = KEYS[4]
local field = ARGV[1]
local ttl_ms = tonumber(ARGV[2])
local route_field = ARGV[3]

redis.call('HINCRBY', total_key, field, 1)

if bucket_key ~= '' then
  redis.call('HINCRBY', bucket_key, field, 1)
  if ttl_ms > 0 then redis.call('PEXPIRE', bucket_key, ttl_ms) end
end

if route_key ~= '' and route_field ~= '' then
  redis.call('HINCRBY', route_key, route_field, 1)
end

if key_key ~= '' then
  redis.call('HINCRBY', key_key, field, 1)
  if ttl_ms > 0 then redis.call('PEXPIRE', key_key, ttl_ms) end
end

return 1
`

// RedisStatsStore is a shared-fleet counter sink. Counters are
// cumulative; per-minute buckets and per-key counters carry a TTL so
// idle series are reclaimed. Unlike MemoryStatsStore it has no single
// in-process view to snapshot, so it does not implement
// domain.StatsSnapshotter — reading these back is an operator's job,
// against Redis directly.
type RedisStatsStore struct {
	rdb    *redis.Client
	script *redis.Script

	prefix string
	ttl    time.Duration
	bucket string // "minute" or "none"

	trackKeys bool
}

type RedisStatsOption func(*RedisStatsStore)

func WithStatsPrefix(prefix string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.prefix = strings.Trim(prefix, ":") }
}

func WithStatsTTL(d time.Duration) RedisStatsOption {
	return func(s *RedisStatsStore) { s.ttl = d }
}

func WithStatsBucket(bucket string) RedisStatsOption {
	return func(s *RedisStatsStore) { s.bucket = strings.ToLower(strings.TrimSpace(bucket)) }
}

func WithStatsTrackKeys(track bool) RedisStatsOption {
	return func(s *RedisStatsStore) { s.trackKeys = track }
}

func NewRedisStatsStore(rdb *redis.Client, opts ...RedisStatsOption) *RedisStatsStore {
	s := &RedisStatsStore{
		rdb:    rdb,
		script: redis.NewScript(recordScript),
		prefix: "ratelimit:stats",
		ttl:    24 * time.Hour,
		bucket: "minute",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record implements domain.StatsStore via one EVAL covering the total,
// the current minute bucket, the per-route breakdown, and (if enabled)
// the per-key breakdown. Unused counters are passed as empty key/field
// strings so the script skips them without a Go-side branch per counter.
func (s *RedisStatsStore) Record(ctx context.Context, ev domain.StatsEvent) error {
	if s == nil || s.rdb == nil {
		return nil
	}

	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	field := "denied"
	if ev.Allowed {
		field = "allowed"
	}

	totalKey := s.prefix + ":total"

	bucketKey := ""
	if s.bucket == "minute" {
		bucketKey = s.prefix + ":minute:" + at.UTC().Format("200601021504")
	}

	routeKey := ""
	routeField := strings.TrimSpace(strings.TrimSpace(ev.Method) + " " + strings.TrimSpace(ev.Path))
	if routeField != "" {
		routeKey = s.prefix + ":route"
		routeField = routeField + ":" + field
	} else {
		routeField = ""
	}

	keyKey := ""
	if s.trackKeys {
		if k := strings.TrimSpace(string(ev.Key)); k != "" {
			keyKey = s.prefix + ":key:" + k
		}
	}

	ttlMs := int64(0)
	if s.ttl > 0 {
		ttlMs = s.ttl.Milliseconds()
	}

	_, err := s.script.Run(ctx, s.rdb, []string{totalKey, bucketKey, routeKey, keyKey}, field, ttlMs, routeField).Result()
	return err
}
