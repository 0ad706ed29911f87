package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// slidingWindowScript mirrors the teacher's ZSET-based sliding window Lua
// script, adapted to spec.md's weighted current/previous window model
// instead of a flat limit: it removes entries older than previousStart,
// counts how many fall in [currentStart, now] vs
// [previousStart, currentStart), and only appends the new timestamp if
// the weighted estimate is still under the limit.
//
// KEYS[1] = storage key
// ARGV: nowMs, previousStart, currentStart, windowMs, maxRequests, weightCurrent*1000, weightPrevious*1000
// returns: {allowed(0/1), remaining, resetAtEpochSec}
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local previousStart = tonumber(ARGV[2])
local currentStart = tonumber(ARGV[3])
local windowMs = tonumber(ARGV[4])
local maxRequests = tonumber(ARGV[5])
local weightCurrent = tonumber(ARGV[6]) / 1000
local weightPrevious = tonumber(ARGV[7]) / 1000

redis.call('ZREMRANGEBYSCORE', key, 0, previousStart - 1)

local c = redis.call('ZCOUNT', key, currentStart, now)
local p = redis.call('ZCOUNT', key, previousStart, currentStart - 1)

local estimate = c * weightCurrent + p * weightPrevious
local resetAt = math.floor(currentStart / 1000) + math.floor(windowMs / 1000)

if estimate >= maxRequests then
    redis.call('PEXPIRE', key, windowMs)
    return {0, 0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random(1000000000))
redis.call('PEXPIRE', key, windowMs)

local remaining = math.floor(maxRequests - estimate - 1)
if remaining < 0 then
    remaining = 0
end
return {1, remaining, resetAt}
`)

// RedisStore is the Storage implementation backed by Redis, per spec.md
// §4.4: scalar records serialized as text, SET with EX, and — for the
// sliding window algorithm specifically — an atomic Lua script so the
// read-count-append sequence cannot race on the wire.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an existing go-redis client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (r *RedisStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapTimeout(err)
	}
	return val, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return wrapTimeout(err)
	}
	return nil
}

func (r *RedisStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, bool, error) {
	existed, err := r.client.Exists(ctx, key).Result()
	if err != nil {
		return 0, false, wrapTimeout(err)
	}
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, false, wrapTimeout(err)
	}
	if ttl > 0 {
		r.client.PExpire(ctx, key, ttl)
	}
	return n, existed == 1, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, key).Err(); err != nil {
		return wrapTimeout(err)
	}
	return nil
}

func (r *RedisStore) slidingWindowConsumeCtx(ctx context.Context, key string, now time.Time, windowSec int, granularityMs int64, maxRequests int, weightCurrent, weightPrevious float64) (Result, error) {
	nowMs := now.UnixMilli()
	currentStart := (nowMs / granularityMs) * granularityMs
	previousStart := currentStart - int64(windowSec)*1000
	windowMs := int64(windowSec) * 1000

	out, err := slidingWindowScript.Run(ctx, r.client,
		[]string{key},
		nowMs, previousStart, currentStart, windowMs, maxRequests,
		int64(weightCurrent*1000), int64(weightPrevious*1000),
	).Int64Slice()
	if err != nil {
		return Result{}, wrapTimeout(err)
	}
	if len(out) != 3 {
		return Result{}, errors.New("ratelimit: unexpected sliding window script result")
	}
	return Result{Allowed: out[0] == 1, Remaining: int(out[1]), ResetAtEpochSec: out[2]}, nil
}

func wrapTimeout(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrStorageTimeout{Cause: err}
	}
	return err
}
