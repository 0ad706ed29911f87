package ratelimit

import (
	"context"
	"math"
	"time"
)

// Result is the common consume(key) surface of spec.md §4.4.
type Result struct {
	Allowed         bool
	Remaining       int
	ResetAtEpochSec int64
}

// Algorithm selects one of the three rate-limit strategies; exactly one
// is active per Options, per spec.md §4.4.
type Algorithm string

const (
	TokenBucketAlgorithm    Algorithm = "token_bucket"
	SlidingWindowAlgorithm  Algorithm = "sliding_window"
	FixedWindowAlgorithm    Algorithm = "fixed_window"
)

// SlidingWindowWeights weights the previous/current window's contribution
// to the sliding-window estimate, per spec.md's `algorithmOptions.slidingWindow.weights`.
type SlidingWindowWeights struct {
	Current  float64
	Previous float64
}

// Options configures a Limiter, per spec.md §4.4's option table.
type Options struct {
	MaxRequests       int
	TimeWindowSeconds int
	KeyPrefix         string
	Algorithm         Algorithm

	TokenBucketRefillRate float64 // tokens/sec; default MaxRequests/TimeWindowSeconds
	TokenBucketBurstSize  int     // default MaxRequests

	SlidingWindowGranularityMs int64
	SlidingWindowWeights       SlidingWindowWeights

	FixedWindowStrict bool

	// Now, when non-nil, replaces time.Now for deterministic tests.
	Now func() time.Time
}

// resolved fills in spec.md's documented defaults.
func (o Options) resolved() Options {
	if o.MaxRequests <= 0 {
		o.MaxRequests = 60
	}
	if o.TimeWindowSeconds <= 0 {
		o.TimeWindowSeconds = 60
	}
	if o.KeyPrefix == "" {
		o.KeyPrefix = "rl:"
	}
	if o.Algorithm == "" {
		o.Algorithm = TokenBucketAlgorithm
	}
	if o.TokenBucketRefillRate <= 0 {
		o.TokenBucketRefillRate = float64(o.MaxRequests) / float64(o.TimeWindowSeconds)
	}
	if o.TokenBucketBurstSize <= 0 {
		o.TokenBucketBurstSize = o.MaxRequests
	}
	if o.SlidingWindowGranularityMs <= 0 {
		o.SlidingWindowGranularityMs = 1000
	}
	if o.SlidingWindowWeights.Current == 0 && o.SlidingWindowWeights.Previous == 0 {
		o.SlidingWindowWeights = SlidingWindowWeights{Current: 1, Previous: 0}
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// algorithm is the internal per-strategy consume implementation a Limiter
// delegates to.
type algorithm interface {
	consume(ctx context.Context, store Storage, key string, opts Options) (Result, error)
}

type tokenBucketAlgo struct{}

// consume implements spec.md §4.4's token bucket: initialize on first
// contact with tokens = burstSize-1; otherwise refill proportionally to
// elapsed time, then accept/reject based on whether at least one token
// is available.
func (tokenBucketAlgo) consume(ctx context.Context, store Storage, key string, opts Options) (Result, error) {
	now := opts.Now()
	nowMs := now.UnixMilli()
	ttl := time.Duration(opts.TimeWindowSeconds) * time.Second

	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	var tokens float64
	var lastRefillMs int64
	if !ok {
		tokens = float64(opts.TokenBucketBurstSize - 1)
		lastRefillMs = nowMs
		if err := store.Set(ctx, key, encodeTokenRecord(tokenRecord{
			TokensMilli:  int64(math.Round(tokens * 1000)),
			LastRefillMs: lastRefillMs,
		}), ttl); err != nil {
			return Result{}, err
		}
		return Result{Allowed: true, Remaining: int(tokens), ResetAtEpochSec: now.Add(ttl).Unix()}, nil
	}

	rec, valid := decodeTokenRecord(raw)
	if !valid {
		tokens = float64(opts.TokenBucketBurstSize - 1)
		lastRefillMs = nowMs
	} else {
		tokens = float64(rec.TokensMilli) / 1000
		refill := math.Floor(float64(nowMs-rec.LastRefillMs) * opts.TokenBucketRefillRate / 1000)
		tokens = math.Min(float64(opts.TokenBucketBurstSize), tokens+refill)
		lastRefillMs = nowMs
	}

	if tokens < 1 {
		waitMs := math.Ceil((1 - tokens) / opts.TokenBucketRefillRate * 1000)
		resetAt := (nowMs + int64(waitMs)) / 1000
		if err := store.Set(ctx, key, encodeTokenRecord(tokenRecord{
			TokensMilli:  int64(math.Round(tokens * 1000)),
			LastRefillMs: lastRefillMs,
		}), ttl); err != nil {
			return Result{}, err
		}
		return Result{Allowed: false, Remaining: 0, ResetAtEpochSec: resetAt}, nil
	}

	tokens--
	if err := store.Set(ctx, key, encodeTokenRecord(tokenRecord{
		TokensMilli:  int64(math.Round(tokens * 1000)),
		LastRefillMs: lastRefillMs,
	}), ttl); err != nil {
		return Result{}, err
	}
	return Result{Allowed: true, Remaining: int(math.Floor(tokens)), ResetAtEpochSec: now.Add(ttl).Unix()}, nil
}

type slidingWindowAlgo struct{}

// consume implements spec.md §4.4's sliding window: count weighted
// requests in the current and previous buckets, reject if at/over the
// limit, else record the new timestamp. Delegated to the storage
// backend's atomic implementation since this op is read-count-append.
func (slidingWindowAlgo) consume(ctx context.Context, store Storage, key string, opts Options) (Result, error) {
	if aw, ok := store.(atomicSlidingWindower); ok {
		return aw.slidingWindowConsumeCtx(ctx, key, opts.Now(), opts.TimeWindowSeconds,
			opts.SlidingWindowGranularityMs, opts.MaxRequests,
			opts.SlidingWindowWeights.Current, opts.SlidingWindowWeights.Previous)
	}
	return Result{}, errUnsupportedStorage
}

type fixedWindowAlgo struct{}

// consume implements spec.md §4.4's fixed window: strict mode aligns the
// window to wall-clock boundaries; lax mode starts the window at the
// first request seen.
func (fixedWindowAlgo) consume(ctx context.Context, store Storage, key string, opts Options) (Result, error) {
	now := opts.Now()
	nowMs := now.UnixMilli()
	windowMs := int64(opts.TimeWindowSeconds) * 1000
	ttl := time.Duration(opts.TimeWindowSeconds) * time.Second

	raw, ok, err := store.Get(ctx, key)
	if err != nil {
		return Result{}, err
	}

	var rec fixedWindowRecord
	var valid bool
	if ok {
		rec, valid = decodeFixedWindowRecord(raw)
	}

	computedStart := (nowMs / windowMs) * windowMs

	needsReset := !valid
	if valid {
		if opts.FixedWindowStrict {
			needsReset = rec.WindowStart < computedStart
		} else {
			needsReset = nowMs-rec.WindowStart >= windowMs
		}
	}

	if needsReset {
		start := computedStart
		if !opts.FixedWindowStrict {
			start = nowMs
		}
		rec = fixedWindowRecord{Counter: 1, WindowStart: start}
		if err := store.Set(ctx, key, encodeFixedWindowRecord(rec), ttl); err != nil {
			return Result{}, err
		}
		return Result{Allowed: true, Remaining: opts.MaxRequests - 1, ResetAtEpochSec: (rec.WindowStart + windowMs) / 1000}, nil
	}

	resetAt := (rec.WindowStart + windowMs) / 1000
	if rec.Counter >= int64(opts.MaxRequests) {
		return Result{Allowed: false, Remaining: 0, ResetAtEpochSec: resetAt}, nil
	}

	rec.Counter++
	if err := store.Set(ctx, key, encodeFixedWindowRecord(rec), ttl); err != nil {
		return Result{}, err
	}
	remaining := int(int64(opts.MaxRequests) - rec.Counter)
	if remaining < 0 {
		remaining = 0
	}
	return Result{Allowed: true, Remaining: remaining, ResetAtEpochSec: resetAt}, nil
}
