package ratelimit

import (
	"context"
	"fmt"
	"strconv"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wudi/runway/internal/httperr"
	"github.com/wudi/runway/internal/reqctx"
)

// Limiter ties a Storage backend, an Options selection, and the
// corresponding algorithm together behind the single consume(key)
// surface of spec.md §4.4.
type Limiter struct {
	store Storage
	opts  Options
	algo  algorithm
}

// New builds a Limiter. Exactly one algorithm is selected by
// opts.Algorithm (default token_bucket).
func New(store Storage, opts Options) *Limiter {
	opts = opts.resolved()
	var algo algorithm
	switch opts.Algorithm {
	case SlidingWindowAlgorithm:
		algo = slidingWindowAlgo{}
	case FixedWindowAlgorithm:
		algo = fixedWindowAlgo{}
	default:
		algo = tokenBucketAlgo{}
	}
	return &Limiter{store: store, opts: opts, algo: algo}
}

// Consume implements spec.md §4.4's consume(key) -> {allowed, remaining,
// resetAtEpochSec}. key is the caller-supplied identifier; the configured
// keyPrefix is applied internally to namespace storage.
func (l *Limiter) Consume(ctx context.Context, key string) (Result, error) {
	return l.algo.consume(ctx, l.store, l.opts.KeyPrefix+key, l.opts)
}

// ErrStorageTimeout wraps a storage error that represents a context
// deadline/timeout, which the middleware factory reports as 503 rather
// than the generic 500 fatal-error bucket (SPEC_FULL.md §4.4's resolution
// of spec.md §9's open question).
type ErrStorageTimeout struct{ Cause error }

func (e ErrStorageTimeout) Error() string { return fmt.Sprintf("ratelimit storage timeout: %v", e.Cause) }
func (e ErrStorageTimeout) Unwrap() error { return e.Cause }

// consumeOrError resolves a Consume failure to the framework's error
// taxonomy: storage errors are fatal (500) per spec.md, except a
// storage-reported timeout, which resolves to 503.
func (l *Limiter) consumeOrError(ctx context.Context, key string) (Result, *httperr.Error) {
	res, err := l.Consume(ctx, key)
	if err == nil {
		return res, nil
	}
	var timeout ErrStorageTimeout
	if asErrStorageTimeout(err, &timeout) {
		return Result{}, httperr.ServiceUnavailable.WithDetails(timeout.Error())
	}
	return Result{}, httperr.Internal.WithDetails(err.Error())
}

func asErrStorageTimeout(err error, target *ErrStorageTimeout) bool {
	if t, ok := err.(ErrStorageTimeout); ok {
		*target = t
		return true
	}
	return false
}

// KeyGenerator extracts a rate-limit key suffix from an RC, per spec.md
// §4.4's `keyGenerator` option (default: client IP).
type KeyGenerator func(rc *reqctx.RC) string

// ByIP keys on the RC's resolved client IP.
func ByIP() KeyGenerator {
	return func(rc *reqctx.RC) string { return rc.IP }
}

// ByHeader keys on a request header, falling back to IP when absent.
func ByHeader(name string) KeyGenerator {
	return func(rc *reqctx.RC) string {
		if v := rc.Headers.Get(name); v != "" {
			return "header:" + name + ":" + v
		}
		return rc.IP
	}
}

// ByCookie keys on a cookie value, falling back to IP when absent.
func ByCookie(name string) KeyGenerator {
	return func(rc *reqctx.RC) string {
		c, err := rc.Request.Cookie(name)
		if err != nil || c.Value == "" {
			return rc.IP
		}
		return "cookie:" + name + ":" + c.Value
	}
}

// ByClientID keys on a request-scoped identity value an earlier
// middleware may have set in rc.Payload["client_id"], falling back to IP.
func ByClientID() KeyGenerator {
	return func(rc *reqctx.RC) string {
		if v, ok := rc.Payload["client_id"].(string); ok && v != "" {
			return v
		}
		return rc.IP
	}
}

// ByJWTClaim keys on a claim read from an unverified bearer JWT in the
// Authorization header, falling back to IP. This framework does not ship
// authentication, so no signature-verification secret is configured here
// — the claim is read without verification, suitable only behind a
// trusted edge that has already validated the token.
func ByJWTClaim(claim string) KeyGenerator {
	return func(rc *reqctx.RC) string {
		auth := rc.Headers.Get("Authorization")
		const prefix = "Bearer "
		if len(auth) <= len(prefix) || auth[:len(prefix)] != prefix {
			return rc.IP
		}
		token := auth[len(prefix):]

		parser := jwt.NewParser()
		claims := jwt.MapClaims{}
		if _, _, err := parser.ParseUnverified(token, claims); err != nil {
			return rc.IP
		}
		val, ok := claims[claim]
		if !ok {
			return rc.IP
		}
		s := stringifyClaim(val)
		if s == "" {
			return rc.IP
		}
		return "jwt_claim:" + claim + ":" + s
	}
}

func stringifyClaim(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}
