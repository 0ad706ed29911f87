package ratelimit

import (
	"fmt"
	"strconv"

	runwaymw "github.com/wudi/runway/internal/middleware"
	"github.com/wudi/runway/internal/reqctx"
)

// HeaderFormatType selects which header family the middleware emits.
type HeaderFormatType string

const (
	HeaderFormatStandard HeaderFormatType = "standard"
	HeaderFormatLegacy   HeaderFormatType = "legacy"
	HeaderFormatBoth     HeaderFormatType = "both"
)

// HeaderFormat configures spec.md §4.4's `headerFormat` option group.
type HeaderFormat struct {
	Type   HeaderFormatType
	Draft7 bool // emit RateLimit-Policy
	Draft8 bool // emit reset as delta-seconds instead of epoch seconds
}

// MiddlewareConfig configures the rate-limit middleware factory.
type MiddlewareConfig struct {
	Limiter      *Limiter
	KeyGenerator KeyGenerator
	HeaderFormat HeaderFormat
	// OnRateLimited, if set, replaces the default 429 JSON response.
	OnRateLimited func(rc *reqctx.RC)
}

// Middleware builds the rate-limit middleware per spec.md §4.4: resolve
// the key, consume, set headers per headerFormat, and either call
// onRateLimited or send 429 when rejected.
func Middleware(cfg MiddlewareConfig) runwaymw.Middleware {
	keyGen := cfg.KeyGenerator
	if keyGen == nil {
		keyGen = ByIP()
	}
	headerFormat := cfg.HeaderFormat
	if headerFormat.Type == "" {
		headerFormat = HeaderFormat{Type: HeaderFormatStandard}
	}

	return runwaymw.FromContextual(func(rc *reqctx.RC, next func()) {
		key := keyGen(rc)

		result, herr := cfg.Limiter.consumeOrError(rc.Request.Context(), key)
		if herr != nil {
			rc.SendError(herr)
			return
		}

		writeHeaders(rc, result, cfg.Limiter.opts, headerFormat)

		if !result.Allowed {
			retryAfter := result.ResetAtEpochSec - nowUnix(cfg.Limiter.opts)
			if retryAfter < 1 {
				retryAfter = 1
			}
			rc.Response.Header().Set("Retry-After", strconv.FormatInt(retryAfter, 10))

			if cfg.OnRateLimited != nil {
				cfg.OnRateLimited(rc)
				return
			}
			rc.SendError(429, "Too Many Requests")
			return
		}

		next()
	})
}

func nowUnix(opts Options) int64 { return opts.Now().Unix() }

func writeHeaders(rc *reqctx.RC, result Result, opts Options, format HeaderFormat) {
	h := rc.Response.Header()
	limit := strconv.Itoa(opts.MaxRequests)
	remaining := strconv.Itoa(result.Remaining)

	reset := result.ResetAtEpochSec
	if format.Draft8 {
		reset -= nowUnix(opts)
		if reset < 0 {
			reset = 0
		}
	}
	resetStr := strconv.FormatInt(reset, 10)

	if format.Type == HeaderFormatStandard || format.Type == HeaderFormatBoth {
		h.Set("RateLimit-Limit", limit)
		h.Set("RateLimit-Remaining", remaining)
		h.Set("RateLimit-Reset", resetStr)
		if format.Draft7 {
			h.Set("RateLimit-Policy", fmt.Sprintf("%s;w=%d", limit, opts.TimeWindowSeconds))
		}
	}
	if format.Type == HeaderFormatLegacy || format.Type == HeaderFormatBoth {
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", remaining)
		h.Set("X-RateLimit-Reset", resetStr)
	}
}
