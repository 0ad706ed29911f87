// Package routetable implements the route registry and matcher, per
// spec.md §3/§4.1: a process-singleton ordered sequence of endpoints,
// frozen after startup, matched by exact path first and then by
// registration-order among parameterized patterns.
package routetable

import (
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/wudi/runway/internal/httperr"
	"github.com/wudi/runway/internal/logging"
	"github.com/wudi/runway/internal/middleware"
)

// Endpoint is an immutable route registration.
type Endpoint struct {
	Path        string
	Middlewares []middleware.Middleware
	Handler     middleware.HandlerFunc

	segments []string
}

// Registry is the process-singleton route table. The zero value is not
// ready to use; call New. Per spec.md §5, the registry is write-rare:
// mutated only at startup, read-only during request serving.
type Registry struct {
	mu                sync.RWMutex
	endpoints         []*Endpoint
	byPath            map[string]int // normalized path -> index into endpoints
	globalMiddlewares []middleware.Middleware
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byPath: make(map[string]int)}
}

// Register inserts an endpoint into the ordered sequence, per spec.md
// §4.1. Path normalization failures return an httperr.InvalidInput
// error. Invalid
// middlewares (neither Classic nor Contextual) are dropped with a
// logged warning rather than failing the registration.
func (r *Registry) Register(path string, middlewares []middleware.Middleware, handler middleware.HandlerFunc) *httperr.Error {
	normalized, err := NormalizePath(path)
	if err != nil {
		return err
	}
	if handler == nil {
		return httperr.InvalidInput.WithDetails("handler must be provided")
	}

	segments := splitSegments(normalized)
	for _, seg := range segments {
		if seg == ":" {
			return httperr.InvalidInput.WithDetails("empty parameter name is rejected at registration")
		}
	}

	valid := make([]middleware.Middleware, 0, len(middlewares))
	for _, m := range middlewares {
		if m.Valid() {
			valid = append(valid, m)
		} else {
			logging.Warn("dropping invalid middleware at registration", zap.String("path", normalized))
		}
	}

	endpoint := &Endpoint{Path: normalized, Middlewares: valid, Handler: handler, segments: segments}

	r.mu.Lock()
	defer r.mu.Unlock()

	if idx, ok := r.byPath[normalized]; ok {
		logging.Warn("replacing duplicate route registration", zap.String("path", normalized))
		r.endpoints[idx] = endpoint
		return nil
	}

	r.byPath[normalized] = len(r.endpoints)
	r.endpoints = append(r.endpoints, endpoint)
	return nil
}

// AddGlobalMiddleware appends middlewares run ahead of every endpoint's
// own chain, after the same validation Register applies.
func (r *Registry) AddGlobalMiddleware(middlewares ...middleware.Middleware) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range middlewares {
		if m.Valid() {
			r.globalMiddlewares = append(r.globalMiddlewares, m)
		} else {
			logging.Warn("dropping invalid global middleware")
		}
	}
}

// GlobalMiddlewares returns a copy of the registered global middlewares.
func (r *Registry) GlobalMiddlewares() []middleware.Middleware {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]middleware.Middleware, len(r.globalMiddlewares))
	copy(out, r.globalMiddlewares)
	return out
}

// Match implements spec.md §4.1's step A/B/C matching algorithm: exact
// path match first, then first registration-order parameterized match.
func (r *Registry) Match(path string) (*Endpoint, map[string]string, bool) {
	normalized, err := NormalizePath(path)
	if err != nil {
		return nil, nil, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx, ok := r.byPath[normalized]; ok {
		return r.endpoints[idx], nil, true
	}

	requestSegments := splitSegments(normalized)
	for _, ep := range r.endpoints {
		if len(ep.segments) != len(requestSegments) {
			continue
		}
		params := make(map[string]string)
		matched := true
		for i, patternSeg := range ep.segments {
			if strings.HasPrefix(patternSeg, ":") {
				params[patternSeg[1:]] = requestSegments[i]
				continue
			}
			if patternSeg != requestSegments[i] {
				matched = false
				break
			}
		}
		if matched {
			return ep, params, true
		}
	}
	return nil, nil, false
}

// ListEndpoints returns endpoints in registration order, or grouped by
// the first non-empty path segment when grouped is true.
func (r *Registry) ListEndpoints(grouped bool) any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !grouped {
		paths := make([]string, len(r.endpoints))
		for i, ep := range r.endpoints {
			paths[i] = ep.Path
		}
		return paths
	}

	groups := make(map[string][]string)
	var order []string
	for _, ep := range r.endpoints {
		key := "/"
		if len(ep.segments) > 0 {
			key = ep.segments[0]
		}
		if _, seen := groups[key]; !seen {
			order = append(order, key)
		}
		groups[key] = append(groups[key], ep.Path)
	}
	return groups
}

// NormalizePath implements spec.md §4.1's path normalization: must start
// with "/"; trailing "/" is stripped except for root; no other slash
// collapsing occurs.
func NormalizePath(path string) (string, *httperr.Error) {
	if path == "" || !strings.HasPrefix(path, "/") {
		return "", httperr.InvalidInput.WithDetails("path must be non-empty and start with /")
	}
	if path != "/" && strings.HasSuffix(path, "/") {
		path = strings.TrimSuffix(path, "/")
	}
	return path, nil
}

// splitSegments splits a normalized path on "/", discarding empty
// segments produced by the split (spec.md §4.1's path-matching edge
// case); root "/" yields an empty segment list.
func splitSegments(path string) []string {
	parts := strings.Split(path, "/")
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			segments = append(segments, p)
		}
	}
	return segments
}
