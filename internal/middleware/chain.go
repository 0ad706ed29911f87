// Package middleware implements the framework's cooperative middleware
// chain: an ordered sequence of steps advanced via a next() continuation,
// per spec.md §4.2/§5. Middleware values are a two-variant sum type
// (REDESIGN FLAGS) in place of the arity-sniffed callback the original
// runtime accepted, validated once at registration instead of per call.
package middleware

import (
	"net/http"

	"github.com/wudi/runway/internal/reqctx"
)

// ClassicFunc is the "request/response/next" style (spec.md §4.1's 3-arg
// middleware variant): operates directly on the underlying writer/request.
type ClassicFunc func(w http.ResponseWriter, r *http.Request, next func())

// ContextualFunc is the RC-native style: operates on the framework's
// enhanced request context.
type ContextualFunc func(rc *reqctx.RC, next func())

// Middleware is the sum type spec.md's registration validates against.
// Exactly one of Classic/Contextual must be set; Valid reports otherwise.
type Middleware struct {
	Classic    ClassicFunc
	Contextual ContextualFunc
}

// Valid reports whether exactly one variant is populated, per spec.md
// §4.1's "middlewares must be 2- or 3-arg functions" validation rule.
func (m Middleware) Valid() bool {
	return (m.Classic != nil) != (m.Contextual != nil)
}

// FromClassic wraps a classic-style function as a Middleware.
func FromClassic(fn ClassicFunc) Middleware { return Middleware{Classic: fn} }

// FromContextual wraps an RC-style function as a Middleware.
func FromContextual(fn ContextualFunc) Middleware { return Middleware{Contextual: fn} }

// HandlerFunc is the terminal step of a chain: spec.md's "handler must be
// a unary function taking RC".
type HandlerFunc func(rc *reqctx.RC)

// Chain is an ordered, immutable sequence of middlewares. The dispatcher
// assembles an endpoint's chain (globalMiddlewares ++
// endpoint.middlewares) for each request it serves.
type Chain struct {
	middlewares []Middleware
}

// NewChain creates a new middleware chain, dropping any invalid value
// with the logged-warning semantics spec.md §4.1 requires at
// registration (the caller is expected to have already logged; NewChain
// itself only filters, keeping this package warning-free and testable).
func NewChain(middlewares ...Middleware) *Chain {
	filtered := make([]Middleware, 0, len(middlewares))
	for _, m := range middlewares {
		if m.Valid() {
			filtered = append(filtered, m)
		}
	}
	return &Chain{middlewares: filtered}
}

// Then builds the terminal execution function for handler h, running the
// chain in registration order ahead of it.
func (c *Chain) Then(h HandlerFunc) HandlerFunc {
	return func(rc *reqctx.RC) {
		c.run(rc, 0, h)
	}
}

func (c *Chain) run(rc *reqctx.RC, i int, h HandlerFunc) {
	if rc.Sent() {
		return
	}
	if i >= len(c.middlewares) {
		if h != nil {
			h(rc)
		}
		return
	}
	m := c.middlewares[i]
	next := func() { c.run(rc, i+1, h) }
	switch {
	case m.Classic != nil:
		m.Classic(rc.Response, rc.Request, next)
	case m.Contextual != nil:
		m.Contextual(rc, next)
	default:
		next()
	}
}

// Append adds middlewares to the chain and returns a new chain.
func (c *Chain) Append(middlewares ...Middleware) *Chain {
	combined := make([]Middleware, 0, len(c.middlewares)+len(middlewares))
	combined = append(combined, c.middlewares...)
	combined = append(combined, middlewares...)
	return NewChain(combined...)
}

// Prepend adds middlewares to the beginning of the chain.
func (c *Chain) Prepend(middlewares ...Middleware) *Chain {
	combined := make([]Middleware, 0, len(c.middlewares)+len(middlewares))
	combined = append(combined, middlewares...)
	combined = append(combined, c.middlewares...)
	return NewChain(combined...)
}

// Extend extends the chain with another chain.
func (c *Chain) Extend(other *Chain) *Chain {
	return c.Append(other.middlewares...)
}

// Len returns the number of middlewares in the chain.
func (c *Chain) Len() int {
	return len(c.middlewares)
}

// Builder helps assemble middleware chains dynamically, e.g. while
// scanning a directory of discovered handler modules.
type Builder struct {
	middlewares []Middleware
}

// NewBuilder creates a new middleware builder.
func NewBuilder() *Builder {
	return &Builder{middlewares: make([]Middleware, 0)}
}

// Use adds a middleware to the builder.
func (b *Builder) Use(m Middleware) *Builder {
	b.middlewares = append(b.middlewares, m)
	return b
}

// UseIf adds a middleware conditionally.
func (b *Builder) UseIf(condition bool, m Middleware) *Builder {
	if condition {
		b.middlewares = append(b.middlewares, m)
	}
	return b
}

// Build creates a Chain from the builder.
func (b *Builder) Build() *Chain {
	return NewChain(b.middlewares...)
}

// Handler wraps the given terminal handler with all middlewares.
func (b *Builder) Handler(h HandlerFunc) HandlerFunc {
	return b.Build().Then(h)
}

// WrapClassic converts a classic-style function into a Middleware, the
// same role the original's WrapFunc played for http.Handler chains.
func WrapClassic(fn ClassicFunc) Middleware {
	return FromClassic(fn)
}
