// Package reqctx implements the framework's per-request context (RC):
// the single value threaded through a middleware chain for the lifetime
// of one HTTP request, per spec.md §3/§4.2.
package reqctx

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/wudi/runway/internal/bodyparser"
	"github.com/wudi/runway/internal/contenttype"
	"github.com/wudi/runway/internal/httperr"
	"github.com/wudi/runway/internal/logging"
)

// Header is a case-insensitive header view over the underlying request.
type Header struct{ h http.Header }

func (h Header) Get(name string) string { return h.h.Get(name) }
func (h Header) Values(name string) []string { return h.h.Values(name) }

// RC is exclusively owned by the dispatcher for one request's lifetime;
// it must never be shared across goroutines concurrently (spec.md §5).
type RC struct {
	Request  *http.Request
	Response http.ResponseWriter

	GET, POST, PUT, DELETE, PATCH, HEAD, OPTIONS bool

	IP       string
	Headers  Header
	Method   string
	Path     string // raw path, with query string
	Endpoint string // path without query string
	Protocol string
	Hostname string
	FullURL  string

	Params map[string]string

	Payload map[string]any

	DispatchedData any

	// RequestID is set by the request-ID middleware, if installed, and
	// carried through to access/exception log lines.
	RequestID string

	mu   sync.Mutex
	sent bool
}

// New constructs an RC for an inbound request; call Enhance to populate
// it. The response writer is wrapped so downstream middleware (e.g. the
// access-log step) can recover the status code that was ultimately sent.
func New(w http.ResponseWriter, r *http.Request) *RC {
	return &RC{Request: r, Response: &statusRecorder{ResponseWriter: w, status: http.StatusOK}}
}

// statusRecorder wraps http.ResponseWriter to capture the status code
// written, since RC itself only latches whether a response was sent.
type statusRecorder struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wrote {
		s.status = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wrote {
		s.status = http.StatusOK
		s.wrote = true
	}
	return s.ResponseWriter.Write(b)
}

// Status returns the status code that was written, or the default 200
// if nothing has been written yet.
func (s *statusRecorder) Status() int { return s.status }

// Flush implements http.Flusher for handlers that stream.
func (s *statusRecorder) Flush() {
	if f, ok := s.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Sent reports whether a response has already been written.
func (rc *RC) Sent() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.sent
}

// markSent atomically checks-and-sets the send-once latch; returns false
// if a response was already sent, in which case the caller must not write.
func (rc *RC) markSent() bool {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.sent {
		return false
	}
	rc.sent = true
	return true
}

// Enhance fills method flags, headers, ip, protocol, hostname, path and
// payload, per spec.md §4.2 step 3.
func (rc *RC) Enhance(bodyCfg bodyparser.Config) *httperr.Error {
	r := rc.Request

	rc.Method = r.Method
	rc.GET = r.Method == http.MethodGet
	rc.POST = r.Method == http.MethodPost
	rc.PUT = r.Method == http.MethodPut
	rc.DELETE = r.Method == http.MethodDelete
	rc.PATCH = r.Method == http.MethodPatch
	rc.HEAD = r.Method == http.MethodHead
	rc.OPTIONS = r.Method == http.MethodOptions

	rc.Headers = Header{h: r.Header}
	rc.IP = extractIP(r)
	rc.Protocol = extractProtocol(r)
	rc.Hostname = extractHostname(r)

	rc.Path = r.URL.RequestURI()
	rc.Endpoint = r.URL.Path
	rc.FullURL = rc.Protocol + "://" + rc.Hostname + rc.Path

	payload := make(map[string]any)
	for k, v := range r.URL.Query() {
		if len(v) == 1 {
			payload[k] = v[0]
		} else {
			payload[k] = v
		}
	}

	if r.Body != nil && r.ContentLength != 0 && r.Method != http.MethodGet && r.Method != http.MethodHead {
		body, perr := bodyparser.Parse(r, bodyCfg)
		if perr != nil {
			return perr
		}
		for k, v := range body {
			payload[k] = v
		}
	}

	rc.Payload = payload
	return nil
}

// MergeParams layers route parameters on top of the existing payload,
// where route parameters win over body/query per spec.md §3.
func (rc *RC) MergeParams(params map[string]string) {
	rc.Params = params
	if rc.Payload == nil {
		rc.Payload = make(map[string]any)
	}
	for k, v := range params {
		rc.Payload[k] = v
	}
}

// Status writes a status-only response.
func (rc *RC) Status(code int) bool {
	if !rc.markSent() {
		return false
	}
	rc.Response.WriteHeader(code)
	return true
}

// Send writes v as a response body, inferring Content-Type from its kind
// unless already set, per spec.md §4.3.
func (rc *RC) Send(code int, v any) bool {
	if !rc.markSent() {
		return false
	}
	rc.DispatchedData = v
	if rc.Response.Header().Get("Content-Type") == "" {
		rc.Response.Header().Set("Content-Type", contenttype.Infer(v))
	}
	rc.Response.WriteHeader(code)
	switch data := v.(type) {
	case nil:
	case string:
		_, _ = rc.Response.Write([]byte(data))
	case []byte:
		_, _ = rc.Response.Write(data)
	default:
		_ = json.NewEncoder(rc.Response).Encode(data)
	}
	return true
}

// SendError resolves err via httperr.Resolve and writes it as the JSON
// error body, unless a response has already been sent. It also reports the
// resolved error to logging.Exception, which is a no-op unless
// LOG_EXCEPTIONS was enabled when the logger was built.
func (rc *RC) SendError(err any, msg ...string) bool {
	resolved := httperr.Resolve(err, msg...)
	logging.Exception(rc.RequestID, resolved)
	if !rc.markSent() {
		return false
	}
	resolved.WriteJSON(rc.Response)
	return true
}

// extractIP honors X-Forwarded-For (first entry) then falls back to the
// socket's remote address, per spec.md §4.2.
func extractIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// extractProtocol honors X-Forwarded-Proto (first comma-separated value)
// then falls back to whether the connection is TLS, per spec.md §4.2.
func extractProtocol(r *http.Request) string {
	if xfp := r.Header.Get("X-Forwarded-Proto"); xfp != "" {
		first := strings.TrimSpace(strings.SplitN(xfp, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if r.TLS != nil {
		return "https"
	}
	return "http"
}

// extractHostname honors X-Forwarded-Host (first comma-separated value),
// strips a port, and supports bracketed IPv6 literals, per spec.md §4.2.
func extractHostname(r *http.Request) string {
	host := r.Host
	if xfh := r.Header.Get("X-Forwarded-Host"); xfh != "" {
		first := strings.TrimSpace(strings.SplitN(xfh, ",", 2)[0])
		if first != "" {
			host = first
		}
	}
	return stripPort(host)
}

func stripPort(host string) string {
	if strings.HasPrefix(host, "[") {
		if end := strings.Index(host, "]"); end != -1 {
			return host[:end+1]
		}
		return host
	}
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// ParseQueryValue converts a single query string value to its plain form,
// used by components that need to reinterpret Payload entries (e.g. the
// rate limiter's keyGenerator for query-sourced keys).
func ParseQueryValue(raw string) (string, error) {
	return url.QueryUnescape(raw)
}
