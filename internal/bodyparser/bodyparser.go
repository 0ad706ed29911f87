// Package bodyparser reads and decodes an HTTP request body under a byte
// cap and a wall-clock deadline, per spec.md §4.3. It is the framework's
// external-collaborator-grade component (spec.md §1): the dispatcher only
// needs the content-type dispatch this package exposes.
package bodyparser

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/wudi/runway/internal/httperr"
)

// Config bounds body reads. Zero values fall back to spec.md's defaults.
type Config struct {
	MaxSize int64         // BODY_MAX_SIZE, default 10 MiB
	Timeout time.Duration // BODY_TIMEOUT, default 30s
}

const (
	defaultMaxSize = 10 * 1024 * 1024
	defaultTimeout = 30 * time.Second
)

func (c Config) resolve() Config {
	if c.MaxSize <= 0 {
		c.MaxSize = defaultMaxSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

// Part is one section of a parsed multipart/form-data body.
type Part struct {
	Name     string
	Filename string
	Headers  map[string]string
	Value    []byte
}

// Parse reads r.Body under the configured size/time bounds and decodes it
// according to its Content-Type, returning a payload map (or, for
// multipart bodies, a map with a single "_parts" key holding []Part).
func Parse(r *http.Request, cfg Config) (map[string]any, *httperr.Error) {
	cfg = cfg.resolve()

	ct := r.Header.Get("Content-Type")
	if ct == "" {
		return nil, httperr.InvalidInput.WithDetails("missing Content-Type")
	}
	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		return nil, httperr.InvalidInput.WithDetails("malformed Content-Type")
	}

	switch {
	case mediaType == "application/json":
		body, perr := readBounded(r, cfg)
		if perr != nil {
			return nil, perr
		}
		if len(body) == 0 {
			return map[string]any{}, nil
		}
		var v any
		if err := json.Unmarshal(body, &v); err != nil {
			return nil, httperr.InvalidInput.WithDetails("invalid JSON body")
		}
		switch data := v.(type) {
		case map[string]any:
			return data, nil
		case []any:
			return map[string]any{"_array": data}, nil
		default:
			return nil, httperr.InvalidInput.WithDetails("JSON body must be an object or array")
		}

	case mediaType == "application/x-www-form-urlencoded":
		body, perr := readBounded(r, cfg)
		if perr != nil {
			return nil, perr
		}
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, httperr.InvalidInput.WithDetails("invalid form body")
		}
		out := make(map[string]any, len(values))
		for k, v := range values {
			if len(v) == 1 {
				out[k] = v[0]
			} else {
				out[k] = v
			}
		}
		return out, nil

	case mediaType == "multipart/form-data":
		boundary := params["boundary"]
		if boundary == "" {
			return nil, httperr.InvalidInput.WithDetails("missing multipart boundary")
		}
		body, perr := readBounded(r, cfg)
		if perr != nil {
			return nil, perr
		}
		parts, err := splitMultipart(body, boundary)
		if err != nil {
			return nil, httperr.InvalidInput.WithDetails(err.Error())
		}
		return map[string]any{"_parts": parts}, nil

	default:
		return nil, httperr.UnsupportedMediaType.WithDetails(mediaType)
	}
}

// readBounded reads the body under the byte cap and timeout, distinguishing
// overflow (413), timeout (408) and generic I/O error (400).
func readBounded(r *http.Request, cfg Config) ([]byte, *httperr.Error) {
	ctx, cancel := context.WithTimeout(r.Context(), cfg.Timeout)
	defer cancel()

	limited := io.LimitReader(r.Body, cfg.MaxSize+1)
	type result struct {
		data []byte
		err  error
	}
	done := make(chan result, 1)
	go func() {
		data, err := io.ReadAll(limited)
		done <- result{data, err}
	}()

	select {
	case <-ctx.Done():
		return nil, httperr.RequestTimeout
	case res := <-done:
		if res.err != nil {
			return nil, httperr.InvalidInput.WithDetails(res.err.Error())
		}
		if int64(len(res.data)) > cfg.MaxSize {
			return nil, httperr.PayloadTooLarge
		}
		return res.data, nil
	}
}

// splitMultipart implements spec.md's manual boundary-splitting algorithm
// rather than relying on mime/multipart, so the documented edge cases
// (headers split from value on a bare CRLFCRLF, Content-Disposition
// required) are reproduced exactly.
func splitMultipart(body []byte, boundary string) ([]Part, error) {
	delim := []byte("--" + boundary)
	segments := strings.Split(string(body), string(delim))

	var parts []Part
	for _, seg := range segments {
		seg = strings.Trim(seg, "\r\n")
		if seg == "" || seg == "--" {
			continue
		}
		headerBlock, value, ok := strings.Cut(seg, "\r\n\r\n")
		if !ok {
			continue
		}
		headers := parseHeaderBlock(headerBlock)
		disposition, ok := headers["content-disposition"]
		if !ok {
			return nil, fmt.Errorf("multipart part missing Content-Disposition")
		}
		name, filename := parseDisposition(disposition)
		parts = append(parts, Part{
			Name:     name,
			Filename: filename,
			Headers:  headers,
			Value:    []byte(strings.TrimSuffix(value, "\r\n")),
		})
	}
	return parts, nil
}

func parseHeaderBlock(block string) map[string]string {
	headers := make(map[string]string)
	for _, line := range strings.Split(block, "\r\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		headers[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return headers
}

func parseDisposition(disposition string) (name, filename string) {
	for _, field := range strings.Split(disposition, ";") {
		field = strings.TrimSpace(field)
		k, v, ok := strings.Cut(field, "=")
		if !ok {
			continue
		}
		v = strings.Trim(strings.TrimSpace(v), `"`)
		switch strings.ToLower(strings.TrimSpace(k)) {
		case "name":
			name = v
		case "filename":
			filename = v
		}
	}
	return name, filename
}
