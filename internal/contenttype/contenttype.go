// Package contenttype infers a response Content-Type from a Go value's
// kind, per spec.md §4.3's content-type inference table.
package contenttype

import (
	"reflect"
	"strings"
)

// Infer returns the content type the dispatcher should use when a
// handler hands back a raw value instead of sending a response itself.
func Infer(v any) string {
	if v == nil {
		return "text/plain"
	}
	if s, ok := v.(string); ok {
		trimmed := strings.ToLower(strings.TrimSpace(s))
		if strings.HasPrefix(trimmed, "<!doctype") || strings.HasPrefix(trimmed, "<html") {
			return "text/html"
		}
		return "text/plain"
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Ptr:
		return "application/json"
	default:
		return "text/plain"
	}
}
