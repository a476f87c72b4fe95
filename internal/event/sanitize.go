package event

import (
	"fmt"
	"reflect"
	"regexp"

	json "github.com/goccy/go-json"
)

const (
	// RedactedMarker replaces any value whose key looks credential-bearing.
	RedactedMarker = "[REDACTED]"
	// CycleMarker replaces values already visited on the current path.
	CycleMarker = "[CYCLE]"

	// maxSerializedLen caps the serialized size of payload/meta values.
	maxSerializedLen = 100_000
)

// sensitiveKeyRe matches object keys that must never reach disk verbatim.
var sensitiveKeyRe = regexp.MustCompile(`(?i)(authorization|api[-_]?key|secret|password|token)`)

// SensitiveKey reports whether an object key matches the redaction pattern.
func SensitiveKey(key string) bool {
	return sensitiveKeyRe.MatchString(key)
}

// Sanitize walks an arbitrary value and returns a copy safe for persistence:
// values under credential-looking keys become RedactedMarker, circular
// references become CycleMarker, and non-representable kinds are stringified.
// The input is never mutated.
func Sanitize(v any) any {
	return sanitizeValue(reflect.ValueOf(v), map[uintptr]struct{}{})
}

func sanitizeValue(v reflect.Value, seen map[uintptr]struct{}) any {
	if !v.IsValid() {
		return nil
	}

	switch v.Kind() {
	case reflect.Interface, reflect.Pointer:
		if v.IsNil() {
			return nil
		}
		if v.Kind() == reflect.Pointer {
			ptr := v.Pointer()
			if _, ok := seen[ptr]; ok {
				return CycleMarker
			}
			seen[ptr] = struct{}{}
			defer delete(seen, ptr)
		}
		return sanitizeValue(v.Elem(), seen)

	case reflect.Map:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if _, ok := seen[ptr]; ok {
			return CycleMarker
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)

		out := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			key := fmt.Sprintf("%v", iter.Key().Interface())
			if SensitiveKey(key) {
				out[key] = RedactedMarker
				continue
			}
			out[key] = sanitizeValue(iter.Value(), seen)
		}
		return out

	case reflect.Slice:
		if v.IsNil() {
			return nil
		}
		ptr := v.Pointer()
		if _, ok := seen[ptr]; ok {
			return CycleMarker
		}
		seen[ptr] = struct{}{}
		defer delete(seen, ptr)
		return sanitizeList(v, seen)

	case reflect.Array:
		return sanitizeList(v, seen)

	case reflect.Struct:
		// Structs rarely appear at the ingestion boundary; round-trip through
		// JSON so field tags and unexported fields behave as callers expect.
		b, err := json.Marshal(v.Interface())
		if err != nil {
			return fmt.Sprintf("%v", v.Interface())
		}
		var m any
		if err := json.Unmarshal(b, &m); err != nil {
			return fmt.Sprintf("%v", v.Interface())
		}
		return Sanitize(m)

	case reflect.String:
		return v.String()
	case reflect.Bool:
		return v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return v.Uint()
	case reflect.Float32, reflect.Float64:
		return v.Float()

	default:
		// Channels, funcs and friends have no JSON representation.
		return fmt.Sprintf("%v", v.Interface())
	}
}

func sanitizeList(v reflect.Value, seen map[uintptr]struct{}) any {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		out[i] = sanitizeValue(v.Index(i), seen)
	}
	return out
}

// BoundPayload sanitizes v and enforces the serialized size cap. Oversized
// values are replaced with a truncation envelope carrying the capped prefix.
func BoundPayload(v any) any {
	if v == nil {
		return nil
	}
	clean := Sanitize(v)
	if clean == nil {
		return nil
	}
	b, err := json.Marshal(clean)
	if err != nil {
		return fmt.Sprintf("%v", clean)
	}
	if len(b) <= maxSerializedLen {
		return clean
	}
	return map[string]any{
		"truncated": true,
		"rawLength": len(b),
		"preview":   string(b[:maxSerializedLen]),
	}
}

// SanitizeHeaders converts an arbitrary header mapping into a flat
// string-to-string map, redacting per entry based on the header name.
func SanitizeHeaders(v any) map[string]string {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Map || rv.Len() == 0 {
		return nil
	}
	out := make(map[string]string, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key := fmt.Sprintf("%v", iter.Key().Interface())
		if SensitiveKey(key) {
			out[key] = RedactedMarker
			continue
		}
		val := iter.Value()
		for val.Kind() == reflect.Interface || val.Kind() == reflect.Pointer {
			if val.IsNil() {
				val = reflect.Value{}
				break
			}
			val = val.Elem()
		}
		if !val.IsValid() {
			out[key] = ""
			continue
		}
		if val.Kind() == reflect.String {
			out[key] = val.String()
		} else {
			out[key] = fmt.Sprintf("%v", val.Interface())
		}
	}
	return out
}
