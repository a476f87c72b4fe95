package event

import (
	"strings"
	"testing"

	json "github.com/goccy/go-json"
)

func TestSanitize_RedactsSensitiveKeysAtAnyDepth(t *testing.T) {
	in := map[string]any{
		"Authorization": "Bearer abc",
		"nested": map[string]any{
			"api_key":  "k",
			"api-key":  "k",
			"apikey":   "k",
			"password": "hunter2",
			"list": []any{
				map[string]any{"X-Secret-Header": "v", "ok": "keep"},
			},
		},
		"accessToken": "tok",
		"plain":       "keep",
	}
	out := Sanitize(in).(map[string]any)

	if out["Authorization"] != RedactedMarker || out["accessToken"] != RedactedMarker {
		t.Fatalf("top-level credentials not redacted: %v", out)
	}
	if out["plain"] != "keep" {
		t.Fatal("non-sensitive value was altered")
	}
	nested := out["nested"].(map[string]any)
	for _, k := range []string{"api_key", "api-key", "apikey", "password"} {
		if nested[k] != RedactedMarker {
			t.Fatalf("nested key %q not redacted: %v", k, nested[k])
		}
	}
	item := nested["list"].([]any)[0].(map[string]any)
	if item["X-Secret-Header"] != RedactedMarker {
		t.Fatal("deep list entry not redacted")
	}
	if item["ok"] != "keep" {
		t.Fatal("deep non-sensitive value was altered")
	}

	// The input must remain untouched.
	if in["Authorization"] != "Bearer abc" {
		t.Fatal("Sanitize mutated its input")
	}
}

func TestSanitize_CycleMarker(t *testing.T) {
	m := map[string]any{"name": "loop"}
	m["self"] = m

	out := Sanitize(m).(map[string]any)
	if out["self"] != CycleMarker {
		t.Fatalf("cycle not marked, got %v", out["self"])
	}
	if _, err := json.Marshal(out); err != nil {
		t.Fatalf("sanitized cyclic value must serialize: %v", err)
	}
}

func TestSanitize_SharedSubtreeIsNotACycle(t *testing.T) {
	shared := map[string]any{"v": 1}
	m := map[string]any{"a": shared, "b": shared}
	out := Sanitize(m).(map[string]any)
	if out["a"].(map[string]any)["v"] != int64(1) || out["b"].(map[string]any)["v"] != int64(1) {
		t.Fatalf("diamond-shaped references should sanitize normally: %v", out)
	}
}

func TestBoundPayload_CapsSerializedSize(t *testing.T) {
	big := strings.Repeat("x", maxSerializedLen+500)
	out := BoundPayload(map[string]any{"blob": big})

	env, ok := out.(map[string]any)
	if !ok || env["truncated"] != true {
		t.Fatalf("oversized payload should become a truncation envelope, got %T", out)
	}
	if env["rawLength"].(int) <= maxSerializedLen {
		t.Fatalf("rawLength = %v", env["rawLength"])
	}
	if len(env["preview"].(string)) != maxSerializedLen {
		t.Fatalf("preview length = %d", len(env["preview"].(string)))
	}
}

func TestBoundPayload_SmallValuePassesThrough(t *testing.T) {
	out := BoundPayload(map[string]any{"k": "v"})
	m, ok := out.(map[string]any)
	if !ok || m["k"] != "v" {
		t.Fatalf("small payload should pass through sanitized, got %v", out)
	}
}

func TestSanitizeHeaders(t *testing.T) {
	h := SanitizeHeaders(map[string]any{
		"Content-Type":  "application/json",
		"Authorization": "Bearer abc",
		"X-Api-Key":     "k",
		"X-Count":       float64(3),
	})
	if h["Content-Type"] != "application/json" {
		t.Fatalf("content-type = %q", h["Content-Type"])
	}
	if h["Authorization"] != RedactedMarker || h["X-Api-Key"] != RedactedMarker {
		t.Fatalf("credential headers not redacted: %v", h)
	}
	if h["X-Count"] != "3" {
		t.Fatalf("non-string header value = %q", h["X-Count"])
	}

	if got := SanitizeHeaders(nil); got != nil {
		t.Fatalf("nil headers should stay nil, got %v", got)
	}
}
