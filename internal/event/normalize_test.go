package event

import (
	"strings"
	"testing"
	"time"

	json "github.com/goccy/go-json"
)

func TestNormalize_RejectsUnknownPhase(t *testing.T) {
	for _, phase := range []any{"request_begin", "", nil, 42} {
		raw := map[string]any{"phase": phase, "profileId": "p1"}
		if _, ok := Normalize(raw); ok {
			t.Fatalf("phase %v should be rejected", phase)
		}
	}
}

func TestNormalize_AcceptsAllKnownPhases(t *testing.T) {
	for _, phase := range []string{"request_start", "request_end", "request_error", "REQUEST_RETRY"} {
		e, ok := Normalize(map[string]any{"phase": phase, "profileId": "p1"})
		if !ok {
			t.Fatalf("phase %q should be accepted", phase)
		}
		if !ValidPhase(e.Phase) {
			t.Fatalf("normalized phase %q not in closed set", e.Phase)
		}
	}
}

func TestNormalize_TimestampFallsBackToNow(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	e, _ := Normalize(map[string]any{"phase": "request_start", "timestamp": "not a date"})
	ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
	if err != nil {
		t.Fatalf("timestamp %q not RFC3339Nano: %v", e.Timestamp, err)
	}
	if ts.Before(before) || ts.After(time.Now().UTC().Add(time.Second)) {
		t.Fatalf("fallback timestamp %v not near now", ts)
	}
}

func TestNormalize_TimestampLayouts(t *testing.T) {
	cases := map[string]any{
		"rfc3339":  "2026-03-01T12:00:00Z",
		"millis":   "2026-03-01T12:00:00.500Z",
		"unix_sec": int64(1772366400),
		"unix_ms":  float64(1772366400000),
	}
	for name, v := range cases {
		e, _ := Normalize(map[string]any{"phase": "request_start", "timestamp": v})
		if _, err := time.Parse(time.RFC3339Nano, e.Timestamp); err != nil {
			t.Fatalf("%s: timestamp %q not canonical: %v", name, e.Timestamp, err)
		}
	}
}

func TestNormalizeProfileID_KeepsSafeIDs(t *testing.T) {
	for _, id := range []string{"profile1", "a.b-c_d", "X9"} {
		if got := NormalizeProfileID(id, "", "", ""); got != id {
			t.Fatalf("safe id %q rewritten to %q", id, got)
		}
	}
}

func TestNormalizeProfileID_AdhocIsDeterministic(t *testing.T) {
	a := NormalizeProfileID("../etc/passwd", "https://api.example.com", "m1", "translation")
	b := NormalizeProfileID("../etc/passwd", "https://api.example.com", "m1", "translation")
	if a != b {
		t.Fatalf("adhoc id not deterministic: %q vs %q", a, b)
	}
	if !strings.HasPrefix(a, "adhoc_") || len(a) != len("adhoc_")+12 {
		t.Fatalf("unexpected adhoc id shape: %q", a)
	}
	c := NormalizeProfileID("../etc/passwd", "https://other.example.com", "m1", "translation")
	if a == c {
		t.Fatal("different fallback seeds should produce different adhoc ids")
	}
}

func TestNormalizeProfileID_RejectsLeadingSeparator(t *testing.T) {
	for _, id := range []string{".hidden", "-dash", "_under"} {
		got := NormalizeProfileID(id, "", "", "")
		if !strings.HasPrefix(got, "adhoc_") {
			t.Fatalf("id %q should be replaced, got %q", id, got)
		}
	}
}

func TestNormalize_RequestIDFallbackIsUnique(t *testing.T) {
	raw := map[string]any{"phase": "request_start", "profileId": "p1", "timestamp": "2026-03-01T12:00:00Z"}
	e1, _ := Normalize(raw)
	e2, _ := Normalize(raw)
	if e1.RequestID == "" || e2.RequestID == "" {
		t.Fatal("fallback request id missing")
	}
	if e1.RequestID == e2.RequestID {
		t.Fatal("fallback request ids should not collide across events")
	}
	if !strings.HasPrefix(e1.RequestID, "p1_") {
		t.Fatalf("fallback request id %q should carry the profile id", e1.RequestID)
	}
}

func TestNormalize_SourceCollapsesToUnknown(t *testing.T) {
	e, _ := Normalize(map[string]any{"phase": "request_start", "source": "Telemetry"})
	if e.Source != SourceUnknown {
		t.Fatalf("unexpected source %q", e.Source)
	}
	e, _ = Normalize(map[string]any{"phase": "request_start", "source": "TRANSLATION"})
	if e.Source != SourceTranslation {
		t.Fatalf("known source should be kept, got %q", e.Source)
	}
}

func TestNormalize_URLPathSplit(t *testing.T) {
	e, _ := Normalize(map[string]any{
		"phase": "request_start",
		"url":   "https://api.example.com/v1/translate?x=1",
	})
	if e.Path != "/v1/translate" {
		t.Fatalf("derived path = %q", e.Path)
	}

	e, _ = Normalize(map[string]any{
		"phase": "request_start",
		"url":   "http://bad url/%zz",
	})
	if e.URL != "http://bad url/%zz" || e.Path != "" {
		t.Fatalf("unparseable url should be kept raw, got url=%q path=%q", e.URL, e.Path)
	}

	e, _ = Normalize(map[string]any{
		"phase": "request_start",
		"url":   "https://api.example.com/v1/translate",
		"path":  "/explicit",
	})
	if e.Path != "/explicit" {
		t.Fatalf("explicit path should win, got %q", e.Path)
	}
}

func TestNormalize_NumericCoercion(t *testing.T) {
	e, _ := Normalize(map[string]any{
		"phase":        "request_end",
		"statusCode":   float64(200),
		"durationMs":   "350",
		"inputTokens":  -5,
		"outputTokens": float64(12.9),
	})
	if e.StatusCode == nil || *e.StatusCode != 200 {
		t.Fatalf("statusCode = %v", e.StatusCode)
	}
	if e.DurationMs == nil || *e.DurationMs != 350 {
		t.Fatalf("durationMs = %v", e.DurationMs)
	}
	if e.InputTokens != nil {
		t.Fatalf("negative inputTokens should be dropped, got %d", *e.InputTokens)
	}
	if e.OutputTokens == nil || *e.OutputTokens != 12 {
		t.Fatalf("outputTokens = %v", e.OutputTokens)
	}
}

func TestNormalize_MethodUpperAndOriginDefault(t *testing.T) {
	e, _ := Normalize(map[string]any{"phase": "request_start", "method": "post"})
	if e.Method != "POST" {
		t.Fatalf("method = %q", e.Method)
	}
	if e.Origin != "unknown" {
		t.Fatalf("origin default = %q", e.Origin)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	raw := map[string]any{
		"phase":       "request_end",
		"profileId":   "p1",
		"requestId":   "r1",
		"timestamp":   "2026-03-01T12:00:00.123456789Z",
		"source":      "translation",
		"origin":      "pipeline",
		"model":       "m1",
		"method":      "post",
		"url":         "https://api.example.com/v1/translate",
		"statusCode":  200,
		"durationMs":  300,
		"inputTokens": 10,
		"meta":        map[string]any{"lang": "ja"},
	}
	first, ok := Normalize(raw)
	if !ok {
		t.Fatal("first normalization rejected")
	}

	line, err := json.Marshal(first)
	if err != nil {
		t.Fatal(err)
	}
	second, ok := NormalizeLine(line)
	if !ok {
		t.Fatal("re-normalization rejected")
	}

	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if string(a) != string(b) {
		t.Fatalf("normalization not idempotent:\n%s\n%s", a, b)
	}
}

func TestNormalizeLine_RejectsGarbage(t *testing.T) {
	if _, ok := NormalizeLine([]byte("{not json")); ok {
		t.Fatal("garbage line should be rejected")
	}
	if _, ok := NormalizeLine([]byte(`{"phase":"bogus"}`)); ok {
		t.Fatal("line with unknown phase should be rejected")
	}
}
