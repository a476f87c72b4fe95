package event

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/zeebo/xxh3"
)

// safeProfileRe matches filesystem-safe profile identifiers. The first
// character must not be a separator so file names cannot start with "." or "-".
var safeProfileRe = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// timestampLayouts are tried in order when parsing raw timestamps. Callers
// send whatever their runtime produces, so parsing is deliberately lenient.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// Normalize converts an arbitrary untyped payload into a canonical Event.
// It is a total function: it never fails, it either produces a storable
// event or reports rejection via ok=false (unknown phase). Re-normalizing
// an already-canonical event yields the same fields, eventId included.
func Normalize(raw map[string]any) (*Event, bool) {
	if raw == nil {
		return nil, false
	}

	phase := Phase(strings.ToLower(strings.TrimSpace(rawString(raw, "phase", "type"))))
	if !ValidPhase(phase) {
		return nil, false
	}

	e := &Event{
		SchemaVersion: SchemaVersion,
		Phase:         phase,
		Timestamp:     NormalizeTimestamp(raw["timestamp"], raw["ts"]),
	}

	e.EventID = rawString(raw, "eventId", "id")
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}

	e.Source = normalizeSource(rawString(raw, "source"))
	e.Origin = rawString(raw, "origin")
	if e.Origin == "" {
		e.Origin = "unknown"
	}

	e.RunID = rawString(raw, "runId")
	e.PipelineID = rawString(raw, "pipelineId")
	e.EndpointID = rawString(raw, "endpointId")
	e.Model = rawString(raw, "model")
	e.Method = strings.ToUpper(rawString(raw, "method"))
	e.URL = rawString(raw, "url")
	e.Path = rawString(raw, "path")
	if e.Path == "" && e.URL != "" {
		if u, err := url.Parse(e.URL); err == nil && u.Path != "" {
			e.Path = u.Path
		}
	}

	e.ProfileID = NormalizeProfileID(rawString(raw, "profileId", "profile"), e.URL, e.Model, string(e.Source))

	e.RequestID = rawString(raw, "requestId")
	if e.RequestID == "" {
		e.RequestID = fallbackRequestID(e.ProfileID, e.Timestamp, string(e.Source))
	}

	e.StatusCode = coerceNonNegInt(firstPresent(raw, "statusCode", "status"))
	if d := coerceNonNegInt64(firstPresent(raw, "durationMs", "duration")); d != nil {
		e.DurationMs = d
	}
	e.InputTokens = coerceNonNegInt64(firstPresent(raw, "inputTokens"))
	e.OutputTokens = coerceNonNegInt64(firstPresent(raw, "outputTokens"))
	e.RetryAttempt = coerceNonNegInt64(firstPresent(raw, "retryAttempt", "attempt"))

	e.ErrorType = rawString(raw, "errorType")
	e.ErrorMessage = rawString(raw, "errorMessage", "error")

	e.RequestPayload = BoundPayload(raw["requestPayload"])
	e.ResponsePayload = BoundPayload(raw["responsePayload"])
	e.RequestHeaders = SanitizeHeaders(raw["requestHeaders"])
	e.ResponseHeaders = SanitizeHeaders(raw["responseHeaders"])
	e.Meta = BoundPayload(firstPresent(raw, "meta", "metadata"))

	return e, true
}

// NormalizeLine parses one stored JSONL line and re-normalizes it. Lines that
// fail to parse or no longer validate are reported via ok=false and skipped
// by callers, so a partially corrupted log stays readable.
func NormalizeLine(line []byte) (*Event, bool) {
	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return nil, false
	}
	return Normalize(raw)
}

// NormalizeTimestamp parses the first usable candidate into an absolute UTC
// RFC3339Nano string. Unparseable or absent input yields the current instant.
func NormalizeTimestamp(candidates ...any) string {
	for _, c := range candidates {
		if t, ok := ParseTimestamp(c); ok {
			return t.UTC().Format(time.RFC3339Nano)
		}
	}
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp attempts to interpret v as an absolute instant. It accepts
// the common date/time string layouts plus unix seconds or milliseconds.
func ParseTimestamp(v any) (time.Time, bool) {
	switch tv := v.(type) {
	case nil:
		return time.Time{}, false
	case time.Time:
		return tv, true
	case string:
		s := strings.TrimSpace(tv)
		if s == "" {
			return time.Time{}, false
		}
		for _, layout := range timestampLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, true
			}
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return unixGuess(n), true
		}
		return time.Time{}, false
	case float64:
		if math.IsNaN(tv) || math.IsInf(tv, 0) || tv <= 0 {
			return time.Time{}, false
		}
		return unixGuess(int64(tv)), true
	case int64:
		if tv <= 0 {
			return time.Time{}, false
		}
		return unixGuess(tv), true
	case int:
		return ParseTimestamp(int64(tv))
	case json.Number:
		if n, err := tv.Int64(); err == nil {
			return ParseTimestamp(n)
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}

// unixGuess treats values that are plausibly milliseconds as milliseconds.
func unixGuess(n int64) time.Time {
	if n > 1_000_000_000_000 {
		return time.UnixMilli(n)
	}
	return time.Unix(n, 0)
}

// NormalizeProfileID keeps identifiers that are already filesystem-safe and
// replaces everything else with a deterministic adhoc hash. The fallback seed
// keeps distinct callers from colliding when the raw id is empty.
func NormalizeProfileID(raw, urlStr, model, source string) string {
	raw = strings.TrimSpace(raw)
	if safeProfileRe.MatchString(raw) {
		return raw
	}
	seed := strings.Join([]string{urlStr, model, source}, "|")
	return "adhoc_" + shortHash(raw+"|"+seed)
}

// fallbackRequestID synthesizes a request id for unlabeled events. A random
// component is mixed in so two distinct unlabeled events never merge into one
// request record.
func fallbackRequestID(profileID, timestamp, source string) string {
	return profileID + "_" + shortHash(timestamp+"|"+source+"|"+uuid.NewString())
}

// shortHash returns 12 lowercase hex characters of xxh3 over s.
func shortHash(s string) string {
	h := xxh3.Hash128([]byte(s))
	return fmt.Sprintf("%012x", h.Lo&0xffffffffffff)
}

func normalizeSource(s string) Source {
	src := Source(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := knownSources[src]; ok {
		return src
	}
	return SourceUnknown
}

// rawString returns the first non-empty string value among keys.
func rawString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			if s, ok := v.(string); ok {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func firstPresent(raw map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := raw[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// coerceNonNegInt64 coerces v to a non-negative integer. Negative or
// non-finite values are dropped rather than stored as invalid numbers.
func coerceNonNegInt64(v any) *int64 {
	var n int64
	switch tv := v.(type) {
	case nil:
		return nil
	case int:
		n = int64(tv)
	case int32:
		n = int64(tv)
	case int64:
		n = tv
	case uint:
		n = int64(tv)
	case uint64:
		if tv > math.MaxInt64 {
			return nil
		}
		n = int64(tv)
	case float64:
		if math.IsNaN(tv) || math.IsInf(tv, 0) {
			return nil
		}
		n = int64(tv)
	case float32:
		return coerceNonNegInt64(float64(tv))
	case json.Number:
		f, err := tv.Float64()
		if err != nil {
			return nil
		}
		return coerceNonNegInt64(f)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(tv), 64)
		if err != nil {
			return nil
		}
		return coerceNonNegInt64(f)
	default:
		return nil
	}
	if n < 0 {
		return nil
	}
	return &n
}

func coerceNonNegInt(v any) *int {
	n64 := coerceNonNegInt64(v)
	if n64 == nil || *n64 > math.MaxInt32 {
		return nil
	}
	n := int(*n64)
	return &n
}
