// Package event defines the canonical API statistics event record and the
// normalization pipeline that turns raw untyped payloads into storable events.
package event

// SchemaVersion is the current on-disk event schema version.
const SchemaVersion = 1

// Phase marks where in a request's lifecycle an event was recorded.
type Phase string

const (
	PhaseRequestStart Phase = "request_start"
	PhaseRequestEnd   Phase = "request_end"
	PhaseRequestError Phase = "request_error"
	PhaseRequestRetry Phase = "request_retry"
)

// knownPhases is the closed set of storable phases. An event whose phase
// normalizes to anything else is dropped before persistence.
var knownPhases = map[Phase]struct{}{
	PhaseRequestStart: {},
	PhaseRequestEnd:   {},
	PhaseRequestError: {},
	PhaseRequestRetry: {},
}

// ValidPhase reports whether p is one of the four storable phases.
func ValidPhase(p Phase) bool {
	_, ok := knownPhases[p]
	return ok
}

// Source is the closed enumeration of backend subsystems that emit events.
// Unknown values collapse to SourceUnknown during normalization.
type Source string

const (
	SourceTranslation Source = "translation"
	SourceGlossary    Source = "glossary"
	SourceTTS         Source = "tts"
	SourceOCR         Source = "ocr"
	SourceEmbedding   Source = "embedding"
	SourceUnknown     Source = "unknown"
)

var knownSources = map[Source]struct{}{
	SourceTranslation: {},
	SourceGlossary:    {},
	SourceTTS:         {},
	SourceOCR:         {},
	SourceEmbedding:   {},
}

// Event is one canonical, redacted, bounded-size record of an API occurrence.
// Events are immutable once normalized; one JSONL line per event on disk.
type Event struct {
	SchemaVersion int    `json:"schemaVersion"`
	EventID       string `json:"eventId"`
	ProfileID     string `json:"profileId"`
	RequestID     string `json:"requestId"`
	Phase         Phase  `json:"phase"`
	Timestamp     string `json:"timestamp"` // RFC3339Nano, UTC
	Source        Source `json:"source"`
	Origin        string `json:"origin"`

	RunID      string `json:"runId,omitempty"`
	PipelineID string `json:"pipelineId,omitempty"`
	EndpointID string `json:"endpointId,omitempty"`
	Model      string `json:"model,omitempty"`
	Method     string `json:"method,omitempty"`
	Path       string `json:"path,omitempty"`
	URL        string `json:"url,omitempty"`

	StatusCode   *int   `json:"statusCode,omitempty"`
	DurationMs   *int64 `json:"durationMs,omitempty"`
	InputTokens  *int64 `json:"inputTokens,omitempty"`
	OutputTokens *int64 `json:"outputTokens,omitempty"`
	RetryAttempt *int64 `json:"retryAttempt,omitempty"`

	ErrorType    string `json:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	RequestPayload  any               `json:"requestPayload,omitempty"`
	ResponsePayload any               `json:"responsePayload,omitempty"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	Meta            any               `json:"meta,omitempty"`
}
