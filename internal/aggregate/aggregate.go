// Package aggregate folds chronologically sorted event streams into one
// record per logical request, applying phase-specific merge rules.
package aggregate

import (
	"sort"
	"time"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

// RequestRecord is the query-time projection of all events that share a
// request id. It is owned by the aggregation call that built it and is
// never persisted.
type RequestRecord struct {
	RequestID  string      `json:"requestId"`
	ProfileID  string      `json:"profileId"`
	StartedAt  time.Time   `json:"startedAt"`
	EndedAt    *time.Time  `json:"endedAt,omitempty"`
	PhaseFinal event.Phase `json:"phaseFinal"` // request_end | request_error | inflight

	Source     event.Source `json:"source"`
	Origin     string       `json:"origin"`
	RunID      string       `json:"runId,omitempty"`
	PipelineID string       `json:"pipelineId,omitempty"`
	EndpointID string       `json:"endpointId,omitempty"`
	Model      string       `json:"model,omitempty"`
	Method     string       `json:"method,omitempty"`
	Path       string       `json:"path,omitempty"`
	URL        string       `json:"url,omitempty"`

	StatusCode   *int   `json:"statusCode,omitempty"`
	DurationMs   *int64 `json:"durationMs,omitempty"`
	InputTokens  int64  `json:"inputTokens"`
	OutputTokens int64  `json:"outputTokens"`
	RetryCount   int64  `json:"retryCount"`

	ErrorType    string `json:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	RequestPayload  any               `json:"requestPayload,omitempty"`
	ResponsePayload any               `json:"responsePayload,omitempty"`
	RequestHeaders  map[string]string `json:"requestHeaders,omitempty"`
	ResponseHeaders map[string]string `json:"responseHeaders,omitempty"`
	Meta            any               `json:"meta,omitempty"`
}

// PhaseInflight marks a request with no terminal event in the window.
const PhaseInflight event.Phase = "inflight"

// Aggregate builds one RequestRecord per distinct request id from an
// ascending-timestamp event list. Records are created on first sight and
// updated by every later event for the same id. The result is sorted
// descending by StartedAt (most recent request first).
func Aggregate(events []event.Event) []*RequestRecord {
	byID := make(map[string]*RequestRecord, len(events))
	order := make([]*RequestRecord, 0, len(events))

	for i := range events {
		ev := &events[i]
		ts := eventTime(ev)

		rec, ok := byID[ev.RequestID]
		if !ok {
			rec = &RequestRecord{
				RequestID:  ev.RequestID,
				ProfileID:  ev.ProfileID,
				StartedAt:  ts,
				PhaseFinal: PhaseInflight,
				Source:     event.SourceUnknown,
				Origin:     "unknown",
			}
			byID[ev.RequestID] = rec
			order = append(order, rec)
		}

		mergeDescriptive(rec, ev)

		switch ev.Phase {
		case event.PhaseRequestStart:
			rec.StartedAt = ts

		case event.PhaseRequestRetry:
			rec.RetryCount++
			if ev.RetryAttempt != nil && *ev.RetryAttempt > rec.RetryCount {
				rec.RetryCount = *ev.RetryAttempt
			}

		case event.PhaseRequestEnd:
			rec.EndedAt = &ts
			rec.PhaseFinal = event.PhaseRequestEnd
			if ev.StatusCode != nil {
				rec.StatusCode = ev.StatusCode
			}
			if ev.DurationMs != nil {
				rec.DurationMs = ev.DurationMs
			}
			// A successful completion erases in-flight error state.
			rec.ErrorType = ""
			rec.ErrorMessage = ""

		case event.PhaseRequestError:
			rec.EndedAt = &ts
			rec.PhaseFinal = event.PhaseRequestError
			if ev.StatusCode != nil {
				rec.StatusCode = ev.StatusCode
			}
			if ev.DurationMs != nil {
				rec.DurationMs = ev.DurationMs
			}
			if ev.ErrorType != "" {
				rec.ErrorType = ev.ErrorType
			}
			if ev.ErrorMessage != "" {
				rec.ErrorMessage = ev.ErrorMessage
			}
		}

		if ev.InputTokens != nil {
			rec.InputTokens += *ev.InputTokens
		}
		if ev.OutputTokens != nil {
			rec.OutputTokens += *ev.OutputTokens
		}
	}

	sort.SliceStable(order, func(i, j int) bool {
		return order[i].StartedAt.After(order[j].StartedAt)
	})
	return order
}

// mergeDescriptive applies last-write-wins to descriptive fields, except that
// absent incoming values never erase a previously known value.
func mergeDescriptive(rec *RequestRecord, ev *event.Event) {
	if ev.Source != event.SourceUnknown {
		rec.Source = ev.Source
	}
	if ev.Origin != "" && ev.Origin != "unknown" {
		rec.Origin = ev.Origin
	}
	if ev.RunID != "" {
		rec.RunID = ev.RunID
	}
	if ev.PipelineID != "" {
		rec.PipelineID = ev.PipelineID
	}
	if ev.EndpointID != "" {
		rec.EndpointID = ev.EndpointID
	}
	if ev.Model != "" {
		rec.Model = ev.Model
	}
	if ev.Method != "" {
		rec.Method = ev.Method
	}
	if ev.Path != "" {
		rec.Path = ev.Path
	}
	if ev.URL != "" {
		rec.URL = ev.URL
	}
	if ev.RequestPayload != nil {
		rec.RequestPayload = ev.RequestPayload
	}
	if ev.ResponsePayload != nil {
		rec.ResponsePayload = ev.ResponsePayload
	}
	if len(ev.RequestHeaders) > 0 {
		rec.RequestHeaders = ev.RequestHeaders
	}
	if len(ev.ResponseHeaders) > 0 {
		rec.ResponseHeaders = ev.ResponseHeaders
	}
	if ev.Meta != nil {
		rec.Meta = ev.Meta
	}
}

// eventTime parses the canonical timestamp. Normalized events always carry a
// well-formed RFC3339Nano string, so the zero time only appears for hand-built
// test events.
func eventTime(ev *event.Event) time.Time {
	t, _ := event.ParseTimestamp(ev.Timestamp)
	return t
}
