package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/analytics"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/store"
)

// HandleHealthz handles GET /healthz. No authentication is required.
func HandleHealthz() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// HandleIngest handles POST /v1/events. Ingestion is fire-and-forget:
// a syntactically valid JSON object is always accepted with 202, even
// when normalization drops it. Only an unreadable body or an I/O
// failure surfaces as an error.
func HandleIngest(s *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		if err := decodeBody(r, &payload); err != nil {
			writeDecodeBodyError(w, err)
			return
		}

		ev, err := s.Ingest(payload)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}

		data := map[string]any{"accepted": ev != nil}
		if ev != nil {
			data["eventId"] = ev.EventID
			data["profileId"] = ev.ProfileID
		}
		WriteData(w, http.StatusAccepted, data)
	})
}

// HandleOverview handles GET /v1/profiles/{id}/overview.
// Query params: from, to.
func HandleOverview(s *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ov, err := s.Overview(r.PathValue("id"), parseTimeRange(r))
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteData(w, http.StatusOK, ov)
	})
}

// HandleTrend handles GET /v1/profiles/{id}/trend.
// Query params: from, to, interval (minute|hour|day), metric.
// Unknown interval and metric values fall back to their defaults.
func HandleTrend(s *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		buckets, err := s.Trend(
			r.PathValue("id"),
			parseTimeRange(r),
			analytics.NormalizeInterval(q.Get("interval")),
			analytics.NormalizeMetric(q.Get("metric")),
		)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteData(w, http.StatusOK, buckets)
	})
}

// HandleBreakdown handles GET /v1/profiles/{id}/breakdown.
// Query params: from, to, dimension. Unknown dimensions fall back to
// the status class axis.
func HandleBreakdown(s *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		items, err := s.Breakdown(
			r.PathValue("id"),
			parseTimeRange(r),
			analytics.NormalizeDimension(r.URL.Query().Get("dimension")),
		)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteData(w, http.StatusOK, items)
	})
}

// HandleRecords handles GET /v1/profiles/{id}/records.
// Query params: from, to, status, source, phase, search, page, pageSize.
// Odd filter input is clamped or ignored, never rejected.
func HandleRecords(s *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		f := analytics.RecordFilter{
			Source:   q.Get("source"),
			Phase:    q.Get("phase"),
			Search:   q.Get("search"),
			Page:     intQuery(q.Get("page")),
			PageSize: intQuery(q.Get("pageSize")),
		}
		if v := q.Get("status"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				f.StatusCode = &n
			}
		}

		page, err := s.Records(r.PathValue("id"), parseTimeRange(r), f)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteData(w, http.StatusOK, page)
	})
}

// HandleRetain handles DELETE /v1/profiles/{id}/events.
// With ?before=<ts>, events strictly older than the timestamp are trimmed
// away; without it the whole log is deleted.
func HandleRetain(s *store.Store) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cutoff *time.Time
		if v := r.URL.Query().Get("before"); v != "" {
			t, ok := event.ParseTimestamp(v)
			if !ok {
				WriteError(w, http.StatusBadRequest, "before: unrecognized timestamp")
				return
			}
			cutoff = &t
		}

		if err := s.Retain(r.PathValue("id"), cutoff); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteData(w, http.StatusOK, map[string]bool{"trimmed": true})
	})
}

// --- helpers ---

// parseTimeRange reads the optional from/to query bounds. A bound that
// fails to parse is treated as absent.
func parseTimeRange(r *http.Request) analytics.TimeRange {
	var tr analytics.TimeRange
	q := r.URL.Query()
	if t, ok := event.ParseTimestamp(q.Get("from")); ok {
		tr.From = &t
	}
	if t, ok := event.ParseTimestamp(q.Get("to")); ok {
		tr.To = &t
	}
	return tr
}

// intQuery parses a non-negative integer query value, yielding 0 (the
// "unset" sentinel) for anything unparseable.
func intQuery(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

type requestBodyTooLargeError struct {
	Limit int64
}

func (e *requestBodyTooLargeError) Error() string {
	return fmt.Sprintf("request body too large (max %d bytes)", e.Limit)
}

// decodeBody decodes the JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("request body is required")
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &requestBodyTooLargeError{Limit: maxErr.Limit}
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeDecodeBodyError(w http.ResponseWriter, err error) {
	var tooLarge *requestBodyTooLargeError
	if errors.As(err, &tooLarge) {
		WriteError(w, http.StatusRequestEntityTooLarge, err.Error())
		return
	}
	WriteError(w, http.StatusBadRequest, err.Error())
}
