// Package analytics computes overview statistics, time-bucketed trends,
// categorical breakdowns and paginated listings over aggregated request
// records. All functions are pure; persistence lives in internal/store.
package analytics

import (
	"math"
	"time"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/aggregate"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

// TimeRange is an optional inclusive [From, To] filter applied to the event
// stream before aggregation. Nil bounds are open.
type TimeRange struct {
	From *time.Time
	To   *time.Time
}

// Contains reports whether t falls inside the range (inclusive bounds).
func (r TimeRange) Contains(t time.Time) bool {
	if r.From != nil && t.Before(*r.From) {
		return false
	}
	if r.To != nil && t.After(*r.To) {
		return false
	}
	return true
}

// FilterEvents returns the events whose timestamps fall inside the range.
// Events with unparseable timestamps are excluded when any bound is set.
func FilterEvents(events []event.Event, r TimeRange) []event.Event {
	if r.From == nil && r.To == nil {
		return events
	}
	out := make([]event.Event, 0, len(events))
	for i := range events {
		t, ok := event.ParseTimestamp(events[i].Timestamp)
		if !ok {
			continue
		}
		if r.Contains(t) {
			out = append(out, events[i])
		}
	}
	return out
}

// percentile returns the nearest-rank (ceil-based) percentile of an
// ascending-sorted list. An empty list yields 0.
func percentile(sorted []int64, pct float64) int64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	rank := int(math.Ceil(pct / 100 * float64(n)))
	if rank < 1 {
		rank = 1
	}
	if rank > n {
		rank = n
	}
	return sorted[rank-1]
}

// round2 rounds to two decimal places; used for rates and mean latencies.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// statusClass maps a status code pointer to its histogram class.
func statusClass(code *int) string {
	switch {
	case code == nil:
		return "unknown"
	case *code >= 200 && *code < 300:
		return "2xx"
	case *code >= 400 && *code < 500:
		return "4xx"
	case *code >= 500 && *code < 600:
		return "5xx"
	default:
		return "other"
	}
}

// isSuccess reports a terminal-end request with a status in [200,400).
// A terminal end without a status code is complete but unclassified.
func isSuccess(r *aggregate.RequestRecord) bool {
	return r.PhaseFinal == event.PhaseRequestEnd &&
		r.StatusCode != nil && *r.StatusCode >= 200 && *r.StatusCode < 400
}

// isFailed reports a terminal-error request or any status >= 400.
func isFailed(r *aggregate.RequestRecord) bool {
	if r.PhaseFinal == event.PhaseRequestError {
		return true
	}
	return r.StatusCode != nil && *r.StatusCode >= 400
}
