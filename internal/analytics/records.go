package analytics

import (
	"strings"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/aggregate"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// RecordFilter narrows a records listing. Zero values mean "no filter".
type RecordFilter struct {
	StatusCode *int
	Source     string
	Phase      string // terminal classification: request_end, request_error, inflight
	Search     string // case-insensitive substring over the fixed text-field set

	Page     int // 1-based; values < 1 are clamped to 1
	PageSize int // clamped to [1, 500], default 50
}

// RecordsPage is one page of filtered request records plus the total
// filtered count.
type RecordsPage struct {
	Records  []*aggregate.RequestRecord `json:"records"`
	Total    int                        `json:"total"`
	Page     int                        `json:"page"`
	PageSize int                        `json:"pageSize"`
}

// ComputeRecords applies equality and substring filters, then returns one
// page of the result. Odd pagination input is clamped, never rejected.
func ComputeRecords(records []*aggregate.RequestRecord, f RecordFilter) *RecordsPage {
	filtered := make([]*aggregate.RequestRecord, 0, len(records))
	search := strings.ToLower(strings.TrimSpace(f.Search))
	for _, r := range records {
		if !matchRecord(r, f, search) {
			continue
		}
		filtered = append(filtered, r)
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	size := f.PageSize
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	start := (page - 1) * size
	end := start + size
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	return &RecordsPage{
		Records:  filtered[start:end],
		Total:    len(filtered),
		Page:     page,
		PageSize: size,
	}
}

func matchRecord(r *aggregate.RequestRecord, f RecordFilter, search string) bool {
	if f.StatusCode != nil && (r.StatusCode == nil || *r.StatusCode != *f.StatusCode) {
		return false
	}
	if f.Source != "" && r.Source != event.Source(strings.ToLower(f.Source)) {
		return false
	}
	if f.Phase != "" && r.PhaseFinal != event.Phase(strings.ToLower(f.Phase)) {
		return false
	}
	if search == "" {
		return true
	}
	for _, field := range []string{
		r.RequestID, r.RunID, r.PipelineID, r.EndpointID,
		r.Model, r.Method, r.Path, r.URL,
		r.ErrorType, r.ErrorMessage,
	} {
		if field != "" && strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}
	return false
}
