package analytics

import (
	"sort"
	"strconv"
	"time"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/aggregate"
)

// Dimension selects the categorical axis of a breakdown query.
type Dimension string

const (
	DimensionStatusCode  Dimension = "status_code"
	DimensionStatusClass Dimension = "status_class"
	DimensionSource      Dimension = "source"
	DimensionErrorType   Dimension = "error_type"
	DimensionModel       Dimension = "model"
	DimensionHour        Dimension = "hour"
)

// NormalizeDimension defaults unknown values to the status class axis.
func NormalizeDimension(s string) Dimension {
	switch Dimension(s) {
	case DimensionStatusCode, DimensionStatusClass, DimensionSource,
		DimensionErrorType, DimensionModel, DimensionHour:
		return Dimension(s)
	default:
		return DimensionStatusClass
	}
}

// BreakdownItem is one group of the categorical breakdown.
type BreakdownItem struct {
	Key     string  `json:"key"`
	Count   int64   `json:"count"`
	Percent float64 `json:"percent"`
}

// ComputeBreakdown groups request records by one categorical dimension and
// reports count plus percentage share, sorted descending by count.
func ComputeBreakdown(records []*aggregate.RequestRecord, dim Dimension) []BreakdownItem {
	counts := map[string]int64{}
	for _, r := range records {
		counts[breakdownKey(r, dim)]++
	}

	total := int64(len(records))
	out := make([]BreakdownItem, 0, len(counts))
	for k, n := range counts {
		item := BreakdownItem{Key: k, Count: n}
		if total > 0 {
			item.Percent = round2(float64(n) / float64(total) * 100)
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func breakdownKey(r *aggregate.RequestRecord, dim Dimension) string {
	switch dim {
	case DimensionStatusCode:
		if r.StatusCode == nil {
			return "unknown"
		}
		return strconv.Itoa(*r.StatusCode)
	case DimensionSource:
		return string(r.Source)
	case DimensionErrorType:
		if !isFailed(r) {
			return "none"
		}
		if r.ErrorType == "" {
			return "unknown"
		}
		return r.ErrorType
	case DimensionModel:
		if r.Model == "" {
			return "unknown"
		}
		return r.Model
	case DimensionHour:
		return strconv.Itoa(r.StartedAt.In(time.Local).Hour())
	default:
		return statusClass(r.StatusCode)
	}
}
