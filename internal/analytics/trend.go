package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/aggregate"
)

// Interval is the fixed bucket width for trend queries.
type Interval string

const (
	IntervalMinute Interval = "minute"
	IntervalHour   Interval = "hour"
	IntervalDay    Interval = "day"
)

// NormalizeInterval defaults unknown values to hour buckets; odd filter input
// is clamped, never rejected.
func NormalizeInterval(s string) Interval {
	switch Interval(s) {
	case IntervalMinute, IntervalHour, IntervalDay:
		return Interval(s)
	default:
		return IntervalHour
	}
}

// Metric selects the per-bucket value reported by a trend query.
type Metric string

const (
	MetricRequests     Metric = "requests"
	MetricAvgLatency   Metric = "avg_latency"
	MetricInputTokens  Metric = "input_tokens"
	MetricOutputTokens Metric = "output_tokens"
	MetricErrorRate    Metric = "error_rate"
	MetricSuccessRate  Metric = "success_rate"
)

// NormalizeMetric defaults unknown values to the request count.
func NormalizeMetric(s string) Metric {
	switch Metric(s) {
	case MetricRequests, MetricAvgLatency, MetricInputTokens,
		MetricOutputTokens, MetricErrorRate, MetricSuccessRate:
		return Metric(s)
	default:
		return MetricRequests
	}
}

// TrendBucket is one fixed-width window of the trend series.
type TrendBucket struct {
	BucketStart  string  `json:"bucketStart"` // UTC-aligned, RFC3339
	Requests     int64   `json:"requests"`
	Errors       int64   `json:"errors"`
	InputTokens  int64   `json:"inputTokens"`
	OutputTokens int64   `json:"outputTokens"`
	Value        float64 `json:"value"`
}

type trendAccum struct {
	requests     int64
	errors       int64
	successes    int64
	inputTokens  int64
	outputTokens int64
	latencySumMs int64
	latencyN     int64
}

// ComputeTrend buckets request records by their start time into UTC-aligned
// windows and reports the requested metric per bucket, ascending by time.
// Counts and tokens are whole numbers; rates and latencies carry 2 decimals.
func ComputeTrend(records []*aggregate.RequestRecord, interval Interval, metric Metric) []TrendBucket {
	accums := map[time.Time]*trendAccum{}

	for _, r := range records {
		key := truncateUTC(r.StartedAt, interval)
		acc, ok := accums[key]
		if !ok {
			acc = &trendAccum{}
			accums[key] = acc
		}
		acc.requests++
		if isFailed(r) {
			acc.errors++
		}
		if isSuccess(r) {
			acc.successes++
		}
		acc.inputTokens += r.InputTokens
		acc.outputTokens += r.OutputTokens
		if r.DurationMs != nil && *r.DurationMs > 0 {
			acc.latencySumMs += *r.DurationMs
			acc.latencyN++
		}
	}

	keys := make([]time.Time, 0, len(accums))
	for k := range accums {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	out := make([]TrendBucket, 0, len(keys))
	for _, k := range keys {
		acc := accums[k]
		b := TrendBucket{
			BucketStart:  k.Format(time.RFC3339),
			Requests:     acc.requests,
			Errors:       acc.errors,
			InputTokens:  acc.inputTokens,
			OutputTokens: acc.outputTokens,
		}
		switch metric {
		case MetricRequests:
			b.Value = float64(acc.requests)
		case MetricAvgLatency:
			if acc.latencyN > 0 {
				b.Value = round2(float64(acc.latencySumMs) / float64(acc.latencyN))
			}
		case MetricInputTokens:
			b.Value = math.Round(float64(acc.inputTokens))
		case MetricOutputTokens:
			b.Value = math.Round(float64(acc.outputTokens))
		case MetricErrorRate:
			b.Value = round2(float64(acc.errors) / float64(acc.requests) * 100)
		case MetricSuccessRate:
			b.Value = round2(float64(acc.successes) / float64(acc.requests) * 100)
		}
		out = append(out, b)
	}
	return out
}

// truncateUTC aligns t to the containing UTC bucket boundary.
func truncateUTC(t time.Time, interval Interval) time.Time {
	u := t.UTC()
	switch interval {
	case IntervalMinute:
		return u.Truncate(time.Minute)
	case IntervalDay:
		return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	default:
		return u.Truncate(time.Hour)
	}
}
