package analytics

import (
	"sort"
	"strconv"
	"time"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/aggregate"
)

// LatencyStats summarizes positive request durations in milliseconds.
type LatencyStats struct {
	AvgMs float64 `json:"avgMs"`
	P50Ms int64   `json:"p50Ms"`
	P95Ms int64   `json:"p95Ms"`
	MinMs int64   `json:"minMs"`
	MaxMs int64   `json:"maxMs"`
	SumMs int64   `json:"sumMs"`
}

// Throughput describes request rate over the observed span.
type Throughput struct {
	AvgRequestsPerMinute float64 `json:"avgRequestsPerMinute"`
	PeakMinuteRequests   int64   `json:"peakMinuteRequests"`
	PeakMinuteStart      string  `json:"peakMinuteStart,omitempty"`
}

// Overview is the full multi-dimensional summary of one query window.
type Overview struct {
	TotalEvents      int64 `json:"totalEvents"`
	TotalRequests    int64 `json:"totalRequests"`
	SuccessRequests  int64 `json:"successRequests"`
	FailedRequests   int64 `json:"failedRequests"`
	InflightRequests int64 `json:"inflightRequests"`

	TotalRetries int64   `json:"totalRetries"`
	AvgRetries   float64 `json:"avgRetries"`

	TotalInputTokens  int64   `json:"totalInputTokens"`
	TotalOutputTokens int64   `json:"totalOutputTokens"`
	OutputInputRatio  float64 `json:"outputInputRatio"`

	Latency    LatencyStats `json:"latency"`
	Throughput Throughput   `json:"throughput"`

	StatusClasses   map[string]int64 `json:"statusClasses"`
	StatusCounts    map[string]int64 `json:"statusCounts"`
	SourceCounts    map[string]int64 `json:"sourceCounts"`
	ErrorTypeCounts map[string]int64 `json:"errorTypeCounts"`

	HourHistogram [24]int64 `json:"hourHistogram"`

	FirstRequestAt string `json:"firstRequestAt,omitempty"`
	LastRequestAt  string `json:"lastRequestAt,omitempty"`
	WindowMs       int64  `json:"windowMs"`
	WindowMinutes  int64  `json:"windowMinutes"`
}

// ComputeOverview folds aggregated request records (plus the raw event count
// of the window) into an Overview.
func ComputeOverview(totalEvents int, records []*aggregate.RequestRecord) *Overview {
	ov := &Overview{
		TotalEvents:     int64(totalEvents),
		TotalRequests:   int64(len(records)),
		StatusClasses:   map[string]int64{"2xx": 0, "4xx": 0, "5xx": 0, "other": 0, "unknown": 0},
		StatusCounts:    map[string]int64{},
		SourceCounts:    map[string]int64{},
		ErrorTypeCounts: map[string]int64{},
	}

	var durations []int64
	var first, last time.Time
	minuteBuckets := map[int64]int64{}

	for _, r := range records {
		switch {
		case isSuccess(r):
			ov.SuccessRequests++
		case isFailed(r):
			ov.FailedRequests++
		}
		if r.PhaseFinal == aggregate.PhaseInflight {
			ov.InflightRequests++
		}

		ov.TotalRetries += r.RetryCount
		ov.TotalInputTokens += r.InputTokens
		ov.TotalOutputTokens += r.OutputTokens

		if r.DurationMs != nil && *r.DurationMs > 0 {
			durations = append(durations, *r.DurationMs)
		}

		ov.StatusClasses[statusClass(r.StatusCode)]++
		if r.StatusCode != nil {
			ov.StatusCounts[strconv.Itoa(*r.StatusCode)]++
		}
		ov.SourceCounts[string(r.Source)]++
		if r.ErrorType != "" {
			ov.ErrorTypeCounts[r.ErrorType]++
		}

		start := r.StartedAt
		ov.HourHistogram[start.In(time.Local).Hour()]++
		minuteBuckets[start.Unix()/60]++

		if first.IsZero() || start.Before(first) {
			first = start
		}
		if last.IsZero() || start.After(last) {
			last = start
		}
	}

	if ov.TotalRequests > 0 {
		ov.AvgRetries = round2(float64(ov.TotalRetries) / float64(ov.TotalRequests))
	}
	if ov.TotalInputTokens > 0 {
		ov.OutputInputRatio = round2(float64(ov.TotalOutputTokens) / float64(ov.TotalInputTokens))
	}

	if len(durations) > 0 {
		sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
		var sum int64
		for _, d := range durations {
			sum += d
		}
		ov.Latency = LatencyStats{
			AvgMs: round2(float64(sum) / float64(len(durations))),
			P50Ms: percentile(durations, 50),
			P95Ms: percentile(durations, 95),
			MinMs: durations[0],
			MaxMs: durations[len(durations)-1],
			SumMs: sum,
		}
	}

	if !first.IsZero() {
		ov.FirstRequestAt = first.UTC().Format(time.RFC3339Nano)
		ov.LastRequestAt = last.UTC().Format(time.RFC3339Nano)
		ov.WindowMs = last.Sub(first).Milliseconds()
		ov.WindowMinutes = ov.WindowMs / 60_000

		spanMinutes := float64(ov.WindowMs) / 60_000
		if spanMinutes < 1 {
			spanMinutes = 1
		}
		ov.Throughput.AvgRequestsPerMinute = round2(float64(ov.TotalRequests) / spanMinutes)

		var peakMinute int64
		for m, n := range minuteBuckets {
			if n > ov.Throughput.PeakMinuteRequests ||
				(n == ov.Throughput.PeakMinuteRequests && m < peakMinute) {
				ov.Throughput.PeakMinuteRequests = n
				peakMinute = m
			}
		}
		ov.Throughput.PeakMinuteStart = time.Unix(peakMinute*60, 0).UTC().Format(time.RFC3339)
	}

	return ov
}
