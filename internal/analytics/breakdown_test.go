package analytics

import (
	"testing"
	"time"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/aggregate"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

func TestComputeBreakdown_SortedDescendingWithPercent(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []*aggregate.RequestRecord{
		rec("a", t0, func(r *aggregate.RequestRecord) { r.Source = event.SourceTranslation }),
		rec("b", t0, func(r *aggregate.RequestRecord) { r.Source = event.SourceTranslation }),
		rec("c", t0, func(r *aggregate.RequestRecord) { r.Source = event.SourceGlossary }),
		rec("d", t0, func(r *aggregate.RequestRecord) { r.Source = event.SourceTTS }),
	}
	items := ComputeBreakdown(records, DimensionSource)

	if items[0].Key != "translation" || items[0].Count != 2 || items[0].Percent != 50 {
		t.Fatalf("top item = %+v", items[0])
	}
	for i := 1; i < len(items); i++ {
		if items[i].Count > items[i-1].Count {
			t.Fatal("breakdown not sorted descending by count")
		}
	}
}

func TestComputeBreakdown_ErrorTypeNoneAndUnknown(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []*aggregate.RequestRecord{
		rec("fine", t0, func(r *aggregate.RequestRecord) {
			r.PhaseFinal = event.PhaseRequestEnd
			r.StatusCode = iptr(200)
		}),
		rec("typed", t0, func(r *aggregate.RequestRecord) {
			r.PhaseFinal = event.PhaseRequestError
			r.ErrorType = "timeout"
		}),
		rec("untyped", t0, func(r *aggregate.RequestRecord) {
			r.PhaseFinal = event.PhaseRequestError
		}),
	}
	items := ComputeBreakdown(records, DimensionErrorType)

	got := map[string]int64{}
	for _, it := range items {
		got[it.Key] = it.Count
	}
	if got["none"] != 1 || got["timeout"] != 1 || got["unknown"] != 1 {
		t.Fatalf("error-type breakdown = %v", got)
	}
}

func TestComputeBreakdown_StatusCodeAndClass(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	records := []*aggregate.RequestRecord{
		rec("a", t0, func(r *aggregate.RequestRecord) { r.StatusCode = iptr(200) }),
		rec("b", t0, func(r *aggregate.RequestRecord) { r.StatusCode = iptr(503) }),
		rec("c", t0, nil),
	}

	byCode := ComputeBreakdown(records, DimensionStatusCode)
	codes := map[string]int64{}
	for _, it := range byCode {
		codes[it.Key] = it.Count
	}
	if codes["200"] != 1 || codes["503"] != 1 || codes["unknown"] != 1 {
		t.Fatalf("status-code breakdown = %v", codes)
	}

	byClass := ComputeBreakdown(records, DimensionStatusClass)
	classes := map[string]int64{}
	for _, it := range byClass {
		classes[it.Key] = it.Count
	}
	if classes["2xx"] != 1 || classes["5xx"] != 1 || classes["unknown"] != 1 {
		t.Fatalf("status-class breakdown = %v", classes)
	}
}

func TestComputeBreakdown_ModelUnknownAndHour(t *testing.T) {
	start := time.Date(2026, 3, 1, 14, 5, 0, 0, time.Local)
	records := []*aggregate.RequestRecord{
		rec("a", start, func(r *aggregate.RequestRecord) { r.Model = "sakura-7b" }),
		rec("b", start, nil),
	}

	models := ComputeBreakdown(records, DimensionModel)
	keys := map[string]int64{}
	for _, it := range models {
		keys[it.Key] = it.Count
	}
	if keys["sakura-7b"] != 1 || keys["unknown"] != 1 {
		t.Fatalf("model breakdown = %v", keys)
	}

	hours := ComputeBreakdown(records, DimensionHour)
	if hours[0].Key != "14" || hours[0].Count != 2 {
		t.Fatalf("hour breakdown = %+v", hours[0])
	}
}

func TestNormalizeDimension_ClampsUnknown(t *testing.T) {
	if got := NormalizeDimension("astrology"); got != DimensionStatusClass {
		t.Fatalf("dimension = %q", got)
	}
}

func TestComputeBreakdown_Empty(t *testing.T) {
	if items := ComputeBreakdown(nil, DimensionSource); len(items) != 0 {
		t.Fatalf("empty input should yield no items, got %v", items)
	}
}
