package store

import (
	"github.com/ursb1/Murasaki-Translator-sub004/internal/aggregate"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/analytics"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

// windowRecords loads a profile's events, applies the optional time range
// and aggregates the remainder into request records.
func (s *Store) windowRecords(rawProfileID string, r analytics.TimeRange) (string, []event.Event, []*aggregate.RequestRecord, error) {
	profileID := event.NormalizeProfileID(rawProfileID, "", "", "")
	events, err := s.cache.Get(s.eventsPath(profileID))
	if err != nil {
		return profileID, nil, nil, err
	}
	windowed := analytics.FilterEvents(events, r)
	return profileID, windowed, aggregate.Aggregate(windowed), nil
}

// Overview computes the multi-dimensional summary for a profile's window and
// persists a rollup snapshot as a best-effort side effect.
func (s *Store) Overview(rawProfileID string, r analytics.TimeRange) (*analytics.Overview, error) {
	profileID, events, records, err := s.windowRecords(rawProfileID, r)
	if err != nil {
		return nil, err
	}
	ov := analytics.ComputeOverview(len(events), records)
	s.writeRollup(buildRollup(profileID, events, records))
	return ov, nil
}

// Trend reports the time-bucketed series for a profile's window.
func (s *Store) Trend(rawProfileID string, r analytics.TimeRange, interval analytics.Interval, metric analytics.Metric) ([]analytics.TrendBucket, error) {
	_, _, records, err := s.windowRecords(rawProfileID, r)
	if err != nil {
		return nil, err
	}
	return analytics.ComputeTrend(records, interval, metric), nil
}

// Breakdown groups a profile's window by one categorical dimension.
func (s *Store) Breakdown(rawProfileID string, r analytics.TimeRange, dim analytics.Dimension) ([]analytics.BreakdownItem, error) {
	_, _, records, err := s.windowRecords(rawProfileID, r)
	if err != nil {
		return nil, err
	}
	return analytics.ComputeBreakdown(records, dim), nil
}

// Records returns one filtered page of a profile's request records.
func (s *Store) Records(rawProfileID string, r analytics.TimeRange, f analytics.RecordFilter) (*analytics.RecordsPage, error) {
	_, _, records, err := s.windowRecords(rawProfileID, r)
	if err != nil {
		return nil, err
	}
	return analytics.ComputeRecords(records, f), nil
}
