package store

import (
	"log"
	"os"
	"strconv"
	"time"

	json "github.com/goccy/go-json"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/aggregate"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

// Rollup is the persisted per-profile summary snapshot. It is a convenience
// artifact for cheap external inspection, never a source of truth: it is
// overwritten after every overview query and regenerated after trims.
type Rollup struct {
	SchemaVersion int    `json:"schemaVersion"`
	ProfileID     string `json:"profileId"`
	UpdatedAt     string `json:"updatedAt"`

	TotalEvents   int64 `json:"totalEvents"`
	TotalRequests int64 `json:"totalRequests"`

	PhaseCounts     map[string]int64 `json:"phaseCounts"`
	StatusCounts    map[string]int64 `json:"statusCounts"`
	SourceCounts    map[string]int64 `json:"sourceCounts"`
	ErrorTypeCounts map[string]int64 `json:"errorTypeCounts"`

	LastEventTimestamp string `json:"lastEventTimestamp,omitempty"`
}

// buildRollup derives a snapshot from a profile's events and their
// aggregated request records.
func buildRollup(profileID string, events []event.Event, records []*aggregate.RequestRecord) *Rollup {
	r := &Rollup{
		SchemaVersion:   event.SchemaVersion,
		ProfileID:       profileID,
		UpdatedAt:       time.Now().UTC().Format(time.RFC3339Nano),
		TotalEvents:     int64(len(events)),
		TotalRequests:   int64(len(records)),
		PhaseCounts:     map[string]int64{},
		StatusCounts:    map[string]int64{},
		SourceCounts:    map[string]int64{},
		ErrorTypeCounts: map[string]int64{},
	}

	var last time.Time
	for i := range events {
		ev := &events[i]
		r.PhaseCounts[string(ev.Phase)]++
		if t, ok := event.ParseTimestamp(ev.Timestamp); ok && t.After(last) {
			last = t
			r.LastEventTimestamp = ev.Timestamp
		}
	}
	for _, rec := range records {
		if rec.StatusCode != nil {
			r.StatusCounts[strconv.Itoa(*rec.StatusCode)]++
		}
		r.SourceCounts[string(rec.Source)]++
		if rec.ErrorType != "" {
			r.ErrorTypeCounts[rec.ErrorType]++
		}
	}
	return r
}

// writeRollup persists the snapshot via the atomic-rewrite mechanism under
// the rollup file's own write lock. Best-effort: failures are logged and
// swallowed, the triggering query still succeeds.
func (s *Store) writeRollup(r *Rollup) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		log.Printf("[rollup] warning: marshal %s failed: %v", r.ProfileID, err)
		return
	}

	path := s.rollupPath(r.ProfileID)
	mu := s.lockFor(path)
	mu.Lock()
	err = rewriteFile(path, data)
	mu.Unlock()
	if err != nil {
		log.Printf("[rollup] warning: write %s failed: %v", path, err)
	}
}

// ReadRollup loads the persisted snapshot for a profile, if one exists.
func (s *Store) ReadRollup(rawProfileID string) (*Rollup, bool, error) {
	profileID := event.NormalizeProfileID(rawProfileID, "", "", "")
	data, err := readFileIfExists(s.rollupPath(profileID))
	if err != nil || data == nil {
		return nil, false, err
	}
	var r Rollup
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, false, nil // corrupt rollup is regenerated on next overview
	}
	return &r, true, nil
}

// readFileIfExists returns nil data (and nil error) for a missing file.
func readFileIfExists(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return data, nil
}
