package store

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/robfig/cron/v3"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/aggregate"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

// Retain trims a profile's log. With a nil cutoff the entire log and rollup
// are deleted. With a cutoff, events at or after the cutoff (inclusive) are
// kept, the log is rewritten atomically (or deleted when nothing remains)
// and the rollup is regenerated. Trimmed-away events are appended to the
// profile's gzip archive on a best-effort basis.
func (s *Store) Retain(rawProfileID string, cutoff *time.Time) error {
	profileID := event.NormalizeProfileID(rawProfileID, "", "", "")
	path := s.eventsPath(profileID)

	if cutoff == nil {
		mu := s.lockFor(path)
		mu.Lock()
		err := removeIfExists(path)
		mu.Unlock()
		s.cache.Invalidate(path)
		if err != nil {
			return fmt.Errorf("store retain %s: %w", path, err)
		}
		s.removeRollup(profileID)
		return nil
	}

	mu := s.lockFor(path)
	mu.Lock()
	kept, removed, err := s.trimLocked(path, *cutoff)
	mu.Unlock()
	s.cache.Invalidate(path)
	if err != nil {
		return fmt.Errorf("store retain %s: %w", path, err)
	}

	if len(removed) > 0 {
		s.archiveEvents(profileID, removed)
	}
	s.writeRollup(buildRollup(profileID, kept, aggregate.Aggregate(kept)))
	return nil
}

// trimLocked partitions the log at the cutoff and rewrites or deletes it.
// The caller holds the path lock.
func (s *Store) trimLocked(path string, cutoff time.Time) (kept, removed []event.Event, err error) {
	events, err := s.loadLog(path)
	if err != nil {
		return nil, nil, err
	}

	for i := range events {
		t, ok := event.ParseTimestamp(events[i].Timestamp)
		if ok && !t.Before(cutoff) {
			kept = append(kept, events[i])
		} else {
			removed = append(removed, events[i])
		}
	}

	if len(kept) == 0 {
		return kept, removed, removeIfExists(path)
	}
	content, err := marshalLines(kept)
	if err != nil {
		return nil, nil, err
	}
	return kept, removed, rewriteFile(path, content)
}

// archiveEvents appends the removed events as one gzip member to the
// profile's archive. Best-effort: failures never fail the trim.
func (s *Store) archiveEvents(profileID string, removed []event.Event) {
	content, err := marshalLines(removed)
	if err != nil {
		log.Printf("[retention] warning: archive marshal %s failed: %v", profileID, err)
		return
	}

	path := s.archivePath(profileID)
	mu := s.lockFor(path)
	mu.Lock()
	defer mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[retention] warning: archive open %s failed: %v", path, err)
		return
	}
	gz := gzip.NewWriter(f)
	if _, err := gz.Write(content); err != nil {
		log.Printf("[retention] warning: archive write %s failed: %v", path, err)
	}
	if err := gz.Close(); err != nil {
		log.Printf("[retention] warning: archive flush %s failed: %v", path, err)
	}
	if err := f.Close(); err != nil {
		log.Printf("[retention] warning: archive close %s failed: %v", path, err)
	}
}

func (s *Store) removeRollup(profileID string) {
	path := s.rollupPath(profileID)
	mu := s.lockFor(path)
	mu.Lock()
	err := removeIfExists(path)
	mu.Unlock()
	if err != nil {
		log.Printf("[retention] warning: remove rollup %s failed: %v", path, err)
	}
}

func removeIfExists(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Sweep trims every profile log in the store to at most maxAge of history.
// Used by the scheduled retention job.
func (s *Store) Sweep(maxAge time.Duration) error {
	entries, err := os.ReadDir(s.Dir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("store sweep %s: %w", s.Dir(), err)
	}

	cutoff := time.Now().Add(-maxAge)
	swept := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), eventsSuffix) {
			continue
		}
		profileID := strings.TrimSuffix(e.Name(), eventsSuffix)
		if err := s.Retain(profileID, &cutoff); err != nil {
			log.Printf("[retention] warning: sweep %s failed: %v", profileID, err)
			continue
		}
		swept++
	}
	if swept > 0 {
		log.Printf("[retention] swept %d profile logs, cutoff %s", swept, cutoff.UTC().Format(time.RFC3339))
	}
	return nil
}

// Scheduler runs periodic retention sweeps on a cron schedule.
type Scheduler struct {
	store  *Store
	maxAge time.Duration
	cron   *cron.Cron
}

// NewScheduler creates a sweep scheduler. An empty schedule disables it:
// Start becomes a no-op and nil is returned from it.
func NewScheduler(store *Store, schedule string, maxAge time.Duration) (*Scheduler, error) {
	s := &Scheduler{store: store, maxAge: maxAge}
	if schedule == "" {
		return s, nil
	}
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		if err := store.Sweep(maxAge); err != nil {
			log.Printf("[retention] scheduled sweep failed: %v", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("retention scheduler: invalid cron expression %q: %w", schedule, err)
	}
	s.cron = c
	return s, nil
}

// Start launches the cron scheduler, if one is configured.
func (s *Scheduler) Start() {
	if s.cron != nil {
		s.cron.Start()
	}
}

// Stop stops the cron scheduler and waits for a running sweep to finish.
func (s *Scheduler) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
	}
}
