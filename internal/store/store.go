// Package store implements the file-backed API statistics event store:
// per-profile append-only JSONL logs, a bounded read-through cache,
// write serialization per file path, analytical queries, rollup snapshots
// and retention trimming.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

const (
	// logSubdir is the fixed subdirectory under the caller-supplied root.
	logSubdir = "api"

	eventsSuffix  = ".stats.events.jsonl"
	rollupSuffix  = ".stats.rollup.json"
	archiveSuffix = ".stats.archive.jsonl.gz"
)

// Store owns the per-profile event logs under one root directory. It is safe
// for concurrent use: mutating operations against the same file are chained
// through a per-path lock, operations against different files overlap freely.
type Store struct {
	rootDir string
	cache   *logCache

	// locks holds one mutex per log file path, created on first use.
	locks *xsync.Map[string, *sync.Mutex]
}

// New creates a Store rooted at rootDir. Log files live under rootDir/api/.
func New(rootDir string) (*Store, error) {
	if rootDir == "" {
		return nil, fmt.Errorf("store: root directory is required")
	}
	s := &Store{
		rootDir: rootDir,
		locks:   xsync.NewMap[string, *sync.Mutex](),
	}
	s.cache = newLogCache(cacheCapacity, s.loadLog, nil)
	return s, nil
}

// Close releases the read cache. Pending writes are unaffected.
func (s *Store) Close() {
	s.cache.Close()
}

// Dir returns the directory holding all per-profile files.
func (s *Store) Dir() string {
	return filepath.Join(s.rootDir, logSubdir)
}

func (s *Store) eventsPath(profileID string) string {
	return filepath.Join(s.Dir(), profileID+eventsSuffix)
}

func (s *Store) rollupPath(profileID string) string {
	return filepath.Join(s.Dir(), profileID+rollupSuffix)
}

func (s *Store) archivePath(profileID string) string {
	return filepath.Join(s.Dir(), profileID+archiveSuffix)
}

// lockFor returns the write lock for a file path, creating it on first use.
func (s *Store) lockFor(path string) *sync.Mutex {
	mu, _ := s.locks.LoadOrCompute(path, func() (*sync.Mutex, bool) {
		return &sync.Mutex{}, false
	})
	return mu
}

// Ingest normalizes one raw payload and appends it to the owning profile's
// log. A payload that fails normalization is silently dropped: the returned
// event is nil and the error is nil, matching fire-and-forget ingestion.
// I/O failures are returned.
func (s *Store) Ingest(payload map[string]any) (*event.Event, error) {
	ev, ok := event.Normalize(payload)
	if !ok {
		return nil, nil
	}
	if err := s.append(ev); err != nil {
		return nil, err
	}
	return ev, nil
}

// append writes one canonical event as a single JSONL line under the
// per-path write lock, then invalidates the file's cache entry.
func (s *Store) append(ev *event.Event) error {
	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("store append %s: marshal: %w", ev.ProfileID, err)
	}

	if err := os.MkdirAll(s.Dir(), 0o755); err != nil {
		return fmt.Errorf("store append mkdir %s: %w", s.Dir(), err)
	}

	path := s.eventsPath(ev.ProfileID)
	mu := s.lockFor(path)
	mu.Lock()
	err = appendLine(path, line)
	mu.Unlock()
	if err != nil {
		return fmt.Errorf("store append %s: %w", path, err)
	}

	s.cache.Invalidate(path)
	return nil
}

func appendLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadEvents returns all canonical events for a profile, ascending by
// timestamp, via the read-through cache. A missing log yields an empty set.
// The returned slice is shared with the cache and must not be mutated.
func (s *Store) ReadEvents(rawProfileID string) ([]event.Event, error) {
	profileID := event.NormalizeProfileID(rawProfileID, "", "", "")
	return s.cache.Get(s.eventsPath(profileID))
}

// loadLog reads and reparses a whole log file. Lines that fail to parse or
// re-normalize are skipped so the log degrades gracefully under partial
// corruption.
func (s *Store) loadLog(path string) ([]event.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("store read %s: %w", path, err)
	}

	type timed struct {
		t  time.Time
		ev event.Event
	}
	lines := strings.Split(string(data), "\n")
	parsed := make([]timed, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		ev, ok := event.NormalizeLine([]byte(line))
		if !ok {
			continue
		}
		t, _ := event.ParseTimestamp(ev.Timestamp)
		parsed = append(parsed, timed{t: t, ev: *ev})
	}

	// RFC3339Nano strings are not lexicographically ordered once trailing
	// zeros are trimmed, so sort on the parsed instants.
	sort.SliceStable(parsed, func(i, j int) bool {
		return parsed[i].t.Before(parsed[j].t)
	})

	events := make([]event.Event, len(parsed))
	for i := range parsed {
		events[i] = parsed[i].ev
	}
	return events, nil
}

// rewriteFile atomically replaces path with content: the content goes to a
// uniquely-named temporary file in the same directory which is then renamed
// over the target. If the rename fails, it falls back to a direct in-place
// write and cleans up the temporary file. Callers must hold the path lock.
func rewriteFile(path string, content []byte) error {
	tmp := path + ".tmp-" + uuid.NewString()[:8]
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return fmt.Errorf("store rewrite temp %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		directErr := os.WriteFile(path, content, 0o644)
		os.Remove(tmp)
		if directErr != nil {
			return fmt.Errorf("store rewrite %s: rename: %v, direct write: %w", path, err, directErr)
		}
	}
	return nil
}

// marshalLines serializes events as newline-delimited JSON.
func marshalLines(events []event.Event) ([]byte, error) {
	var b strings.Builder
	for i := range events {
		line, err := json.Marshal(&events[i])
		if err != nil {
			return nil, err
		}
		b.Write(line)
		b.WriteByte('\n')
	}
	return []byte(b.String()), nil
}
