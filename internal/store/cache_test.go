package store

import (
	"fmt"
	"io/fs"
	"os"
	"testing"
	"time"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/analytics"
	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

// fakeInfo is a minimal os.FileInfo for driving the cache validity check.
type fakeInfo struct {
	size    int64
	modTime time.Time
}

func (f fakeInfo) Name() string       { return "fake" }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() fs.FileMode  { return 0o644 }
func (f fakeInfo) ModTime() time.Time { return f.modTime }
func (f fakeInfo) IsDir() bool        { return false }
func (f fakeInfo) Sys() any           { return nil }

func TestLogCache_ReusesParseWhileUnchanged(t *testing.T) {
	loads := 0
	stamp := fakeInfo{size: 10, modTime: time.Now()}

	c := newLogCache(4, func(path string) ([]event.Event, error) {
		loads++
		return []event.Event{{EventID: "e1"}}, nil
	}, func(path string) (os.FileInfo, error) {
		return stamp, nil
	})
	defer c.Close()

	for i := 0; i < 3; i++ {
		events, err := c.Get("p")
		if err != nil {
			t.Fatal(err)
		}
		if len(events) != 1 || events[0].EventID != "e1" {
			t.Fatalf("read %d returned %v", i, events)
		}
	}
	if loads != 1 {
		t.Fatalf("unchanged file was parsed %d times, want 1", loads)
	}
}

func TestLogCache_ReparsesWhenStampChanges(t *testing.T) {
	loads := 0
	stamp := fakeInfo{size: 10, modTime: time.Now()}

	c := newLogCache(4, func(path string) ([]event.Event, error) {
		loads++
		return nil, nil
	}, func(path string) (os.FileInfo, error) {
		return stamp, nil
	})
	defer c.Close()

	c.Get("p")
	stamp.size = 20
	c.Get("p")
	if loads != 2 {
		t.Fatalf("changed file should reparse, loads = %d", loads)
	}
}

func TestLogCache_InvalidateForcesReparseDespiteMatchingStamp(t *testing.T) {
	loads := 0
	stamp := fakeInfo{size: 10, modTime: time.Now()}

	c := newLogCache(4, func(path string) ([]event.Event, error) {
		loads++
		return nil, nil
	}, func(path string) (os.FileInfo, error) {
		return stamp, nil
	})
	defer c.Close()

	c.Get("p")
	c.Invalidate("p")
	c.Get("p")
	if loads != 2 {
		t.Fatalf("invalidation should force a reparse even with a matching stamp, loads = %d", loads)
	}
}

func TestLogCache_MissingFileYieldsEmpty(t *testing.T) {
	c := newLogCache(4, func(path string) ([]event.Event, error) {
		t.Fatal("loader must not run for a missing file")
		return nil, nil
	}, func(path string) (os.FileInfo, error) {
		return nil, os.ErrNotExist
	})
	defer c.Close()

	events, err := c.Get("p")
	if err != nil || len(events) != 0 {
		t.Fatalf("missing file: events=%v err=%v", events, err)
	}
}

func TestLogCache_BoundedResidency(t *testing.T) {
	capacity := 4
	c := newLogCache(capacity, func(path string) ([]event.Event, error) {
		return nil, nil
	}, func(path string) (os.FileInfo, error) {
		return fakeInfo{size: 1, modTime: time.Now()}, nil
	})
	defer c.Close()

	for i := 0; i < capacity+10; i++ {
		c.Get(fmt.Sprintf("path-%d", i))
	}
	// Otter eviction is asynchronous but bounded; allow a small margin.
	if got := c.cache.Size(); got > capacity+2 {
		t.Fatalf("cache holds %d entries, want at most %d", got, capacity+2)
	}
}

func TestStore_ReadAfterAppendSeesNewEvent(t *testing.T) {
	s := newTestStore(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if _, err := s.Ingest(payload("r1", "request_start", t0, nil)); err != nil {
		t.Fatal(err)
	}
	if events, _ := s.ReadEvents("p1"); len(events) != 1 {
		t.Fatalf("first read: %d events", len(events))
	}

	if _, err := s.Ingest(payload("r2", "request_start", t0.Add(time.Second), nil)); err != nil {
		t.Fatal(err)
	}
	events, err := s.ReadEvents("p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Fatalf("read after append: %d events, want 2", len(events))
	}
}

func TestStore_ConcurrentIngestSameProfile(t *testing.T) {
	s := newTestStore(t)
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	const n = 50
	done := make(chan error, n)
	for i := 0; i < n; i++ {
		go func(i int) {
			_, err := s.Ingest(payload(fmt.Sprintf("r%d", i), "request_start", t0.Add(time.Duration(i)*time.Millisecond), nil))
			done <- err
		}(i)
	}
	for i := 0; i < n; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}

	events, err := s.ReadEvents("p1")
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != n {
		t.Fatalf("concurrent ingest lost events: %d of %d", len(events), n)
	}

	// Every line must be intact JSON: a torn line would have been skipped.
	if _, err := s.Overview("p1", analytics.TimeRange{}); err != nil {
		t.Fatal(err)
	}
}
