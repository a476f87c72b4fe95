package store

import (
	"os"
	"time"

	"github.com/maypok86/otter"

	"github.com/ursb1/Murasaki-Translator-sub004/internal/event"
)

// cacheCapacity bounds the number of resident parsed log files. The oldest
// entry is evicted once the bound is exceeded.
const cacheCapacity = 64

// cacheEntry holds one parsed log file keyed by file identity. It is valid
// only while the file's (mtime, size) pair still matches on disk.
type cacheEntry struct {
	modTime time.Time
	size    int64
	events  []event.Event
}

// loaderFunc parses a log file from disk. Injected so tests can count reads.
type loaderFunc func(path string) ([]event.Event, error)

// statFunc stats a log file. Injected alongside loaderFunc in tests.
type statFunc func(path string) (os.FileInfo, error)

// logCache is a bounded read-through cache of parsed event logs, backed by
// an otter LRU. Entries are revalidated against (mtime, size) on every read
// and dropped explicitly after every successful write to the path.
type logCache struct {
	cache  otter.Cache[string, *cacheEntry]
	load   loaderFunc
	statFn statFunc
}

func newLogCache(capacity int, load loaderFunc, stat statFunc) *logCache {
	if stat == nil {
		stat = os.Stat
	}
	cache, err := otter.MustBuilder[string, *cacheEntry](capacity).
		Cost(func(_ string, _ *cacheEntry) uint32 { return 1 }).
		Build()
	if err != nil {
		panic("store: failed to create log cache: " + err.Error())
	}
	return &logCache{cache: cache, load: load, statFn: stat}
}

// Get returns the parsed events for path, reusing a prior parse when the
// file is provably unchanged. A missing file yields an empty result.
func (c *logCache) Get(path string) ([]event.Event, error) {
	fi, err := c.statFn(path)
	if err != nil {
		if os.IsNotExist(err) {
			c.cache.Delete(path)
			return nil, nil
		}
		return nil, err
	}

	if entry, ok := c.cache.Get(path); ok {
		if entry.modTime.Equal(fi.ModTime()) && entry.size == fi.Size() {
			return entry.events, nil
		}
	}

	events, err := c.load(path)
	if err != nil {
		return nil, err
	}
	c.cache.Set(path, &cacheEntry{
		modTime: fi.ModTime(),
		size:    fi.Size(),
		events:  events,
	})
	return events, nil
}

// Invalidate drops the entry for path. Called after every successful write
// so the next read reparses even if (mtime, size) coincidentally match.
func (c *logCache) Invalidate(path string) {
	c.cache.Delete(path)
}

// Close releases the underlying otter cache.
func (c *logCache) Close() {
	c.cache.Close()
}
