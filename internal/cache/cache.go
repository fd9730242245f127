// Package cache provides a persistent, size and age bounded store for
// synthesized sentence audio, keyed by sentence text within a document.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
)

// Defaults mirror the persisted settings defaults.
const (
	DefaultMaxEntries = 100
	DefaultMaxAge     = 7 * 24 * time.Hour
)

// Entry is one cached audio clip with the metadata needed for recency
// eviction and per-document clearing.
type Entry struct {
	Audio     []byte
	Timestamp time.Time
	DocID     string
	Hash      string
	Size      int64
}

// Cache is an LRU audio cache. The running total size is maintained
// incrementally on every mutation; it is recomputed by a full scan only
// when a snapshot is loaded from disk.
type Cache struct {
	mu         sync.Mutex
	entries    map[string]*Entry
	totalSize  int64
	maxEntries int
	maxAge     time.Duration
	enabled    bool
	store      SnapshotStore
}

// SnapshotStore persists the full cache index as one snapshot per save.
// Implementations must treat a missing or corrupt snapshot as empty.
type SnapshotStore interface {
	Save(entries map[string]*Entry) error
	Load() (map[string]*Entry, error)
}

// New creates an enabled cache backed by the given snapshot store. Any
// existing snapshot is loaded; load failures start the cache empty.
func New(store SnapshotStore) *Cache {
	c := &Cache{
		entries:    make(map[string]*Entry),
		maxEntries: DefaultMaxEntries,
		maxAge:     DefaultMaxAge,
		enabled:    true,
		store:      store,
	}
	c.load()
	return c
}

// Key derives the cache key for a sentence within a document. The key is
// namespaced by document so identical sentences in different documents
// cache independently.
func Key(sentence, docID string) string {
	sum := sha256.Sum256([]byte(sentence))
	return fmt.Sprintf("%s-%s", docID, hex.EncodeToString(sum[:]))
}

// Lookup returns the cached audio for (sentence, docID) and refreshes the
// entry's recency timestamp. Always a miss while the cache is disabled.
func (c *Cache) Lookup(sentence, docID string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return nil, false
	}

	key := Key(sentence, docID)
	entry, ok := c.entries[key]
	if !ok {
		log.Debug("cache miss", "key", key)
		return nil, false
	}

	entry.Timestamp = time.Now()
	log.Debug("cache hit", "key", key, "size", entry.Size)
	return entry.Audio, true
}

// Store caches audio for (sentence, docID), overwriting any existing
// entry, then prunes and persists a full snapshot. A no-op while the
// cache is disabled.
func (c *Cache) Store(sentence, docID string, audio []byte) string {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.enabled {
		return ""
	}

	key := Key(sentence, docID)
	if old, ok := c.entries[key]; ok {
		c.totalSize -= old.Size
	}

	entry := &Entry{
		Audio:     audio,
		Timestamp: time.Now(),
		DocID:     docID,
		Hash:      key,
		Size:      int64(len(audio)),
	}
	c.entries[key] = entry
	c.totalSize += entry.Size

	c.prune()
	c.save()
	return key
}

// EvictExpired removes every entry older than the configured maximum age.
func (c *Cache) EvictExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictExpired()
}

// EvictOverflow removes oldest-touched entries until the entry count is
// at or under the configured maximum.
func (c *Cache) EvictOverflow() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.evictOverflow()
}

// ClearForDocument removes all entries owned by docID and persists the
// result. Called when a document is deleted.
func (c *Cache) ClearForDocument(docID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.DocID == docID {
			c.totalSize -= entry.Size
			delete(c.entries, key)
			removed++
		}
	}
	if removed > 0 {
		log.Debug("cleared document cache entries", "doc", docID, "removed", removed)
		c.save()
	}
}

// Clear removes every entry and persists the empty snapshot.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*Entry)
	c.totalSize = 0
	c.save()
}

// SetEnabled toggles the cache. Disabling discards all entries
// immediately and turns future lookups and stores into no-ops.
func (c *Cache) SetEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.enabled = enabled
	if !enabled {
		c.entries = make(map[string]*Entry)
		c.totalSize = 0
		c.save()
	}
}

// SetMaxEntries updates the entry limit and re-runs eviction.
func (c *Cache) SetMaxEntries(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxEntries = n
	c.prune()
	c.save()
}

// SetMaxAge updates the age limit and re-runs eviction.
func (c *Cache) SetMaxAge(age time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.maxAge = age
	c.prune()
	c.save()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// TotalSize returns the running total of all entry sizes in bytes.
func (c *Cache) TotalSize() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.totalSize
}

// FormattedSize returns the total size as a human-readable string.
func (c *Cache) FormattedSize() string {
	return humanize.Bytes(uint64(c.TotalSize()))
}

// prune runs age eviction then count eviction. Must be called with the
// lock held.
func (c *Cache) prune() {
	if !c.enabled {
		c.entries = make(map[string]*Entry)
		c.totalSize = 0
		return
	}
	c.evictExpired()
	c.evictOverflow()
}

func (c *Cache) evictExpired() {
	now := time.Now()
	for key, entry := range c.entries {
		if now.Sub(entry.Timestamp) > c.maxAge {
			c.totalSize -= entry.Size
			delete(c.entries, key)
		}
	}
}

func (c *Cache) evictOverflow() {
	if len(c.entries) <= c.maxEntries {
		return
	}

	type keyed struct {
		key   string
		entry *Entry
	}
	ordered := make([]keyed, 0, len(c.entries))
	for key, entry := range c.entries {
		ordered = append(ordered, keyed{key, entry})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].entry.Timestamp.Before(ordered[j].entry.Timestamp)
	})

	for _, k := range ordered {
		if len(c.entries) <= c.maxEntries {
			break
		}
		c.totalSize -= k.entry.Size
		delete(c.entries, k.key)
	}
}

// save writes the full snapshot. Persistence failures are logged and
// swallowed; they must never reach the playback flow.
func (c *Cache) save() {
	if c.store == nil {
		return
	}
	if err := c.store.Save(c.entries); err != nil {
		log.Warn("failed to save audio cache", "error", err)
	}
}

// load replaces the in-memory index with the persisted snapshot and
// recomputes the total size. A missing or unreadable snapshot starts the
// cache empty.
func (c *Cache) load() {
	if c.store == nil {
		return
	}
	entries, err := c.store.Load()
	if err != nil {
		log.Debug("no usable audio cache snapshot, starting empty", "error", err)
		return
	}

	c.entries = entries
	c.totalSize = 0
	for _, entry := range c.entries {
		c.totalSize += entry.Size
	}
	c.prune()
	log.Debug("audio cache loaded", "entries", len(c.entries), "size", humanize.Bytes(uint64(c.totalSize)))
}
