package cache

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// snapshotEntry is the wire form of one cache entry. Audio is base64 so
// the snapshot stays a single readable JSON document.
type snapshotEntry struct {
	Audio     string `json:"audio"`
	Timestamp int64  `json:"timestamp"`
	DocID     string `json:"docId"`
	Hash      string `json:"hash"`
	Size      int64  `json:"size"`
}

// FileStore persists the cache index as one JSON file.
type FileStore struct {
	path string
}

// NewFileStore creates a snapshot store at path, creating parent
// directories as needed.
func NewFileStore(path string) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	return &FileStore{path: path}, nil
}

// Save implements SnapshotStore.
func (f *FileStore) Save(entries map[string]*Entry) error {
	snapshot := make(map[string]snapshotEntry, len(entries))
	for key, entry := range entries {
		snapshot[key] = snapshotEntry{
			Audio:     base64.StdEncoding.EncodeToString(entry.Audio),
			Timestamp: entry.Timestamp.UnixMilli(),
			DocID:     entry.DocID,
			Hash:      entry.Hash,
			Size:      entry.Size,
		}
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode cache snapshot: %w", err)
	}
	if err := os.WriteFile(f.path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write cache snapshot: %w", err)
	}
	return nil
}

// Load implements SnapshotStore. Errors are returned so the caller can
// start with an empty cache; a partially readable snapshot is never
// half-applied.
func (f *FileStore) Load() (map[string]*Entry, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache snapshot: %w", err)
	}

	var snapshot map[string]snapshotEntry
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("failed to decode cache snapshot: %w", err)
	}

	entries := make(map[string]*Entry, len(snapshot))
	for key, se := range snapshot {
		audio, err := base64.StdEncoding.DecodeString(se.Audio)
		if err != nil {
			return nil, fmt.Errorf("failed to decode cached audio for %s: %w", key, err)
		}
		size := se.Size
		if size == 0 {
			size = int64(len(audio))
		}
		entries[key] = &Entry{
			Audio:     audio,
			Timestamp: time.UnixMilli(se.Timestamp),
			DocID:     se.DocID,
			Hash:      se.Hash,
			Size:      size,
		}
	}
	return entries, nil
}
