// Package document exposes a directory of text files as playable
// documents and watches it for deletions.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
)

// Workspace serves documents from a root directory. Document IDs are
// paths relative to the root. It implements the playback host surface:
// text, cursor, highlight, and notification plumbing.
type Workspace struct {
	mu         sync.Mutex
	root       string
	active     string
	cursors    map[string]int
	highlights map[string][2]int
	watcher    *fsnotify.Watcher
	onDelete   func(docID string)
	done       chan struct{}
}

// Open creates a workspace rooted at dir and starts watching it for
// removed documents.
func Open(dir string) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to open workspace: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("workspace root %s is not a directory", abs)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace watcher: %w", err)
	}
	if err := watcher.Add(abs); err != nil {
		watcher.Close() //nolint:errcheck
		return nil, fmt.Errorf("failed to watch workspace root: %w", err)
	}

	w := &Workspace{
		root:       abs,
		cursors:    make(map[string]int),
		highlights: make(map[string][2]int),
		watcher:    watcher,
		done:       make(chan struct{}),
	}
	go w.watch()
	return w, nil
}

// OnDelete registers the callback invoked with a document ID when its
// file is removed or renamed away.
func (w *Workspace) OnDelete(fn func(docID string)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onDelete = fn
}

// Close stops the watcher.
func (w *Workspace) Close() error {
	close(w.done)
	return w.watcher.Close()
}

func (w *Workspace) watch() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			docID, err := filepath.Rel(w.root, event.Name)
			if err != nil {
				continue
			}
			log.Debug("document removed from workspace", "doc", docID)
			w.forget(docID)
			w.mu.Lock()
			fn := w.onDelete
			w.mu.Unlock()
			if fn != nil {
				fn(docID)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("workspace watcher error", "error", err)
		}
	}
}

func (w *Workspace) forget(docID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.cursors, docID)
	delete(w.highlights, docID)
	if w.active == docID {
		w.active = ""
	}
}

// SetActive marks docID as the focused document.
func (w *Workspace) SetActive(docID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.active = docID
}

// SetCursor records the cursor byte offset for docID.
func (w *Workspace) SetCursor(docID string, offset int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if offset < 0 {
		offset = 0
	}
	w.cursors[docID] = offset
}

// Highlight returns the current highlight range for docID.
func (w *Workspace) Highlight(docID string) (start, end int, ok bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	r, ok := w.highlights[docID]
	return r[0], r[1], ok
}

// ActiveDocumentID implements the playback host.
func (w *Workspace) ActiveDocumentID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.active
}

// DocumentText implements the playback host.
func (w *Workspace) DocumentText(docID string) (string, error) {
	path := filepath.Join(w.root, filepath.Clean(docID))
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read document %s: %w", docID, err)
	}
	return string(data), nil
}

// CursorOffset implements the playback host.
func (w *Workspace) CursorOffset(docID string) int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cursors[docID]
}

// SetHighlight implements the playback host.
func (w *Workspace) SetHighlight(docID string, start, end int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.highlights[docID] = [2]int{start, end}
}

// ClearHighlight implements the playback host.
func (w *Workspace) ClearHighlight(docID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.highlights, docID)
}

// Notify implements the playback host.
func (w *Workspace) Notify(message string) {
	log.Info(message)
}
