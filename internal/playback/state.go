// Package playback coordinates sentence-by-sentence speech playback
// across documents: per-document state, sequential playback with
// preloading, seeking, and focus handling.
package playback

import (
	"sync"

	"github.com/lectern-audio/lectern/internal/audio"
)

// Status is a document's playback lifecycle state.
type Status int

const (
	// StatusIdle means no playback is active or pending.
	StatusIdle Status = iota
	// StatusGenerating means audio is being synthesized up front.
	StatusGenerating
	// StatusPlaying means sentences are being played in order.
	StatusPlaying
	// StatusPaused means playback stopped at the current sentence and
	// can resume from it.
	StatusPaused
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusGenerating:
		return "generating"
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "unknown"
	}
}

// DocumentState is everything tracked for one document. Fields are
// guarded by the orchestrator's lock, not by the Store's.
type DocumentState struct {
	DocID        string
	Status       Status
	Text         string
	Sentences    []string
	Slots        []*audio.Clip
	CurrentIndex int
	Loading      bool

	// interrupt aborts the driver goroutine for the current playback
	// run. Replaced on every run; nil while no run is active.
	interrupt chan struct{}
}

// newDocumentState builds an idle state with empty audio slots, one per
// sentence.
func newDocumentState(docID, text string, sentences []string) *DocumentState {
	return &DocumentState{
		DocID:     docID,
		Status:    StatusIdle,
		Text:      text,
		Sentences: sentences,
		Slots:     make([]*audio.Clip, len(sentences)),
	}
}

// Store holds per-document playback state. Its lock guards only the
// map; individual states are owned by the orchestrator.
type Store struct {
	mu     sync.Mutex
	states map[string]*DocumentState
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{states: make(map[string]*DocumentState)}
}

// Get returns the state for docID, or nil.
func (s *Store) Get(docID string) *DocumentState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[docID]
}

// Put inserts or replaces the state for its document.
func (s *Store) Put(st *DocumentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states[st.DocID] = st
}

// Delete removes the state for docID.
func (s *Store) Delete(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, docID)
}

// ForEach calls fn for every tracked state.
func (s *Store) ForEach(fn func(st *DocumentState)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.states {
		fn(st)
	}
}

// Len returns the number of tracked documents.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}
