package audio

import (
	"sync"
	"time"
)

// MockPlayer is a deterministic Player for tests. With AutoComplete set
// every clip finishes as soon as it starts; otherwise completion is
// driven manually through Finish.
type MockPlayer struct {
	mu           sync.Mutex
	AutoComplete bool
	Played       []*Clip
	playing      bool
	paused       bool
	done         chan struct{}
}

// NewMockPlayer creates a mock whose clips complete only when Finish is
// called.
func NewMockPlayer() *MockPlayer {
	return &MockPlayer{done: closedChan()}
}

// Play implements Player.
func (m *MockPlayer) Play(clip *Clip) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Played = append(m.Played, clip)
	m.done = make(chan struct{})
	m.paused = false

	if m.AutoComplete || clip.Empty() {
		m.playing = false
		close(m.done)
		return nil
	}
	m.playing = true
	return nil
}

// Finish completes the in-flight clip as if it drained naturally.
func (m *MockPlayer) Finish() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playing {
		m.playing = false
		close(m.done)
	}
}

// Pause implements Player.
func (m *MockPlayer) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playing {
		m.paused = true
	}
}

// Resume implements Player.
func (m *MockPlayer) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paused = false
}

// Stop implements Player. The discarded clip's Done channel never
// fires.
func (m *MockPlayer) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.playing = false
	m.paused = false
}

// Position implements Player.
func (m *MockPlayer) Position() time.Duration { return 0 }

// IsPlaying implements Player.
func (m *MockPlayer) IsPlaying() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playing && !m.paused
}

// IsPaused reports whether the mock is holding a paused clip.
func (m *MockPlayer) IsPaused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.paused
}

// PlayedCount returns how many clips have been handed to Play.
func (m *MockPlayer) PlayedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Played)
}

// Done implements Player.
func (m *MockPlayer) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.done
}
