package playback

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/lectern-audio/lectern/internal/audio"
	"github.com/lectern-audio/lectern/internal/cache"
)

// countingSynth produces deterministic audio and records every call.
type countingSynth struct {
	mu     sync.Mutex
	calls  []string
	failOn map[string]bool
}

func (s *countingSynth) Name() string { return "counting" }

func (s *countingSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	s.calls = append(s.calls, text)
	fail := s.failOn[text]
	s.mu.Unlock()

	if fail {
		return nil, errors.New("synthesis refused")
	}
	return []byte("pcm:" + text), nil
}

func (s *countingSynth) SynthesizeBatch(ctx context.Context, sentences []string) ([][]byte, error) {
	results := make([][]byte, len(sentences))
	for i, sentence := range sentences {
		pcm, err := s.Synthesize(ctx, sentence)
		if err != nil {
			results[i] = []byte{}
			continue
		}
		results[i] = pcm
	}
	return results, nil
}

func (s *countingSynth) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// testHost serves fixed document text and records highlight traffic.
type testHost struct {
	mu         sync.Mutex
	texts      map[string]string
	cursors    map[string]int
	active     string
	highlights int
	cleared    int
	notices    []string
}

func newTestHost() *testHost {
	return &testHost{
		texts:   make(map[string]string),
		cursors: make(map[string]int),
	}
}

func (h *testHost) ActiveDocumentID() string { return h.active }

func (h *testHost) DocumentText(docID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	text, ok := h.texts[docID]
	if !ok {
		return "", fmt.Errorf("no such document: %s", docID)
	}
	return text, nil
}

func (h *testHost) CursorOffset(docID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cursors[docID]
}

func (h *testHost) SetHighlight(string, int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.highlights++
}

func (h *testHost) ClearHighlight(string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleared++
}

func (h *testHost) Notify(message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notices = append(h.notices, message)
}

func (h *testHost) noticeCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.notices)
}

func (h *testHost) highlightCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.highlights
}

func (h *testHost) clearedCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cleared
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	store, err := cache.NewFileStore(filepath.Join(t.TempDir(), "audio-cache.json"))
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}
	return cache.New(store)
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestPlaySequentialToEnd(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two. Three."
	synth := &countingSynth{}
	player := audio.NewMockPlayer()
	player.AutoComplete = true

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}

	waitFor(t, func() bool { return o.StatusOf("doc") == StatusIdle }, "playback to finish")

	if got := player.PlayedCount(); got != 3 {
		t.Errorf("played %d clips, want 3", got)
	}
	for i, want := range []string{"pcm:One.", "pcm:Two.", "pcm:Three."} {
		if got := string(player.Played[i].Data); got != want {
			t.Errorf("clip %d = %q, want %q", i, got, want)
		}
	}
	if current, total := o.Progress("doc"); current != 3 || total != 3 {
		t.Errorf("Progress = (%d, %d), want (3, 3)", current, total)
	}
	if host.highlightCount() != 3 {
		t.Errorf("highlights set %d times, want 3", host.highlightCount())
	}
	if host.clearedCount() == 0 {
		t.Error("highlight should be cleared when playback finishes")
	}
}

func TestCacheAvoidsResynthesis(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "Hello world. This is a test!"
	synth := &countingSynth{}
	c := newTestCache(t)

	player := audio.NewMockPlayer()
	player.AutoComplete = true
	o := New(synth, player, c, host, nil)
	// Acquisition on demand only, so each sentence is synthesized
	// exactly once.
	o.SetPreloadCount(0)

	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return o.StatusOf("doc") == StatusIdle }, "first playback to finish")

	if got := synth.callCount(); got != 2 {
		t.Fatalf("first playback made %d synthesis calls, want 2", got)
	}

	// A fresh orchestrator over the same cache replays without any
	// backend traffic.
	player2 := audio.NewMockPlayer()
	player2.AutoComplete = true
	o2 := New(synth, player2, c, host, nil)
	o2.SetPreloadCount(0)

	if err := o2.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("second Play failed: %v", err)
	}
	waitFor(t, func() bool { return o2.StatusOf("doc") == StatusIdle }, "second playback to finish")

	if got := synth.callCount(); got != 2 {
		t.Errorf("cached playback made %d extra synthesis calls", got-2)
	}
	if got := player2.PlayedCount(); got != 2 {
		t.Errorf("cached playback played %d clips, want 2", got)
	}
}

func TestFailedSentenceIsSkipped(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two. Three."
	synth := &countingSynth{failOn: map[string]bool{"Two.": true}}
	player := audio.NewMockPlayer()
	player.AutoComplete = true

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return o.StatusOf("doc") == StatusIdle }, "playback to finish")

	if got := player.PlayedCount(); got != 2 {
		t.Fatalf("played %d clips, want 2 (failed sentence skipped)", got)
	}
	if got := string(player.Played[0].Data); got != "pcm:One." {
		t.Errorf("clip 0 = %q", got)
	}
	if got := string(player.Played[1].Data); got != "pcm:Three." {
		t.Errorf("clip 1 = %q", got)
	}
	if current, total := o.Progress("doc"); current != 3 || total != 3 {
		t.Errorf("Progress = (%d, %d), want (3, 3)", current, total)
	}
}

func TestPauseAndResume(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two. Three."
	synth := &countingSynth{}
	player := audio.NewMockPlayer()

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return player.PlayedCount() == 1 }, "first clip to start")

	o.Pause("doc")
	if got := o.StatusOf("doc"); got != StatusPaused {
		t.Fatalf("status after Pause = %v, want paused", got)
	}
	if !player.IsPaused() {
		t.Error("player should be paused")
	}
	if current, _ := o.Progress("doc"); current != 0 {
		t.Errorf("pause must not advance the index, got %d", current)
	}

	// Resume replays the current sentence from its beginning.
	o.Resume(context.Background(), "doc")
	waitFor(t, func() bool { return player.PlayedCount() == 2 }, "resumed clip to start")
	if got := string(player.Played[1].Data); got != "pcm:One." {
		t.Errorf("resumed clip = %q, want the paused sentence again", got)
	}

	player.Finish()
	waitFor(t, func() bool { return player.PlayedCount() == 3 }, "second sentence to start")
	player.Finish()
	waitFor(t, func() bool { return player.PlayedCount() == 4 }, "third sentence to start")
	player.Finish()
	waitFor(t, func() bool { return o.StatusOf("doc") == StatusIdle }, "playback to finish")
}

func TestTogglePlayPause(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two."
	synth := &countingSynth{}
	player := audio.NewMockPlayer()

	o := New(synth, player, nil, host, nil)

	if err := o.TogglePlayPause(context.Background(), "doc"); err != nil {
		t.Fatalf("toggle from idle failed: %v", err)
	}
	waitFor(t, func() bool { return o.StatusOf("doc") == StatusPlaying }, "toggle to start playback")
	waitFor(t, func() bool { return player.PlayedCount() == 1 }, "first clip to start")

	if err := o.TogglePlayPause(context.Background(), "doc"); err != nil {
		t.Fatalf("toggle from playing failed: %v", err)
	}
	if got := o.StatusOf("doc"); got != StatusPaused {
		t.Fatalf("status after second toggle = %v, want paused", got)
	}

	if err := o.TogglePlayPause(context.Background(), "doc"); err != nil {
		t.Fatalf("toggle from paused failed: %v", err)
	}
	if got := o.StatusOf("doc"); got != StatusPlaying {
		t.Errorf("status after third toggle = %v, want playing", got)
	}
}

func TestFocusChangePausesOtherDocuments(t *testing.T) {
	host := newTestHost()
	host.texts["doc-a"] = "One. Two."
	host.texts["doc-b"] = "Other text."
	synth := &countingSynth{}
	player := audio.NewMockPlayer()

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc-a"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return player.PlayedCount() == 1 }, "doc-a to start")

	o.FocusChanged("doc-b")
	if got := o.StatusOf("doc-a"); got != StatusPaused {
		t.Errorf("doc-a status after focus change = %v, want paused", got)
	}
}

func TestDocumentDeletedDiscardsState(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two."
	synth := &countingSynth{}
	c := newTestCache(t)
	player := audio.NewMockPlayer()

	o := New(synth, player, c, host, nil)
	o.SetPreloadCount(0)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return player.PlayedCount() == 1 }, "playback to start")

	o.DocumentDeleted("doc")

	if got := o.StatusOf("doc"); got != StatusIdle {
		t.Errorf("deleted document should report idle, got %v", got)
	}
	if current, total := o.Progress("doc"); current != 0 || total != 0 {
		t.Errorf("deleted document Progress = (%d, %d), want (0, 0)", current, total)
	}
	waitFor(t, func() bool { return c.Len() == 0 }, "cache entries to be cleared")
	if host.clearedCount() == 0 {
		t.Error("deleting a document should clear its highlight")
	}
}

// gateSynth blocks every synthesis call until released, to freeze a
// playback run mid-acquisition.
type gateSynth struct {
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func newGateSynth() *gateSynth {
	return &gateSynth{
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
}

func (g *gateSynth) Name() string { return "gate" }

func (g *gateSynth) Synthesize(context.Context, string) ([]byte, error) {
	g.once.Do(func() { close(g.started) })
	<-g.release
	return []byte("pcm"), nil
}

func (g *gateSynth) SynthesizeBatch(ctx context.Context, sentences []string) ([][]byte, error) {
	results := make([][]byte, len(sentences))
	for i, s := range sentences {
		results[i], _ = g.Synthesize(ctx, s)
	}
	return results, nil
}

func TestLateSynthesisResultIsDropped(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two."
	synth := newGateSynth()
	player := audio.NewMockPlayer()

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	<-synth.started

	// Delete while the first sentence is still being synthesized, then
	// let the result land.
	o.DocumentDeleted("doc")
	close(synth.release)

	time.Sleep(20 * time.Millisecond)
	if got := player.PlayedCount(); got != 0 {
		t.Errorf("late synthesis result must not be played, got %d clips", got)
	}
	if got := o.StatusOf("doc"); got != StatusIdle {
		t.Errorf("deleted document should stay idle, got %v", got)
	}
}

func TestSeekClampingWhilePaused(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two. Three."
	synth := &countingSynth{}
	player := audio.NewMockPlayer()

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return player.PlayedCount() == 1 }, "playback to start")
	o.Pause("doc")

	played := player.PlayedCount()

	// Seeking back at the first sentence stays put and stays paused.
	o.PreviousSentence(context.Background(), "doc")
	if current, _ := o.Progress("doc"); current != 0 {
		t.Errorf("seek before start moved index to %d", current)
	}
	if got := o.StatusOf("doc"); got != StatusPaused {
		t.Errorf("seeking while paused changed status to %v", got)
	}

	o.NextSentence(context.Background(), "doc")
	o.NextSentence(context.Background(), "doc")
	o.NextSentence(context.Background(), "doc")
	if current, _ := o.Progress("doc"); current != 2 {
		t.Errorf("seek past end should clamp to last sentence, got %d", current)
	}
	if got := player.PlayedCount(); got != played {
		t.Error("seeking while paused must not start playback")
	}
}

func TestPlayFromCursor(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "Hello world. This is a test!"
	host.cursors["doc"] = 15 // inside the second sentence
	synth := &countingSynth{}
	player := audio.NewMockPlayer()
	player.AutoComplete = true

	o := New(synth, player, nil, host, nil)
	if err := o.PlayFromCursor(context.Background(), "doc"); err != nil {
		t.Fatalf("PlayFromCursor failed: %v", err)
	}
	waitFor(t, func() bool { return o.StatusOf("doc") == StatusIdle }, "playback to finish")

	if got := player.PlayedCount(); got != 1 {
		t.Fatalf("played %d clips, want 1", got)
	}
	if got := string(player.Played[0].Data); got != "pcm:This is a test!" {
		t.Errorf("clip = %q, want the sentence under the cursor", got)
	}
}

func TestGeneratePrefillsAllSlots(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two. Three."
	synth := &countingSynth{}
	c := newTestCache(t)
	player := audio.NewMockPlayer()
	player.AutoComplete = true

	o := New(synth, player, c, host, nil)
	if err := o.Generate(context.Background(), "doc"); err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got := o.StatusOf("doc"); got != StatusIdle {
		t.Fatalf("status after Generate = %v, want idle", got)
	}
	if got := synth.callCount(); got != 3 {
		t.Fatalf("Generate made %d synthesis calls, want 3", got)
	}

	// Playback after generation needs no further synthesis.
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return o.StatusOf("doc") == StatusIdle }, "playback to finish")

	if got := synth.callCount(); got != 3 {
		t.Errorf("playback after Generate made %d extra synthesis calls", got-3)
	}
	if got := player.PlayedCount(); got != 3 {
		t.Errorf("played %d clips, want 3", got)
	}
}

func TestGenerateWhilePlayingIsRejected(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two."
	synth := &countingSynth{}
	player := audio.NewMockPlayer()

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return player.PlayedCount() == 1 }, "playback to start")

	err := o.Generate(context.Background(), "doc")
	if !errors.Is(err, ErrBusy) {
		t.Errorf("Generate while playing = %v, want ErrBusy", err)
	}
	if host.noticeCount() == 0 {
		t.Error("rejection should surface a user-visible notice")
	}
	if got := o.StatusOf("doc"); got != StatusPlaying {
		t.Errorf("rejected Generate must not disturb playback, status = %v", got)
	}
}

// sentenceGateSynth blocks synthesis of one specific sentence until
// released; every other sentence resolves immediately.
type sentenceGateSynth struct {
	gateOn  string
	release chan struct{}
	started chan struct{}
	once    sync.Once
}

func (g *sentenceGateSynth) Name() string { return "sentence-gate" }

func (g *sentenceGateSynth) Synthesize(_ context.Context, text string) ([]byte, error) {
	if text == g.gateOn {
		g.once.Do(func() { close(g.started) })
		<-g.release
	}
	return []byte("pcm:" + text), nil
}

func (g *sentenceGateSynth) SynthesizeBatch(ctx context.Context, sentences []string) ([][]byte, error) {
	results := make([][]byte, len(sentences))
	for i, s := range sentences {
		results[i], _ = g.Synthesize(ctx, s)
	}
	return results, nil
}

func TestSeekSilencesCurrentClip(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two. Three."
	synth := &sentenceGateSynth{
		gateOn:  "Two.",
		release: make(chan struct{}),
		started: make(chan struct{}),
	}
	player := audio.NewMockPlayer()

	o := New(synth, player, nil, host, nil)
	o.SetPreloadCount(0)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return player.PlayedCount() == 1 }, "first clip to start")
	if !player.IsPlaying() {
		t.Fatal("first clip should be sounding")
	}

	// Seek forward while the next sentence still has to be synthesized.
	o.NextSentence(context.Background(), "doc")
	<-synth.started

	if player.IsPlaying() {
		t.Error("superseded clip must be silenced while the seek target is synthesized")
	}

	close(synth.release)
	waitFor(t, func() bool { return player.PlayedCount() == 2 }, "seek target to start")
	if got := string(player.Played[1].Data); got != "pcm:Two." {
		t.Errorf("clip after seek = %q, want the next sentence", got)
	}
}

func TestPlayWhileGeneratingIsRejected(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two. Three."
	synth := newGateSynth()
	player := audio.NewMockPlayer()
	player.AutoComplete = true

	o := New(synth, player, nil, host, nil)

	generated := make(chan error, 1)
	go func() { generated <- o.Generate(context.Background(), "doc") }()
	<-synth.started

	if err := o.Play(context.Background(), "doc"); !errors.Is(err, ErrBusy) {
		t.Errorf("Play while generating = %v, want ErrBusy", err)
	}
	if host.noticeCount() == 0 {
		t.Error("rejection should surface a user-visible notice")
	}

	close(synth.release)
	if err := <-generated; err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if got := o.StatusOf("doc"); got != StatusIdle {
		t.Fatalf("status after Generate = %v, want idle", got)
	}

	// With generation done, playback proceeds over the prefilled slots.
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play after Generate failed: %v", err)
	}
	waitFor(t, func() bool { return o.StatusOf("doc") == StatusIdle }, "playback to finish")
	if got := player.PlayedCount(); got != 3 {
		t.Errorf("played %d clips, want 3", got)
	}
}

func TestEmptyDocumentIsRejected(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "   "
	synth := &countingSynth{}
	player := audio.NewMockPlayer()

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc"); !errors.Is(err, ErrEmptyDocument) {
		t.Errorf("Play on empty document = %v, want ErrEmptyDocument", err)
	}
	if host.noticeCount() == 0 {
		t.Error("empty document should surface a notice")
	}
	if got := player.PlayedCount(); got != 0 {
		t.Errorf("empty document played %d clips", got)
	}
}

func TestPositionReporting(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two."
	synth := &countingSynth{}
	player := audio.NewMockPlayer()
	player.AutoComplete = true

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return o.StatusOf("doc") == StatusIdle }, "playback to finish")

	pos, total := o.Position("doc")
	if total == 0 {
		t.Fatal("total duration should reflect the loaded clips")
	}
	if pos != total {
		t.Errorf("finished document Position = (%v, %v), want pos == total", pos, total)
	}
}

func TestPlayAfterFinishRestartsFromTop(t *testing.T) {
	host := newTestHost()
	host.texts["doc"] = "One. Two."
	synth := &countingSynth{}
	player := audio.NewMockPlayer()
	player.AutoComplete = true

	o := New(synth, player, nil, host, nil)
	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	waitFor(t, func() bool { return o.StatusOf("doc") == StatusIdle }, "first playback to finish")

	if err := o.Play(context.Background(), "doc"); err != nil {
		t.Fatalf("second Play failed: %v", err)
	}
	waitFor(t, func() bool { return player.PlayedCount() == 4 }, "replay to finish")

	if got := string(player.Played[2].Data); got != "pcm:One." {
		t.Errorf("replay should restart at the first sentence, got %q", got)
	}
}
