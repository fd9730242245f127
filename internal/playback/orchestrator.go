package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/lectern-audio/lectern/internal/audio"
	"github.com/lectern-audio/lectern/internal/cache"
	"github.com/lectern-audio/lectern/internal/sentence"
	"github.com/lectern-audio/lectern/internal/speech"
)

// DefaultPreloadCount is how many upcoming sentences are synthesized
// ahead of the one currently playing.
const DefaultPreloadCount = 1

var (
	// ErrBusy indicates a generation request for a document that is
	// already generating or playing.
	ErrBusy = errors.New("speech operation already in progress")
	// ErrEmptyDocument indicates a speech request for a document with no
	// readable text.
	ErrEmptyDocument = errors.New("document is empty")
)

// Host is the document environment playback runs inside: it resolves
// document text, cursor position, and receives highlight updates.
// Implementations must not call back into the Orchestrator from these
// methods.
type Host interface {
	ActiveDocumentID() string
	DocumentText(docID string) (string, error)
	CursorOffset(docID string) int
	SetHighlight(docID string, start, end int)
	ClearHighlight(docID string)
	Notify(message string)
}

// Surface receives playback status updates for display. May be nil.
type Surface interface {
	UpdateForDocument(docID string, status Status, index, total int)
}

// Orchestrator sequences sentence playback per document. At most one
// document is audible at a time; starting or focusing one pauses the
// others.
type Orchestrator struct {
	mu           sync.Mutex
	store        *Store
	cache        *cache.Cache
	synth        speech.Synthesizer
	player       audio.Player
	host         Host
	surface      Surface
	preloadCount int
}

// New wires an orchestrator. cache and surface may be nil.
func New(synth speech.Synthesizer, player audio.Player, c *cache.Cache, host Host, surface Surface) *Orchestrator {
	o := &Orchestrator{
		store:        NewStore(),
		cache:        c,
		synth:        synth,
		player:       player,
		host:         host,
		surface:      surface,
		preloadCount: DefaultPreloadCount,
	}
	return o
}

// SetPreloadCount overrides how many sentences are synthesized ahead.
func (o *Orchestrator) SetPreloadCount(n int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if n >= 0 {
		o.preloadCount = n
	}
}

// Generate segments the document and synthesizes audio for every
// sentence up front, leaving the document idle and fully loaded.
// Rejected while the document is already generating or playing.
func (o *Orchestrator) Generate(ctx context.Context, docID string) error {
	o.mu.Lock()
	if existing := o.store.Get(docID); existing != nil &&
		(existing.Status == StatusGenerating || existing.Status == StatusPlaying) {
		o.mu.Unlock()
		o.host.Notify("Speech is already in progress for " + docID)
		return fmt.Errorf("%w for %s", ErrBusy, docID)
	}
	o.mu.Unlock()

	st, err := o.resetState(docID)
	if err != nil {
		return err
	}
	if emptyDocument(st) {
		o.host.Notify("Nothing to read in " + docID)
		return fmt.Errorf("%w: %s", ErrEmptyDocument, docID)
	}

	o.mu.Lock()
	st.Status = StatusGenerating
	st.Loading = true
	o.notifySurface(st)
	sentences := append([]string(nil), st.Sentences...)
	o.mu.Unlock()

	log.Info("generating audio", "doc", docID, "sentences", len(sentences))
	results, err := o.synth.SynthesizeBatch(ctx, sentences)
	if err != nil {
		o.mu.Lock()
		if st.Status == StatusGenerating {
			st.Status = StatusIdle
		}
		st.Loading = false
		o.notifySurface(st)
		o.mu.Unlock()
		return fmt.Errorf("generation failed for %s: %w", docID, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store.Get(docID) != st {
		// Document deleted mid-generation; drop the late results.
		log.Debug("discarding generation result for removed document", "doc", docID)
		return nil
	}
	for i, pcm := range results {
		if i >= len(st.Slots) {
			break
		}
		if len(pcm) > 0 && o.cache != nil {
			o.cache.Store(st.Sentences[i], docID, pcm)
		}
		st.Slots[i] = audio.NewClip(pcm)
	}
	// A run started after generation ended owns the status now.
	if st.Status == StatusGenerating {
		st.Status = StatusIdle
	}
	st.Loading = false
	o.notifySurface(st)
	return nil
}

// Play starts or restarts playback for docID from its current sentence.
// Other playing documents are paused first. Rejected while the document
// is generating.
func (o *Orchestrator) Play(ctx context.Context, docID string) error {
	st, err := o.ensureState(docID)
	if err != nil {
		return err
	}
	if emptyDocument(st) {
		o.host.Notify("Nothing to read in " + docID)
		return fmt.Errorf("%w: %s", ErrEmptyDocument, docID)
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if st.Status == StatusGenerating {
		o.host.Notify("Speech is already in progress for " + docID)
		return fmt.Errorf("%w for %s", ErrBusy, docID)
	}
	o.pauseOthers(docID)
	if st.CurrentIndex >= len(st.Sentences) {
		// A finished document starts over.
		st.CurrentIndex = 0
	}
	o.startRun(ctx, st)
	return nil
}

// Pause halts playback of docID at the current sentence.
func (o *Orchestrator) Pause(docID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pauseLocked(o.store.Get(docID))
}

// PauseAll pauses every playing document.
func (o *Orchestrator) PauseAll() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.store.ForEach(func(st *DocumentState) {
		o.pauseLocked(st)
	})
}

// Resume continues playback of a paused document from its current
// sentence. The sentence restarts from its beginning.
func (o *Orchestrator) Resume(ctx context.Context, docID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Get(docID)
	if st == nil || st.Status != StatusPaused {
		return
	}
	o.pauseOthers(docID)
	o.startRun(ctx, st)
}

// TogglePlayPause pauses docID if it is playing, resumes it if paused,
// and starts playback otherwise.
func (o *Orchestrator) TogglePlayPause(ctx context.Context, docID string) error {
	o.mu.Lock()
	st := o.store.Get(docID)
	if st != nil {
		switch st.Status {
		case StatusPlaying:
			o.pauseLocked(st)
			o.mu.Unlock()
			return nil
		case StatusPaused:
			o.pauseOthers(docID)
			o.startRun(ctx, st)
			o.mu.Unlock()
			return nil
		case StatusGenerating:
			o.mu.Unlock()
			return nil
		}
	}
	o.mu.Unlock()
	return o.Play(ctx, docID)
}

// PlayFromIndex seeks to the given sentence index, clamped to the
// document, and starts playing from it.
func (o *Orchestrator) PlayFromIndex(ctx context.Context, docID string, index int) error {
	st, err := o.ensureState(docID)
	if err != nil {
		return err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	if st.Status == StatusGenerating {
		o.host.Notify("Speech is already in progress for " + docID)
		return fmt.Errorf("%w for %s", ErrBusy, docID)
	}
	o.pauseOthers(docID)
	st.CurrentIndex = clamp(index, 0, len(st.Sentences)-1)
	o.startRun(ctx, st)
	return nil
}

// PlayFromCursor starts playback at the sentence containing the host's
// cursor position for docID.
func (o *Orchestrator) PlayFromCursor(ctx context.Context, docID string) error {
	st, err := o.ensureState(docID)
	if err != nil {
		return err
	}
	offset := o.host.CursorOffset(docID)
	index := sentence.IndexAtOffset(st.Text, st.Sentences, offset)
	return o.PlayFromIndex(ctx, docID, index)
}

// NextSentence moves one sentence forward. A playing document keeps
// playing from the new position; a paused document just moves.
func (o *Orchestrator) NextSentence(ctx context.Context, docID string) {
	o.seekRelative(ctx, docID, 1)
}

// PreviousSentence moves one sentence back. A playing document keeps
// playing from the new position; a paused document just moves.
func (o *Orchestrator) PreviousSentence(ctx context.Context, docID string) {
	o.seekRelative(ctx, docID, -1)
}

func (o *Orchestrator) seekRelative(ctx context.Context, docID string, delta int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Get(docID)
	if st == nil || len(st.Sentences) == 0 {
		return
	}

	st.CurrentIndex = clamp(st.CurrentIndex+delta, 0, len(st.Sentences)-1)
	switch st.Status {
	case StatusPlaying:
		o.startRun(ctx, st)
	case StatusPaused:
		// Position moves; playback stays paused.
		o.notifySurface(st)
	}
}

// Stop halts playback of docID and rewinds it to the first sentence.
func (o *Orchestrator) Stop(docID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Get(docID)
	if st == nil {
		return
	}
	o.haltRun(st)
	st.Status = StatusIdle
	st.CurrentIndex = 0
	o.player.Stop()
	o.host.ClearHighlight(docID)
	o.notifySurface(st)
}

// FocusChanged records that docID became the active document. Any other
// document that was playing is paused.
func (o *Orchestrator) FocusChanged(docID string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pauseOthers(docID)
}

// DocumentDeleted discards all state and cached audio for docID. Any
// in-flight synthesis result for it is dropped when it lands.
func (o *Orchestrator) DocumentDeleted(docID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Get(docID)
	if st != nil {
		o.haltRun(st)
		if st.Status == StatusPlaying {
			o.player.Stop()
		}
		o.store.Delete(docID)
		o.host.ClearHighlight(docID)
	}
	if o.cache != nil {
		o.cache.ClearForDocument(docID)
	}
	log.Debug("document state discarded", "doc", docID)
}

// Progress returns the current sentence index and sentence count for
// docID. A document past its last sentence reports index == total.
func (o *Orchestrator) Progress(docID string) (current, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Get(docID)
	if st == nil {
		return 0, 0
	}
	return st.CurrentIndex, len(st.Sentences)
}

// Loading reports whether audio for docID's current sentence is being
// fetched.
func (o *Orchestrator) Loading(docID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Get(docID)
	return st != nil && st.Loading
}

// Position returns the elapsed and total playback time for docID.
// Slots not yet synthesized contribute nothing, so the total grows as
// sentences are discovered. A finished document reports pos == total.
func (o *Orchestrator) Position(docID string) (pos, total time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Get(docID)
	if st == nil {
		return 0, 0
	}
	for i, clip := range st.Slots {
		if clip == nil {
			continue
		}
		total += clip.Duration
		if i < st.CurrentIndex {
			pos += clip.Duration
		}
	}
	if st.CurrentIndex >= len(st.Sentences) {
		return total, total
	}
	if st.Status == StatusPlaying {
		pos += o.player.Position()
	}
	if pos > total {
		pos = total
	}
	return pos, total
}

// StatusOf returns the playback status for docID.
func (o *Orchestrator) StatusOf(docID string) Status {
	o.mu.Lock()
	defer o.mu.Unlock()

	st := o.store.Get(docID)
	if st == nil {
		return StatusIdle
	}
	return st.Status
}

// ensureState returns the tracked state for docID, segmenting the
// document text on first use.
func (o *Orchestrator) ensureState(docID string) (*DocumentState, error) {
	o.mu.Lock()
	st := o.store.Get(docID)
	o.mu.Unlock()
	if st != nil {
		return st, nil
	}
	return o.resetState(docID)
}

// resetState re-reads the document and replaces any existing state.
func (o *Orchestrator) resetState(docID string) (*DocumentState, error) {
	text, err := o.host.DocumentText(docID)
	if err != nil {
		return nil, fmt.Errorf("failed to read document %s: %w", docID, err)
	}
	sentences := sentence.Segment(text)

	o.mu.Lock()
	defer o.mu.Unlock()

	if old := o.store.Get(docID); old != nil {
		o.haltRun(old)
	}
	st := newDocumentState(docID, text, sentences)
	o.store.Put(st)
	log.Debug("document segmented", "doc", docID, "sentences", len(sentences))
	return st, nil
}

// pauseOthers pauses every playing document except docID. Must be
// called with the lock held.
func (o *Orchestrator) pauseOthers(docID string) {
	o.store.ForEach(func(st *DocumentState) {
		if st.DocID != docID {
			o.pauseLocked(st)
		}
	})
}

// pauseLocked pauses one document. Must be called with the lock held.
func (o *Orchestrator) pauseLocked(st *DocumentState) {
	if st == nil || st.Status != StatusPlaying {
		return
	}
	o.haltRun(st)
	st.Status = StatusPaused
	o.player.Pause()
	o.notifySurface(st)
	log.Debug("paused", "doc", st.DocID, "sentence", st.CurrentIndex)
}

// startRun aborts any current run for st and launches a fresh driver
// from st.CurrentIndex. Any clip still sounding belongs to the
// superseded run and is silenced before the new driver starts. Must be
// called with the lock held.
func (o *Orchestrator) startRun(ctx context.Context, st *DocumentState) {
	o.haltRun(st)
	o.player.Stop()
	st.Status = StatusPlaying
	st.interrupt = make(chan struct{})
	o.notifySurface(st)
	go o.drive(ctx, st, st.interrupt)
}

// haltRun signals the active driver, if any, to exit. Must be called
// with the lock held.
func (o *Orchestrator) haltRun(st *DocumentState) {
	if st.interrupt != nil {
		close(st.interrupt)
		st.interrupt = nil
	}
}

// drive is the playback loop for one run of one document: acquire the
// current sentence's audio, play it, preload ahead, and advance until
// the document ends or the run is interrupted. Exactly one drive
// goroutine is live per run; interrupt tears it down between sentences
// or mid-clip.
func (o *Orchestrator) drive(ctx context.Context, st *DocumentState, interrupt chan struct{}) {
	for {
		o.mu.Lock()
		if !o.runLive(st, interrupt) {
			o.mu.Unlock()
			return
		}
		index := st.CurrentIndex
		if index >= len(st.Sentences) {
			// Natural end of document.
			st.Status = StatusIdle
			st.interrupt = nil
			o.host.ClearHighlight(st.DocID)
			o.notifySurface(st)
			o.mu.Unlock()
			log.Info("playback finished", "doc", st.DocID)
			return
		}
		text := st.Sentences[index]
		clip := st.Slots[index]
		o.mu.Unlock()

		if clip == nil {
			o.setLoading(st, true)
			clip = o.acquire(ctx, st, interrupt, index)
			o.setLoading(st, false)
			if clip == nil {
				// Run ended while synthesizing.
				return
			}
		}

		if clip.Empty() {
			// Unsynthesizable sentence; skip it without stopping the run.
			log.Warn("skipping sentence with no audio", "doc", st.DocID, "sentence", index)
			if !o.advance(st, interrupt, index) {
				return
			}
			continue
		}

		o.mu.Lock()
		if !o.runLive(st, interrupt) {
			o.mu.Unlock()
			return
		}
		if start, end, ok := sentence.Position(st.Text, text); ok {
			o.host.SetHighlight(st.DocID, start, end)
		}
		if err := o.player.Play(clip); err != nil {
			log.Error("failed to start clip, skipping sentence",
				"doc", st.DocID, "sentence", index, "error", err)
			o.mu.Unlock()
			if !o.advance(st, interrupt, index) {
				return
			}
			continue
		}
		done := o.player.Done()
		o.notifySurface(st)
		o.mu.Unlock()

		go o.preload(ctx, st, interrupt, index+1)

		select {
		case <-done:
			if !o.advance(st, interrupt, index) {
				return
			}
		case <-interrupt:
			return
		}
	}
}

// runLive reports whether st still owns this run. Must be called with
// the lock held.
func (o *Orchestrator) runLive(st *DocumentState, interrupt chan struct{}) bool {
	return o.store.Get(st.DocID) == st && st.Status == StatusPlaying && st.interrupt == interrupt
}

// advance moves the run to the next sentence. Returns false when the
// run was superseded.
func (o *Orchestrator) advance(st *DocumentState, interrupt chan struct{}, played int) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.runLive(st, interrupt) {
		return false
	}
	if st.CurrentIndex == played {
		st.CurrentIndex++
	}
	return true
}

// acquire fetches or synthesizes the clip for one sentence and fills
// its slot. Returns nil when the run ended while synthesizing, or an
// empty clip when synthesis failed.
func (o *Orchestrator) acquire(ctx context.Context, st *DocumentState, interrupt chan struct{}, index int) *audio.Clip {
	pcm := o.fetchAudio(ctx, st, index)
	clip := audio.NewClip(pcm)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store.Get(st.DocID) != st {
		// Document deleted while synthesizing; drop the result.
		return nil
	}
	if index < len(st.Slots) {
		st.Slots[index] = clip
	}
	if st.Status != StatusPlaying || st.interrupt != interrupt {
		return nil
	}
	return clip
}

// fetchAudio resolves one sentence's audio through the cache, falling
// back to synthesis. Failures yield empty audio so the caller can skip.
// Results for a document deleted mid-synthesis are never cached.
func (o *Orchestrator) fetchAudio(ctx context.Context, st *DocumentState, index int) []byte {
	text := st.Sentences[index]
	if o.cache != nil {
		if pcm, ok := o.cache.Lookup(text, st.DocID); ok {
			return pcm
		}
	}

	pcm, err := o.synth.Synthesize(ctx, text)
	if err != nil {
		log.Error("synthesis failed", "doc", st.DocID, "sentence", index, "error", err)
		return nil
	}
	if len(pcm) > 0 && o.cache != nil && o.store.Get(st.DocID) == st {
		o.cache.Store(text, st.DocID, pcm)
	}
	return pcm
}

// preload fills up to preloadCount empty slots starting at from, so
// upcoming sentences are ready before their turn. Runs concurrently
// with the clip being played; only empty slots are written, so a
// result that lands after on-demand acquisition is discarded.
func (o *Orchestrator) preload(ctx context.Context, st *DocumentState, interrupt chan struct{}, from int) {
	o.mu.Lock()
	count := o.preloadCount
	var work []int
	for i := from; i < from+count && i < len(st.Sentences); i++ {
		if o.runLive(st, interrupt) && st.Slots[i] == nil {
			work = append(work, i)
		}
	}
	o.mu.Unlock()

	for _, i := range work {
		pcm := o.fetchAudio(ctx, st, i)
		o.mu.Lock()
		if o.store.Get(st.DocID) == st && st.Slots[i] == nil {
			st.Slots[i] = audio.NewClip(pcm)
		}
		o.mu.Unlock()
	}
}

// notifySurface pushes a status update. Must be called with the lock
// held.
func (o *Orchestrator) notifySurface(st *DocumentState) {
	if o.surface != nil {
		o.surface.UpdateForDocument(st.DocID, st.Status, st.CurrentIndex, len(st.Sentences))
	}
}

func (o *Orchestrator) setLoading(st *DocumentState, loading bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.store.Get(st.DocID) != st {
		return
	}
	st.Loading = loading
	o.notifySurface(st)
}

// emptyDocument reports whether segmentation found nothing worth
// speaking.
func emptyDocument(st *DocumentState) bool {
	for _, s := range st.Sentences {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
