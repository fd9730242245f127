package audio

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// Player drives clip playback. Play is non-blocking; completion is
// observed on Done, which is closed only when the current clip runs to
// its natural end. Stop and a subsequent Play discard the previous
// clip's Done channel silently.
type Player interface {
	Play(clip *Clip) error
	Pause()
	Resume()
	Stop()
	Position() time.Duration
	IsPlaying() bool
	Done() <-chan struct{}
}

// endPollInterval is how often the monitor goroutine checks whether the
// device has drained the current clip.
const endPollInterval = 50 * time.Millisecond

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
)

// sharedContext returns the process-wide oto context. The underlying
// audio device can only be opened once per process.
func sharedContext() (*oto.Context, error) {
	otoOnce.Do(func() {
		op := &oto.NewContextOptions{
			SampleRate:   SampleRate,
			ChannelCount: Channels,
			Format:       oto.FormatSignedInt16LE,
		}
		ctx, ready, err := oto.NewContext(op)
		if err != nil {
			otoErr = fmt.Errorf("failed to open audio device: %w", err)
			return
		}
		<-ready
		otoCtx = ctx
	})
	return otoCtx, otoErr
}

// OtoPlayer plays clips on the system audio device.
type OtoPlayer struct {
	mu      sync.Mutex
	current *oto.Player
	clip    *Clip
	done    chan struct{}
	paused  bool
}

// NewOtoPlayer opens the audio device.
func NewOtoPlayer() (*OtoPlayer, error) {
	if _, err := sharedContext(); err != nil {
		return nil, err
	}
	return &OtoPlayer{done: closedChan()}, nil
}

// Play implements Player. Any clip still in flight is discarded without
// firing its Done channel. An empty clip completes immediately.
func (p *OtoPlayer) Play(clip *Clip) error {
	ctx, err := sharedContext()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.discardCurrent()
	p.clip = clip
	p.paused = false
	p.done = make(chan struct{})

	if clip.Empty() {
		close(p.done)
		return nil
	}

	player := ctx.NewPlayer(bytes.NewReader(clip.Data))
	player.Play()
	p.current = player

	log.Debug("clip started", "bytes", len(clip.Data), "duration", clip.Duration)
	go p.monitor(player, p.done)
	return nil
}

// monitor closes done once the device reports the clip fully drained.
// It exits silently if the clip was discarded first.
func (p *OtoPlayer) monitor(player *oto.Player, done chan struct{}) {
	ticker := time.NewTicker(endPollInterval)
	defer ticker.Stop()

	for range ticker.C {
		p.mu.Lock()
		if p.current != player {
			p.mu.Unlock()
			return
		}
		if !player.IsPlaying() && player.BufferedSize() == 0 && !p.paused {
			p.current = nil
			p.mu.Unlock()
			close(done)
			return
		}
		p.mu.Unlock()
	}
}

// Pause implements Player.
func (p *OtoPlayer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && !p.paused {
		p.current.Pause()
		p.paused = true
	}
}

// Resume implements Player.
func (p *OtoPlayer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current != nil && p.paused {
		p.current.Play()
		p.paused = false
	}
}

// Stop implements Player. The discarded clip's Done channel never
// fires.
func (p *OtoPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.discardCurrent()
}

// discardCurrent tears down the active device player. Must be called
// with the lock held.
func (p *OtoPlayer) discardCurrent() {
	if p.current != nil {
		if err := p.current.Close(); err != nil {
			log.Debug("error closing audio player", "error", err)
		}
		p.current = nil
	}
	p.clip = nil
	p.paused = false
}

// Position implements Player, derived from how much of the clip the
// device has consumed.
func (p *OtoPlayer) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.current == nil || p.clip == nil {
		return 0
	}
	consumed := len(p.clip.Data) - p.current.BufferedSize()
	if consumed < 0 {
		consumed = 0
	}
	return PCMDuration(consumed)
}

// IsPlaying implements Player.
func (p *OtoPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil && !p.paused
}

// Done implements Player.
func (p *OtoPlayer) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
