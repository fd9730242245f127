// Package audio plays raw PCM speech clips and reports playback
// position and completion.
package audio

import "time"

// PCM format shared by every synthesis backend.
const (
	SampleRate     = 22050
	Channels       = 1
	BytesPerSample = 2
)

// Clip is one sentence's worth of decoded audio.
type Clip struct {
	Data     []byte
	Duration time.Duration
}

// NewClip wraps raw PCM bytes, computing the duration from the fixed
// format.
func NewClip(pcm []byte) *Clip {
	return &Clip{
		Data:     pcm,
		Duration: PCMDuration(len(pcm)),
	}
}

// Empty reports whether the clip carries no audio. Empty clips stand in
// for sentences whose synthesis failed; playback treats them as
// instantly complete.
func (c *Clip) Empty() bool {
	return c == nil || len(c.Data) == 0
}

// PCMDuration converts a PCM byte length to wall-clock duration.
func PCMDuration(byteLen int) time.Duration {
	samples := byteLen / (Channels * BytesPerSample)
	return time.Duration(samples) * time.Second / SampleRate
}
