// Package speech abstracts text-to-speech synthesis behind a small
// capability interface with interchangeable remote and on-device
// implementations.
package speech

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/log"
)

// Provider names accepted in configuration.
const (
	ProviderElevenLabs   = "elevenlabs"
	ProviderUnrealSpeech = "unrealspeech"
	ProviderNative       = "native"
)

var (
	// ErrUnknownProvider indicates an unrecognized provider name.
	ErrUnknownProvider = errors.New("unknown speech provider")
	// ErrMissingAPIKey indicates a remote provider was selected without
	// credentials.
	ErrMissingAPIKey = errors.New("missing API key")
)

// Synthesizer converts text into audio bytes. Implementations must
// short-circuit empty input to a zero-length result without doing any
// work, so empty sentences never cost a network call.
type Synthesizer interface {
	// Name returns the provider name for logging and cache keying.
	Name() string

	// Synthesize converts one sentence to audio bytes. Any failure is a
	// hard failure for that sentence only.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// SynthesizeBatch converts sentences in order. A failed sentence is
	// substituted with an empty placeholder so the result stays aligned
	// with the input; the batch itself never fails part-way.
	SynthesizeBatch(ctx context.Context, sentences []string) ([][]byte, error)
}

// Config selects and parameterizes a provider. A Synthesizer is built
// once per document-level request and held for that request's lifetime.
type Config struct {
	Provider           string
	ElevenLabsAPIKey   string
	UnrealSpeechAPIKey string
	Voice              string
	Model              string
}

// New builds a Synthesizer for the configured provider. Configuration
// errors are reported here, before any network call is made.
func New(cfg Config) (Synthesizer, error) {
	switch cfg.Provider {
	case ProviderElevenLabs:
		if cfg.ElevenLabsAPIKey == "" {
			return nil, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, cfg.Provider)
		}
		return NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.Voice, cfg.Model), nil
	case ProviderUnrealSpeech:
		if cfg.UnrealSpeechAPIKey == "" {
			return nil, fmt.Errorf("%w for provider %s", ErrMissingAPIKey, cfg.Provider)
		}
		return NewUnrealSpeech(cfg.UnrealSpeechAPIKey, cfg.Voice), nil
	case ProviderNative:
		return NewNative()
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Provider)
	}
}

// synthesizeSequential is the default batch implementation: per-sentence
// calls preserving order. Failures are logged and replaced with empty
// placeholders so downstream indexing stays aligned.
func synthesizeSequential(ctx context.Context, s Synthesizer, sentences []string) ([][]byte, error) {
	results := make([][]byte, len(sentences))
	for i, sentence := range sentences {
		audio, err := s.Synthesize(ctx, sentence)
		if err != nil {
			log.Error("synthesis failed, substituting empty audio",
				"provider", s.Name(), "index", i, "error", err)
			results[i] = []byte{}
			continue
		}
		results[i] = audio
	}
	return results, nil
}
