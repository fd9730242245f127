package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	elevenLabsEndpoint   = "https://api.elevenlabs.io/v1/text-to-speech"
	unrealSpeechEndpoint = "https://api.v7.unrealspeech.com/stream"

	defaultElevenLabsVoice = "9BWtsMINqrJLrRacOk9x"
	defaultElevenLabsModel = "eleven_multilingual_v2"
	defaultUnrealVoice     = "Scarlett"

	remoteTimeout = 30 * time.Second
)

// ElevenLabs synthesizes speech through the ElevenLabs HTTP API. One
// authenticated request per sentence; any non-2xx response is a hard
// failure for that sentence.
type ElevenLabs struct {
	apiKey   string
	voice    string
	model    string
	endpoint string
	client   *http.Client
}

// NewElevenLabs creates an ElevenLabs backend. Empty voice or model fall
// back to the service defaults.
func NewElevenLabs(apiKey, voice, model string) *ElevenLabs {
	if voice == "" {
		voice = defaultElevenLabsVoice
	}
	if model == "" {
		model = defaultElevenLabsModel
	}
	return &ElevenLabs{
		apiKey:   apiKey,
		voice:    voice,
		model:    model,
		endpoint: elevenLabsEndpoint,
		client:   &http.Client{Timeout: remoteTimeout},
	}
}

// Name implements Synthesizer.
func (e *ElevenLabs) Name() string { return ProviderElevenLabs }

type elevenLabsRequest struct {
	Text          string             `json:"text"`
	ModelID       string             `json:"model_id"`
	VoiceSettings elevenLabsSettings `json:"voice_settings"`
}

type elevenLabsSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize implements Synthesizer.
func (e *ElevenLabs) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return []byte{}, nil
	}

	body, err := json.Marshal(elevenLabsRequest{
		Text:    text,
		ModelID: e.model,
		VoiceSettings: elevenLabsSettings{
			Stability:       0.5,
			SimilarityBoost: 0.5,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	url := fmt.Sprintf("%s/%s", e.endpoint, e.voice)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("xi-api-key", e.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return doAudioRequest(e.client, req, e.Name(), len(text))
}

// SynthesizeBatch implements Synthesizer.
func (e *ElevenLabs) SynthesizeBatch(ctx context.Context, sentences []string) ([][]byte, error) {
	return synthesizeSequential(ctx, e, sentences)
}

// UnrealSpeech synthesizes speech through the Unreal Speech HTTP API.
type UnrealSpeech struct {
	apiKey   string
	voice    string
	endpoint string
	client   *http.Client
}

// NewUnrealSpeech creates an Unreal Speech backend.
func NewUnrealSpeech(apiKey, voice string) *UnrealSpeech {
	if voice == "" {
		voice = defaultUnrealVoice
	}
	return &UnrealSpeech{
		apiKey:   apiKey,
		voice:    voice,
		endpoint: unrealSpeechEndpoint,
		client:   &http.Client{Timeout: remoteTimeout},
	}
}

// Name implements Synthesizer.
func (u *UnrealSpeech) Name() string { return ProviderUnrealSpeech }

type unrealSpeechRequest struct {
	Text    string `json:"Text"`
	VoiceID string `json:"VoiceId"`
}

// Synthesize implements Synthesizer.
func (u *UnrealSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return []byte{}, nil
	}

	body, err := json.Marshal(unrealSpeechRequest{Text: text, VoiceID: u.voice})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+u.apiKey)
	req.Header.Set("Content-Type", "application/json")

	return doAudioRequest(u.client, req, u.Name(), len(text))
}

// SynthesizeBatch implements Synthesizer.
func (u *UnrealSpeech) SynthesizeBatch(ctx context.Context, sentences []string) ([][]byte, error) {
	return synthesizeSequential(ctx, u, sentences)
}

// doAudioRequest executes a synthesis request and returns the raw audio
// bytes. Non-2xx responses are failures for the sentence being
// synthesized.
func doAudioRequest(client *http.Client, req *http.Request, provider string, textLen int) ([]byte, error) {
	requestID := uuid.NewString()
	start := time.Now()
	log.Debug("synthesis request", "provider", provider, "request", requestID, "textLen", textLen)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("synthesis request returned %s", resp.Status)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio response: %w", err)
	}

	log.Debug("synthesis response", "provider", provider, "request", requestID,
		"audioBytes", len(audio), "duration", time.Since(start))
	return audio, nil
}
