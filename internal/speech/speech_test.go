package speech

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

func TestNewProviderSelection(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "elevenlabs with key",
			cfg:     Config{Provider: ProviderElevenLabs, ElevenLabsAPIKey: "key"},
			wantErr: nil,
		},
		{
			name:    "elevenlabs without key",
			cfg:     Config{Provider: ProviderElevenLabs},
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "unrealspeech with key",
			cfg:     Config{Provider: ProviderUnrealSpeech, UnrealSpeechAPIKey: "key"},
			wantErr: nil,
		},
		{
			name:    "unrealspeech without key",
			cfg:     Config{Provider: ProviderUnrealSpeech},
			wantErr: ErrMissingAPIKey,
		},
		{
			name:    "unknown provider",
			cfg:     Config{Provider: "clippy"},
			wantErr: ErrUnknownProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.cfg)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error: %v", err)
			}
			if s.Name() != tt.cfg.Provider {
				t.Errorf("Name() = %q, want %q", s.Name(), tt.cfg.Provider)
			}
		})
	}
}

func TestElevenLabsSynthesize(t *testing.T) {
	var calls atomic.Int64
	var gotKey, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		gotKey = r.Header.Get("xi-api-key")
		gotPath = r.URL.Path
		w.Write([]byte("audio-bytes")) //nolint:errcheck
	}))
	defer server.Close()

	e := NewElevenLabs("secret", "voice-1", "model-1")
	e.endpoint = server.URL

	audio, err := e.Synthesize(context.Background(), "Hello world.")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "audio-bytes" {
		t.Errorf("audio = %q", audio)
	}
	if gotKey != "secret" {
		t.Errorf("xi-api-key header = %q", gotKey)
	}
	if gotPath != "/voice-1" {
		t.Errorf("request path = %q, want /voice-1", gotPath)
	}
	if calls.Load() != 1 {
		t.Errorf("backend called %d times, want 1", calls.Load())
	}
}

func TestSynthesizeEmptyTextShortCircuits(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	e := NewElevenLabs("secret", "", "")
	e.endpoint = server.URL

	audio, err := e.Synthesize(context.Background(), "")
	if err != nil {
		t.Fatalf("Synthesize(\"\") failed: %v", err)
	}
	if len(audio) != 0 {
		t.Errorf("empty input should yield zero-length audio, got %d bytes", len(audio))
	}
	if calls.Load() != 0 {
		t.Errorf("empty input made %d network calls, want 0", calls.Load())
	}
}

func TestSynthesizeNonSuccessIsFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	e := NewElevenLabs("secret", "", "")
	e.endpoint = server.URL

	if _, err := e.Synthesize(context.Background(), "Hello."); err == nil {
		t.Error("non-2xx response should be an error")
	}
}

func TestUnrealSpeechSynthesize(t *testing.T) {
	var gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte("unreal-audio")) //nolint:errcheck
	}))
	defer server.Close()

	u := NewUnrealSpeech("secret", "")
	u.endpoint = server.URL

	audio, err := u.Synthesize(context.Background(), "Hello.")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if string(audio) != "unreal-audio" {
		t.Errorf("audio = %q", audio)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization header = %q", gotAuth)
	}
}

// flakySynthesizer fails for one specific input and succeeds otherwise.
type flakySynthesizer struct {
	failOn string
}

func (f *flakySynthesizer) Name() string { return "flaky" }

func (f *flakySynthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	if text == f.failOn {
		return nil, errors.New("synthesis exploded")
	}
	return []byte("ok:" + text), nil
}

func (f *flakySynthesizer) SynthesizeBatch(ctx context.Context, sentences []string) ([][]byte, error) {
	return synthesizeSequential(ctx, f, sentences)
}

func TestSynthesizeBatchSubstitutesPlaceholders(t *testing.T) {
	f := &flakySynthesizer{failOn: "bad"}

	results, err := f.SynthesizeBatch(context.Background(), []string{"one", "bad", "three"})
	if err != nil {
		t.Fatalf("SynthesizeBatch failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (alignment must be preserved)", len(results))
	}
	if string(results[0]) != "ok:one" || string(results[2]) != "ok:three" {
		t.Errorf("successful sentences mangled: %q, %q", results[0], results[2])
	}
	if len(results[1]) != 0 {
		t.Errorf("failed sentence should be an empty placeholder, got %q", results[1])
	}
}
