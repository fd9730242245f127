package speech

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
)

const nativeTimeout = 60 * time.Second

// wavHeaderSize is the canonical RIFF/WAVE header length produced by the
// platform synthesizers we invoke.
const wavHeaderSize = 44

// Native synthesizes speech with the host platform's built-in speech
// capability, captured into an audio buffer by rendering to a temporary
// file and reading it back.
type Native struct {
	binary string
	args   func(text, outPath string) []string
}

// NewNative creates the on-device backend. It fails fast when the
// platform exposes no speech capability instead of silently producing
// nothing.
func NewNative() (*Native, error) {
	switch runtime.GOOS {
	case "darwin":
		path, err := exec.LookPath("say")
		if err != nil {
			return nil, fmt.Errorf("native speech unavailable: %w", err)
		}
		return &Native{
			binary: path,
			args: func(text, outPath string) []string {
				return []string{"-o", outPath, "--data-format=LEI16@22050", "--file-format=WAVE", text}
			},
		}, nil
	case "linux":
		path, err := exec.LookPath("espeak")
		if err != nil {
			return nil, fmt.Errorf("native speech unavailable: %w", err)
		}
		return &Native{
			binary: path,
			args: func(text, outPath string) []string {
				return []string{"-w", outPath, text}
			},
		}, nil
	default:
		return nil, fmt.Errorf("native speech unavailable on %s", runtime.GOOS)
	}
}

// Name implements Synthesizer.
func (n *Native) Name() string { return ProviderNative }

// Synthesize implements Synthesizer. The platform command renders the
// sentence to a temporary WAV file; the RIFF header is stripped so the
// result is raw 16-bit PCM like the remote backends produce.
func (n *Native) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if text == "" {
		return []byte{}, nil
	}

	dir, err := os.MkdirTemp("", "lectern-native-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	defer os.RemoveAll(dir) //nolint:errcheck

	outPath := filepath.Join(dir, "sentence.wav")

	ctx, cancel := context.WithTimeout(ctx, nativeTimeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, n.binary, n.args(text, outPath)...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return nil, fmt.Errorf("native synthesis failed: %w (output: %s)", err, output)
	}

	data, err := os.ReadFile(outPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read captured audio: %w", err)
	}
	if len(data) <= wavHeaderSize {
		return nil, fmt.Errorf("native synthesis produced no audio (%d bytes)", len(data))
	}

	log.Debug("native synthesis complete", "binary", n.binary,
		"textLen", len(text), "audioBytes", len(data)-wavHeaderSize, "duration", time.Since(start))
	return data[wavHeaderSize:], nil
}

// SynthesizeBatch implements Synthesizer.
func (n *Native) SynthesizeBatch(ctx context.Context, sentences []string) ([][]byte, error) {
	return synthesizeSequential(ctx, n, sentences)
}
