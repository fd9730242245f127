// Package config assembles runtime settings from environment variables
// and the viper-backed config file, env first, file keys overriding.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/lectern-audio/lectern/internal/speech"
)

// Config is the full runtime configuration.
type Config struct {
	Provider           string `env:"LECTERN_PROVIDER" envDefault:"native"`
	ElevenLabsAPIKey   string `env:"LECTERN_ELEVENLABS_API_KEY"`
	UnrealSpeechAPIKey string `env:"LECTERN_UNREALSPEECH_API_KEY"`
	Voice              string `env:"LECTERN_VOICE"`
	Model              string `env:"LECTERN_MODEL"`

	CacheEnabled    bool   `env:"LECTERN_CACHE_ENABLED" envDefault:"true"`
	CacheMaxEntries int    `env:"LECTERN_CACHE_MAX_ENTRIES" envDefault:"100"`
	CacheMaxAgeDays int    `env:"LECTERN_CACHE_MAX_AGE_DAYS" envDefault:"7"`
	CachePath       string `env:"LECTERN_CACHE_PATH"`

	PreloadCount int  `env:"LECTERN_PRELOAD_COUNT" envDefault:"1"`
	Debug        bool `env:"LECTERN_DEBUG"`
}

// SetDefaults seeds viper with the documented default values.
func SetDefaults() {
	viper.SetDefault("provider", "native")
	viper.SetDefault("voice", "")
	viper.SetDefault("model", "")
	viper.SetDefault("elevenlabs.api_key", "")
	viper.SetDefault("unrealspeech.api_key", "")
	viper.SetDefault("cache.enabled", true)
	viper.SetDefault("cache.max_entries", 100)
	viper.SetDefault("cache.max_age_days", 7)
	viper.SetDefault("cache.path", "")
	viper.SetDefault("preload", 1)
}

// Load reads configuration from the environment, then applies any keys
// explicitly set in the config file.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, fmt.Errorf("error parsing config: %w", err)
	}
	applyViper(&cfg)

	if cfg.CacheMaxEntries < 0 {
		return Config{}, fmt.Errorf("cache.max_entries must not be negative, got %d", cfg.CacheMaxEntries)
	}
	if cfg.CacheMaxAgeDays < 0 {
		return Config{}, fmt.Errorf("cache.max_age_days must not be negative, got %d", cfg.CacheMaxAgeDays)
	}
	if cfg.PreloadCount < 0 {
		return Config{}, fmt.Errorf("preload must not be negative, got %d", cfg.PreloadCount)
	}
	return cfg, nil
}

// applyViper overrides cfg with explicitly set config file keys.
func applyViper(cfg *Config) {
	if viper.IsSet("provider") {
		cfg.Provider = viper.GetString("provider")
	}
	if viper.IsSet("voice") {
		cfg.Voice = viper.GetString("voice")
	}
	if viper.IsSet("model") {
		cfg.Model = viper.GetString("model")
	}
	if viper.IsSet("elevenlabs.api_key") {
		cfg.ElevenLabsAPIKey = viper.GetString("elevenlabs.api_key")
	}
	if viper.IsSet("unrealspeech.api_key") {
		cfg.UnrealSpeechAPIKey = viper.GetString("unrealspeech.api_key")
	}
	if viper.IsSet("cache.enabled") {
		cfg.CacheEnabled = viper.GetBool("cache.enabled")
	}
	if viper.IsSet("cache.max_entries") {
		cfg.CacheMaxEntries = viper.GetInt("cache.max_entries")
	}
	if viper.IsSet("cache.max_age_days") {
		cfg.CacheMaxAgeDays = viper.GetInt("cache.max_age_days")
	}
	if viper.IsSet("cache.path") {
		cfg.CachePath = viper.GetString("cache.path")
	}
	if viper.IsSet("preload") {
		cfg.PreloadCount = viper.GetInt("preload")
	}
}

// CacheMaxAge converts the configured day count to a duration.
func (c Config) CacheMaxAge() time.Duration {
	return time.Duration(c.CacheMaxAgeDays) * 24 * time.Hour
}

// Speech maps the configuration onto a synthesizer config.
func (c Config) Speech() speech.Config {
	return speech.Config{
		Provider:           c.Provider,
		ElevenLabsAPIKey:   c.ElevenLabsAPIKey,
		UnrealSpeechAPIKey: c.UnrealSpeechAPIKey,
		Voice:              c.Voice,
		Model:              c.Model,
	}
}

// ResolveCachePath returns the configured cache snapshot location,
// falling back to the per-user data directory.
func (c Config) ResolveCachePath() (string, error) {
	if c.CachePath != "" {
		return c.CachePath, nil
	}
	scope := gap.NewScope(gap.User, "lectern")
	path, err := scope.DataPath("audio-cache.json")
	if err != nil {
		return "", fmt.Errorf("could not resolve cache location: %w", err)
	}
	return path, nil
}
