// Package main provides the entry point for the lectern CLI, which
// reads text documents aloud sentence by sentence.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lectern-audio/lectern/internal/audio"
	"github.com/lectern-audio/lectern/internal/cache"
	"github.com/lectern-audio/lectern/internal/config"
	"github.com/lectern-audio/lectern/internal/document"
	"github.com/lectern-audio/lectern/internal/playback"
	"github.com/lectern-audio/lectern/internal/speech"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	provider   string
	voice      string
	fromCursor int
	debug      bool

	rootCmd = &cobra.Command{
		Use:   "lectern FILE",
		Short: "Read documents aloud, sentence by sentence",
		Long: paragraph(
			fmt.Sprintf("\nRead a document aloud %s, with pausing, seeking, and cached audio.", keyword("sentence by sentence")),
		),
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.ExactArgs(1),
		RunE:             execute,
	}
)

// statusLine prints playback transitions as they happen.
type statusLine struct{}

func (statusLine) UpdateForDocument(docID string, status playback.Status, index, total int) {
	var line string
	switch status {
	case playback.StatusPlaying:
		line = statusPlaying(fmt.Sprintf("▶ %s", docID)) + statusMuted(fmt.Sprintf("  sentence %d/%d", index+1, total))
	case playback.StatusPaused:
		line = statusPaused(fmt.Sprintf("⏸ %s", docID)) + statusMuted(fmt.Sprintf("  sentence %d/%d", index+1, total))
	case playback.StatusGenerating:
		line = statusMuted(fmt.Sprintf("… generating audio for %s", docID))
	default:
		line = statusMuted(fmt.Sprintf("■ %s", docID))
	}
	fmt.Println(line)
}

func execute(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if provider != "" {
		cfg.Provider = provider
	}
	if voice != "" {
		cfg.Voice = voice
	}
	if debug || cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}

	target, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("unable to resolve %s: %w", args[0], err)
	}
	if _, err := os.Stat(target); err != nil {
		return fmt.Errorf("unable to open file: %w", err)
	}

	synth, err := speech.New(cfg.Speech())
	if err != nil {
		return err
	}

	audioCache, err := openCache(cfg)
	if err != nil {
		return err
	}

	player, err := audio.NewOtoPlayer()
	if err != nil {
		return err
	}

	workspace, err := document.Open(filepath.Dir(target))
	if err != nil {
		return err
	}
	defer workspace.Close() //nolint:errcheck

	docID := filepath.Base(target)
	workspace.SetActive(docID)

	o := playback.New(synth, player, audioCache, workspace, statusLine{})
	o.SetPreloadCount(cfg.PreloadCount)
	workspace.OnDelete(o.DocumentDeleted)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if fromCursor >= 0 {
		workspace.SetCursor(docID, fromCursor)
		err = o.PlayFromCursor(ctx, docID)
	} else {
		err = o.Play(ctx, docID)
	}
	if err != nil {
		return err
	}

	return controlLoop(ctx, o, docID)
}

// controlLoop reads playback commands from stdin until the document
// finishes or the user quits.
func controlLoop(ctx context.Context, o *playback.Orchestrator, docID string) error {
	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
		close(lines)
	}()

	fmt.Println(statusMuted("commands: [enter] play/pause · n next · p prev · s N seek · i info · q quit"))

	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			o.PauseAll()
			return nil
		case <-ticker.C:
			if o.StatusOf(docID) == playback.StatusIdle {
				current, total := o.Progress(docID)
				if total > 0 && current >= total {
					return nil
				}
			}
		case line, ok := <-lines:
			if !ok {
				o.PauseAll()
				return nil
			}
			switch {
			case line == "q" || line == "quit":
				o.PauseAll()
				return nil
			case line == "" || line == "space":
				if err := o.TogglePlayPause(ctx, docID); err != nil {
					log.Error("toggle failed", "error", err)
				}
			case line == "n" || line == "next":
				o.NextSentence(ctx, docID)
			case line == "p" || line == "prev":
				o.PreviousSentence(ctx, docID)
			case line == "i" || line == "info":
				current, total := o.Progress(docID)
				pos, dur := o.Position(docID)
				state := o.StatusOf(docID).String()
				if o.Loading(docID) {
					state += ", loading"
				}
				fmt.Println(statusMuted(fmt.Sprintf("%s · sentence %d/%d · %s of %s",
					state, current+1, total, pos.Round(time.Second), dur.Round(time.Second))))
			case strings.HasPrefix(line, "s "):
				index, err := strconv.Atoi(strings.TrimPrefix(line, "s "))
				if err != nil {
					fmt.Println(statusMuted("usage: s N (sentence number, starting at 1)"))
					continue
				}
				if err := o.PlayFromIndex(ctx, docID, index-1); err != nil {
					log.Error("seek failed", "error", err)
				}
			default:
				fmt.Println(statusMuted("unknown command: " + line))
			}
		}
	}
}

func openCache(cfg config.Config) (*cache.Cache, error) {
	path, err := cfg.ResolveCachePath()
	if err != nil {
		return nil, err
	}
	store, err := cache.NewFileStore(path)
	if err != nil {
		return nil, err
	}

	c := cache.New(store)
	c.SetMaxEntries(cfg.CacheMaxEntries)
	c.SetMaxAge(cfg.CacheMaxAge())
	c.SetEnabled(cfg.CacheEnabled)
	return c, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().StringVar(&provider, "provider", "", "speech provider (elevenlabs/unrealspeech/native)")
	rootCmd.Flags().StringVar(&voice, "voice", "", "voice to synthesize with")
	rootCmd.Flags().IntVarP(&fromCursor, "from-cursor", "c", -1, "start at the sentence containing this byte offset")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	config.SetDefaults()

	rootCmd.AddCommand(configCmd, cacheCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "lectern")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "lectern")}, dirs...)
	}

	if c := os.Getenv("LECTERN_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("lectern")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("lectern")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
	}
}
