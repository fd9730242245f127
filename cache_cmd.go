package main

import (
	"fmt"

	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"

	"github.com/lectern-audio/lectern/internal/cache"
	"github.com/lectern-audio/lectern/internal/config"
)

func gapScope() *gap.Scope {
	return gap.NewScope(gap.User, "lectern")
}

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect the audio cache",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		c, path, err := openCacheForInspection()
		if err != nil {
			return err
		}
		fmt.Printf("%s\n", statusMuted(path))
		fmt.Printf("entries: %d\n", c.Len())
		fmt.Printf("size:    %s\n", c.FormattedSize())
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove all cached audio",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		c, _, err := openCacheForInspection()
		if err != nil {
			return err
		}
		freed := c.FormattedSize()
		c.Clear()
		fmt.Println("Cleared audio cache, freed", freed)
		return nil
	},
}

func openCacheForInspection() (*cache.Cache, string, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, "", err
	}
	path, err := cfg.ResolveCachePath()
	if err != nil {
		return nil, "", err
	}
	store, err := cache.NewFileStore(path)
	if err != nil {
		return nil, "", err
	}
	return cache.New(store), path, nil
}

func init() {
	cacheCmd.AddCommand(cacheClearCmd)
}
