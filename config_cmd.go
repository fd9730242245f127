package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# speech provider: elevenlabs, unrealspeech, or native
provider: "native"
# voice to synthesize with (provider-specific, empty for the default)
voice: ""
# model to synthesize with (elevenlabs only, empty for the default)
model: ""

elevenlabs:
  # api_key: "your-api-key-here"

unrealspeech:
  # api_key: "your-api-key-here"

cache:
  # keep synthesized audio for replay
  enabled: true
  # evict oldest entries beyond this count
  max_entries: 100
  # evict entries older than this many days
  max_age_days: 7
  # snapshot location (empty for the per-user data directory)
  path: ""

# sentences to synthesize ahead of the one playing
preload: 1
`

var configCmd = &cobra.Command{
	Use:     "config",
	Short:   "Edit the lectern config file",
	Long:    paragraph(fmt.Sprintf("\n%s the lectern config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("lectern config\nlectern config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("Lectern", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
		if configFile == "" {
			scope := gapScope()
			dirs, err := scope.ConfigDirs()
			if err != nil || len(dirs) == 0 {
				return errors.New("could not find configuration directory")
			}
			configFile = filepath.Join(dirs[0], "lectern.yml")
		}
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
