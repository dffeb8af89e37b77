// Package cmd provides the CLI commands for thinkt-live.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/wethinkt/thinkt-live/internal/applog"
	"github.com/wethinkt/thinkt-live/internal/config"
)

// global flags
var (
	configPath string
	logPath    string
	verbose    bool
)

// rootCmd is the root command for the CLI.
var rootCmd = &cobra.Command{
	Use:   binaryName,
	Short: "Stream AI assistant sessions live as they are written",
	Long: `thinkt-live watches AI coding assistant transcripts and streams them to
clients as an ordered sequence of rendered blocks.

Clients connect over Server-Sent Events or WebSocket and can resume from the
last event id they saw.

Commands:
  serve     Watch transcripts and serve live streams
  replay    Transform a transcript file offline
  tail      Follow a live stream in the terminal
  state     Inspect saved processing state

Examples:
  thinkt-live serve                                  # Watch ~/.claude/projects
  thinkt-live replay session.jsonl --render          # Render a transcript
  thinkt-live tail <session-id>                      # Follow a session on the local server`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.thinkt-live/config.toml)")
	rootCmd.PersistentFlags().StringVar(&logPath, "log", "", "write log to file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log to stderr at debug level")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(tailCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(versionCmd)
}

// setup loads the configuration and initializes the global logger from it
// and the global flags.
func setup() (config.Config, error) {
	var (
		cfg config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return config.Config{}, err
	}

	opts := applog.Options{
		Path:  cfg.LogPath,
		Level: applog.ParseLevel(cfg.LogLevel),
	}
	if logPath != "" {
		opts.Path = logPath
	}
	if verbose {
		opts.Stderr = true
		opts.Level = applog.LevelDebug
	}
	if err := applog.Init(opts); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}
