package cmd

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/louiscrc/trakt-to-letterboxd/config"
)

var configPath string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "trakt-to-letterboxd",
	Short: "Sync Trakt watch history and ratings to Letterboxd",
	Long: `trakt-to-letterboxd pulls your full watch history and ratings from
Trakt, reconciles them against the previously synced state, and imports only
the new entries into Letterboxd, keeping full-history CSV snapshots on disk.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to settings.json (default $TRAKT_LB_CONFIG or ./settings.json)")
}

// loadSettings resolves the config path, loads (or creates) the settings
// file, and sets up logging the way the settings describe.
func loadSettings() (*config.Manager, config.Settings, error) {
	path := configPath
	if path == "" {
		path = os.Getenv("TRAKT_LB_CONFIG")
	}
	if path == "" {
		path = "settings.json"
	}

	cfgManager := config.NewManager(path)
	settings, err := cfgManager.Load()
	if err != nil {
		return nil, config.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	setupLogging(settings.Log)
	return cfgManager, settings, nil
}

// setupLogging mirrors log output to a rotated file when one is configured.
func setupLogging(cfg config.LogConfig) {
	log.SetFlags(log.LstdFlags)

	if cfg.File == "" {
		return
	}

	logDir := filepath.Dir(cfg.File)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		log.Printf("Warning: could not create log directory %s: %v", logDir, err)
		return
	}

	fileWriter := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
	log.SetOutput(io.MultiWriter(os.Stdout, fileWriter))
	log.Printf("Logging to file: %s", cfg.File)
}
