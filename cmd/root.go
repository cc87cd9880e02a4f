package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/imagerecovery/internal/config"
	"github.com/cwbudde/imagerecovery/internal/objective"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "imagerecovery",
	Short: "Image recovery benchmark for black-box optimizers",
	Long: `imagerecovery scores candidate 256x256 RGB images against a fixed target
by L1 distance and runs the mayfly optimizer against that objective.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogger(logLevel)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML run configuration (optional)")
}

func setupLogger(name string) {
	var level slog.Level
	switch name {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	// Logs go to stderr so command output on stdout stays parseable
	opts := &slog.HandlerOptions{Level: level}
	handler := slog.NewJSONHandler(os.Stderr, opts)
	logger = slog.New(handler)
	slog.SetDefault(logger)
}

// loadConfig returns the --config file contents, or defaults without one.
func loadConfig() (config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

// loadObjective builds the objective. The target image is not shipped with
// the binary, so a missing asset gets a hint on where to put it.
func loadObjective(cfg config.Config) (*objective.Image, error) {
	im, err := objective.New(cfg.ObjectiveConfig())
	if errors.Is(err, objective.ErrResourceNotFound) {
		return nil, fmt.Errorf("%w (place %s in the directory given by --asset-dir or assetDir)", err, objective.AssetName)
	}
	return im, err
}
