package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/strata/internal/config"
	"github.com/user/strata/internal/timeline"
)

var cfgPath string

var rootCmd = &cobra.Command{
	Use:           "strata",
	Short:         "Unified timeline viewer for file snapshots and milestones",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config",
		filepath.Join(os.Getenv("HOME"), ".strata", "config.json"), "config file path (.json or .yaml)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig reads the config file or exits.
func loadConfig() *config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg *config.Config) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// loadArtifact validates and reads the artifact named on the command line.
func loadArtifact(ctx context.Context, cfg *config.Config, path string) (*timeline.Log, error) {
	log, err := timeline.LoadFile(ctx, path, cfg.Limits.MaxArtifactBytes)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return log, nil
}
