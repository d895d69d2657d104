package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/strata/internal/bus"
	"github.com/user/strata/internal/clock"
	"github.com/user/strata/internal/config"
	"github.com/user/strata/internal/interaction"
	"github.com/user/strata/internal/playback"
	"github.com/user/strata/internal/scene"
	"github.com/user/strata/internal/server"
	"github.com/user/strata/internal/state"
	"github.com/user/strata/internal/telemetry"
	"github.com/user/strata/internal/timeline"
	"github.com/user/strata/internal/types"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve <artifact>",
	Short: "Start the playback control and preview server",
	Args:  cobra.ExactArgs(1),
	RunE:  runServe,
}

func pidPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "strata.pid")
}

func writePIDFile(cfg *config.Config) (string, error) {
	path := pidPath(cfg)
	pid := os.Getpid()
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)+"\n"), 0644); err != nil {
		return "", fmt.Errorf("write PID file: %w", err)
	}
	return path, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	setupLogging(cfg)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	shutdownTracing, err := telemetry.Setup(ctx, cfg, "strata")
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		sctx, scancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer scancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	// Artifact
	cache := timeline.NewCache(cfg.Limits.MaxArtifactBytes)
	log, err := cache.Load(ctx, args[0])
	if err != nil {
		return fmt.Errorf("load %s: %w", args[0], err)
	}

	pidFile, err := writePIDFile(cfg)
	if err != nil {
		return err
	}
	defer os.Remove(pidFile)

	// Scene and playback
	b := bus.New()
	b.Subscribe("scene.", func(m bus.Message) error {
		slog.Debug("scene changed", "topic", m.Topic(), "message", fmt.Sprintf("%+v", m))
		return nil
	})
	comp := scene.New(scene.NewMemoryDevice(), scene.OptionsFromConfig(cfg))
	defer comp.Close()
	ctrl, err := playback.New(ctx, log, comp, b, clock.Real(), playback.OptionsFromConfig(cfg))
	if err != nil {
		return fmt.Errorf("create playback: %w", err)
	}
	defer ctrl.Close()
	index := interaction.New(comp, clock.Real(), interaction.OptionsFromConfig(cfg))

	// Saved sessions
	sessions := state.NewSessionStore(cfg.DataDir)
	artifact := filepath.Base(args[0])
	srv := server.NewServer(cfg, ctrl, comp, index, cache, sessions)
	if err := srv.Resume(ctx, artifact); err != nil {
		slog.Warn("resume saved session failed", "artifact", artifact, "error", err)
	}
	defer saveSession(sessions, cache, ctrl)

	httpServer := &http.Server{
		Addr:    cfg.HTTP.Listen,
		Handler: srv,
	}
	go func() {
		slog.Info("http server started", "url", server.Addr(cfg))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		httpServer.Close()
	}()

	slog.Info("strata started",
		"artifact", args[0],
		"events", log.Len(),
		"data_dir", cfg.DataDir,
		"log_level", cfg.LogLevel,
		"speed_ms", cfg.Playback.SpeedMs,
		"pid_file", pidFile,
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			slog.Info("received SIGHUP, restarting")
			execPath, err := os.Executable()
			if err != nil {
				slog.Error("failed to get executable path", "error", err)
				continue
			}
			saveSession(sessions, cache, ctrl)
			// Clean up PID file before re-exec
			os.Remove(pidFile)
			if err := syscall.Exec(execPath, os.Args, os.Environ()); err != nil {
				slog.Error("failed to re-exec", "error", err)
				// Re-write PID file since we failed to re-exec
				if _, writeErr := writePIDFile(cfg); writeErr != nil {
					slog.Error("failed to re-write PID file", "error", writeErr)
				}
				continue
			}
		}
		// SIGINT or SIGTERM
		slog.Info("shutting down", "signal", sig)
		return nil
	}
}

// saveSession stores the playback position of the active artifact so the
// next serve resumes from it.
func saveSession(sessions *state.SessionStore, cache *timeline.Cache, ctrl *playback.Controller) {
	log, path := cache.Current()
	if path == "" {
		return
	}
	data, err := ctrl.Export()
	if err != nil {
		slog.Error("export playback failed", "error", err)
		return
	}
	name := filepath.Base(path)
	if err := sessions.Save(context.Background(), types.ArtifactKey(name), name, log.Len(), data); err != nil {
		slog.Error("save session failed", "artifact", name, "error", err)
		return
	}
	slog.Info("session saved", "artifact", name)
}
