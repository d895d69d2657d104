package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/strata/internal/clock"
	"github.com/user/strata/internal/playback"
	"github.com/user/strata/internal/replay"
	"github.com/user/strata/internal/scene"
)

var (
	replaySpeed int
	replayFrom  int
)

func init() {
	replayCmd.Flags().IntVar(&replaySpeed, "speed", 0, "milliseconds per event (default from config)")
	replayCmd.Flags().IntVar(&replayFrom, "from", 0, "event index to start from")
	rootCmd.AddCommand(replayCmd)
}

var replayCmd = &cobra.Command{
	Use:   "replay <artifact>",
	Short: "Play the timeline in the terminal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		log, err := loadArtifact(ctx, cfg, args[0])
		if err != nil {
			return err
		}

		opts := playback.OptionsFromConfig(cfg)
		if replaySpeed > 0 {
			opts.SpeedMs = replaySpeed
		}
		comp := scene.New(scene.NewMemoryDevice(), scene.OptionsFromConfig(cfg))
		defer comp.Close()
		ctrl, err := playback.New(ctx, log, comp, nil, clock.Real(), opts)
		if err != nil {
			return err
		}
		defer ctrl.Close()

		err = replay.New(os.Stdout, comp).Run(ctx, ctrl, replayFrom)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}
