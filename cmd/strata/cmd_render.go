package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/user/strata/internal/clock"
	"github.com/user/strata/internal/layout"
	"github.com/user/strata/internal/playback"
	"github.com/user/strata/internal/render"
	"github.com/user/strata/internal/scene"
)

var (
	renderOut   string
	renderIndex int
	renderHide  []string
	renderYaw   float64
	renderPitch float64
)

func init() {
	renderCmd.Flags().StringVarP(&renderOut, "output", "o", "", "write SVG to file instead of stdout")
	renderCmd.Flags().IntVar(&renderIndex, "index", -1, "render the prefix ending at this event (default last)")
	renderCmd.Flags().StringSliceVar(&renderHide, "hide", nil, "groups to hide: sunburst, milestones, correlations")
	renderCmd.Flags().Float64Var(&renderYaw, "yaw", -35, "camera yaw in degrees")
	renderCmd.Flags().Float64Var(&renderPitch, "pitch", 55, "camera pitch in degrees")
	rootCmd.AddCommand(renderCmd)
}

var renderCmd = &cobra.Command{
	Use:   "render <artifact>",
	Short: "Project the scene for an event prefix onto an SVG",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)
		ctx := cmd.Context()

		log, err := loadArtifact(ctx, cfg, args[0])
		if err != nil {
			return err
		}

		comp := scene.New(scene.NewMemoryDevice(), scene.OptionsFromConfig(cfg))
		defer comp.Close()
		ctrl, err := playback.New(ctx, log, comp, nil, clock.Real(), playback.OptionsFromConfig(cfg))
		if err != nil {
			return err
		}
		defer ctrl.Close()

		if renderIndex >= 0 {
			if renderIndex >= log.Len() {
				return fmt.Errorf("index %d out of range: artifact has %d events", renderIndex, log.Len())
			}
			ctrl.Seek(renderIndex)
		}
		for _, name := range renderHide {
			g, err := scene.ParseGroup(name)
			if err != nil {
				return err
			}
			ctrl.SetVisible(g, false)
		}

		opts := render.DefaultOptions()
		opts.Highlight = cfg.Theme.Highlight
		opts.Yaw = layout.Degrees(renderYaw)
		opts.Pitch = layout.Degrees(renderPitch)

		var w io.Writer = os.Stdout
		if renderOut != "" {
			f, err := os.Create(renderOut)
			if err != nil {
				return fmt.Errorf("create output: %w", err)
			}
			defer f.Close()
			w = f
		}
		if err := render.Render(w, comp.Frame(), opts); err != nil {
			return fmt.Errorf("render svg: %w", err)
		}
		if renderOut != "" {
			fmt.Fprintf(os.Stderr, "Wrote %s (%s)\n", renderOut, ctrl.Status().Message)
		}
		return nil
	},
}
