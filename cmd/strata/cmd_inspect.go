package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/user/strata/internal/replay"
)

func init() {
	rootCmd.AddCommand(inspectCmd)
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <artifact>",
	Short: "Validate an artifact and summarize its events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		setupLogging(cfg)

		log, err := loadArtifact(cmd.Context(), cfg, args[0])
		if err != nil {
			return err
		}
		return replay.Summary(os.Stdout, filepath.Base(args[0]), log)
	},
}
