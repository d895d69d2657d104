package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/user/strata/internal/config"
)

func init() {
	rootCmd.AddCommand(setupCmd)
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Interactive setup wizard",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		scanner := bufio.NewScanner(os.Stdin)

		fmt.Println("Strata Setup Wizard")
		fmt.Println("Press Enter to accept the default value shown in brackets.")
		fmt.Println()

		// 1. Data directory
		cfg.DataDir = prompt(scanner, "Data directory", cfg.DataDir)

		// 2. Log level
		cfg.LogLevel = prompt(scanner, "Log level (debug, info, warn, error)", cfg.LogLevel)

		// 3. Sunburst parameters
		if v, err := strconv.ParseFloat(prompt(scanner, "Minimum segment angle (degrees, 1-50)", ftoa(cfg.Layout.MinAngleDeg)), 64); err == nil {
			cfg.Layout.MinAngleDeg = v
		}
		if v, err := strconv.ParseFloat(prompt(scanner, "Ring thickness (2-20)", ftoa(cfg.Layout.RingThickness)), 64); err == nil {
			cfg.Layout.RingThickness = v
		}

		// 4. Playback speed
		if n, err := strconv.Atoi(prompt(scanner, "Playback speed (ms per event, 100-10000)", strconv.Itoa(cfg.Playback.SpeedMs))); err == nil {
			cfg.Playback.SpeedMs = n
		}

		// 5. HTTP listen address
		cfg.HTTP.Listen = prompt(scanner, "HTTP listen address", cfg.HTTP.Listen)

		// 6. OTLP endpoint (optional)
		cfg.Telemetry.OTLPEndpoint = prompt(scanner, "OTLP trace endpoint (optional)", cfg.Telemetry.OTLPEndpoint)

		cfg.Validate()
		if err := config.Save(cfgPath, cfg); err != nil {
			return fmt.Errorf("save config: %w", err)
		}

		fmt.Println()
		fmt.Println("Configuration saved to", cfgPath)
		return nil
	},
}

func ftoa(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// prompt displays a labeled prompt with a default value and reads user input.
// If the user enters nothing, the default is returned.
func prompt(scanner *bufio.Scanner, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("%s: ", label)
	}
	if scanner.Scan() {
		input := strings.TrimSpace(scanner.Text())
		if input != "" {
			return input
		}
	}
	return defaultVal
}
