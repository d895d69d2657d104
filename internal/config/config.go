// Package config builds the immutable configuration object handed to every
// component at construction time.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Bounds for the user-tunable parameters.
const (
	MinAngleDegLow   = 1.0
	MinAngleDegHigh  = 50.0
	ThicknessLow     = 2.0
	ThicknessHigh    = 20.0
	SpeedMsLow       = 100
	SpeedMsHigh      = 10000
	DefaultMaxUpload = 50 << 20
)

type Config struct {
	DataDir  string `json:"data_dir" yaml:"data_dir" env:"STRATA_DATA_DIR"`
	LogLevel string `json:"log_level" yaml:"log_level" env:"STRATA_LOG_LEVEL"`
	Layout   struct {
		MinAngleDeg   float64 `json:"min_angle_deg" yaml:"min_angle_deg" env:"STRATA_MIN_ANGLE_DEG"`
		RingThickness float64 `json:"ring_thickness" yaml:"ring_thickness" env:"STRATA_RING_THICKNESS"`
		RingGap       float64 `json:"ring_gap" yaml:"ring_gap"`
		InitialRadius float64 `json:"initial_radius" yaml:"initial_radius"`
	} `json:"layout" yaml:"layout"`
	Timeline struct {
		SnapshotSpan  float64 `json:"snapshot_span" yaml:"snapshot_span"`
		GanttSpan     float64 `json:"gantt_span" yaml:"gantt_span"`
		GanttOffsetX  float64 `json:"gantt_offset_x" yaml:"gantt_offset_x"`
		LaneSpacing   float64 `json:"lane_spacing" yaml:"lane_spacing"`
		BarWidth      float64 `json:"bar_width" yaml:"bar_width"`
		MinBarHeight  float64 `json:"min_bar_height" yaml:"min_bar_height"`
		CameraSpacing float64 `json:"camera_spacing" yaml:"camera_spacing"`
		ManualHoldMs  int     `json:"manual_hold_ms" yaml:"manual_hold_ms"`
	} `json:"timeline" yaml:"timeline"`
	Playback struct {
		SpeedMs      int  `json:"speed_ms" yaml:"speed_ms" env:"STRATA_SPEED_MS"`
		CameraFollow bool `json:"camera_follow" yaml:"camera_follow"`
		Incremental  bool `json:"incremental" yaml:"incremental"`
	} `json:"playback" yaml:"playback"`
	Interaction struct {
		HoverDelayMs  int     `json:"hover_delay_ms" yaml:"hover_delay_ms"`
		PickTolerance float64 `json:"pick_tolerance" yaml:"pick_tolerance"`
	} `json:"interaction" yaml:"interaction"`
	Overlay struct {
		CurveLift    float64 `json:"curve_lift" yaml:"curve_lift"`
		CurveSamples int     `json:"curve_samples" yaml:"curve_samples"`
	} `json:"overlay" yaml:"overlay"`
	Limits struct {
		MaxArtifactBytes int64 `json:"max_artifact_bytes" yaml:"max_artifact_bytes"`
	} `json:"limits" yaml:"limits"`
	HTTP struct {
		Listen string `json:"listen" yaml:"listen" env:"STRATA_LISTEN"`
	} `json:"http" yaml:"http"`
	Telemetry struct {
		OTLPEndpoint string `json:"otlp_endpoint" yaml:"otlp_endpoint" env:"STRATA_OTEL_ENDPOINT"`
		OTLPToken    string `json:"otlp_token" yaml:"otlp_token" env:"STRATA_OTEL_TOKEN" secret:"true"`
	} `json:"telemetry" yaml:"telemetry"`
	Theme Theme `json:"theme" yaml:"theme"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{
		DataDir:  filepath.Join(os.Getenv("HOME"), ".strata"),
		LogLevel: "info",
	}
	cfg.Layout.MinAngleDeg = 2
	cfg.Layout.RingThickness = 5
	cfg.Layout.RingGap = 0.5
	cfg.Layout.InitialRadius = 4
	cfg.Timeline.SnapshotSpan = 60
	cfg.Timeline.GanttSpan = 60
	cfg.Timeline.GanttOffsetX = 80
	cfg.Timeline.LaneSpacing = 6
	cfg.Timeline.BarWidth = 2
	cfg.Timeline.MinBarHeight = 0.5
	cfg.Timeline.CameraSpacing = 10
	cfg.Timeline.ManualHoldMs = 5000
	cfg.Playback.SpeedMs = 1000
	cfg.Playback.CameraFollow = true
	cfg.Interaction.HoverDelayMs = 100
	cfg.Interaction.PickTolerance = 0.75
	cfg.Overlay.CurveLift = 12
	cfg.Overlay.CurveSamples = 24
	cfg.Limits.MaxArtifactBytes = DefaultMaxUpload
	cfg.HTTP.Listen = "127.0.0.1:7470"
	cfg.Theme = DefaultTheme()
	return cfg
}

// Load reads the configuration at path over the defaults, writing the
// defaults when the file does not exist, then applies environment
// overrides and clamps every tunable into range.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); err == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	} else if os.IsNotExist(err) {
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}
	cfg.Validate()
	return cfg, nil
}

// ParseEnv overlays STRATA_* environment variables onto cfg.
func ParseEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate clamps the tunables into their allowed ranges and fills
// non-positive structural values with defaults.
func (c *Config) Validate() {
	def := Default()
	c.Layout.MinAngleDeg = ClampMinAngleDeg(c.Layout.MinAngleDeg)
	c.Layout.RingThickness = ClampThickness(c.Layout.RingThickness)
	c.Playback.SpeedMs = ClampSpeedMs(c.Playback.SpeedMs)
	if c.Layout.RingGap < 0 {
		c.Layout.RingGap = 0
	}
	if c.Layout.InitialRadius < 0 {
		c.Layout.InitialRadius = 0
	}
	if c.Timeline.MinBarHeight <= 0 {
		c.Timeline.MinBarHeight = def.Timeline.MinBarHeight
	}
	if c.Timeline.ManualHoldMs < 0 {
		c.Timeline.ManualHoldMs = 0
	}
	if c.Interaction.HoverDelayMs < 0 {
		c.Interaction.HoverDelayMs = 0
	}
	if c.Interaction.PickTolerance <= 0 {
		c.Interaction.PickTolerance = def.Interaction.PickTolerance
	}
	if c.Overlay.CurveSamples < 2 {
		c.Overlay.CurveSamples = def.Overlay.CurveSamples
	}
	if c.Limits.MaxArtifactBytes <= 0 {
		c.Limits.MaxArtifactBytes = def.Limits.MaxArtifactBytes
	}
	c.Theme.fill(def.Theme)
}

func ClampMinAngleDeg(v float64) float64 { return clampF(v, MinAngleDegLow, MinAngleDegHigh) }
func ClampThickness(v float64) float64   { return clampF(v, ThicknessLow, ThicknessHigh) }

func ClampSpeedMs(v int) int {
	return max(SpeedMsLow, min(SpeedMsHigh, v))
}

func clampF(v, lo, hi float64) float64 {
	if v != v {
		return lo
	}
	return max(lo, min(hi, v))
}

// Save writes cfg to path atomically, as YAML when the extension is .yaml or
// .yml and as indented JSON otherwise.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := encode(path, cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename config: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func decode(path string, data []byte, v any) error {
	if isYAML(path) {
		return yaml.Unmarshal(data, v)
	}
	return json.Unmarshal(data, v)
}

func encode(path string, v any) ([]byte, error) {
	if isYAML(path) {
		return yaml.Marshal(v)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}
