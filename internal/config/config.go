// Package config loads estimator tuning parameters from JSON.
//
// The schema uses pointer fields so partial config files are safe: any
// field omitted from the JSON falls back to its default through the Get*
// accessor. This mirrors how runtime parameter updates are applied, so the
// same JSON document works for both.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/skyward-data/groundtrack.report/internal/units"
)

// DefaultConfigPath is the canonical estimator defaults file. It is the
// single source of truth for default tuning values.
const DefaultConfigPath = "config/estimator.defaults.json"

// EstimatorConfig is the root tuning document for a speed-estimation run.
type EstimatorConfig struct {
	// Window params
	WindowDuration  *string `json:"window_duration,omitempty"`  // duration string like "9m"
	CaptureInterval *string `json:"capture_interval,omitempty"` // duration string like "10s"
	Lookbehind      *int    `json:"lookbehind,omitempty"`       // prior frames each new frame is paired with

	// Feature estimator params
	MinMatchCount *int `json:"min_match_count,omitempty"`

	// Quality filter params
	MinPlausibleSpeedMPS *float64 `json:"min_plausible_speed_mps,omitempty"`
	MaxPlausibleSpeedMPS *float64 `json:"max_plausible_speed_mps,omitempty"`

	// Fusion params. Floors are in (m/s)^2; the two source kinds are tuned
	// independently but default equal pending calibration.
	VarianceFloorFeature *float64 `json:"variance_floor_feature,omitempty"`
	VarianceFloorGeotag  *float64 `json:"variance_floor_geotag,omitempty"`
	AnomalousDeviation   *float64 `json:"anomalous_deviation,omitempty"` // 0 disables outlier rejection

	// Display params
	DisplayUnits *string `json:"display_units,omitempty"`
}

// EmptyConfig returns an EstimatorConfig with every field unset.
func EmptyConfig() *EstimatorConfig {
	return &EstimatorConfig{}
}

// LoadConfig loads an EstimatorConfig from a JSON file. The path must end
// in .json and the file must be under 1MB. Omitted fields keep their
// defaults, so partial configs are safe.
func LoadConfig(path string) (*EstimatorConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching upward from the current directory. Panics when not found;
// intended for test setup.
func MustLoadDefaultConfig() *EstimatorConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath, // from internal/<pkg>/
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set fields hold usable values.
func (c *EstimatorConfig) Validate() error {
	if c.WindowDuration != nil && *c.WindowDuration != "" {
		if _, err := time.ParseDuration(*c.WindowDuration); err != nil {
			return fmt.Errorf("invalid window_duration %q: %w", *c.WindowDuration, err)
		}
	}
	if c.CaptureInterval != nil && *c.CaptureInterval != "" {
		if _, err := time.ParseDuration(*c.CaptureInterval); err != nil {
			return fmt.Errorf("invalid capture_interval %q: %w", *c.CaptureInterval, err)
		}
	}
	if c.Lookbehind != nil && *c.Lookbehind < 1 {
		return fmt.Errorf("lookbehind must be at least 1, got %d", *c.Lookbehind)
	}
	if c.MinMatchCount != nil && *c.MinMatchCount < 0 {
		return fmt.Errorf("min_match_count must be non-negative, got %d", *c.MinMatchCount)
	}
	if c.MinPlausibleSpeedMPS != nil && *c.MinPlausibleSpeedMPS < 0 {
		return fmt.Errorf("min_plausible_speed_mps must be non-negative, got %f", *c.MinPlausibleSpeedMPS)
	}
	if c.MinPlausibleSpeedMPS != nil && c.MaxPlausibleSpeedMPS != nil &&
		*c.MaxPlausibleSpeedMPS <= *c.MinPlausibleSpeedMPS {
		return fmt.Errorf("max_plausible_speed_mps (%f) must exceed min_plausible_speed_mps (%f)",
			*c.MaxPlausibleSpeedMPS, *c.MinPlausibleSpeedMPS)
	}
	if c.VarianceFloorFeature != nil && *c.VarianceFloorFeature <= 0 {
		return fmt.Errorf("variance_floor_feature must be positive, got %f", *c.VarianceFloorFeature)
	}
	if c.VarianceFloorGeotag != nil && *c.VarianceFloorGeotag <= 0 {
		return fmt.Errorf("variance_floor_geotag must be positive, got %f", *c.VarianceFloorGeotag)
	}
	if c.AnomalousDeviation != nil && *c.AnomalousDeviation < 0 {
		return fmt.Errorf("anomalous_deviation must be non-negative, got %f", *c.AnomalousDeviation)
	}
	if c.DisplayUnits != nil && !units.IsValid(*c.DisplayUnits) {
		return fmt.Errorf("display_units must be one of %s, got %q", units.ValidString(), *c.DisplayUnits)
	}
	return nil
}

// GetWindowDuration parses and returns the window budget.
func (c *EstimatorConfig) GetWindowDuration() time.Duration {
	if c.WindowDuration == nil || *c.WindowDuration == "" {
		return 9 * time.Minute // default
	}
	d, err := time.ParseDuration(*c.WindowDuration)
	if err != nil {
		return 9 * time.Minute
	}
	return d
}

// GetCaptureInterval parses and returns the frame capture cadence.
func (c *EstimatorConfig) GetCaptureInterval() time.Duration {
	if c.CaptureInterval == nil || *c.CaptureInterval == "" {
		return 10 * time.Second // default
	}
	d, err := time.ParseDuration(*c.CaptureInterval)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// GetLookbehind returns how many prior frames each new frame is paired with.
func (c *EstimatorConfig) GetLookbehind() int {
	if c.Lookbehind == nil {
		return 2
	}
	return *c.Lookbehind
}

// GetMinMatchCount returns the minimum matched-point count for a feature
// observation to be usable.
func (c *EstimatorConfig) GetMinMatchCount() int {
	if c.MinMatchCount == nil {
		return 100
	}
	return *c.MinMatchCount
}

// GetMinPlausibleSpeedMPS returns the lower plausibility bound.
func (c *EstimatorConfig) GetMinPlausibleSpeedMPS() float64 {
	if c.MinPlausibleSpeedMPS == nil {
		return 5000 // well below low Earth orbit
	}
	return *c.MinPlausibleSpeedMPS
}

// GetMaxPlausibleSpeedMPS returns the upper plausibility bound.
func (c *EstimatorConfig) GetMaxPlausibleSpeedMPS() float64 {
	if c.MaxPlausibleSpeedMPS == nil {
		return 9000 // above any circular LEO ground-track speed
	}
	return *c.MaxPlausibleSpeedMPS
}

// GetVarianceFloorFeature returns the variance floor for feature samples.
func (c *EstimatorConfig) GetVarianceFloorFeature() float64 {
	if c.VarianceFloorFeature == nil {
		return 0.0025 // sigma of 0.05 m/s
	}
	return *c.VarianceFloorFeature
}

// GetVarianceFloorGeotag returns the variance floor for geotag samples.
func (c *EstimatorConfig) GetVarianceFloorGeotag() float64 {
	if c.VarianceFloorGeotag == nil {
		return 0.0025
	}
	return *c.VarianceFloorGeotag
}

// GetAnomalousDeviation returns the per-kind outlier cutoff in population
// standard deviations. Zero disables outlier rejection.
func (c *EstimatorConfig) GetAnomalousDeviation() float64 {
	if c.AnomalousDeviation == nil {
		return 2.0
	}
	return *c.AnomalousDeviation
}

// GetDisplayUnits returns the unit used for result files and API output.
func (c *EstimatorConfig) GetDisplayUnits() string {
	if c.DisplayUnits == nil || !units.IsValid(*c.DisplayUnits) {
		return units.KMPS
	}
	return *c.DisplayUnits
}
