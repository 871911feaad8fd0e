// Package config loads the JSON tuning file that sets the scope
// manager's thresholds and the service's runtime knobs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parallax-data/bundle.scope/internal/localba"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig is the root configuration for scope tuning. Every field
// is optional; the Get* accessors fall back to the stock defaults, so
// partial configs are safe.
type TuningConfig struct {
	// Scope params
	MinSharedLandmarks    *int     `json:"min_shared_landmarks,omitempty"`
	DistanceLimitRefine   *int     `json:"distance_limit_refine,omitempty"`
	DistanceLimitConstant *int     `json:"distance_limit_constant,omitempty"`
	FocalWindowSize       *int     `json:"focal_window_size,omitempty"`
	FocalStdevLimit       *float64 `json:"focal_stdev_limit,omitempty"`

	// Service params
	ListenAddr *string `json:"listen_addr,omitempty"`
	HistoryDir *string `json:"history_dir,omitempty"`
	RoundDelay *string `json:"round_delay,omitempty"` // duration string like "250ms"
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields
// omitted from the JSON keep their defaults.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching upward from the working directory.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // deeper packages
		"../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that any values present are usable.
func (c *TuningConfig) Validate() error {
	if c.MinSharedLandmarks != nil && *c.MinSharedLandmarks < 1 {
		return fmt.Errorf("min_shared_landmarks must be >= 1, got %d", *c.MinSharedLandmarks)
	}
	if c.DistanceLimitRefine != nil && *c.DistanceLimitRefine < 0 {
		return fmt.Errorf("distance_limit_refine must be >= 0, got %d", *c.DistanceLimitRefine)
	}
	if c.DistanceLimitConstant != nil && c.DistanceLimitRefine != nil &&
		*c.DistanceLimitConstant < *c.DistanceLimitRefine {
		return fmt.Errorf("distance_limit_constant %d must be >= distance_limit_refine %d",
			*c.DistanceLimitConstant, *c.DistanceLimitRefine)
	}
	if c.FocalWindowSize != nil && *c.FocalWindowSize < 2 {
		return fmt.Errorf("focal_window_size must be >= 2, got %d", *c.FocalWindowSize)
	}
	if c.FocalStdevLimit != nil && *c.FocalStdevLimit <= 0 {
		return fmt.Errorf("focal_stdev_limit must be > 0, got %f", *c.FocalStdevLimit)
	}
	if c.RoundDelay != nil && *c.RoundDelay != "" {
		if _, err := time.ParseDuration(*c.RoundDelay); err != nil {
			return fmt.Errorf("invalid round_delay '%s': %w", *c.RoundDelay, err)
		}
	}
	return nil
}

// GetMinSharedLandmarks returns the min_shared_landmarks value or the default.
func (c *TuningConfig) GetMinSharedLandmarks() int {
	if c.MinSharedLandmarks == nil {
		return localba.DefaultMinSharedLandmarks
	}
	return *c.MinSharedLandmarks
}

// GetDistanceLimitRefine returns the distance_limit_refine value or the default.
func (c *TuningConfig) GetDistanceLimitRefine() int {
	if c.DistanceLimitRefine == nil {
		return localba.DefaultDistanceLimitRefine
	}
	return *c.DistanceLimitRefine
}

// GetDistanceLimitConstant returns the distance_limit_constant value or the default.
func (c *TuningConfig) GetDistanceLimitConstant() int {
	if c.DistanceLimitConstant == nil {
		return localba.DefaultDistanceLimitConstant
	}
	return *c.DistanceLimitConstant
}

// GetFocalWindowSize returns the focal_window_size value or the default.
func (c *TuningConfig) GetFocalWindowSize() int {
	if c.FocalWindowSize == nil {
		return localba.DefaultFocalWindowSize
	}
	return *c.FocalWindowSize
}

// GetFocalStdevLimit returns the focal_stdev_limit value or the default.
func (c *TuningConfig) GetFocalStdevLimit() float64 {
	if c.FocalStdevLimit == nil {
		return localba.DefaultFocalStdevLimit
	}
	return *c.FocalStdevLimit
}

// ScopeParams builds the scope manager parameters from this config,
// falling back to defaults for unset fields.
func (c *TuningConfig) ScopeParams() localba.Params {
	return localba.Params{
		MinSharedLandmarks:    c.GetMinSharedLandmarks(),
		DistanceLimitRefine:   c.GetDistanceLimitRefine(),
		DistanceLimitConstant: c.GetDistanceLimitConstant(),
		FocalWindowSize:       c.GetFocalWindowSize(),
		FocalStdevLimit:       c.GetFocalStdevLimit(),
	}
}

// GetListenAddr returns the listen_addr value or the default.
func (c *TuningConfig) GetListenAddr() string {
	if c.ListenAddr == nil || *c.ListenAddr == "" {
		return ":8091"
	}
	return *c.ListenAddr
}

// GetHistoryDir returns the history_dir value or the default.
func (c *TuningConfig) GetHistoryDir() string {
	if c.HistoryDir == nil || *c.HistoryDir == "" {
		return "scope-history"
	}
	return *c.HistoryDir
}

// GetRoundDelay parses and returns the RoundDelay as a time.Duration.
func (c *TuningConfig) GetRoundDelay() time.Duration {
	if c.RoundDelay == nil || *c.RoundDelay == "" {
		return 0 // default: replay as fast as possible
	}
	d, err := time.ParseDuration(*c.RoundDelay)
	if err != nil {
		return 0
	}
	return d
}
