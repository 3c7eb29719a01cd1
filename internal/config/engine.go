package config

import (
	"fmt"
	"os"

	"github.com/aristath/ballast/internal/modules/rebalancing"
	"gopkg.in/yaml.v3"
)

// EngineSettings is the YAML file that tunes the rebalancing engine.
// Keys left out of the file keep their defaults.
type EngineSettings struct {
	MinWeight            float64 `yaml:"min_weight"`
	MaxWeight            float64 `yaml:"max_weight"`
	ConvergenceThreshold float64 `yaml:"convergence_threshold"`
	DampingFactor        float64 `yaml:"damping_factor"`
	MaxIterations        int     `yaml:"max_iterations"`
	MinPortfolioSize     int     `yaml:"min_portfolio_size"`
	DriftMediumThreshold float64 `yaml:"drift_medium_threshold"`
	DriftHighThreshold   float64 `yaml:"drift_high_threshold"`
}

// DefaultEngineSettings returns the built-in engine settings.
func DefaultEngineSettings() *EngineSettings {
	opts := rebalancing.DefaultOptions()
	drift := rebalancing.DefaultDriftThresholds()
	return &EngineSettings{
		MinWeight:            opts.MinWeight,
		MaxWeight:            opts.MaxWeight,
		ConvergenceThreshold: opts.ConvergenceThreshold,
		DampingFactor:        opts.DampingFactor,
		MaxIterations:        opts.MaxIterations,
		MinPortfolioSize:     rebalancing.MinPortfolioSize,
		DriftMediumThreshold: drift.Medium,
		DriftHighThreshold:   drift.High,
	}
}

// LoadEngineSettings reads engine settings from a YAML file. An empty path
// returns the defaults.
func LoadEngineSettings(path string) (*EngineSettings, error) {
	settings := DefaultEngineSettings()
	if path == "" {
		return settings, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read engine settings %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, settings); err != nil {
		return nil, fmt.Errorf("failed to parse engine settings %s: %w", path, err)
	}
	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine settings %s: %w", path, err)
	}

	return settings, nil
}

// Options converts the settings to engine options.
func (s *EngineSettings) Options() rebalancing.Options {
	return rebalancing.Options{
		MinWeight:            s.MinWeight,
		MaxWeight:            s.MaxWeight,
		ConvergenceThreshold: s.ConvergenceThreshold,
		DampingFactor:        s.DampingFactor,
		MaxIterations:        s.MaxIterations,
	}
}

// ServiceConfig converts the settings to the service rules.
func (s *EngineSettings) ServiceConfig() rebalancing.ServiceConfig {
	return rebalancing.ServiceConfig{
		MinPortfolioSize: s.MinPortfolioSize,
		Drift: rebalancing.DriftThresholds{
			Medium: s.DriftMediumThreshold,
			High:   s.DriftHighThreshold,
		},
	}
}

// Validate returns ValidationErrors describing every bad field.
func (s *EngineSettings) Validate() error {
	var errs ValidationErrors

	if err := s.Options().Validate(); err != nil {
		errs = append(errs, ValidationError{Field: "engine", Message: err.Error()})
	}
	if s.MinPortfolioSize < 1 {
		errs = append(errs, ValidationError{Field: "min_portfolio_size", Message: "must be at least 1"})
	}
	if s.DriftMediumThreshold < 0 {
		errs = append(errs, ValidationError{Field: "drift_medium_threshold", Message: "must not be negative"})
	}
	if s.DriftHighThreshold < s.DriftMediumThreshold {
		errs = append(errs, ValidationError{Field: "drift_high_threshold", Message: "must not be below drift_medium_threshold"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
