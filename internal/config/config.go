// Package config loads and validates the kiln.yml job file: everything the
// CLI needs to set up a training session that is not part of the model's own
// configuration tree.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrackerConfig specifies the experiment-tracker backend for a job.
type TrackerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisURL string `yaml:"redis_url,omitempty"` // Required when enabled
}

// JobConfig represents the top-level kiln.yml configuration.
type JobConfig struct {
	Version          string         `yaml:"version"`
	Project          string         `yaml:"project"`
	Tags             []string       `yaml:"tags,omitempty"`
	SerializationDir string         `yaml:"serialization_dir"`
	ModelConfig      string         `yaml:"model_config"`
	WorldSize        *int           `yaml:"world_size,omitempty"` // Default: 1
	CaptureRoot      string         `yaml:"capture_root,omitempty"`
	Tracker          *TrackerConfig `yaml:"tracker,omitempty"`
}

// Validate performs strict validation on the configuration.
func (c *JobConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	if c.SerializationDir == "" {
		return fmt.Errorf("serialization_dir is required")
	}

	if c.ModelConfig == "" {
		return fmt.Errorf("model_config is required")
	}

	// Apply default world size if missing
	if c.WorldSize == nil {
		defaultWorldSize := 1
		c.WorldSize = &defaultWorldSize
	}
	if *c.WorldSize < 1 {
		return fmt.Errorf("world_size must be >= 1, got %d", *c.WorldSize)
	}

	if c.Tracker != nil && c.Tracker.Enabled {
		if c.Project == "" {
			return fmt.Errorf("project is required when the tracker is enabled")
		}
		if c.Tracker.RedisURL == "" {
			return fmt.Errorf("tracker.redis_url is required when the tracker is enabled")
		}
	}

	return nil
}

// TrackingEnabled reports whether the job wants an experiment tracker.
func (c *JobConfig) TrackingEnabled() bool {
	return c.Tracker != nil && c.Tracker.Enabled
}

// Load reads and validates kiln.yml from the specified path.
func Load(path string) (*JobConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config JobConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}
