// Package config loads flakeseer configuration from an optional YAML
// file, layered under command-line flags.
package config

import (
	"fmt"
	"os"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory
// when --config is not given.
const DefaultPath = ".flakeseer.yaml"

// Config holds the detection session configuration. Zero values mean
// "not set" and are filled by Defaults or flag overlay.
type Config struct {
	Runs           int           `yaml:"runs"`
	TimeoutPerRun  time.Duration `yaml:"timeoutPerRun"`
	SessionTimeout time.Duration `yaml:"sessionTimeout"`
	Parallel       int           `yaml:"parallel"`
	Adapter        string        `yaml:"adapter"`
	OutDir         string        `yaml:"outDir"`
	Analyze        *bool         `yaml:"analyze"`
	Suggest        *bool         `yaml:"suggest"`
	FailOnFlake    *bool         `yaml:"failOnFlake"`
	LogLevel       string        `yaml:"logLevel"`
	LogFormat      string        `yaml:"logFormat"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	on := true
	return &Config{
		Runs:          10,
		TimeoutPerRun: 5 * time.Minute,
		Parallel:      1,
		Adapter:       "gotest",
		OutDir:        ".flakeseer",
		Analyze:       &on,
		Suggest:       &on,
		FailOnFlake:   &on,
		LogLevel:      "info",
		LogFormat:     "text",
	}
}

// Load reads a YAML config file and merges it over Defaults. A missing
// file at the default path is not an error; a missing explicit path is.
func Load(path string, explicit bool) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var file Config
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.merge(&file)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// merge overlays non-zero fields of other onto c.
func (c *Config) merge(other *Config) {
	if other.Runs > 0 {
		c.Runs = other.Runs
	}
	if other.TimeoutPerRun > 0 {
		c.TimeoutPerRun = other.TimeoutPerRun
	}
	if other.SessionTimeout > 0 {
		c.SessionTimeout = other.SessionTimeout
	}
	if other.Parallel > 0 {
		c.Parallel = other.Parallel
	}
	if other.Adapter != "" {
		c.Adapter = other.Adapter
	}
	if other.OutDir != "" {
		c.OutDir = other.OutDir
	}
	if other.Analyze != nil {
		c.Analyze = other.Analyze
	}
	if other.Suggest != nil {
		c.Suggest = other.Suggest
	}
	if other.FailOnFlake != nil {
		c.FailOnFlake = other.FailOnFlake
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.LogFormat != "" {
		c.LogFormat = other.LogFormat
	}
}

// Validate checks field ranges.
func (c *Config) Validate() error {
	if c.Runs < 1 {
		return fmt.Errorf("runs must be >= 1, got %d", c.Runs)
	}
	if c.TimeoutPerRun <= 0 {
		return fmt.Errorf("timeoutPerRun must be positive, got %s", c.TimeoutPerRun)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be >= 1, got %d", c.Parallel)
	}
	switch c.Adapter {
	case "gotest", "pytest":
	default:
		return fmt.Errorf("unknown adapter %q (want gotest or pytest)", c.Adapter)
	}
	return nil
}
