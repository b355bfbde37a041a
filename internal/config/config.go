// Package config loads seqguard's runtime configuration from YAML,
// layering an explicit config file over the global one and built-in
// defaults.
package config

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML parses the duration string form.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err != nil {
		return fmt.Errorf("duration must be a string like %q", "5m")
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the canonical string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Config is the complete seqguard configuration.
type Config struct {
	Version  string   `yaml:"version"`
	Settings Settings `yaml:"settings"`
	Tracker  Tracker  `yaml:"tracker"`
	Server   Server   `yaml:"server"`
	Storage  Storage  `yaml:"storage"`
}

// Settings contains global configuration settings.
type Settings struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file,omitempty"`
	// RulesDir holds user rule files loaded alongside the builtin pack.
	RulesDir string `yaml:"rules_dir,omitempty"`
	// DisableBuiltin skips the embedded rule pack entirely.
	DisableBuiltin bool `yaml:"disable_builtin,omitempty"`
	// WatchRules reloads RulesDir on changes while serving.
	WatchRules bool `yaml:"watch_rules,omitempty"`
}

// Tracker controls session lifecycle behavior.
type Tracker struct {
	IdleTTL       Duration `yaml:"idle_ttl,omitempty"`
	SweepInterval Duration `yaml:"sweep_interval,omitempty"`
	MinHistory    int      `yaml:"min_history,omitempty"`
}

// Server configures the HTTP ingest daemon.
type Server struct {
	Bind    string `yaml:"bind,omitempty"`
	Port    int    `yaml:"port,omitempty"`
	Metrics bool   `yaml:"metrics"`
}

// Storage configures the detection store.
type Storage struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path,omitempty"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Settings: Settings{
			LogLevel: "info",
		},
		Tracker: Tracker{
			IdleTTL:       Duration(30 * time.Minute),
			SweepInterval: Duration(time.Minute),
			MinHistory:    64,
		},
		Server: Server{
			Bind:    "127.0.0.1",
			Port:    8642,
			Metrics: true,
		},
		Storage: Storage{
			Enabled: false,
			Path:    "seqguard.db",
		},
	}
}
