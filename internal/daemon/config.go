// Package daemon manages the loom daemon lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all daemon configuration.
type Config struct {
	API       APIConfig       `toml:"api"`
	Store     StoreConfig     `toml:"store"`
	Queue     QueueConfig     `toml:"queue"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// APIConfig controls the HTTP API server.
type APIConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// StoreConfig controls where the queue database lives.
type StoreConfig struct {
	Dir string `toml:"dir"`
}

// QueueConfig controls reservation timeouts and reclamation.
type QueueConfig struct {
	// ReservationTimeout is how long a claim may sit without completion
	// before the reclaimer releases it.
	ReservationTimeout string `toml:"reservation_timeout"`
	// ReclaimInterval is how often the background reclaimer runs. Empty or
	// "0" disables it; reclamation can still be triggered via the API.
	ReclaimInterval string `toml:"reclaim_interval"`
	// MaxAncestryDepth bounds parent-chain walks. Zero uses the built-in
	// default.
	MaxAncestryDepth int `toml:"max_ancestry_depth"`
}

// TelemetryConfig controls metrics exposure.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level string `toml:"level"`
	File  string `toml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	homeDir := loomHome()
	return Config{
		API: APIConfig{
			Host: "127.0.0.1",
			Port: 7420,
		},
		Store: StoreConfig{
			Dir: homeDir,
		},
		Queue: QueueConfig{
			ReservationTimeout: "1h",
			ReclaimInterval:    "1m",
		},
		Logging: LoggingConfig{
			Level: "info",
			File:  filepath.Join(homeDir, "loom.log"),
		},
	}
}

// LoadConfig reads config from ~/.loom/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := filepath.Join(loomHome(), "config.toml")

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // No config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.loom/config.toml.
func SaveConfig(cfg Config) error {
	path := filepath.Join(loomHome(), "config.toml")
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// ReservationTimeout returns the parsed reservation timeout.
func (c Config) ReservationTimeout() time.Duration {
	return parseDuration(c.Queue.ReservationTimeout, time.Hour)
}

// ReclaimInterval returns the parsed reclaim interval; zero disables the
// background reclaimer.
func (c Config) ReclaimInterval() time.Duration {
	return parseDuration(c.Queue.ReclaimInterval, 0)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// loomHome returns the loom data directory.
func loomHome() string {
	if env := os.Getenv("LOOM_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".loom")
}

// LoomHome is exported for use by other packages.
func LoomHome() string {
	return loomHome()
}
