// Package config loads the application configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sorrow233/flowsync/internal/backup"
)

// Duration wraps time.Duration so yaml values can be written as "5m" or
// "1h30m" instead of nanosecond integers.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// BackupConfig holds the backup schedule knobs.
type BackupConfig struct {
	// MinSpacing is the minimum gap between non-forced backups.
	MinSpacing Duration `yaml:"min_spacing"`

	// Retention is how long backups are kept.
	Retention Duration `yaml:"retention"`

	// Interval is the nominal scheduling interval.
	Interval Duration `yaml:"interval"`

	// FirstDelay is the delay before the first backup of a fresh
	// installation.
	FirstDelay Duration `yaml:"first_delay"`
}

// Config is the application configuration.
type Config struct {
	// DocumentID identifies the synced document this client binds to.
	DocumentID string `yaml:"document_id"`

	// Owner is the ownership hint passed to the registry.
	Owner string `yaml:"owner,omitempty"`

	// StoragePath is the client-local SQLite database file.
	StoragePath string `yaml:"storage_path"`

	// RemoteURL is the websocket sync endpoint. Empty keeps the client
	// fully local.
	RemoteURL string `yaml:"remote_url,omitempty"`

	Backup BackupConfig `yaml:"backup"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		DocumentID:  "flowsync-main",
		StoragePath: "flowsync.db",
		Backup: BackupConfig{
			MinSpacing: Duration(backup.DefaultMinSpacing),
			Retention:  Duration(backup.DefaultRetention),
			Interval:   Duration(backup.DefaultInterval),
			FirstDelay: Duration(backup.DefaultFirstDelay),
		},
	}
}

// Load reads a yaml config file. Missing fields keep their defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.DocumentID == "" {
		return fmt.Errorf("document_id must not be empty")
	}
	if c.StoragePath == "" {
		return fmt.Errorf("storage_path must not be empty")
	}
	for name, d := range map[string]Duration{
		"backup.min_spacing": c.Backup.MinSpacing,
		"backup.retention":   c.Backup.Retention,
		"backup.interval":    c.Backup.Interval,
		"backup.first_delay": c.Backup.FirstDelay,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	return nil
}
