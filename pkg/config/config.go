// Package config loads the engine's YAML configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every configuration option the core consumes.
type Config struct {
	NodeID   string `yaml:"node_id"`
	BindAddr string `yaml:"bind_addr"`
	DataDir  string `yaml:"data_dir"`

	PeriodicInterval     time.Duration `yaml:"periodic_interval"`
	DefaultActionTimeout time.Duration `yaml:"default_action_timeout"`
	MaxEventsPerCluster  int           `yaml:"max_events_per_cluster"`
	EventPurgeBatchSize  int           `yaml:"event_purge_batch_size"`
	LockRetryTimes       int           `yaml:"lock_retry_times"`
	LockRetryInterval    time.Duration `yaml:"lock_retry_interval"`
	CipherInitVector     string        `yaml:"cipher_init_vector"`
	WorkerPoolSize       int           `yaml:"worker_pool_size"`

	LogLevel  string `yaml:"log_level"`
	LogJSON   bool   `yaml:"log_json"`
}

// Default returns a Config with sensible defaults, seeded before
// flag/env override.
func Default() Config {
	return Config{
		BindAddr:             "0.0.0.0:7750",
		DataDir:              "./data",
		PeriodicInterval:     10 * time.Second,
		DefaultActionTimeout: 3600 * time.Second,
		MaxEventsPerCluster:  0, // 0 disables pruning — never purge by default
		EventPurgeBatchSize:  100,
		LockRetryTimes:       3,
		LockRetryInterval:    2 * time.Second,
		CipherInitVector:     "FleetEngineIV16!",
		WorkerPoolSize:       4,
		LogLevel:             "info",
	}
}

// Validate enforces the engine's strictly-positive duration/size constraints.
func (c Config) Validate() error {
	if c.PeriodicInterval <= 0 {
		return fmt.Errorf("periodic_interval must be > 0")
	}
	if c.DefaultActionTimeout <= 0 {
		return fmt.Errorf("default_action_timeout must be > 0")
	}
	if c.MaxEventsPerCluster < 0 {
		return fmt.Errorf("max_events_per_cluster must be >= 0")
	}
	if c.EventPurgeBatchSize <= 0 {
		return fmt.Errorf("event_purge_batch_size must be > 0")
	}
	if c.LockRetryTimes < 0 {
		return fmt.Errorf("lock_retry_times must be >= 0")
	}
	if c.LockRetryInterval <= 0 {
		return fmt.Errorf("lock_retry_interval must be > 0")
	}
	if len(c.CipherInitVector) != 16 {
		return fmt.Errorf("cipher_init_vector must be exactly 16 bytes, got %d", len(c.CipherInitVector))
	}
	return nil
}

// Load reads and merges a YAML config file onto the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
