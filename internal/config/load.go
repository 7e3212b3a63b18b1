package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v2"
)

// DefaultFile is read when present.
const DefaultFile = "config/linkctl.yaml"

// EnvConfig names an additional config file.
const EnvConfig = "LINKCTL_CONFIG"

// Load merges defaults, config/linkctl.yaml, the file named by path (or
// LINKCTL_CONFIG when path is empty) and LINKCTL_* environment overrides,
// then validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	// Optional project file
	if err := loadFromFile(cfg, DefaultFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load %s: %w", DefaultFile, err)
	}

	if path == "" {
		path = os.Getenv(EnvConfig)
	}
	if path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// loadFromFile merges a YAML file over cfg.
func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

// applyEnvOverrides applies LINKCTL_* environment variables.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("LINKCTL_FACTORY_ADDRESS"); v != "" {
		cfg.Device.FactoryAddress = v
	}
	if v := os.Getenv("LINKCTL_ADDRESS_PREFIX"); v != "" {
		cfg.Device.AddressPrefix = v
	}
	if v := os.Getenv("LINKCTL_COMMAND_WAIT_SEC"); v != "" {
		sec, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LINKCTL_COMMAND_WAIT_SEC: %w", err)
		}
		cfg.Timing.CommandWaitSec = sec
	}
	if v := os.Getenv("LINKCTL_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LINKCTL_SERIAL_DEVICE"); v != "" {
		cfg.Serial.Device = v
	}
	return nil
}
