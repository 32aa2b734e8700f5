package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/imamik/vpcmesh/internal/topology"
)

// DefaultConfigFilename is the default configuration filename.
const DefaultConfigFilename = "vpcmesh.yaml"

// Load loads, defaults and validates a configuration from a file.
func Load(path string) (*Config, error) {
	cfg, err := LoadWithoutValidation(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: configuration validation failed: %w", topology.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// LoadWithoutValidation loads a configuration from a file and applies
// defaults without validating it.
func LoadWithoutValidation(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return parseConfig(data)
}

// LoadFromBytes loads, defaults and validates a configuration from bytes.
func LoadFromBytes(data []byte) (*Config, error) {
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%w: configuration validation failed: %w", topology.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// parseConfig parses YAML data into a Config and applies defaults.
// Unknown fields are rejected so that typos do not silently drop a section.
func parseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yamlUnmarshalStrict(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: failed to parse YAML: %w", topology.ErrInvalidConfig, err)
	}
	cfg.ApplyDefaults()
	return &cfg, nil
}

// DefaultConfigPath returns the default path for the config file in the
// current working directory.
func DefaultConfigPath() string {
	cwd, err := os.Getwd()
	if err != nil {
		return DefaultConfigFilename
	}
	return filepath.Join(cwd, DefaultConfigFilename)
}

// FindConfigFile searches the current directory and then its parents for
// vpcmesh.yaml.
func FindConfigFile() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}

	dir := cwd
	for {
		path := filepath.Join(dir, DefaultConfigFilename)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return "", fmt.Errorf("config file %s not found", DefaultConfigFilename)
}

// Save writes a configuration to a file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
