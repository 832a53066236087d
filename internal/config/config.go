// Package config loads pdbscope settings from a YAML file and PDBSCOPE_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jtang613/pdbscope/internal/batch"
	"github.com/jtang613/pdbscope/internal/index"
)

const (
	// EnvConfigPath names the environment variable that points at a config
	// file.
	EnvConfigPath = "PDBSCOPE_CONFIG"

	appDir     = "pdbscope"
	configFile = "config.yaml"
)

// Config is the complete pdbscope configuration.
type Config struct {
	Log         LogConfig         `yaml:"log"`
	Limits      index.Limits      `yaml:"limits"`
	Batch       BatchConfig       `yaml:"batch"`
	Cache       CacheConfig       `yaml:"cache"`
	SymbolStore SymbolStoreConfig `yaml:"symbol_store"`
}

// LogConfig controls diagnostic output.
type LogConfig struct {
	Level  string `yaml:"level" env:"PDBSCOPE_LOG_LEVEL"`
	Pretty bool   `yaml:"pretty" env:"PDBSCOPE_LOG_PRETTY"`
}

// BatchConfig controls batch processing.
type BatchConfig struct {
	Jobs      int    `yaml:"jobs" env:"PDBSCOPE_JOBS"`
	Suffix    string `yaml:"suffix" env:"PDBSCOPE_BATCH_SUFFIX"`
	OutputDir string `yaml:"output_dir" env:"PDBSCOPE_OUTPUT_DIR"`
	Extension string `yaml:"extension" env:"PDBSCOPE_BATCH_EXTENSION"`
}

// CacheConfig controls the snapshot disk cache. An empty Dir disables it.
type CacheConfig struct {
	Dir string `yaml:"dir" env:"PDBSCOPE_CACHE_DIR"`
}

// SymbolStoreConfig locates the local symbol store.
type SymbolStoreConfig struct {
	Dir string `yaml:"dir" env:"PDBSCOPE_SYMBOL_STORE"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Log:    LogConfig{Level: "info", Pretty: true},
		Limits: index.DefaultLimits(),
		Batch: BatchConfig{
			Jobs:      1,
			Suffix:    batch.DefaultSuffix,
			OutputDir: batch.DefaultOutputDir,
			Extension: batch.DefaultExtension,
		},
	}
}

// DefaultPath returns the per-user config file location.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, appDir, configFile), nil
}

// ResolvePath picks the config file to read: explicit, then $PDBSCOPE_CONFIG,
// then the per-user file when it exists. An empty result means defaults only.
func ResolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv(EnvConfigPath); p != "" {
		return p
	}
	p, err := DefaultPath()
	if err != nil {
		return ""
	}
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// Load reads the file at path over the defaults, then applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		//nolint:gosec // G304: path is chosen by the user.
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := LoadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the tool cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Limits.MaxSymbols <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_symbols must be positive, got %d", c.Limits.MaxSymbols))
	}
	if c.Limits.MaxMatches <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_matches must be positive, got %d", c.Limits.MaxMatches))
	}
	if c.Limits.MaxStructNames <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_struct_names must be positive, got %d", c.Limits.MaxStructNames))
	}
	if c.Limits.MaxMembers <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_members must be positive, got %d", c.Limits.MaxMembers))
	}
	if c.Batch.Jobs <= 0 {
		errs = append(errs, fmt.Errorf("batch.jobs must be positive, got %d", c.Batch.Jobs))
	}
	if c.Batch.Suffix == "" {
		errs = append(errs, errors.New("batch.suffix cannot be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// SymbolStoreDir returns the configured store root, defaulting to
// <user cache dir>/pdbscope/symbols.
func (c *Config) SymbolStoreDir() (string, error) {
	if c.SymbolStore.Dir != "" {
		return c.SymbolStore.Dir, nil
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user cache directory: %w", err)
	}
	return filepath.Join(dir, appDir, "symbols"), nil
}
