package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

const (
	// LocalConfigFile is the project-local developer config filename.
	LocalConfigFile = "rulesync.local.toml"
	// GlobalDirName is the per-user config directory under $HOME.
	GlobalDirName = ".rulesync"

	DefaultConcurrency = 10
	DefaultLogLevel    = "info"
	DefaultLogFormat   = "text"
)

// DevConfig holds developer-specific configuration that is NOT committed
// to version control. It is resolved with Viper precedence:
// CLI flags > rulesync.local.toml (project) > ~/.rulesync/config.toml (global).
type DevConfig struct {
	Targets     []string `toml:"targets,omitempty" mapstructure:"targets"`
	Concurrency int      `toml:"concurrency,omitempty" mapstructure:"concurrency"`
	LogLevel    string   `toml:"logLevel,omitempty" mapstructure:"logLevel"`
	LogFormat   string   `toml:"logFormat,omitempty" mapstructure:"logFormat"`
}

// Overrides are command-line values. Zero values leave lower layers in
// effect.
type Overrides struct {
	Targets     []string
	Concurrency int
	LogLevel    string
	LogFormat   string
}

// LoadDevConfig resolves developer configuration for the project at baseDir
// using Viper's merge semantics.
func LoadDevConfig(baseDir string, flags Overrides) (*DevConfig, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("determining home directory: %w", err)
	}
	globalPath := filepath.Join(home, GlobalDirName, "config.toml")
	return loadDevConfig(flags, globalPath, filepath.Join(baseDir, LocalConfigFile))
}

// loadDevConfig is the internal implementation that accepts explicit paths,
// making it testable without touching the real home directory.
func loadDevConfig(flags Overrides, globalPath, localPath string) (*DevConfig, error) {
	v := viper.New()
	v.SetConfigType("toml")
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("logLevel", DefaultLogLevel)
	v.SetDefault("logFormat", DefaultLogFormat)

	// Lowest priority: global config
	if _, err := os.Stat(globalPath); err == nil {
		v.SetConfigFile(globalPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", globalPath, err)
		}
	}

	// Higher priority: project-local config
	if _, err := os.Stat(localPath); err == nil {
		v.SetConfigFile(localPath)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading %s: %w", localPath, err)
		}
	}

	// Highest priority: CLI flags
	if len(flags.Targets) > 0 {
		v.Set("targets", flags.Targets)
	}
	if flags.Concurrency > 0 {
		v.Set("concurrency", flags.Concurrency)
	}
	if flags.LogLevel != "" {
		v.Set("logLevel", flags.LogLevel)
	}
	if flags.LogFormat != "" {
		v.Set("logFormat", flags.LogFormat)
	}

	cfg := &DevConfig{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling dev config: %w", err)
	}
	if cfg.Concurrency <= 0 {
		return nil, fmt.Errorf("concurrency must be positive, got %d", cfg.Concurrency)
	}

	return cfg, nil
}

// GlobalConfigDir returns the path to ~/.rulesync, creating it if necessary.
func GlobalConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("determining home directory: %w", err)
	}
	dir := filepath.Join(home, GlobalDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating %s: %w", dir, err)
	}
	return dir, nil
}

// WriteLocalDevConfig persists developer config to rulesync.local.toml in
// the given project directory.
func WriteLocalDevConfig(projectDir string, cfg *DevConfig) error {
	return writeDevConfig(filepath.Join(projectDir, LocalConfigFile), cfg)
}

// WriteGlobalDevConfig persists developer config to ~/.rulesync/config.toml.
func WriteGlobalDevConfig(cfg *DevConfig) error {
	dir, err := GlobalConfigDir()
	if err != nil {
		return err
	}
	return writeDevConfig(filepath.Join(dir, "config.toml"), cfg)
}

func writeDevConfig(path string, cfg *DevConfig) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling dev config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	return nil
}
