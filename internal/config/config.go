// Package config loads the hearth host configuration: integration search
// roots, logging, and discovery settings. Values come from an optional TOML
// file with HEARTH_* environment variables layered on top.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is the hearth host configuration.
type Config struct {
	Paths   Paths   `toml:"paths"`
	Logging Logging `toml:"logging"`
	Watcher Watcher `toml:"watcher"`

	// SafeMode skips the custom roots entirely, loading only built-in
	// integrations. Recovery setting for a host broken by a custom
	// integration.
	SafeMode bool `toml:"safe_mode"`
}

// Paths are the integration search roots, in resolution order.
type Paths struct {
	// Builtin roots hold the integrations shipped with the host.
	Builtin []string `toml:"builtin"`

	// Custom roots are consulted first and override built-in integrations.
	Custom []string `toml:"custom"`
}

// Logging configures the zap logger.
type Logging struct {
	Level       string `toml:"level"`       // debug, info, warn, error
	Development bool   `toml:"development"` // console encoding, caller info
}

// Watcher configures custom-root discovery watching.
type Watcher struct {
	Enabled bool `toml:"enabled"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Paths: Paths{
			Builtin: []string{"components"},
			Custom:  []string{"custom_components"},
		},
		Logging: Logging{Level: "info"},
		Watcher: Watcher{Enabled: true},
	}
}

// Load reads configuration from a TOML file over the defaults. A missing
// file is not an error; the defaults are returned.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config file %s: %w", path, err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	return cfg, nil
}

// ApplyEnv overlays HEARTH_* environment variables. List-valued variables
// take os.PathListSeparator-joined paths.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("HEARTH_BUILTIN_PATH"); v != "" {
		c.Paths.Builtin = splitPathList(v)
	}
	if v := os.Getenv("HEARTH_CUSTOM_PATH"); v != "" {
		c.Paths.Custom = splitPathList(v)
	}
	if v := os.Getenv("HEARTH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("HEARTH_SAFE_MODE"); v != "" {
		c.SafeMode = v == "true" || v == "1"
	}
	if v := os.Getenv("HEARTH_WATCH"); v != "" {
		c.Watcher.Enabled = v == "true" || v == "1"
	}
}

// BuildLogger constructs a zap logger from the logging settings.
func (c Config) BuildLogger() (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(c.Logging.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.Logging.Level, err)
	}

	var zcfg zap.Config
	if c.Logging.Development {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)

	return zcfg.Build()
}

// splitPathList splits an os.PathListSeparator-joined path list.
func splitPathList(v string) []string {
	parts := strings.Split(v, string(os.PathListSeparator))
	paths := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}
