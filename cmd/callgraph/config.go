package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/rendis/callgraph/internal/scheduler"
)

// Config holds the callgraph runtime configuration.
// Priority: flags > env vars > settings.json > defaults.
type Config struct {
	DBPath       string        `json:"db_path"`
	LogLevel     string        `json:"log_level"`
	LogFormat    string        `json:"log_format"`
	TickInterval time.Duration `json:"tick_interval"`
	PoolSize     int           `json:"pool_size"`
	MetricsAddr  string        `json:"metrics_addr"`
}

func defaultConfig(dir string) Config {
	return Config{
		DBPath:       filepath.Join(dir, "callgraph.db"),
		LogLevel:     "info",
		LogFormat:    "text",
		TickInterval: scheduler.DefaultInterval,
		PoolSize:     10,
	}
}

func callgraphDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".callgraph"
	}
	return filepath.Join(home, ".callgraph")
}

func settingsPath(dir string) string {
	return filepath.Join(dir, "settings.json")
}

// envKeys maps settings keys to their environment variables.
var envKeys = map[string]string{
	"db_path":       "CALLGRAPH_DB_PATH",
	"log_level":     "CALLGRAPH_LOG_LEVEL",
	"log_format":    "CALLGRAPH_LOG_FORMAT",
	"tick_interval": "CALLGRAPH_TICK_INTERVAL",
	"pool_size":     "CALLGRAPH_POOL_SIZE",
	"metrics_addr":  "CALLGRAPH_METRICS_ADDR",
}

// loadConfig layers settings.json from dir and the environment over the
// defaults. A missing settings file is not an error.
func loadConfig(dir string, getenv func(string) string) (Config, error) {
	cfg := defaultConfig(dir)

	// Layer 2: settings.json.
	data, err := os.ReadFile(settingsPath(dir))
	switch {
	case err == nil:
		var raw map[string]any
		if err := json.Unmarshal(data, &raw); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", settingsPath(dir), err)
		}
		for key, value := range raw {
			if err := cfg.set(key, value); err != nil {
				return cfg, fmt.Errorf("%s: %w", settingsPath(dir), err)
			}
		}
	case !os.IsNotExist(err):
		return cfg, fmt.Errorf("read %s: %w", settingsPath(dir), err)
	}

	// Layer 3: env vars override.
	for key, env := range envKeys {
		if v := getenv(env); v != "" {
			if err := cfg.set(key, v); err != nil {
				return cfg, fmt.Errorf("%s: %w", env, err)
			}
		}
	}
	return cfg, nil
}

// set assigns one settings key, coercing strings and JSON numbers.
func (c *Config) set(key string, value any) error {
	var err error
	switch key {
	case "db_path":
		c.DBPath, err = cast.ToStringE(value)
	case "log_level":
		c.LogLevel, err = cast.ToStringE(value)
	case "log_format":
		c.LogFormat, err = cast.ToStringE(value)
	case "tick_interval":
		var d time.Duration
		if d, err = cast.ToDurationE(value); err == nil && d <= 0 {
			err = fmt.Errorf("must be positive, got %s", d)
		}
		if err == nil {
			c.TickInterval = d
		}
	case "pool_size":
		var n int
		if n, err = cast.ToIntE(value); err == nil && n < 1 {
			err = fmt.Errorf("must be at least 1, got %d", n)
		}
		if err == nil {
			c.PoolSize = n
		}
	case "metrics_addr":
		c.MetricsAddr, err = cast.ToStringE(value)
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	return nil
}

// flagKeys maps persistent flags to settings keys.
var flagKeys = map[string]string{
	"db-path":       "db_path",
	"log-level":     "log_level",
	"log-format":    "log_format",
	"tick-interval": "tick_interval",
	"pool-size":     "pool_size",
	"metrics-addr":  "metrics_addr",
}

// applyFlags overrides cfg with every flag set explicitly on the command line.
func applyFlags(cfg *Config, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := cfg.set(key, flag.Value.String()); err != nil {
			return fmt.Errorf("--%s: %w", name, err)
		}
	}
	return nil
}

// resolveConfig builds the effective configuration for a command.
func resolveConfig(cmd *cobra.Command) (Config, error) {
	cfg, err := loadConfig(callgraphDir(), os.Getenv)
	if err != nil {
		return cfg, err
	}
	if err := applyFlags(&cfg, cmd); err != nil {
		return cfg, err
	}
	return cfg, nil
}
