package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envFrom(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestLoadConfig_Defaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := loadConfig(dir, envFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "callgraph.db"), cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 10, cfg.PoolSize)
	assert.Empty(t, cfg.MetricsAddr)
}

func TestLoadConfig_SettingsFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(settingsPath(dir), []byte(`{
		"db_path": "/data/cg.db",
		"log_format": "json",
		"tick_interval": "250ms",
		"pool_size": 4,
		"metrics_addr": ":9100"
	}`), 0o644))

	cfg, err := loadConfig(dir, envFrom(nil))
	require.NoError(t, err)
	assert.Equal(t, "/data/cg.db", cfg.DBPath)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 4, cfg.PoolSize)
	assert.Equal(t, ":9100", cfg.MetricsAddr)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(settingsPath(dir), []byte(`{"pool_size": 4, "log_level": "warn"}`), 0o644))

	cfg, err := loadConfig(dir, envFrom(map[string]string{
		"CALLGRAPH_POOL_SIZE":     "8",
		"CALLGRAPH_TICK_INTERVAL": "1s",
	}))
	require.NoError(t, err)
	assert.Equal(t, 8, cfg.PoolSize)
	assert.Equal(t, time.Second, cfg.TickInterval)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestLoadConfig_Errors(t *testing.T) {
	tests := []struct {
		name     string
		settings string
		env      map[string]string
		want     string
	}{
		{"malformed file", `{"pool_size":`, nil, "parse"},
		{"unknown key", `{"listen_addr": ":1"}`, nil, `unknown setting "listen_addr"`},
		{"bad pool size", `{"pool_size": 0}`, nil, "invalid pool_size"},
		{"bad env interval", ``, map[string]string{"CALLGRAPH_TICK_INTERVAL": "soon"}, "CALLGRAPH_TICK_INTERVAL"},
		{"negative interval", ``, map[string]string{"CALLGRAPH_TICK_INTERVAL": "-1s"}, "must be positive"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			if tc.settings != "" {
				require.NoError(t, os.WriteFile(settingsPath(dir), []byte(tc.settings), 0o644))
			}
			_, err := loadConfig(dir, envFrom(tc.env))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestApplyFlags(t *testing.T) {
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("log-level", "", "")
	cmd.Flags().Duration("tick-interval", 0, "")
	cmd.Flags().Int("pool-size", 0, "")
	require.NoError(t, cmd.Flags().Parse([]string{"--log-level=debug", "--tick-interval=50ms"}))

	cfg := defaultConfig(t.TempDir())
	require.NoError(t, applyFlags(&cfg, cmd))
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 50*time.Millisecond, cfg.TickInterval)
	assert.Equal(t, 10, cfg.PoolSize, "unset flags keep the layered value")

	require.NoError(t, cmd.Flags().Parse([]string{"--pool-size=0"}))
	assert.ErrorContains(t, applyFlags(&cfg, cmd), "--pool-size")
}
