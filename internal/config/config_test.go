package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "aws", cfg.ObjectStore.Provider)
	assert.True(t, cfg.ObjectStore.UseSSL)
	assert.Equal(t, 100, cfg.Executor.QueueDepth)
	assert.Equal(t, 10, cfg.Executor.Workers)
	assert.Equal(t, 32, cfg.Executor.ChunkSizeMB)
	assert.Equal(t, int64(32<<20), cfg.Executor.ChunkSize())
	assert.True(t, cfg.Executor.Multipart)
	assert.True(t, cfg.Executor.Checksum)
	assert.Equal(t, 3, cfg.Executor.MaxAttempts)
	assert.Equal(t, time.Duration(0), cfg.Executor.AttemptTimeout)
	assert.Equal(t, 100*time.Millisecond, cfg.Executor.RetryBaseDelay)
	assert.Equal(t, 8, cfg.Partition.Groups)
	assert.Equal(t, int64(1000), cfg.Partition.UnitWeight)
	assert.Equal(t, 2, cfg.Partition.Parallelism)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()

	configFile := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte(
		"executor:\n  workers: 3\n  queue_depth: 5\npartition:\n  groups: 4\n"), 0o644))

	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TREESYNC_EXECUTOR_QUEUE_DEPTH=50\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("TREESYNC_EXECUTOR_QUEUE_DEPTH") })

	t.Setenv("TREESYNC_PARTITION_GROUPS", "16")
	t.Setenv("TREESYNC_EXECUTOR_ATTEMPT_TIMEOUT", "30s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.Int("workers", 0, "")
	flags.Int("groups", 0, "")
	require.NoError(t, flags.Parse([]string{"--workers=7"}))

	cfg, err := Load(Options{EnvFile: envFile, ConfigFile: configFile, Flags: flags})
	require.NoError(t, err)

	assert.Equal(t, 7, cfg.Executor.Workers, "flag beats config file")
	assert.Equal(t, 50, cfg.Executor.QueueDepth, ".env beats config file")
	assert.Equal(t, 16, cfg.Partition.Groups, "env beats config file and unset flag")
	assert.Equal(t, 30*time.Second, cfg.Executor.AttemptTimeout)
	assert.Equal(t, 32, cfg.Executor.ChunkSizeMB, "default kept")
}

func TestLoadMissingConfigFile(t *testing.T) {
	_, err := Load(Options{ConfigFile: filepath.Join(t.TempDir(), "missing.yaml")})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"zero workers", func(c *Config) { c.Executor.Workers = 0 }, "executor.workers"},
		{"negative queue", func(c *Config) { c.Executor.QueueDepth = -1 }, "executor.queue_depth"},
		{"zero groups", func(c *Config) { c.Partition.Groups = 0 }, "partition.groups"},
		{"zero parallelism", func(c *Config) { c.Partition.Parallelism = 0 }, "partition.parallelism"},
		{"zero chunk", func(c *Config) { c.Executor.ChunkSizeMB = 0 }, "executor.chunk_size_mb"},
		{"negative weight", func(c *Config) { c.Partition.UnitWeight = -1 }, "partition.unit_weight"},
		{"negative timeout", func(c *Config) { c.Executor.AttemptTimeout = -time.Second }, "durations"},
		{"bad provider", func(c *Config) { c.ObjectStore.Provider = "gcs" }, "object_store.provider"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestUnitWeightZeroAllowed(t *testing.T) {
	cfg := Default()
	cfg.Partition.UnitWeight = 0
	assert.NoError(t, cfg.Validate())
}
