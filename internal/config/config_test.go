package config

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper() {
	viper.Reset()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()

	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	// Pool defaults
	assert.Equal(t, 100, cfg.Pool.MaxThreads)
	assert.Equal(t, 0, cfg.Pool.MinThreads)
	assert.Equal(t, 10*time.Second, cfg.Pool.KeepAliveTime)
	assert.Equal(t, time.Duration(0), cfg.Pool.Timeout)
	assert.False(t, cfg.Pool.ForceStop)
	assert.Equal(t, time.Duration(0), cfg.Pool.DefaultWorkTimeout)
	assert.False(t, cfg.Pool.DefaultWorkForceStop)
	assert.False(t, cfg.Pool.StartSuspended)

	// Monitor defaults
	assert.Equal(t, "0.0.0.0", cfg.Monitor.Host)
	assert.Equal(t, 8080, cfg.Monitor.Port)
	assert.Equal(t, 0, cfg.Monitor.RateLimitRPS)
	assert.True(t, cfg.Monitor.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Monitor.Metrics.Path)
	assert.False(t, cfg.Monitor.Auth.Enabled)
	assert.Equal(t, "", cfg.Monitor.Auth.JWTSecret)
	assert.Empty(t, cfg.Monitor.Auth.APIKeys)

	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_WithEnvVars(t *testing.T) {
	resetViper()

	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	os.Setenv("POWERPOOL_POOL_MAXTHREADS", "250")
	os.Setenv("POWERPOOL_MONITOR_PORT", "9090")
	os.Setenv("POWERPOOL_LOGLEVEL", "debug")
	defer func() {
		os.Unsetenv("POWERPOOL_POOL_MAXTHREADS")
		os.Unsetenv("POWERPOOL_MONITOR_PORT")
		os.Unsetenv("POWERPOOL_LOGLEVEL")
	}()

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.Pool.MaxThreads)
	assert.Equal(t, 9090, cfg.Monitor.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_WithConfigFile(t *testing.T) {
	resetViper()

	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	contents := []byte("pool:\n  maxthreads: 16\n  minthreads: 4\nmonitor:\n  port: 9999\n")
	require.NoError(t, os.WriteFile("config.yaml", contents, 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 16, cfg.Pool.MaxThreads)
	assert.Equal(t, 4, cfg.Pool.MinThreads)
	assert.Equal(t, 9999, cfg.Monitor.Port)
}

func TestPoolOptions_Fields(t *testing.T) {
	opts := PoolOptions{
		MaxThreads:           8,
		MinThreads:           2,
		KeepAliveTime:        5 * time.Second,
		Timeout:              time.Minute,
		ForceStop:            true,
		DefaultWorkTimeout:   30 * time.Second,
		DefaultWorkForceStop: false,
		StartSuspended:       true,
	}

	assert.Equal(t, 8, opts.MaxThreads)
	assert.Equal(t, 2, opts.MinThreads)
	assert.Equal(t, 5*time.Second, opts.KeepAliveTime)
	assert.Equal(t, time.Minute, opts.Timeout)
	assert.True(t, opts.ForceStop)
	assert.Equal(t, 30*time.Second, opts.DefaultWorkTimeout)
	assert.False(t, opts.DefaultWorkForceStop)
	assert.True(t, opts.StartSuspended)
}

func TestMonitorOptions_Fields(t *testing.T) {
	opts := MonitorOptions{
		Host: "127.0.0.1",
		Port: 9091,
		Metrics: MetricsOptions{
			Enabled: true,
			Path:    "/custom-metrics",
		},
		Auth: AuthOptions{
			Enabled:   true,
			JWTSecret: "s3cr3t",
			APIKeys:   []string{"key-a", "key-b"},
		},
	}

	assert.Equal(t, "127.0.0.1", opts.Host)
	assert.Equal(t, 9091, opts.Port)
	assert.True(t, opts.Metrics.Enabled)
	assert.Equal(t, "/custom-metrics", opts.Metrics.Path)
	assert.True(t, opts.Auth.Enabled)
	assert.Equal(t, "s3cr3t", opts.Auth.JWTSecret)
	assert.Equal(t, []string{"key-a", "key-b"}, opts.Auth.APIKeys)
}
