// Package config loads pool and monitor-server tuning from defaults,
// an optional config file, and environment overrides, the way the
// teacher's config package layers viper defaults under file/env
// overrides.
package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/arcflow-dev/powerpool/internal/work"
)

// Config is the top-level settings object: the tunables that govern
// a dispatcher's thread pool plus the optional HTTP monitor surface.
type Config struct {
	Pool     PoolOptions
	Monitor  MonitorOptions
	LogLevel string
}

// PoolOptions mirrors the dispatcher's construction options: how many
// worker goroutines it may run, how aggressively idle ones are
// disposed of, and the default timeouts applied to work that does not
// set its own.
type PoolOptions struct {
	MaxThreads int

	// MinThreads and KeepAliveTime control reclaim: idle workers beyond
	// MinThreads are disposed of after sitting idle for KeepAliveTime.
	// A zero KeepAliveTime disables reclaim.
	MinThreads    int
	KeepAliveTime time.Duration

	// Timeout arms a one-shot timer the moment the pool transitions from
	// NotRunning/IdleChecked to Running; it is disarmed as soon as the
	// idle sweep next observes no worker running and nothing waiting. If
	// that never happens within Timeout, PoolTimeout fires exactly once
	// and every currently-running work is asked to stop cooperatively.
	// Zero disables it.
	Timeout time.Duration
	// ForceStop is accepted for parity with the per-work option of the
	// same name but cannot force an OS-thread interrupt in Go; a fired
	// pool timeout always just requests a cooperative stop.
	ForceStop bool

	// DefaultWorkTimeout applies to any Work that does not set its own
	// TimeoutOption.
	DefaultWorkTimeout   time.Duration
	DefaultWorkForceStop bool

	// StartSuspended, when true, constructs the pool paused: submitted
	// work queues but no worker dequeues it until Resume is called.
	StartSuspended bool

	// DependencyReleasePredicate decides, given a just-finished
	// prerequisite's terminal state, whether its dependents should be
	// released. Nil means "any terminal state releases", matching the
	// source's unconditional behavior; a caller wanting e.g.
	// Succeeded-only release can supply one. Not loaded from config
	// file/env — set via pkg/workpool's functional options.
	DependencyReleasePredicate func(work.State) bool
}

// MonitorOptions configures the optional read-only HTTP/websocket view
// over dispatcher state.
type MonitorOptions struct {
	Host string
	Port int

	// RateLimitRPS caps requests per second per client on the monitor's
	// API routes; zero disables rate limiting.
	RateLimitRPS int

	Metrics MetricsOptions
	Auth    AuthOptions
}

type MetricsOptions struct {
	Enabled bool
	Path    string
}

type AuthOptions struct {
	Enabled   bool
	JWTSecret string
	APIKeys   []string
}

// Load reads config.yaml from the current directory, ./config, or
// /etc/powerpool, falling back to defaults, then applies POWERPOOL_*
// environment overrides.
func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/powerpool")

	setDefaults()

	viper.SetEnvPrefix("POWERPOOL")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	// Pool defaults
	viper.SetDefault("pool.maxthreads", 100)
	viper.SetDefault("pool.minthreads", 0)
	viper.SetDefault("pool.keepalivetime", 10*time.Second)
	viper.SetDefault("pool.timeout", 0)
	viper.SetDefault("pool.forcestop", false)
	viper.SetDefault("pool.defaultworktimeout", 0)
	viper.SetDefault("pool.defaultworkforcestop", false)
	viper.SetDefault("pool.startsuspended", false)

	// Monitor defaults
	viper.SetDefault("monitor.host", "0.0.0.0")
	viper.SetDefault("monitor.port", 8080)
	viper.SetDefault("monitor.ratelimitrps", 0)

	// Monitor metrics defaults
	viper.SetDefault("monitor.metrics.enabled", true)
	viper.SetDefault("monitor.metrics.path", "/metrics")

	// Monitor auth defaults
	viper.SetDefault("monitor.auth.enabled", false)
	viper.SetDefault("monitor.auth.jwtsecret", "")
	viper.SetDefault("monitor.auth.apikeys", []string{})

	// Logging defaults
	viper.SetDefault("loglevel", "info")
}
