// Package config loads server configuration with the precedence
// defaults → YAML file → environment. Environment variables use the
// TESTHTTPD_ prefix, e.g. TESTHTTPD_MAXCONN=4.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "TESTHTTPD_"

type Config struct {
	// Listen is the address the test server binds. Port 0 picks an
	// ephemeral port; the chosen address is reported on stdout.
	Listen string `yaml:"listen"`
	// MaxConn caps concurrently open connections.
	MaxConn int `yaml:"maxconn"`
	// Timeout is the per-connection inactivity window.
	Timeout time.Duration `yaml:"timeout"`
	// MetricsListen, when non-empty, serves Prometheus metrics on a side
	// listener.
	MetricsListen string `yaml:"metrics_listen"`
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

func Default() Config {
	return Config{
		Listen:   "127.0.0.1:0",
		MaxConn:  16,
		Timeout:  60 * time.Second,
		LogLevel: "info",
	}
}

// Load builds a Config from defaults, an optional YAML file and the
// environment, in that order.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v, ok := os.LookupEnv(envPrefix + "LISTEN"); ok {
		cfg.Listen = v
	}
	if v, ok := os.LookupEnv(envPrefix + "MAXCONN"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sMAXCONN=%q: %w", envPrefix, v, err)
		}
		cfg.MaxConn = n
	}
	if v, ok := os.LookupEnv(envPrefix + "TIMEOUT"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sTIMEOUT=%q: %w", envPrefix, v, err)
		}
		cfg.Timeout = d
	}
	if v, ok := os.LookupEnv(envPrefix + "METRICS_LISTEN"); ok {
		cfg.MetricsListen = v
	}
	if v, ok := os.LookupEnv(envPrefix + "LOG_LEVEL"); ok {
		cfg.LogLevel = v
	}
	return nil
}

func (c Config) Validate() error {
	if c.Listen == "" {
		return fmt.Errorf("config: listen must not be empty")
	}
	if c.MaxConn <= 0 {
		return fmt.Errorf("config: maxconn must be positive, got %d", c.MaxConn)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("config: timeout must be positive, got %s", c.Timeout)
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}
