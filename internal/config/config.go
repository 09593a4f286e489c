// Package config loads process-wide library tunables: where to reach
// Redis for cross-process state, the registry's bound and idle-eviction
// age, and default PID gains new resources inherit absent an explicit
// override. Ambient settings like this are not part of a single
// resource's per-call Options (spec.md §6's options table); they configure
// the library instance as a whole, the way the teacher's
// internal/config.Config configures a whole service.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the library-wide configuration.
type Config struct {
	Redis    RedisConfig    `yaml:"redis"`
	Registry RegistryConfig `yaml:"registry"`
	PID      PIDConfig      `yaml:"pid"`
}

// RedisConfig describes how to reach the Redis instance backing
// cross-process semaphores and shared PID state.
type RedisConfig struct {
	URL      string `yaml:"url" env:"SEMIAN_REDIS_URL"`
	Password string `yaml:"password" env:"SEMIAN_REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"SEMIAN_REDIS_DB"`
	Prefix   string `yaml:"prefix" env:"SEMIAN_REDIS_PREFIX"`
}

// RegistryConfig bounds the process-level resource registry (spec.md §4.8).
type RegistryConfig struct {
	Cap       int           `yaml:"cap" env:"SEMIAN_REGISTRY_CAP"`
	MinLRUAge time.Duration `yaml:"minLRUAge"`
}

// PIDConfig supplies defaults new adaptive resources inherit: the three
// gains when their Options leave all of Kp, Ki and Kd at zero, and
// WindowSize / MaxRejectionRate when those are zero.
type PIDConfig struct {
	Kp               float64       `yaml:"kp"`
	Ki               float64       `yaml:"ki"`
	Kd               float64       `yaml:"kd"`
	WindowSize       time.Duration `yaml:"windowSize"`
	MaxRejectionRate float64       `yaml:"maxRejectionRate"`
}

// Default returns the library's built-in defaults.
func Default() *Config {
	return &Config{
		Redis: RedisConfig{
			URL:    "redis://localhost:6379",
			DB:     0,
			Prefix: "semian",
		},
		Registry: RegistryConfig{
			Cap:       0, // unbounded
			MinLRUAge: 5 * time.Minute,
		},
		PID: PIDConfig{
			Kp:               0.8,
			Ki:               0.2,
			Kd:               0.05,
			WindowSize:       time.Second,
			MaxRejectionRate: 1.0,
		},
	}
}

// LoadYAML reads path and overlays it onto Default(), then applies any
// recognized environment variables on top (env wins over file, matching
// the teacher's config precedence).
func LoadYAML(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("SEMIAN_REDIS_URL"); v != "" {
		c.Redis.URL = v
	}
	if v := os.Getenv("SEMIAN_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("SEMIAN_REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Redis.DB = n
		}
	}
	if v := os.Getenv("SEMIAN_REDIS_PREFIX"); v != "" {
		c.Redis.Prefix = v
	}
	if v := os.Getenv("SEMIAN_REGISTRY_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Registry.Cap = n
		}
	}
}

// Disabled reports SEMIAN_DISABLED, the global passthrough toggle
// (spec.md §6).
func Disabled() bool { return os.Getenv("SEMIAN_DISABLED") != "" }

// SemaphoresDisabled reports SEMIAN_SEMAPHORES_DISABLED.
func SemaphoresDisabled() bool { return os.Getenv("SEMIAN_SEMAPHORES_DISABLED") != "" }

// BulkheadDisabled reports SEMIAN_BULKHEAD_DISABLED.
func BulkheadDisabled() bool { return os.Getenv("SEMIAN_BULKHEAD_DISABLED") != "" }

// CircuitBreakerDisabled reports SEMIAN_CIRCUIT_BREAKER_DISABLED.
func CircuitBreakerDisabled() bool { return os.Getenv("SEMIAN_CIRCUIT_BREAKER_DISABLED") != "" }
