// Package config loads the service configuration from YAML with sane
// defaults for every field, so an empty file and a missing file both
// yield a runnable configuration.
package config

import (
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "15s" or "5m", or from plain integer nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config is the top-level service configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Realtime  RealtimeConfig  `yaml:"realtime"`
	Inference InferenceConfig `yaml:"inference"`
	Warehouse WarehouseConfig `yaml:"warehouse"`
	LogLevel  string          `yaml:"log_level"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host            string   `yaml:"host"`
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// RealtimeConfig configures the live inference loop: the prediction
// history bound, the slot age past which data counts as expired, and the
// ingest rate gate in inferences per second.
type RealtimeConfig struct {
	BroadcastInterval Duration `yaml:"broadcast_interval"`
	WindowSize        int      `yaml:"window_size"`
	StaleThreshold    Duration `yaml:"stale_threshold"`
	MaxInferenceRate  float64  `yaml:"max_inference_rate"`
}

// InferenceConfig tunes the cascading engine.
type InferenceConfig struct {
	ResilienceWeights WeightsConfig `yaml:"resilience_weights"`
}

// WeightsConfig holds the per-domain resilience weights. They must sum
// to 1.
type WeightsConfig struct {
	Environmental float64 `yaml:"environmental"`
	Health        float64 `yaml:"health"`
	Food          float64 `yaml:"food"`
}

// WarehouseConfig configures the baseline read boundary. Empty DSN or
// Redis address disables that tier; the embedded estimates still serve.
type WarehouseConfig struct {
	DSN          string   `yaml:"dsn"`
	RedisAddr    string   `yaml:"redis_addr"`
	CacheTTL     Duration `yaml:"cache_ttl"`
	QueryTimeout Duration `yaml:"query_timeout"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ReadTimeout:     Duration(15 * time.Second),
			WriteTimeout:    Duration(15 * time.Second),
			ShutdownTimeout: Duration(10 * time.Second),
		},
		Realtime: RealtimeConfig{
			BroadcastInterval: Duration(2 * time.Second),
			WindowSize:        60,
			StaleThreshold:    Duration(5 * time.Minute),
			MaxInferenceRate:  2,
		},
		Inference: InferenceConfig{
			ResilienceWeights: WeightsConfig{
				Environmental: 0.35,
				Health:        0.40,
				Food:          0.25,
			},
		},
		Warehouse: WarehouseConfig{
			CacheTTL:     Duration(5 * time.Minute),
			QueryTimeout: Duration(5 * time.Second),
		},
		LogLevel: "info",
	}
}

// Load reads a YAML config file over the defaults. A missing file is not
// an error; a malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", c.Server.Port)
	}
	if c.Realtime.BroadcastInterval <= 0 {
		return fmt.Errorf("broadcast_interval must be positive")
	}
	if c.Realtime.WindowSize < 1 {
		return fmt.Errorf("window_size must be at least 1")
	}
	if c.Realtime.MaxInferenceRate <= 0 {
		return fmt.Errorf("max_inference_rate must be positive")
	}
	w := c.Inference.ResilienceWeights
	if w.Environmental < 0 || w.Health < 0 || w.Food < 0 {
		return fmt.Errorf("resilience weights must be non-negative")
	}
	if sum := w.Environmental + w.Health + w.Food; math.Abs(sum-1) > 0.01 {
		return fmt.Errorf("resilience weights must sum to 1, got %g", sum)
	}
	return nil
}
