// Package config loads the YAML configuration of a peerd process.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level peer configuration.
type Config struct {
	Listen    string         `yaml:"listen"`    // TCP listen address, e.g. ":9000"
	Advertise string         `yaml:"advertise"` // address published in the registry
	WebSocket string         `yaml:"websocket"` // optional HTTP listen address for WebSocket peers
	Codec     string         `yaml:"codec"`     // "json" or "binary"
	Service   string         `yaml:"service"`   // registry name, defaults to the interface name
	Etcd      EtcdConfig     `yaml:"etcd"`
	Dispatch  DispatchConfig `yaml:"dispatch"`
	Log       LogConfig      `yaml:"log"`
	Tracer    TracerConfig   `yaml:"tracer"`
	Driver    DriverConfig   `yaml:"driver"`
}

// EtcdConfig enables registration when Endpoints is not empty.
type EtcdConfig struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
	TTL         int64         `yaml:"ttl"` // lease seconds
}

// DispatchConfig shapes the middleware chain around local methods.
type DispatchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`    // 0 disables the timeout middleware
	RateLimit float64       `yaml:"rate_limit"` // calls per second, 0 disables
	Burst     int           `yaml:"burst"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// TracerConfig selects the span exporter; tracing is off when Exporter is
// empty or "noop".
type TracerConfig struct {
	Exporter string `yaml:"exporter"`
}

type DriverConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
}

func Defaults() *Config {
	return &Config{
		Listen: ":9000",
		Codec:  "json",
		Etcd: EtcdConfig{
			DialTimeout: 5 * time.Second,
			TTL:         10,
		},
		Dispatch: DispatchConfig{
			Burst: 1,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Driver: DriverConfig{
			PollInterval: 100 * time.Millisecond,
		},
	}
}

// Load reads path over the defaults. A missing file yields the defaults.
// PEER_RPC_* environment variables override both.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps PEER_RPC_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PEER_RPC_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PEER_RPC_ADVERTISE"); v != "" {
		cfg.Advertise = v
	}
	if v := os.Getenv("PEER_RPC_CODEC"); v != "" {
		cfg.Codec = v
	}
	if v := os.Getenv("PEER_RPC_ETCD"); v != "" {
		cfg.Etcd.Endpoints = splitAndTrim(v, ",")
	}
	if v := os.Getenv("PEER_RPC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("PEER_RPC_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

func splitAndTrim(s, sep string) []string {
	var out []string
	for _, p := range strings.Split(s, sep) {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
