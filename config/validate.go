package config

import (
	"fmt"
	"net"
	"strings"

	"peer-rpc/codec"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

func (v *ValidationError) Add(format string, args ...any) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate returns a *ValidationError listing every problem in cfg.
func Validate(cfg *Config) error {
	ve := &ValidationError{}

	if _, _, err := net.SplitHostPort(cfg.Listen); err != nil {
		ve.Add("listen: %v", err)
	}
	if cfg.Advertise != "" {
		if _, _, err := net.SplitHostPort(cfg.Advertise); err != nil {
			ve.Add("advertise: %v", err)
		}
	}
	if cfg.WebSocket != "" {
		if _, _, err := net.SplitHostPort(cfg.WebSocket); err != nil {
			ve.Add("websocket: %v", err)
		}
	}
	if _, err := codec.ParseCodecType(cfg.Codec); err != nil {
		ve.Add("codec: %v", err)
	}

	if len(cfg.Etcd.Endpoints) > 0 && cfg.Etcd.TTL <= 0 {
		ve.Add("etcd.ttl must be positive, got %d", cfg.Etcd.TTL)
	}

	if cfg.Dispatch.Timeout < 0 {
		ve.Add("dispatch.timeout must not be negative")
	}
	if cfg.Dispatch.RateLimit < 0 {
		ve.Add("dispatch.rate_limit must not be negative")
	}
	if cfg.Dispatch.RateLimit > 0 && cfg.Dispatch.Burst < 1 {
		ve.Add("dispatch.burst must be at least 1 when rate_limit is set")
	}

	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		ve.Add("log.level: unknown level %q", cfg.Log.Level)
	}
	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		ve.Add("log.format: unknown format %q", cfg.Log.Format)
	}

	switch cfg.Tracer.Exporter {
	case "", "noop", "stdout":
	default:
		ve.Add("tracer.exporter: unsupported exporter %q", cfg.Tracer.Exporter)
	}

	if cfg.Driver.PollInterval <= 0 {
		ve.Add("driver.poll_interval must be positive")
	}

	if ve.HasErrors() {
		return ve
	}
	return nil
}
