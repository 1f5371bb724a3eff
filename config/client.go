package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// SymbolLimitMode selects whether hard per-channel/global symbol caps are
// enforced before a subscribe is sent. Modeled here as a runtime value
// rather than a compile-time policy, since Go has no const generics (see
// DESIGN.md).
type SymbolLimitMode string

const (
	SymbolLimitNone SymbolLimitMode = "none"
	SymbolLimitHard SymbolLimitMode = "hard"
)

// BackpressureModeName mirrors transport.BackpressureMode as a
// YAML-friendly string so configuration files don't depend on internal
// package types.
type BackpressureModeName string

const (
	BackpressureRelaxed       BackpressureModeName = "relaxed"
	BackpressureStrict        BackpressureModeName = "strict"
	BackpressureZeroTolerance BackpressureModeName = "zero_tolerance"
)

// RingSizes sets the per-kind ring capacities described in the
// configuration table.
type RingSizes struct {
	Rejection int `yaml:"rejection"`
	Ack       int `yaml:"ack"`
	Trade     int `yaml:"trade"`
	Book      int `yaml:"book"`
	Control   int `yaml:"control"`
}

// SymbolLimits carries the Hard policy's per-channel/global caps. Caps are
// enforced only when Mode is Hard, and then only the positive ones: a zero
// cap leaves that channel (or the global total) unbounded.
type SymbolLimits struct {
	Mode      SymbolLimitMode `yaml:"mode"`
	MaxTrade  int             `yaml:"max_trade"`
	MaxBook   int             `yaml:"max_book"`
	MaxGlobal int             `yaml:"max_global"`
}

// ClientConfig is the complete runtime configuration for a streaming
// session: timeouts, ring sizes, backpressure policy, and the symbol-limit
// policy.
type ClientConfig struct {
	Endpoint              string               `yaml:"endpoint"`
	HeartbeatTimeout      time.Duration        `yaml:"heartbeat_timeout"`
	MessageTimeout        time.Duration        `yaml:"message_timeout"`
	LivenessWarningRatio  float64              `yaml:"liveness_warning_ratio"`
	Rings                 RingSizes            `yaml:"rings"`
	Backpressure          BackpressureModeName `yaml:"backpressure"`
	SymbolLimits          SymbolLimits         `yaml:"symbol_limits"`
}

// Option mutates a ClientConfig during construction.
type Option func(*ClientConfig)

// WithEndpoint overrides the ws(s):// endpoint URL.
func WithEndpoint(url string) Option {
	return func(c *ClientConfig) { c.Endpoint = strings.TrimSpace(url) }
}

// WithTimeouts overrides the heartbeat/message liveness windows.
func WithTimeouts(heartbeat, message time.Duration) Option {
	return func(c *ClientConfig) {
		c.HeartbeatTimeout = heartbeat
		c.MessageTimeout = message
	}
}

// WithBackpressure overrides the backpressure policy.
func WithBackpressure(mode BackpressureModeName) Option {
	return func(c *ClientConfig) { c.Backpressure = mode }
}

// WithSymbolLimits overrides the symbol-limit policy.
func WithSymbolLimits(limits SymbolLimits) Option {
	return func(c *ClientConfig) { c.SymbolLimits = limits }
}

// DefaultClientConfig returns the configuration defaults enumerated for
// the core: 15s/15s timeouts, 0.8 warning ratio, rings
// {rejection:32, ack:32, trade:1024, book:1024, control:16}, Relaxed
// backpressure, no symbol limits.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HeartbeatTimeout:     15 * time.Second,
		MessageTimeout:       15 * time.Second,
		LivenessWarningRatio: 0.8,
		Rings: RingSizes{
			Rejection: 32,
			Ack:       32,
			Trade:     1024,
			Book:      1024,
			Control:   16,
		},
		Backpressure: BackpressureRelaxed,
		SymbolLimits: SymbolLimits{Mode: SymbolLimitNone},
	}
}

// Apply builds a ClientConfig from the defaults plus the given options.
func Apply(opts ...Option) ClientConfig {
	cfg := DefaultClientConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// LoadClientConfig reads a YAML-encoded ClientConfig from path, falling
// back to KRAKENSTREAM_CONFIG then config/client.yaml when path is blank,
// then validates it.
func LoadClientConfig(ctx context.Context, path string) (ClientConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = os.Getenv("KRAKENSTREAM_CONFIG")
	}
	path = strings.TrimSpace(path)
	if path == "" {
		path = "config/client.yaml"
	}

	f, err := os.Open(path)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("open client config: %w", err)
	}
	defer f.Close()

	bytes, err := io.ReadAll(f)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("read client config: %w", err)
	}

	cfg := DefaultClientConfig()
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return ClientConfig{}, fmt.Errorf("unmarshal client config: %w", err)
	}
	if err := cfg.Validate(ctx); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

// Validate performs semantic validation on the loaded configuration.
func (c ClientConfig) Validate(ctx context.Context) error {
	_ = ctx
	if strings.TrimSpace(c.Endpoint) == "" {
		return fmt.Errorf("client config: endpoint required")
	}
	if c.HeartbeatTimeout <= 0 || c.MessageTimeout <= 0 {
		return fmt.Errorf("client config: heartbeat_timeout and message_timeout must be >0")
	}
	if c.LivenessWarningRatio <= 0 || c.LivenessWarningRatio >= 1 {
		return fmt.Errorf("client config: liveness_warning_ratio must be in (0,1)")
	}
	if c.Rings.Rejection <= 0 || c.Rings.Ack <= 0 || c.Rings.Trade <= 0 || c.Rings.Book <= 0 || c.Rings.Control <= 0 {
		return fmt.Errorf("client config: all ring sizes must be >0")
	}
	switch c.Backpressure {
	case BackpressureRelaxed, BackpressureStrict, BackpressureZeroTolerance:
	default:
		return fmt.Errorf("client config: unknown backpressure mode %q", c.Backpressure)
	}
	switch c.SymbolLimits.Mode {
	case SymbolLimitNone, SymbolLimitHard, "":
	default:
		return fmt.Errorf("client config: unknown symbol limit mode %q", c.SymbolLimits.Mode)
	}
	return nil
}
