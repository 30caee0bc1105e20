package config

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"

	"github.io/kevin-rd/k8s-tools/http2socks/internal/socks"
)

// Config is the file configuration of the bridge binary.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Listen   string         `yaml:"listen"`
	MaxConns int            `yaml:"max_conns"`
	Upstream UpstreamConfig `yaml:"upstream"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// UpstreamConfig describes the proxy every tunnel goes through.
type UpstreamConfig struct {
	Type      string `yaml:"type"` // socks4, socks5, http
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Username  string `yaml:"username"`
	Password  string `yaml:"password"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Path    string `yaml:"path"`
}

// Load reads path over DefaultConfig and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Listen:   "127.0.0.1:0",
		MaxConns: 1000,
		Upstream: UpstreamConfig{
			Type:      "socks5",
			TimeoutMs: 30000,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":10081",
			Path:    "/metrics",
		},
	}
}

// Validate checks the fields that do not need network access.
func (c *Config) Validate() error {
	if _, err := socks.ParseVersion(c.Upstream.Type); err != nil {
		return fmt.Errorf("upstream.type: %w", err)
	}
	if c.Upstream.Host == "" {
		return fmt.Errorf("upstream.host is required")
	}
	if c.Upstream.Port < 0 || c.Upstream.Port > 65535 {
		return fmt.Errorf("upstream.port must be within 0-65535")
	}
	if len(c.Upstream.Username) > 255 || len(c.Upstream.Password) > 255 {
		return fmt.Errorf("upstream credentials must be at most 255 bytes")
	}
	if c.Upstream.TimeoutMs < 0 {
		return fmt.Errorf("upstream.timeout_ms must not be negative")
	}
	if c.MaxConns < 1 {
		return fmt.Errorf("max_conns must be positive")
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Listen); err != nil {
			return fmt.Errorf("metrics.listen: %w", err)
		}
	}
	return nil
}
