// Package config loads the datahub process configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full process configuration surface.
type Config struct {
	// ListenAddr is the UDP address the hub serves requests on.
	ListenAddr string `yaml:"listen_addr"`
	// PeerAddr is the power-grid peer for totals push and power-link polling.
	PeerAddr string `yaml:"peer_addr"`
	// MetricsAddr is the HTTP address for Prometheus /metrics.
	MetricsAddr string `yaml:"metrics_addr"`

	// PLCTimeout is the liveness threshold: a channel whose last update
	// is at least this old reports offline.
	PLCTimeout time.Duration `yaml:"plc_timeout"`

	// TotalsPush enables the fire-and-forget totals sender worker.
	TotalsPush         bool          `yaml:"totals_push"`
	TotalsPushInterval time.Duration `yaml:"totals_push_interval"`

	// TotalsLog enables the local totals logging worker.
	TotalsLog         bool          `yaml:"totals_log"`
	TotalsLogInterval time.Duration `yaml:"totals_log_interval"`

	// PowerLinkWatch enables the power-link polling worker.
	PowerLinkWatch        bool          `yaml:"powerlink_watch"`
	PowerLinkPollInterval time.Duration `yaml:"powerlink_poll_interval"`

	// JunctionAvoid suppresses inbound signal writes while still
	// reporting success to the sender.
	JunctionAvoid bool `yaml:"junction_avoid"`

	// TestMode disables the cc-line sensor priority override.
	TestMode bool `yaml:"test_mode"`

	Tracing TracingConfig `yaml:"tracing"`
}

// TracingConfig governs OpenTelemetry tracing initialisation.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Exporter    string  `yaml:"exporter"` // stdout | otlp
	Endpoint    string  `yaml:"endpoint"` // used when exporter == otlp
	SampleRatio float64 `yaml:"sample_ratio"`
}

// Load reads, defaults, and validates a YAML config file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields and clamps the totals log interval
// to its 2s floor.
func (c *Config) ApplyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":3002"
	}
	if c.PeerAddr == "" {
		c.PeerAddr = "127.0.0.1:3001"
	}
	if c.MetricsAddr == "" {
		c.MetricsAddr = ":9090"
	}
	if c.PLCTimeout <= 0 {
		c.PLCTimeout = 3 * time.Second
	}
	if c.TotalsPushInterval <= 0 {
		c.TotalsPushInterval = 500 * time.Millisecond
	}
	if c.TotalsLogInterval < 2*time.Second {
		c.TotalsLogInterval = 2 * time.Second
	}
	if c.PowerLinkPollInterval <= 0 {
		c.PowerLinkPollInterval = time.Second
	}
	if c.Tracing.ServiceName == "" {
		c.Tracing.ServiceName = "metro-datahub"
	}
	if c.Tracing.Exporter == "" {
		c.Tracing.Exporter = "stdout"
	}
	if c.Tracing.SampleRatio <= 0 || c.Tracing.SampleRatio > 1 {
		c.Tracing.SampleRatio = 1
	}
}

// Validate rejects configurations the hub cannot run with.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return fmt.Errorf("listen_addr is required")
	}
	if c.PeerAddr == "" && (c.TotalsPush || c.PowerLinkWatch) {
		return fmt.Errorf("peer_addr is required when totals_push or powerlink_watch is enabled")
	}
	if c.PLCTimeout <= 0 {
		return fmt.Errorf("plc_timeout must be positive")
	}
	return nil
}
