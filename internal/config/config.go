// Package config loads and validates the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/r0fls/soad-sub000/internal/domain"
)

// Defaults applied when the file omits a value.
const (
	DefaultSyncInterval   = 5 * time.Minute
	DefaultOrderInterval  = 9 * time.Second
	DefaultStaleAfter     = 48 * time.Hour
	DefaultPegCancelAfter = 15 * time.Second
	DefaultConcurrency    = 4
	DefaultMetricsAddr    = ":9090"
)

// Config is the root configuration.
type Config struct {
	PostgresDSN   string `yaml:"postgres_dsn"`
	ClickhouseDSN string `yaml:"clickhouse_dsn,omitempty"`
	MetricsAddr   string `yaml:"metrics_addr,omitempty"`

	// HistoryEndpoint is the daily-bars HTTP API used for volatility.
	HistoryEndpoint string `yaml:"history_endpoint,omitempty"`
	// QuotesEndpoint is the websocket quote feed for the paper broker.
	QuotesEndpoint string `yaml:"quotes_endpoint,omitempty"`

	SyncInterval   string `yaml:"sync_interval,omitempty"`
	OrderInterval  string `yaml:"order_interval,omitempty"`
	StaleAfter     string `yaml:"stale_after,omitempty"`
	PegCancelAfter string `yaml:"peg_cancel_after,omitempty"`
	Concurrency    int    `yaml:"concurrency,omitempty"`

	Brokers    []BrokerConfig   `yaml:"brokers"`
	Strategies []StrategyConfig `yaml:"strategies"`
}

// BrokerConfig describes one brokerage connection.
type BrokerConfig struct {
	Name string `yaml:"name"`
	// Type selects the adapter; "paper" is built in.
	Type string `yaml:"type"`
	// Cash seeds the paper broker's account.
	Cash float64 `yaml:"cash,omitempty"`
}

// StrategyConfig binds a named strategy to a broker and its targets.
type StrategyConfig struct {
	Name   string `yaml:"name"`
	Broker string `yaml:"broker"`
	// Targets maps symbols to the quantity the strategy should own.
	Targets map[string]float64 `yaml:"targets,omitempty"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates YAML config bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if cfg.MetricsAddr == "" {
		cfg.MetricsAddr = DefaultMetricsAddr
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.PostgresDSN == "" {
		return fmt.Errorf("postgres_dsn is required")
	}
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker is required")
	}

	brokers := make(map[string]struct{}, len(c.Brokers))
	for i, b := range c.Brokers {
		if b.Name == "" {
			return fmt.Errorf("broker %d: name is required", i)
		}
		if _, dup := brokers[b.Name]; dup {
			return fmt.Errorf("duplicate broker %q", b.Name)
		}
		brokers[b.Name] = struct{}{}
	}

	strategies := make(map[string]struct{}, len(c.Strategies))
	for i, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("strategy %d: name is required", i)
		}
		if s.Name == domain.StrategyUncategorized {
			return fmt.Errorf("strategy name %q is reserved", domain.StrategyUncategorized)
		}
		if _, dup := strategies[s.Name]; dup {
			return fmt.Errorf("duplicate strategy %q", s.Name)
		}
		strategies[s.Name] = struct{}{}
		if s.Broker == "" {
			return fmt.Errorf("strategy %q: broker is required", s.Name)
		}
		if _, ok := brokers[s.Broker]; !ok {
			return fmt.Errorf("strategy %q references unknown broker %q", s.Name, s.Broker)
		}
	}

	// Durations must parse even though they apply lazily.
	for _, d := range []struct{ name, value string }{
		{"sync_interval", c.SyncInterval},
		{"order_interval", c.OrderInterval},
		{"stale_after", c.StaleAfter},
		{"peg_cancel_after", c.PegCancelAfter},
	} {
		if d.value == "" {
			continue
		}
		if _, err := time.ParseDuration(d.value); err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
	}
	return nil
}

// duration parses a configured duration string, falling back to def when
// empty. Values were validated at load time.
func duration(value string, def time.Duration) time.Duration {
	if value == "" {
		return def
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return d
}

// SyncEvery returns the bookkeeping cycle interval.
func (c *Config) SyncEvery() time.Duration {
	return duration(c.SyncInterval, DefaultSyncInterval)
}

// OrdersEvery returns the order pass interval.
func (c *Config) OrdersEvery() time.Duration {
	return duration(c.OrderInterval, DefaultOrderInterval)
}

// StaleThreshold returns the open-order stale age.
func (c *Config) StaleThreshold() time.Duration {
	return duration(c.StaleAfter, DefaultStaleAfter)
}

// PegCancelThreshold returns the pegged-order reprice age.
func (c *Config) PegCancelThreshold() time.Duration {
	return duration(c.PegCancelAfter, DefaultPegCancelAfter)
}
