// Package goldconfig loads the router's static configuration and
// publishes it read-copy-update style (spec §5 "Configuration: read-copy-
// update; updates publish a new immutable config object; readers keep
// their current reference"). Grounded on the teacher's
// internal/application.LoadXConfig functions (os.ReadFile + yaml.Unmarshal
// per concern) consolidated into one Config covering this system's
// smaller configuration surface.
package goldconfig

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"
)

// VenueConfig is one venue's startup registration (spec §3 "Registered at
// startup or via admin call").
type VenueConfig struct {
	ID      string `yaml:"id"`
	Kind    string `yaml:"kind"` // "exchange" | "onchain"
	BaseURL string `yaml:"base_url"`

	FailureThreshold uint32        `yaml:"failure_threshold"`
	MonitoringPeriod time.Duration `yaml:"monitoring_period"`
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`
	RateLimitRPS     float64       `yaml:"rate_limit_rps"`
	RateLimitBurst   int           `yaml:"rate_limit_burst"`

	ConfirmationThreshold uint64 `yaml:"confirmation_threshold"` // onchain only

	// HolderAddress and TokenContract identify which on-chain balance this
	// venue contributes to the portfolio (spec §4.2/§9 scenario S1); both
	// are onchain-only and required for a Kind=="onchain" venue to report
	// anything other than unavailable.
	HolderAddress string `yaml:"holder_address"`
	TokenContract string `yaml:"token_contract"`
}

// HTTPConfig configures the API front (spec §4.5).
type HTTPConfig struct {
	Addr            string   `yaml:"addr"`
	AuthTokens      []string `yaml:"auth_tokens"`
	RateWindowMs    int64    `yaml:"rate_window_ms"`
	RateMaxRequests int      `yaml:"rate_max_requests"`
	DevProfile      bool     `yaml:"dev_profile"`
}

// StoreConfig configures the optional durable audit store (spec §6).
type StoreConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

// CacheConfig configures the token-metadata/transfer cache.
type CacheConfig struct {
	MaxEntries    int           `yaml:"max_entries"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	RedisAddr     string        `yaml:"redis_addr"`
}

// Config is the full immutable snapshot published by Publisher.
type Config struct {
	Venues          []VenueConfig `yaml:"venues"`
	HTTP            HTTPConfig    `yaml:"http"`
	Store           StoreConfig   `yaml:"store"`
	Cache           CacheConfig   `yaml:"cache"`
	PortfolioDeadline time.Duration `yaml:"portfolio_deadline"`
}

// Load reads and parses a YAML config file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("goldconfig: read %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("goldconfig: parse %s: %w", path, err)
	}
	return &c, nil
}

// Publisher holds the current Config behind an atomic pointer so readers
// never observe a partially-updated object (spec §5 RCU policy).
type Publisher struct {
	current atomic.Pointer[Config]
}

func NewPublisher(initial *Config) *Publisher {
	p := &Publisher{}
	p.current.Store(initial)
	return p
}

// Get returns the currently published Config. The caller's reference stays
// valid even if Publish runs concurrently (spec §5 "readers keep their
// current reference").
func (p *Publisher) Get() *Config {
	return p.current.Load()
}

// Publish installs a new Config, replacing the old one atomically.
func (p *Publisher) Publish(next *Config) {
	p.current.Store(next)
}
