// Package config loads the marketplace service configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/R3E-Network/listing_marketplace/internal/algorand"
	"github.com/R3E-Network/listing_marketplace/internal/marketplace"
	"github.com/R3E-Network/listing_marketplace/internal/wallet"
)

// Network names.
const (
	NetworkSimulated = "simulated"
	NetworkAlgorand  = "algorand"
)

// Journal drivers.
const (
	JournalMemory   = "memory"
	JournalPostgres = "postgres"
)

// DefaultPath is read when no path is given.
var DefaultPath = filepath.Join("config", "marketplace.yaml")

// Config is the root configuration.
type Config struct {
	Network  string           `yaml:"network"`
	Algorand algorand.Config  `yaml:"algorand"`
	Simnet   SimnetConfig     `yaml:"simnet"`
	Fees     marketplace.Fees `yaml:"fees"`
	Workflow WorkflowConfig   `yaml:"workflow"`
	Accounts wallet.Config    `yaml:"accounts"`
	Journal  JournalConfig    `yaml:"journal"`
	HTTP     HTTPConfig       `yaml:"http"`
	Logging  LoggingConfig    `yaml:"logging"`
}

// SimnetConfig tunes the simulated network.
type SimnetConfig struct {
	InitialBalance uint64 `yaml:"initial_balance"`
	FundingMinimum uint64 `yaml:"funding_minimum"`
}

// WorkflowConfig toggles optional workflow steps.
type WorkflowConfig struct {
	VerifyEscrow bool `yaml:"verify_escrow"`
}

// JournalConfig selects the run journal store.
type JournalConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	WatchInterval  time.Duration `yaml:"watch_interval"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

// LoggingConfig configures pkg/logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs entirely in memory against the
// simulated network.
func Default() *Config {
	return &Config{
		Network: NetworkSimulated,
		Algorand: algorand.Config{
			Address:         "http://localhost:4001",
			Token:           "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa",
			WaitRounds:      algorand.DefaultWaitRounds,
			AssetUnitName:   "UNIT",
			AssetName:       "Marketplace Asset",
			ApprovalProgram: filepath.Join("contracts", "approval.teal"),
			ClearProgram:    filepath.Join("contracts", "clear.teal"),
		},
		Fees:     marketplace.DefaultFees(),
		Accounts: wallet.Config{Default: wallet.DefaultAccount},
		Journal:  JournalConfig{Driver: JournalMemory},
		HTTP: HTTPConfig{
			Addr:           ":8080",
			RateLimit:      20,
			RateBurst:      40,
			AllowedOrigins: []string{"*"},
			WatchInterval:  2 * time.Second,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   90 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads DefaultPath if it exists, otherwise starts from Default.
// Environment overrides and validation are applied either way.
func Load() (*Config, error) {
	cfg, err := LoadFromPath(DefaultPath)
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if err := cfg.applyEnv(); err != nil {
			return nil, err
		}
		return cfg, cfg.Validate()
	}
	return cfg, err
}

// LoadFromPath reads a YAML file over the defaults, then applies environment
// overrides and validates the result.
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides settings from MARKETPLACE_* variables.
func (c *Config) applyEnv() error {
	if v := os.Getenv("MARKETPLACE_NETWORK"); v != "" {
		c.Network = v
	}
	if v := os.Getenv("MARKETPLACE_ALGOD_ADDRESS"); v != "" {
		c.Algorand.Address = v
	}
	if v := os.Getenv("MARKETPLACE_ALGOD_TOKEN"); v != "" {
		c.Algorand.Token = v
	}
	if v := os.Getenv("MARKETPLACE_JOURNAL_DSN"); v != "" {
		c.Journal.Driver = JournalPostgres
		c.Journal.DSN = v
	}
	if v := os.Getenv("MARKETPLACE_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("MARKETPLACE_DEFAULT_ACCOUNT"); v != "" {
		c.Accounts.Default = v
	}
	if v := os.Getenv("MARKETPLACE_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("MARKETPLACE_LOG_FORMAT"); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv("MARKETPLACE_VERIFY_ESCROW"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("MARKETPLACE_VERIFY_ESCROW: %w", err)
		}
		c.Workflow.VerifyEscrow = b
	}
	return nil
}

// Validate checks the configuration for inconsistencies.
func (c *Config) Validate() error {
	switch c.Network {
	case NetworkSimulated:
	case NetworkAlgorand:
		if c.Algorand.Address == "" {
			return errors.New("algorand.address is required")
		}
	default:
		return fmt.Errorf("unknown network %q", c.Network)
	}

	switch c.Journal.Driver {
	case JournalMemory:
	case JournalPostgres:
		if c.Journal.DSN == "" {
			return errors.New("journal.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown journal driver %q", c.Journal.Driver)
	}

	if c.HTTP.RateLimit < 0 || c.HTTP.RateBurst < 0 {
		return errors.New("http rate limit must not be negative")
	}
	if c.HTTP.WatchInterval <= 0 {
		return errors.New("http.watch_interval must be positive")
	}
	return nil
}
