package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v2"

	"github.com/vietddude/governor/internal/core/taskset"
	"github.com/vietddude/governor/internal/governing/poller"
	"github.com/vietddude/governor/internal/governing/recovery"
	"github.com/vietddude/governor/internal/infra/journal"
	"github.com/vietddude/governor/internal/infra/ledger"
	"github.com/vietddude/governor/internal/infra/ledger/jsonrpc"
)

const (
	DefaultPort          = 8080
	DefaultShutdownGrace = 15 * time.Second
)

// Load reads configuration from a YAML file, then applies GOVERNOR_*
// environment overrides and defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = DefaultShutdownGrace
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}

	g := &cfg.Governor
	if g.PollInterval == 0 {
		g.PollInterval = poller.DefaultInterval
	}
	if g.RecoveryPageSize == 0 {
		g.RecoveryPageSize = recovery.DefaultPageSize
	}
	if g.RecoveryConcurrency == 0 {
		g.RecoveryConcurrency = recovery.DefaultConcurrency
	}
	if g.Fee == "" {
		g.Fee = "0"
	}

	if cfg.Submit.Attempts == 0 {
		cfg.Submit.Attempts = ledger.DefaultRetryConfig.Attempts
	}
	if cfg.Submit.Delay == 0 {
		cfg.Submit.Delay = ledger.DefaultRetryConfig.Delay
	}

	if cfg.Ledger.Timeout == 0 {
		cfg.Ledger.Timeout = jsonrpc.DefaultTimeout
	}
	cfg.Ledger.Contract = g.Contract

	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = taskset.DefaultClaimTTL
	}
	if cfg.Journal.Enabled() && cfg.Journal.Driver == "" {
		cfg.Journal.Driver = journal.DriverPostgres
	}
}

// Validate checks settings the service cannot run without.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Governor.Address == "" {
		errs = append(errs, errors.New("governor.address is required"))
	}
	if c.Governor.Contract == "" {
		errs = append(errs, errors.New("governor.contract is required"))
	}
	if c.Ledger.URL == "" {
		errs = append(errs, errors.New("ledger.url is required"))
	}
	if _, err := c.Governor.FeeAmount(); err != nil {
		errs = append(errs, err)
	}
	if c.Governor.AutoStartPlayers < 0 {
		errs = append(errs, errors.New("governor.auto_start_players must not be negative"))
	}
	if c.Submit.Attempts < 1 {
		errs = append(errs, errors.New("submit.attempts must be at least 1"))
	}
	switch c.Journal.Driver {
	case "", journal.DriverPostgres, journal.DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("journal.driver %q is not supported", c.Journal.Driver))
	}
	return errors.Join(errs...)
}

// FeeAmount parses the configured resolve fee.
func (g GovernorConfig) FeeAmount() (*big.Int, error) {
	if g.Fee == "" {
		return new(big.Int), nil
	}
	fee, ok := new(big.Int).SetString(g.Fee, 0)
	if !ok || fee.Sign() < 0 {
		return nil, fmt.Errorf("governor.fee %q is not a non-negative integer", g.Fee)
	}
	return fee, nil
}
