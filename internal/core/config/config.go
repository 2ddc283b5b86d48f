package config

import (
	"time"

	"github.com/vietddude/governor/internal/core/domain"
	"github.com/vietddude/governor/internal/core/taskset"
	"github.com/vietddude/governor/internal/infra/journal"
	"github.com/vietddude/governor/internal/infra/ledger"
	"github.com/vietddude/governor/internal/infra/ledger/jsonrpc"
	"github.com/vietddude/governor/internal/telemetry"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig        `yaml:"server"`
	Logging  LoggingConfig       `yaml:"logging"`
	Governor GovernorConfig      `yaml:"governor"`
	Submit   ledger.RetryConfig  `yaml:"submit"`
	Ledger   jsonrpc.Config      `yaml:"ledger"`
	Redis    taskset.RedisConfig `yaml:"redis"`
	Journal  journal.Config      `yaml:"journal"`
	Tracing  telemetry.Config    `yaml:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port          int           `yaml:"port"           env:"GOVERNOR_PORT"` // 0 = default 8080, negative disables the health server
	ShutdownGrace time.Duration `yaml:"shutdown_grace" env:"GOVERNOR_SHUTDOWN_GRACE"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level" env:"GOVERNOR_LOG_LEVEL"` // debug, info, warn, error
}

// GovernorConfig holds the engine settings.
type GovernorConfig struct {
	Address  string `yaml:"address"  env:"GOVERNOR_ADDRESS"`
	Contract string `yaml:"contract" env:"GOVERNOR_CONTRACT"`
	Fee      string `yaml:"fee"      env:"GOVERNOR_FEE"` // base units, decimal or 0x hex

	PollInterval     time.Duration `yaml:"poll_interval"     env:"GOVERNOR_POLL_INTERVAL"`
	MaxBlockRange    uint64        `yaml:"max_block_range"   env:"GOVERNOR_MAX_BLOCK_RANGE"`    // 0 = unbounded
	RecoveryInterval time.Duration `yaml:"recovery_interval" env:"GOVERNOR_RECOVERY_INTERVAL"` // 0 = startup only

	RecoveryPageSize    int `yaml:"recovery_page_size"   env:"GOVERNOR_RECOVERY_PAGE_SIZE"`
	RecoveryConcurrency int `yaml:"recovery_concurrency" env:"GOVERNOR_RECOVERY_CONCURRENCY"`
	AutoStartPlayers    int `yaml:"auto_start_players"   env:"GOVERNOR_AUTO_START_PLAYERS"` // 0 = disabled
}

// Self returns the normalized governor address.
func (g GovernorConfig) Self() domain.Address {
	return domain.NewAddress(g.Address)
}
