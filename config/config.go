// Package config loads and validates the process-wide configuration. It is
// parsed exactly once, at startup, into an immutable Config value passed
// explicitly into every constructor; there is no package-level singleton.
package config

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
)

// ErrConfig is the sentinel wrapped by every validation failure, fatal at
// startup.
var ErrConfig = indexererr.ErrConfig

// Chain identifies which network preset to apply.
type Chain string

const (
	ChainEthereum Chain = "ethereum"
	ChainGnosis   Chain = "gnosis"
)

// Config is the fully validated, immutable process configuration.
type Config struct {
	DatabaseURL string

	ConsensusFullAPIURL    string
	ConsensusArchiveAPIURL string
	ConsensusRequestPerSec int
	ConsensusLookbackSlot  uint64

	ExecutionAPIURL        string
	ExecutionAPIBkpURL     string
	ExecutionAPIBkpKey     string
	ExecutionRequestPerSec int

	Chain Chain

	LogLevel string

	// HeadDelaySlots has no env var; it defaults per chain.
	HeadDelaySlots uint64

	GenesisTime time.Time
}

// ChainTime builds the chaintime.Config matching the selected Chain preset.
func (c Config) ChainTime() chaintime.Config {
	switch c.Chain {
	case ChainGnosis:
		return chaintime.GnosisConfig(c.GenesisTime, c.ConsensusLookbackSlot, c.HeadDelaySlots)
	default:
		return chaintime.EthereumConfig(c.GenesisTime, c.ConsensusLookbackSlot, c.HeadDelaySlots)
	}
}

// defaultHeadDelay returns the default head-delay (in slots) for a chain,
// conservative enough to stay clear of typical reorg depth.
func defaultHeadDelay(chain Chain) uint64 {
	if chain == ChainGnosis {
		return 3
	}
	return 2
}

// defaultGenesis returns the canonical genesis time for a chain preset.
// These are public, well-known constants (not secrets), hence hard-coded
// rather than required as env input.
func defaultGenesis(chain Chain) time.Time {
	if chain == ChainGnosis {
		return time.Date(2021, 12, 8, 11, 0, 0, 0, time.UTC)
	}
	return time.Date(2020, 12, 1, 12, 0, 23, 0, time.UTC)
}

// Flags returns the urfave/cli flag set used by cmd/indexer to populate a
// Config from the environment.
func Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "database-url", EnvVars: []string{"DATABASE_URL"}, Required: true},
		&cli.StringFlag{Name: "consensus-full-api-url", EnvVars: []string{"CONSENSUS_FULL_API_URL"}, Required: true},
		&cli.StringFlag{Name: "consensus-archive-api-url", EnvVars: []string{"CONSENSUS_ARCHIVE_API_URL"}, Required: true},
		&cli.IntFlag{Name: "consensus-api-request-per-second", EnvVars: []string{"CONSENSUS_API_REQUEST_PER_SECOND"}, Value: 10},
		&cli.Uint64Flag{Name: "consensus-lookback-slot", EnvVars: []string{"CONSENSUS_LOOKBACK_SLOT"}, Required: true},
		&cli.StringFlag{Name: "execution-api-url", EnvVars: []string{"EXECUTION_API_URL"}, Required: true},
		&cli.StringFlag{Name: "execution-api-bkp-url", EnvVars: []string{"EXECUTION_API_BKP_URL"}},
		&cli.StringFlag{Name: "execution-api-bkp-key", EnvVars: []string{"EXECUTION_API_BKP_KEY"}},
		&cli.IntFlag{Name: "execution-api-request-per-second", EnvVars: []string{"EXECUTION_API_REQUEST_PER_SECOND"}, Value: 10},
		&cli.StringFlag{Name: "chain", EnvVars: []string{"CHAIN"}, Value: "ethereum"},
		&cli.StringFlag{Name: "log-level", EnvVars: []string{"LOG_LEVEL"}, Value: "info"},
	}
}

// FromCLI builds and validates a Config from a populated urfave/cli context.
func FromCLI(c *cli.Context) (Config, error) {
	chain := Chain(c.String("chain"))
	cfg := Config{
		DatabaseURL:            c.String("database-url"),
		ConsensusFullAPIURL:    c.String("consensus-full-api-url"),
		ConsensusArchiveAPIURL: c.String("consensus-archive-api-url"),
		ConsensusRequestPerSec: c.Int("consensus-api-request-per-second"),
		ConsensusLookbackSlot:  c.Uint64("consensus-lookback-slot"),
		ExecutionAPIURL:        c.String("execution-api-url"),
		ExecutionAPIBkpURL:     c.String("execution-api-bkp-url"),
		ExecutionAPIBkpKey:     c.String("execution-api-bkp-key"),
		ExecutionRequestPerSec: c.Int("execution-api-request-per-second"),
		Chain:                  chain,
		LogLevel:               c.String("log-level"),
		HeadDelaySlots:         defaultHeadDelay(chain),
		GenesisTime:            defaultGenesis(chain),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate enforces the structural configuration invariants at startup,
// wrapping ErrConfig so callers can errors.Is(err, ErrConfig).
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.Wrap(ErrConfig, "DATABASE_URL is required")
	}
	if c.ConsensusFullAPIURL == "" || c.ConsensusArchiveAPIURL == "" {
		return errors.Wrap(ErrConfig, "both CONSENSUS_FULL_API_URL and CONSENSUS_ARCHIVE_API_URL are required")
	}
	if c.ExecutionAPIURL == "" {
		return errors.Wrap(ErrConfig, "EXECUTION_API_URL is required")
	}
	if c.Chain != ChainEthereum && c.Chain != ChainGnosis {
		return errors.Wrap(ErrConfig, fmt.Sprintf("CHAIN must be %q or %q, got %q", ChainEthereum, ChainGnosis, c.Chain))
	}
	if c.ConsensusRequestPerSec <= 0 || c.ExecutionRequestPerSec <= 0 {
		return errors.Wrap(ErrConfig, "request-per-second values must be positive")
	}
	return nil
}
