// Command indexer is the process entry point: it loads configuration,
// wires every client/store/controller/orchestrator, and runs until
// terminated, draining in-flight work on SIGINT/SIGTERM.
package main

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	apiclient "github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/execution"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/reliable"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/async"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/config"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/epoch"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/slot"
)

// epochCreatorInterval is how often the epoch creator tops up its window
// of unprocessed epoch rows. It is one Ethereum slot on every chain,
// including Gnosis, whose slots are 5s.
const epochCreatorInterval = 12 * time.Second

func main() {
	app := &cli.App{
		Name:  "indexer",
		Usage: "index beacon-chain and execution-layer rewards into Postgres",
		Flags: config.Flags(),
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("indexer exited with error")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.FromCLI(c)
	if err != nil {
		return errors.Wrap(err, "load config")
	}

	log := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := db.New(cfg.DatabaseURL, log)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.WithError(err).Warn("error closing database connection")
		}
	}()

	bt := chaintime.New(cfg.ChainTime())

	beaconClient, err := buildBeaconClient(cfg, log)
	if err != nil {
		return errors.Wrap(err, "build consensus client")
	}
	executionClient, err := buildExecutionClient(cfg, bt.SlotDuration(), log)
	if err != nil {
		return errors.Wrap(err, "build execution client")
	}

	epochCtrl := epoch.NewController(beaconClient, store, bt, log)

	// Seed the validator set before anything else runs: every
	// validator-driven stage selects its targets from this table.
	if err := epochCtrl.SyncValidators(ctx); err != nil {
		return errors.Wrap(err, "initial validator sync")
	}

	slotCtrl := slot.NewController(beaconClient, executionClient, store, bt, log)
	slotProcessor := slot.NewProcessor(slotCtrl, store, bt, log)
	slotOrchestrator := slot.NewOrchestrator(store, bt, log, slotProcessor)

	epochProcessor := epoch.NewProcessor(epochCtrl, store, bt, log, slotOrchestrator.RunForEpoch)
	epochOrchestrator := epoch.NewOrchestrator(store, bt, log, epochProcessor)
	epochCreator := epoch.NewCreator(store, bt, log)

	async.RunEvery(ctx, epochCreatorInterval, func() { epochCreator.Tick(ctx) })

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := epochOrchestrator.Run(gctx); err != nil && gctx.Err() == nil {
			return errors.Wrap(err, "epoch orchestrator")
		}
		return nil
	})

	log.WithFields(logrus.Fields{
		"chain":          cfg.Chain,
		"lookback_slot":  cfg.ConsensusLookbackSlot,
	}).Info("indexer started")

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("indexer shut down cleanly")
	return nil
}

// newLogger builds the process logger at the configured level, falling back
// to info on an unparsable LOG_LEVEL rather than failing startup over it.
func newLogger(level string) *logrus.Logger {
	log := logrus.New()
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
	return log
}

// buildBeaconClient wires the consensus-layer façade over a reliable.Client
// with the archive endpoint as primary and the full endpoint as secondary.
func buildBeaconClient(cfg config.Config, log logrus.FieldLogger) (*beacon.Client, error) {
	full, err := newEndpoint("full", cfg.ConsensusFullAPIURL, cfg.ConsensusRequestPerSec, "consensus")
	if err != nil {
		return nil, err
	}
	archive, err := newEndpoint("archive", cfg.ConsensusArchiveAPIURL, cfg.ConsensusRequestPerSec, "consensus")
	if err != nil {
		return nil, err
	}

	rc := reliable.New(archive, full, time.Second, log)
	return beacon.NewClient(rc, log), nil
}

// buildExecutionClient wires the execution-layer façade: a mandatory
// Blockscout-style primary, with an optional Etherscan-compatible backup
// tried one slotDuration after the primary fails.
func buildExecutionClient(cfg config.Config, slotDuration time.Duration, log logrus.FieldLogger) (*execution.Client, error) {
	blockscout, err := apiclient.NewClient(cfg.ExecutionAPIURL)
	if err != nil {
		return nil, errors.Wrap(err, "build blockscout client")
	}
	blockscoutGate := reliable.NewGate(int64(cfg.ExecutionRequestPerSec), "execution", "blockscout")

	opts := []execution.Option{execution.WithWaitBetween(slotDuration)}
	if cfg.ExecutionAPIBkpURL != "" {
		etherscan, err := apiclient.NewClient(cfg.ExecutionAPIBkpURL)
		if err != nil {
			return nil, errors.Wrap(err, "build etherscan-compatible backup client")
		}
		etherscanGate := reliable.NewGate(int64(cfg.ExecutionRequestPerSec), "execution", "etherscan")
		opts = append(opts, execution.WithEtherscan(etherscan, etherscanGate, cfg.ExecutionAPIBkpKey))
	}

	return execution.New(blockscout, blockscoutGate, log, opts...), nil
}

// newEndpoint builds a reliable.Endpoint with its own gate, validating the
// base URL eagerly so a misconfigured host fails at startup.
func newEndpoint(name, rawURL string, requestsPerSec int, nodeType string) (*reliable.Endpoint, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, errors.Wrapf(config.ErrConfig, "invalid %s endpoint %q: %v", name, rawURL, err)
	}
	return &reliable.Endpoint{
		Name:    name,
		BaseURL: u,
		HTTP:    &http.Client{Timeout: apiclient.DefaultTimeout},
		Gate:    reliable.NewGate(int64(requestsPerSec), nodeType, name),
		Retries: 5,
	}, nil
}
