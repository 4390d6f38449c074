package epoch

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/retry"
)

// SlotsFunc drives the slot-level pipeline (C6/C7) for every slot in epoch,
// blocking until every slot in range is processed. The epoch package depends
// on it only through this function type to avoid an import cycle with the
// slot package, which itself depends on epoch-level lookups (sync committee
// validators, committee sizes).
type SlotsFunc func(ctx context.Context, epoch uint64) error

// Processor runs the epoch-level dependency graph: six parallel branches
// (committees, sync committees, proposer duties, balances, activation,
// attestation rewards) plus the slot pipeline, converging on the final
// processed mark.
type Processor struct {
	ctrl  *Controller
	store *db.Store
	bt    *chaintime.BeaconTime
	log   logrus.FieldLogger
	slots SlotsFunc
}

// NewProcessor builds a Processor. slots drives C6/C7 for the epoch.
func NewProcessor(ctrl *Controller, store *db.Store, bt *chaintime.BeaconTime, log logrus.FieldLogger, slots SlotsFunc) *Processor {
	return &Processor{ctrl: ctrl, store: store, bt: bt, log: log, slots: slots}
}

// Process drives epoch through every branch of the dependency graph and
// marks it processed once all of them, including every slot in range, have
// completed. The caller (the orchestrator) is responsible for only calling
// this once the epoch is admissible (currentEpoch >= epoch-1).
func (p *Processor) Process(ctx context.Context, epoch uint64) error {
	g, gctx := errgroup.WithContext(ctx)

	epochStarted := make(chan struct{})
	committeesDone := make(chan struct{})
	syncCommitteesDone := make(chan struct{})
	balancesDone := make(chan struct{})

	g.Go(func() error {
		defer close(epochStarted)
		return p.bt.WaitUntilSlotStart(gctx, p.bt.StartSlot(epoch))
	})

	g.Go(func() error {
		defer close(committeesDone)
		return retry.Forever(gctx, p.log, "epoch.committees", func(ctx context.Context) error {
			return p.ctrl.FetchCommittees(ctx, epoch)
		})
	})

	g.Go(func() error {
		defer close(syncCommitteesDone)
		return retry.Forever(gctx, p.log, "epoch.syncCommittees", func(ctx context.Context) error {
			return p.ctrl.FetchSyncCommittees(ctx, epoch)
		})
	})

	g.Go(func() error {
		return retry.Forever(gctx, p.log, "epoch.proposerDuties", func(ctx context.Context) error {
			return p.ctrl.FetchProposerDuties(ctx, epoch)
		})
	})

	g.Go(func() error {
		if err := waitOrDone(gctx, epochStarted); err != nil {
			return err
		}
		defer close(balancesDone)
		return retry.Forever(gctx, p.log, "epoch.balances", func(ctx context.Context) error {
			return p.ctrl.FetchValidatorBalances(ctx, epoch)
		})
	})

	g.Go(func() error {
		if err := waitOrDone(gctx, epochStarted); err != nil {
			return err
		}
		return retry.Forever(gctx, p.log, "epoch.activation", func(ctx context.Context) error {
			return p.ctrl.FetchValidatorActivations(ctx, epoch)
		})
	})

	g.Go(func() error {
		// Slots need both the committee sizes (attestation decoding) and
		// the stored sync-committee period (sync-rewards branch) in place.
		if err := waitOrDone(gctx, committeesDone); err != nil {
			return err
		}
		if err := waitOrDone(gctx, syncCommitteesDone); err != nil {
			return err
		}
		if err := p.slots(gctx, epoch); err != nil {
			return errors.Wrap(err, "process slots")
		}
		return p.store.SetEpochFlag(gctx, uint32(epoch), "all_slots_processed")
	})

	g.Go(func() error {
		if err := waitOrDone(gctx, balancesDone); err != nil {
			return err
		}
		if err := p.bt.WaitUntilSlotStart(gctx, p.bt.EndSlot(epoch)+1); err != nil {
			return err
		}
		return retry.Forever(gctx, p.log, "epoch.attestationRewards", func(ctx context.Context) error {
			return p.ctrl.FetchAttestationRewards(ctx, epoch)
		})
	})

	if err := g.Wait(); err != nil {
		return err
	}

	startSlot, endSlot := p.bt.EpochSlots(epoch)
	return p.store.MarkEpochProcessed(ctx, uint32(epoch), uint32(startSlot), uint32(endSlot))
}

func waitOrDone(ctx context.Context, done <-chan struct{}) error {
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
