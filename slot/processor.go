package slot

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/retry"
)

// slotFlagColumns lists every per-stage boolean column a slot row carries,
// used to close out a missed slot's flags directly: a missed block has no
// data to process but must still be marked done.
var slotFlagColumns = []string{
	"attestations_fetched",
	"consensus_rewards_fetched",
	"execution_rewards_fetched",
	"sync_rewards_fetched",
	"ep_withdrawals_fetched",
	"deposits_fetched",
	"voluntary_exits_fetched",
	"er_deposits_fetched",
	"er_withdrawals_fetched",
	"er_consolidations_fetched",
}

// Processor drives one slot through its states: gettingSlot ->
// waitingForSlotToStart -> fetchingBeaconBlock -> processingSlot (parallel
// branches) -> markingSlotCompleted -> completed.
type Processor struct {
	ctrl  *Controller
	store *db.Store
	bt    *chaintime.BeaconTime
	log   logrus.FieldLogger
}

// NewProcessor builds a Processor.
func NewProcessor(ctrl *Controller, store *db.Store, bt *chaintime.BeaconTime, log logrus.FieldLogger) *Processor {
	return &Processor{ctrl: ctrl, store: store, bt: bt, log: log}
}

// Process drives slot through every state and marks it processed. The
// attestations branch's error is returned immediately (fatal for the
// slot); every other branch retries forever per the default per-branch
// failure policy.
func (p *Processor) Process(ctx context.Context, slot uint64) error {
	row, err := p.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "process slot: read slot")
	}
	if row.Processed {
		return nil
	}

	if err := p.bt.WaitUntilSlotStart(ctx, slot); err != nil {
		return errors.Wrap(err, "wait for slot start")
	}

	block, err := p.ctrl.GetBlock(ctx, slot)
	if errors.Is(err, indexererr.ErrSlotMissed) {
		if err := p.closeMissedSlot(ctx, slot); err != nil {
			return errors.Wrap(err, "close missed slot")
		}
		return p.store.MarkSlotProcessed(ctx, uint32(slot))
	}
	if err != nil {
		return errors.Wrap(err, "fetch beacon block")
	}

	if err := p.processSlot(ctx, slot, block); err != nil {
		return err
	}

	return p.store.MarkSlotProcessed(ctx, uint32(slot))
}

// closeMissedSlot flips every per-stage flag directly: a missed block has
// no attestations, rewards, withdrawals, deposits, exits, or execution
// requests to copy, so every branch is a no-op flag flip.
func (p *Processor) closeMissedSlot(ctx context.Context, slot uint64) error {
	for _, col := range slotFlagColumns {
		if err := p.store.SetSlotFlag(ctx, uint32(slot), col); err != nil {
			return err
		}
	}
	return nil
}

// processSlot runs every parallel branch of the processingSlot state. Each
// branch checks its own "already done" flag internally and returns a no-op
// when already set.
func (p *Processor) processSlot(ctx context.Context, slot uint64, block *beacon.Block) error {
	body := block.Message.Body

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := p.ctrl.FetchAttestations(gctx, slot, block); err != nil {
			return errors.Wrap(err, "attestations")
		}
		return nil
	})

	g.Go(func() error {
		return retry.Forever(gctx, p.log, "slot.consensusRewards", func(ctx context.Context) error {
			return p.ctrl.FetchConsensusRewards(ctx, slot)
		})
	})

	g.Go(func() error {
		return retry.Forever(gctx, p.log, "slot.syncCommitteeRewards", func(ctx context.Context) error {
			return p.ctrl.FetchSyncCommitteeRewards(ctx, slot)
		})
	})

	g.Go(func() error {
		return retry.Forever(gctx, p.log, "slot.executionRewards", func(ctx context.Context) error {
			return p.ctrl.FetchExecutionRewards(ctx, slot, body.ExecutionPayload)
		})
	})

	g.Go(func() error {
		var withdrawals []beacon.WithdrawalRequest
		if body.ExecutionPayload != nil {
			withdrawals = body.ExecutionPayload.Withdrawals
		}
		return retry.Forever(gctx, p.log, "slot.epWithdrawals", func(ctx context.Context) error {
			return p.ctrl.FetchWithdrawals(ctx, slot, withdrawals)
		})
	})

	g.Go(func() error {
		return retry.Forever(gctx, p.log, "slot.deposits", func(ctx context.Context) error {
			return p.ctrl.FetchDeposits(ctx, slot, body.Deposits)
		})
	})

	g.Go(func() error {
		return retry.Forever(gctx, p.log, "slot.voluntaryExits", func(ctx context.Context) error {
			return p.ctrl.FetchVoluntaryExits(ctx, slot, body.VoluntaryExits)
		})
	})

	g.Go(func() error {
		var deposits []beacon.ExecutionRequestDeposit
		if body.ExecutionRequests != nil {
			deposits = body.ExecutionRequests.Deposits
		}
		return retry.Forever(gctx, p.log, "slot.erDeposits", func(ctx context.Context) error {
			return p.ctrl.FetchExecutionRequestsDeposits(ctx, slot, deposits)
		})
	})

	g.Go(func() error {
		var withdrawals []beacon.ExecutionRequestWithdrawal
		if body.ExecutionRequests != nil {
			withdrawals = body.ExecutionRequests.Withdrawals
		}
		return retry.Forever(gctx, p.log, "slot.erWithdrawals", func(ctx context.Context) error {
			return p.ctrl.FetchExecutionRequestsWithdrawals(ctx, slot, withdrawals)
		})
	})

	g.Go(func() error {
		var consolidations []beacon.ExecutionRequestConsolidation
		if body.ExecutionRequests != nil {
			consolidations = body.ExecutionRequests.Consolidations
		}
		return retry.Forever(gctx, p.log, "slot.erConsolidations", func(ctx context.Context) error {
			return p.ctrl.FetchExecutionRequestsConsolidations(ctx, slot, consolidations)
		})
	})

	return g.Wait()
}
