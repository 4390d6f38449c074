package epoch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/decstr"
)

// FetchSyncCommittees flips the flag without an upstream call when a
// stored period already covers epoch; otherwise it fetches the period
// starting at epoch's sync-committee period start and inserts it.
func (c *Controller) FetchSyncCommittees(ctx context.Context, epoch uint64) error {
	e, err := c.store.GetEpoch(ctx, uint32(epoch))
	if err != nil {
		return errors.Wrap(err, "fetch sync committees: read epoch")
	}
	if e.SyncCommitteesFetched {
		return nil
	}

	covered, err := c.store.SyncCommitteeCoveringEpoch(ctx, uint32(epoch))
	if err != nil {
		return errors.Wrap(err, "check sync committee coverage")
	}
	if covered {
		return c.store.FlipSyncCommitteesFetched(ctx, uint32(epoch))
	}

	periodStart := c.bt.SyncPeriodStart(epoch)
	toEpoch := periodStart + c.bt.EpochsPerSyncPeriod() - 1
	startSlot := c.bt.StartSlot(periodStart)

	sc, err := c.beacon.GetSyncCommittees(ctx, startSlot, periodStart)
	if err != nil {
		return errors.Wrap(err, "fetch sync committees")
	}

	validators, err := decstr.ParseUint32Slice(sc.Validators)
	if err != nil {
		return errors.Wrap(err, "parse sync committee validators")
	}
	aggregates := make([][]uint32, len(sc.ValidatorAggregates))
	for i, agg := range sc.ValidatorAggregates {
		parsed, err := decstr.ParseUint32Slice(agg)
		if err != nil {
			return errors.Wrap(err, "parse sync committee aggregate")
		}
		aggregates[i] = parsed
	}

	if err := c.store.InsertSyncCommittee(ctx, uint32(epoch), uint32(periodStart), uint32(toEpoch), validators, aggregates); err != nil {
		return errors.Wrap(err, "insert sync committee")
	}
	return nil
}
