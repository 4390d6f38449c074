package epoch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/decstr"
)

// FetchProposerDuties fetches the proposer schedule for epoch and upserts
// the proposer index for each listed slot.
func (c *Controller) FetchProposerDuties(ctx context.Context, epoch uint64) error {
	e, err := c.store.GetEpoch(ctx, uint32(epoch))
	if err != nil {
		return errors.Wrap(err, "fetch proposer duties: read epoch")
	}
	if e.ValidatorProposerDutiesFetched {
		return nil
	}

	duties, err := c.beacon.GetValidatorProposerDuties(ctx, epoch)
	if err != nil {
		return errors.Wrap(err, "fetch proposer duties")
	}

	for _, d := range duties {
		slot, err := decstr.ParseUint64(d.Slot)
		if err != nil {
			return errors.Wrap(err, "parse proposer duty slot")
		}
		vIdx, err := decstr.ParseUint64(d.ValidatorIndex)
		if err != nil {
			return errors.Wrap(err, "parse proposer duty validator index")
		}
		if err := c.store.SetSlotProposer(ctx, uint32(slot), uint32(vIdx)); err != nil {
			return errors.Wrap(err, "set slot proposer")
		}
	}

	return c.store.SetEpochFlag(ctx, uint32(epoch), "validator_proposer_duties_fetched")
}
