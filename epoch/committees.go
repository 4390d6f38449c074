package epoch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/decstr"
)

// FetchCommittees fetches committee assignments for epoch's start-slot
// state, skips any referenced slot below the lookback boundary, and
// bulk-loads the flattened rows plus per-slot committee sizes.
func (c *Controller) FetchCommittees(ctx context.Context, epoch uint64) error {
	e, err := c.store.GetEpoch(ctx, uint32(epoch))
	if err != nil {
		return errors.Wrap(err, "fetch committees: read epoch")
	}
	if e.CommitteesFetched {
		return nil
	}

	startSlot := c.bt.StartSlot(epoch)
	raw, err := c.beacon.GetCommittees(ctx, beacon.StateAtSlot(startSlot), epoch)
	if err != nil {
		return errors.Wrap(err, "fetch committees")
	}

	sizes := map[uint32]map[uint16]int{}
	var rows []models.Committee
	lookback := c.bt.LookbackSlot()

	for _, cm := range raw {
		slot, err := decstr.ParseUint64(cm.Slot)
		if err != nil {
			return errors.Wrap(err, "parse committee slot")
		}
		if slot < lookback {
			continue
		}
		idx, err := decstr.ParseUint64(cm.Index)
		if err != nil {
			return errors.Wrap(err, "parse committee index")
		}
		validators, err := decstr.ParseUint32Slice(cm.Validators)
		if err != nil {
			return errors.Wrap(err, "parse committee validators")
		}

		if sizes[uint32(slot)] == nil {
			sizes[uint32(slot)] = map[uint16]int{}
		}
		sizes[uint32(slot)][uint16(idx)] = len(validators)

		for bit, v := range validators {
			rows = append(rows, models.Committee{
				Slot:                 uint32(slot),
				CommitteeIndex:       uint16(idx),
				AggregationBitsIndex: uint16(bit),
				ValidatorIndex:       v,
			})
		}
	}

	counts := make(map[uint32][]int, len(sizes))
	for slot, bySize := range sizes {
		max := uint16(0)
		for idx := range bySize {
			if idx > max {
				max = idx
			}
		}
		ordered := make([]int, max+1)
		for idx, n := range bySize {
			ordered[idx] = n
		}
		counts[slot] = ordered
	}

	if err := c.store.BulkLoadCommittees(ctx, uint32(epoch), counts, rows); err != nil {
		return errors.Wrap(err, "bulk load committees")
	}
	return nil
}
