package epoch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/chaintime"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/decstr"
)

// idealRewardBucket is one decoded ideal_rewards row, keyed by its
// effective-balance bucket in gwei.
type idealRewardBucket struct {
	Head       int64
	Target     int64
	Source     int64
	Inactivity int64
}

// gweiBucketSize is the rounding unit for effective-balance buckets: the
// ideal-rewards row for a validator is keyed by its effective balance
// floored to the nearest 10^9 gwei.
const gweiBucketSize = 1_000_000_000

func bucketOf(effectiveBalance uint64) uint64 {
	return (effectiveBalance / gweiBucketSize) * gweiBucketSize
}

func buildIdealRewardMap(rows []beacon.IdealReward) (map[uint64]idealRewardBucket, error) {
	out := make(map[uint64]idealRewardBucket, len(rows))
	for _, r := range rows {
		eb, err := decstr.ParseUint64(r.EffectiveBalance)
		if err != nil {
			return nil, errors.Wrap(err, "parse ideal reward effective balance")
		}
		head, err := decstr.ParseInt64(r.Head)
		if err != nil {
			return nil, errors.Wrap(err, "parse ideal reward head")
		}
		target, err := decstr.ParseInt64(r.Target)
		if err != nil {
			return nil, errors.Wrap(err, "parse ideal reward target")
		}
		source, err := decstr.ParseInt64(r.Source)
		if err != nil {
			return nil, errors.Wrap(err, "parse ideal reward source")
		}
		inactivity, err := decstr.ParseInt64(r.InactivityPenalty)
		if err != nil {
			return nil, errors.Wrap(err, "parse ideal reward inactivity")
		}
		out[bucketOf(eb)] = idealRewardBucket{Head: head, Target: target, Source: source, Inactivity: inactivity}
	}
	return out, nil
}

// FetchAttestationRewards fetches the epoch's attestation rewards per
// chunk of attesting validators, looks up each validator's
// effective-balance bucket, and computes missed_x = max(ideal_x -
// received_x, 0) against the first chunk's ideal-rewards map.
func (c *Controller) FetchAttestationRewards(ctx context.Context, epoch uint64) error {
	e, err := c.store.GetEpoch(ctx, uint32(epoch))
	if err != nil {
		return errors.Wrap(err, "fetch attestation rewards: read epoch")
	}
	if e.RewardsFetched {
		return nil
	}

	chunks, err := c.store.NonTerminalValidatorIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "read attesting validator ids")
	}

	hour := chaintime.HourOf(c.bt.TimeOf(c.bt.StartSlot(epoch)))

	var ideal map[uint64]idealRewardBucket
	var allRows []models.EpochRewards

	for i, ids := range chunks {
		effBalances, err := c.store.ValidatorEffectiveBalancesByIndex(ctx, ids)
		if err != nil {
			return errors.Wrap(err, "read validator effective balances")
		}

		resp, err := c.beacon.GetAttestationRewards(ctx, epoch, ids)
		if err != nil {
			return errors.Wrap(err, "fetch attestation rewards")
		}

		if i == 0 {
			ideal, err = buildIdealRewardMap(resp.IdealRewards)
			if err != nil {
				return err
			}
		}

		for _, tr := range resp.TotalRewards {
			vIdx, err := decstr.ParseUint64(tr.ValidatorIndex)
			if err != nil {
				return errors.Wrap(err, "parse total reward validator index")
			}
			head, err := decstr.ParseInt64(tr.Head)
			if err != nil {
				return errors.Wrap(err, "parse total reward head")
			}
			target, err := decstr.ParseInt64(tr.Target)
			if err != nil {
				return errors.Wrap(err, "parse total reward target")
			}
			source, err := decstr.ParseInt64(tr.Source)
			if err != nil {
				return errors.Wrap(err, "parse total reward source")
			}
			inactivity, err := decstr.ParseInt64(tr.InactivityPenalty)
			if err != nil {
				return errors.Wrap(err, "parse total reward inactivity")
			}

			bucket := bucketOf(effBalances[uint32(vIdx)])
			idealRow, ok := ideal[bucket]
			if !ok {
				return errors.Errorf("no ideal reward row for effective balance bucket %d (validator %d)", bucket, vIdx)
			}

			allRows = append(allRows, models.EpochRewards{
				Epoch:            uint32(epoch),
				ValidatorIndex:   uint32(vIdx),
				Head:             head,
				Target:           target,
				Source:           source,
				Inactivity:       inactivity,
				MissedHead:       maxInt64(idealRow.Head-head, 0),
				MissedTarget:     maxInt64(idealRow.Target-target, 0),
				MissedSource:     maxInt64(idealRow.Source-source, 0),
				MissedInactivity: maxInt64(idealRow.Inactivity-inactivity, 0),
			})
		}
	}

	return c.store.BulkInsertEpochRewards(ctx, uint32(epoch), hour, allRows)
}
