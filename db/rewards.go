package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
)

// BulkInsertEpochRewards performs the temp-table bulk load for attestation
// rewards, folds the epoch-rewards hourly contribution, and flips
// epoch.rewardsFetched, all in one transaction.
func (s *Store) BulkInsertEpochRewards(ctx context.Context, epoch uint32, hour time.Time, rows []models.EpochRewards) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if len(rows) > 0 {
			if err := bulkLoadEpochRewardRows(ctx, tx, rows); err != nil {
				return err
			}
			if err := foldHourlyRewards(ctx, tx, hour, epochRewardsAsHourlyDeltas(rows)); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE epochs SET rewards_fetched = true WHERE epoch = $1`, epoch); err != nil {
			return errors.Wrap(err, "failed to flip rewardsFetched")
		}
		return nil
	})
}

func bulkLoadEpochRewardRows(ctx context.Context, tx *sqlx.Tx, rows []models.EpochRewards) error {
	if _, err := tx.ExecContext(ctx, `
		CREATE TEMP TABLE tmp_epoch_rewards (
			epoch bigint, validator_index bigint,
			head bigint, target bigint, source bigint, inactivity bigint,
			missed_head bigint, missed_target bigint, missed_source bigint, missed_inactivity bigint
		) ON COMMIT DROP
	`); err != nil {
		return errors.Wrap(err, "failed to create tmp_epoch_rewards")
	}

	const cols = 10
	for _, batch := range batchEpochRewards(rows, maxBindVars/cols) {
		query, args := buildEpochRewardsInsert(batch)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "failed to stream epoch reward rows")
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO epoch_rewards (epoch, validator_index, head, target, source, inactivity,
			missed_head, missed_target, missed_source, missed_inactivity)
		SELECT epoch, validator_index, head, target, source, inactivity,
			missed_head, missed_target, missed_source, missed_inactivity
		FROM tmp_epoch_rewards
	`)
	if err != nil {
		return errors.Wrap(err, "failed to bulk-insert epoch rewards")
	}
	return nil
}

func batchEpochRewards(rows []models.EpochRewards, n int) [][]models.EpochRewards {
	if n <= 0 {
		n = len(rows)
	}
	var out [][]models.EpochRewards
	for len(rows) > 0 {
		end := n
		if end > len(rows) {
			end = len(rows)
		}
		out = append(out, rows[:end])
		rows = rows[end:]
	}
	return out
}

func buildEpochRewardsInsert(rows []models.EpochRewards) (string, []interface{}) {
	query := `INSERT INTO tmp_epoch_rewards (epoch, validator_index, head, target, source, inactivity,
		missed_head, missed_target, missed_source, missed_inactivity) VALUES `
	args := make([]interface{}, 0, len(rows)*10)
	for i, r := range rows {
		if i > 0 {
			query += ","
		}
		base := i * 10
		ph := make([]string, 10)
		for j := 0; j < 10; j++ {
			ph[j] = fmt.Sprintf("$%d", base+j+1)
		}
		query += "(" + join(ph) + ")"
		args = append(args, r.Epoch, r.ValidatorIndex, r.Head, r.Target, r.Source, r.Inactivity,
			r.MissedHead, r.MissedTarget, r.MissedSource, r.MissedInactivity)
	}
	return query, args
}

func join(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ","
		}
		out += p
	}
	return out
}

// hourlyDelta is one validator's additive contribution to a hourly bucket.
type hourlyDelta struct {
	ValidatorIndex          uint32
	ClRewards               int64
	ClMissedRewards         int64
	MissedAttestationsCount int16
}

func epochRewardsAsHourlyDeltas(rows []models.EpochRewards) []hourlyDelta {
	out := make([]hourlyDelta, 0, len(rows))
	for _, r := range rows {
		out = append(out, hourlyDelta{
			ValidatorIndex:  r.ValidatorIndex,
			ClRewards:       r.ClRewards(),
			ClMissedRewards: r.ClMissedRewards(),
		})
	}
	return out
}

// foldHourlyRewards is the additive hourly upsert: on conflict the bucket
// accumulates (existing + EXCLUDED), never overwrites, so re-invocations
// over fresh source rows stay additive.
func foldHourlyRewards(ctx context.Context, tx *sqlx.Tx, hour time.Time, deltas []hourlyDelta) error {
	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO hourly_validator_stats (datetime_hour_utc, validator_index, cl_rewards, cl_missed_rewards, missed_attestations_count)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (datetime_hour_utc, validator_index) DO UPDATE SET
			cl_rewards = hourly_validator_stats.cl_rewards + EXCLUDED.cl_rewards,
			cl_missed_rewards = hourly_validator_stats.cl_missed_rewards + EXCLUDED.cl_missed_rewards,
			missed_attestations_count = hourly_validator_stats.missed_attestations_count + EXCLUDED.missed_attestations_count
	`)
	if err != nil {
		return errors.Wrap(err, "failed to prepare hourly fold")
	}
	defer stmt.Close()

	for _, d := range deltas {
		if _, err := stmt.ExecContext(ctx, hour, d.ValidatorIndex, d.ClRewards, d.ClMissedRewards, d.MissedAttestationsCount); err != nil {
			return errors.Wrap(err, "failed to fold hourly reward delta")
		}
	}
	return nil
}

// FoldConsensusReward folds a single block-proposer reward into the hourly
// bucket, called from the slot consensusRewards branch in the same
// transaction as SetSlotConsensusReward.
func (s *Store) FoldConsensusReward(ctx context.Context, tx *sqlx.Tx, hour time.Time, proposerIndex uint32, reward int64) error {
	return foldHourlyRewards(ctx, tx, hour, []hourlyDelta{{ValidatorIndex: proposerIndex, ClRewards: reward}})
}

// WithTx exposes the transaction helper to callers (slot/epoch packages)
// that need to combine several Store operations atomically, e.g. the
// consensusRewards branch setting both the raw field and the hourly fold.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	return s.withTx(ctx, fn)
}
