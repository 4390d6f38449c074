package db

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
)

// InsertSyncCommitteeRewards bulk-inserts per-validator sync-committee
// rewards and flips slot.syncRewardsFetched. Deliberately NOT folded into
// hourly_validator_stats: the scheduled summary job owns that roll-up, and
// folding here as well would double count.
func (s *Store) InsertSyncCommitteeRewards(ctx context.Context, slot uint32, rows []models.SyncCommitteeRewards) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO sync_committee_rewards (slot, validator_index, sync_committee_reward)
			VALUES ($1, $2, $3)
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare sync committee rewards insert")
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Slot, r.ValidatorIndex, r.SyncCommitteeReward); err != nil {
				return errors.Wrap(err, "failed to insert sync committee reward row")
			}
		}
		return s.setSlotFlagTx(ctx, tx, slot, "sync_rewards_fetched")
	})
}

// setSlotFlagTx is the transactional twin of SetSlotFlag, used when a branch
// needs the flag flip co-committed with its raw writes, so an observer of
// flag=true is guaranteed to see the rows.
func (s *Store) setSlotFlagTx(ctx context.Context, tx *sqlx.Tx, slot uint32, column string) error {
	q := `
		INSERT INTO slots (slot, ` + column + `) VALUES ($1, true)
		ON CONFLICT (slot) DO UPDATE SET ` + column + ` = true
	`
	if _, err := tx.ExecContext(ctx, q, slot); err != nil {
		return errors.Wrapf(err, "failed to set slot flag %s", column)
	}
	return nil
}
