package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// SyncCommitteeCoveringEpoch reports whether a stored sync-committee period
// already spans epoch.
func (s *Store) SyncCommitteeCoveringEpoch(ctx context.Context, epoch uint32) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT count(*) FROM sync_committees WHERE from_epoch <= $1 AND to_epoch >= $1
	`, epoch)
	if err != nil {
		return false, errors.Wrap(err, "failed to check sync committee coverage")
	}
	return n > 0, nil
}

// InsertSyncCommittee stores a freshly-fetched period and flips
// epoch.syncCommitteesFetched in one transaction.
func (s *Store) InsertSyncCommittee(ctx context.Context, epoch, fromEpoch, toEpoch uint32, validators []uint32, aggregates [][]uint32) error {
	validatorsJSON, err := json.Marshal(validators)
	if err != nil {
		return errors.Wrap(err, "failed to marshal sync committee validators")
	}
	aggJSON, err := json.Marshal(aggregates)
	if err != nil {
		return errors.Wrap(err, "failed to marshal sync committee aggregates")
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO sync_committees (from_epoch, to_epoch, validators, validator_aggregates)
			VALUES ($1, $2, $3, $4)
		`, fromEpoch, toEpoch, validatorsJSON, aggJSON)
		if err != nil {
			return errors.Wrap(err, "failed to insert sync committee")
		}
		if _, err := tx.ExecContext(ctx, `UPDATE epochs SET sync_committees_fetched = true WHERE epoch = $1`, epoch); err != nil {
			return errors.Wrap(err, "failed to flip syncCommitteesFetched")
		}
		return nil
	})
}

// FlipSyncCommitteesFetched is used when an existing row already covers the
// epoch: no insert, just the flag flip.
func (s *Store) FlipSyncCommitteesFetched(ctx context.Context, epoch uint32) error {
	return s.SetEpochFlag(ctx, epoch, "sync_committees_fetched")
}

// SyncCommitteeValidators returns the flat validator list for the period
// covering epoch, used by the slot-level syncCommitteeRewards branch.
func (s *Store) SyncCommitteeValidators(ctx context.Context, epoch uint32) ([]uint32, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `
		SELECT validators FROM sync_committees WHERE from_epoch <= $1 AND to_epoch >= $1
	`, epoch)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read sync committee validators")
	}
	var out []uint32
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal sync committee validators")
	}
	return out, nil
}
