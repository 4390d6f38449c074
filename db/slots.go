package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
)

// UpsertSlotCommitteesCount writes committeesCountInSlot for a batch of
// slots, called within the committees-stage transaction.
func (s *Store) UpsertSlotCommitteesCount(ctx context.Context, tx *sqlx.Tx, counts map[uint32][]int) error {
	for slot, sizes := range counts {
		raw, err := json.Marshal(sizes)
		if err != nil {
			return errors.Wrap(err, "failed to marshal committeesCountInSlot")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO slots (slot, committees_count_in_slot)
			VALUES ($1, $2)
			ON CONFLICT (slot) DO UPDATE SET committees_count_in_slot = EXCLUDED.committees_count_in_slot
		`, slot, raw)
		if err != nil {
			return errors.Wrap(err, "failed to upsert slot committees count")
		}
	}
	return nil
}

// GetCommitteesCountInSlot reads back the per-slot committee-size list, used
// by the attestations branch to decode aggregation bitlists.
func (s *Store) GetCommitteesCountInSlot(ctx context.Context, slot uint32) ([]int, error) {
	var raw []byte
	err := s.db.GetContext(ctx, &raw, `SELECT committees_count_in_slot FROM slots WHERE slot = $1`, slot)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to read committees count in slot")
	}
	var out []int
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal committees count in slot")
	}
	return out, nil
}

// GetSlot loads one slot row's flags and summary fields.
func (s *Store) GetSlot(ctx context.Context, slot uint32) (models.Slot, error) {
	var row struct {
		models.Slot
		CommitteesCountInSlot []byte `db:"committees_count_in_slot"`
	}
	err := s.db.GetContext(ctx, &row, `SELECT * FROM slots WHERE slot = $1`, slot)
	if err == sql.ErrNoRows {
		return models.Slot{Slot: slot}, nil
	}
	if err != nil {
		return models.Slot{}, errors.Wrap(err, "failed to read slot")
	}
	out := row.Slot
	if len(row.CommitteesCountInSlot) > 0 {
		_ = json.Unmarshal(row.CommitteesCountInSlot, &out.CommitteesCountInSlot)
	}
	return out, nil
}

// SetSlotFlag flips one per-stage boolean column on a slot row, creating the
// row first if it does not yet exist (a slot row may not exist until its
// committees are fetched, but a per-slot branch can run before that in
// principle for flags unrelated to committees).
func (s *Store) SetSlotFlag(ctx context.Context, slot uint32, column string) error {
	q := `
		INSERT INTO slots (slot, ` + column + `) VALUES ($1, true)
		ON CONFLICT (slot) DO UPDATE SET ` + column + ` = true
	`
	_, err := s.db.ExecContext(ctx, q, slot)
	if err != nil {
		return errors.Wrapf(err, "failed to set slot flag %s", column)
	}
	return nil
}

// SetSlotProposer records the proposer for a slot.
func (s *Store) SetSlotProposer(ctx context.Context, slot, validatorIndex uint32) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO slots (slot, proposer_index) VALUES ($1, $2)
		ON CONFLICT (slot) DO UPDATE SET proposer_index = EXCLUDED.proposer_index
	`, slot, validatorIndex)
	if err != nil {
		return errors.Wrap(err, "failed to set slot proposer")
	}
	return nil
}

// SetSlotConsensusReward overwrites the raw consensus-reward field. Unlike
// the hourly fold, raw fields overwrite rather than accumulate.
func (s *Store) SetSlotConsensusReward(ctx context.Context, tx *sqlx.Tx, slot uint32, reward int64) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO slots (slot, consensus_reward, consensus_rewards_fetched) VALUES ($1, $2, true)
		ON CONFLICT (slot) DO UPDATE SET consensus_reward = EXCLUDED.consensus_reward, consensus_rewards_fetched = true
	`, slot, reward)
	if err != nil {
		return errors.Wrap(err, "failed to set slot consensus reward")
	}
	return nil
}

// NextUnprocessedSlot finds the lowest slot in [from, to] with processed =
// false, and reports whether every slot in the range is already processed,
// in one range query.
func (s *Store) NextUnprocessedSlot(ctx context.Context, from, to uint32) (next uint32, allProcessed bool, err error) {
	var n sql.NullInt64
	err = s.db.GetContext(ctx, &n, `
		SELECT min(s) FROM generate_series($1::bigint, $2::bigint) AS s
		WHERE NOT EXISTS (SELECT 1 FROM slots WHERE slot = s AND processed = true)
	`, from, to)
	if err != nil {
		return 0, false, errors.Wrap(err, "failed to find next unprocessed slot")
	}
	if !n.Valid {
		return 0, true, nil
	}
	return uint32(n.Int64), false, nil
}

// MarkSlotProcessed flips slot.processed, enforcing the precondition that
// every per-stage flag and committeesCountInSlot are already set.
func (s *Store) MarkSlotProcessed(ctx context.Context, slot uint32) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		row, err := func() (models.Slot, error) {
			var r struct {
				models.Slot
				CommitteesCountInSlot []byte `db:"committees_count_in_slot"`
			}
			if err := tx.GetContext(ctx, &r, `SELECT * FROM slots WHERE slot = $1 FOR UPDATE`, slot); err != nil {
				return models.Slot{}, err
			}
			out := r.Slot
			out.CommitteesCountInSlot = nil
			if len(r.CommitteesCountInSlot) > 0 {
				_ = json.Unmarshal(r.CommitteesCountInSlot, &out.CommitteesCountInSlot)
			}
			return out, nil
		}()
		if err != nil {
			return errors.Wrap(err, "failed to read slot for processed update")
		}
		if !row.AllSet() || len(row.CommitteesCountInSlot) == 0 {
			return errors.Errorf("slot %d: preconditions for processed not met", slot)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE slots SET processed = true WHERE slot = $1`, slot); err != nil {
			return errors.Wrap(err, "failed to mark slot processed")
		}
		return nil
	})
}
