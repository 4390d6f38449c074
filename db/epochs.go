package db

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
)

// CreateEpochs inserts new epoch rows, validating the strictly-consecutive
// rule: the list must start at max(existing epoch)+1, or at baseline when
// the table is empty, and contain no gaps.
func (s *Store) CreateEpochs(ctx context.Context, epochs []uint32, baseline uint32) error {
	if len(epochs) == 0 {
		return nil
	}
	for i := 1; i < len(epochs); i++ {
		if epochs[i] != epochs[i-1]+1 {
			return indexererr.ErrInvalidEpochSequence
		}
	}

	var maxExisting sql.NullInt64
	if err := s.db.GetContext(ctx, &maxExisting, `SELECT max(epoch) FROM epochs`); err != nil {
		return errors.Wrap(err, "failed to read max epoch")
	}

	want := baseline
	if maxExisting.Valid {
		want = uint32(maxExisting.Int64) + 1
	}
	if epochs[0] != want {
		return indexererr.ErrInvalidEpochSequence
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		for _, e := range epochs {
			if _, err := tx.ExecContext(ctx, `INSERT INTO epochs (epoch) VALUES ($1)`, e); err != nil {
				return errors.Wrap(err, "failed to insert epoch")
			}
		}
		return nil
	})
}

// GetMinEpochToProcess returns the earliest epoch with processed=false, and
// ok=false if every known epoch is already processed.
func (s *Store) GetMinEpochToProcess(ctx context.Context) (epoch uint32, ok bool, err error) {
	var n sql.NullInt64
	if err := s.db.GetContext(ctx, &n, `SELECT min(epoch) FROM epochs WHERE processed = false`); err != nil {
		return 0, false, errors.Wrap(err, "failed to read min unprocessed epoch")
	}
	if !n.Valid {
		return 0, false, nil
	}
	return uint32(n.Int64), true, nil
}

// CountUnprocessedEpochs supports the creator's maxUnprocessedEpochs check.
func (s *Store) CountUnprocessedEpochs(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT count(*) FROM epochs WHERE processed = false`); err != nil {
		return 0, errors.Wrap(err, "failed to count unprocessed epochs")
	}
	return n, nil
}

// MaxEpoch returns the highest known epoch and ok=false when the table is
// empty (used by the creator to pick the next batch's starting point).
func (s *Store) MaxEpoch(ctx context.Context) (epoch uint32, ok bool, err error) {
	var n sql.NullInt64
	if err := s.db.GetContext(ctx, &n, `SELECT max(epoch) FROM epochs`); err != nil {
		return 0, false, errors.Wrap(err, "failed to read max epoch")
	}
	if !n.Valid {
		return 0, false, nil
	}
	return uint32(n.Int64), true, nil
}

// GetEpoch loads one epoch row's full flag set.
func (s *Store) GetEpoch(ctx context.Context, epoch uint32) (models.Epoch, error) {
	var e models.Epoch
	err := s.db.GetContext(ctx, &e, `SELECT * FROM epochs WHERE epoch = $1`, epoch)
	if err != nil {
		return models.Epoch{}, errors.Wrap(err, "failed to read epoch")
	}
	return e, nil
}

// SetEpochFlag flips a single boolean column on an epoch row. column must be
// one of the known flag names; it is never derived from user input.
func (s *Store) SetEpochFlag(ctx context.Context, epoch uint32, column string) error {
	q := `UPDATE epochs SET ` + column + ` = true WHERE epoch = $1`
	_, err := s.db.ExecContext(ctx, q, epoch)
	if err != nil {
		return errors.Wrapf(err, "failed to set epoch flag %s", column)
	}
	return nil
}

// MarkEpochProcessed flips epoch.processed, enforcing its preconditions:
// every other flag must already be true, and every slot in [startSlot,
// endSlot] must already be processed. Callers compute the slot bounds via
// chaintime and flip all_slots_processed before this.
func (s *Store) MarkEpochProcessed(ctx context.Context, epoch uint32, startSlot, endSlot uint32) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var e models.Epoch
		if err := tx.GetContext(ctx, &e, `SELECT * FROM epochs WHERE epoch = $1 FOR UPDATE`, epoch); err != nil {
			return errors.Wrap(err, "failed to read epoch for processed update")
		}
		if !e.AllSet() {
			return errors.Errorf("epoch %d: not all flags set, refusing to mark processed", epoch)
		}
		var allSlotsDone bool
		if err := tx.GetContext(ctx, &allSlotsDone, `
			SELECT NOT EXISTS (
				SELECT 1 FROM slots
				WHERE slot >= $1 AND slot <= $2 AND processed = false
			)`, startSlot, endSlot); err != nil {
			return errors.Wrap(err, "failed to verify slot closure")
		}
		if !allSlotsDone {
			return errors.Errorf("epoch %d: not every slot in [%d,%d] is processed, refusing to mark processed", epoch, startSlot, endSlot)
		}
		if _, err := tx.ExecContext(ctx, `UPDATE epochs SET processed = true WHERE epoch = $1`, epoch); err != nil {
			return errors.Wrap(err, "failed to mark epoch processed")
		}
		return nil
	})
}
