package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
)

// BulkLoadCommittees loads freshly-fetched committee rows through a
// session-local temp table, then flips epoch.committeesFetched in the same
// transaction. committeesCountInSlot is written first via
// UpsertSlotCommitteesCount.
func (s *Store) BulkLoadCommittees(ctx context.Context, epoch uint32, counts map[uint32][]int, rows []models.Committee) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.UpsertSlotCommitteesCount(ctx, tx, counts); err != nil {
			return err
		}
		if err := bulkLoadCommitteeRows(ctx, tx, rows); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE epochs SET committees_fetched = true WHERE epoch = $1`, epoch); err != nil {
			return errors.Wrap(err, "failed to flip committeesFetched")
		}
		return nil
	})
}

func bulkLoadCommitteeRows(ctx context.Context, tx *sqlx.Tx, rows []models.Committee) error {
	if len(rows) == 0 {
		return nil
	}
	if _, err := tx.ExecContext(ctx, `
		CREATE TEMP TABLE tmp_committees (
			slot bigint, committee_index int, aggregation_bits_index int,
			validator_index bigint
		) ON COMMIT DROP
	`); err != nil {
		return errors.Wrap(err, "failed to create tmp_committees")
	}

	const cols = 4
	for _, batch := range batchCommittees(rows, maxBindVars/cols) {
		query, args := buildCommitteeInsert(batch)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return errors.Wrap(err, "failed to stream committee rows into tmp_committees")
		}
	}

	// duplicates indicate a replay bug and must fail loudly: the target's
	// primary key enforces that on the INSERT ... SELECT below.
	_, err := tx.ExecContext(ctx, `
		INSERT INTO committees (slot, committee_index, aggregation_bits_index, validator_index, attestation_delay)
		SELECT slot, committee_index, aggregation_bits_index, validator_index, NULL
		FROM tmp_committees
	`)
	if err != nil {
		return errors.Wrap(err, "failed to bulk-insert committees")
	}
	return nil
}

func batchCommittees(rows []models.Committee, n int) [][]models.Committee {
	if n <= 0 {
		n = len(rows)
	}
	var out [][]models.Committee
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

func buildCommitteeInsert(rows []models.Committee) (string, []interface{}) {
	query := "INSERT INTO tmp_committees (slot, committee_index, aggregation_bits_index, validator_index) VALUES "
	args := make([]interface{}, 0, len(rows)*4)
	for i, r := range rows {
		if i > 0 {
			query += ","
		}
		base := i * 4
		query += fmt.Sprintf("($%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4)
		args = append(args, r.Slot, r.CommitteeIndex, r.AggregationBitsIndex, r.ValidatorIndex)
	}
	return query, args
}

// AttestationDelayUpdate is one deduplicated (slot, index, bit) -> delay
// pair, already reduced to the minimum observed delay.
type AttestationDelayUpdate struct {
	Slot                 uint32
	CommitteeIndex       uint16
	AggregationBitsIndex uint16
	Delay                int16
}

// UpdateAttestationDelays applies the monotonic-floor update: the stored
// delay is only ever lowered, never raised.
func (s *Store) UpdateAttestationDelays(ctx context.Context, updates []AttestationDelayUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			UPDATE committees
			SET attestation_delay = $4
			WHERE slot = $1 AND committee_index = $2 AND aggregation_bits_index = $3
			  AND (attestation_delay IS NULL OR attestation_delay > $4)
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare attestation delay update")
		}
		defer stmt.Close()

		for _, u := range updates {
			if _, err := stmt.ExecContext(ctx, u.Slot, u.CommitteeIndex, u.AggregationBitsIndex, u.Delay); err != nil {
				return errors.Wrap(err, "failed to apply attestation delay update")
			}
		}
		return nil
	})
}
