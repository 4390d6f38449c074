// Per-slot event logs: withdrawals, deposits, voluntary exits, and the two
// execution-requests-driven tables. Each insert co-commits with its flag
// flip. The withdrawal, deposit, voluntary-exit, er-deposit and
// execution-reward inserts skip rows whose natural key is already stored;
// the er-withdrawal and er-consolidation inserts have no conflict clause.
package db

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
)

// InsertWithdrawals copies execution_payload.withdrawals and flips
// slot.epWithdrawalsFetched.
func (s *Store) InsertWithdrawals(ctx context.Context, slot uint32, rows []models.ValidatorWithdrawal) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO validator_withdrawals (slot, validator_index, withdrawal_index, address, amount_gwei)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (withdrawal_index) DO NOTHING
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare withdrawals insert")
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Slot, r.ValidatorIndex, r.WithdrawalIndex, r.Address, r.AmountGwei); err != nil {
				return errors.Wrap(err, "failed to insert withdrawal row")
			}
		}
		return s.setSlotFlagTx(ctx, tx, slot, "ep_withdrawals_fetched")
	})
}

// InsertDeposits copies body.deposits and flips slot.depositsFetched.
func (s *Store) InsertDeposits(ctx context.Context, slot uint32, rows []models.ValidatorDeposit) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO validator_deposits (slot, deposit_index, pubkey, amount_gwei)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (deposit_index) DO NOTHING
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare deposits insert")
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Slot, r.DepositIndex, r.Pubkey, r.AmountGwei); err != nil {
				return errors.Wrap(err, "failed to insert deposit row")
			}
		}
		return s.setSlotFlagTx(ctx, tx, slot, "deposits_fetched")
	})
}

// InsertVoluntaryExits copies body.voluntary_exits with event='voluntary'
// and flips slot.voluntaryExitsFetched.
func (s *Store) InsertVoluntaryExits(ctx context.Context, slot uint32, validatorIndexes []uint32) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO validator_exits (slot, validator_index, event)
			VALUES ($1, $2, $3)
			ON CONFLICT (slot, validator_index, event) DO NOTHING
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare voluntary exits insert")
		}
		defer stmt.Close()
		for _, v := range validatorIndexes {
			if _, err := stmt.ExecContext(ctx, slot, v, models.EventVoluntary); err != nil {
				return errors.Wrap(err, "failed to insert voluntary exit row")
			}
		}
		return s.setSlotFlagTx(ctx, tx, slot, "voluntary_exits_fetched")
	})
}

// InsertExecutionRequestsWithdrawals copies
// body.execution_requests.withdrawals and flips slot.erWithdrawalsFetched.
func (s *Store) InsertExecutionRequestsWithdrawals(ctx context.Context, slot uint32, rows []models.ValidatorWithdrawalsRequest) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO validator_withdrawals_requests (slot, source_address, validator_pubkey, amount_gwei)
			VALUES ($1, $2, $3, $4)
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare er-withdrawals insert")
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Slot, r.SourceAddress, r.ValidatorPubkey, r.AmountGwei); err != nil {
				return errors.Wrap(err, "failed to insert er-withdrawal row")
			}
		}
		return s.setSlotFlagTx(ctx, tx, slot, "er_withdrawals_fetched")
	})
}

// InsertExecutionRequestsConsolidations copies
// body.execution_requests.consolidations and flips
// slot.erConsolidationsFetched.
func (s *Store) InsertExecutionRequestsConsolidations(ctx context.Context, slot uint32, rows []models.ValidatorConsolidationsRequest) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO validator_consolidations_requests (slot, source_address, source_pubkey, target_pubkey)
			VALUES ($1, $2, $3, $4)
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare er-consolidations insert")
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Slot, r.SourceAddress, r.SourcePubkey, r.TargetPubkey); err != nil {
				return errors.Wrap(err, "failed to insert er-consolidation row")
			}
		}
		return s.setSlotFlagTx(ctx, tx, slot, "er_consolidations_fetched")
	})
}

// InsertExecutionRequestsDeposits copies body.execution_requests.deposits
// and flips slot.erDepositsFetched. Kept separate from InsertDeposits (the
// body.deposits table) because the two are distinct tables keyed
// differently.
func (s *Store) InsertExecutionRequestsDeposits(ctx context.Context, slot uint32, rows []models.ValidatorDeposit) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO er_deposits (slot, deposit_index, pubkey, amount_gwei)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (deposit_index) DO NOTHING
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare er-deposits insert")
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.ExecContext(ctx, r.Slot, r.DepositIndex, r.Pubkey, r.AmountGwei); err != nil {
				return errors.Wrap(err, "failed to insert er-deposit row")
			}
		}
		return s.setSlotFlagTx(ctx, tx, slot, "er_deposits_fetched")
	})
}

// InsertExecutionReward stores one execution-layer block reward and flips
// slot.executionRewardsFetched. amount stays an arbitrary-precision
// decimal end to end; wei amounts overflow int64.
func (s *Store) InsertExecutionReward(ctx context.Context, slot uint32, blockNumber uint64, address []byte, ts time.Time, amount decimal.Decimal) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO execution_rewards (block_number, address, timestamp, amount_wei)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (block_number) DO NOTHING
		`, blockNumber, address, ts, amount.String())
		if err != nil {
			return errors.Wrap(err, "failed to insert execution reward")
		}
		return s.setSlotFlagTx(ctx, tx, slot, "execution_rewards_fetched")
	})
}
