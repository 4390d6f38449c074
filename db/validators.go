package db

import (
	"context"
	"math/big"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
)

// maxBalanceIDsPerCall caps ids sent per validator_balances call.
const maxBalanceIDsPerCall = 1_000_000

// NonTerminalValidatorIDs returns every validator index whose status is not
// one of the three terminal statuses, chunked to respect
// maxBalanceIDsPerCall.
func (s *Store) NonTerminalValidatorIDs(ctx context.Context) ([][]uint32, error) {
	var ids []uint32
	err := s.db.SelectContext(ctx, &ids, `
		SELECT index FROM validators
		WHERE status NOT IN (`+statusCodes(models.StatusExitedUnslashed, models.StatusExitedSlashed, models.StatusWithdrawalDone)+`)
		ORDER BY index
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read non-terminal validator ids")
	}
	return chunk(ids, maxBalanceIDsPerCall), nil
}

// PendingValidatorIDs returns validators currently pending_initialized or
// pending_queued.
func (s *Store) PendingValidatorIDs(ctx context.Context) ([]uint32, error) {
	var ids []uint32
	err := s.db.SelectContext(ctx, &ids, `
		SELECT index FROM validators
		WHERE status IN (`+statusCodes(models.StatusPendingInitialized, models.StatusPendingQueued)+`)
		ORDER BY index
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read pending validator ids")
	}
	return ids, nil
}

func statusCodes(codes ...models.ValidatorStatus) string {
	out := ""
	for i, c := range codes {
		if i > 0 {
			out += ","
		}
		out += big.NewInt(int64(c)).String()
	}
	return out
}

// UpsertValidators seeds or refreshes full validator records, the initial
// sync that gives the balances, activation, and attestation-rewards stages
// a validator set to operate on. Existing rows are refreshed in place.
func (s *Store) UpsertValidators(ctx context.Context, validators []models.Validator) error {
	if len(validators) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO validators (index, status, balance, effective_balance, pubkey, withdrawal_address)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (index) DO UPDATE SET
				status = EXCLUDED.status,
				balance = EXCLUDED.balance,
				effective_balance = EXCLUDED.effective_balance,
				withdrawal_address = EXCLUDED.withdrawal_address
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare validator upsert")
		}
		defer stmt.Close()
		for _, v := range validators {
			if _, err := stmt.ExecContext(ctx, v.Index, v.Status, v.Balance, v.EffectiveBalance, v.Pubkey, v.WithdrawalAddress); err != nil {
				return errors.Wrap(err, "failed to upsert validator")
			}
		}
		return nil
	})
}

// ValidatorBalance is one decoded balance row. The CL API transports
// balances as decimal strings that may exceed 64 bits when summed, hence
// the *big.Int at this boundary.
type ValidatorBalance struct {
	Index   uint32
	Balance *big.Int
}

// UpsertValidatorBalances writes one chunk of fresh balances. The epoch's
// validatorsBalancesFetched flag is deliberately NOT flipped here: the
// balances stage may span several chunks, and the flag must only commit
// once the last of them has (callers flip it via SetEpochFlag afterwards).
func (s *Store) UpsertValidatorBalances(ctx context.Context, balances []ValidatorBalance) error {
	if len(balances) == 0 {
		return nil
	}
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			INSERT INTO validators (index, balance) VALUES ($1, $2)
			ON CONFLICT (index) DO UPDATE SET balance = EXCLUDED.balance
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare balance upsert")
		}
		defer stmt.Close()
		for _, b := range balances {
			if !b.Balance.IsUint64() {
				return errors.Errorf("validator %d: balance %s overflows u64", b.Index, b.Balance.String())
			}
			if _, err := stmt.ExecContext(ctx, b.Index, b.Balance.Uint64()); err != nil {
				return errors.Wrap(err, "failed to upsert validator balance")
			}
		}
		return nil
	})
}

// ValidatorActivation is the subset of a full validator record relevant to
// the activation stage.
type ValidatorActivation struct {
	Index             uint32
	Status            models.ValidatorStatus
	WithdrawalAddress []byte
	EffectiveBalance  uint64
	Balance           uint64
}

// ApplyValidatorActivations writes new statuses for previously-pending
// validators and flips epoch.validatorsActivationFetched.
func (s *Store) ApplyValidatorActivations(ctx context.Context, epoch uint32, activations []ValidatorActivation) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		stmt, err := tx.PreparexContext(ctx, `
			UPDATE validators
			SET status = $2, withdrawal_address = $3, effective_balance = $4, balance = $5
			WHERE index = $1
		`)
		if err != nil {
			return errors.Wrap(err, "failed to prepare activation update")
		}
		defer stmt.Close()
		for _, a := range activations {
			if _, err := stmt.ExecContext(ctx, a.Index, a.Status, a.WithdrawalAddress, a.EffectiveBalance, a.Balance); err != nil {
				return errors.Wrap(err, "failed to apply validator activation")
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE epochs SET validators_activation_fetched = true WHERE epoch = $1`, epoch); err != nil {
			return errors.Wrap(err, "failed to flip validatorsActivationFetched")
		}
		return nil
	})
}

// ValidatorEffectiveBalancesByIndex loads effective_balance (not balance)
// for a set of validators, the bucketing key for the ideal-rewards lookup
// in the attestation-rewards stage.
func (s *Store) ValidatorEffectiveBalancesByIndex(ctx context.Context, ids []uint32) (map[uint32]uint64, error) {
	if len(ids) == 0 {
		return map[uint32]uint64{}, nil
	}
	type row struct {
		Index            uint32 `db:"index"`
		EffectiveBalance uint64 `db:"effective_balance"`
	}
	var rows []row
	query, args, err := sqlx.In(`SELECT index, effective_balance FROM validators WHERE index IN (?)`, ids)
	if err != nil {
		return nil, errors.Wrap(err, "failed to build effective balances query")
	}
	query = s.db.Rebind(query)
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "failed to read validator effective balances")
	}
	out := make(map[uint32]uint64, len(rows))
	for _, r := range rows {
		out[r.Index] = r.EffectiveBalance
	}
	return out, nil
}
