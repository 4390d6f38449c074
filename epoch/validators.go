package epoch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/decstr"
)

// validatorSyncBatchSize bounds how many validator rows a single upsert
// transaction carries during the initial sync.
const validatorSyncBatchSize = 10_000

// SyncValidators seeds the validators table from the full validator set at
// the head state. Run once at startup, before the orchestrators: the
// balances, activation, and attestation-rewards stages all select their
// targets from this table and are no-ops while it is empty. Re-running is
// safe; existing rows are refreshed in place.
func (c *Controller) SyncValidators(ctx context.Context) error {
	raw, err := c.beacon.GetValidators(ctx, beacon.StateHead, nil, nil)
	if err != nil {
		return errors.Wrap(err, "fetch validator set")
	}

	batch := make([]models.Validator, 0, validatorSyncBatchSize)
	total := 0
	for _, v := range raw {
		row, err := parseValidatorRecord(v)
		if err != nil {
			return err
		}
		batch = append(batch, row)
		if len(batch) == validatorSyncBatchSize {
			if err := c.store.UpsertValidators(ctx, batch); err != nil {
				return errors.Wrap(err, "upsert validator batch")
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		if err := c.store.UpsertValidators(ctx, batch); err != nil {
			return errors.Wrap(err, "upsert validator batch")
		}
		total += len(batch)
	}

	if c.log != nil {
		c.log.WithField("validators", total).Info("validator set synced")
	}
	return nil
}

// parseValidatorRecord decodes one validators-endpoint row into its stored
// form.
func parseValidatorRecord(v beacon.Validator) (models.Validator, error) {
	idx, err := decstr.ParseUint64(v.Index)
	if err != nil {
		return models.Validator{}, errors.Wrap(err, "parse validator index")
	}
	status, err := parseValidatorStatus(v.Status)
	if err != nil {
		return models.Validator{}, err
	}
	balance, err := decstr.ParseUint64(v.Balance)
	if err != nil {
		return models.Validator{}, errors.Wrap(err, "parse validator balance")
	}
	effBalance, err := decstr.ParseUint64(v.Validator.EffectiveBalance)
	if err != nil {
		return models.Validator{}, errors.Wrap(err, "parse validator effective balance")
	}
	pubkey, err := decodePubkey(v.Validator.Pubkey)
	if err != nil {
		return models.Validator{}, err
	}
	addr, err := withdrawalAddressFromCredentials(v.Validator.WithdrawalCredentials)
	if err != nil {
		return models.Validator{}, err
	}
	return models.Validator{
		Index:             uint32(idx),
		Status:            status,
		Balance:           balance,
		EffectiveBalance:  effBalance,
		Pubkey:            pubkey,
		WithdrawalAddress: addr,
	}, nil
}
