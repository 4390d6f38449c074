package epoch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/decstr"
)

// FetchValidatorActivations re-fetches full validator records for everyone
// still pending_initialized/pending_queued and applies whatever status
// change the CL API now reports.
func (c *Controller) FetchValidatorActivations(ctx context.Context, epoch uint64) error {
	e, err := c.store.GetEpoch(ctx, uint32(epoch))
	if err != nil {
		return errors.Wrap(err, "fetch validator activations: read epoch")
	}
	if e.ValidatorsActivationFetched {
		return nil
	}

	pending, err := c.store.PendingValidatorIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "read pending validator ids")
	}
	if len(pending) == 0 {
		return c.store.ApplyValidatorActivations(ctx, uint32(epoch), nil)
	}

	startSlot := c.bt.StartSlot(epoch)
	validators, err := c.beacon.GetValidators(ctx, beacon.StateAtSlot(startSlot), pending, nil)
	if err != nil {
		return errors.Wrap(err, "fetch validators")
	}

	activations := make([]db.ValidatorActivation, 0, len(validators))
	for _, v := range validators {
		idx, err := decstr.ParseUint64(v.Index)
		if err != nil {
			return errors.Wrap(err, "parse validator index")
		}
		status, err := parseValidatorStatus(v.Status)
		if err != nil {
			return err
		}
		balance, err := decstr.ParseUint64(v.Balance)
		if err != nil {
			return errors.Wrap(err, "parse validator balance")
		}
		effBalance, err := decstr.ParseUint64(v.Validator.EffectiveBalance)
		if err != nil {
			return errors.Wrap(err, "parse validator effective balance")
		}
		addr, err := withdrawalAddressFromCredentials(v.Validator.WithdrawalCredentials)
		if err != nil {
			return err
		}
		activations = append(activations, db.ValidatorActivation{
			Index:             uint32(idx),
			Status:            status,
			WithdrawalAddress: addr,
			EffectiveBalance:  effBalance,
			Balance:           balance,
		})
	}

	return c.store.ApplyValidatorActivations(ctx, uint32(epoch), activations)
}
