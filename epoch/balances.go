package epoch

import (
	"context"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/decstr"
)

// FetchValidatorBalances fetches balances for every non-terminal validator
// as of the epoch's start slot, chunked to NonTerminalValidatorIDs' batch
// cap, and upserts them.
func (c *Controller) FetchValidatorBalances(ctx context.Context, epoch uint64) error {
	e, err := c.store.GetEpoch(ctx, uint32(epoch))
	if err != nil {
		return errors.Wrap(err, "fetch validator balances: read epoch")
	}
	if e.ValidatorsBalancesFetched {
		return nil
	}

	startSlot := c.bt.StartSlot(epoch)
	chunks, err := c.store.NonTerminalValidatorIDs(ctx)
	if err != nil {
		return errors.Wrap(err, "read non-terminal validator ids")
	}

	for _, ids := range chunks {
		raw, err := c.beacon.GetValidatorsBalances(ctx, beacon.StateAtSlot(startSlot), ids)
		if err != nil {
			return errors.Wrap(err, "fetch validator balances")
		}
		balances := make([]db.ValidatorBalance, 0, len(raw))
		for _, r := range raw {
			idx, err := decstr.ParseUint64(r.Index)
			if err != nil {
				return errors.Wrap(err, "parse validator index")
			}
			bal, err := decstr.ParseBigInt(r.Balance)
			if err != nil {
				return errors.Wrap(err, "parse validator balance")
			}
			balances = append(balances, db.ValidatorBalance{Index: uint32(idx), Balance: bal})
		}
		if err := c.store.UpsertValidatorBalances(ctx, balances); err != nil {
			return errors.Wrap(err, "upsert validator balances")
		}
	}

	// The flag commits only after the last chunk has: a crash mid-stage
	// leaves it false and the whole stage re-runs on resume.
	return c.store.SetEpochFlag(ctx, uint32(epoch), "validators_balances_fetched")
}
