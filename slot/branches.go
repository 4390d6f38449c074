package slot

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/decstr"
)

// hourOf buckets a slot's start time down to its UTC hour, the key used by
// every hourly fold in this package.
func (c *Controller) hourOf(slot uint64) time.Time {
	return c.bt.TimeOf(slot).UTC().Truncate(time.Hour)
}

// FetchConsensusRewards records slot.proposerIndex, then sets
// slot.consensusReward, folds the reward into the hourly bucket, and flips
// the flag in one transaction. A missed slot just flips the flag.
func (c *Controller) FetchConsensusRewards(ctx context.Context, slot uint64) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch consensus rewards: read slot")
	}
	if row.ConsensusRewardsFetched {
		return nil
	}

	rewards, err := c.beacon.GetBlockRewards(ctx, slot)
	if errors.Is(err, indexererr.ErrSlotMissed) {
		return c.store.SetSlotFlag(ctx, uint32(slot), "consensus_rewards_fetched")
	}
	if err != nil {
		return errors.Wrap(err, "fetch block rewards")
	}

	proposerIndex, err := decstr.ParseUint64(rewards.ProposerIndex)
	if err != nil {
		return errors.Wrap(err, "parse proposer index")
	}
	total, err := decstr.ParseInt64(rewards.Total)
	if err != nil {
		return errors.Wrap(err, "parse block reward total")
	}
	if err := c.store.SetSlotProposer(ctx, uint32(slot), uint32(proposerIndex)); err != nil {
		return errors.Wrap(err, "set slot proposer")
	}

	hour := c.hourOf(slot)
	return c.store.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := c.store.SetSlotConsensusReward(ctx, tx, uint32(slot), total); err != nil {
			return err
		}
		return c.store.FoldConsensusReward(ctx, tx, hour, uint32(proposerIndex), total)
	})
}

// FetchSyncCommitteeRewards looks up the sync committee validators for the
// slot's epoch, fetches per-validator rewards, and bulk-inserts them. The
// storage layer deliberately keeps these out of hourly_validator_stats. A
// missed slot just flips the flag.
func (c *Controller) FetchSyncCommitteeRewards(ctx context.Context, slot uint64) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch sync committee rewards: read slot")
	}
	if row.SyncRewardsFetched {
		return nil
	}

	epoch := c.bt.EpochOf(slot)
	ids, err := c.store.SyncCommitteeValidators(ctx, uint32(epoch))
	if err != nil {
		return errors.Wrap(err, "read sync committee validators")
	}

	raw, err := c.beacon.GetSyncCommitteeRewards(ctx, slot, ids)
	if errors.Is(err, indexererr.ErrSlotMissed) {
		return c.store.SetSlotFlag(ctx, uint32(slot), "sync_rewards_fetched")
	}
	if err != nil {
		return errors.Wrap(err, "fetch sync committee rewards")
	}

	rows := make([]models.SyncCommitteeRewards, 0, len(raw))
	for _, r := range raw {
		idx, err := decstr.ParseUint64(r.ValidatorIndex)
		if err != nil {
			return errors.Wrap(err, "parse sync committee reward validator index")
		}
		reward, err := decstr.ParseInt64(r.Reward)
		if err != nil {
			return errors.Wrap(err, "parse sync committee reward amount")
		}
		rows = append(rows, models.SyncCommitteeRewards{Slot: uint32(slot), ValidatorIndex: uint32(idx), SyncCommitteeReward: reward})
	}

	return c.store.InsertSyncCommitteeRewards(ctx, uint32(slot), rows)
}

// FetchExecutionRewards reads execution_payload.block_number off the
// already-fetched block and looks up the miner reward via the
// execution-layer client.
func (c *Controller) FetchExecutionRewards(ctx context.Context, slot uint64, payload *beacon.ExecutionPayload) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch execution rewards: read slot")
	}
	if row.ExecutionRewardsFetched {
		return nil
	}

	if payload == nil {
		// Pre-Bellatrix slots carry no execution payload; nothing to fetch.
		return c.store.SetSlotFlag(ctx, uint32(slot), "execution_rewards_fetched")
	}
	blockNumber, err := decstr.ParseUint64(payload.BlockNumber)
	if err != nil {
		return errors.Wrap(err, "parse execution payload block number")
	}

	reward, err := c.execution.GetBlock(ctx, blockNumber)
	if err != nil {
		return errors.Wrap(err, "fetch execution block reward")
	}

	address, err := decodeHex(reward.Address)
	if err != nil {
		return errors.Wrap(err, "decode execution reward address")
	}

	return c.store.InsertExecutionReward(ctx, uint32(slot), blockNumber, address, reward.Timestamp, reward.Amount)
}

// FetchWithdrawals copies execution_payload.withdrawals.
func (c *Controller) FetchWithdrawals(ctx context.Context, slot uint64, withdrawals []beacon.WithdrawalRequest) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch withdrawals: read slot")
	}
	if row.EpWithdrawalsFetched {
		return nil
	}

	rows := make([]models.ValidatorWithdrawal, 0, len(withdrawals))
	for _, w := range withdrawals {
		idx, err := decstr.ParseUint64(w.Index)
		if err != nil {
			return errors.Wrap(err, "parse withdrawal index")
		}
		vIdx, err := decstr.ParseUint64(w.ValidatorIndex)
		if err != nil {
			return errors.Wrap(err, "parse withdrawal validator index")
		}
		address, err := decodeHex(w.Address)
		if err != nil {
			return errors.Wrap(err, "decode withdrawal address")
		}
		amount, err := decstr.ParseUint64(w.Amount)
		if err != nil {
			return errors.Wrap(err, "parse withdrawal amount")
		}
		rows = append(rows, models.ValidatorWithdrawal{
			Slot: uint32(slot), ValidatorIndex: uint32(vIdx), WithdrawalIndex: idx,
			Address: address, AmountGwei: amount,
		})
	}

	return c.store.InsertWithdrawals(ctx, uint32(slot), rows)
}

// FetchDeposits copies body.deposits.
func (c *Controller) FetchDeposits(ctx context.Context, slot uint64, deposits []beacon.Deposit) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch deposits: read slot")
	}
	if row.DepositsFetched {
		return nil
	}

	rows := make([]models.ValidatorDeposit, 0, len(deposits))
	for i, d := range deposits {
		pubkey, err := decodeHex(d.Data.Pubkey)
		if err != nil {
			return errors.Wrap(err, "decode deposit pubkey")
		}
		amount, err := decstr.ParseUint64(d.Data.Amount)
		if err != nil {
			return errors.Wrap(err, "parse deposit amount")
		}
		// The beacon API does not expose a global deposit index per block
		// body entry; slot + in-block position is the natural key here.
		rows = append(rows, models.ValidatorDeposit{Slot: uint32(slot), DepositIndex: uint32(slot)*1_000_000 + uint32(i), Pubkey: pubkey, AmountGwei: amount})
	}

	return c.store.InsertDeposits(ctx, uint32(slot), rows)
}

// FetchVoluntaryExits copies body.voluntary_exits with event='voluntary'.
func (c *Controller) FetchVoluntaryExits(ctx context.Context, slot uint64, exits []beacon.VoluntaryExit) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch voluntary exits: read slot")
	}
	if row.VoluntaryExitsFetched {
		return nil
	}

	ids := make([]uint32, 0, len(exits))
	for _, e := range exits {
		idx, err := decstr.ParseUint64(e.Message.ValidatorIndex)
		if err != nil {
			return errors.Wrap(err, "parse voluntary exit validator index")
		}
		ids = append(ids, uint32(idx))
	}

	return c.store.InsertVoluntaryExits(ctx, uint32(slot), ids)
}

// FetchExecutionRequestsDeposits copies body.execution_requests.deposits.
func (c *Controller) FetchExecutionRequestsDeposits(ctx context.Context, slot uint64, deposits []beacon.ExecutionRequestDeposit) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch er-deposits: read slot")
	}
	if row.ErDepositsFetched {
		return nil
	}

	rows := make([]models.ValidatorDeposit, 0, len(deposits))
	for _, d := range deposits {
		idx, err := decstr.ParseUint64(d.Index)
		if err != nil {
			return errors.Wrap(err, "parse er-deposit index")
		}
		pubkey, err := decodeHex(d.Pubkey)
		if err != nil {
			return errors.Wrap(err, "decode er-deposit pubkey")
		}
		amount, err := decstr.ParseUint64(d.Amount)
		if err != nil {
			return errors.Wrap(err, "parse er-deposit amount")
		}
		rows = append(rows, models.ValidatorDeposit{Slot: uint32(slot), DepositIndex: uint32(idx), Pubkey: pubkey, AmountGwei: amount})
	}

	return c.store.InsertExecutionRequestsDeposits(ctx, uint32(slot), rows)
}

// FetchExecutionRequestsWithdrawals copies
// body.execution_requests.withdrawals.
func (c *Controller) FetchExecutionRequestsWithdrawals(ctx context.Context, slot uint64, withdrawals []beacon.ExecutionRequestWithdrawal) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch er-withdrawals: read slot")
	}
	if row.ErWithdrawalsFetched {
		return nil
	}

	rows := make([]models.ValidatorWithdrawalsRequest, 0, len(withdrawals))
	for _, w := range withdrawals {
		source, err := decodeHex(w.SourceAddress)
		if err != nil {
			return errors.Wrap(err, "decode er-withdrawal source address")
		}
		pubkey, err := decodeHex(w.ValidatorPubkey)
		if err != nil {
			return errors.Wrap(err, "decode er-withdrawal validator pubkey")
		}
		amount, err := decstr.ParseUint64(w.Amount)
		if err != nil {
			return errors.Wrap(err, "parse er-withdrawal amount")
		}
		rows = append(rows, models.ValidatorWithdrawalsRequest{Slot: uint32(slot), SourceAddress: source, ValidatorPubkey: pubkey, AmountGwei: amount})
	}

	return c.store.InsertExecutionRequestsWithdrawals(ctx, uint32(slot), rows)
}

// FetchExecutionRequestsConsolidations copies
// body.execution_requests.consolidations.
func (c *Controller) FetchExecutionRequestsConsolidations(ctx context.Context, slot uint64, consolidations []beacon.ExecutionRequestConsolidation) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch er-consolidations: read slot")
	}
	if row.ErConsolidationsFetched {
		return nil
	}

	rows := make([]models.ValidatorConsolidationsRequest, 0, len(consolidations))
	for _, r := range consolidations {
		source, err := decodeHex(r.SourceAddress)
		if err != nil {
			return errors.Wrap(err, "decode er-consolidation source address")
		}
		sourcePubkey, err := decodeHex(r.SourcePubkey)
		if err != nil {
			return errors.Wrap(err, "decode er-consolidation source pubkey")
		}
		targetPubkey, err := decodeHex(r.TargetPubkey)
		if err != nil {
			return errors.Wrap(err, "decode er-consolidation target pubkey")
		}
		rows = append(rows, models.ValidatorConsolidationsRequest{Slot: uint32(slot), SourceAddress: source, SourcePubkey: sourcePubkey, TargetPubkey: targetPubkey})
	}

	return c.store.InsertExecutionRequestsConsolidations(ctx, uint32(slot), rows)
}
