// Package models defines the relational entities the indexer persists.
// Each type mirrors one table; db tags name the Postgres columns used by
// sqlx's struct scanning throughout the db package.
package models

import "time"

// ValidatorStatus is the integer status code stored on a validator row.
type ValidatorStatus int

const (
	StatusPendingInitialized ValidatorStatus = 0
	StatusPendingQueued      ValidatorStatus = 1
	StatusActiveOngoing      ValidatorStatus = 2
	StatusActiveExiting      ValidatorStatus = 3
	StatusActiveSlashed      ValidatorStatus = 4
	StatusExitedUnslashed    ValidatorStatus = 5
	StatusExitedSlashed      ValidatorStatus = 6
	StatusWithdrawalPossible ValidatorStatus = 7
	StatusWithdrawalDone     ValidatorStatus = 8
)

// IsTerminal reports whether a validator in this status is excluded from
// future balance fetches.
func (s ValidatorStatus) IsTerminal() bool {
	return s == StatusExitedUnslashed || s == StatusExitedSlashed || s == StatusWithdrawalDone
}

// IsPending reports whether a validator in this status is a target of the
// validators-activation stage.
func (s ValidatorStatus) IsPending() bool {
	return s == StatusPendingInitialized || s == StatusPendingQueued
}

// Validator is the per-validator identity/lifecycle record.
type Validator struct {
	Index             uint32          `db:"index"`
	Status            ValidatorStatus `db:"status"`
	Balance           uint64          `db:"balance"`
	EffectiveBalance  uint64          `db:"effective_balance"`
	Pubkey            []byte          `db:"pubkey"`
	WithdrawalAddress []byte          `db:"withdrawal_address"`
}

// EpochFlags is the progress bitset carried by every Epoch row.
// Invariant: Processed=true implies every other flag is true.
type EpochFlags struct {
	Processed                      bool `db:"processed"`
	CommitteesFetched              bool `db:"committees_fetched"`
	SyncCommitteesFetched          bool `db:"sync_committees_fetched"`
	ValidatorProposerDutiesFetched bool `db:"validator_proposer_duties_fetched"`
	ValidatorsBalancesFetched      bool `db:"validators_balances_fetched"`
	ValidatorsActivationFetched    bool `db:"validators_activation_fetched"`
	RewardsFetched                 bool `db:"rewards_fetched"`
	AllSlotsProcessed              bool `db:"all_slots_processed"`
}

// AllSet reports whether every constituent flag is true, the precondition
// for setting Processed.
func (f EpochFlags) AllSet() bool {
	return f.CommitteesFetched && f.SyncCommitteesFetched && f.ValidatorProposerDutiesFetched &&
		f.ValidatorsBalancesFetched && f.ValidatorsActivationFetched && f.RewardsFetched && f.AllSlotsProcessed
}

// Epoch is the per-epoch progress row.
type Epoch struct {
	Epoch uint32 `db:"epoch"`
	EpochFlags
}

// SlotFlags is the per-stage progress bitset on a Slot row.
type SlotFlags struct {
	Processed               bool `db:"processed"`
	AttestationsFetched     bool `db:"attestations_fetched"`
	ConsensusRewardsFetched bool `db:"consensus_rewards_fetched"`
	ExecutionRewardsFetched bool `db:"execution_rewards_fetched"`
	SyncRewardsFetched      bool `db:"sync_rewards_fetched"`
	EpWithdrawalsFetched    bool `db:"ep_withdrawals_fetched"`
	DepositsFetched         bool `db:"deposits_fetched"`
	VoluntaryExitsFetched   bool `db:"voluntary_exits_fetched"`
	ErDepositsFetched       bool `db:"er_deposits_fetched"`
	ErWithdrawalsFetched    bool `db:"er_withdrawals_fetched"`
	ErConsolidationsFetched bool `db:"er_consolidations_fetched"`
}

// AllSet reports whether every per-stage flag is true, the precondition
// for setting Processed.
func (f SlotFlags) AllSet() bool {
	return f.AttestationsFetched && f.ConsensusRewardsFetched && f.ExecutionRewardsFetched &&
		f.SyncRewardsFetched && f.EpWithdrawalsFetched && f.DepositsFetched &&
		f.VoluntaryExitsFetched && f.ErDepositsFetched && f.ErWithdrawalsFetched && f.ErConsolidationsFetched
}

// Slot is the per-slot progress row. CommitteesCountInSlot is an ordered
// list where position = committee index, value = committee size; it is
// persisted as JSONB.
type Slot struct {
	Slot                  uint32  `db:"slot"`
	ProposerIndex         *uint32 `db:"proposer_index"`
	ConsensusReward       *int64  `db:"consensus_reward"`
	ExecutionReward       *int64  `db:"execution_reward"`
	CommitteesCountInSlot []int   `db:"committees_count_in_slot"`
	SlotFlags
}

// Committee is one (slot, committeeIndex, aggregationBitsIndex) seat.
type Committee struct {
	Slot                 uint32 `db:"slot"`
	CommitteeIndex       uint16 `db:"committee_index"`
	AggregationBitsIndex uint16 `db:"aggregation_bits_index"`
	ValidatorIndex       uint32 `db:"validator_index"`
	AttestationDelay     *int16 `db:"attestation_delay"`
}

// SyncCommittee spans one sync-committee period of epochs. Validators is
// the flat 512-entry list; ValidatorAggregates holds the four 128-entry
// sub-aggregates, both persisted as JSONB.
type SyncCommittee struct {
	FromEpoch           uint32     `db:"from_epoch"`
	ToEpoch             uint32     `db:"to_epoch"`
	Validators          []uint32   `db:"validators"`
	ValidatorAggregates [][]uint32 `db:"validator_aggregates"`
}

// EpochRewards is the per-(epoch, validator) attestation-reward breakdown.
type EpochRewards struct {
	Epoch            uint32 `db:"epoch"`
	ValidatorIndex   uint32 `db:"validator_index"`
	Head             int64  `db:"head"`
	Target           int64  `db:"target"`
	Source           int64  `db:"source"`
	Inactivity       int64  `db:"inactivity"`
	MissedHead       int64  `db:"missed_head"`
	MissedTarget     int64  `db:"missed_target"`
	MissedSource     int64  `db:"missed_source"`
	MissedInactivity int64  `db:"missed_inactivity"`
}

// ClRewards returns head+target+source+inactivity, the value folded into
// hourly_validator_stats.cl_rewards.
func (r EpochRewards) ClRewards() int64 {
	return r.Head + r.Target + r.Source + r.Inactivity
}

// ClMissedRewards returns the sum of the four missed components.
func (r EpochRewards) ClMissedRewards() int64 {
	return r.MissedHead + r.MissedTarget + r.MissedSource + r.MissedInactivity
}

// SyncCommitteeRewards is the per-(slot, validator) sync-committee reward
// row.
type SyncCommitteeRewards struct {
	Slot                uint32 `db:"slot"`
	ValidatorIndex      uint32 `db:"validator_index"`
	SyncCommitteeReward int64  `db:"sync_committee_reward"`
}

// HourlyValidatorStats is the derived per-hour roll-up. It is only ever
// written via an additive upsert.
type HourlyValidatorStats struct {
	DatetimeHourUTC         time.Time `db:"datetime_hour_utc"`
	ValidatorIndex          uint32    `db:"validator_index"`
	ClRewards               int64     `db:"cl_rewards"`
	ClMissedRewards         int64     `db:"cl_missed_rewards"`
	MissedAttestationsCount int16     `db:"missed_attestations_count"`
}

// ValidatorWithdrawal is one entry of validator_withdrawals.
type ValidatorWithdrawal struct {
	Slot            uint32 `db:"slot"`
	ValidatorIndex  uint32 `db:"validator_index"`
	WithdrawalIndex uint64 `db:"withdrawal_index"`
	Address         []byte `db:"address"`
	AmountGwei      uint64 `db:"amount_gwei"`
}

// ValidatorDeposit is one entry of validator_deposits.
type ValidatorDeposit struct {
	Slot         uint32 `db:"slot"`
	DepositIndex uint32 `db:"deposit_index"`
	Pubkey       []byte `db:"pubkey"`
	AmountGwei   uint64 `db:"amount_gwei"`
}

// ExitEvent distinguishes the voluntary_exits and execution-requests-driven
// exit-like events, all stored in ValidatorExits with an `event` column.
type ExitEvent string

const (
	EventVoluntary ExitEvent = "voluntary"
)

// ValidatorExit is one entry of validator_exits.
type ValidatorExit struct {
	Slot           uint32    `db:"slot"`
	ValidatorIndex uint32    `db:"validator_index"`
	Event          ExitEvent `db:"event"`
}

// ValidatorWithdrawalsRequest is one entry of
// validator_withdrawals_requests, sourced from
// body.execution_requests.withdrawals.
type ValidatorWithdrawalsRequest struct {
	Slot            uint32 `db:"slot"`
	SourceAddress   []byte `db:"source_address"`
	ValidatorPubkey []byte `db:"validator_pubkey"`
	AmountGwei      uint64 `db:"amount_gwei"`
}

// ValidatorConsolidationsRequest is one entry of
// validator_consolidations_requests, sourced from
// body.execution_requests.consolidations.
type ValidatorConsolidationsRequest struct {
	Slot          uint32 `db:"slot"`
	SourceAddress []byte `db:"source_address"`
	SourcePubkey  []byte `db:"source_pubkey"`
	TargetPubkey  []byte `db:"target_pubkey"`
}

// ExecutionRewards is keyed by blockNumber. Amount is stored as a
// numeric/decimal column; shopspring/decimal is the in-process type.
type ExecutionRewards struct {
	BlockNumber uint64    `db:"block_number"`
	Address     []byte    `db:"address"`
	Timestamp   time.Time `db:"timestamp"`
	AmountWei   string    `db:"amount_wei"` // decimal.Decimal.String(), numeric column
}
