package beacon

// Committee is one row of the states/{state}/committees response: the set
// of validator indices assigned to attest at (slot, index) within an epoch.
type Committee struct {
	Index      string   `json:"index"`
	Slot       string   `json:"slot"`
	Validators []string `json:"validators"`
}

// SyncCommittee is the states/{state}/sync_committees response.
type SyncCommittee struct {
	Validators          []string   `json:"validators"`
	ValidatorAggregates [][]string `json:"validator_aggregates"`
}

// Attestation is one attestation included in a block body, carrying the
// committee bits needed to compute participation.
type Attestation struct {
	AggregationBits string `json:"aggregation_bits"`
	CommitteeBits   string `json:"committee_bits"`
	Data            struct {
		Slot            string `json:"slot"`
		Index           string `json:"index"`
		BeaconBlockRoot string `json:"beacon_block_root"`
	} `json:"data"`
}

// Deposit is a beacon-chain (CL) deposit operation embedded in a block body.
type Deposit struct {
	Data struct {
		Pubkey                string `json:"pubkey"`
		WithdrawalCredentials string `json:"withdrawal_credentials"`
		Amount                string `json:"amount"`
		Signature             string `json:"signature"`
	} `json:"data"`
}

// VoluntaryExit is a signed voluntary-exit operation embedded in a block
// body.
type VoluntaryExit struct {
	Message struct {
		Epoch          string `json:"epoch"`
		ValidatorIndex string `json:"validator_index"`
	} `json:"message"`
}

// WithdrawalRequest is an execution-layer withdrawal embedded in a
// post-Capella execution payload.
type WithdrawalRequest struct {
	Index          string `json:"index"`
	ValidatorIndex string `json:"validator_index"`
	Address        string `json:"address"`
	Amount         string `json:"amount"`
}

// ExecutionRequests holds the post-Electra execution-layer-triggered
// operations (deposits, withdrawals, consolidations) embedded directly in
// the block body.
type ExecutionRequests struct {
	Deposits       []ExecutionRequestDeposit       `json:"deposits"`
	Withdrawals    []ExecutionRequestWithdrawal    `json:"withdrawals"`
	Consolidations []ExecutionRequestConsolidation `json:"consolidations"`
}

type ExecutionRequestDeposit struct {
	Pubkey                string `json:"pubkey"`
	WithdrawalCredentials string `json:"withdrawal_credentials"`
	Amount                string `json:"amount"`
	Signature             string `json:"signature"`
	Index                 string `json:"index"`
}

type ExecutionRequestWithdrawal struct {
	SourceAddress   string `json:"source_address"`
	ValidatorPubkey string `json:"validator_pubkey"`
	Amount          string `json:"amount"`
}

type ExecutionRequestConsolidation struct {
	SourceAddress string `json:"source_address"`
	SourcePubkey  string `json:"source_pubkey"`
	TargetPubkey  string `json:"target_pubkey"`
}

// ExecutionPayload is the subset of the execution payload embedded in a
// block body that the indexer cares about.
type ExecutionPayload struct {
	BlockNumber  string              `json:"block_number"`
	BlockHash    string              `json:"block_hash"`
	Withdrawals  []WithdrawalRequest `json:"withdrawals"`
	FeeRecipient string              `json:"fee_recipient"`
}

// BlockBody is the subset of a beacon block's body the slot branches read.
type BlockBody struct {
	Attestations      []Attestation      `json:"attestations"`
	Deposits          []Deposit          `json:"deposits"`
	VoluntaryExits    []VoluntaryExit    `json:"voluntary_exits"`
	ExecutionPayload  *ExecutionPayload  `json:"execution_payload"`
	ExecutionRequests *ExecutionRequests `json:"execution_requests"`
}

// BlockMessage is the signed_block.message subset the indexer reads.
type BlockMessage struct {
	Slot          string    `json:"slot"`
	ProposerIndex string    `json:"proposer_index"`
	ParentRoot    string    `json:"parent_root"`
	StateRoot     string    `json:"state_root"`
	Body          BlockBody `json:"body"`
}

// Block is the v2/beacon/blocks/{slot} response: an envelope carrying the
// block message. Other envelope fields are not decoded.
type Block struct {
	Message BlockMessage `json:"message"`
}

// IdealReward is one row of attestation-rewards ideal_rewards, keyed by
// effective balance.
type IdealReward struct {
	EffectiveBalance string `json:"effective_balance"`
	Head             string `json:"head"`
	Target           string `json:"target"`
	Source           string `json:"source"`
	InactivityPenalty string `json:"inactivity"`
}

// TotalReward is one row of attestation-rewards total_rewards, keyed by
// validator index.
type TotalReward struct {
	ValidatorIndex    string `json:"validator_index"`
	Head              string `json:"head"`
	Target            string `json:"target"`
	Source            string `json:"source"`
	InactivityPenalty string `json:"inactivity"`
}

// AttestationRewards is the rewards/attestations/{epoch} response.
type AttestationRewards struct {
	IdealRewards []IdealReward `json:"ideal_rewards"`
	TotalRewards []TotalReward `json:"total_rewards"`
}

// BlockRewards is the rewards/blocks/{slot} response.
type BlockRewards struct {
	ProposerIndex     string `json:"proposer_index"`
	Total             string `json:"total"`
	Attestations      string `json:"attestations"`
	SyncAggregate     string `json:"sync_aggregate"`
	ProposerSlashings string `json:"proposer_slashings"`
	AttesterSlashings string `json:"attester_slashings"`
}

// SyncCommitteeReward is one row of the rewards/sync_committee/{slot}
// response.
type SyncCommitteeReward struct {
	ValidatorIndex string `json:"validator_index"`
	Reward         string `json:"reward"`
}

// ValidatorInfo is the embedded validator object within a validators
// response row.
type ValidatorInfo struct {
	Pubkey                     string `json:"pubkey"`
	WithdrawalCredentials      string `json:"withdrawal_credentials"`
	EffectiveBalance           string `json:"effective_balance"`
	Slashed                    bool   `json:"slashed"`
	ActivationEligibilityEpoch string `json:"activation_eligibility_epoch"`
	ActivationEpoch            string `json:"activation_epoch"`
	ExitEpoch                  string `json:"exit_epoch"`
	WithdrawableEpoch          string `json:"withdrawable_epoch"`
}

// Validator is one row of the states/{state}/validators response: status
// enum plus balance and the full validator record.
type Validator struct {
	Index     string        `json:"index"`
	Balance   string        `json:"balance"`
	Status    string        `json:"status"`
	Validator ValidatorInfo `json:"validator"`
}

// ValidatorBalance is one row of the states/{state}/validator_balances
// response.
type ValidatorBalance struct {
	Index   string `json:"index"`
	Balance string `json:"balance"`
}

// ProposerDuty is one row of the validator/duties/proposer/{epoch}
// response.
type ProposerDuty struct {
	Pubkey         string `json:"pubkey"`
	ValidatorIndex string `json:"validator_index"`
	Slot           string `json:"slot"`
}
