package epoch

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db/models"
)

// statusNames maps the CL API's string status values to the stored integer
// codes.
var statusNames = map[string]models.ValidatorStatus{
	"pending_initialized": models.StatusPendingInitialized,
	"pending_queued":       models.StatusPendingQueued,
	"active_ongoing":       models.StatusActiveOngoing,
	"active_exiting":       models.StatusActiveExiting,
	"active_slashed":       models.StatusActiveSlashed,
	"exited_unslashed":     models.StatusExitedUnslashed,
	"exited_slashed":       models.StatusExitedSlashed,
	"withdrawal_possible":  models.StatusWithdrawalPossible,
	"withdrawal_done":      models.StatusWithdrawalDone,
}

func parseValidatorStatus(raw string) (models.ValidatorStatus, error) {
	s, ok := statusNames[raw]
	if !ok {
		return 0, errors.Errorf("unknown validator status %q", raw)
	}
	return s, nil
}

// eth1WithdrawalPrefix marks withdrawal_credentials carrying a 20-byte
// execution-layer address in its last 20 bytes. The other defined prefix
// (BLS, 0x00) has no address to extract.
const eth1WithdrawalPrefix = 0x01

// decodePubkey decodes a validator's hex-encoded 48-byte BLS pubkey.
func decodePubkey(hexPubkey string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexPubkey, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "decode validator pubkey")
	}
	if len(raw) != 48 {
		return nil, errors.Errorf("validator pubkey: expected 48 bytes, got %d", len(raw))
	}
	return raw, nil
}

// withdrawalAddressFromCredentials decodes withdrawal_credentials (a 32-byte
// hex string) into its embedded execution-layer address, or nil when the
// credentials are not yet of the eth1 (0x01-prefixed) kind.
func withdrawalAddressFromCredentials(hexCreds string) ([]byte, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(hexCreds, "0x"))
	if err != nil {
		return nil, errors.Wrap(err, "decode withdrawal_credentials")
	}
	if len(raw) != 32 {
		return nil, errors.Errorf("withdrawal_credentials: expected 32 bytes, got %d", len(raw))
	}
	if raw[0] != eth1WithdrawalPrefix {
		return nil, nil
	}
	return raw[12:], nil
}
