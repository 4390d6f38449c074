// Package indexererr defines the indexer's error taxonomy as typed,
// wrappable sentinels so callers can branch with errors.Is/errors.As
// instead of matching message strings.
package indexererr

import "github.com/pkg/errors"

// ErrUpstreamUnavailable is returned by api/reliable once both the primary
// and secondary endpoints have exhausted their retries.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// ErrSlotMissed is not a failure: it is a first-class value returned by CL
// endpoints where a 404 means the slot had no block.
var ErrSlotMissed = errors.New("slot missed")

// ErrDBTimeout is returned when a storage transaction exceeds its deadline.
var ErrDBTimeout = errors.New("db timeout")

// ErrDBConflict names a storage transaction aborted by a constraint
// violation. The db package does not produce it: constraint violations
// reach callers as the driver's own error.
var ErrDBConflict = errors.New("db conflict")

// ErrInvalidEpochSequence is returned by CreateEpochs validation: fatal for
// that tick, logged, the creator pauses until the next one.
var ErrInvalidEpochSequence = errors.New("invalid epoch sequence")

// ErrMissingCommitteeSize is returned by the attestations slot branch when a
// referenced slot lacks a committeesCountInSlot entry. It is fatal for that
// slot: the slot is not marked attestationsFetched.
var ErrMissingCommitteeSize = errors.New("missing committee size for referenced slot")

// ErrConfig marks invalid startup configuration; config.ErrConfig is this
// same sentinel, so both packages agree on identity.
var ErrConfig = errors.New("invalid configuration")

// UpstreamUnavailable wraps the last error observed from both endpoints.
func UpstreamUnavailable(lastErr error) error {
	return errors.Wrap(ErrUpstreamUnavailable, lastErr.Error())
}
