// Package decstr parses the decimal-string integers the CL/EL APIs use for
// every numeric field. It is the one shared boundary helper epoch and slot
// both need; math/big backs the unsigned parse so values that would
// overflow uint64 are still caught rather than silently wrapped.
package decstr

import (
	"math/big"
	"strconv"

	"github.com/pkg/errors"
)

// ParseUint64 parses a decimal string into a uint64, rejecting values that
// would overflow.
func ParseUint64(s string) (uint64, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return 0, errors.Errorf("invalid decimal integer %q", s)
	}
	if !n.IsUint64() {
		return 0, errors.Errorf("decimal integer %q overflows uint64", s)
	}
	return n.Uint64(), nil
}

// ParseInt64 parses a signed decimal string into an int64. Reward
// components (inactivity penalties in particular) may be negative;
// single-epoch per-component rewards always fit in 64 bits.
func ParseInt64(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid signed decimal integer %q", s)
	}
	return n, nil
}

// ParseBigInt parses a decimal string into an arbitrary-precision integer,
// used where the value must not be truncated before reaching the DB
// boundary.
func ParseBigInt(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, errors.Errorf("invalid decimal integer %q", s)
	}
	return n, nil
}

// ParseUint64Slice parses a slice of decimal strings in order.
func ParseUint64Slice(ss []string) ([]uint64, error) {
	out := make([]uint64, len(ss))
	for i, s := range ss {
		n, err := ParseUint64(s)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// ParseUint32Slice parses a slice of decimal strings into uint32, rejecting
// overflow.
func ParseUint32Slice(ss []string) ([]uint32, error) {
	out := make([]uint32, len(ss))
	for i, s := range ss {
		n, err := ParseUint64(s)
		if err != nil {
			return nil, err
		}
		if n > uint64(^uint32(0)) {
			return nil, errors.Errorf("value %q overflows uint32", s)
		}
		out[i] = uint32(n)
	}
	return out, nil
}
