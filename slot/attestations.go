package slot

import (
	"context"
	"encoding/hex"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/db"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/indexererr"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/internal/decstr"
	"github.com/NodeSentinel/beacon-validator-monitor-sub000/ssz"
)

// maxCommitteesPerSlot bounds committee_bits, a fixed-length SSZ bitvector
// with one bit per possible committee index in a slot.
const maxCommitteesPerSlot = 64

// FetchAttestations decodes the block's attestations into per-seat
// inclusion delays. As a special case, slot == lookbackSlot never
// processes attestations (they would reference pre-lookback slots); it is
// a pure flag flip.
func (c *Controller) FetchAttestations(ctx context.Context, slot uint64, block *beacon.Block) error {
	row, err := c.store.GetSlot(ctx, uint32(slot))
	if err != nil {
		return errors.Wrap(err, "fetch attestations: read slot")
	}
	if row.AttestationsFetched {
		return nil
	}

	if slot == c.bt.LookbackSlot() {
		return c.store.SetSlotFlag(ctx, uint32(slot), "attestations_fetched")
	}

	lookback := c.bt.LookbackSlot()
	sizesCache := map[uint32][]int{}

	updates := map[committeeKey]int16{}
	for _, att := range block.Message.Body.Attestations {
		refSlot, err := decstr.ParseUint64(att.Data.Slot)
		if err != nil {
			return errors.Wrap(err, "parse attestation data.slot")
		}
		if refSlot < lookback {
			continue
		}

		sizes, ok := sizesCache[uint32(refSlot)]
		if !ok {
			sizes, err = c.store.GetCommitteesCountInSlot(ctx, uint32(refSlot))
			if err != nil {
				return errors.Wrap(err, "read committees count in slot")
			}
			if sizes == nil {
				return errors.Wrapf(indexererr.ErrMissingCommitteeSize, "slot %d", refSlot)
			}
			sizesCache[uint32(refSlot)] = sizes
		}

		delay := int16(slot - refSlot - 1)

		deltas, err := decodeAttestation(att, sizes)
		if err != nil {
			return errors.Wrap(err, "decode attestation")
		}
		for _, d := range deltas {
			key := committeeKey{slot: uint32(refSlot), index: d.committeeIndex, bit: d.aggregationBitsIndex}
			if prev, ok := updates[key]; !ok || delay < prev {
				updates[key] = delay
			}
		}
	}

	if len(updates) > 0 {
		rows := make([]db.AttestationDelayUpdate, 0, len(updates))
		for k, delay := range updates {
			rows = append(rows, db.AttestationDelayUpdate{
				Slot:                 k.slot,
				CommitteeIndex:       k.index,
				AggregationBitsIndex: k.bit,
				Delay:                delay,
			})
		}
		if err := c.store.UpdateAttestationDelays(ctx, rows); err != nil {
			return errors.Wrap(err, "update attestation delays")
		}
	}

	return c.store.SetSlotFlag(ctx, uint32(slot), "attestations_fetched")
}

// committeeKey is the (slot, committeeIndex, aggregationBitsIndex) primary
// key used to deduplicate attestation-delay updates, keeping the minimum
// observed delay.
type committeeKey struct {
	slot  uint32
	index uint16
	bit   uint16
}

type attestationDelta struct {
	committeeIndex       uint16
	aggregationBitsIndex uint16
}

// decodeAttestation decodes committee_bits (fixed-length bitvector, every
// bit is data) to find which committees this attestation covers, then
// consumes exactly sizes[idx] bits per covered committee, in increasing
// committee-index order, from the aggregation_bits variable-length bitlist
// (highest set bit is the terminator, excluded).
func decodeAttestation(att beacon.Attestation, sizes []int) ([]attestationDelta, error) {
	committeeBitsRaw, err := decodeHex(att.CommitteeBits)
	if err != nil {
		return nil, errors.Wrap(err, "decode committee_bits")
	}
	aggBitsRaw, err := decodeHex(att.AggregationBits)
	if err != nil {
		return nil, errors.Wrap(err, "decode aggregation_bits")
	}

	committeeIdxs := ssz.BitvectorBits(committeeBitsRaw, maxCommitteesPerSlot)
	sort.Ints(committeeIdxs)
	setBits := ssz.BitlistBits(aggBitsRaw)

	var out []attestationDelta
	offset := 0
	ptr := 0
	for _, idx := range committeeIdxs {
		if idx < 0 || idx >= len(sizes) {
			return nil, errors.Wrapf(indexererr.ErrMissingCommitteeSize, "committee index %d", idx)
		}
		size := sizes[idx]
		end := offset + size
		for ptr < len(setBits) && setBits[ptr] < end {
			if setBits[ptr] >= offset {
				out = append(out, attestationDelta{
					committeeIndex:       uint16(idx),
					aggregationBitsIndex: uint16(setBits[ptr] - offset),
				})
			}
			ptr++
		}
		offset = end
	}
	return out, nil
}

// decodeHex strips an optional "0x" prefix and decodes the remaining hex
// string, the CL API's encoding for SSZ-serialized bit fields.
func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(strings.TrimPrefix(s, "0x"))
}
