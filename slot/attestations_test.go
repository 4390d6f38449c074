package slot

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NodeSentinel/beacon-validator-monitor-sub000/api/client/beacon"
)

func TestDecodeHex(t *testing.T) {
	b, err := decodeHex("0x0f")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0f}, b)

	b, err = decodeHex("0f")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0f}, b)
}

// One committee, every data bit set: each seat yields a delta.
func TestDecodeAttestation_SingleCommittee(t *testing.T) {
	att := beacon.Attestation{
		AggregationBits: "0x0f", // bits 0-2 data, bit3 terminator
		CommitteeBits:   "0x01", // committee 0 only
	}
	deltas, err := decodeAttestation(att, []int{3})
	require.NoError(t, err)
	assert.ElementsMatch(t, []attestationDelta{
		{committeeIndex: 0, aggregationBitsIndex: 0},
		{committeeIndex: 0, aggregationBitsIndex: 1},
		{committeeIndex: 0, aggregationBitsIndex: 2},
	}, deltas)
}

// committee_bits selecting a non-contiguous pair of committees: the
// aggregation bitlist's data bits are consumed in contiguous,
// size-bounded windows, one per selected committee in increasing index
// order.
func TestDecodeAttestation_MultipleCommittees(t *testing.T) {
	// committee 0 has 2 members, committee 2 has 3 members. committee_bits
	// selects committees 0 and 2 (bits 0 and 2 set: 0b00000101 = 0x05).
	// aggregation_bits covers the 2+3=5 data bits, all set, plus a
	// terminator at bit 5: 0b00111111 = 0x3f.
	att := beacon.Attestation{
		AggregationBits: "0x3f",
		CommitteeBits:   "0x05",
	}
	deltas, err := decodeAttestation(att, []int{2, 10, 3})
	require.NoError(t, err)
	assert.ElementsMatch(t, []attestationDelta{
		{committeeIndex: 0, aggregationBitsIndex: 0},
		{committeeIndex: 0, aggregationBitsIndex: 1},
		{committeeIndex: 2, aggregationBitsIndex: 0},
		{committeeIndex: 2, aggregationBitsIndex: 1},
		{committeeIndex: 2, aggregationBitsIndex: 2},
	}, deltas)
}

// TestDecodeAttestation_SparseParticipation covers a committee where only
// some validators attested: the unset bits within a committee's window must
// not produce a delta.
func TestDecodeAttestation_SparseParticipation(t *testing.T) {
	// committee 0, 4 members, only bits 0 and 3 set: 0b1001 = 0x09, plus
	// terminator at bit4: 0b00011001 = 0x19.
	att := beacon.Attestation{
		AggregationBits: "0x19",
		CommitteeBits:   "0x01",
	}
	deltas, err := decodeAttestation(att, []int{4})
	require.NoError(t, err)
	assert.ElementsMatch(t, []attestationDelta{
		{committeeIndex: 0, aggregationBitsIndex: 0},
		{committeeIndex: 0, aggregationBitsIndex: 3},
	}, deltas)
}
