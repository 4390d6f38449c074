// Package ssz decodes the two SSZ bit containers carried by attestations:
// Bitlist(N) ("aggregation_bits", variable length, highest set bit is a
// terminator) and Bitvector(N) ("committee_bits", fixed length, no
// terminator). Both are pure functions over raw bytes; the byte layout
// (LSB-first within each byte, byte 0 first) is that of
// github.com/prysmaticlabs/go-bitfield, which backs both helpers.
package ssz

import (
	bitfield "github.com/prysmaticlabs/go-bitfield"
)

// BitlistBits returns the data bit positions (LSB-first, byte 0 first) of a
// variable-length SSZ bitlist, excluding the terminator bit. An input with
// no data bits set yields an empty (non-nil) slice.
//
// Examples:
//
//	BitlistBits([]byte{0x03}) == []int{0}         // 0b00000011: bit0 data, bit1 terminator
//	BitlistBits([]byte{0x0F}) == []int{0, 1, 2}   // 0b00001111: bits0-2 data, bit3 terminator
//	BitlistBits([]byte{0xFF, 0x00}) == []int{0..6} // bits0-6 data, bit7 terminator
func BitlistBits(raw []byte) []int {
	bl := trimBitlist(raw)
	out := make([]int, 0, bl.Len())
	for i := uint64(0); i < bl.Len(); i++ {
		if bl.BitAt(i) {
			out = append(out, int(i))
		}
	}
	return out
}

// BitlistLen returns the number of data bits (excluding the terminator) in a
// variable-length SSZ bitlist.
func BitlistLen(raw []byte) int {
	return int(trimBitlist(raw).Len())
}

// trimBitlist drops zero bytes after the terminator so that the byte holding
// the highest set bit is the last one, which is where bitfield.Bitlist looks
// for the terminator.
func trimBitlist(raw []byte) bitfield.Bitlist {
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	return bitfield.Bitlist(raw[:end])
}

// BitvectorBits returns the set bit positions (LSB-first, byte 0 first) of a
// fixed-length SSZ bitvector of bitLen bits ("committee_bits": every bit is
// data, there is no terminator).
func BitvectorBits(raw []byte, bitLen int) []int {
	bv := bitfield.Bitvector64(padTo8(raw))
	out := make([]int, 0, bitLen)
	for i := 0; i < bitLen; i++ {
		if bv.BitAt(uint64(i)) {
			out = append(out, i)
		}
	}
	return out
}

// padTo8 right-pads (with zero bytes) a bitvector's backing bytes to 8 bytes,
// the fixed width bitfield.Bitvector64 expects. committee_bits in the
// consensus spec is at most 64 bits (one bit per committee index, bounded by
// MAX_COMMITTEES_PER_SLOT=64), so 8 bytes is always sufficient.
func padTo8(raw []byte) []byte {
	if len(raw) >= 8 {
		return raw[:8]
	}
	out := make([]byte, 8)
	copy(out, raw)
	return out
}
