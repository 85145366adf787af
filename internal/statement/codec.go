package statement

import "strconv"

// A mapping payload carries one parameter ordinal per argument position.
// Ordinals are packed least-significant 6-bit group first, each group offset
// into printable ASCII so the payload never contains a NUL byte and can be
// carried as a plain string.

// paramIndexWidth is the number of payload bytes per ordinal: enough 6-bit
// groups to cover a whole int. The width is fixed by the integer size, not
// by the values encoded, so both sides agree on slot boundaries without
// negotiation.
const paramIndexWidth = (strconv.IntSize + 5) / 6

// encodeParamIndex packs idx into the first paramIndexWidth bytes of dst.
// Only non-negative values round-trip.
func encodeParamIndex(dst []byte, idx int) {
	for i := 0; i < paramIndexWidth; i++ {
		dst[i] = byte(idx>>(6*i)&0x3f) + 33
	}
}

// decodeParamIndex unpacks the ordinal at the start of src. It inverts
// encodeParamIndex for every non-negative int.
func decodeParamIndex(src string) int {
	idx := 0
	for i := 0; i < paramIndexWidth; i++ {
		idx |= int(src[i]-33) << (6 * i)
	}
	return idx
}
