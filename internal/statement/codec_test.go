package statement

import (
	"math"
	"strconv"
	"testing"
)

func TestParamIndexWidthCoversInt(t *testing.T) {
	if bits := paramIndexWidth * 6; bits < strconv.IntSize {
		t.Fatalf("paramIndexWidth %d covers %d bits, int has %d", paramIndexWidth, bits, strconv.IntSize)
	}
}

func TestParamIndexRoundTrip(t *testing.T) {
	values := []int{32, 63, 64, 65, 4095, 4096, maxVariableNumber, 1 << 20, 1<<31 - 1, math.MaxInt}
	for v := 0; v <= 2048; v++ {
		values = append(values, v)
	}
	buf := make([]byte, paramIndexWidth)
	for _, v := range values {
		encodeParamIndex(buf, v)
		if got := decodeParamIndex(string(buf)); got != v {
			t.Fatalf("decode(encode(%d)) = %d", v, got)
		}
	}
}

func TestParamIndexBytesPrintable(t *testing.T) {
	buf := make([]byte, paramIndexWidth)
	for _, v := range []int{0, 1, 63, 64, maxVariableNumber, math.MaxInt} {
		encodeParamIndex(buf, v)
		for i, b := range buf {
			if b < 33 || b > 96 {
				t.Fatalf("encode(%d) byte %d is %d, want 33..96", v, i, b)
			}
		}
	}
}

func TestParamIndexSlots(t *testing.T) {
	// A payload holds ordinals back to back; every slot decodes
	// independently of its neighbors.
	ordinals := []int{5, 1, 9, 2}
	payload := make([]byte, len(ordinals)*paramIndexWidth)
	for i, v := range ordinals {
		encodeParamIndex(payload[i*paramIndexWidth:], v)
	}
	s := string(payload)
	for i, want := range ordinals {
		if got := decodeParamIndex(s[i*paramIndexWidth:]); got != want {
			t.Fatalf("slot %d decodes to %d, want %d", i, got, want)
		}
	}
}
