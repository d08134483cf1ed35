package huffman

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// scenario 4: the byte-swap quirk is load-bearing. 'a' and 'b' both have
// codeword length 1 ('a'=0, 'b'=1); the physical bit pattern "0b10" lives
// at buf[1] (its word-sibling), not buf[0], so bit 0 of the logical
// stream is bit 7 of byte 1.
func TestDecodeAppliesByteSwapQuirk(t *testing.T) {
	var lengths [256]int
	lengths['a'] = 1
	lengths['b'] = 1
	tree := BuildCanonical(lengths)

	buf := []byte{0x00, 0x80} // buf[1] = 0b10000000
	got := tree.Decode(buf, 0, 2)
	assert.Equal(t, "ba", string(got))
}

func TestExpandEncodeArrayNibbles(t *testing.T) {
	var arr [128]byte
	arr[0] = 0x21 // low nibble 1 (symbol 0), high nibble 2 (symbol 1)
	lengths := ExpandEncodeArray(arr)
	assert.Equal(t, 1, lengths[0])
	assert.Equal(t, 2, lengths[1])
}

func TestBuildCanonicalMultiLength(t *testing.T) {
	var lengths [256]int
	lengths['a'] = 1
	lengths['b'] = 2
	lengths['c'] = 2
	tree := BuildCanonical(lengths)

	// canonical codes: a=0 (len1), b=10 (len2), c=11 (len2)
	buf := []byte{0x00, 0b01011000} // physical byte1 holds the logical stream start
	got := tree.Decode(buf, 0, 5)
	assert.Equal(t, "abc", string(got))
}

func TestDecodeStopsAtEndBit(t *testing.T) {
	var lengths [256]int
	lengths['a'] = 1
	lengths['b'] = 1
	tree := BuildCanonical(lengths)

	buf := []byte{0x00, 0xFF}
	got := tree.Decode(buf, 0, 1)
	assert.Equal(t, "b", string(got))
}
