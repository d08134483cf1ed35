package xpress8

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func block(uncompSize uint32, data []byte) []byte {
	hdr := make([]byte, 8)
	binary.LittleEndian.PutUint32(hdr, uncompSize)
	binary.LittleEndian.PutUint32(hdr[4:], uint32(len(data)))
	return append(hdr, data...)
}

// P8: stored blocks (compSize == uncompSize) are returned verbatim.
func TestStoredBlockIdentity(t *testing.T) {
	raw := []byte("hello, xpress8")
	src := block(uint32(len(raw)), raw)
	out, err := Decompress(src)
	require.NoError(t, err)
	assert.Equal(t, raw, out)
}

func TestLiteralOnlyFlagByte(t *testing.T) {
	// flags=0 means all 8 bits are literals.
	payload := []byte{0x00, 'a', 'b', 'c', 'd', 'e', 'f', 'g', 'h'}
	src := block(8, payload)
	out, err := Decompress(src)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdefgh"), out)
}

func TestBackReferenceRepeat(t *testing.T) {
	// Emit "ABC", then one match entry that copies forward from offset 3
	// with overlap, repeating "ABC" into "ABCABCABCA" (10 bytes total).
	// bit0..bit2 = literals 'A', 'B', 'C', bit3 = match.
	// matchOffset = ((b1&0xF8)<<5)|b0|1 = 3 => b0=3, high bits of b1 = 0
	// (the |1 makes every offset odd).
	// matchLen = (b1&0x07)+3 = 7 => low 3 bits of b1 = 4.
	flags := byte(0x08) // bit3 set, bits 0..2 clear
	payload := []byte{flags, 'A', 'B', 'C', 0x03, 0x04}
	src := block(10, payload)
	out, err := Decompress(src)
	require.NoError(t, err)
	assert.Equal(t, []byte("ABCABCABCA"), out)
}

func TestMultipleBlocksConcatenate(t *testing.T) {
	var src []byte
	src = append(src, block(3, []byte{0x00, 'x', 'y', 'z'})...)
	src = append(src, block(2, []byte{0x00, '1', '2'})...)
	out, err := Decompress(src)
	require.NoError(t, err)
	assert.Equal(t, []byte("xyz12"), out)
}
