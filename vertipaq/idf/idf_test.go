package idf

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbixdm/pbixdm/vertipaq/idfmeta"
)

func u32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func u64(v uint64) []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return b
}

// buildIdf assembles a .idf byte stream from primary (dataValue,
// repeatValue) pairs and a list of sub-segment words.
func buildIdf(primary [][2]uint32, sub []uint64) []byte {
	var b []byte
	b = append(b, u64(uint64(len(primary)))...)
	for _, e := range primary {
		b = append(b, u32(e[0])...)
		b = append(b, u32(e[1])...)
	}
	b = append(b, u64(uint64(len(sub)))...)
	for _, w := range sub {
		b = append(b, u64(w)...)
	}
	return b
}

// scenario 1 of the column-decode properties: a tiny all-integer column
// with no bit packing decodes to [10,10,10,10].
func TestDecodeAllIntegerColumn(t *testing.T) {
	meta := &idfmeta.Meta{MinDataID: 10, MaxDataID: 10, RowCount: 4}
	buf := buildIdf([][2]uint32{{10, 4}}, nil)

	out, err := Decode(buf, meta)
	require.NoError(t, err)
	assert.Equal(t, []uint32{10, 10, 10, 10}, out)
}

// scenario 2: RLE entries straddling a bit-packed sub-segment decode to
// [100,100,100,1,2,200].
func TestDecodeRLEAndBitPackedMix(t *testing.T) {
	meta := &idfmeta.Meta{
		MinDataID:      1,
		MaxDataID:      200,
		RowCount:       6,
		BitWidth:       1,
		CountBitPacked: 2,
	}
	primary := [][2]uint32{
		{100, 3},
		{0xFFFFFFFF, 2}, // bit-pack marker: dataValue + bpOffset(0) == 0xFFFFFFFF
		{200, 1},
	}
	// single word, bit0=0 bit1=1 -> values 0,1 -> +minDataID(1) -> 1,2
	buf := buildIdf(primary, []uint64{0x2})

	out, err := Decode(buf, meta)
	require.NoError(t, err)
	assert.Equal(t, []uint32{100, 100, 100, 1, 2, 200}, out)
}

// P1: decoded length always equals rowCount.
func TestDecodeLengthMatchesRowCount(t *testing.T) {
	meta := &idfmeta.Meta{MinDataID: 5, MaxDataID: 5, RowCount: 7}
	buf := buildIdf([][2]uint32{{5, 7}}, nil)

	out, err := Decode(buf, meta)
	require.NoError(t, err)
	assert.Len(t, out, 7)
}

// P1/P2: a primary segment whose repeat counts don't sum to rowCount is
// reported rather than silently truncated or padded.
func TestDecodeLengthMismatchIsError(t *testing.T) {
	meta := &idfmeta.Meta{MinDataID: 5, MaxDataID: 5, RowCount: 10}
	buf := buildIdf([][2]uint32{{5, 7}}, nil)

	_, err := Decode(buf, meta)
	assert.Error(t, err)
}

func TestDecodeBitPackedSpecialCaseSingleZeroWord(t *testing.T) {
	meta := &idfmeta.Meta{
		MinDataID:      42,
		MaxDataID:      42,
		RowCount:       3,
		CountBitPacked: 3,
	}
	primary := [][2]uint32{{0xFFFFFFFF, 3}}
	buf := buildIdf(primary, []uint64{0})

	out, err := Decode(buf, meta)
	require.NoError(t, err)
	assert.Equal(t, []uint32{42, 42, 42}, out)
}

func TestDecodeTruncatedInput(t *testing.T) {
	meta := &idfmeta.Meta{MinDataID: 10, MaxDataID: 10, RowCount: 4}
	buf := buildIdf([][2]uint32{{10, 4}}, nil)

	_, err := Decode(buf[:4], meta)
	assert.Error(t, err)
}
