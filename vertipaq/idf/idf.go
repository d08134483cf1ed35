// Package idf reconstructs a column's length-rowCount sequence of
// dictionary indices from its .idf file: a primary RLE segment plus an
// optional bit-packed sub-segment.
package idf

import (
	"github.com/pbixdm/pbixdm/pbixerr"
	"github.com/pbixdm/pbixdm/pkg/peeker"
	"github.com/pbixdm/pbixdm/vertipaq/idfmeta"
)

const bitPackMarker = 0xFFFFFFFF

type primaryEntry struct {
	dataValue   uint32
	repeatValue uint32
}

// Decode reads buf per the .idf layout and returns the rowCount-length
// sequence of dictionary indices described by meta.
func Decode(buf []byte, meta *idfmeta.Meta) ([]uint32, error) {
	r := peeker.NewFromBytes(buf)

	primarySize, err := r.U64()
	if err != nil {
		return nil, skipped("idf: truncated primary segment size")
	}
	primary := make([]primaryEntry, 0, primarySize)
	for i := uint64(0); i < primarySize; i++ {
		dv, err := r.U32()
		if err != nil {
			return nil, skipped("idf: truncated primary entry data value")
		}
		rv, err := r.U32()
		if err != nil {
			return nil, skipped("idf: truncated primary entry repeat value")
		}
		primary = append(primary, primaryEntry{dv, rv})
	}

	subSize, err := r.U64()
	if err != nil {
		return nil, skipped("idf: truncated sub-segment size")
	}
	sub := make([]uint64, 0, subSize)
	for i := uint64(0); i < subSize; i++ {
		w, err := r.U64()
		if err != nil {
			return nil, skipped("idf: truncated sub-segment word")
		}
		sub = append(sub, w)
	}

	bitPacked := expandBitPacked(sub, meta)

	out := make([]uint32, 0, meta.RowCount)
	bpOffset := 0
	for _, e := range primary {
		if uint64(e.dataValue)+uint64(bpOffset) == bitPackMarker {
			for i := uint32(0); i < e.repeatValue; i++ {
				idx := bpOffset + int(i)
				if idx >= len(bitPacked) {
					break
				}
				out = append(out, bitPacked[idx])
			}
			bpOffset += int(e.repeatValue)
			continue
		}
		for i := uint32(0); i < e.repeatValue; i++ {
			out = append(out, e.dataValue)
		}
	}

	if uint64(len(out)) != meta.RowCount {
		return nil, skipped("idf: decoded length %d does not match rowCount %d", len(out), meta.RowCount)
	}
	return out, nil
}

// expandBitPacked produces meta.CountBitPacked values offset by
// meta.MinDataID, per the special-case and general bit-packing rules of
// §4.8.
func expandBitPacked(sub []uint64, meta *idfmeta.Meta) []uint32 {
	if meta.CountBitPacked == 0 || len(sub) == 0 {
		return nil
	}
	if len(sub) == 1 && sub[0] == 0 {
		out := make([]uint32, meta.CountBitPacked)
		for i := range out {
			out[i] = meta.MinDataID
		}
		return out
	}

	bitWidth := meta.BitWidth
	if bitWidth == 0 || bitWidth > 64 {
		return nil
	}
	mask := uint64(1)<<bitWidth - 1
	perWord := 64 / int(bitWidth)

	out := make([]uint32, 0, meta.CountBitPacked)
	for _, w := range sub {
		for i := 0; i < perWord; i++ {
			if uint64(len(out)) >= meta.CountBitPacked {
				break
			}
			v := w & mask
			out = append(out, uint32(v)+meta.MinDataID)
			w >>= bitWidth
		}
	}
	return out
}

func skipped(format string, args ...interface{}) error {
	all := append([]interface{}{pbixerr.ColumnDecodeSkipped, format}, args...)
	return pbixerr.E(all...)
}
