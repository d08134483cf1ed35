// Package idfmeta parses the fixed-layout binary .idfmeta header that
// accompanies every VertiPaq column's .idf index file.
package idfmeta

import (
	"github.com/pbixdm/pbixdm/pbixerr"
	"github.com/pbixdm/pbixdm/pkg/peeker"
)

// Meta is everything the IDF decoder (vertipaq/idf) and dictionary reader
// need out of a column's .idfmeta header. The remaining fields the format
// carries (bookmarkBits, storageAllocSize, storageUsedSize, rleSortOrder,
// hasNulls, rleRuns, othersRleRuns, compressionInfo) are parsed only for
// positional correctness; their semantics for multi-segment or
// null-bearing columns are not specified by the reference (see
// DESIGN.md Open Questions) and are not exposed here.
type Meta struct {
	MinDataID      uint32
	MaxDataID      uint32
	DistinctStates uint64
	CountBitPacked uint64
	BitWidth       uint
	RowCount       uint64
	HasBitPackedSubSeg bool
}

// Parse decodes a .idfmeta byte stream into a Meta.
func Parse(buf []byte) (*Meta, error) {
	r := peeker.NewFromBytes(buf)

	if _, err := r.Tag(6); err != nil { // "<1:CP\x00"
		return nil, malformed("tag <1:CP")
	}
	if _, err := r.U64(); err != nil { // version
		return nil, malformed("version")
	}
	if _, err := r.Tag(6); err != nil { // "<1:CS\x00"
		return nil, malformed("tag <1:CS (1)")
	}
	if _, err := r.U64(); err != nil { // records
		return nil, malformed("records")
	}
	if _, err := r.U64(); err != nil { // one
		return nil, malformed("one")
	}
	aba5a, err := r.U32()
	if err != nil {
		return nil, malformed("aba5a")
	}
	iterator, err := r.U32()
	if err != nil {
		return nil, malformed("iterator")
	}
	if _, err := r.U64(); err != nil { // bookmarkBits
		return nil, malformed("bookmarkBits")
	}
	if _, err := r.U64(); err != nil { // storageAllocSize
		return nil, malformed("storageAllocSize")
	}
	if _, err := r.U64(); err != nil { // storageUsedSize
		return nil, malformed("storageUsedSize")
	}
	if _, err := r.U8(); err != nil { // segmentNeedsResizing
		return nil, malformed("segmentNeedsResizing")
	}
	if _, err := r.U32(); err != nil { // compressionInfo
		return nil, malformed("compressionInfo")
	}
	if _, err := r.Tag(6); err != nil { // "<1:SS\x00"
		return nil, malformed("tag <1:SS")
	}

	distinctStates, err := r.U64()
	if err != nil {
		return nil, malformed("distinctStates")
	}
	minDataID, err := r.U32()
	if err != nil {
		return nil, malformed("minDataId")
	}
	maxDataID, err := r.U32()
	if err != nil {
		return nil, malformed("maxDataId")
	}
	if _, err := r.U32(); err != nil { // originalMinSegmentDataId
		return nil, malformed("originalMinSegmentDataId")
	}
	if _, err := r.I64(); err != nil { // rleSortOrder
		return nil, malformed("rleSortOrder")
	}
	rowCount, err := r.U64()
	if err != nil {
		return nil, malformed("rowCount")
	}
	if _, err := r.U8(); err != nil { // hasNulls
		return nil, malformed("hasNulls")
	}
	if _, err := r.U64(); err != nil { // rleRuns
		return nil, malformed("rleRuns")
	}
	if _, err := r.U64(); err != nil { // othersRleRuns
		return nil, malformed("othersRleRuns")
	}
	if _, err := r.Tag(6); err != nil { // closing tag
		return nil, malformed("closing tag")
	}

	hasBitPacked, err := r.U8()
	if err != nil {
		return nil, malformed("hasBitPackedSubSeg")
	}
	if _, err := r.Tag(6); err != nil { // "<1:CS\x00"
		return nil, malformed("tag <1:CS (2)")
	}
	countBitPacked, err := r.U64()
	if err != nil {
		return nil, malformed("countBitPacked")
	}

	bitWidth := (36 - int(aba5a)) + int(iterator)
	if bitWidth < 0 {
		bitWidth = 0
	}

	return &Meta{
		MinDataID:          minDataID,
		MaxDataID:           maxDataID,
		DistinctStates:      distinctStates,
		CountBitPacked:      countBitPacked,
		BitWidth:            uint(bitWidth),
		RowCount:            rowCount,
		HasBitPackedSubSeg:  hasBitPacked != 0,
	}, nil
}

func malformed(field string) error {
	return pbixerr.E(pbixerr.ColumnDecodeSkipped, "idfmeta: truncated field %q", field)
}
