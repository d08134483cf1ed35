// Package xpress8 decodes the chunked LZ77-style stream Analysis Services
// uses to optionally wrap individual files inside an ABF container.
//
// Each block is framed as uncompSize:u32le, compSize:u32le, data[compSize].
// When compSize == uncompSize the block is stored raw (P8). Otherwise it is
// a flag-byte-prefixed run of literals and back-references.
package xpress8

import (
	"encoding/binary"

	"github.com/pbixdm/pbixdm/pbixerr"
)

// Decompress decodes every block in src and returns the concatenated
// decompressed output.
func Decompress(src []byte) ([]byte, error) {
	var out []byte
	off := 0
	for off+8 <= len(src) {
		uncompSize := binary.LittleEndian.Uint32(src[off:])
		compSize := binary.LittleEndian.Uint32(src[off+4:])
		off += 8
		if uncompSize == 0 && compSize == 0 {
			break
		}
		if off+int(compSize) > len(src) {
			return nil, pbixerr.E(pbixerr.MalformedHeader, "xpress8: block overruns input")
		}
		block := src[off : off+int(compSize)]
		off += int(compSize)
		dec, err := decodeBlock(block, int(uncompSize))
		if err != nil {
			return nil, err
		}
		out = append(out, dec...)
	}
	return out, nil
}

// decodeBlock expands a single block. A stored block (compSize==uncompSize)
// is returned verbatim per P8.
func decodeBlock(src []byte, uncompSize int) ([]byte, error) {
	if len(src) == uncompSize {
		return src, nil
	}
	out := make([]byte, 0, uncompSize)
	si := 0
	for si < len(src) && len(out) < uncompSize {
		flags := src[si]
		si++
		for bit := 0; bit < 8 && si < len(src) && len(out) < uncompSize; bit++ {
			if flags&(1<<uint(bit)) == 0 {
				out = append(out, src[si])
				si++
				continue
			}
			if si+1 >= len(src) {
				return out, nil
			}
			b0 := src[si]
			b1 := src[si+1]
			si += 2
			matchOffset := int((uint32(b1)&0xF8)<<5) | int(b0) | 1
			matchLen := int(b1&0x07) + 3
			if matchLen == 10 {
				if si >= len(src) {
					return out, nil
				}
				extra := src[si]
				si++
				matchLen = int(extra) + 10
				if matchLen == 265 {
					if si+1 >= len(src) {
						return out, nil
					}
					matchLen = int(binary.LittleEndian.Uint16(src[si:]))
					si += 2
				}
			}
			for i := 0; i < matchLen; i++ {
				srcIdx := len(out) - matchOffset
				if srcIdx < 0 {
					break
				}
				out = append(out, out[srcIdx])
			}
		}
	}
	return out, nil
}
