// Package xpress9 decompresses the raw DataModel blob into the decompressed
// ABF byte stream. It drives a runtime-linked XPress9 Codec through the
// three-operation seam described by the DataModel spec (init, decompress,
// free) rather than embedding a codec implementation itself - the codec is
// supplied by the caller, exactly as Analysis Services links it in at
// runtime.
package xpress9

import (
	"encoding/binary"
	"unicode/utf16"

	"go.uber.org/zap"

	"github.com/pbixdm/pbixdm/pbixerr"
)

// Codec is the runtime-linked XPress9 implementation. Init must be called
// before Decompress, and Free releases the codec state. For the
// single-threaded stream Decompress calls Init once and Free once; for the
// multithreaded stream it calls Free then Init at the start of every
// thread group and Free once more at the end, so Free is also called
// once before the first Init.
type Codec interface {
	Init() bool
	Decompress(src []byte, dstCap int) (out []byte, n int)
	Free()
}

const headerSize = 102

// Decompress turns the raw DataModel bytes into the decompressed ABF byte
// stream, selecting the single-threaded or multithreaded framing based on
// the UTF-16LE signature in the first 102 bytes.
func Decompress(codec Codec, src []byte, log *zap.Logger) ([]byte, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(src) < headerSize {
		return nil, pbixerr.E(pbixerr.MalformedHeader, "xpress9: input shorter than header")
	}
	sig := decodeSignature(src[:headerSize])
	if containsMultithreaded(sig) {
		log.Debug("xpress9: multithreaded stream", zap.String("signature", sig))
		return decompressMultithreaded(codec, src)
	}
	log.Debug("xpress9: single-threaded stream", zap.String("signature", sig))
	return decompressSingleThreaded(codec, src)
}

func decodeSignature(hdr []byte) string {
	u16 := make([]uint16, 0, len(hdr)/2)
	for i := 0; i+1 < len(hdr); i += 2 {
		v := binary.LittleEndian.Uint16(hdr[i:])
		if v == 0 {
			break
		}
		u16 = append(u16, v)
	}
	return string(utf16.Decode(u16))
}

func containsMultithreaded(sig string) bool {
	return indexOf(sig, "multithreaded") >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func decompressSingleThreaded(codec Codec, src []byte) ([]byte, error) {
	if !codec.Init() {
		return nil, pbixerr.E(pbixerr.DecompressInit)
	}
	defer codec.Free()

	var out []byte
	off := headerSize
	for off+8 <= len(src) {
		uncompSize := binary.LittleEndian.Uint32(src[off:])
		compSize := binary.LittleEndian.Uint32(src[off+4:])
		if uncompSize == 0 || compSize == 0 {
			break
		}
		blockStart := off + 8
		if blockStart+int(compSize) > len(src) {
			break
		}
		block := src[blockStart : blockStart+int(compSize)]
		dst, n := codec.Decompress(block, int(uncompSize))
		if n > 0 {
			out = append(out, dst[:n]...)
		}
		off = blockStart + int(compSize)
	}
	return out, nil
}

func decompressMultithreaded(codec Codec, src []byte) ([]byte, error) {
	if len(src) < headerSize+5*8 {
		return nil, pbixerr.E(pbixerr.MalformedHeader, "xpress9: truncated multithreaded header")
	}
	p := headerSize
	readU64 := func() uint64 {
		v := binary.LittleEndian.Uint64(src[p:])
		p += 8
		return v
	}
	mainChunks := readU64()
	prefixChunks := readU64()
	prefixThreads := readU64()
	mainThreads := readU64()
	_ = readU64() // chunkSize: consumed but unused

	var groupSizes []uint64
	for i := uint64(0); i < prefixThreads; i++ {
		groupSizes = append(groupSizes, prefixChunks)
	}
	for i := uint64(0); i < mainThreads; i++ {
		groupSizes = append(groupSizes, mainChunks)
	}

	var out []byte
	off := p
	for _, blocksInGroup := range groupSizes {
		codec.Free()
		if !codec.Init() {
			return nil, pbixerr.E(pbixerr.DecompressInit)
		}
		prevOff := -1
		for i := uint64(0); i < blocksInGroup; i++ {
			if off == prevOff {
				break // runaway block: offset not advancing
			}
			prevOff = off
			if off+8 > len(src) {
				break
			}
			uncompSize := binary.LittleEndian.Uint32(src[off:])
			compSize := binary.LittleEndian.Uint32(src[off+4:])
			if uncompSize == 0 || compSize == 0 {
				break
			}
			blockStart := off + 8
			if blockStart+int(compSize) > len(src) {
				break
			}
			block := src[blockStart : blockStart+int(compSize)]
			dst, n := codec.Decompress(block, int(uncompSize))
			if n > 0 {
				out = append(out, dst[:n]...)
			}
			off = blockStart + int(compSize)
		}
	}
	codec.Free()
	return out, nil
}
