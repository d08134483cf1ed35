// Package dictionary reads a VertiPaq column's value dictionary: the
// numeric (long/real) variant is a flat array; the string variant is a
// sequence of pages, each either raw UTF-16LE text or Huffman-compressed.
package dictionary

import (
	"golang.org/x/text/encoding/charmap"

	"github.com/pbixdm/pbixdm/pbixerr"
	"github.com/pbixdm/pbixdm/pkg/peeker"
	"github.com/pbixdm/pbixdm/vertipaq/huffman"
)

const (
	TypeLong   = 0
	TypeReal   = 1
	TypeString = 2

	pageBeginMarker = 0xDDCCBBAA
	pageEndMarker   = 0xCDABCDAB
)

// Dictionary maps a dictionary-index to its decoded value: int64 for
// long, float64 for real, string for string dictionaries.
type Dictionary struct {
	Type  int
	Value map[uint32]interface{}
}

// Read parses buf (a column's .dictionary file) starting at minDataId,
// which is the index assigned to the first entry.
func Read(buf []byte, minDataID uint32) (*Dictionary, error) {
	r := peeker.NewFromBytes(buf)

	dictType, err := r.I32()
	if err != nil {
		return nil, malformed("dictionary type")
	}
	for i := 0; i < 6; i++ { // reserved hashInformation block
		if _, err := r.I32(); err != nil {
			return nil, malformed("hash information")
		}
	}

	switch dictType {
	case TypeLong, TypeReal:
		return readNumeric(r, int(dictType), minDataID)
	case TypeString:
		return readString(r, minDataID)
	default:
		return nil, malformed("unknown dictionary type")
	}
}

func readNumeric(r *peeker.Reader, dictType int, minDataID uint32) (*Dictionary, error) {
	count, err := r.U64()
	if err != nil {
		return nil, malformed("numeric count")
	}
	elementSize, err := r.U32()
	if err != nil {
		return nil, malformed("numeric element size")
	}

	d := &Dictionary{Type: dictType, Value: map[uint32]interface{}{}}
	for i := uint64(0); i < count; i++ {
		idx := minDataID + uint32(i)
		switch {
		case dictType == TypeLong && elementSize == 8:
			v, err := r.I64()
			if err != nil {
				return nil, malformed("long value")
			}
			d.Value[idx] = v
		case dictType == TypeReal:
			v, err := r.F64()
			if err != nil {
				return nil, malformed("real value")
			}
			d.Value[idx] = v
		default:
			v, err := r.I32()
			if err != nil {
				return nil, malformed("int32 value")
			}
			d.Value[idx] = int64(v)
		}
	}
	return d, nil
}

type handle struct {
	offset uint32
	pageID uint32
}

func readString(r *peeker.Reader, minDataID uint32) (*Dictionary, error) {
	storeStringCount, err := r.I64()
	if err != nil {
		return nil, malformed("storeStringCount")
	}
	_ = storeStringCount
	if _, err := r.U8(); err != nil { // fStoreCompressed
		return nil, malformed("fStoreCompressed")
	}
	if _, err := r.I64(); err != nil { // storeLongestString
		return nil, malformed("storeLongestString")
	}
	storePageCount, err := r.I64()
	if err != nil {
		return nil, malformed("storePageCount")
	}

	type page struct {
		startIndex uint64
		strings    []string // populated for uncompressed pages
		tree       *huffman.Tree
		compressed []byte
		totalBits  int
		compress   bool
	}
	pages := make([]page, 0, storePageCount)

	for p := int64(0); p < storePageCount; p++ {
		if _, err := r.U64(); err != nil { // pageMask
			return nil, malformed("pageMask")
		}
		if _, err := r.U8(); err != nil { // pageContainsNulls
			return nil, malformed("pageContainsNulls")
		}
		startIndex, err := r.U64()
		if err != nil {
			return nil, malformed("pageStartIndex")
		}
		if _, err := r.U64(); err != nil { // pageStringCount
			return nil, malformed("pageStringCount")
		}
		compressedFlag, err := r.U8()
		if err != nil {
			return nil, malformed("pageCompressed")
		}
		begin, err := r.U32()
		if err != nil || begin != pageBeginMarker {
			return nil, malformed("page begin marker")
		}

		pg := page{startIndex: startIndex, compress: compressedFlag != 0}
		if pg.compress {
			totalBits, err := r.U32()
			if err != nil {
				return nil, malformed("storeTotalBits")
			}
			if _, err := r.U32(); err != nil { // charSetId
				return nil, malformed("charSetId")
			}
			allocSize, err := r.U64()
			if err != nil {
				return nil, malformed("allocSize")
			}
			if _, err := r.U8(); err != nil { // charSetUsed
				return nil, malformed("charSetUsed")
			}
			if _, err := r.U32(); err != nil { // uiDecodeBits
				return nil, malformed("uiDecodeBits")
			}
			var encodeArray [128]byte
			for i := range encodeArray {
				b, err := r.U8()
				if err != nil {
					return nil, malformed("encodeArray")
				}
				encodeArray[i] = b
			}
			if _, err := r.U64(); err != nil { // bufferSize
				return nil, malformed("bufferSize")
			}
			payload, err := r.Tag(int(allocSize))
			if err != nil {
				return nil, malformed("compressed payload")
			}
			pg.compressed = append([]byte{}, payload...)
			pg.totalBits = int(totalBits)
			pg.tree = huffman.BuildCanonical(huffman.ExpandEncodeArray(encodeArray))
		} else {
			if _, err := r.U64(); err != nil { // remaining
				return nil, malformed("remaining")
			}
			if _, err := r.U64(); err != nil { // used
				return nil, malformed("used")
			}
			allocSize, err := r.U64()
			if err != nil {
				return nil, malformed("allocSize")
			}
			textBytes, err := r.Tag(int(allocSize))
			if err != nil {
				return nil, malformed("uncompressed text")
			}
			pg.strings = splitUTF16LENUL(textBytes)
		}

		end, err := r.U32()
		if err != nil || end != pageEndMarker {
			return nil, malformed("page end marker")
		}
		pages = append(pages, pg)
	}

	handleCount, err := r.U64()
	if err != nil {
		return nil, malformed("handleCount")
	}
	if _, err := r.U32(); err != nil { // elementSize, always 8
		return nil, malformed("handle elementSize")
	}
	handlesByPage := map[uint32][]handle{}
	for i := uint64(0); i < handleCount; i++ {
		offset, err := r.U32()
		if err != nil {
			return nil, malformed("handle offset")
		}
		pageID, err := r.U32()
		if err != nil {
			return nil, malformed("handle pageId")
		}
		handlesByPage[pageID] = append(handlesByPage[pageID], handle{offset, pageID})
	}

	d := &Dictionary{Type: TypeString, Value: map[uint32]interface{}{}}
	idx := minDataID
	for pageID, pg := range pages {
		if pg.compress {
			hs := handlesByPage[uint32(pageID)]
			for i, h := range hs {
				start := int(h.offset)
				end := pg.totalBits
				if i+1 < len(hs) {
					end = int(hs[i+1].offset)
				}
				s := pg.tree.Decode(pg.compressed, start, end)
				d.Value[idx] = isoToString(s)
				idx++
			}
			continue
		}
		for _, s := range pg.strings {
			d.Value[idx] = s
			idx++
		}
	}
	return d, nil
}

// splitUTF16LENUL decodes a NUL-separated run of UTF-16LE text, dropping
// a trailing empty terminator string.
func splitUTF16LENUL(buf []byte) []string {
	var strs []string
	var cur []uint16
	for i := 0; i+1 < len(buf); i += 2 {
		u := uint16(buf[i]) | uint16(buf[i+1])<<8
		if u == 0 {
			strs = append(strs, string(utf16Decode(cur)))
			cur = nil
			continue
		}
		cur = append(cur, u)
	}
	if len(cur) > 0 {
		strs = append(strs, string(utf16Decode(cur)))
	}
	if n := len(strs); n > 0 && strs[n-1] == "" {
		strs = strs[:n-1]
	}
	return strs
}

func utf16Decode(units []uint16) []rune {
	var rs []rune
	for i := 0; i < len(units); i++ {
		u := units[i]
		if u >= 0xD800 && u <= 0xDBFF && i+1 < len(units) {
			u2 := units[i+1]
			if u2 >= 0xDC00 && u2 <= 0xDFFF {
				r := (rune(u-0xD800)<<10 | rune(u2-0xDC00)) + 0x10000
				rs = append(rs, r)
				i++
				continue
			}
		}
		rs = append(rs, rune(u))
	}
	return rs
}

// isoToString interprets raw Huffman-decoded bytes as ISO-8859-1 code
// points, per §4.9. charmap.ISO8859_1 never errors on decode - every
// byte value 0-255 maps to a valid Latin-1 code point.
func isoToString(b []byte) string {
	s, _ := charmap.ISO8859_1.NewDecoder().String(string(b))
	return s
}

func malformed(field string) error {
	return pbixerr.E(pbixerr.ColumnDecodeSkipped, "dictionary: truncated field %q", field)
}
