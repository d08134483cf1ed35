package xpress9

import (
	"encoding/binary"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// identityCodec treats "compressed" bytes as already-decompressed bytes,
// letting tests drive the stream framing without a real XPress9 library.
type identityCodec struct {
	initCalls int
	freeCalls int
	initOK    bool
}

func (c *identityCodec) Init() bool {
	c.initCalls++
	if !c.initOK {
		return false
	}
	return true
}

func (c *identityCodec) Decompress(src []byte, dstCap int) ([]byte, int) {
	if len(src) > dstCap {
		return src[:dstCap], dstCap
	}
	return src, len(src)
}

func (c *identityCodec) Free() { c.freeCalls++ }

func sigHeader(sig string) []byte {
	hdr := make([]byte, headerSize)
	u16 := utf16.Encode([]rune(sig))
	for i, v := range u16 {
		binary.LittleEndian.PutUint16(hdr[i*2:], v)
	}
	return hdr
}

func TestSingleThreadedStream(t *testing.T) {
	hdr := sigHeader("xpress9 single")
	var src []byte
	src = append(src, hdr...)
	block1 := []byte("hello ")
	block2 := []byte("world")
	frame := func(u uint32, data []byte) []byte {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint32(b, u)
		binary.LittleEndian.PutUint32(b[4:], uint32(len(data)))
		return append(b, data...)
	}
	src = append(src, frame(uint32(len(block1)), block1)...)
	src = append(src, frame(uint32(len(block2)), block2)...)

	codec := &identityCodec{initOK: true}
	out, err := Decompress(codec, src, nil)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(out))
	assert.Equal(t, 1, codec.initCalls)
	assert.Equal(t, 1, codec.freeCalls)
}

func TestDecompressInitFailure(t *testing.T) {
	hdr := sigHeader("xpress9 single")
	codec := &identityCodec{initOK: false}
	_, err := Decompress(codec, hdr, nil)
	require.Error(t, err)
}

func TestMultithreadedSignatureSelectsMultithreadedPath(t *testing.T) {
	hdr := sigHeader("xpress9 multithreaded")
	body := make([]byte, 5*8)
	binary.LittleEndian.PutUint64(body[0:], 1) // mainChunks
	binary.LittleEndian.PutUint64(body[8:], 1) // prefixChunks
	binary.LittleEndian.PutUint64(body[16:], 1) // prefixThreads
	binary.LittleEndian.PutUint64(body[24:], 1) // mainThreads
	binary.LittleEndian.PutUint64(body[32:], 0) // chunkSize (unused)

	frame := func(data []byte) []byte {
		b := make([]byte, 8)
		binary.LittleEndian.PutUint32(b, uint32(len(data)))
		binary.LittleEndian.PutUint32(b[4:], uint32(len(data)))
		return append(b, data...)
	}
	var src []byte
	src = append(src, hdr...)
	src = append(src, body...)
	src = append(src, frame([]byte("prefix"))...)
	src = append(src, frame([]byte("main"))...)

	codec := &identityCodec{initOK: true}
	out, err := Decompress(codec, src, nil)
	require.NoError(t, err)
	assert.Equal(t, "prefixmain", string(out))
	// one free()+init() pair per group (2 groups), plus trailing free().
	assert.Equal(t, 2, codec.initCalls)
	assert.Equal(t, 3, codec.freeCalls)
}
