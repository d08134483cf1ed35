// Package peeker provides a small buffered, forward-only byte reader used
// by the VertiPaq decoders (IDF-meta, IDF, and dictionary parsing) to pull fixed-width little-endian fields off of an
// in-memory byte slice without hand-rolled offset bookkeeping at every call
// site.
package peeker

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

type Reader struct {
	io.Reader
	limit  int
	buffer []byte
	cursor []byte
	eof    bool
}

var (
	ErrBufferOverflow = errors.New("buffer too big")
	ErrTruncated      = errors.New("truncated input")
)

func NewReader(reader io.Reader, size, max int) *Reader {
	b := make([]byte, size)
	return &Reader{
		Reader: reader,
		limit:  max,
		buffer: b,
		cursor: b[:0],
	}
}

func (r *Reader) fill(min int) error {
	if min > r.limit {
		return ErrBufferOverflow
	}
	if min > cap(r.buffer) {
		r.buffer = make([]byte, min)
	}
	r.buffer = r.buffer[:cap(r.buffer)]
	copy(r.buffer, r.cursor)
	clen := len(r.cursor)
	space := len(r.buffer) - clen
	for space > 0 {
		cc, err := r.Reader.Read(r.buffer[clen:])
		if cc > 0 {
			clen += cc
			space -= cc
		}
		if err != nil {
			if err == io.EOF {
				r.eof = true
				break
			}
			return err
		}
	}
	r.buffer = r.buffer[:clen]
	r.cursor = r.buffer
	return nil
}

func (r *Reader) Peek(n int) ([]byte, error) {
	if len(r.cursor) == 0 && r.eof {
		return nil, io.EOF
	}
	if n > len(r.cursor) && !r.eof {
		if err := r.fill(n); err != nil {
			return nil, err
		}
	}
	if n > len(r.cursor) {
		return r.cursor, ErrTruncated
	}
	return r.cursor[:n], nil
}

func (r *Reader) Read(n int) ([]byte, error) {
	b, err := r.Peek(n)
	if err != nil {
		return nil, err
	}
	r.cursor = r.cursor[n:]
	return b, nil
}

// NewFromBytes wraps a byte slice for little-endian fixed-width reads. The
// decode pipeline operates purely in-memory, so size and max are both set
// to len(buf); nothing ever grows the underlying buffer.
func NewFromBytes(buf []byte) *Reader {
	n := len(buf)
	if n == 0 {
		n = 1
	}
	return NewReader(bytes.NewReader(buf), n, n)
}

func (r *Reader) U8() (uint8, error) {
	b, err := r.Read(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) U32() (uint32, error) {
	b, err := r.Read(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *Reader) U64() (uint64, error) {
	b, err := r.Read(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *Reader) I32() (int32, error) {
	v, err := r.U32()
	return int32(v), err
}

func (r *Reader) I64() (int64, error) {
	v, err := r.U64()
	return int64(v), err
}

func (r *Reader) F64() (float64, error) {
	v, err := r.U64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(v), nil
}

// Tag reads n bytes and returns them verbatim, for fixed binary tags like
// "<1:CP\x00".
func (r *Reader) Tag(n int) ([]byte, error) {
	return r.Read(n)
}

// Skip discards n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.Read(n)
	return err
}
