package sqlitedb

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// P9: the varint reader emits the declared integer for all boundary inputs.
func TestVarintBoundaries(t *testing.T) {
	cases := []struct {
		name string
		in   []byte
		want int64
		n    int
	}{
		{"zero", []byte{0x00}, 0, 1},
		{"one byte max", []byte{0x7F}, 0x7F, 1},
		{"two byte min", []byte{0x81, 0x00}, 0x80, 2},
		{"nine byte max", []byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, -1, 9},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			v, n, ok := readVarint(c.in, 0)
			require.True(t, ok)
			assert.Equal(t, c.n, n)
			assert.Equal(t, c.want, v)
		})
	}
}

func appendVarint(b []byte, v uint64) []byte {
	// 7-bits-per-byte big-endian varint, same shape readVarint decodes
	// (this is SQLite's varint, not protobuf's).
	var stack []byte
	for {
		stack = append(stack, byte(v&0x7f))
		v >>= 7
		if v == 0 {
			break
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		flag := byte(0x80)
		if i == 0 {
			flag = 0
		}
		b = append(b, stack[i]|flag)
	}
	return b
}

func textSerial(s string) (int64, []byte) {
	return int64(13 + 2*len(s)), []byte(s)
}

func intSerial(v int64) (int64, []byte, int) {
	switch {
	case v >= -128 && v <= 127:
		return 1, []byte{byte(v)}, 1
	case v >= -32768 && v <= 32767:
		b := []byte{byte(v >> 8), byte(v)}
		return 2, b, 2
	default:
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b, uint64(v))
		return 6, b, 8
	}
}

// buildRecord assembles a record payload (header + data) from a list of
// (serialType, bytes) pairs already encoded by the caller.
func buildRecord(cols [][2]interface{}) []byte {
	var serials []byte
	var data []byte
	for _, c := range cols {
		st := c[0].(int64)
		b := c[1].([]byte)
		serials = appendVarint(serials, uint64(st))
		data = append(data, b...)
	}
	// header length includes its own varint; try 1 byte first and verify.
	headerLen := 1 + len(serials)
	hl := appendVarint(nil, uint64(headerLen))
	for len(hl)+len(serials) != headerLen {
		headerLen = len(hl) + len(serials)
		hl = appendVarint(nil, uint64(headerLen))
	}
	rec := append([]byte{}, hl...)
	rec = append(rec, serials...)
	rec = append(rec, data...)
	return rec
}

func buildCell(rowid int64, record []byte) []byte {
	var cell []byte
	cell = appendVarint(cell, uint64(len(record)))
	cell = appendVarint(cell, uint64(rowid))
	cell = append(cell, record...)
	return cell
}

// buildLeafPage lays out a single-page leaf table b-tree: header (100
// bytes, only present when isFirstPage) + leaf page header + cell pointer
// array + cells placed immediately after the pointer array (the reader
// does not validate the usual free-space bookkeeping).
func buildLeafPage(pageSize int, isFirstPage bool, cells [][]byte) []byte {
	p := make([]byte, pageSize)
	hdrOff := 0
	if isFirstPage {
		copy(p, magicPrefix)
		binary.BigEndian.PutUint16(p[16:18], uint16(pageSize))
		p[20] = 0 // reserved bytes
		hdrOff = headerSize
	}
	p[hdrOff] = byte(pageLeafTable)
	binary.BigEndian.PutUint16(p[hdrOff+3:], uint16(len(cells)))
	cellPtrArrayOff := hdrOff + 8
	dataOff := cellPtrArrayOff + len(cells)*2
	for i, cell := range cells {
		binary.BigEndian.PutUint16(p[cellPtrArrayOff+i*2:], uint16(dataOff))
		copy(p[dataOff:], cell)
		dataOff += len(cell)
	}
	return p
}

func TestOpenAndGetTableRows(t *testing.T) {
	const pageSize = 512

	// Page 2: the "Widgets" table, two rows of (id INTEGER, name TEXT).
	st1, b1, _ := intSerial(7)
	st2, nameBytes := textSerial("gizmo")
	row1 := buildCell(1, buildRecord([][2]interface{}{{st1, b1}, {st2, nameBytes}}))

	st3, b3, _ := intSerial(42)
	st4, nameBytes2 := textSerial("widget")
	row2 := buildCell(2, buildRecord([][2]interface{}{{st3, b3}, {st4, nameBytes2}}))

	page2 := buildLeafPage(pageSize, false, [][]byte{row1, row2})

	// Page 1: sqlite_master with one row describing table "Widgets" at
	// root page 2.
	stType, bType := textSerial("table")
	stName, bName := textSerial("Widgets")
	stTbl, bTbl := textSerial("Widgets")
	stRoot, bRoot, _ := intSerial(2)
	stSQL, bSQL := textSerial("")
	masterRow := buildCell(1, buildRecord([][2]interface{}{
		{stType, bType}, {stName, bName}, {stTbl, bTbl}, {stRoot, bRoot}, {stSQL, bSQL},
	}))
	page1 := buildLeafPage(pageSize, true, [][]byte{masterRow})

	buf := append(page1, page2...)

	db, err := Open(buf, nil)
	require.NoError(t, err)

	rows, err := db.GetTableRows("Widgets")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(1), rows[0].RowID)
	assert.Equal(t, int64(7), rows[0].Values[0])
	assert.Equal(t, []byte("gizmo"), rows[0].Values[1])

	assert.Equal(t, int64(2), rows[1].RowID)
	assert.Equal(t, int64(42), rows[1].Values[0])
	assert.Equal(t, []byte("widget"), rows[1].Values[1])
}

func TestUnknownTableYieldsNoRows(t *testing.T) {
	const pageSize = 512
	stType, bType := textSerial("table")
	stName, bName := textSerial("Widgets")
	stTbl, bTbl := textSerial("Widgets")
	stRoot, bRoot, _ := intSerial(2)
	stSQL, bSQL := textSerial("")
	masterRow := buildCell(1, buildRecord([][2]interface{}{
		{stType, bType}, {stName, bName}, {stTbl, bTbl}, {stRoot, bRoot}, {stSQL, bSQL},
	}))
	page1 := buildLeafPage(pageSize, true, [][]byte{masterRow})
	page2 := buildLeafPage(pageSize, false, nil)
	buf := append(page1, page2...)

	db, err := Open(buf, nil)
	require.NoError(t, err)
	rows, err := db.GetTableRows("DoesNotExist")
	require.NoError(t, err)
	assert.Len(t, rows, 0)
}
