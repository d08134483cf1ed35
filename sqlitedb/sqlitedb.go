// Package sqlitedb is a minimal, read-only SQLite file reader sufficient
// to traverse the handful of metadata tables Analysis Services embeds in
// metadata.sqlitedb. It understands the 100-byte database header, table
// b-trees (leaf and interior pages), varints, the record format, and
// payload-overflow chains. Writes, indices, and anything beyond
// table-rooted b-trees are out of scope.
package sqlitedb

import (
	"encoding/binary"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/pbixdm/pbixdm/pbixerr"
)

const (
	headerSize  = 100
	magicPrefix = "SQLite format 3\x00"
)

type pageType byte

const (
	pageInteriorIndex pageType = 0x02
	pageInteriorTable pageType = 0x05
	pageLeafIndex     pageType = 0x0A
	pageLeafTable     pageType = 0x0D
)

// Row is one logical row out of a table b-tree: a surrogate rowid plus an
// ordered list of typed column values (nil, int64, float64, or []byte).
type Row struct {
	RowID  int64
	Values []interface{}
}

// DB is a read-only handle onto a decoded SQLite file.
type DB struct {
	buf        []byte
	pageSize   int
	usableSize int
	tableMap   map[string]int // table name -> root page number
	log        *zap.Logger
}

// Open validates the 100-byte header and builds the sqlite_master table
// map. It does not itself read any table rows.
func Open(buf []byte, log *zap.Logger) (*DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	if len(buf) < headerSize || string(buf[:16]) != magicPrefix {
		return nil, pbixerr.E(pbixerr.InvalidSqlite, "sqlitedb: bad magic header")
	}
	pageSize := int(binary.BigEndian.Uint16(buf[16:18]))
	if pageSize == 0 {
		pageSize = 65536
	}
	reserved := int(buf[20])
	db := &DB{
		buf:        buf,
		pageSize:   pageSize,
		usableSize: pageSize - reserved,
		log:        log,
	}
	master, err := db.getTableRowsByRoot(1, "sqlite_master")
	if err != nil {
		return nil, err
	}
	db.tableMap = map[string]int{}
	for _, row := range master {
		// sqlite_master: type, name, tbl_name, rootpage, sql
		if len(row.Values) < 4 {
			continue
		}
		typ, _ := row.Values[0].([]byte)
		if string(typ) != "table" {
			continue
		}
		name, _ := row.Values[1].([]byte)
		root, ok := asInt(row.Values[3])
		if !ok {
			continue
		}
		db.tableMap[string(name)] = int(root)
	}
	return db, nil
}

func asInt(v interface{}) (int64, bool) {
	switch v := v.(type) {
	case int64:
		return v, true
	case float64:
		return int64(v), true
	}
	return 0, false
}

// GetTableRows returns every row of the named table, traversed in b-tree
// order. An unknown table name yields zero rows, not an error - the
// metadata schema varies slightly across Analysis Services versions and
// callers (schema.go) treat absence of a whole row set as the fatal
// condition, not absence of one table.
func (db *DB) GetTableRows(name string) ([]Row, error) {
	root, ok := db.tableMap[name]
	if !ok {
		return nil, nil
	}
	return db.getTableRowsByRoot(root, name)
}

func (db *DB) getTableRowsByRoot(root int, name string) ([]Row, error) {
	var rows []Row
	err := db.walkTablePage(root, &rows)
	if err != nil {
		return nil, pbixerr.E(pbixerr.InvalidSqlite, fmt.Errorf("walking table %q: %w", name, err))
	}
	return rows, nil
}

func (db *DB) page(num int) []byte {
	start := (num - 1) * db.pageSize
	end := start + db.pageSize
	if start < 0 || end > len(db.buf) {
		return nil
	}
	return db.buf[start:end]
}

func (db *DB) walkTablePage(num int, rows *[]Row) error {
	p := db.page(num)
	if p == nil {
		return nil
	}
	hdrOff := 0
	if num == 1 {
		hdrOff = headerSize
	}
	if hdrOff >= len(p) {
		return nil
	}
	typ := pageType(p[hdrOff])
	cellCount := int(binary.BigEndian.Uint16(p[hdrOff+3:]))

	var cellPtrArrayOff int
	switch typ {
	case pageLeafTable:
		cellPtrArrayOff = hdrOff + 8
	case pageInteriorTable:
		cellPtrArrayOff = hdrOff + 12
	default:
		return nil // not a table b-tree page; skip silently
	}

	for i := 0; i < cellCount; i++ {
		ptrOff := cellPtrArrayOff + i*2
		if ptrOff+2 > len(p) {
			continue
		}
		cellPtr := int(binary.BigEndian.Uint16(p[ptrOff:]))
		if cellPtr >= len(p) {
			continue
		}
		switch typ {
		case pageLeafTable:
			row, err := db.readLeafCell(p, cellPtr)
			if err != nil {
				db.log.Debug("sqlitedb: skipping corrupt cell", zap.Int("page", num), zap.Error(err))
				continue
			}
			*rows = append(*rows, row)
		case pageInteriorTable:
			if cellPtr+4 > len(p) {
				continue
			}
			childPage := int(binary.BigEndian.Uint32(p[cellPtr:]))
			if err := db.walkTablePage(childPage, rows); err != nil {
				db.log.Debug("sqlitedb: skipping corrupt child page", zap.Int("page", childPage), zap.Error(err))
			}
		}
	}

	if typ == pageInteriorTable {
		rightPage := int(binary.BigEndian.Uint32(p[hdrOff+8:]))
		if err := db.walkTablePage(rightPage, rows); err != nil {
			db.log.Debug("sqlitedb: skipping corrupt right-most child", zap.Error(err))
		}
	}
	return nil
}

func (db *DB) readLeafCell(p []byte, cellPtr int) (Row, error) {
	payloadLen, n1, ok := readVarint(p, cellPtr)
	if !ok {
		return Row{}, pbixerr.E("truncated cell payload length")
	}
	rowid, n2, ok := readVarint(p, cellPtr+n1)
	if !ok {
		return Row{}, pbixerr.E("truncated cell rowid")
	}
	hdrStart := cellPtr + n1 + n2

	payload, err := db.assemblePayload(p, hdrStart, int(payloadLen))
	if err != nil {
		return Row{}, err
	}
	values, err := parseRecord(payload)
	if err != nil {
		return Row{}, err
	}
	return Row{RowID: rowid, Values: values}, nil
}

// assemblePayload returns the full record payload, following the overflow
// chain when the record doesn't fit entirely on the local page.
func (db *DB) assemblePayload(p []byte, localStart, payloadLen int) ([]byte, error) {
	maxLocal := db.usableSize - 35
	minLocal := (db.usableSize-12)*32/255 - 23

	var localSize int
	if payloadLen <= maxLocal {
		localSize = payloadLen
	} else {
		localSize = minLocal + (payloadLen-minLocal)%(db.usableSize-4)
		if localSize > maxLocal {
			localSize = minLocal
		}
	}
	if localSize > payloadLen {
		localSize = payloadLen
	}
	if localStart+localSize > len(p) {
		return nil, pbixerr.E("cell payload overruns page")
	}

	out := make([]byte, payloadLen)
	copy(out, p[localStart:localStart+localSize])
	written := localSize
	if written >= payloadLen {
		return out, nil
	}

	overflowPtr := localStart + localSize
	if overflowPtr+4 > len(p) {
		return out, nil // tolerate truncated overflow pointer
	}
	nextPage := int(binary.BigEndian.Uint32(p[overflowPtr:]))
	for nextPage != 0 && written < payloadLen {
		op := db.page(nextPage)
		if op == nil || len(op) < 4 {
			break
		}
		avail := db.usableSize - 4
		if avail > payloadLen-written {
			avail = payloadLen - written
		}
		if 4+avail > len(op) {
			avail = len(op) - 4
		}
		if avail <= 0 {
			break
		}
		copy(out[written:], op[4:4+avail])
		written += avail
		nextPage = int(binary.BigEndian.Uint32(op[0:]))
	}
	return out, nil
}

// readVarint decodes a SQLite 1-9 byte varint starting at pos. Returns the
// value, the number of bytes consumed, and whether the read stayed in
// bounds.
func readVarint(b []byte, pos int) (int64, int, bool) {
	var result int64
	for i := 0; i < 8; i++ {
		if pos+i >= len(b) {
			return 0, 0, false
		}
		v := b[pos+i]
		result = result<<7 | int64(v&0x7f)
		if v&0x80 == 0 {
			return result, i + 1, true
		}
	}
	if pos+8 >= len(b) {
		return 0, 0, false
	}
	result = result<<8 | int64(b[pos+8])
	return result, 9, true
}

func parseRecord(payload []byte) ([]interface{}, error) {
	headerLen, hn, ok := readVarint(payload, 0)
	if !ok || int(headerLen) > len(payload) {
		return nil, pbixerr.E("truncated record header")
	}
	var serialTypes []int64
	pos := hn
	for pos < int(headerLen) {
		st, n, ok := readVarint(payload, pos)
		if !ok {
			return nil, pbixerr.E("truncated serial type")
		}
		serialTypes = append(serialTypes, st)
		pos += n
	}

	values := make([]interface{}, len(serialTypes))
	dPos := int(headerLen)
	for i, st := range serialTypes {
		switch {
		case st == 0:
			values[i] = nil
		case st >= 1 && st <= 6:
			lens := [...]int{0, 1, 2, 3, 4, 6, 8}
			l := lens[st]
			if dPos+l > len(payload) {
				return nil, pbixerr.E("truncated integer value")
			}
			values[i] = readSignedBE(payload[dPos:dPos+l], l)
			dPos += l
		case st == 7:
			if dPos+8 > len(payload) {
				return nil, pbixerr.E("truncated float value")
			}
			bits := binary.BigEndian.Uint64(payload[dPos : dPos+8])
			values[i] = math.Float64frombits(bits)
			dPos += 8
		case st == 8:
			values[i] = int64(0)
		case st == 9:
			values[i] = int64(1)
		case st >= 12 && st%2 == 0:
			l := int((st - 12) / 2)
			if dPos+l > len(payload) {
				return nil, pbixerr.E("truncated blob value")
			}
			values[i] = payload[dPos : dPos+l]
			dPos += l
		case st >= 13 && st%2 == 1:
			l := int((st - 13) / 2)
			if dPos+l > len(payload) {
				return nil, pbixerr.E("truncated text value")
			}
			values[i] = payload[dPos : dPos+l]
			dPos += l
		default:
			return nil, pbixerr.E("unsupported serial type %d", st)
		}
	}
	return values, nil
}

// readSignedBE reads an l-byte big-endian two's-complement integer,
// sign-extending from the top bit of the first byte.
func readSignedBE(b []byte, l int) int64 {
	var val int64
	for i := 0; i < l; i++ {
		val = val<<8 | int64(b[i])
	}
	if l > 0 && b[0]&0x80 != 0 {
		val -= int64(1) << uint(l*8)
	}
	return val
}
