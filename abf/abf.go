// Package abf parses the Analysis-services Backup File container: a
// decompressed XPress9 byte stream holding several named files (most
// importantly metadata.sqlitedb and one .idf/.idfmeta/.dict file per
// VertiPaq column) indexed by two layers of XML directory.
package abf

import (
	"bytes"
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/pbixdm/pbixdm/pbixerr"
	"github.com/pbixdm/pbixdm/xpress8"
)

// FileLogEntry locates one logical file inside Buffer.
type FileLogEntry struct {
	Offset      int64
	Size        int64
	SizeFromLog int64
}

// Index is the result of parsing an ABF container: a buffer plus a
// filename -> slice map over it.
type Index struct {
	Buffer           []byte
	FileLog          map[string]FileLogEntry
	ErrorCode        bool
	ApplyCompression bool
}

const (
	headerOffset = 72
	headerWindow = 4096
)

var tagValueRe = func(tag string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<` + tag + `>(.*?)</` + tag + `>`)
}

func tagValue(s, tag string) (string, bool) {
	m := tagValueRe(tag).FindStringSubmatch(s)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}

func tagBool(s, tag string) bool {
	v, ok := tagValue(s, tag)
	if !ok {
		return false
	}
	v = strings.ToLower(v)
	return v == "true" || v == "1"
}

// Parse decomposes a decompressed ABF stream into a filename -> slice index.
func Parse(buf []byte) (*Index, error) {
	hdr, err := parseBackupLogHeader(buf)
	if err != nil {
		return nil, err
	}

	vdStart := int(hdr.vdOffset)
	vdEnd := vdStart + int(hdr.vdSize)
	if vdStart < 0 || vdEnd > len(buf) || vdStart >= vdEnd {
		return nil, pbixerr.E(pbixerr.MalformedHeader, "abf: virtual directory out of range")
	}
	vd, backupLogPath, err := parseVirtualDirectory(buf[vdStart:vdEnd])
	if err != nil {
		return nil, err
	}

	vdEntry, ok := vd[backupLogPath]
	if !ok {
		return nil, pbixerr.E(pbixerr.MalformedHeader, "abf: backup log path not found in virtual directory")
	}

	logStart := int(vdEntry.Offset)
	logEnd := logStart + int(vdEntry.Size)
	if logStart < 0 || logEnd > len(buf) || logStart >= logEnd {
		return nil, pbixerr.E(pbixerr.MalformedHeader, "abf: backup log out of range")
	}
	logBytes := buf[logStart:logEnd]
	if hdr.errorCode && len(logBytes) >= 4 {
		logBytes = logBytes[:len(logBytes)-4]
	}

	entries, err := parseBackupLog(decodeWithBOM(logBytes))
	if err != nil {
		return nil, err
	}

	fileLog := map[string]FileLogEntry{}
	for _, e := range entries {
		if e.StoragePath == "" || e.Path == "" {
			continue
		}
		vde, ok := vd[e.StoragePath]
		if !ok {
			continue
		}
		base := basename(e.Path)
		fileLog[base] = FileLogEntry{
			Offset:      vde.Offset,
			Size:        vde.Size,
			SizeFromLog: e.Size,
		}
	}

	return &Index{
		Buffer:           buf,
		FileLog:          fileLog,
		ErrorCode:        hdr.errorCode,
		ApplyCompression: hdr.applyCompression,
	}, nil
}

// GetDataSlice extracts the named file's bytes, applying the container's
// errorCode trim and applyCompression wrapper.
func (idx *Index) GetDataSlice(name string) ([]byte, error) {
	e, ok := idx.FileLog[name]
	if !ok {
		return nil, pbixerr.E(pbixerr.FileNotFound, "abf: file %q not found", name)
	}
	start := int(e.Offset)
	end := start + int(e.Size)
	if start < 0 || end > len(idx.Buffer) || start > end {
		return nil, pbixerr.E(pbixerr.MalformedHeader, "abf: file %q slice out of range", name)
	}
	data := idx.Buffer[start:end]
	if idx.ErrorCode && len(data) >= 4 {
		data = data[:len(data)-4]
	}
	if idx.ApplyCompression {
		dec, err := xpress8.Decompress(data)
		if err != nil {
			return nil, err
		}
		return dec, nil
	}
	// Copy: callers must not hold long-lived references into Buffer (§5).
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

type backupLogHeader struct {
	vdOffset         int64
	vdSize           int64
	errorCode        bool
	applyCompression bool
}

func parseBackupLogHeader(buf []byte) (backupLogHeader, error) {
	end := headerOffset + headerWindow
	if end > len(buf) {
		end = len(buf)
	}
	if headerOffset >= end {
		return backupLogHeader{}, pbixerr.E(pbixerr.MalformedHeader, "abf: buffer too short for header")
	}
	window := buf[headerOffset:end]
	text := decodeUTF16LEUntilNUL(window)

	offStr, ok1 := tagValue(text, "m_cbOffsetHeader")
	sizeStr, ok2 := tagValue(text, "DataSize")
	if !ok1 || !ok2 {
		return backupLogHeader{}, pbixerr.E(pbixerr.MalformedHeader, "abf: header missing m_cbOffsetHeader/DataSize")
	}
	off, err1 := strconv.ParseInt(offStr, 10, 64)
	size, err2 := strconv.ParseInt(sizeStr, 10, 64)
	if err1 != nil || err2 != nil || off <= 0 || size <= 0 {
		return backupLogHeader{}, pbixerr.E(pbixerr.MalformedHeader, "abf: invalid header offset/size")
	}
	return backupLogHeader{
		vdOffset:         off,
		vdSize:           size,
		errorCode:        tagBool(text, "ErrorCode"),
		applyCompression: tagBool(text, "ApplyCompression"),
	}, nil
}

func decodeUTF16LEUntilNUL(b []byte) string {
	u16 := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		lo, hi := b[i], b[i+1]
		if lo == 0 && hi == 0 {
			break
		}
		u16 = append(u16, uint16(lo)|uint16(hi)<<8)
	}
	return string(utf16.Decode(u16))
}

type vdEntry struct {
	Offset int64
	Size   int64
}

type xmlBackupFile struct {
	Path    string `xml:"Path"`
	Size    int64  `xml:"Size"`
	Offset  int64  `xml:"m_cbOffsetHeader"`
}

type xmlVirtualDirectory struct {
	Files []xmlBackupFile `xml:"BackupFile"`
}

func parseVirtualDirectory(buf []byte) (map[string]vdEntry, string, error) {
	var vd xmlVirtualDirectory
	if err := xml.Unmarshal(buf, &vd); err != nil {
		return nil, "", pbixerr.E(pbixerr.MalformedHeader, "abf: invalid virtual directory xml: %v", err)
	}
	m := map[string]vdEntry{}
	var lastPath string
	for _, f := range vd.Files {
		m[f.Path] = vdEntry{Offset: f.Offset, Size: f.Size}
		lastPath = f.Path
	}
	if lastPath == "" {
		return nil, "", pbixerr.E(pbixerr.MalformedHeader, "abf: empty virtual directory")
	}
	return m, lastPath, nil
}

type xmlLogBackupFile struct {
	Path        string `xml:"Path"`
	StoragePath string `xml:"StoragePath"`
	Size        int64  `xml:"Size"`
}

type xmlBackupLog struct {
	Files []xmlLogBackupFile `xml:"BackupFile"`
}

func parseBackupLog(buf []byte) ([]xmlLogBackupFile, error) {
	var log xmlBackupLog
	if err := xml.Unmarshal(buf, &log); err != nil {
		return nil, pbixerr.E(pbixerr.MalformedHeader, "abf: invalid backup log xml: %v", err)
	}
	return log.Files, nil
}

func decodeWithBOM(b []byte) []byte {
	isUTF16LE := false
	if len(b) >= 2 && b[0] == 0xFF && b[1] == 0xFE {
		isUTF16LE = true
		b = b[2:]
	} else if looksUTF16LE(b) {
		isUTF16LE = true
	}
	if !isUTF16LE {
		return b
	}
	u16 := make([]uint16, 0, len(b)/2)
	for i := 0; i+1 < len(b); i += 2 {
		u16 = append(u16, uint16(b[i])|uint16(b[i+1])<<8)
	}
	return []byte(string(utf16.Decode(u16)))
}

// looksUTF16LE applies the spec's heuristic: any byte followed by a zero
// byte signals UTF-16LE ASCII-range text.
func looksUTF16LE(b []byte) bool {
	for i := 0; i+1 < len(b) && i < 64; i += 2 {
		if b[i+1] == 0 {
			return true
		}
	}
	return false
}

func basename(path string) string {
	if i := bytes.LastIndexByte([]byte(path), '\\'); i >= 0 {
		return path[i+1:]
	}
	return path
}
