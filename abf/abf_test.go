package abf

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"testing"
	"unicode/utf16"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func utf16leNUL(s string) []byte {
	u := utf16.Encode([]rune(s))
	b := make([]byte, len(u)*2+2)
	for i, v := range u {
		binary.LittleEndian.PutUint16(b[i*2:], v)
	}
	return b
}

// buildContainer assembles a minimal ABF stream: a fixed-length header
// region (so offsets below don't depend on the header text's own digit
// count), a virtual directory, a backup log, and two payload files.
func buildContainer(t *testing.T) ([]byte, map[string][]byte) {
	t.Helper()
	const headerTotalLen = 512

	payloads := map[string][]byte{
		"metadata.sqlitedb":        []byte("sqlite-bytes-here"),
		"Sales_ProductKey.col.idf": []byte("idf-bytes-here-longer"),
	}

	logXML := []byte(`<BackupLog>` +
		`<BackupFile><Path>metadata.sqlitedb</Path><StoragePath>sp-A</StoragePath><Size>17</Size></BackupFile>` +
		`<BackupFile><Path>Sales_ProductKey.col.idf</Path><StoragePath>sp-B</StoragePath><Size>21</Size></BackupFile>` +
		`</BackupLog>`)

	logOffset := headerTotalLen
	logSize := len(logXML)
	vdOffset := logOffset + logSize

	payloadAOffset := 0 // patched below once vd length is known
	payloadBOffset := 0

	buildVD := func(pa, pb int) []byte {
		return []byte(`<VirtualDirectory>` +
			`<BackupFile><Path>sp-A</Path><Size>` + strconv.Itoa(len(payloads["metadata.sqlitedb"])) + `</Size><m_cbOffsetHeader>` + strconv.Itoa(pa) + `</m_cbOffsetHeader></BackupFile>` +
			`<BackupFile><Path>sp-B</Path><Size>` + strconv.Itoa(len(payloads["Sales_ProductKey.col.idf"])) + `</Size><m_cbOffsetHeader>` + strconv.Itoa(pb) + `</m_cbOffsetHeader></BackupFile>` +
			`<BackupFile><Path>sp-log</Path><Size>` + strconv.Itoa(logSize) + `</Size><m_cbOffsetHeader>` + strconv.Itoa(logOffset) + `</m_cbOffsetHeader></BackupFile>` +
			`</VirtualDirectory>`)
	}

	// The VD's own length depends on the digit count of the offsets it
	// holds, so rebuild until the payload offsets stop moving.
	vd := buildVD(0, 0)
	for {
		payloadAOffset = vdOffset + len(vd)
		payloadBOffset = payloadAOffset + len(payloads["metadata.sqlitedb"])
		next := buildVD(payloadAOffset, payloadBOffset)
		if len(next) == len(vd) {
			vd = next
			break
		}
		vd = next
	}

	headerText := `<Header><m_cbOffsetHeader>` + strconv.Itoa(vdOffset) +
		`</m_cbOffsetHeader><DataSize>` + strconv.Itoa(len(vd)) +
		`</DataSize><ErrorCode>false</ErrorCode><ApplyCompression>false</ApplyCompression></Header>`
	sig := utf16leNUL(headerText)
	require.Less(t, headerOffset+len(sig), headerTotalLen)
	header := make([]byte, headerTotalLen)
	copy(header[headerOffset:], sig)

	var buf bytes.Buffer
	buf.Write(header)
	buf.Write(logXML)
	buf.Write(vd)
	buf.Write(payloads["metadata.sqlitedb"])
	buf.Write(payloads["Sales_ProductKey.col.idf"])

	return buf.Bytes(), payloads
}

func TestParseAndGetDataSlice(t *testing.T) {
	buf, payloads := buildContainer(t)
	idx, err := Parse(buf)
	require.NoError(t, err)

	for name, want := range payloads {
		got, err := idx.GetDataSlice(name)
		require.NoError(t, err, "file %s", name)
		assert.Equal(t, want, got, "file %s", name)
	}
}

func TestGetDataSliceMissingFile(t *testing.T) {
	buf, _ := buildContainer(t)
	idx, err := Parse(buf)
	require.NoError(t, err)
	_, err = idx.GetDataSlice("does-not-exist")
	require.Error(t, err)
}

// P7: concatenating getDataSlice for all fileLog names recovers a
// permutation of the non-header regions of the decompressed stream.
func TestRoundTripCoversPayloads(t *testing.T) {
	buf, payloads := buildContainer(t)
	idx, err := Parse(buf)
	require.NoError(t, err)
	assert.Len(t, idx.FileLog, len(payloads))

	var total int
	for name := range idx.FileLog {
		data, err := idx.GetDataSlice(name)
		require.NoError(t, err)
		total += len(data)
	}
	var wantTotal int
	for _, p := range payloads {
		wantTotal += len(p)
	}
	assert.Equal(t, wantTotal, total)
}
