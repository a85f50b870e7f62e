package hexfile

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// memFile is an in-memory FirmwareFile backed by a byte slice, enough to
// exercise the reader without touching the OS filesystem.
type memFile struct {
	data []byte
	pos  int64
}

func newMemFile(s string) *memFile {
	return &memFile{data: []byte(s)}
}

func (m *memFile) Position() int64 { return m.pos }

func (m *memFile) Seek(offset int64) error {
	if offset < 0 || offset > int64(len(m.data)) {
		return io.ErrUnexpectedEOF
	}
	m.pos = offset
	return nil
}

func (m *memFile) ReadBytes(p []byte) error {
	if m.pos+int64(len(p)) > int64(len(m.data)) {
		return io.ErrUnexpectedEOF
	}
	copy(p, m.data[m.pos:])
	m.pos += int64(len(p))
	return nil
}

func (m *memFile) Available() bool { return m.pos < int64(len(m.data)) }

func (m *memFile) Close() error { return nil }

func TestReadRecordSingleLine(t *testing.T) {
	f := newMemFile(":1000000001020304050607080900010203040506FF\n")
	r := NewReader(f)
	rec, err := r.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, 16, rec.Size)
	require.Equal(t, uint16(0), rec.Addr)
	require.Equal(t, byte(0x01), rec.Data[0])
}

func TestReadRecordWordHalvesAddress(t *testing.T) {
	// address 0x0010 (byte) -> word address 0x0008
	f := newMemFile(":02001000AABBCC\n")
	r := NewReader(f)
	rec, err := r.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, uint16(0x0008), rec.Addr)
	require.Equal(t, 2, rec.Size)
	require.Equal(t, []byte{0xAA, 0xBB}, rec.Data[:2])
}

func TestReadRecordCoalescesTwoShortLines(t *testing.T) {
	f := newMemFile(":10000000000102030405060708090A0B0C0D0E0FFF\n" +
		":080000001011121314151617FF\n")
	r := NewReader(f)
	rec, err := r.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, 24, rec.Size)
	require.Equal(t, byte(0x00), rec.Data[0])
	require.Equal(t, byte(0x10), rec.Data[16])
}

func TestReadRecordStopsCoalescingOnOverflow(t *testing.T) {
	// First record is 32 bytes (full); a second type-0 record would
	// overflow the combined buffer and must not be merged in.
	first := ":20000000"
	for i := 0; i < 32; i++ {
		first += "00"
	}
	first += "FF\n"
	second := ":02000000AABBCC\n"
	f := newMemFile(first + second)

	r := NewReader(f)
	rec, err := r.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, 32, rec.Size)

	// The second record must still be readable on its own.
	rec2, err := r.ReadRecord()
	require.NoError(t, err)
	require.Equal(t, 2, rec2.Size)
	require.Equal(t, []byte{0xAA, 0xBB}, rec2.Data[:2])
}

func TestReadRecordRejectsOversizedSingleLine(t *testing.T) {
	f := newMemFile(":21000000" + repeatHex("00", 33) + "FF\n")
	r := NewReader(f)
	_, err := r.ReadRecord()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrRange))
}

func TestReadRecordAtSeeksFirst(t *testing.T) {
	f := newMemFile(":02000000AABBCC\n:0200000011223344\n")
	r := NewReader(f)
	_, err := r.ReadRecord() // consume first line
	require.NoError(t, err)

	rec, err := r.ReadRecordAt(0)
	require.NoError(t, err)
	require.Equal(t, []byte{0xAA, 0xBB}, rec.Data[:2])
}

func repeatHex(s string, n int) string {
	out := ""
	for i := 0; i < n; i++ {
		out += s
	}
	return out
}
