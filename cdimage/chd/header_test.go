package chd

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeReaderAt struct{ data []byte }

func (f fakeReaderAt) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, f.data[off:])
	return n, nil
}

func buildV5Header(t *testing.T, compressor0 string, hunkBytes, unitBytes uint32, logicalBytes uint64) []byte {
	t.Helper()
	buf := make([]byte, v5HeaderLen)
	copy(buf[0:8], v5Magic)
	binary.BigEndian.PutUint32(buf[8:12], v5HeaderLen)
	binary.BigEndian.PutUint32(buf[12:16], v5Version)
	copy(buf[16:20], compressor0)
	binary.BigEndian.PutUint64(buf[32:40], logicalBytes)
	binary.BigEndian.PutUint32(buf[56:60], hunkBytes)
	binary.BigEndian.PutUint32(buf[60:64], unitBytes)
	return buf
}

func TestParseHeaderV5(t *testing.T) {
	raw := buildV5Header(t, "none", 4096, 2048, 4096*10)
	h, err := parseHeader(fakeReaderAt{raw})
	require.NoError(t, err)
	require.Equal(t, uint32(5), h.Version)
	require.Equal(t, TagNone, h.Compressors[0])
	require.EqualValues(t, 4096, h.HunkBytes)
	require.EqualValues(t, 2048, h.UnitBytes)
	require.EqualValues(t, 10, h.NumHunks())
}

func TestParseHeaderRejectsBadMagic(t *testing.T) {
	raw := buildV5Header(t, "none", 4096, 2048, 4096)
	copy(raw[0:8], "NotCHD!!")
	_, err := parseHeader(fakeReaderAt{raw})
	require.Error(t, err)
}

func TestParseHeaderRejectsUnsupportedVersion(t *testing.T) {
	raw := buildV5Header(t, "none", 4096, 2048, 4096)
	binary.BigEndian.PutUint32(raw[12:16], 4)
	_, err := parseHeader(fakeReaderAt{raw})
	require.Error(t, err)
}

func TestNewHunkMapRejectsCompressedCodec(t *testing.T) {
	h := &Header{Compressors: [4]Tag{TagZlib, TagNone, TagNone, TagNone}, HunkBytes: 4096, LogicalBytes: 4096}
	_, err := NewHunkMap(fakeReaderAt{make([]byte, 4096)}, h)
	require.ErrorIs(t, err, ErrCompressedMapUnsupported)
}

func TestReadHunkUncompressed(t *testing.T) {
	data := make([]byte, v5HeaderLen+4096)
	for i := range data[v5HeaderLen:] {
		data[v5HeaderLen+i] = byte(i)
	}
	h := &Header{Compressors: [4]Tag{TagNone, TagNone, TagNone, TagNone}, HunkBytes: 4096, LogicalBytes: 4096}

	m, err := NewHunkMap(fakeReaderAt{data}, h)
	require.NoError(t, err)
	require.EqualValues(t, 1, m.NumHunks())

	hunk, err := m.ReadHunk(0)
	require.NoError(t, err)
	require.Equal(t, data[v5HeaderLen:], hunk)
}
