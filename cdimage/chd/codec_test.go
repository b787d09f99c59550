package chd

import (
	"bytes"
	"testing"

	"github.com/klauspost/compress/flate"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz/lzma"
)

func TestNoneCodecRoundTrip(t *testing.T) {
	src := []byte("some hunk bytes, not compressed at all")
	dst := make([]byte, len(src))

	c := &noneCodec{}
	n, err := c.Decompress(dst, src)
	require.NoError(t, err)
	require.Equal(t, len(src), n)
	require.Equal(t, src, dst)
}

func TestZlibCodecRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog"), 64)

	var compressed bytes.Buffer
	w, err := flate.NewWriter(&compressed, flate.BestCompression)
	require.NoError(t, err)
	_, err = w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	dst := make([]byte, len(plain))
	c := &zlibCodec{}
	n, err := c.Decompress(dst, compressed.Bytes())
	require.NoError(t, err)
	require.Equal(t, len(plain), n)
	require.Equal(t, plain, dst)
}

func TestLZMACodecRoundTrip(t *testing.T) {
	plain := bytes.Repeat([]byte("A CHD hunk of mostly-repetitive test data. "), 128)

	var compressed bytes.Buffer
	w, err := lzma.NewWriter(&compressed)
	require.NoError(t, err)
	_, err = w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	// Strip the classic 13-byte header lzma.NewWriter emits: lzmaCodec
	// reconstructs its own from the hunk size, matching CHD's headerless
	// on-disk stream.
	raw := compressed.Bytes()
	require.True(t, len(raw) > 13)
	raw = raw[13:]

	dst := make([]byte, len(plain))
	c := &lzmaCodec{hunkBytes: uint32(len(plain))}
	n, err := c.Decompress(dst, raw)
	require.NoError(t, err)
	require.Equal(t, len(plain), n)
	require.Equal(t, plain, dst)
}

func TestLZMADictSizeMonotonic(t *testing.T) {
	require.LessOrEqual(t, lzmaDictSize(1<<20), lzmaDictSize(1<<24))
}

func TestCDFLACBlockSizeNeverExceedsSectorSize(t *testing.T) {
	for _, total := range []int{2352, 2352 * 16, 2352 * 1000} {
		require.LessOrEqual(t, int(cdFLACBlockSize(total)), cdSectorSize)
	}
}

func TestBuildFLACHeaderHasMagic(t *testing.T) {
	h := buildFLACHeader(44100, 2, 588)
	require.Equal(t, []byte("fLaC"), h[0:4])
}
