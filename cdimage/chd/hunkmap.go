package chd

import (
	"errors"
	"fmt"
	"io"
)

// ErrCompressedMapUnsupported is returned by Open for a CHD whose hunks are
// compressed: decoding such a file requires decompressing the v5 hunk map's
// own bitstream (a Huffman-coded table of per-hunk offset/length/codec
// triples) before any hunk can be located. That bitstream's exact layout
// was not present anywhere in the retrieved reference material (the
// grounding pack covers the zlib/LZMA/FLAC hunk *codecs* in detail, but not
// the map format that locates hunks compressed with them), so this package
// does not guess at it. Only CHDs with Compressors[0] == TagNone — hunks
// stored at a fixed stride with no per-hunk map — are supported for actual
// sector reads. The codecs themselves are still fully implemented and unit
// tested directly against synthetic hunks.
var ErrCompressedMapUnsupported = errors.New("chd: compressed hunk maps are not supported")

// HunkMap locates and decompresses a CHD's hunks.
type HunkMap struct {
	r         io.ReaderAt
	header    *Header
	hunkBytes uint32
	codec     Codec
}

// NewHunkMap builds a HunkMap for an uncompressed-hunk CHD (Compressors[0]
// == TagNone): hunks are stored sequentially starting immediately after the
// v5 header, each exactly header.HunkBytes long.
func NewHunkMap(r io.ReaderAt, header *Header) (*HunkMap, error) {
	if header.Compressors[0] != TagNone {
		return nil, fmt.Errorf("%w (codec %q)", ErrCompressedMapUnsupported, header.Compressors[0])
	}

	codec, err := newCodec(TagNone, header.HunkBytes)
	if err != nil {
		return nil, err
	}

	return &HunkMap{r: r, header: header, hunkBytes: header.HunkBytes, codec: codec}, nil
}

// HunkBytes is the logical (decompressed) size of every hunk.
func (m *HunkMap) HunkBytes() uint32 { return m.hunkBytes }

// NumHunks is the total hunk count.
func (m *HunkMap) NumHunks() uint32 { return m.header.NumHunks() }

// ReadHunk returns the decompressed contents of hunk index.
func (m *HunkMap) ReadHunk(index uint32) ([]byte, error) {
	if index >= m.NumHunks() {
		return nil, fmt.Errorf("chd: hunk %d out of range (%d total)", index, m.NumHunks())
	}

	offset := int64(v5HeaderLen) + int64(index)*int64(m.hunkBytes)
	raw := make([]byte, m.hunkBytes)
	n, err := m.r.ReadAt(raw, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("chd: read hunk %d: %w", index, err)
	}

	dst := make([]byte, m.hunkBytes)
	if _, err := m.codec.Decompress(dst, raw[:n]); err != nil {
		return nil, fmt.Errorf("chd: decompress hunk %d: %w", index, err)
	}
	return dst, nil
}
