package chd

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/ulikunitz/xz/lzma"
)

func init() {
	RegisterCodec(TagLZMA, func() Codec { return &lzmaCodec{} })
	RegisterCodec(TagCDLZMA, func() Codec { return &cdLZMACodec{} })
}

// lzmaCodec decompresses a raw LZMA hunk. CHD stores a headerless LZMA
// stream; the properties the reference decoder needs are derived from the
// hunk size the same way MAME's encoder derives them, then a synthetic
// 13-byte classic-LZMA header is prepended before handing the stream to
// ulikunitz/xz/lzma (which, unlike MAME's embedded 7-zip SDK, requires one).
type lzmaCodec struct {
	hunkBytes uint32
}

func (c *lzmaCodec) setHunkBytes(n uint32) { c.hunkBytes = n }

// lzmaDictSize mirrors LzmaEncProps_Normalize's dictionary-size selection
// for MAME's level-8 encoder: the smallest 2<<i or 3<<i at least as large
// as reduceSize (here, the hunk size).
func lzmaDictSize(hunkBytes uint32) uint32 {
	for i := uint32(11); i <= 30; i++ {
		if hunkBytes <= (2 << i) {
			return 2 << i
		}
		if hunkBytes <= (3 << i) {
			return 3 << i
		}
	}
	return 1 << 26
}

func (c *lzmaCodec) Decompress(dst, src []byte) (int, error) {
	if len(src) == 0 {
		return 0, fmt.Errorf("%w: lzma: empty source", ErrDecompressFailed)
	}

	hunkBytes := c.hunkBytes
	if hunkBytes == 0 {
		hunkBytes = uint32(len(dst))
	}
	dictSize := lzmaDictSize(hunkBytes)

	const propsLcLpPb = 0x5D // lc=3, lp=0, pb=2 — MAME's fixed CHD LZMA properties

	header := make([]byte, 13)
	header[0] = propsLcLpPb
	binary.LittleEndian.PutUint32(header[1:5], dictSize)
	binary.LittleEndian.PutUint64(header[5:13], uint64(len(dst)))

	full := make([]byte, 0, 13+len(src))
	full = append(full, header...)
	full = append(full, src...)

	r, err := lzma.NewReader(bytes.NewReader(full))
	if err != nil {
		return 0, fmt.Errorf("%w: lzma init: %w", ErrDecompressFailed, err)
	}

	n, err := io.ReadFull(r, dst)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: lzma read: %w", ErrDecompressFailed, err)
	}
	return n, nil
}

// cdLZMACodec decompresses a "cdlz" hunk: sector data compressed with LZMA,
// subchannel data compressed with plain deflate.
type cdLZMACodec struct{}

func (c *cdLZMACodec) Decompress(dst, src []byte) (int, error) {
	return decompressCDFrames(dst, src, cdFrameCodecs{
		decompressBase: func(d, s []byte) (int, error) {
			inner := &lzmaCodec{hunkBytes: uint32(len(d))}
			return inner.Decompress(d, s)
		},
		decompressSub: decompressSubchannelDeflate,
	})
}
