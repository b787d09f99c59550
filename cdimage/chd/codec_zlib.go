package chd

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

func init() {
	RegisterCodec(TagZlib, func() Codec { return &zlibCodec{} })
	RegisterCodec(TagCDZlib, func() Codec { return &cdZlibCodec{} })
}

// zlibCodec decompresses a plain raw-deflate hunk (CHD stores raw deflate,
// not the zlib-wrapped stream despite the tag name).
type zlibCodec struct{}

func (*zlibCodec) Decompress(dst, src []byte) (int, error) {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()

	n, err := io.ReadFull(r, dst)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: zlib: %w", ErrDecompressFailed, err)
	}
	return n, nil
}

// cdZlibCodec decompresses a "cdzl" hunk: an ECC-cleared-frame bitmap,
// then a length-prefixed deflate stream of sector data, then a second
// deflate stream of subchannel data. See codec_cd.go for the shared
// sector/subchannel framing this mirrors across zlib/LZMA/FLAC.
type cdZlibCodec struct {
	hunkBytes uint32
}

func (c *cdZlibCodec) setHunkBytes(n uint32) { c.hunkBytes = n }

func (c *cdZlibCodec) Decompress(dst, src []byte) (int, error) {
	return decompressCDFrames(dst, src, cdFrameCodecs{
		decompressBase: func(d, s []byte) (int, error) {
			r := flate.NewReader(bytes.NewReader(s))
			defer r.Close()
			n, err := io.ReadFull(r, d)
			if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return n, err
			}
			return n, nil
		},
		decompressSub: decompressSubchannelDeflate,
	})
}
