package chd

import "errors"

// ErrDecompressFailed wraps any underlying codec failure.
var ErrDecompressFailed = errors.New("chd: decompress failed")

// Codec decompresses one hunk's worth of compressed bytes into dst, which
// is always exactly the header's HunkBytes long, and reports how many
// bytes of dst were filled.
type Codec interface {
	Decompress(dst, src []byte) (int, error)
}

// Tag identifies one of the codec FourCCs a CHD header's compressors[4]
// array can name.
type Tag string

// Recognized codec tags, named exactly as they appear in a CHD v5 header.
const (
	TagNone   Tag = "none"
	TagZlib   Tag = "zlib"
	TagLZMA   Tag = "lzma"
	TagFLAC   Tag = "flac"
	TagCDZlib Tag = "cdzl"
	TagCDLZMA Tag = "cdlz"
	TagCDFLAC Tag = "cdfl"
)

var registry = map[Tag]func() Codec{}

// RegisterCodec adds a codec constructor to the registry, called from each
// codec file's init().
func RegisterCodec(tag Tag, ctor func() Codec) {
	registry[tag] = ctor
}

func init() {
	RegisterCodec(TagNone, func() Codec { return &noneCodec{} })
}

// newCodec instantiates the codec named by tag, or reports it unsupported.
func newCodec(tag Tag, hunkBytes uint32) (Codec, error) {
	ctor, ok := registry[tag]
	if !ok {
		return nil, errors.New("chd: unsupported codec " + string(tag))
	}
	c := ctor()
	if withHunk, ok := c.(interface{ setHunkBytes(uint32) }); ok {
		withHunk.setHunkBytes(hunkBytes)
	}
	return c, nil
}

// noneCodec is the identity codec: hunk data is stored uncompressed.
type noneCodec struct{}

func (*noneCodec) Decompress(dst, src []byte) (int, error) {
	n := copy(dst, src)
	return n, nil
}
