//go:build cgo

package codec

import "github.com/DataDog/zstd"

func init() {
	Register(zstdCodec{})
}

// zstdCodec wraps the cgo-backed github.com/DataDog/zstd. It is only
// registered in cgo builds; internal/pagepool and the rest of this module
// never depend on it being present, mirroring the original driver's
// crypto_has_comp probe and fallback to ZSWAP_COMPRESSOR_DEFAULT when a
// requested compressor isn't compiled in.
type zstdCodec struct{}

func (zstdCodec) Name() string { return "zstd" }

func (zstdCodec) Compress(dst, src []byte) ([]byte, error) {
	return zstd.CompressLevel(dst[:0], src, zstd.BestSpeed)
}

func (zstdCodec) Decompress(dst, src []byte) error {
	out, err := zstd.Decompress(dst[:0], src)
	if err != nil {
		return err
	}
	if len(out) != len(dst) {
		return errDecompressLength(len(out), len(dst))
	}
	if len(out) > 0 && &out[0] != &dst[0] {
		copy(dst, out)
	}
	return nil
}
