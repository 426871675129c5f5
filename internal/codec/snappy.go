package codec

import "github.com/golang/snappy"

func init() {
	Register(snappyCodec{})
}

// snappyCodec wraps github.com/golang/snappy, a pure-Go codec with no cgo
// dependency, making it this package's DefaultName so a store is always
// possible regardless of build configuration.
type snappyCodec struct{}

func (snappyCodec) Name() string { return "snappy" }

func (snappyCodec) Compress(dst, src []byte) ([]byte, error) {
	return snappy.Encode(dst[:0], src), nil
}

func (snappyCodec) Decompress(dst, src []byte) error {
	out, err := snappy.Decode(dst[:0], src)
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
