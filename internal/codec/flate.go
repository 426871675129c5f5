package codec

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/flate"
)

func init() {
	Register(flateCodec{})
}

// flateCodec wraps klauspost/compress/flate, a faster pure-Go reimplementation
// of DEFLATE. Registered unconditionally alongside snappy to give the
// registry more than one pure-Go option, matching the spirit of the
// original's compile-time choice between lz4 and lzo.
type flateCodec struct{}

func (flateCodec) Name() string { return "flate" }

func (flateCodec) Compress(dst, src []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dst[:0])
	w, err := flate.NewWriter(buf, flate.BestSpeed)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(src); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (flateCodec) Decompress(dst, src []byte) error {
	r := flate.NewReader(bytes.NewReader(src))
	defer r.Close()
	n, err := io.ReadFull(r, dst)
	if err != nil {
		return err
	}
	if n != len(dst) {
		return errDecompressLength(n, len(dst))
	}
	return nil
}
