// Package codec provides the pluggable compressor registry consumed by the
// admission/store path. The cache engine treats compression as a pure
// byte-buffer transform (spec.md §1, §4.1) — this package supplies the
// concrete transforms, boot-time selection, and the availability-based
// fallback spec.md §6 calls for ("codec name with fallback to a built-in
// default if the requested codec is unavailable").
package codec

import (
	"fmt"
	"sync"

	"github.com/cockroachdb/errors"
)

// Codec compresses and decompresses whole pages into/out of a
// caller-supplied destination buffer. Implementations are not all
// allocation-free: the flate codec builds a new compressor or decompressor
// on every call.
type Codec interface {
	// Name identifies the codec, e.g. for Metrics reporting.
	Name() string
	// Compress appends the compressed form of src to dst[:0]'s capacity and
	// returns the resulting slice. An error here is a codec failure (spec.md
	// §4.6 step 3, rejection reason "invalid").
	Compress(dst, src []byte) ([]byte, error)
	// Decompress writes the decompressed form of src into dst, which must be
	// exactly the original uncompressed length. Any error, or a decompressed
	// length different from len(dst), is an invariant violation per spec.md
	// §7 class 3 — callers treat it as fatal, not recoverable.
	Decompress(dst, src []byte) error
}

var (
	registryMu sync.RWMutex
	registry   = map[string]Codec{}
)

// Register adds a codec to the registry under its own Name(). Codec
// implementations call this from an init func, mirroring how
// database/sql drivers register themselves.
func Register(c Codec) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[c.Name()] = c
}

// DefaultName is the codec used when no preference is configured and when a
// configured preference is unavailable, matching ZSWAP_COMPRESSOR_DEFAULT's
// role in the original driver.
const DefaultName = "snappy"

// Lookup resolves name to a registered Codec, falling back to DefaultName
// when it is unavailable (not registered — e.g. the cgo-gated zstd codec in
// a cgo-free build). The second return value reports whether that fallback
// occurred, so the caller can log it once the way the original driver logs
// "%s compressor not available" — but an empty name ("no preference
// configured") is not itself a fallback, so Lookup("") reports
// usedFallback=false even though it resolves to DefaultName.
func Lookup(name string) (c Codec, usedFallback bool, err error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	if name != "" {
		if c, ok := registry[name]; ok {
			return c, false, nil
		}
	}
	c, ok := registry[DefaultName]
	if !ok {
		return nil, false, errors.Newf("codec: no codec registered, not even default %q", DefaultName)
	}
	// An empty name means "no preference configured", which is not the same
	// condition as "the requested codec is unavailable" — only the latter
	// is a fallback.
	return c, name != "" && name != DefaultName, nil
}

// Names returns the currently registered codec names, sorted for
// deterministic CLI/metrics output.
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	// Small N; insertion sort avoids pulling in "sort" for a handful of
	// entries (map iteration above yields them in no particular order).
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j-1] > names[j]; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

func errDecompressLength(got, want int) error {
	return errors.Wrap(
		errors.AssertionFailedf("codec: decompressed length %d != expected %d", got, want),
		fmt.Sprintf("want %d bytes", want),
	)
}
