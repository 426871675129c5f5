// Package errors defines the typed marker this module panics with on a
// class-3 invariant violation (spec.md §7): decompression failure or a
// decompressed length mismatch. The engine always panics rather than
// returning these — see zcache.Load and internal/writeback.Engine.Batch —
// but wraps the panic value in InvariantError first so a host that wraps
// its call into this library in a recover() can use errors.As to tell
// "the cache detected memory corruption" apart from an ordinary panic.
package errors

// InvariantError wraps errors due to internal constraint violations.
type InvariantError struct {
	Err error
}

// Unwrap the wrapped descriptive error that describes the constraint that got
// violated.
func (i InvariantError) Unwrap() error {
	return i.Err
}

func (i InvariantError) Error() string {
	return i.Err.Error()
}
