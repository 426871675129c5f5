//go:build tracing

package buildtags

// Tracing indicates if the tracing tag is used.
//
// Its only effect is to turn on the GC-finalizer refcount leak check on
// entry index entries (see invariants.UseFinalizers).
const Tracing = true
