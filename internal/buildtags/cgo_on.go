//go:build cgo

package buildtags

// Cgo is true if the binary was built with cgo support, which gates
// whether the cgo-backed zstd codec can be registered.
const Cgo = true
