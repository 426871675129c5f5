// Package invariants provides cheap, build-tag-gated assertion and leak
// detection helpers shared by the cache engine packages. Nothing in this
// package does anything observable unless the binary is built with the
// "invariants" or "race" tag, or (for SetFinalizer only) the "tracing" tag.
package invariants

import (
	"math/rand/v2"
	"runtime"

	"github.com/jsenning/zcache/internal/buildtags"
)

// Enabled is true if we were built with the "invariants" or "race" build tag.
const Enabled = buildtags.Invariants || buildtags.Race

// RaceEnabled is true if we were built with the "race" build tag.
const RaceEnabled = buildtags.Race

// UseFinalizers is true if object-lifetime assertions should place a GC
// finalizer on entries/handles to catch leaks. Excluded under race builds:
// historically the race detector has had finalizer-related bugs.
const UseFinalizers = !RaceEnabled && (Enabled || buildtags.Tracing)

// Sometimes returns true percent% of the time when invariants are enabled,
// and always false otherwise. Used to inject rare extra validation on hot
// paths without paying for it in production builds.
func Sometimes(percent int) bool {
	return Enabled && rand.IntN(100) < percent
}

// SetFinalizer is a wrapper around runtime.SetFinalizer that is a no-op
// unless UseFinalizers is true.
func SetFinalizer(obj, finalizer interface{}) {
	if UseFinalizers {
		runtime.SetFinalizer(obj, finalizer)
	}
}
