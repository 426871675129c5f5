package zcache

import "github.com/jsenning/zcache/internal/writeback"

// Host is everything the cache engine consumes from the swap subsystem that
// embeds it, per spec.md §6's "the core also consumes from the host".
type Host interface {
	writeback.Host
}

// AnonymousAsserter is an optional Host extension implementing spec.md §9's
// supplemented sanity check: "a host-side sanity check, not part of the
// core contract". If a Host also implements this interface, Store consults
// it once, in invariants builds only, and calls Logger.Fatalf on a false
// return.
type AnonymousAsserter interface {
	AssertAnonymous(swapType uint32, offset uint64) bool
}
