// Package index implements the per-swap-type Entry Index (spec component
// C4) and the refcount protocol layered over it (spec component C5).
//
// Grounded on the teacher's internal/cache entry.go/refcnt.go: entries are
// linked into an intrusive doubly-linked LRU list the same way block cache
// entries are linked into their block/file lists, and refcounts are
// manipulated only while the single owning mutex is held, exactly as
// refcnt.go documents for the block cache's entries. Unlike the teacher,
// these entries are ordinary Go-GC'd structs — spec.md never asks for
// manual memory management of metadata, only of the compressed payload
// (owned by internal/cos), so there is no cgo-pointer-rules concern here.
package index

import (
	"fmt"
	"os"

	"github.com/jsenning/zcache/internal/cos"
	"github.com/jsenning/zcache/internal/invariants"
)

// Entry is the single core datum described in spec.md §3.
type Entry struct {
	Offset  uint64
	Handle  cos.Handle
	Length  uint32
	RefCnt  int32
	inLRU   bool
	lruPrev *Entry
	lruNext *Entry
}

func newEntry(offset uint64, h cos.Handle, length int) *Entry {
	e := &Entry{
		Offset: offset,
		Handle: h,
		Length: uint32(length),
		RefCnt: 1, // the index's own reference, per spec.md §4.5.
	}
	// A positive RefCnt surviving to GC means some caller holds a pin that
	// was never released (spec.md §4.5's protocol requires every
	// LookupAndPin to be matched by a Release); RefCnt<=0 is the expected
	// terminal state, including the documented -1 race of spec.md §9.
	invariants.SetFinalizer(e, func(obj interface{}) {
		e := obj.(*Entry)
		if e.RefCnt > 0 {
			fmt.Fprintf(os.Stderr, "zcache: entry at offset %d GC'd with non-zero refcount %d\n", e.Offset, e.RefCnt)
			os.Exit(1)
		}
	})
	return e
}
