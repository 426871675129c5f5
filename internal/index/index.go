package index

import (
	"sync"

	"github.com/cockroachdb/swiss"

	"github.com/jsenning/zcache/internal/cos"
	"github.com/jsenning/zcache/internal/invariants"
)

// NewEntry allocates an Entry record with the index's own reference already
// held (spec.md §4.5: "An entry starts with refcount = 1 (the index's own
// reference)"). It is not yet visible to any Index until Publish succeeds.
func NewEntry(offset uint64, h cos.Handle, length int) *Entry {
	return newEntry(offset, h, length)
}

// WritebackOutcome is the result of reconciling an entry's refcount after a
// writeback attempt, enumerating spec.md §4.9 step 5's four cases.
type WritebackOutcome int

const (
	// OutcomeLoadRacing: writeback failed and a concurrent load is in
	// progress; the load will re-add the entry to the LRU.
	OutcomeLoadRacing WritebackOutcome = iota
	// OutcomeKept: writeback failed, no concurrent load; the entry was
	// re-added to the LRU tail and remains live.
	OutcomeKept
	// OutcomeFreed: the entry was freed, either because writeback succeeded
	// (refcount reached 0) or because an invalidate raced during writeback
	// (refcount reached -1).
	OutcomeFreed
)

// Index is the per-swap-type structure described in spec.md §3-§4.4: an
// offset-keyed map of live entries, an approximate-LRU list, a single mutex
// protecting both (and every entry's refcount), and the swap type's private
// Compressed Object Store.
type Index struct {
	Type uint32
	cos  *cos.Store

	mu       sync.Mutex
	m        swiss.Map[uint64, *Entry]
	lruHead  *Entry // least recently used; writeback dequeues from here
	lruTail  *Entry // most recently used; new and reinserted entries go here
}

// New creates an Index for the given swap type, backed by store for
// compressed object allocation.
func New(swapType uint32, store *cos.Store) *Index {
	ix := &Index{Type: swapType, cos: store}
	ix.m.Init(16)
	return ix
}

// COS returns the Index's private Compressed Object Store, for callers
// (the admission path) that need to allocate/map/free compressed blobs
// directly.
func (ix *Index) COS() *cos.Store { return ix.cos }

// get increments e's refcount. Must be called with ix.mu held.
func (ix *Index) get(e *Entry) {
	if invariants.Sometimes(10) && e.RefCnt <= 0 {
		panic("zcache: get on entry with non-positive refcount")
	}
	e.RefCnt++
}

// put decrements e's refcount and returns the new value. Must be called
// with ix.mu held.
func (ix *Index) put(e *Entry) int32 {
	e.RefCnt--
	return e.RefCnt
}

func (ix *Index) lruUnlink(e *Entry) {
	if !e.inLRU {
		return
	}
	if e.lruPrev != nil {
		e.lruPrev.lruNext = e.lruNext
	} else {
		ix.lruHead = e.lruNext
	}
	if e.lruNext != nil {
		e.lruNext.lruPrev = e.lruPrev
	} else {
		ix.lruTail = e.lruPrev
	}
	e.lruPrev, e.lruNext, e.inLRU = nil, nil, false
}

func (ix *Index) lruPushTail(e *Entry) {
	if e.inLRU {
		ix.lruUnlink(e)
	}
	e.lruPrev = ix.lruTail
	e.lruNext = nil
	if ix.lruTail != nil {
		ix.lruTail.lruNext = e
	} else {
		ix.lruHead = e
	}
	ix.lruTail = e
	e.inLRU = true
}

func (ix *Index) lruPopHead() (*Entry, bool) {
	e := ix.lruHead
	if e == nil {
		return nil, false
	}
	ix.lruUnlink(e)
	return e, true
}

// Publish inserts e keyed by e.Offset, replacing and freeing any existing
// entry at that offset (spec.md §4.6 step 8, §8 P7). The whole
// duplicate-replace-then-insert sequence, including freeing a fully
// dereferenced duplicate, happens under one critical section, matching the
// original driver's zswap_frontswap_store.
func (ix *Index) Publish(e *Entry) (replacedDuplicate bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for {
		old, exists := ix.m.Get(e.Offset)
		if !exists {
			break
		}
		replacedDuplicate = true
		ix.m.Delete(old.Offset)
		ix.lruUnlink(old)
		if ix.put(old) == 0 {
			ix.cos.Free(old.Handle)
		}
	}
	ix.m.Put(e.Offset, e)
	ix.lruPushTail(e)
	return replacedDuplicate
}

// LookupAndPin looks up offset, taking a second reference and removing the
// entry from the LRU (while keeping it in the map) on hit — the load path's
// preparation to release the lock and decompress (spec.md §4.7).
func (ix *Index) LookupAndPin(offset uint64) (*Entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.m.Get(offset)
	if !ok {
		return nil, false
	}
	ix.get(e)
	ix.lruUnlink(e)
	return e, true
}

// ReleaseAfterLoad drops the reference taken by LookupAndPin. If the entry
// is still referenced it is reinserted at the LRU tail. If it reaches 0 it
// was orphaned by a racing invalidate (which already removed it from the
// map); this method frees it and reports freed=true, mirroring spec.md
// §4.7's "release the lock, free COS and entry, return ok anyway".
func (ix *Index) ReleaseAfterLoad(e *Entry) (freed bool) {
	ix.mu.Lock()
	rc := ix.put(e)
	if rc > 0 {
		ix.lruPushTail(e)
		ix.mu.Unlock()
		return false
	}
	ix.mu.Unlock()
	ix.cos.Free(e.Handle)
	return true
}

// InvalidatePage removes offset's entry, if present, honoring the refcount
// protocol (spec.md §4.8, §8 P2). existed reports whether an entry was
// found; freed reports whether this call freed it immediately (no
// concurrent writeback/load was holding a reference).
func (ix *Index) InvalidatePage(offset uint64) (existed, freed bool) {
	ix.mu.Lock()
	e, ok := ix.m.Get(offset)
	if !ok {
		ix.mu.Unlock()
		return false, false
	}
	ix.m.Delete(offset)
	ix.lruUnlink(e)
	rc := ix.put(e)
	ix.mu.Unlock()
	if rc == 0 {
		ix.cos.Free(e.Handle)
		return true, true
	}
	return true, false
}

// InvalidateArea drains every live entry, freeing its compressed storage,
// and reinitializes the map and LRU (spec.md §4.8, §8 P3). The caller must
// hold the host's swap-device teardown exclusion: no concurrent
// store/load/invalidate may race with this call.
func (ix *Index) InvalidateArea() (freedCount int) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.m.All(func(_ uint64, e *Entry) bool {
		ix.put(e) // drop the index's own reference; no other holder can exist here
		ix.cos.Free(e.Handle)
		freedCount++
		return true
	})
	ix.m.Close()
	ix.m.Init(16)
	ix.lruHead, ix.lruTail = nil, nil
	return freedCount
}

// PopLRUHeadAndPin dequeues the least-recently-used entry and takes a
// second reference on it for the writeback engine, per spec.md §4.9 step 2.
func (ix *Index) PopLRUHeadAndPin() (*Entry, bool) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	e, ok := ix.lruPopHead()
	if !ok {
		return nil, false
	}
	ix.get(e)
	return e, true
}

// ReinsertOrphaned drops the writeback reference without touching LRU
// membership, for the "host allocation failure" outcome of spec.md §4.9
// step 3: the entry is left orphaned from the LRU but remains in the map —
// unless a racing invalidate has already dropped the index's own reference,
// in which case this was the last reference and the entry must be freed
// here, the same as the other three reconciliation outcomes
// (_examples/original_source/mm/zswap.c's zswap_writeback_entries applies
// the refcount==0/==-1 check uniformly across all three SwapCachePage
// outcomes, not only the successful-submission one).
func (ix *Index) ReinsertOrphaned(e *Entry) {
	ix.mu.Lock()
	rc := ix.put(e)
	if rc > 0 {
		ix.mu.Unlock()
		return
	}
	ix.freeLocked(e)
	ix.mu.Unlock()
	ix.cos.Free(e.Handle)
}

// ReinsertSkipped drops the writeback reference and re-adds e to the LRU
// tail, for the "page already present in swap cache" outcome of spec.md
// §4.9 step 3 — unless a racing invalidate has already dropped the index's
// own reference, in which case the entry must be freed instead of
// reinserted (see ReinsertOrphaned).
func (ix *Index) ReinsertSkipped(e *Entry) {
	ix.mu.Lock()
	rc := ix.put(e)
	if rc > 0 {
		ix.lruPushTail(e)
		ix.mu.Unlock()
		return
	}
	ix.freeLocked(e)
	ix.mu.Unlock()
	ix.cos.Free(e.Handle)
}

// freeLocked removes e from the map, if it is still the entry registered
// under its offset (an invalidate that raced in may already have removed
// it). Must be called with ix.mu held; the COS handle itself is freed by
// the caller after unlocking, matching ReconcileWriteback's convention.
func (ix *Index) freeLocked(e *Entry) {
	if cur, ok := ix.m.Get(e.Offset); ok && cur == e {
		ix.m.Delete(e.Offset)
	}
}

// ReconcileWriteback drops the writeback's own reference, and additionally
// the index's reference if submitted is true (the page was durably handed
// to the host's writepage routine), then interprets the resulting refcount
// per the four cases of spec.md §4.9 step 5.
func (ix *Index) ReconcileWriteback(e *Entry, submitted bool) WritebackOutcome {
	ix.mu.Lock()
	rc := ix.put(e)
	if submitted {
		rc = ix.put(e)
	}
	switch rc {
	case 2:
		ix.mu.Unlock()
		return OutcomeLoadRacing
	case 1:
		ix.lruPushTail(e)
		ix.mu.Unlock()
		return OutcomeKept
	case 0:
		ix.freeLocked(e)
		ix.mu.Unlock()
		ix.cos.Free(e.Handle)
		return OutcomeFreed
	default: // -1: invalidate raced during writeback and already freed the map slot
		ix.mu.Unlock()
		ix.cos.Free(e.Handle)
		return OutcomeFreed
	}
}

// Len reports the number of live entries, for Metrics.
func (ix *Index) Len() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.m.Len()
}

// Close tears down the Index's map and COS store. Called only when the
// owning swap type is torn down by the host (spec.md §3).
func (ix *Index) Close() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.m.Close()
	ix.cos.Close()
}
