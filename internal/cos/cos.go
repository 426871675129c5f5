// Package cos implements the Compressed Object Store (spec component C1):
// a per-swap-type allocator of variable-sized compressed blobs, backed by
// fixed-size pages drawn from a shared pagepool.Pool.
//
// Design notes §9 suggests an index-plus-generation-into-a-slab for the
// moved-by-owner LRU; the same shape is reused here for handle stability.
// A compressed object's length is bounded by the admission ratio check
// (spec.md §4.6 step 4: compressed_bytes must be at most
// max_compression_ratio% of a page), so unlike zsmalloc, which packs many
// sub-page objects per page, one object always fits in exactly one page
// here. That lets the allocator be a flat slot table instead of a
// size-classed sub-page packer, while preserving the handle/lifetime
// contract spec.md §4.1 and §3 invariant 5 require.
package cos

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/jsenning/zcache/internal/pagepool"
)

// Handle is an opaque, stable token identifying a compressed blob. The zero
// Handle is never valid.
type Handle struct {
	slot uint32
	gen  uint32
}

type slot struct {
	page []byte
	size int
	gen  uint32
	live bool
}

// Store is one swap type's compressed object allocator. Instances are
// confined to their owning Index; there are no cross-instance guarantees
// (spec.md §4.1).
type Store struct {
	pool *pagepool.Pool

	mu       sync.Mutex
	slots    []slot
	freelist []uint32
}

// New creates a Store drawing pages from pool.
func New(pool *pagepool.Pool) *Store {
	return &Store{pool: pool}
}

// Alloc reserves storage for size compressed bytes and returns a handle to
// it, or an error (wrapping pagepool.ErrPoolLimitExceeded) if the shared
// page pool is at its ceiling.
func (s *Store) Alloc(size int) (Handle, error) {
	if size <= 0 || size > pagepool.PageSize {
		return Handle{}, errors.AssertionFailedf("cos: invalid alloc size %d", size)
	}
	page, err := s.pool.Get()
	if err != nil {
		return Handle{}, errors.Wrap(err, "cos: alloc")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.freelist); n > 0 {
		idx := s.freelist[n-1]
		s.freelist = s.freelist[:n-1]
		sl := &s.slots[idx]
		sl.page = page
		sl.size = size
		sl.live = true
		return Handle{slot: idx, gen: sl.gen}, nil
	}

	idx := uint32(len(s.slots))
	s.slots = append(s.slots, slot{page: page, size: size, gen: 0, live: true})
	return Handle{slot: idx, gen: 0}, nil
}

// Free releases the storage named by h, returning its backing page to the
// pool. h must not be used again afterward.
func (s *Store) Free(h Handle) {
	s.mu.Lock()
	page := s.validateLocked(h, "free")
	sl := &s.slots[h.slot]
	sl.page = nil
	sl.live = false
	sl.gen++
	s.freelist = append(s.freelist, h.slot)
	s.mu.Unlock()

	s.pool.Put(page)
}

// MapRead returns a read-only view of the bytes named by h. Mirroring the
// original zs_map_object semantics, the caller must not block between
// MapRead/MapWrite and the matching Unmap: in a real kernel these windows
// pin the page in a non-sleepable region. This package does not and cannot
// enforce that in pure Go; it is a documented caller contract, and no caller
// checks it at run time.
func (s *Store) MapRead(h Handle) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	page := s.validateLocked(h, "map_read")
	sl := &s.slots[h.slot]
	return page[:sl.size]
}

// MapWrite returns a write-only view of the bytes named by h, sized to the
// length passed to Alloc.
func (s *Store) MapWrite(h Handle) []byte {
	return s.MapRead(h)
}

// Unmap ends a mapping window. It is a no-op here (see MapRead) but is kept
// as an explicit call so the pin/unpin discipline is visible at call sites
// and can be made to do something in an invariants build later.
func (s *Store) Unmap(Handle) {}

// Len returns the byte length recorded for h at Alloc time.
func (s *Store) Len(h Handle) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.validateLocked(h, "len")
	return s.slots[h.slot].size
}

func (s *Store) validateLocked(h Handle, op string) []byte {
	if int(h.slot) >= len(s.slots) {
		panic(errors.AssertionFailedf("cos: %s of out-of-range handle", op))
	}
	sl := &s.slots[h.slot]
	if !sl.live || sl.gen != h.gen {
		panic(errors.AssertionFailedf("cos: %s of freed or stale handle", op))
	}
	return sl.page
}

// Close frees every live slot's page back to the pool. Used by
// invalidate_area (spec.md §4.8) under the caller's documented exclusion.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.slots {
		if s.slots[i].live {
			s.pool.Put(s.slots[i].page)
			s.slots[i].live = false
			s.slots[i].page = nil
		}
	}
	s.slots = nil
	s.freelist = nil
}
