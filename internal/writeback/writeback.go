// Package writeback implements the Writeback Engine (spec component C9):
// it dequeues entries from an Index's LRU, decompresses them into a
// host-supplied swap-cache page, submits the page, and reconciles refcounts
// right after submission; the host's asynchronous completion only releases
// the in-flight slot.
//
// Grounded on the teacher's internal/cache read_shard.go for the shape of a
// bounded, lock-released blocking window around an external I/O call, and on
// golang.org/x/sync/semaphore's own doc example for bounding concurrent
// outstanding work without a dedicated counting goroutine.
package writeback

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"golang.org/x/sync/semaphore"

	zcacheerrors "github.com/jsenning/zcache/errors"
	"github.com/jsenning/zcache/internal/codec"
	"github.com/jsenning/zcache/internal/index"
)

// PageOutcome is the host's answer to a swap-cache page request, per
// spec.md §4.9 step 3 / §6's "opaque swap-cache page lookup/allocator
// returning one of {found-existing, newly-allocated-locked, out-of-memory}".
type PageOutcome int

const (
	PageOutOfMemory PageOutcome = iota
	PageFoundExisting
	PageNewLocked
)

// Page is the host-owned destination buffer handed back by a
// PageNewLocked outcome. It must be exactly one page long.
type Page interface {
	// Bytes returns the page's backing storage for the writeback engine to
	// decompress into.
	Bytes() []byte
	// MarkUpToDate and MarkReclaim flag the page per spec.md §4.9 step 3.
	// MarkReclaim is called exactly once, per spec.md §9's redesign note
	// that the original calls it twice in succession.
	MarkUpToDate()
	MarkReclaim()
}

// Host is the set of callbacks the Writeback Engine needs from the swap
// subsystem that embeds this cache, per spec.md §6.
type Host interface {
	// SwapCachePage returns the page to decompress into for (swapType,
	// offset), or PageOutOfMemory if none could be allocated.
	SwapCachePage(swapType uint32, offset uint64) (Page, PageOutcome)
	// WritePage submits page asynchronously to the real swap device. done
	// is called exactly once, from any goroutine, when the write completes
	// (successfully or not); the Writeback Engine uses it only to release
	// the in-flight semaphore slot, so its argument carries no status.
	WritePage(page Page, done func())
}

// Options configures a Writeback Engine instance, exposing spec.md §9's
// in-flight ceiling as a tunable with its documented default (64). The
// batch size is not an Engine option; callers pass it to Batch as n.
type Options struct {
	MaxOutstanding int64
}

// DefaultOptions returns the spec-documented defaults.
func DefaultOptions() Options {
	return Options{MaxOutstanding: 64}
}

// Engine drives writeback_batch for a single Index. One Engine is created
// per swap type, sharing nothing with other types except, conceptually, the
// host's global in-flight accounting — here realized as a per-Engine
// semaphore since each Index already has an independent COS and the spec
// names no cross-type writeback interaction.
type Engine struct {
	host        Host
	sem         *semaphore.Weighted
	codec       codec.Codec
	outstanding atomic.Int64
}

// New creates a Writeback Engine for one swap type, using c to decompress
// COS blobs and host to obtain pages and submit them.
func New(host Host, c codec.Codec, opts Options) *Engine {
	if opts.MaxOutstanding <= 0 {
		opts.MaxOutstanding = DefaultOptions().MaxOutstanding
	}
	return &Engine{
		host:  host,
		sem:   semaphore.NewWeighted(opts.MaxOutstanding),
		codec: c,
	}
}

// Batch runs writeback_batch(ix, n) -> freedCount, per spec.md §4.9.
func (e *Engine) Batch(ix *index.Index, swapType uint32, n int) (freedCount int) {
	for i := 0; i < n; i++ {
		if !e.sem.TryAcquire(1) {
			// Step 1: global in-flight ceiling reached. Stop the batch; we
			// did not acquire, so there is nothing to release here.
			return freedCount
		}

		ent, ok := ix.PopLRUHeadAndPin()
		if !ok {
			e.sem.Release(1)
			return freedCount
		}

		page, outcome := e.host.SwapCachePage(swapType, ent.Offset)
		switch outcome {
		case PageOutOfMemory:
			ix.ReinsertOrphaned(ent)
			e.sem.Release(1)
			return freedCount

		case PageFoundExisting:
			ix.ReinsertSkipped(ent)
			e.sem.Release(1)
			continue

		case PageNewLocked:
			blob := ix.COS().MapRead(ent.Handle)
			if err := e.codec.Decompress(page.Bytes(), blob); err != nil {
				// Class-3 invariant violation per spec.md §7: a blob
				// produced by our own compressor from a full page must
				// always decompress back to page size. Any deviation
				// implies memory corruption; crash rather than write
				// garbage to the real swap device.
				panic(zcacheerrors.InvariantError{Err: errors.Wrap(err, "writeback: decompress invariant violated")})
			}
			ix.COS().Unmap(ent.Handle)
			page.MarkUpToDate()
			page.MarkReclaim()
			e.outstanding.Add(1)
			e.host.WritePage(page, func() {
				e.outstanding.Add(-1)
				e.sem.Release(1)
			})

			switch ix.ReconcileWriteback(ent, true) {
			case index.OutcomeFreed:
				freedCount++
			case index.OutcomeKept, index.OutcomeLoadRacing:
			}
		}
	}
	return freedCount
}

// Outstanding reports the number of writes currently submitted to the host
// and awaiting completion, for the Observability surface's "outstanding
// writebacks" counter (spec.md §6).
func (e *Engine) Outstanding() int64 {
	return e.outstanding.Load()
}
