package writeback

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jsenning/zcache/internal/codec"
	"github.com/jsenning/zcache/internal/cos"
	"github.com/jsenning/zcache/internal/index"
	"github.com/jsenning/zcache/internal/pagepool"
)

type testPage struct {
	buf []byte
}

func (p *testPage) Bytes() []byte { return p.buf }
func (p *testPage) MarkUpToDate() {}
func (p *testPage) MarkReclaim()  {}

// scriptedHost returns the queued outcome for each SwapCachePage call in
// order, standing in for a host whose swap-cache page allocator is
// momentarily out of memory or already servicing a concurrent fault
// (spec.md §4.9 step 3's three outcomes). Once the script is used up it
// answers PageFoundExisting, so a batch that keeps revisiting a skipped
// entry sees it as still being serviced.
type scriptedHost struct {
	outcomes []PageOutcome
	writes   int
}

func (h *scriptedHost) SwapCachePage(swapType uint32, offset uint64) (Page, PageOutcome) {
	if len(h.outcomes) == 0 {
		return nil, PageFoundExisting
	}
	o := h.outcomes[0]
	h.outcomes = h.outcomes[1:]
	if o == PageNewLocked {
		return &testPage{buf: make([]byte, pagepool.PageSize)}, o
	}
	return nil, o
}

func (h *scriptedHost) WritePage(page Page, done func()) {
	h.writes++
	done()
}

func newTestIndex(t *testing.T) *index.Index {
	t.Helper()
	pool := pagepool.New(1<<20, 100)
	store := cos.New(pool)
	return index.New(0, store)
}

func testCodec(t *testing.T) codec.Codec {
	t.Helper()
	c, _, err := codec.Lookup("snappy")
	require.NoError(t, err)
	return c
}

func storeEntry(t *testing.T, ix *index.Index, offset uint64) {
	t.Helper()
	src := make([]byte, pagepool.PageSize)
	compressed, err := testCodec(t).Compress(make([]byte, 2*pagepool.PageSize), src)
	require.NoError(t, err)
	h, err := ix.COS().Alloc(len(compressed))
	require.NoError(t, err)
	w := ix.COS().MapWrite(h)
	copy(w, compressed)
	ix.COS().Unmap(h)
	ix.Publish(index.NewEntry(offset, h, len(compressed)))
}

// TestBatchOutOfMemoryLeavesEntryOrphanedFromLRU exercises spec.md §4.9 step
// 3's first outcome: the host's swap-cache page allocator fails, so the
// entry must stay in the map but drop out of the LRU, and the batch stops
// immediately (the original zswap_writeback_entries returns -ENOMEM here).
func TestBatchOutOfMemoryLeavesEntryOrphanedFromLRU(t *testing.T) {
	ix := newTestIndex(t)
	storeEntry(t, ix, 1)
	storeEntry(t, ix, 2)

	host := &scriptedHost{outcomes: []PageOutcome{PageOutOfMemory}}
	e := New(host, testCodec(t), DefaultOptions())

	freed := e.Batch(ix, 0, 16)
	require.Equal(t, 0, freed)
	require.Equal(t, 2, ix.Len(), "both entries remain live in the map")

	// The dequeued entry (offset 1, the LRU head) was left orphaned from
	// the LRU; only offset 2 is still poppable.
	ent, ok := ix.PopLRUHeadAndPin()
	require.True(t, ok)
	require.Equal(t, uint64(2), ent.Offset)
	_, ok = ix.PopLRUHeadAndPin()
	require.False(t, ok)
}

// TestBatchFoundExistingReinsertsAtTailAndContinues exercises spec.md §4.9
// step 3's second outcome: a concurrent fault is already servicing the
// page, so the entry is treated as a skip — reinserted at the LRU tail —
// rather than written back, and the batch keeps going.
func TestBatchFoundExistingReinsertsAtTailAndContinues(t *testing.T) {
	ix := newTestIndex(t)
	storeEntry(t, ix, 1)
	storeEntry(t, ix, 2)

	host := &scriptedHost{outcomes: []PageOutcome{PageFoundExisting, PageNewLocked}}
	e := New(host, testCodec(t), DefaultOptions())

	freed := e.Batch(ix, 0, 16)
	require.Equal(t, 1, freed, "offset 2 was written back successfully")
	require.Equal(t, 1, ix.Len(), "offset 1 remains, reinserted after the skip")
	require.Equal(t, 1, host.writes)

	ent, ok := ix.PopLRUHeadAndPin()
	require.True(t, ok)
	require.Equal(t, uint64(1), ent.Offset)
}

// racingHost invalidates offset 1 the moment SwapCachePage is asked for it,
// simulating invalidate_page racing in while the writeback engine is
// (conceptually) blocked there, then reports outcome.
type racingHost struct {
	ix      *index.Index
	outcome PageOutcome
}

func (h *racingHost) SwapCachePage(swapType uint32, offset uint64) (Page, PageOutcome) {
	h.ix.InvalidatePage(offset)
	if h.outcome == PageNewLocked {
		return &testPage{buf: make([]byte, pagepool.PageSize)}, h.outcome
	}
	return nil, h.outcome
}

func (h *racingHost) WritePage(page Page, done func()) { done() }

// TestBatchOutOfMemoryFreesEntryWhenInvalidateRacedIn covers the same race
// ReinsertOrphaned guards against directly: an invalidate_page removes the
// entry and drops the index's reference while the writeback engine is
// blocked in SwapCachePage, so when SwapCachePage finally fails the
// writeback's own put must observe refcount 0 and free rather than leak.
func TestBatchOutOfMemoryFreesEntryWhenInvalidateRacedIn(t *testing.T) {
	ix := newTestIndex(t)
	storeEntry(t, ix, 1)

	host := &racingHost{ix: ix, outcome: PageOutOfMemory}
	e := New(host, testCodec(t), DefaultOptions())

	freed := e.Batch(ix, 0, 16)
	require.Equal(t, 0, freed, "ReinsertOrphaned frees silently; Batch only counts OutcomeFreed from ReconcileWriteback")
	require.Equal(t, 0, ix.Len(), "the raced invalidate plus the writeback's own put must free, not leak, the entry")
}
