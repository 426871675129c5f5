package zcache

import (
	"bytes"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jsenning/zcache/internal/writeback"
)

// testPage is a minimal writeback.Page for tests.
type testPage struct {
	buf []byte
}

func (p *testPage) Bytes() []byte { return p.buf }
func (p *testPage) MarkUpToDate() {}
func (p *testPage) MarkReclaim()  {}

// testHost is a deterministic, synchronous stand-in for the swap subsystem:
// WritePage calls done() before returning, so writeback reconciliation in
// these tests happens inline rather than racing a background goroutine.
type testHost struct {
	mu     sync.Mutex
	writes int // count of pages handed to WritePage, the real swap device stand-in
}

func newTestHost() *testHost {
	return &testHost{}
}

func (h *testHost) SwapCachePage(swapType uint32, offset uint64) (writeback.Page, writeback.PageOutcome) {
	return &testPage{buf: make([]byte, pageSizeForTest)}, writeback.PageNewLocked
}

func (h *testHost) WritePage(page writeback.Page, done func()) {
	h.mu.Lock()
	h.writes++
	h.mu.Unlock()
	done()
}

// Writes reports how many pages have been handed to WritePage so far, for
// tests and the data-driven harness that want to assert writeback actually
// submitted something to the (stand-in) real swap device.
func (h *testHost) Writes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}

const pageSizeForTest = 4096

func newTestCache(t *testing.T, host Host, opts Options) *Cache {
	t.Helper()
	if opts.TotalRAMPages == 0 {
		opts.TotalRAMPages = 1 << 20
	}
	c := New(host, opts)
	c.Init(0)
	return c
}

func compressiblePage() []byte {
	return make([]byte, pageSizeForTest) // all zero: highly compressible
}

func incompressiblePage(seed byte) []byte {
	p := make([]byte, pageSizeForTest)
	x := uint64(seed) | 1
	for i := range p {
		x ^= x << 13
		x ^= x >> 7
		x ^= x << 17
		p[i] = byte(x)
	}
	return p
}

func TestHappyPathRoundTrip(t *testing.T) {
	c := newTestCache(t, newTestHost(), Options{})
	page := compressiblePage()
	page[0] = 0xAB

	require.NoError(t, c.Store(0, 5, page))

	got := make([]byte, pageSizeForTest)
	require.True(t, c.Load(0, 5, got))
	require.True(t, bytes.Equal(page, got))
}

func TestIncompressiblePageRejectedByRatio(t *testing.T) {
	c := newTestCache(t, newTestHost(), Options{MaxCompressionRatio: 80})
	page := incompressiblePage(0x5A)

	err := c.Store(0, 1, page)
	require.Error(t, err)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, RejectRatio, rejected.Reason)

	got := make([]byte, pageSizeForTest)
	require.False(t, c.Load(0, 1, got))
}

func TestDuplicateStoreReplacesAndCounts(t *testing.T) {
	c := newTestCache(t, newTestHost(), Options{})
	a := compressiblePage()
	a[0] = 'A'
	b := compressiblePage()
	b[0] = 'B'

	require.NoError(t, c.Store(0, 5, a))
	require.NoError(t, c.Store(0, 5, b))

	got := make([]byte, pageSizeForTest)
	require.True(t, c.Load(0, 5, got))
	require.True(t, bytes.Equal(b, got))
}

func TestInvalidateDuringInFlightLoadNeverLeaksOrPanics(t *testing.T) {
	c := newTestCache(t, newTestHost(), Options{})
	p := compressiblePage()
	require.NoError(t, c.Store(0, 9, p))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		dst := make([]byte, pageSizeForTest)
		c.Load(0, 9, dst)
	}()
	go func() {
		defer wg.Done()
		c.InvalidatePage(0, 9)
	}()
	wg.Wait()

	dst := make([]byte, pageSizeForTest)
	require.False(t, c.Load(0, 9, dst))
}

func TestWritebackUnderPressureReclaimsLRUHead(t *testing.T) {
	// Ceiling = 5 pages at 100% of a 5-page "RAM".
	c := newTestCache(t, newTestHost(), Options{
		MaxPoolPercent:     100,
		TotalRAMPages:      5,
		WritebackEnabled:   true,
		WritebackBatchSize: 1,
	})

	for offset := uint64(0); offset < 5; offset++ {
		require.NoError(t, c.Store(0, offset, compressiblePage()))
	}
	require.Equal(t, int64(5), c.Stats().PoolPages)

	require.NoError(t, c.Store(0, 5, compressiblePage()))

	dst := make([]byte, pageSizeForTest)
	require.False(t, c.Load(0, 0, dst), "offset 0 was the LRU head and should have been reclaimed")
	for offset := uint64(1); offset < 5; offset++ {
		require.True(t, c.Load(0, offset, dst), "offset %d should still be cached", offset)
	}
	require.True(t, c.Load(0, 5, dst))
}

func TestInvalidateAreaWipesEverything(t *testing.T) {
	c := newTestCache(t, newTestHost(), Options{})
	for offset := uint64(0); offset < 100; offset++ {
		require.NoError(t, c.Store(0, offset, compressiblePage()))
	}
	require.Equal(t, 100, c.Stats().StoredPages)

	c.InvalidateArea(0)
	require.Equal(t, 0, c.Stats().StoredPages)

	dst := make([]byte, pageSizeForTest)
	for offset := uint64(0); offset < 100; offset++ {
		require.False(t, c.Load(0, offset, dst))
	}
}

func TestStoreToUninitializedSwapTypeIsRejected(t *testing.T) {
	c := New(newTestHost(), Options{TotalRAMPages: 1 << 20})
	err := c.Store(7, 0, compressiblePage())
	require.Error(t, err)
	var rejected *RejectedError
	require.ErrorAs(t, err, &rejected)
	require.Equal(t, RejectNoDevice, rejected.Reason)
}
