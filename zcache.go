// Package zcache implements a compressed swap cache: a component
// interposed on a virtual-memory system's swap-out path that compresses
// anonymous pages into a bounded RAM-resident pool instead of writing them
// straight to a backing swap device, decompressing on the subsequent page
// fault and avoiding the I/O round trip. When the pool fills, the engine
// decompresses the oldest entries and resumes their writeback to the real
// device, freeing capacity for fresher pages.
//
// Grounded on the teacher's top-level Cache type (cache/cache.go) for the
// overall shape of a sharded-by-key, refcounted, LRU-evicted store exposed
// as a small facade over several internal packages.
package zcache

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/redact"

	zcacheerrors "github.com/jsenning/zcache/errors"
	"github.com/jsenning/zcache/internal/codec"
	"github.com/jsenning/zcache/internal/cos"
	"github.com/jsenning/zcache/internal/index"
	"github.com/jsenning/zcache/internal/invariants"
	"github.com/jsenning/zcache/internal/pagepool"
	"github.com/jsenning/zcache/internal/scratch"
	"github.com/jsenning/zcache/internal/throttle"
	"github.com/jsenning/zcache/internal/writeback"
)

// RejectedError is returned by Store on admission failure. Reason
// identifies which of spec.md §6's rejection reasons applies; every
// RejectedError is also counted in Metrics.Rejections.
type RejectedError struct {
	Reason RejectReason
}

func (e *RejectedError) Error() string {
	return "zcache: store rejected: " + string(e.Reason)
}

// Cache is the entry point: one Cache manages every swap type registered
// with it via Init, each with its own Index, Compressed Object Store, and
// Writeback Engine, sharing a single bounded page pool and scratch-buffer
// pool (spec.md §3, §5's "shared-resource policy").
type Cache struct {
	opts    Options
	host    Host
	pool    *pagepool.Pool
	scratch *scratch.Pool
	wbThrot *throttle.Limiter
	Metrics *Metrics

	mu    sync.RWMutex
	types map[uint32]*typeState
}

type typeState struct {
	index *index.Index
	codec codec.Codec
	wb    *writeback.Engine
}

// New constructs a Cache. host supplies the swap-cache page allocator and
// async writepage routine (spec.md §6).
func New(host Host, opts Options) *Cache {
	opts.ensureDefaults()
	totalRAMPages := opts.TotalRAMPages
	if totalRAMPages <= 0 {
		totalRAMPages = pagepool.TotalRAMPages()
	}

	c := &Cache{
		opts:    opts,
		host:    host,
		pool:    pagepool.New(totalRAMPages, opts.MaxPoolPercent),
		scratch: scratch.NewPool(opts.ScratchSpareCapacity),
		wbThrot: throttle.NewLimiter(opts.WritebackTriggerRate, opts.WritebackTriggerBurst),
		types:   make(map[uint32]*typeState),
	}
	c.scratch.Seed()
	c.Metrics = NewMetrics(opts.MetricsRegisterer, c.poolPagesGauge, c.storedPagesGauge, c.outstandingGauge)
	return c
}

func (c *Cache) poolPagesGauge() float64   { return float64(c.pool.Live()) }
func (c *Cache) outstandingGauge() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, st := range c.types {
		n += st.wb.Outstanding()
	}
	return float64(n)
}
func (c *Cache) storedPagesGauge() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int
	for _, st := range c.types {
		n += st.index.Len()
	}
	return float64(n)
}

// Init lazily allocates the Index and Compressed Object Store for
// swapType, per spec.md §6: "called when a new swap device comes online,
// in a non-sleeping context... silent no-op on allocation failure (caller
// proceeds without caching)". The only failure mode in this implementation
// is the requested codec being unavailable, which falls back rather than
// failing (spec.md §6 boot-time tunable), so Init here cannot itself fail;
// it is still void-returning to preserve that contract for hosts.
func (c *Cache) Init(swapType uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.types[swapType]; ok {
		return
	}

	cd, usedFallback, err := codec.Lookup(c.opts.Compressor)
	if err != nil {
		// No codec registered at all, not even the default: every build of
		// this module registers snappy unconditionally, so this is a
		// can't-happen guarded only by the invariants build.
		if invariants.Enabled {
			panic(err)
		}
		c.opts.Logger.Infof("zcache: swap type %s: %v, caching disabled", redact.Safe(swapType), err)
		return
	}
	if usedFallback {
		c.opts.Logger.Infof("zcache: swap type %s: compressor %q unavailable, using %q",
			redact.Safe(swapType), c.opts.Compressor, cd.Name())
	}

	store := cos.New(c.pool)
	ix := index.New(swapType, store)
	wb := writeback.New(c.host, cd, writeback.Options{MaxOutstanding: c.opts.MaxOutstandingWritebacks})
	c.types[swapType] = &typeState{index: ix, codec: cd, wb: wb}
}

func (c *Cache) lookupType(t uint32) (*typeState, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	st, ok := c.types[t]
	return st, ok
}

// Store compresses page and admits it into the cache for (swapType,
// offset), implementing the admission path of spec.md §4.6. It returns nil
// on admission and a *RejectedError otherwise.
func (c *Cache) Store(swapType uint32, offset uint64, page []byte) error {
	st, ok := c.lookupType(swapType)
	if !ok {
		c.Metrics.recordReject(RejectNoDevice)
		return &RejectedError{Reason: RejectNoDevice}
	}

	if invariants.Enabled {
		if a, ok := c.host.(AnonymousAsserter); ok && !a.AssertAnonymous(swapType, offset) {
			c.opts.Logger.Fatalf("zcache: store of non-anonymous page, swap type %s offset %s", redact.Safe(swapType), redact.Safe(offset))
		}
	}

	worker := c.scratch.AcquireWorker()
	compressed, err := st.codec.Compress(worker, page)
	if err != nil {
		c.scratch.ReleaseWorker(worker)
		c.Metrics.recordReject(RejectCodecFailure)
		return &RejectedError{Reason: RejectCodecFailure}
	}

	if compressedRatioExceeded(len(compressed), len(page), c.opts.MaxCompressionRatio) {
		c.scratch.ReleaseWorker(worker)
		c.Metrics.recordReject(RejectRatio)
		return &RejectedError{Reason: RejectRatio}
	}

	handle, err := st.index.COS().Alloc(len(compressed))
	if err != nil {
		if !c.opts.WritebackEnabled {
			c.scratch.ReleaseWorker(worker)
			c.Metrics.recordReject(RejectNoSpacePre)
			return &RejectedError{Reason: RejectNoSpacePre}
		}

		spare, serr := c.scratch.BorrowSpare(compressed)
		c.scratch.ReleaseWorker(worker)
		if serr != nil {
			c.Metrics.recordReject(RejectSpareExhausted)
			return &RejectedError{Reason: RejectSpareExhausted}
		}

		// internal/throttle bounds how often a burst of concurrent stores
		// may each kick off a full writeback batch against the same Index;
		// a denied trigger is its own distinct rejection (RejectThrottled,
		// see SPEC_FULL.md's SUPPLEMENTED FEATURES) rather than falling
		// through to a retry that would fail again with nothing freed — the
		// writeback-and-retry step itself (spec.md §4.6 step 6) still runs
		// unconditionally whenever the limiter allows it.
		if !c.wbThrot.Allow() {
			c.scratch.ReturnSpare(spare)
			c.Metrics.recordReject(RejectThrottled)
			return &RejectedError{Reason: RejectThrottled}
		}
		freed := st.wb.Batch(st.index, swapType, c.opts.WritebackBatchSize)
		c.Metrics.WrittenBack.Add(float64(freed))

		handle, err = st.index.COS().Alloc(len(spare))
		if err != nil {
			c.scratch.ReturnSpare(spare)
			c.Metrics.recordReject(RejectNoSpacePost)
			return &RejectedError{Reason: RejectNoSpacePost}
		}
		c.Metrics.RecoveredByWriteback.Inc()

		dst := st.index.COS().MapWrite(handle)
		copy(dst, spare)
		st.index.COS().Unmap(handle)
		c.scratch.ReturnSpare(spare)
	} else {
		dst := st.index.COS().MapWrite(handle)
		copy(dst, compressed)
		st.index.COS().Unmap(handle)
		c.scratch.ReleaseWorker(worker)
	}

	c.Metrics.recordCompressedSize(len(compressed))

	e := index.NewEntry(offset, handle, len(compressed))
	if st.index.Publish(e) {
		c.Metrics.Duplicates.Inc()
	}
	return nil
}

// compressedRatioExceeded implements spec.md §4.6 step 4's
// compressed_bytes*100/page_size > max_compression_ratio check.
func compressedRatioExceeded(compressedBytes, pageSize, maxRatio int) bool {
	return compressedBytes*100/pageSize > maxRatio
}

// Load reads the entry for (swapType, offset) into dst, implementing the
// load path of spec.md §4.7. It reports hit=true and populates dst on a
// cache hit, or hit=false on a miss.
func (c *Cache) Load(swapType uint32, offset uint64, dst []byte) (hit bool) {
	st, ok := c.lookupType(swapType)
	if !ok {
		return false
	}

	e, ok := st.index.LookupAndPin(offset)
	if !ok {
		return false
	}

	blob := st.index.COS().MapRead(e.Handle)
	if err := st.codec.Decompress(dst, blob); err != nil {
		// Class-3 invariant violation per spec.md §7: fatal, not recoverable.
		panic(zcacheerrors.InvariantError{Err: errors.Wrap(err, "zcache: decompress invariant violated on load")})
	}
	st.index.COS().Unmap(e.Handle)
	st.index.ReleaseAfterLoad(e)
	return true
}

// InvalidatePage logically removes the entry for (swapType, offset), per
// spec.md §4.8's single-page invalidate. It is a no-op if no entry exists.
func (c *Cache) InvalidatePage(swapType uint32, offset uint64) {
	st, ok := c.lookupType(swapType)
	if !ok {
		return
	}
	st.index.InvalidatePage(offset)
}

// InvalidateArea empties swapType's Index entirely, per spec.md §4.8's
// whole-area invalidate. The caller must hold the host's swap-device
// teardown exclusion: no concurrent Store/Load/InvalidatePage may race.
func (c *Cache) InvalidateArea(swapType uint32) {
	st, ok := c.lookupType(swapType)
	if !ok {
		return
	}
	st.index.InvalidateArea()
}

// Stats is a point-in-time snapshot of the Observability surface's gauges,
// for callers (cmd/zcachectl, tests) that want plain values rather than
// scraping Metrics through the Prometheus client.
type Stats struct {
	PoolPages   int64
	StoredPages int
	Outstanding int64
}

// Stats returns a snapshot of the current pool/stored-page/outstanding
// gauges, per spec.md §6's observability surface.
func (c *Cache) Stats() Stats {
	return Stats{
		PoolPages:   c.pool.Live(),
		StoredPages: int(c.storedPagesGauge()),
		Outstanding: int64(c.outstandingGauge()),
	}
}
