// Package pagepool implements the compressed cache's sole backpressure
// signal (spec component C2): a bounded source of fixed-size pages shared
// by every per-swap-type Compressed Object Store.
//
// Grounded on the teacher's internal/manual package: a Purpose-tagged
// counter pair (allocated/freed) sized to the allocation's use, except here
// there is exactly one purpose (a raw page) and the limit is expressed as a
// percentage of total physical RAM rather than an unbounded counter.
package pagepool

import (
	"sync"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/jsenning/zcache/internal/invariants"
)

// PageSize is the fixed size of a page managed by the pool. The original
// driver inherits PAGE_SIZE from the host kernel; this is its Go-side analog
// and is not configurable per Pool, matching the spec's treatment of it as
// an architectural constant.
const PageSize = 4096

// ErrPoolLimitExceeded is returned by Get when the live page count would
// exceed the configured ceiling. It is not itself an error by the time it
// reaches a Store caller — it is translated into the "no space" rejection
// reason — but is a distinct sentinel so callers along the way don't need a
// boolean out-parameter.
var ErrPoolLimitExceeded = errors.New("pagepool: pool limit exceeded")

// Pool is a bounded, shared source of fixed-size pages. One Pool backs every
// swap type's Compressed Object Store; the ceiling is therefore the single
// cross-type constraint spec.md §4.2 describes.
type Pool struct {
	totalRAMPages int64

	maxPercent atomic.Int32 // guarded by no lock; read racily by Get per §5
	live       atomic.Int64 // live page count; read by admission policy

	limitHits atomic.Uint64

	raw sync.Pool // recycles freed page buffers to reduce GC churn
}

// New creates a page pool with the given initial max-pool-percent tunable
// (spec default: 50). totalRAMPages is supplied by the caller (normally
// from TotalRAMPages) so tests can inject a deterministic value.
func New(totalRAMPages int64, maxPoolPercent int) *Pool {
	p := &Pool{totalRAMPages: totalRAMPages}
	p.raw.New = func() any {
		return make([]byte, PageSize)
	}
	p.SetMaxPoolPercent(maxPoolPercent)
	return p
}

// SetMaxPoolPercent updates the runtime tunable. Safe for concurrent use
// with Get/Put; a change takes effect for the next Get call.
func (p *Pool) SetMaxPoolPercent(percent int) {
	p.maxPercent.Store(int32(percent))
}

// Ceiling returns the current maximum number of live pages, computed as
// ceil(max_pool_percent * total_ram_pages / 100), matching
// zswap_max_pool_pages() in the original driver.
func (p *Pool) Ceiling() int64 {
	percent := int64(p.maxPercent.Load())
	num := percent * p.totalRAMPages
	return (num + 99) / 100
}

// Live returns the current number of live (outstanding) pages.
func (p *Pool) Live() int64 { return p.live.Load() }

// LimitHits returns the number of times Get failed fast due to the ceiling.
func (p *Pool) LimitHits() uint64 { return p.limitHits.Load() }

// Get returns a zeroed page, or ErrPoolLimitExceeded if doing so would push
// the live count past the ceiling. Fails fast: it never blocks or
// retries, matching the original's "return NULL" behavior under pressure.
func (p *Pool) Get() ([]byte, error) {
	if p.live.Load() >= p.Ceiling() {
		p.limitHits.Add(1)
		return nil, ErrPoolLimitExceeded
	}
	// The check above and the increment below are not atomic together: a
	// concurrent Get or a concurrent SetMaxPoolPercent can intervene, so the
	// counter may briefly go over the ceiling.
	live := p.live.Add(1)
	if live > p.Ceiling() && live > 1 {
		// Lost such a race: back out and reject. The only page handed out
		// over the ceiling is a lone first page (live == 1) after the
		// ceiling was lowered to zero.
		p.live.Add(-1)
		p.limitHits.Add(1)
		return nil, ErrPoolLimitExceeded
	}
	buf := p.raw.Get().([]byte)
	for i := range buf {
		buf[i] = 0
	}
	return buf, nil
}

// Put returns a page to the pool and decrements the live count. buf must be
// exactly a page previously returned by Get and must not be used again by
// the caller afterward.
func (p *Pool) Put(buf []byte) {
	if invariants.Enabled && len(buf) != PageSize {
		panic("pagepool: Put of a non-page-sized buffer")
	}
	p.raw.Put(buf) //nolint:staticcheck // buf is reused by future Get calls only.
	newLive := p.live.Add(-1)
	if invariants.Enabled && newLive < 0 {
		panic("pagepool: live page count went negative")
	}
}
