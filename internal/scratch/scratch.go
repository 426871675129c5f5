// Package scratch implements the compression scratch buffers (spec
// component C3): per-worker pinned compression destination buffers, plus a
// small spare pool that lets the admission path release its worker buffer
// before blocking on writeback.
//
// Grounded on the teacher's internal/cache/alloc.go allocCache, which
// solves the analogous problem of recycling fixed-class buffers cheaply:
// a sync.Pool for the common per-worker case, and a capacity-bounded slice
// with randomized victim/borrow selection (via golang.org/x/exp/rand, the
// same generator allocCache uses) for the small cross-worker spare pool.
package scratch

import (
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/rand"

	"github.com/jsenning/zcache/internal/pagepool"
)

// WorkerBufSize is the size of a per-worker compression destination buffer:
// 2x the page size, matching the original driver's dst = kmalloc(PAGE_SIZE*2).
const WorkerBufSize = 2 * pagepool.PageSize

// ErrSpareExhausted is returned by BorrowSpare when the spare pool has no
// free buffers. Spec.md §4.3: "Spare-pool exhaustion is a rejection, not a
// wait."
var ErrSpareExhausted = errors.New("scratch: spare buffer pool exhausted")

// Pool vends per-worker scratch buffers and a small cross-worker spare pool.
type Pool struct {
	workers sync.Pool

	spareMu  sync.Mutex
	spare    [][]byte
	spareCap int
	rng      rand.PCGSource
}

// NewPool creates a scratch pool with the given spare-buffer capacity
// (order-1 pages, per spec.md §4.3; a handful is typical).
func NewPool(spareCapacity int) *Pool {
	p := &Pool{spareCap: spareCapacity}
	p.workers.New = func() any {
		return make([]byte, WorkerBufSize)
	}
	p.rng.Seed(uint64(time.Now().UnixNano()))
	return p
}

// AcquireWorker returns a buffer pinned to the calling worker for the
// duration of a non-sleepable compression call. The caller must release it
// via ReleaseWorker (normal path) or hand it off via the store path copying
// out to a spare buffer before calling ReleaseWorker (blocking path).
func (p *Pool) AcquireWorker() []byte {
	return p.workers.Get().([]byte)
}

// ReleaseWorker returns buf to the per-worker pool.
func (p *Pool) ReleaseWorker(buf []byte) {
	p.workers.Put(buf) //nolint:staticcheck // reused by future AcquireWorker calls.
}

// BorrowSpare copies src into a spare buffer and returns it,
// so the admission path can release its per-worker buffer and block on
// writeback without losing the compressed result (spec.md §4.6 step 6).
func (p *Pool) BorrowSpare(src []byte) ([]byte, error) {
	p.spareMu.Lock()
	defer p.spareMu.Unlock()

	n := len(p.spare)
	if n == 0 {
		return nil, ErrSpareExhausted
	}
	// Evict a uniformly random slot rather than always the tail, the same
	// rationale as allocCache: avoid always stressing the same physical
	// buffer under sustained pressure.
	i := int(p.rng.Uint64() % uint64(n))
	buf := p.spare[i]
	p.spare[i] = p.spare[n-1]
	p.spare = p.spare[:n-1]

	copy(buf, src)
	return buf[:len(src)], nil
}

// ReturnSpare returns buf to the spare pool. If the pool is already at
// capacity the buffer is dropped rather than grown without bound.
func (p *Pool) ReturnSpare(buf []byte) {
	full := buf[:cap(buf)]
	p.spareMu.Lock()
	defer p.spareMu.Unlock()
	if len(p.spare) >= p.spareCap {
		return
	}
	p.spare = append(p.spare, full)
}

// Seed fills the spare pool with spareCap freshly allocated buffers. Called
// once at construction so BorrowSpare never has to allocate under pressure.
func (p *Pool) Seed() {
	p.spareMu.Lock()
	defer p.spareMu.Unlock()
	for len(p.spare) < p.spareCap {
		p.spare = append(p.spare, make([]byte, WorkerBufSize))
	}
}
