package main

import (
	"sync"

	"github.com/jsenning/zcache/internal/writeback"
)

// memPage is an in-memory stand-in for a real kernel swap-cache page,
// implementing writeback.Page for the demo host below.
type memPage struct {
	buf        []byte
	upToDate   bool
	reclaim    bool
	reclaimSet int // counts MarkReclaim calls; must stay at 1
}

func (p *memPage) Bytes() []byte { return p.buf }
func (p *memPage) MarkUpToDate() { p.upToDate = true }
func (p *memPage) MarkReclaim() {
	p.reclaim = true
	p.reclaimSet++
}

// memHost is a synthetic swap subsystem for driving the cache without a
// real kernel: every writeback request gets a freshly allocated page and
// "completes" on a background goroutine, standing in for the host's
// asynchronous swap writepage routine (spec.md §6).
type memHost struct {
	mu        sync.Mutex
	writes    int
	pageBytes int
}

func newMemHost(pageBytes int) *memHost {
	return &memHost{pageBytes: pageBytes}
}

func (h *memHost) SwapCachePage(swapType uint32, offset uint64) (writeback.Page, writeback.PageOutcome) {
	return &memPage{buf: make([]byte, h.pageBytes)}, writeback.PageNewLocked
}

func (h *memHost) WritePage(page writeback.Page, done func()) {
	h.mu.Lock()
	h.writes++
	h.mu.Unlock()
	go done()
}

func (h *memHost) AssertAnonymous(swapType uint32, offset uint64) bool {
	return true
}

func (h *memHost) Writes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}
