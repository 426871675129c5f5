// Package throttle bounds how often the admission path may trigger a
// writeback batch in response to Compressed Object Store allocation
// pressure (spec.md §4.6 step 6), distinct from the in-flight writeback
// ceiling internal/writeback enforces (spec.md §4.9 step 1, P5). Without
// this, a sustained run of concurrent stores that all miss COS allocation
// would each independently invoke a full writeback batch against the same
// Index, serializing behind its mutex far more than the single retry the
// spec describes is meant to cost.
//
// Grounded on the teacher's internal/rate.Limiter, itself a thin wrapper
// around the same token-bucket dependency; this package keeps only the
// non-blocking TryToFulfill call, since spec.md's admission path retries
// writeback at most once and never waits for a refill.
package throttle

import (
	"sync"

	"github.com/cockroachdb/tokenbucket"
)

// Limiter allows up to burst writeback-triggering stores in quick
// succession, refilling at rate per second thereafter.
type Limiter struct {
	mu sync.Mutex
	tb tokenbucket.TokenBucket
}

// NewLimiter creates a Limiter. rate and burst are both in
// writeback-batch-triggers per second / tokens, matching
// tokenbucket.TokensPerSecond / tokenbucket.Tokens units.
func NewLimiter(rate, burst float64) *Limiter {
	l := &Limiter{}
	l.tb.Init(tokenbucket.TokensPerSecond(rate), tokenbucket.Tokens(burst))
	return l
}

// Allow reports whether a writeback batch may be triggered right now,
// consuming one token if so. It never blocks: on a false return Cache.Store
// rejects the store at once with its own reason, RejectThrottled, rather
// than invoking Batch.
func (l *Limiter) Allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	ok, _ := l.tb.TryToFulfill(1)
	return ok
}
