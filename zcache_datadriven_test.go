package zcache

import (
	"fmt"
	"testing"

	"github.com/cockroachdb/datadriven"
)

// fillPage builds a page of byte in every position, which is highly
// compressible (long run of identical bytes) regardless of codec.
func fillPage(b byte) []byte {
	p := make([]byte, pageSizeForTest)
	for i := range p {
		p[i] = b
	}
	return p
}

// TestAdmissionAndWritebackScenarios runs the store/load/invalidate/
// writeback state machine of spec.md §§4.6-4.9 through a table-driven
// script, the same style the teacher uses for its block cache's read
// coalescing state machine (internal/cache/read_shard_test.go).
func TestAdmissionAndWritebackScenarios(t *testing.T) {
	var c *Cache
	var host *testHost

	datadriven.RunTest(t, "testdata/admission", func(t *testing.T, td *datadriven.TestData) string {
		switch td.Cmd {
		case "init":
			opts := Options{WritebackEnabled: true}
			if td.HasArg("pool-percent") {
				td.ScanArgs(t, "pool-percent", &opts.MaxPoolPercent)
			}
			if td.HasArg("ram-pages") {
				td.ScanArgs(t, "ram-pages", &opts.TotalRAMPages)
			}
			if td.HasArg("ratio") {
				td.ScanArgs(t, "ratio", &opts.MaxCompressionRatio)
			}
			if td.HasArg("batch-size") {
				td.ScanArgs(t, "batch-size", &opts.WritebackBatchSize)
			}
			if td.HasArg("writeback-disabled") {
				opts.WritebackEnabled = false
			}
			host = newTestHost()
			c = newTestCache(t, host, opts)
			return ""

		case "store":
			var offset uint64
			var fillByte int
			td.ScanArgs(t, "offset", &offset)
			td.ScanArgs(t, "fill", &fillByte)
			var page []byte
			if td.HasArg("random") {
				page = incompressiblePage(byte(fillByte))
			} else {
				page = fillPage(byte(fillByte))
			}
			if err := c.Store(0, offset, page); err != nil {
				var rejected *RejectedError
				if ok := asRejected(err, &rejected); ok {
					return fmt.Sprintf("rejected: %s", rejected.Reason)
				}
				return fmt.Sprintf("error: %v", err)
			}
			return "ok"

		case "load":
			var offset uint64
			td.ScanArgs(t, "offset", &offset)
			dst := make([]byte, pageSizeForTest)
			if !c.Load(0, offset, dst) {
				return "miss"
			}
			return fmt.Sprintf("hit: fill=%d", dst[0])

		case "invalidate-page":
			var offset uint64
			td.ScanArgs(t, "offset", &offset)
			c.InvalidatePage(0, offset)
			return ""

		case "invalidate-area":
			c.InvalidateArea(0)
			return ""

		case "stats":
			s := c.Stats()
			return fmt.Sprintf("pool-pages=%d stored-pages=%d outstanding=%d host-writes=%d",
				s.PoolPages, s.StoredPages, s.Outstanding, host.Writes())

		default:
			return fmt.Sprintf("unknown command: %s", td.Cmd)
		}
	})
}

func asRejected(err error, target **RejectedError) bool {
	r, ok := err.(*RejectedError)
	if !ok {
		return false
	}
	*target = r
	return true
}
