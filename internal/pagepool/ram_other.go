//go:build !linux

package pagepool

// TotalRAMPages has no portable syscall on non-Linux hosts in this
// repository, per SPEC_FULL's open-question decision: fall back to a fixed,
// conservative estimate rather than guessing from runtime.MemStats (which
// reports Go heap usage, not installed physical memory). Nothing logs that
// the estimate is in use; Options.TotalRAMPages overrides it.
func TotalRAMPages() int64 {
	return fallbackTotalRAMPages()
}
