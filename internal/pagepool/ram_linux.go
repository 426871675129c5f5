//go:build linux

package pagepool

import "golang.org/x/sys/unix"

// TotalRAMPages reports the number of PageSize pages of total installed
// physical RAM, the direct analog of the original driver's totalram_pages.
func TotalRAMPages() int64 {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return fallbackTotalRAMPages()
	}
	totalBytes := uint64(info.Totalram) * uint64(info.Unit)
	if info.Unit == 0 {
		totalBytes = uint64(info.Totalram)
	}
	return int64(totalBytes / PageSize)
}
