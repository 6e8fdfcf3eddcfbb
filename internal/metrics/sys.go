package metrics

import (
	"fmt"
	"os"
	"runtime"
)

// SysHealth represents real-time process and cache health.
type SysHealth struct {
	AllocMB    uint64
	SysMB      uint64
	NumGC      uint32
	Goroutines int
	CacheSize  string
}

// GetSysHealth collects process stats and the size of the mirror database.
func GetSysHealth(cacheDBPath string) SysHealth {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return SysHealth{
		AllocMB:    m.Alloc / 1024 / 1024,
		SysMB:      m.Sys / 1024 / 1024,
		NumGC:      m.NumGC,
		Goroutines: runtime.NumGoroutine(),
		CacheSize:  cacheFileSize(cacheDBPath),
	}
}

func cacheFileSize(path string) string {
	info, err := os.Stat(path)
	if err != nil {
		return "N/A"
	}
	size := info.Size()
	switch {
	case size > 1024*1024:
		return fmt.Sprintf("%.2f MB", float64(size)/1024/1024)
	case size > 1024:
		return fmt.Sprintf("%.2f KB", float64(size)/1024)
	}
	return fmt.Sprintf("%d B", size)
}
