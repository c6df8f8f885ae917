//go:build darwin

package session

import (
	"encoding/binary"
	"syscall"
)

// getAvailableRAMMB estimates free memory from the VM page counters,
// falling back to a quarter of physical memory.
func getAvailableRAMMB() int {
	total, err := sysctlUint64("hw.memsize")
	if err != nil {
		return 0
	}
	pageSize, err := sysctlUint64("hw.pagesize")
	if err != nil {
		pageSize = 4096
	}
	free, err := sysctlUint64("vm.page_free_count")
	if err != nil || free == 0 {
		return int(total / (4 << 20))
	}
	return int(free * pageSize >> 20)
}

func sysctlUint64(name string) (uint64, error) {
	raw, err := syscall.Sysctl(name)
	if err != nil {
		v, err := syscall.SysctlUint32(name)
		if err != nil {
			return 0, err
		}
		return uint64(v), nil
	}
	// Sysctl trims a trailing NUL, so short values come back shorter.
	b := append([]byte(raw), make([]byte, 8)...)
	switch {
	case len(raw) >= 5:
		return binary.LittleEndian.Uint64(b[:8]), nil
	case len(raw) >= 1:
		return uint64(binary.LittleEndian.Uint32(b[:4])), nil
	}
	return 0, syscall.EINVAL
}
