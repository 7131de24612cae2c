package monitor

import (
	"os"

	"github.com/shirou/gopsutil/v4/process"
)

// ProcessMemory samples the resident set size of the current process. It
// returns nil when the process cannot be inspected, which disables the
// memory check.
func ProcessMemory() MemorySampler {
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return nil
	}
	return func() (uint64, bool) {
		info, err := proc.MemoryInfo()
		if err != nil || info == nil {
			return 0, false
		}
		return info.RSS, true
	}
}
