package nodeserver

import (
	"context"
	"os"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

type procInfo struct {
	PID       int
	StartedAt time.Time // zero when unavailable
	RSS       uint64
}

// selfInfo reports on the current process.
func selfInfo(ctx context.Context) (procInfo, error) {
	pid := os.Getpid()
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return procInfo{}, err
	}
	info := procInfo{PID: pid}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSS = mem.RSS
	}
	if sec := procStartUnix(ctx, p); sec > 0 {
		info.StartedAt = time.Unix(sec, 0)
	}
	return info, nil
}

// createTimeUnix asks gopsutil for the creation time in Unix seconds, 0 on error.
func createTimeUnix(ctx context.Context, p *gopsproc.Process) int64 {
	ms, err := p.CreateTimeWithContext(ctx)
	if err != nil || ms <= 0 {
		return 0
	}
	return ms / 1000
}
