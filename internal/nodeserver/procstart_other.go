//go:build !linux

package nodeserver

import (
	"context"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

func procStartUnix(ctx context.Context, p *gopsproc.Process) int64 {
	return createTimeUnix(ctx, p)
}
