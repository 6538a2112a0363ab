package probe

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/shirou/gopsutil/v4/mem"
	gopsproc "github.com/shirou/gopsutil/v4/process"

	"svcwatch/internal/metrics"
)

// ProcProbe reads per-process resource counters from the process table and
// procfs. It implements metrics.ProcProbe.
type ProcProbe struct {
	// ProcRoot is the procfs mount point; overridable in tests.
	ProcRoot string
}

func NewProcProbe() *ProcProbe {
	return &ProcProbe{ProcRoot: "/proc"}
}

// Stats reads cpu percent, resident memory and thread count for one pid.
func (p *ProcProbe) Stats(ctx context.Context, pid int32) (metrics.ProcStats, error) {
	proc, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return metrics.ProcStats{}, fmt.Errorf("process %d: %w", pid, err)
	}

	var stats metrics.ProcStats
	if cpu, err := proc.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
		stats.ResidentMemoryBytes = info.RSS
	}
	if threads, err := proc.NumThreadsWithContext(ctx); err == nil && threads > 0 {
		stats.ThreadCount = uint32(threads)
	}
	return stats, nil
}

// OpenFiles counts the pid's open file descriptors.
func (p *ProcProbe) OpenFiles(ctx context.Context, pid int32) (uint32, error) {
	proc, err := gopsproc.NewProcessWithContext(ctx, pid)
	if err != nil {
		return 0, fmt.Errorf("process %d: %w", pid, err)
	}
	n, err := proc.NumFDsWithContext(ctx)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		n = 0
	}
	return uint32(n), nil
}

// NetCounters reads the pid's per-interface lifetime byte counters from
// /proc/<pid>/net/dev. Loopback filtering is the caller's concern.
func (p *ProcProbe) NetCounters(_ context.Context, pid int32) ([]metrics.NetCounters, error) {
	data, err := os.ReadFile(filepath.Join(p.ProcRoot, strconv.Itoa(int(pid)), "net", "dev"))
	if err != nil {
		return nil, err
	}
	return parseNetDev(string(data)), nil
}

// IOCounters reads the pid's lifetime disk I/O accounting from
// /proc/<pid>/io.
func (p *ProcProbe) IOCounters(_ context.Context, pid int32) (metrics.IOCounters, error) {
	data, err := os.ReadFile(filepath.Join(p.ProcRoot, strconv.Itoa(int(pid)), "io"))
	if err != nil {
		return metrics.IOCounters{}, err
	}
	return parseProcIO(string(data)), nil
}

// SystemMemoryTotal reports system-wide memory for percentage denominators.
func (p *ProcProbe) SystemMemoryTotal(ctx context.Context) (uint64, error) {
	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}
