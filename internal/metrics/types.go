package metrics

import (
	"context"
	"errors"
	"time"
)

// ErrUnitNotFound is the aggregator's only hard failure: the service name does
// not resolve to an installed unit. Everything else degrades to zero.
var ErrUnitNotFound = errors.New("unit not found")

// Snapshot is one point-in-time resource reading summed across every process
// discovered for a service.
//
// All numeric fields are cumulative sums over the process set; network and
// disk figures are lifetime counters as reported by the OS, never
// per-interval rates. ProcessCount is the size of the discovered set,
// ThreadCount the summed per-process thread counts.
type Snapshot struct {
	ServiceName      string    `json:"service_name"`
	CPUPercent       float64   `json:"cpu_usage"`
	MemoryBytes      uint64    `json:"memory_usage"`
	MemoryTotalBytes uint64    `json:"memory_total"`
	NetworkInBytes   uint64    `json:"network_in"`
	NetworkOutBytes  uint64    `json:"network_out"`
	DiskReadBytes    uint64    `json:"disk_read"`
	DiskWriteBytes   uint64    `json:"disk_write"`
	ProcessCount     uint32    `json:"process_count"`
	ThreadCount      uint32    `json:"thread_count"`
	OpenFileCount    uint32    `json:"open_files"`
	ObservedAt       time.Time `json:"timestamp"`
}

// ProcStats is one process's status reading.
type ProcStats struct {
	CPUPercent          float64
	ResidentMemoryBytes uint64
	ThreadCount         uint32
}

// NetCounters is one network interface's lifetime byte counters as seen from
// a single process.
type NetCounters struct {
	Interface string
	BytesIn   uint64
	BytesOut  uint64
}

// IOCounters is a process's lifetime disk I/O accounting.
type IOCounters struct {
	ReadBytes  uint64
	WriteBytes uint64
}

// UnitResolver maps a human service name to its canonical OS unit name.
// It fails with ErrUnitNotFound when the service is not installed.
type UnitResolver interface {
	ResolveUnit(ctx context.Context, name string) (string, error)
}

// ProcessFinder supplies the three discovery sources, in decreasing order of
// precision.
type ProcessFinder interface {
	// MainPID returns the unit's primary process id, or 0 if it has none.
	MainPID(ctx context.Context, unit string) (int32, error)

	// ControlGroup returns the unit's control-group path ("" if none).
	ControlGroup(ctx context.Context, unit string) (string, error)

	// ControlGroupPIDs enumerates current members of a control group.
	ControlGroupPIDs(ctx context.Context, path string) ([]int32, error)

	// FindByPattern lists processes whose command line contains pattern.
	FindByPattern(ctx context.Context, pattern string) ([]int32, error)
}

// ProcProbe reads per-process resource counters. Every method may fail for a
// given pid; the aggregator treats a failure as a zero contribution.
type ProcProbe interface {
	Stats(ctx context.Context, pid int32) (ProcStats, error)
	OpenFiles(ctx context.Context, pid int32) (uint32, error)
	NetCounters(ctx context.Context, pid int32) ([]NetCounters, error)
	IOCounters(ctx context.Context, pid int32) (IOCounters, error)

	// SystemMemoryTotal reports system-wide memory, used only as a
	// denominator for percentage display.
	SystemMemoryTotal(ctx context.Context) (uint64, error)
}
