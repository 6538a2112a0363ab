package metrics

import (
	"context"
	"errors"
	"testing"

	logx "svcwatch/pkg/logx"
)

type fakeResolver struct {
	units map[string]string
}

func (f *fakeResolver) ResolveUnit(_ context.Context, name string) (string, error) {
	if unit, ok := f.units[name]; ok {
		return unit, nil
	}
	return "", ErrUnitNotFound
}

type fakeFinder struct {
	mainPID    int32
	mainPIDErr error
	cgroup     string
	cgroupPIDs []int32
	cgroupErr  error
	patternHit []int32

	patternCalls int
}

func (f *fakeFinder) MainPID(context.Context, string) (int32, error) {
	return f.mainPID, f.mainPIDErr
}

func (f *fakeFinder) ControlGroup(context.Context, string) (string, error) {
	return f.cgroup, nil
}

func (f *fakeFinder) ControlGroupPIDs(context.Context, string) ([]int32, error) {
	return f.cgroupPIDs, f.cgroupErr
}

func (f *fakeFinder) FindByPattern(context.Context, string) ([]int32, error) {
	f.patternCalls++
	return f.patternHit, nil
}

type fakeProbe struct {
	stats    map[int32]ProcStats
	files    map[int32]uint32
	net      map[int32][]NetCounters
	io       map[int32]IOCounters
	memTotal uint64
}

var errUnreadable = errors.New("unreadable")

func (f *fakeProbe) Stats(_ context.Context, pid int32) (ProcStats, error) {
	if s, ok := f.stats[pid]; ok {
		return s, nil
	}
	return ProcStats{}, errUnreadable
}

func (f *fakeProbe) OpenFiles(_ context.Context, pid int32) (uint32, error) {
	if n, ok := f.files[pid]; ok {
		return n, nil
	}
	return 0, errUnreadable
}

func (f *fakeProbe) NetCounters(_ context.Context, pid int32) ([]NetCounters, error) {
	if c, ok := f.net[pid]; ok {
		return c, nil
	}
	return nil, errUnreadable
}

func (f *fakeProbe) IOCounters(_ context.Context, pid int32) (IOCounters, error) {
	if c, ok := f.io[pid]; ok {
		return c, nil
	}
	return IOCounters{}, errUnreadable
}

func (f *fakeProbe) SystemMemoryTotal(context.Context) (uint64, error) {
	if f.memTotal == 0 {
		return 0, errUnreadable
	}
	return f.memTotal, nil
}

func newTestAggregator(finder *fakeFinder, probe *fakeProbe) *Aggregator {
	resolver := &fakeResolver{units: map[string]string{
		"web": "web.service", "db": "db.service", "cache": "cache.service",
	}}
	return NewAggregator(resolver, finder, probe, logx.Nop())
}

func TestCollectUnknownServiceIsHardFailure(t *testing.T) {
	t.Parallel()
	agg := newTestAggregator(&fakeFinder{}, &fakeProbe{})

	_, err := agg.Collect(context.Background(), "no-such-svc")
	if !errors.Is(err, ErrUnitNotFound) {
		t.Fatalf("err = %v, want ErrUnitNotFound", err)
	}
}

func TestDiscoverMainPIDSupplementedByCgroup(t *testing.T) {
	t.Parallel()
	finder := &fakeFinder{
		mainPID:    100,
		cgroup:     "/system.slice/web.service",
		cgroupPIDs: []int32{100, 101, 102},
		patternHit: []int32{999},
	}
	agg := newTestAggregator(finder, &fakeProbe{})

	pids := agg.discover(context.Background(), "web.service", "web")
	want := []int32{100, 101, 102}
	if len(pids) != len(want) {
		t.Fatalf("pids = %v, want %v", pids, want)
	}
	for i := range want {
		if pids[i] != want[i] {
			t.Fatalf("pids = %v, want %v", pids, want)
		}
	}
	if finder.patternCalls != 0 {
		t.Fatal("pattern search must not run when precise sources found processes")
	}
}

func TestDiscoverPatternFallbackOnlyWhenEmpty(t *testing.T) {
	t.Parallel()
	finder := &fakeFinder{
		mainPIDErr: errors.New("no main pid"),
		cgroup:     "/", // root group is ignored
		patternHit: []int32{7, 8},
	}
	agg := newTestAggregator(finder, &fakeProbe{})

	pids := agg.discover(context.Background(), "web.service", "web")
	if len(pids) != 2 || pids[0] != 7 || pids[1] != 8 {
		t.Fatalf("pids = %v, want [7 8]", pids)
	}
	if finder.patternCalls != 1 {
		t.Fatalf("patternCalls = %d, want 1", finder.patternCalls)
	}
}

func TestDiscoverIgnoresNonPositivePIDs(t *testing.T) {
	t.Parallel()
	finder := &fakeFinder{
		mainPID:    0,
		cgroup:     "/system.slice/web.service",
		cgroupPIDs: []int32{0, -1, 42, 42},
	}
	agg := newTestAggregator(finder, &fakeProbe{})

	pids := agg.discover(context.Background(), "web.service", "web")
	if len(pids) != 1 || pids[0] != 42 {
		t.Fatalf("pids = %v, want [42]", pids)
	}
}

func TestCollectEmptySetIsZeroSnapshotNotError(t *testing.T) {
	t.Parallel()
	finder := &fakeFinder{mainPIDErr: errors.New("gone")}
	agg := newTestAggregator(finder, &fakeProbe{memTotal: 8 << 30})

	snap, err := agg.Collect(context.Background(), "web")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ProcessCount != 0 {
		t.Fatalf("ProcessCount = %d, want 0", snap.ProcessCount)
	}
	if snap.CPUPercent != 0 || snap.MemoryBytes != 0 || snap.NetworkInBytes != 0 ||
		snap.DiskReadBytes != 0 || snap.OpenFileCount != 0 {
		t.Fatalf("expected zero metrics, got %+v", snap)
	}
	if snap.MemoryTotalBytes != 8<<30 {
		t.Fatalf("MemoryTotalBytes = %d, want system total", snap.MemoryTotalBytes)
	}
}

func TestCollectSumsAcrossProcessSet(t *testing.T) {
	t.Parallel()
	finder := &fakeFinder{
		mainPID:    10,
		cgroup:     "/system.slice/web.service",
		cgroupPIDs: []int32{10, 11},
	}
	probe := &fakeProbe{
		stats: map[int32]ProcStats{
			10: {CPUPercent: 1.5, ResidentMemoryBytes: 2048, ThreadCount: 4},
			11: {CPUPercent: 0.5, ResidentMemoryBytes: 1024, ThreadCount: 1},
		},
		files: map[int32]uint32{10: 12, 11: 3},
		net: map[int32][]NetCounters{
			10: {{Interface: "eth0", BytesIn: 100, BytesOut: 200}},
			11: {{Interface: "eth0", BytesIn: 10, BytesOut: 20}},
		},
		io: map[int32]IOCounters{
			10: {ReadBytes: 1000, WriteBytes: 500},
			11: {ReadBytes: 100, WriteBytes: 50},
		},
		memTotal: 16 << 30,
	}
	agg := newTestAggregator(finder, probe)

	snap, err := agg.Collect(context.Background(), "web")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ProcessCount != 2 {
		t.Fatalf("ProcessCount = %d, want 2", snap.ProcessCount)
	}
	if snap.CPUPercent != 2.0 {
		t.Fatalf("CPUPercent = %v, want 2.0", snap.CPUPercent)
	}
	if snap.MemoryBytes != 3072 {
		t.Fatalf("MemoryBytes = %d, want 3072", snap.MemoryBytes)
	}
	if snap.ThreadCount != 5 {
		t.Fatalf("ThreadCount = %d, want 5", snap.ThreadCount)
	}
	if snap.OpenFileCount != 15 {
		t.Fatalf("OpenFileCount = %d, want 15", snap.OpenFileCount)
	}
	if snap.NetworkInBytes != 110 || snap.NetworkOutBytes != 220 {
		t.Fatalf("net = %d/%d, want 110/220", snap.NetworkInBytes, snap.NetworkOutBytes)
	}
	if snap.DiskReadBytes != 1100 || snap.DiskWriteBytes != 550 {
		t.Fatalf("disk = %d/%d, want 1100/550", snap.DiskReadBytes, snap.DiskWriteBytes)
	}
}

func TestCollectUnreadableSourceContributesZero(t *testing.T) {
	t.Parallel()
	// Primary pid lookup fails, cgroup yields [10 11]; pid 10's sources are all
	// unreadable, pid 11 reports cpu and memory only.
	finder := &fakeFinder{
		mainPIDErr: errors.New("no main pid"),
		cgroup:     "/system.slice/db.service",
		cgroupPIDs: []int32{10, 11},
	}
	probe := &fakeProbe{
		stats: map[int32]ProcStats{
			11: {CPUPercent: 2.0, ResidentMemoryBytes: 1000},
		},
		io: map[int32]IOCounters{
			11: {ReadBytes: 77, WriteBytes: 33},
		},
		memTotal: 4 << 30,
	}
	agg := newTestAggregator(finder, probe)

	snap, err := agg.Collect(context.Background(), "db")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.ProcessCount != 2 {
		t.Fatalf("ProcessCount = %d, want 2 (unreadable pid still counts)", snap.ProcessCount)
	}
	if snap.CPUPercent != 2.0 || snap.MemoryBytes != 1000 {
		t.Fatalf("stats = %v/%d, want 2.0/1000", snap.CPUPercent, snap.MemoryBytes)
	}
	if snap.DiskReadBytes != 77 || snap.DiskWriteBytes != 33 {
		t.Fatalf("disk = %d/%d, want pid 11's counters only", snap.DiskReadBytes, snap.DiskWriteBytes)
	}
}

func TestCollectExcludesLoopback(t *testing.T) {
	t.Parallel()
	finder := &fakeFinder{mainPID: 5}
	probe := &fakeProbe{
		net: map[int32][]NetCounters{
			5: {
				{Interface: "lo", BytesIn: 9999, BytesOut: 9999},
				{Interface: "lo:", BytesIn: 1111, BytesOut: 1111},
				{Interface: "eth0", BytesIn: 42, BytesOut: 24},
			},
		},
	}
	agg := newTestAggregator(finder, probe)

	snap, err := agg.Collect(context.Background(), "cache")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if snap.NetworkInBytes != 42 || snap.NetworkOutBytes != 24 {
		t.Fatalf("net = %d/%d, loopback must not contribute", snap.NetworkInBytes, snap.NetworkOutBytes)
	}
}
