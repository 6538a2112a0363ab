package metrics

import (
	"context"
	"strings"
	"sync"
	"time"

	logx "svcwatch/pkg/logx"
)

// Aggregator builds one resource snapshot per call by discovering a service's
// process set and summing per-process counters. It keeps no state between
// calls and is safe for concurrent use.
type Aggregator struct {
	resolver UnitResolver
	finder   ProcessFinder
	probe    ProcProbe
	log      logx.Logger
}

func NewAggregator(resolver UnitResolver, finder ProcessFinder, probe ProcProbe, log logx.Logger) *Aggregator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Aggregator{resolver: resolver, finder: finder, probe: probe, log: log}
}

// Collect returns a point-in-time snapshot for the named service.
//
// The only hard failure is an unresolvable unit (ErrUnitNotFound). An empty
// process set yields an all-zero snapshot with ProcessCount 0, and any single
// unreadable metric source contributes zero for that process.
func (a *Aggregator) Collect(ctx context.Context, serviceName string) (Snapshot, error) {
	unit, err := a.resolver.ResolveUnit(ctx, serviceName)
	if err != nil {
		return Snapshot{}, err
	}

	pids := a.discover(ctx, unit, serviceName)

	snap := a.collect(ctx, pids)
	snap.ServiceName = serviceName
	snap.ObservedAt = time.Now().UTC()

	if total, err := a.probe.SystemMemoryTotal(ctx); err == nil {
		snap.MemoryTotalBytes = total
	} else {
		a.log.Debug("system memory total unavailable", logx.Err(err))
	}

	return snap, nil
}

// discover runs the layered fallback strategies in decreasing order of
// precision, accumulating into one de-duplicated set. The pattern search runs
// only when the precise sources found nothing, to avoid over-counting
// unrelated processes. Pattern matching is deliberately loose (substring on
// the command line) and may catch lookalike names; that is accepted
// best-effort behavior.
func (a *Aggregator) discover(ctx context.Context, unit, serviceName string) []int32 {
	var pids []int32
	seen := map[int32]struct{}{}
	add := func(pid int32) {
		if pid <= 0 {
			return
		}
		if _, dup := seen[pid]; dup {
			return
		}
		seen[pid] = struct{}{}
		pids = append(pids, pid)
	}

	// 1. Primary pid from the unit itself.
	if pid, err := a.finder.MainPID(ctx, unit); err == nil {
		add(pid)
	} else {
		a.log.Debug("main pid lookup failed", logx.String("unit", unit), logx.Err(err))
	}

	// 2. Control-group membership supplements, never replaces.
	if cg, err := a.finder.ControlGroup(ctx, unit); err == nil && cg != "" && cg != "/" {
		if members, err := a.finder.ControlGroupPIDs(ctx, cg); err == nil {
			for _, pid := range members {
				add(pid)
			}
		} else {
			a.log.Debug("cgroup member enumeration failed", logx.String("cgroup", cg), logx.Err(err))
		}
	}

	// 3. Name-pattern search, last resort only.
	if len(pids) == 0 {
		if matches, err := a.finder.FindByPattern(ctx, serviceName); err == nil {
			for _, pid := range matches {
				add(pid)
			}
		}
	}

	return pids
}

// perProc is one process's contribution, filled independently by its own
// goroutine before the final merge.
type perProc struct {
	stats     ProcStats
	openFiles uint32
	netIn     uint64
	netOut    uint64
	ioRead    uint64
	ioWrite   uint64
}

func (a *Aggregator) collect(ctx context.Context, pids []int32) Snapshot {
	slots := make([]perProc, len(pids))

	var wg sync.WaitGroup
	for i, pid := range pids {
		wg.Add(1)
		go func(i int, pid int32) {
			defer wg.Done()
			slots[i] = a.collectOne(ctx, pid)
		}(i, pid)
	}
	wg.Wait()

	var snap Snapshot
	snap.ProcessCount = uint32(len(pids))
	for _, s := range slots {
		snap.CPUPercent += s.stats.CPUPercent
		snap.MemoryBytes += s.stats.ResidentMemoryBytes
		snap.ThreadCount += s.stats.ThreadCount
		snap.OpenFileCount += s.openFiles
		snap.NetworkInBytes += s.netIn
		snap.NetworkOutBytes += s.netOut
		snap.DiskReadBytes += s.ioRead
		snap.DiskWriteBytes += s.ioWrite
	}
	return snap
}

// collectOne reads every metric source for one pid. Each source fails
// independently and contributes zero on failure; the process still counts
// toward the set size.
func (a *Aggregator) collectOne(ctx context.Context, pid int32) perProc {
	var p perProc

	if stats, err := a.probe.Stats(ctx, pid); err == nil {
		p.stats = stats
	}
	if n, err := a.probe.OpenFiles(ctx, pid); err == nil {
		p.openFiles = n
	}
	if counters, err := a.probe.NetCounters(ctx, pid); err == nil {
		for _, c := range counters {
			if isLoopback(c.Interface) {
				continue
			}
			p.netIn += c.BytesIn
			p.netOut += c.BytesOut
		}
	}
	if io, err := a.probe.IOCounters(ctx, pid); err == nil {
		p.ioRead = io.ReadBytes
		p.ioWrite = io.WriteBytes
	}

	return p
}

func isLoopback(iface string) bool {
	iface = strings.TrimSuffix(strings.TrimSpace(iface), ":")
	return iface == "lo" || strings.HasPrefix(iface, "lo@")
}
