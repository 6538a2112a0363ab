package probe

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// UnitProcessSource is the subset of unit queries the finder delegates to the
// systemd connection.
type UnitProcessSource interface {
	MainPID(ctx context.Context, unit string) (int32, error)
	ControlGroup(ctx context.Context, unit string) (string, error)
}

// Finder implements metrics.ProcessFinder by combining systemd unit
// properties with cgroupfs membership files and a command-line process
// search.
type Finder struct {
	Units UnitProcessSource

	// CgroupRoot is the cgroupfs mount point; overridable in tests.
	CgroupRoot string
}

func NewFinder(units UnitProcessSource) *Finder {
	return &Finder{Units: units, CgroupRoot: "/sys/fs/cgroup"}
}

func (f *Finder) MainPID(ctx context.Context, unit string) (int32, error) {
	return f.Units.MainPID(ctx, unit)
}

func (f *Finder) ControlGroup(ctx context.Context, unit string) (string, error) {
	return f.Units.ControlGroup(ctx, unit)
}

// ControlGroupPIDs reads the pids currently listed in the group's
// cgroup.procs file.
func (f *Finder) ControlGroupPIDs(_ context.Context, path string) ([]int32, error) {
	data, err := os.ReadFile(filepath.Join(f.CgroupRoot, path, "cgroup.procs"))
	if err != nil {
		return nil, err
	}
	return parsePIDList(string(data)), nil
}

// FindByPattern lists processes whose command line contains pattern,
// ignoring case.
//
// This is substring matching, same trade-off as pgrep -f: it can catch
// unrelated processes sharing a name fragment, which is why the aggregator
// only uses it when the precise sources come up empty.
func (f *Finder) FindByPattern(ctx context.Context, pattern string) ([]int32, error) {
	procs, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}

	var pids []int32
	for _, p := range procs {
		cmdline, err := p.CmdlineWithContext(ctx)
		if err != nil || cmdline == "" {
			continue
		}
		if cmdlineMatches(cmdline, pattern) {
			pids = append(pids, p.Pid)
		}
	}
	return pids, nil
}

func cmdlineMatches(cmdline, pattern string) bool {
	return strings.Contains(strings.ToLower(cmdline), strings.ToLower(pattern))
}

func parsePIDList(data string) []int32 {
	var pids []int32
	for _, line := range strings.Split(data, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		pid, err := strconv.ParseInt(line, 10, 32)
		if err != nil || pid <= 0 {
			continue
		}
		pids = append(pids, int32(pid))
	}
	return pids
}
