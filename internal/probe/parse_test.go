package probe

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

const sampleNetDev = `Inter-|   Receive                                                |  Transmit
 face |bytes    packets errs drop fifo frame compressed multicast|bytes    packets errs drop fifo colls carrier compressed
    lo:  123456     100    0    0    0     0          0         0   123456     100    0    0    0     0       0          0
  eth0: 9876543    5000    0    0    0     0          0         0  1234567    4000    0    0    0     0       0          0
`

const sampleProcIO = `rchar: 4292992
wchar: 405
syscr: 1326
syscw: 12
read_bytes: 6914048
write_bytes: 8192
cancelled_write_bytes: 0
`

func TestParseNetDev(t *testing.T) {
	t.Parallel()
	counters := parseNetDev(sampleNetDev)
	if len(counters) != 2 {
		t.Fatalf("expected 2 interfaces, got %d", len(counters))
	}
	if counters[0].Interface != "lo" || counters[0].BytesIn != 123456 || counters[0].BytesOut != 123456 {
		t.Fatalf("lo = %+v", counters[0])
	}
	if counters[1].Interface != "eth0" || counters[1].BytesIn != 9876543 || counters[1].BytesOut != 1234567 {
		t.Fatalf("eth0 = %+v", counters[1])
	}
}

func TestParseNetDevHeaderOnly(t *testing.T) {
	t.Parallel()
	if got := parseNetDev("Inter-| Receive\n face |bytes\n"); got != nil {
		t.Fatalf("expected nil for header-only content, got %v", got)
	}
}

func TestParseProcIO(t *testing.T) {
	t.Parallel()
	io := parseProcIO(sampleProcIO)
	if io.ReadBytes != 6914048 {
		t.Fatalf("ReadBytes = %d, want 6914048", io.ReadBytes)
	}
	if io.WriteBytes != 8192 {
		t.Fatalf("WriteBytes = %d, want 8192", io.WriteBytes)
	}
}

func TestParseProcIOGarbage(t *testing.T) {
	t.Parallel()
	io := parseProcIO("read_bytes: not-a-number\nnonsense\n")
	if io.ReadBytes != 0 || io.WriteBytes != 0 {
		t.Fatalf("expected zero counters, got %+v", io)
	}
}

func TestParsePIDList(t *testing.T) {
	t.Parallel()
	pids := parsePIDList("100\n101\n\n-5\nabc\n102\n")
	want := []int32{100, 101, 102}
	if len(pids) != len(want) {
		t.Fatalf("pids = %v, want %v", pids, want)
	}
	for i := range want {
		if pids[i] != want[i] {
			t.Fatalf("pids = %v, want %v", pids, want)
		}
	}
}

func TestCmdlineMatchesIgnoresCase(t *testing.T) {
	t.Parallel()
	cases := []struct {
		cmdline, pattern string
		want             bool
	}{
		{"/usr/sbin/nginx -g daemon off;", "nginx", true},
		{"/usr/bin/PostgreSQL -D /var/lib", "postgresql", true},
		{"/usr/sbin/nginx", "NGINX", true},
		{"/usr/bin/redis-server *:6379", "mysql", false},
	}
	for _, tc := range cases {
		if got := cmdlineMatches(tc.cmdline, tc.pattern); got != tc.want {
			t.Errorf("cmdlineMatches(%q, %q) = %v, want %v", tc.cmdline, tc.pattern, got, tc.want)
		}
	}
}

func TestControlGroupPIDsReadsCgroupProcs(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	group := filepath.Join(root, "system.slice", "web.service")
	if err := os.MkdirAll(group, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(group, "cgroup.procs"), []byte("10\n11\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := &Finder{CgroupRoot: root}
	pids, err := f.ControlGroupPIDs(context.Background(), "/system.slice/web.service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pids) != 2 || pids[0] != 10 || pids[1] != 11 {
		t.Fatalf("pids = %v, want [10 11]", pids)
	}
}

func TestControlGroupPIDsMissingGroup(t *testing.T) {
	t.Parallel()
	f := &Finder{CgroupRoot: t.TempDir()}
	if _, err := f.ControlGroupPIDs(context.Background(), "/no/such/group"); err == nil {
		t.Fatal("expected error for missing cgroup")
	}
}

func TestProcProbeCountersFromFakeProcfs(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	pidDir := filepath.Join(root, "42")
	if err := os.MkdirAll(filepath.Join(pidDir, "net"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pidDir, "net", "dev"), []byte(sampleNetDev), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(pidDir, "io"), []byte(sampleProcIO), 0o644); err != nil {
		t.Fatal(err)
	}

	p := &ProcProbe{ProcRoot: root}

	counters, err := p.NetCounters(context.Background(), 42)
	if err != nil {
		t.Fatalf("NetCounters: %v", err)
	}
	if len(counters) != 2 {
		t.Fatalf("expected 2 interfaces, got %d", len(counters))
	}

	io, err := p.IOCounters(context.Background(), 42)
	if err != nil {
		t.Fatalf("IOCounters: %v", err)
	}
	if io.ReadBytes != 6914048 || io.WriteBytes != 8192 {
		t.Fatalf("io = %+v", io)
	}

	// Missing pid degrades to an error, never a partial read.
	if _, err := p.NetCounters(context.Background(), 43); err == nil {
		t.Fatal("expected error for missing pid")
	}
}
