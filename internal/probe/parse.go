package probe

import (
	"strconv"
	"strings"

	"svcwatch/internal/metrics"
)

// parseNetDev parses /proc/<pid>/net/dev content. The first two lines are
// column headers; each following line is
//
//	iface: rx_bytes rx_packets ... tx_bytes(col 9) ...
func parseNetDev(data string) []metrics.NetCounters {
	lines := strings.Split(data, "\n")
	if len(lines) <= 2 {
		return nil
	}

	var counters []metrics.NetCounters
	for _, line := range lines[2:] {
		fields := strings.Fields(line)
		if len(fields) < 10 {
			continue
		}
		iface := strings.TrimSuffix(fields[0], ":")
		in, _ := strconv.ParseUint(fields[1], 10, 64)
		out, _ := strconv.ParseUint(fields[9], 10, 64)
		counters = append(counters, metrics.NetCounters{
			Interface: iface,
			BytesIn:   in,
			BytesOut:  out,
		})
	}
	return counters
}

// parseProcIO parses /proc/<pid>/io content, matching the read_bytes and
// write_bytes lines by prefix. Unparsable values read as zero.
func parseProcIO(data string) metrics.IOCounters {
	var io metrics.IOCounters
	for _, line := range strings.Split(data, "\n") {
		switch {
		case strings.HasPrefix(line, "read_bytes:"):
			io.ReadBytes = parseCounterLine(line, "read_bytes:")
		case strings.HasPrefix(line, "write_bytes:"):
			io.WriteBytes = parseCounterLine(line, "write_bytes:")
		}
	}
	return io
}

func parseCounterLine(line, prefix string) uint64 {
	v, _ := strconv.ParseUint(strings.TrimSpace(strings.TrimPrefix(line, prefix)), 10, 64)
	return v
}
