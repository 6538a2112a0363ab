// Package probe implements the OS-query capabilities the monitor and metrics
// cores consume: systemd unit state over D-Bus, control-group membership,
// process search, and per-process resource counters.
//
// Everything here is best-effort plumbing; policy (fallback ordering,
// degradation to zero, diffing) lives in the consuming packages.
package probe
