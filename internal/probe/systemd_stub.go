//go:build !linux

package probe

import (
	"context"
	"errors"

	"svcwatch/internal/monitor"
)

var ErrUnsupported = errors.New("probe: unsupported OS (linux only)")

// Systemd is a stub on non-linux platforms so the daemon still compiles for
// development; every query fails with ErrUnsupported and the poller degrades
// services to unknown.
type Systemd struct{}

func NewSystemd(context.Context) (*Systemd, error) { return &Systemd{}, nil }

func (s *Systemd) Close() error { return nil }

func (s *Systemd) UnitState(context.Context, string) (monitor.Status, error) {
	return monitor.StatusUnknown, ErrUnsupported
}

func (s *Systemd) UnitEnabled(context.Context, string) bool { return false }

func (s *Systemd) ResolveUnit(context.Context, string) (string, error) {
	return "", ErrUnsupported
}

func (s *Systemd) MainPID(context.Context, string) (int32, error) { return 0, ErrUnsupported }

func (s *Systemd) ControlGroup(context.Context, string) (string, error) {
	return "", ErrUnsupported
}
