//go:build linux

package probe

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/dbus"

	"svcwatch/internal/metrics"
	"svcwatch/internal/monitor"
)

const enabledCacheTTL = 30 * time.Second

type enabledCacheEntry struct {
	enabled bool
	expires time.Time
}

// Systemd answers unit queries over the system D-Bus connection.
//
// It implements monitor.UnitQuerier, metrics.UnitResolver and
// metrics.ProcessFinder. Enabled lookups are memoized for a short TTL because
// ListUnitFiles is an expensive call and the poller asks every cycle.
type Systemd struct {
	mu   sync.RWMutex
	conn *dbus.Conn

	enabledCache map[string]enabledCacheEntry
}

func NewSystemd(ctx context.Context) (*Systemd, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}
	return &Systemd{
		conn:         conn,
		enabledCache: map[string]enabledCacheEntry{},
	}, nil
}

func (s *Systemd) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.enabledCache = nil
	return nil
}

func (s *Systemd) connection() (*dbus.Conn, error) {
	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()
	if conn == nil {
		return nil, fmt.Errorf("systemd connection is closed")
	}
	return conn, nil
}

// unitName appends the .service suffix unless the name already carries one.
func unitName(name string) string {
	if strings.HasSuffix(name, ".service") {
		return name
	}
	return name + ".service"
}

// UnitState reports the normalized status of a service.
//
// Mapping follows systemctl is-active semantics: active -> running,
// inactive -> stopped, failed -> failed, everything else -> unknown.
// A missing unit is a query error, not an unknown state; the poller decides
// how to degrade.
func (s *Systemd) UnitState(ctx context.Context, name string) (monitor.Status, error) {
	conn, err := s.connection()
	if err != nil {
		return monitor.StatusUnknown, err
	}

	unit := unitName(name)

	// Fast path: core state without pulling the full unit property map.
	units, err := conn.ListUnitsByPatternsContext(ctx, nil, []string{unit})
	if err == nil && len(units) > 0 {
		u := units[0]
		for _, x := range units {
			if x.Name == unit {
				u = x
				break
			}
		}
		if u.LoadState == "not-found" {
			return monitor.StatusUnknown, fmt.Errorf("unit %s: %w", name, metrics.ErrUnitNotFound)
		}
		return mapActiveState(u.ActiveState), nil
	}

	// Fallback: property query (handles missing units or older backends).
	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnitErr(err) {
			return monitor.StatusUnknown, fmt.Errorf("unit %s: %w", name, metrics.ErrUnitNotFound)
		}
		return monitor.StatusUnknown, fmt.Errorf("failed to query %s: %w", name, err)
	}

	if load, _ := stringProp(props, "LoadState"); load == "not-found" {
		return monitor.StatusUnknown, fmt.Errorf("unit %s: %w", name, metrics.ErrUnitNotFound)
	}
	active, _ := stringProp(props, "ActiveState")
	return mapActiveState(active), nil
}

func mapActiveState(state string) monitor.Status {
	switch state {
	case "active":
		return monitor.StatusRunning
	case "inactive":
		return monitor.StatusStopped
	case "failed":
		return monitor.StatusFailed
	default:
		return monitor.StatusUnknown
	}
}

// UnitEnabled reports whether the unit is enabled on boot. Failures read as
// disabled; transient errors are not cached.
func (s *Systemd) UnitEnabled(ctx context.Context, name string) bool {
	now := time.Now()

	s.mu.RLock()
	conn := s.conn
	if conn == nil {
		s.mu.RUnlock()
		return false
	}
	if ent, ok := s.enabledCache[name]; ok && now.Before(ent.expires) {
		enabled := ent.enabled
		s.mu.RUnlock()
		return enabled
	}
	s.mu.RUnlock()

	unit := unitName(name)
	states, err := conn.ListUnitFilesByPatternsContext(ctx, nil, []string{unit})
	if err != nil {
		return false
	}

	enabled := false
	for _, state := range states {
		if state.Path == unit || strings.HasSuffix(state.Path, "/"+unit) {
			enabled = state.Type == "enabled"
			break
		}
	}

	s.mu.Lock()
	if s.enabledCache != nil {
		s.enabledCache[name] = enabledCacheEntry{enabled: enabled, expires: now.Add(enabledCacheTTL)}
	}
	s.mu.Unlock()

	return enabled
}

// ResolveUnit maps a service name to its canonical unit name, verifying the
// unit is actually installed. This is the metrics aggregator's only hard
// failure path.
func (s *Systemd) ResolveUnit(ctx context.Context, name string) (string, error) {
	conn, err := s.connection()
	if err != nil {
		return "", err
	}

	unit := unitName(name)
	props, err := conn.GetUnitPropertiesContext(ctx, unit)
	if err != nil {
		if isNoSuchUnitErr(err) {
			return "", fmt.Errorf("service %q: %w", name, metrics.ErrUnitNotFound)
		}
		return "", fmt.Errorf("failed to resolve %s: %w", name, err)
	}
	if load, _ := stringProp(props, "LoadState"); load == "not-found" {
		return "", fmt.Errorf("service %q: %w", name, metrics.ErrUnitNotFound)
	}
	return unit, nil
}

// MainPID returns the unit's primary process id, 0 when the unit has none.
func (s *Systemd) MainPID(ctx context.Context, unit string) (int32, error) {
	conn, err := s.connection()
	if err != nil {
		return 0, err
	}

	props, err := conn.GetUnitTypePropertiesContext(ctx, unitName(unit), "Service")
	if err != nil {
		return 0, fmt.Errorf("main pid lookup for %s: %w", unit, err)
	}
	if pid, ok := props["MainPID"].(uint32); ok {
		return int32(pid), nil
	}
	return 0, nil
}

// ControlGroup returns the unit's control-group path, "" when unset.
func (s *Systemd) ControlGroup(ctx context.Context, unit string) (string, error) {
	conn, err := s.connection()
	if err != nil {
		return "", err
	}

	props, err := conn.GetUnitTypePropertiesContext(ctx, unitName(unit), "Service")
	if err != nil {
		return "", fmt.Errorf("control group lookup for %s: %w", unit, err)
	}
	cg, _ := props["ControlGroup"].(string)
	return cg, nil
}

func isNoSuchUnitErr(err error) bool {
	if err == nil {
		return false
	}
	es := err.Error()
	// systemd returns org.freedesktop.systemd1.NoSuchUnit for missing units.
	if strings.Contains(es, "NoSuchUnit") {
		return true
	}
	return strings.Contains(es, "not-found")
}

func stringProp(props map[string]interface{}, key string) (string, bool) {
	if val, ok := props[key].(string); ok {
		return val, true
	}
	return "", false
}
