package monitor

import (
	"context"
	"time"
)

// Status is the normalized state of a tracked service.
//
// It is a closed set with no ordering; transitions are detected by value
// equality only.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
	StatusFailed  Status = "failed"
	StatusUnknown Status = "unknown"
)

// TrackedRef identifies a service under observation. The persistence layer
// owns these; the poller only reads a snapshot per cycle.
type TrackedRef struct {
	Name    string
	Enabled bool
}

// StatusSnapshot is one cycle's observation of a single service.
type StatusSnapshot struct {
	Name       string
	Status     Status
	Enabled    bool
	ObservedAt time.Time
}

// EventKind tags a ChangeEvent.
type EventKind string

const (
	EventStatusChanged      EventKind = "status_changed"
	EventServiceAppeared    EventKind = "service_appeared"
	EventServiceDisappeared EventKind = "service_disappeared"
)

// ChangeEvent describes one observed transition between two poll cycles.
//
// Events are immutable and timestamped at generation; they carry no identity
// beyond their content, so duplicates are harmless to consumers.
//
// Field usage by kind:
//   - status_changed: Name, OldStatus, NewStatus, At
//   - service_appeared: Name, NewStatus, At
//   - service_disappeared: Name, At
type ChangeEvent struct {
	Kind      EventKind `json:"type"`
	Name      string    `json:"service_name"`
	OldStatus Status    `json:"old_status,omitempty"`
	NewStatus Status    `json:"new_status,omitempty"`
	At        time.Time `json:"timestamp"`
}

// TrackedSource supplies the set of services the operator opted into
// monitoring. Implemented by the store.
type TrackedSource interface {
	ListTracked(ctx context.Context) ([]TrackedRef, error)
}

// UnitQuerier answers "what does the OS think of service X right now".
// Implemented by the systemd probe; faked in tests.
type UnitQuerier interface {
	UnitState(ctx context.Context, name string) (Status, error)
	UnitEnabled(ctx context.Context, name string) bool
}

// Publisher delivers change events to whatever sink is configured.
// Publish is fire-and-forget; a failure is non-fatal to the poller.
type Publisher interface {
	Publish(ev ChangeEvent) error
}
