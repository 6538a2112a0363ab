package monitor

import (
	"context"
	"sort"
	"time"

	logx "svcwatch/pkg/logx"
)

const (
	defaultInterval     = 5 * time.Second
	defaultQueryTimeout = 2 * time.Second
)

// PollerConfig controls cycle scheduling.
type PollerConfig struct {
	// Interval between cycle starts. Cycles never overlap: if a cycle runs
	// longer than the interval, the next tick is delayed, not run concurrently.
	Interval time.Duration

	// QueryTimeout bounds each per-service OS query so one unresponsive unit
	// cannot stall a whole cycle. On timeout the query counts as failed and
	// the service degrades to unknown.
	QueryTimeout time.Duration
}

// StatusPoller maintains the rolling "last known status" table and emits
// exactly the events needed to describe how it changed since the previous
// cycle.
//
// The prev table is owned exclusively by the poller and mutated only from
// runCycle; nothing else reads or writes it, so no locking is needed as long
// as cycles stay sequential (Run guarantees that).
type StatusPoller struct {
	cfg    PollerConfig
	source TrackedSource
	units  UnitQuerier
	pub    Publisher
	log    logx.Logger

	prev map[string]StatusSnapshot
}

func NewStatusPoller(cfg PollerConfig, source TrackedSource, units UnitQuerier, pub Publisher, log logx.Logger) *StatusPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.QueryTimeout <= 0 {
		cfg.QueryTimeout = defaultQueryTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &StatusPoller{
		cfg:    cfg,
		source: source,
		units:  units,
		pub:    pub,
		log:    log,
		prev:   map[string]StatusSnapshot{},
	}
}

// Run executes poll cycles on a fixed-period ticker until ctx is cancelled.
// It blocks; callers run it in a goroutine.
func (p *StatusPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.log.Info("status poller started", logx.Duration("interval", p.cfg.Interval))

	for {
		select {
		case <-ctx.Done():
			p.log.Info("status poller stopped")
			return
		case <-ticker.C:
			p.runCycle(ctx)
		}
	}
}

// runCycle performs one full observe-diff-publish pass.
//
// Failure policy:
//   - tracked-set fetch failure: log and return, keeping the prior table
//     intact so the next cycle diffs against real data.
//   - per-service query failure: that service is recorded as unknown with
//     enabled=false and the cycle continues.
//   - publish failure: logged per event, remaining events still go out.
func (p *StatusPoller) runCycle(ctx context.Context) {
	tracked, err := p.source.ListTracked(ctx)
	if err != nil {
		p.log.Error("failed to fetch tracked services", logx.Err(err))
		return
	}

	now := time.Now().UTC()
	current := make(map[string]StatusSnapshot, len(tracked))

	for _, ref := range tracked {
		if !ref.Enabled {
			// Disabled services are invisible to the poller.
			continue
		}
		current[ref.Name] = p.observe(ctx, ref.Name, now)
	}

	events := diff(p.prev, current, now)
	p.prev = current

	for _, ev := range events {
		if err := p.pub.Publish(ev); err != nil {
			p.log.Warn("event publish failed",
				logx.String("service", ev.Name),
				logx.String("kind", string(ev.Kind)),
				logx.Err(err),
			)
		}
	}

	if len(events) > 0 {
		p.log.Debug("poll cycle complete",
			logx.Int("observed", len(current)),
			logx.Int("events", len(events)),
		)
	}
}

// observe queries one service's current state, degrading to unknown on error.
func (p *StatusPoller) observe(ctx context.Context, name string, now time.Time) StatusSnapshot {
	qctx, cancel := context.WithTimeout(ctx, p.cfg.QueryTimeout)
	defer cancel()

	st, err := p.units.UnitState(qctx, name)
	if err != nil {
		p.log.Warn("unit state query failed", logx.String("service", name), logx.Err(err))
		return StatusSnapshot{Name: name, Status: StatusUnknown, Enabled: false, ObservedAt: now}
	}

	return StatusSnapshot{
		Name:       name,
		Status:     st,
		Enabled:    p.units.UnitEnabled(qctx, name),
		ObservedAt: now,
	}
}

// diff compares two snapshot generations and produces change events in rule
// order: changed, then appeared, then disappeared. Within a rule, events are
// sorted by service name for stable output.
func diff(prev, current map[string]StatusSnapshot, now time.Time) []ChangeEvent {
	var events []ChangeEvent

	for _, name := range sortedKeys(current) {
		cur := current[name]
		old, ok := prev[name]
		if !ok {
			continue
		}
		if old.Status != cur.Status {
			events = append(events, ChangeEvent{
				Kind:      EventStatusChanged,
				Name:      name,
				OldStatus: old.Status,
				NewStatus: cur.Status,
				At:        cur.ObservedAt,
			})
		}
	}

	for _, name := range sortedKeys(current) {
		if _, ok := prev[name]; ok {
			continue
		}
		cur := current[name]
		events = append(events, ChangeEvent{
			Kind:      EventServiceAppeared,
			Name:      name,
			NewStatus: cur.Status,
			At:        cur.ObservedAt,
		})
	}

	for _, name := range sortedKeys(prev) {
		if _, ok := current[name]; ok {
			continue
		}
		events = append(events, ChangeEvent{
			Kind: EventServiceDisappeared,
			Name: name,
			At:   now,
		})
	}

	return events
}

func sortedKeys(m map[string]StatusSnapshot) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
