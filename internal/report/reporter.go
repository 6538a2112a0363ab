// Package report periodically collects resource metrics for every enabled
// tracked service and logs a per-service summary.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/robfig/cron/v3"

	"svcwatch/internal/metrics"
	"svcwatch/internal/monitor"
	logx "svcwatch/pkg/logx"
)

// Collector produces one resource snapshot per service.
// Implemented by metrics.Aggregator.
type Collector interface {
	Collect(ctx context.Context, serviceName string) (metrics.Snapshot, error)
}

type Config struct {
	Enabled        bool
	Schedule       string        // cron expression or "@every 1m" form
	CollectTimeout time.Duration // per-service bound
}

type Reporter struct {
	cfg Config
	src monitor.TrackedSource
	col Collector
	log logx.Logger

	mu sync.Mutex
	c  *cron.Cron
}

func New(cfg Config, src monitor.TrackedSource, col Collector, log logx.Logger) *Reporter {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = "@every 1m"
	}
	if cfg.CollectTimeout <= 0 {
		cfg.CollectTimeout = 5 * time.Second
	}
	return &Reporter{cfg: cfg, src: src, col: col, log: log}
}

// Start registers the schedule and begins reporting. Idempotent.
func (r *Reporter) Start(ctx context.Context) error {
	if !r.cfg.Enabled {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return nil
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(r.cfg.Schedule); err != nil {
		return fmt.Errorf("parse report schedule %q: %w", r.cfg.Schedule, err)
	}

	c := cron.New(cron.WithParser(parser))
	_, err := c.AddFunc(r.cfg.Schedule, func() { r.RunOnce(ctx) })
	if err != nil {
		return err
	}
	c.Start()
	r.c = c
	r.log.Info("reporter started", logx.String("schedule", r.cfg.Schedule))
	return nil
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	stopped := c.Stop()
	select {
	case <-stopped.Done():
	case <-ctx.Done():
	}
}

// RunOnce collects and logs one summary for every enabled tracked service.
func (r *Reporter) RunOnce(ctx context.Context) {
	refs, err := r.src.ListTracked(ctx)
	if err != nil {
		r.log.Warn("report skipped", logx.Err(err))
		return
	}

	for _, ref := range refs {
		if !ref.Enabled {
			continue
		}
		cctx, cancel := context.WithTimeout(ctx, r.cfg.CollectTimeout)
		snap, err := r.col.Collect(cctx, ref.Name)
		cancel()
		if err != nil {
			if errors.Is(err, metrics.ErrUnitNotFound) {
				r.log.Warn("service unit not found", logx.String("service", ref.Name))
			} else {
				r.log.Warn("metrics collection failed", logx.String("service", ref.Name), logx.Err(err))
			}
			continue
		}
		r.log.Info("service metrics",
			logx.String("service", snap.ServiceName),
			logx.String("cpu", fmt.Sprintf("%.1f%%", snap.CPUPercent)),
			logx.String("mem", humanize.IBytes(snap.MemoryBytes)),
			logx.String("net_in", humanize.IBytes(snap.NetworkInBytes)),
			logx.String("net_out", humanize.IBytes(snap.NetworkOutBytes)),
			logx.String("disk_read", humanize.IBytes(snap.DiskReadBytes)),
			logx.String("disk_write", humanize.IBytes(snap.DiskWriteBytes)),
			logx.Uint64("procs", uint64(snap.ProcessCount)),
			logx.Uint64("fds", uint64(snap.OpenFileCount)))
	}
}
