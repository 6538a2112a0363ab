// Package app wires the daemon together: config, logging, store, systemd
// probe, status poller, metrics reporter and the notification pipeline.
package app

import (
	"context"
	"strings"
	"time"

	"svcwatch/internal/config"
	"svcwatch/internal/metrics"
	"svcwatch/internal/monitor"
	"svcwatch/internal/notify"
	"svcwatch/internal/probe"
	"svcwatch/internal/report"
	rtsup "svcwatch/internal/runtime/supervisor"
	"svcwatch/internal/store"
	logx "svcwatch/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  *notify.Bus

	store *store.Store

	sd     *probe.Systemd
	poller *monitor.StatusPoller
	agg    *metrics.Aggregator
	notif  *notify.Service
	rep    *report.Reporter

	// lastApplied is the config currently in effect; reload diffs against it.
	lastApplied *config.Config
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	sc, err := mapStoreConfig(cfg)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(sc, log.With(logx.String("comp", "store")))
	if err != nil {
		return nil, err
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     notify.NewBus(),
		store:   st,
	}, nil
}

// Bus exposes the change-event fanout for embedders and tests.
func (a *App) Bus() *notify.Bus { return a.bus }

// Done is closed when the supervisor context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	cfg := a.cfgm.Get()
	a.lastApplied = cfg

	sd, err := probe.NewSystemd(a.sup.Context())
	if err != nil {
		return err
	}
	a.sd = sd

	finder := probe.NewFinder(sd)
	if root := strings.TrimSpace(cfg.Metrics.CgroupRoot); root != "" {
		finder.CgroupRoot = root
	}
	pp := probe.NewProcProbe()
	if root := strings.TrimSpace(cfg.Metrics.ProcRoot); root != "" {
		pp.ProcRoot = root
	}
	a.agg = metrics.NewAggregator(sd, finder, pp, a.log.With(logx.String("comp", "metrics")))

	// Notification pipeline: log sink always, Telegram when configured.
	ncfg, err := mapNotifyConfig(cfg)
	if err != nil {
		return err
	}
	sinks := []notify.Sink{notify.NewLogSink(a.log.With(logx.String("comp", "notify")))}
	if n := cfg.Notify; n != nil && n.Telegram != nil {
		tg, err := notify.NewTelegramSink(notify.TelegramConfig{
			Token:  n.Telegram.Token,
			ChatID: n.Telegram.ChatID,
		}, a.log.With(logx.String("comp", "telegram")))
		if err != nil {
			return err
		}
		sinks = append(sinks, tg)
		a.log.Info("telegram sink enabled", logx.Int64("chat_id", n.Telegram.ChatID))
	}
	a.notif = notify.New(ncfg, a.bus, sinks, a.log.With(logx.String("comp", "notify")))
	a.notif.Start(a.sup.Context())

	pcfg, err := mapPollerConfig(cfg)
	if err != nil {
		return err
	}
	a.poller = monitor.NewStatusPoller(pcfg, a.store, sd, a.notif, a.log.With(logx.String("comp", "monitor")))
	a.sup.GoRestart("monitor.poller", func(ctx context.Context) error {
		a.poller.Run(ctx)
		return ctx.Err()
	})

	rcfg, err := mapReportConfig(cfg)
	if err != nil {
		return err
	}
	a.rep = report.New(rcfg, a.store, a.agg, a.log.With(logx.String("comp", "report")))
	if err := a.rep.Start(a.sup.Context()); err != nil {
		return err
	}

	a.startConfigWatch()

	a.log.Info("svcwatch started",
		logx.Duration("poll_interval", pcfg.Interval),
		logx.Bool("report_enabled", rcfg.Enabled),
		logx.Int("sinks", len(sinks)))
	return nil
}

// startConfigWatch hot-reloads runtime-tunable settings: log level/outputs
// and notify pipeline knobs. Poll interval and storage path need a restart.
func (a *App) startConfigWatch() {
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		return validateConfig(cfg)
	})

	updates := a.cfgm.Subscribe(1)
	a.sup.Go("config.watch", func(ctx context.Context) error {
		defer a.cfgm.Unsubscribe(updates)
		go func() { _ = a.cfgm.Watch(ctx) }()
		for {
			select {
			case <-ctx.Done():
				return nil
			case cfg, ok := <-updates:
				if !ok {
					return nil
				}
				a.applyRuntimeConfig(cfg)
			}
		}
	})
}

func (a *App) applyRuntimeConfig(cfg *config.Config) {
	old := a.lastApplied
	a.lastApplied = cfg
	changed, attrs := config.SummarizeChange(old, cfg)
	if len(changed) > 0 {
		a.log.Info("applying config change",
			append([]logx.Field{logx.Any("sections", changed)}, attrs...)...)
	}

	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if ncfg, err := mapNotifyConfig(cfg); err == nil && a.notif != nil {
		a.notif.Apply(ncfg)
	}
}

func (a *App) Stop(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	if a.rep != nil {
		a.rep.Stop(ctx)
	}
	if a.notif != nil {
		a.notif.Stop(ctx)
	}

	var err error
	if a.sup != nil {
		err = a.sup.Stop(ctx)
	}
	if a.sd != nil {
		_ = a.sd.Close()
	}
	if a.store != nil {
		_ = a.store.Close()
	}
	a.log.Info("svcwatch stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}
