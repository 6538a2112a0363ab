package app

import (
	"fmt"
	"strings"
	"time"

	"svcwatch/internal/config"
	"svcwatch/internal/monitor"
	"svcwatch/internal/notify"
	"svcwatch/internal/report"
	"svcwatch/internal/store"
)

func mapStoreConfig(cfg *config.Config) (store.Config, error) {
	path := strings.TrimSpace(cfg.Storage.Path)
	if path == "" {
		path = "./svcwatch.db"
	}
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, 5*time.Second)
	if err != nil {
		return store.Config{}, err
	}
	return store.Config{Path: path, BusyTimeout: busy}, nil
}

func mapPollerConfig(cfg *config.Config) (monitor.PollerConfig, error) {
	interval, err := config.ParseDurationOrDefault("monitor.poll_interval", cfg.Monitor.PollInterval, 5*time.Second)
	if err != nil {
		return monitor.PollerConfig{}, err
	}
	timeout, err := config.ParseDurationOrDefault("monitor.query_timeout", cfg.Monitor.QueryTimeout, 2*time.Second)
	if err != nil {
		return monitor.PollerConfig{}, err
	}
	if timeout >= interval {
		return monitor.PollerConfig{}, fmt.Errorf("monitor.query_timeout must be shorter than monitor.poll_interval")
	}
	return monitor.PollerConfig{Interval: interval, QueryTimeout: timeout}, nil
}

func mapNotifyConfig(cfg *config.Config) (notify.Config, error) {
	n := cfg.Notify
	if n == nil {
		return notify.Config{Enabled: true}, nil
	}
	retryBase, err := config.ParseDurationField("notify.retry_base", n.RetryBase)
	if err != nil {
		return notify.Config{}, err
	}
	retryMaxDelay, err := config.ParseDurationField("notify.retry_max_delay", n.RetryMaxDelay)
	if err != nil {
		return notify.Config{}, err
	}
	dedupWindow, err := config.ParseDurationField("notify.dedup_window", n.DedupWindow)
	if err != nil {
		return notify.Config{}, err
	}
	if n.Workers < 0 {
		return notify.Config{}, fmt.Errorf("notify.workers must be >= 0")
	}
	if n.QueueSize < 0 {
		return notify.Config{}, fmt.Errorf("notify.queue_size must be >= 0")
	}
	if n.RetryMax < 0 {
		return notify.Config{}, fmt.Errorf("notify.retry_max must be >= 0")
	}
	return notify.Config{
		Enabled:         n.Enabled,
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       retryBase,
		RetryMaxDelay:   retryMaxDelay,
		DedupWindow:     dedupWindow,
		DedupMaxEntries: n.DedupMaxEntries,
	}, nil
}

func mapReportConfig(cfg *config.Config) (report.Config, error) {
	timeout, err := config.ParseDurationOrDefault("report.collect_timeout", cfg.Report.CollectTimeout, 5*time.Second)
	if err != nil {
		return report.Config{}, err
	}
	return report.Config{
		Enabled:        cfg.Report.Enabled,
		Schedule:       cfg.Report.Schedule,
		CollectTimeout: timeout,
	}, nil
}

func validateConfig(cfg *config.Config) error {
	if _, err := mapStoreConfig(cfg); err != nil {
		return err
	}
	if _, err := mapPollerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifyConfig(cfg); err != nil {
		return err
	}
	if _, err := mapReportConfig(cfg); err != nil {
		return err
	}
	if n := cfg.Notify; n != nil && n.Telegram != nil {
		if strings.TrimSpace(n.Telegram.Token) == "" {
			return fmt.Errorf("notify.telegram.token is required when the section is present")
		}
		if n.Telegram.ChatID == 0 {
			return fmt.Errorf("notify.telegram.chat_id is required when the section is present")
		}
	}
	return nil
}
