package config

import (
	"reflect"
	"strings"

	logx "svcwatch/pkg/logx"
)

// SummarizeChange returns the list of changed sections plus safe structured
// attrs for logging. Secrets (telegram token) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 6)
	attrs := make([]logx.Field, 0, 12)

	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if oldCfg.Storage != newCfg.Storage {
		changed = append(changed, "storage")
		attrs = append(attrs, logx.String("storage.path", strings.TrimSpace(newCfg.Storage.Path)))
	}

	if oldCfg.Monitor != newCfg.Monitor {
		changed = append(changed, "monitor")
		attrs = append(attrs,
			logx.String("monitor.poll_interval", strings.TrimSpace(newCfg.Monitor.PollInterval)),
			logx.String("monitor.query_timeout", strings.TrimSpace(newCfg.Monitor.QueryTimeout)),
		)
	}

	if oldCfg.Metrics != newCfg.Metrics {
		changed = append(changed, "metrics")
	}

	if oldCfg.Report != newCfg.Report {
		changed = append(changed, "report")
		attrs = append(attrs,
			logx.Bool("report.enabled", newCfg.Report.Enabled),
			logx.String("report.schedule", strings.TrimSpace(newCfg.Report.Schedule)),
		)
	}

	if !notifyEqual(oldCfg.Notify, newCfg.Notify) {
		changed = append(changed, "notify")
		if n := newCfg.Notify; n != nil {
			attrs = append(attrs,
				logx.Bool("notify.enabled", n.Enabled),
				logx.Int("notify.workers", n.Workers),
				logx.Bool("notify.telegram_set", n.Telegram != nil && strings.TrimSpace(n.Telegram.Token) != ""),
			)
		}
	}

	return changed, attrs
}

func notifyEqual(a, b *NotifyConfig) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	if a == nil {
		return true
	}
	return reflect.DeepEqual(*a, *b)
}
