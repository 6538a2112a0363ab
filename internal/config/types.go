package config

// Config is the daemon's root configuration.
//
// All durations are Go duration strings (e.g. "500ms", "5s", "1m").
type Config struct {
	Logging LoggingConfig `json:"logging"`
	Storage StorageConfig `json:"storage"`
	Monitor MonitorConfig `json:"monitor"`
	Metrics MetricsConfig `json:"metrics,omitempty"`
	Report  ReportConfig  `json:"report,omitempty"`
	Notify  *NotifyConfig `json:"notify,omitempty"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StorageConfig controls the SQLite tracking store.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// MonitorConfig controls the status poll loop.
//
// Defaults (when fields are omitted/zero):
//   - poll_interval: "5s"
//   - query_timeout: "2s"
type MonitorConfig struct {
	PollInterval string `json:"poll_interval,omitempty"`
	QueryTimeout string `json:"query_timeout,omitempty"`
}

// MetricsConfig controls process discovery for resource collection.
type MetricsConfig struct {
	CgroupRoot string `json:"cgroup_root,omitempty"` // default: /sys/fs/cgroup
	ProcRoot   string `json:"proc_root,omitempty"`   // default: /proc
}

// ReportConfig controls the scheduled metrics summary.
type ReportConfig struct {
	Enabled        bool   `json:"enabled"`
	Schedule       string `json:"schedule,omitempty"` // cron expression or "@every 1m"
	CollectTimeout string `json:"collect_timeout,omitempty"`
}

// NotifyConfig controls the async delivery pipeline. If the whole section is
// omitted, delivery is log-only with defaults.
type NotifyConfig struct {
	Enabled         bool            `json:"enabled"`
	Workers         int             `json:"workers,omitempty"`
	QueueSize       int             `json:"queue_size,omitempty"`
	RatePerSec      int             `json:"rate_per_sec,omitempty"`
	RetryMax        int             `json:"retry_max,omitempty"`
	RetryBase       string          `json:"retry_base,omitempty"`
	RetryMaxDelay   string          `json:"retry_max_delay,omitempty"`
	DedupWindow     string          `json:"dedup_window,omitempty"`
	DedupMaxEntries int             `json:"dedup_max_entries,omitempty"`
	Telegram        *TelegramConfig `json:"telegram,omitempty"`
}

type TelegramConfig struct {
	Token  string `json:"token"`
	ChatID int64  `json:"chat_id"`
}
