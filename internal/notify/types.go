package notify

import (
	"context"
	"time"
)

// Config controls the async delivery pipeline.
type Config struct {
	Enabled         bool
	Workers         int
	QueueSize       int
	RatePerSec      int
	RetryMax        int
	RetryBase       time.Duration
	RetryMaxDelay   time.Duration
	DedupWindow     time.Duration
	DedupMaxEntries int
}

// Sink delivers one rendered message to an external channel.
type Sink interface {
	Name() string
	Send(ctx context.Context, text string) error
}

type HistoryItem struct {
	At   time.Time
	Text string
}
