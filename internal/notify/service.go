// Package notify fans change events out to subscribers and delivers rendered
// messages to external sinks through an async queue with rate limiting,
// retry and dedup.
package notify

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"svcwatch/internal/monitor"
	rtsup "svcwatch/internal/runtime/supervisor"
	logx "svcwatch/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notify queue full")
	ErrStopped   = errors.New("notify stopped")
)

type job struct {
	text     string
	dedupKey string
}

// Service implements monitor.Publisher. Publish is cheap and non-blocking;
// delivery to sinks happens on a worker pool.
//
// It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log   logx.Logger
	bus   *Bus
	sinks []Sink

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	queue     chan job
	sup       *rtsup.Supervisor

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, bus *Bus, sinks []Sink, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		log:   log,
		bus:   bus,
		sinks: sinks,
		dedup: map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.RetryMax < 0 {
		cfg.RetryMax = 0
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 500 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 2000
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't stall workers.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Apply swaps the delivery configuration at runtime.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

// Start is idempotent. Without sinks or when disabled, the service still
// fans events out on the bus but delivers nothing.
func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	if !s.cfg.Enabled || len(s.sinks) == 0 {
		return
	}

	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx,
		rtsup.WithLogger(s.log.With(logx.String("comp", "notify"))))

	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		name := fmt.Sprintf("worker.%d", i)
		s.sup.Go(name, func(ctx context.Context) error {
			s.workerLoop(ctx, q)
			return nil
		})
	}
}

// Stop stops intake and drains the queue until ctx expires.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q := s.queue
	sup := s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	s.accepting = false
	s.queue = nil
	s.sup = nil
	s.mu.Unlock()

	close(q)
	if sup != nil {
		if err := sup.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			if errors.Is(err, context.DeadlineExceeded) {
				sup.Cancel()
			}
		}
	}
}

// Publish satisfies monitor.Publisher. The event always reaches the bus;
// sink delivery is queued when the service accepts messages.
func (s *Service) Publish(ev monitor.ChangeEvent) error {
	if s.bus != nil {
		s.bus.Publish(ev)
	}

	s.mu.Lock()
	q := s.queue
	accepting := s.accepting
	window := s.cfg.DedupWindow
	maxEntries := s.cfg.DedupMaxEntries
	s.mu.Unlock()

	if q == nil || !accepting {
		return nil
	}

	text := Render(ev)
	key := dedupKey(ev)
	if window > 0 && !s.dedupAllow(key, window, maxEntries) {
		s.log.Debug("event deduped", logx.String("service", ev.Name), logx.String("kind", string(ev.Kind)))
		return nil
	}

	queued, open := enqueue(q, job{text: text, dedupKey: key})
	if !open {
		// Stop closed the queue between the snapshot and the send.
		return nil
	}
	if !queued {
		s.log.Warn("event dropped", logx.String("service", ev.Name), logx.Err(ErrQueueFull))
		return ErrQueueFull
	}
	return nil
}

// enqueue never blocks. Stop may close q while a Publish is in flight;
// recover covers the send-on-closed race the same way the bus does.
func enqueue(q chan job, j job) (queued, open bool) {
	defer func() {
		if recover() != nil {
			queued, open = false, false
		}
	}()
	select {
	case q <- j:
		return true, true
	default:
		return false, true
	}
}

// History returns recently delivered messages, newest last.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

func (s *Service) appendHistory(text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), Text: text})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sinks := s.sinks
	s.mu.Unlock()

	if j.text == "" || len(sinks) == 0 {
		return
	}

	maxAttempts := 1 + cfg.RetryMax
	delivered := false

	for _, sink := range sinks {
		var lastErr error
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if lim != nil {
				if err := lim.Wait(ctx); err != nil {
					return
				}
			}

			callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			err := sink.Send(callCtx, j.text)
			cancel()
			if err == nil {
				lastErr = nil
				delivered = true
				break
			}
			lastErr = err
			s.log.Debug("sink send failed",
				logx.String("sink", sink.Name()), logx.Err(err),
				logx.Int("attempt", attempt), logx.Int("max", maxAttempts))

			if attempt >= maxAttempts {
				break
			}
			delay := retryDelay(cfg, attempt)
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				if !t.Stop() {
					<-t.C
				}
				return
			}
		}
		if lastErr != nil {
			s.log.Warn("delivery failed",
				logx.String("sink", sink.Name()), logx.Err(lastErr))
		}
	}
	// History records delivered messages only.
	if delivered {
		s.appendHistory(j.text)
	}
}

func dedupKey(ev monitor.ChangeEvent) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(ev.Kind))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(ev.Name))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(ev.OldStatus))
	_, _ = h.Write([]byte("|"))
	_, _ = h.Write([]byte(ev.NewStatus))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, max int) bool {
	now := time.Now()

	s.dmu.Lock()
	defer s.dmu.Unlock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for max > 0 && len(s.dedup) > max {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		if !set {
			break
		}
		delete(s.dedup, minKey)
	}
	return true
}

func retryDelay(cfg Config, attempt int) time.Duration {
	d := cfg.RetryBase
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= cfg.RetryMaxDelay {
			d = cfg.RetryMaxDelay
			break
		}
	}
	// Jitter 0.7..1.3
	j := 0.7 + rand.Float64()*0.6
	d = time.Duration(float64(d) * j)
	if d > cfg.RetryMaxDelay {
		d = cfg.RetryMaxDelay
	}
	if d < 0 {
		return 0
	}
	return d
}
