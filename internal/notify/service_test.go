package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"svcwatch/internal/monitor"
	logx "svcwatch/pkg/logx"
)

type captureSink struct {
	mu    sync.Mutex
	sent  []string
	fails int // fail the first N sends
}

func (c *captureSink) Name() string { return "capture" }

func (c *captureSink) Send(_ context.Context, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fails > 0 {
		c.fails--
		return errors.New("send failed")
	}
	c.sent = append(c.sent, text)
	return nil
}

func (c *captureSink) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.sent...)
}

func changeEvent(name string, old, new monitor.Status) monitor.ChangeEvent {
	return monitor.ChangeEvent{
		Kind:      monitor.EventStatusChanged,
		Name:      name,
		OldStatus: old,
		NewStatus: new,
		At:        time.Now(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestBusFanout(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch1, unsub1 := bus.Subscribe(4)
	ch2, unsub2 := bus.Subscribe(4)
	defer unsub1()
	defer unsub2()

	ev := changeEvent("nginx.service", monitor.StatusRunning, monitor.StatusStopped)
	bus.Publish(ev)

	for _, ch := range []<-chan monitor.ChangeEvent{ch1, ch2} {
		select {
		case got := <-ch:
			if got.Name != "nginx.service" {
				t.Fatalf("unexpected event: %+v", got)
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusSlowSubscriberDrops(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	_, unsub := bus.Subscribe(1)
	defer unsub()

	// Second publish must not block even though the buffer is full.
	done := make(chan struct{})
	go func() {
		bus.Publish(changeEvent("a.service", monitor.StatusRunning, monitor.StatusStopped))
		bus.Publish(changeEvent("b.service", monitor.StatusRunning, monitor.StatusStopped))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
}

func TestPublishDeliversToSink(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	svc := New(Config{Enabled: true, RatePerSec: 100}, NewBus(), []Sink{sink}, logx.Nop())
	svc.Start(context.Background())
	defer stopSvc(t, svc)

	if err := svc.Publish(changeEvent("web.service", monitor.StatusStopped, monitor.StatusRunning)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool { return len(sink.messages()) == 1 })
	got := sink.messages()[0]
	if !strings.Contains(got, "web.service") || !strings.Contains(got, "running") {
		t.Fatalf("unexpected message: %q", got)
	}
}

func TestPublishRetriesFailedSend(t *testing.T) {
	t.Parallel()

	sink := &captureSink{fails: 1}
	svc := New(Config{
		Enabled:    true,
		RatePerSec: 100,
		RetryMax:   2,
		RetryBase:  time.Millisecond,
	}, NewBus(), []Sink{sink}, logx.Nop())
	svc.Start(context.Background())
	defer stopSvc(t, svc)

	if err := svc.Publish(changeEvent("db.service", monitor.StatusRunning, monitor.StatusFailed)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return len(sink.messages()) == 1 })
}

func TestPublishDedupsRepeatedEvents(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	svc := New(Config{
		Enabled:     true,
		RatePerSec:  100,
		DedupWindow: time.Minute,
	}, NewBus(), []Sink{sink}, logx.Nop())
	svc.Start(context.Background())
	defer stopSvc(t, svc)

	ev := changeEvent("cache.service", monitor.StatusRunning, monitor.StatusStopped)
	if err := svc.Publish(ev); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := svc.Publish(ev); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}

	waitFor(t, func() bool { return len(sink.messages()) >= 1 })
	time.Sleep(50 * time.Millisecond)
	if n := len(sink.messages()); n != 1 {
		t.Fatalf("expected 1 delivered message, got %d", n)
	}
}

func TestPublishConcurrentWithStop(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	svc := New(Config{Enabled: true, RatePerSec: 100}, NewBus(), []Sink{sink}, logx.Nop())
	svc.Start(context.Background())

	// Publishers must survive Stop closing the queue under them.
	ev := changeEvent("busy.service", monitor.StatusRunning, monitor.StatusStopped)
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_ = svc.Publish(ev)
				}
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	stopSvc(t, svc)
	close(stop)
	wg.Wait()

	if err := svc.Publish(ev); err != nil {
		t.Fatalf("publish after stop: %v", err)
	}
}

func TestHistorySkipsUndeliveredMessages(t *testing.T) {
	t.Parallel()

	sink := &captureSink{fails: 100}
	svc := New(Config{
		Enabled:    true,
		RatePerSec: 100,
		RetryBase:  time.Millisecond,
	}, NewBus(), []Sink{sink}, logx.Nop())
	svc.Start(context.Background())

	if err := svc.Publish(changeEvent("down.service", monitor.StatusRunning, monitor.StatusFailed)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	stopSvc(t, svc)

	if got := svc.History(); len(got) != 0 {
		t.Fatalf("history records undelivered messages: %v", got)
	}

	ok := &captureSink{}
	svc2 := New(Config{Enabled: true, RatePerSec: 100}, NewBus(), []Sink{ok}, logx.Nop())
	svc2.Start(context.Background())
	defer stopSvc(t, svc2)

	if err := svc2.Publish(changeEvent("up.service", monitor.StatusStopped, monitor.StatusRunning)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, func() bool { return len(svc2.History()) == 1 })
}

func TestPublishWhenStoppedStillReachesBus(t *testing.T) {
	t.Parallel()

	bus := NewBus()
	ch, unsub := bus.Subscribe(4)
	defer unsub()

	svc := New(Config{Enabled: false}, bus, nil, logx.Nop())
	if err := svc.Publish(changeEvent("x.service", monitor.StatusRunning, monitor.StatusStopped)); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("bus subscriber did not receive event")
	}
}

func TestRenderByKind(t *testing.T) {
	t.Parallel()

	changed := Render(changeEvent("nginx.service", monitor.StatusRunning, monitor.StatusStopped))
	if !strings.Contains(changed, "running -> stopped") {
		t.Fatalf("unexpected render: %q", changed)
	}

	appeared := Render(monitor.ChangeEvent{Kind: monitor.EventServiceAppeared, Name: "new.service", NewStatus: monitor.StatusRunning})
	if !strings.Contains(appeared, "now monitored") {
		t.Fatalf("unexpected render: %q", appeared)
	}

	gone := Render(monitor.ChangeEvent{Kind: monitor.EventServiceDisappeared, Name: "old.service"})
	if !strings.Contains(gone, "no longer monitored") {
		t.Fatalf("unexpected render: %q", gone)
	}
}

func stopSvc(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	svc.Stop(ctx)
}
