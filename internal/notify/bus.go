package notify

import (
	"sync"
	"sync/atomic"

	"svcwatch/internal/monitor"
)

// Bus is an in-memory fanout for change events.
//
// Contract:
//   - Publish never blocks.
//   - Subscribers get buffered channels; slow subscribers drop events.
//
// It owns no background goroutines.
type Bus struct {
	mu   sync.RWMutex
	subs map[uint64]chan monitor.ChangeEvent
	seq  atomic.Uint64
}

func NewBus() *Bus {
	return &Bus{subs: map[uint64]chan monitor.ChangeEvent{}}
}

func (b *Bus) Publish(ev monitor.ChangeEvent) {
	// Snapshot subscribers so Publish doesn't hold locks while sending.
	b.mu.RLock()
	chs := make([]chan monitor.ChangeEvent, 0, len(b.subs))
	for _, ch := range b.subs {
		chs = append(chs, ch)
	}
	b.mu.RUnlock()

	for _, ch := range chs {
		// If a subscriber unsubscribes concurrently the channel may close
		// under us; recover covers the send-on-closed race.
		func() {
			defer func() { _ = recover() }()
			select {
			case ch <- ev:
			default:
			}
		}()
	}
}

func (b *Bus) Subscribe(buffer int) (<-chan monitor.ChangeEvent, func()) {
	if buffer <= 0 {
		buffer = 8
	}
	ch := make(chan monitor.ChangeEvent, buffer)
	id := b.seq.Add(1)

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			// Closing is safe because Publish recovers from send panics.
			close(ch)
		})
	}
	return ch, unsub
}
