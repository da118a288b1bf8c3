package hub

import (
	"encoding/json"
	"sync"
	"sync/atomic"

	pkglog "github.com/slatecast/slatecast/pkg/log"

	"github.com/slatecast/slatecast/internal/protocol"
)

// Fabric distributes broadcast-worthy events to every subscribed
// connection. Delivery is best-effort and order-preserving per
// subscriber but not guaranteed: a subscriber that falls behind has its
// oldest undelivered events dropped in favor of newer ones, so the
// publisher never blocks and backlog stays bounded. This lag-drop
// policy protects the publishing path and is intentional.
type Fabric struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
}

// Subscription is one connection's view of the fabric. Events arrive on
// Events() in publish order, minus any dropped under lag.
type Subscription struct {
	id      uint64
	ch      chan []byte
	fabric  *Fabric
	dropped atomic.Uint64
	once    sync.Once
}

// NewFabric creates a fabric whose subscribers each buffer up to buffer
// undelivered events.
func NewFabric(buffer int) *Fabric {
	if buffer < 1 {
		buffer = 1
	}
	return &Fabric{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. The subscriber sees only events
// published after this call.
func (f *Fabric) Subscribe() *Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.nextID++
	sub := &Subscription{
		id:     f.nextID,
		ch:     make(chan []byte, f.buffer),
		fabric: f,
	}
	f.subs[sub.id] = sub
	return sub
}

// Publish fans an event out to all current subscribers. Events whose
// kind is not broadcast-worthy are discarded here, so the filter is
// applied identically no matter where the publish originates.
func (f *Fabric) Publish(ev protocol.Event) {
	f.PublishExcept(ev, nil)
}

// PublishExcept publishes to every subscriber but one: the originator
// of a command already received the event as its direct response.
func (f *Fabric) PublishExcept(ev protocol.Event, except *Subscription) {
	if ev == nil || !protocol.Broadcastable(ev.Kind()) {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		pkglog.L().Error().Err(err).Str("event", ev.Kind()).Msg("failed to marshal broadcast event")
		return
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	for _, sub := range f.subs {
		if sub == except {
			continue
		}
		sub.offer(data)
	}
}

// SubscriberCount returns the number of live subscriptions.
func (f *Fabric) SubscriberCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.subs)
}

func (f *Fabric) remove(id uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if sub, ok := f.subs[id]; ok {
		delete(f.subs, id)
		close(sub.ch)
	}
}

// Events returns the subscriber's delivery channel. It is closed when
// the subscription is cancelled.
func (s *Subscription) Events() <-chan []byte {
	return s.ch
}

// Dropped reports how many events this subscriber lost to lag.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Cancel detaches the subscriber from the fabric and closes its
// channel. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.fabric.remove(s.id)
	})
}

// offer enqueues without ever blocking the publisher: when the buffer
// is full the oldest queued event is evicted to make room.
func (s *Subscription) offer(data []byte) {
	for {
		select {
		case s.ch <- data:
			return
		default:
		}
		select {
		case <-s.ch:
			s.dropped.Add(1)
		default:
		}
	}
}
