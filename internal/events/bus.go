package events

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"
)

// Subscription is a live event stream. Slow consumers lose the oldest
// buffered events; the bus history still holds them for Since.
type Subscription struct {
	ID      string
	Filter  EventFilter
	Created time.Time

	ch      chan Event
	dropped atomic.Int64
}

// Events returns the delivery channel. It is closed on Unsubscribe or Close.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded for this subscriber.
func (s *Subscription) Dropped() int64 {
	return s.dropped.Load()
}

// Bus stores recent events and fans them out to subscribers.
type Bus struct {
	cfg    Config
	logger hclog.Logger

	mu      sync.RWMutex
	nextSeq int64
	events  []Event
	subs    map[string]*Subscription
	byType  map[string]int64
	total   int64
	dropped int64
	closed  bool
}

// NewBus creates a bounded in-memory event bus.
func NewBus(cfg Config, logger hclog.Logger) *Bus {
	defaults := DefaultConfig()
	if cfg.MaxStoredEvents <= 0 {
		cfg.MaxStoredEvents = defaults.MaxStoredEvents
	}
	if cfg.SubscriberBuffer <= 0 {
		cfg.SubscriberBuffer = defaults.SubscriberBuffer
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Bus{
		cfg:    cfg,
		logger: logger.Named("events"),
		events: make([]Event, 0, cfg.MaxStoredEvents),
		subs:   make(map[string]*Subscription),
		byType: make(map[string]int64),
	}
}

// Publish assigns the next sequence number and timestamp, stores the event
// and delivers it to matching subscribers without blocking.
func (b *Bus) Publish(event Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return event
	}
	b.nextSeq++
	event.Seq = b.nextSeq
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.events = append(b.events, event)
	if len(b.events) > b.cfg.MaxStoredEvents {
		trim := len(b.events) - b.cfg.MaxStoredEvents
		b.events = append([]Event(nil), b.events[trim:]...)
	}
	b.total++
	b.byType[string(event.Type)]++

	for _, sub := range b.subs {
		if MatchesFilter(event, sub.Filter) {
			b.deliver(sub, event)
		}
	}
	return event
}

// deliver sends without blocking, evicting the oldest buffered event when the
// subscriber is full. Called with b.mu held, so sends are ordered.
func (b *Bus) deliver(sub *Subscription, event Event) {
	select {
	case sub.ch <- event:
		return
	default:
	}
	select {
	case <-sub.ch:
		sub.dropped.Add(1)
		b.dropped++
	default:
	}
	select {
	case sub.ch <- event:
	default:
		sub.dropped.Add(1)
		b.dropped++
	}
}

// Since returns stored events with sequence strictly greater than seq.
func (b *Bus) Since(seq int64, filter EventFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Event, 0, len(b.events))
	for _, event := range b.events {
		if event.Seq > seq && MatchesFilter(event, filter) {
			out = append(out, event)
		}
	}
	return out
}

// Subscribe opens a live stream of events matching filter.
func (b *Bus) Subscribe(filter EventFilter) *Subscription {
	sub := &Subscription{
		ID:      uuid.NewString(),
		Filter:  filter,
		Created: time.Now(),
		ch:      make(chan Event, b.cfg.SubscriberBuffer),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(sub.ch)
		return sub
	}
	b.subs[sub.ID] = sub
	b.logger.Debug("subscription added", "subscription_id", sub.ID, "active", len(b.subs))
	return sub
}

// Unsubscribe closes and removes a subscription. Unknown ids are ignored.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sub, ok := b.subs[id]
	if !ok {
		return
	}
	delete(b.subs, id)
	close(sub.ch)
	if n := sub.Dropped(); n > 0 {
		b.logger.Debug("subscription removed", "subscription_id", id, "dropped", n)
	}
}

// Stats returns event bus statistics.
func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	byType := make(map[string]int64, len(b.byType))
	for k, v := range b.byType {
		byType[k] = v
	}
	return Stats{
		TotalEvents:         b.total,
		EventsByType:        byType,
		ActiveSubscriptions: len(b.subs),
		Dropped:             b.dropped,
		LastSeq:             b.nextSeq,
	}
}

// Close ends every subscription. Later publishes are discarded.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}
