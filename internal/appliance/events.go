package appliance

import (
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
)

// EventType names a class of applied state change.
type EventType string

const (
	EventStatus     EventType = "status"
	EventDeviceName EventType = "device_name"
	EventBroker     EventType = "broker"
	EventNetwork    EventType = "network"
)

// Event is published after the change it describes has been applied to the
// shared state or the interface. Seq increases by one per published event,
// so a consumer can detect events it missed.
type Event struct {
	Seq  uint64      `json:"seq"`
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// EventHandler is called synchronously from the goroutine that applied the
// change. It must not block.
type EventHandler func(Event)

type subscription struct {
	id      uint64
	types   []EventType
	handler EventHandler
}

func (s subscription) wants(t EventType) bool {
	return len(s.types) == 0 || slices.Contains(s.types, t)
}

// EventBus fans appliance events out to subscribers in subscription order.
type EventBus struct {
	mu     sync.RWMutex
	subs   []subscription
	nextID uint64
	seq    atomic.Uint64
	logger *slog.Logger
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// Subscribe registers handler for the given event types, or for every type
// when none are given. The returned function removes the subscription.
func (eb *EventBus) Subscribe(handler EventHandler, types ...EventType) (unsubscribe func()) {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	eb.nextID++
	id := eb.nextID
	eb.subs = append(eb.subs, subscription{id: id, types: slices.Clone(types), handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() {
			eb.mu.Lock()
			defer eb.mu.Unlock()
			eb.subs = slices.DeleteFunc(eb.subs, func(s subscription) bool { return s.id == id })
		})
	}
}

// Subscribers reports the number of active subscriptions.
func (eb *EventBus) Subscribers() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subs)
}

// Emit stamps event with the next sequence number and delivers it. A
// panicking handler is logged and does not stop delivery to the others.
func (eb *EventBus) Emit(event Event) {
	event.Seq = eb.seq.Add(1)

	eb.mu.RLock()
	targets := make([]EventHandler, 0, len(eb.subs))
	for _, s := range eb.subs {
		if s.wants(event.Type) {
			targets = append(targets, s.handler)
		}
	}
	eb.mu.RUnlock()

	for _, h := range targets {
		eb.deliver(h, event)
	}
}

func (eb *EventBus) deliver(h EventHandler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			eb.logger.Error("event handler panic", "type", event.Type, "seq", event.Seq, "panic", r)
		}
	}()
	h(event)
}
