// Package eventbus provides an in-process publish/subscribe bus for agent
// and task lifecycle events. Providers publish on every transition; the SSE
// stream, the WebSocket hub, the Prometheus observer and the optional NATS
// bridge consume.
package eventbus

import (
	"sync"
	"time"
)

// EventType identifies a lifecycle event.
type EventType string

const (
	EventTaskSubmitted EventType = "task.submitted"
	EventTaskStarted   EventType = "task.started"
	EventTaskCompleted EventType = "task.completed"
	EventTaskFailed    EventType = "task.failed"
	EventTaskCancelled EventType = "task.cancelled"

	EventAgentCreated EventType = "agent.created"
	EventAgentDeleted EventType = "agent.deleted"

	EventProviderInitialized EventType = "provider.initialized"
	EventProviderShutdown    EventType = "provider.shutdown"
)

// Event is a single lifecycle event.
type Event struct {
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// FilterFunc decides whether a subscriber receives an event.
type FilterFunc func(*Event) bool

// Subscriber receives matching events on Channel until unsubscribed.
type Subscriber struct {
	ID      string
	Channel chan *Event
	filter  FilterFunc
}

// subscriberBuffer bounds each subscriber channel; slow consumers drop
// events rather than blocking publishers.
const subscriberBuffer = 64

// historyCap bounds the retained event history served to late joiners.
const historyCap = 256

// Bus is an in-process event bus. The zero value is not usable; construct
// with NewBus.
type Bus struct {
	mu      sync.RWMutex
	subs    map[string]*Subscriber
	history []*Event
	closed  bool
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string]*Subscriber)}
}

// Subscribe registers a subscriber. A nil filter receives everything.
// Subscribing twice with the same id replaces the previous subscription.
func (b *Bus) Subscribe(id string, filter FilterFunc) *Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	if prev, ok := b.subs[id]; ok {
		close(prev.Channel)
	}

	sub := &Subscriber{
		ID:      id,
		Channel: make(chan *Event, subscriberBuffer),
		filter:  filter,
	}
	b.subs[id] = sub
	return sub
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subs[id]; ok {
		close(sub.Channel)
		delete(b.subs, id)
	}
}

// Publish delivers the event to all matching subscribers without blocking.
// Events for subscribers with a full channel are dropped.
func (b *Bus) Publish(event *Event) {
	if event == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}

	b.history = append(b.history, event)
	if len(b.history) > historyCap {
		b.history = b.history[len(b.history)-historyCap:]
	}

	for _, sub := range b.subs {
		if sub.filter != nil && !sub.filter(event) {
			continue
		}
		select {
		case sub.Channel <- event:
		default:
		}
	}
}

// Recent returns up to limit retained events, newest first, optionally
// restricted to one event type.
func (b *Bus) Recent(limit int, eventType EventType) []*Event {
	if limit <= 0 || limit > historyCap {
		limit = historyCap
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Event, 0, limit)
	for i := len(b.history) - 1; i >= 0 && len(out) < limit; i-- {
		ev := b.history[i]
		if eventType != "" && ev.Type != eventType {
			continue
		}
		out = append(out, ev)
	}
	return out
}

// Close closes all subscriber channels. Publish after Close is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		close(sub.Channel)
		delete(b.subs, id)
	}
}
