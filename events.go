package resiliency

import (
	"time"

	"github.com/google/uuid"
	"github.com/hostward/resiliency/internal/eventbus"
)

// EventType enumerates the events spec.md §6 requires subscribers be able to
// receive: {success, error, state_change, adaptive_update, lru_hash_gc}.
type EventType string

const (
	EventSuccess        EventType = "success"
	EventError          EventType = "error"
	EventStateChange    EventType = "state_change"
	EventAdaptiveUpdate EventType = "adaptive_update"
	EventLRUHashGC      EventType = "lru_hash_gc"
)

// Event is a single published notification.
type Event struct {
	ID        string
	Type      EventType
	Resource  string
	Timestamp time.Time
	Metadata  map[string]any
}

func newEvent(typ EventType, resource string) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Resource:  resource,
		Timestamp: time.Now(),
		Metadata:  make(map[string]any),
	}
}

func (e Event) with(key string, value any) Event {
	e.Metadata[key] = value
	return e
}

// Handler receives published events.
type Handler func(Event)

// bus is the process-wide event bus; subscribe(name, handler) in spec.md §6
// filters by resource name at the Bus.SubscribeFiltered layer.
var bus = eventbus.New[Event]()

// Subscription mirrors eventbus.Subscription so callers of the public API
// never import the internal package directly.
type Subscription struct{ inner *eventbus.Subscription }

// Unsubscribe removes the handler.
func (s *Subscription) Unsubscribe() {
	if s != nil && s.inner != nil {
		s.inner.Unsubscribe()
	}
}

// Subscribe registers handler for events from every resource. Pass a
// non-empty name to receive only that resource's events.
func Subscribe(name string, handler Handler) *Subscription {
	if name == "" {
		return &Subscription{inner: bus.Subscribe(func(e Event) { handler(e) })}
	}
	return &Subscription{inner: bus.SubscribeFiltered(
		func(e Event) bool { return e.Resource == name },
		func(e Event) { handler(e) },
	)}
}

func publish(e Event) { bus.Publish(e) }
