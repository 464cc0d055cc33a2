// Package notifier fans events out to registered listeners. Delivery is
// synchronous: Emit calls every listener of the event's kind, in registration
// order, on the caller's goroutine, and returns only after the last listener
// has. A panicking listener is recovered and logged so the rest of the chain
// still runs.
package notifier

import (
	"log/slog"
	"sync"
	"time"

	"github.com/c360/telebridge/metric"
)

// Kind identifies the category of an event
type Kind int

// Event kinds
const (
	KindNewSample Kind = iota
	KindEntityAdded
	KindEntityRemoved
	KindFilterAdded
	KindFilterRemoved
	KindParameterChanged
)

// String returns the string representation of an event kind
func (k Kind) String() string {
	switch k {
	case KindNewSample:
		return "new_sample"
	case KindEntityAdded:
		return "entity_added"
	case KindEntityRemoved:
		return "entity_removed"
	case KindFilterAdded:
		return "filter_added"
	case KindFilterRemoved:
		return "filter_removed"
	case KindParameterChanged:
		return "parameter_changed"
	default:
		return "unknown"
	}
}

// Event carries what happened. Which fields are set depends on Kind.
type Event struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	Name      string  `json:"name,omitempty"`       // variable name
	SeriesKey string  `json:"series_key,omitempty"` // KindNewSample
	Value     float64 `json:"value,omitempty"`      // KindNewSample

	Param      string `json:"param,omitempty"`       // KindParameterChanged
	ParamValue string `json:"param_value,omitempty"` // KindParameterChanged

	SourceTopic string `json:"source_topic,omitempty"` // KindFilterAdded
	FilterName  string `json:"filter_name,omitempty"`  // KindFilterRemoved
}

// Listener receives events synchronously. It must return promptly: a slow
// listener stalls ingestion for every subscriber behind it.
type Listener func(Event)

// SubscriptionID identifies a registration for later removal
type SubscriptionID uint64

type subscription struct {
	id SubscriptionID
	fn Listener
}

// Notifier dispatches events to listeners registered per kind
type Notifier struct {
	mu     sync.RWMutex
	nextID SubscriptionID
	subs   map[Kind][]subscription

	logger  *slog.Logger
	metrics *metric.Metrics
}

// New creates a notifier. metrics may be nil.
func New(logger *slog.Logger, metrics *metric.Metrics) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		subs:    make(map[Kind][]subscription),
		logger:  logger.With("component", "notifier"),
		metrics: metrics,
	}
}

// Subscribe registers a listener for a kind and returns its subscription ID.
// Listeners for the same kind are invoked in the order they subscribed.
func (n *Notifier) Subscribe(kind Kind, fn Listener) SubscriptionID {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	id := n.nextID
	n.subs[kind] = append(n.subs[kind], subscription{id: id, fn: fn})
	return id
}

// Unsubscribe removes a registration. Returns false if the ID is unknown.
func (n *Notifier) Unsubscribe(id SubscriptionID) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	for kind, subs := range n.subs {
		for i, sub := range subs {
			if sub.id == id {
				n.subs[kind] = append(subs[:i:i], subs[i+1:]...)
				return true
			}
		}
	}
	return false
}

// Emit delivers an event to every listener of its kind, in registration
// order, on the caller's goroutine. Returns once all listeners have run.
func (n *Notifier) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	n.mu.RLock()
	subs := n.subs[event.Kind]
	n.mu.RUnlock()

	for _, sub := range subs {
		n.invoke(sub, event)
	}

	if n.metrics != nil {
		n.metrics.RecordEvent(event.Kind.String())
	}
}

func (n *Notifier) invoke(sub subscription, event Event) {
	defer func() {
		if r := recover(); r != nil {
			if n.metrics != nil {
				n.metrics.RecordListenerPanic()
			}
			n.logger.Error("listener panicked",
				"kind", event.Kind.String(),
				"subscription", sub.id,
				"panic", r)
		}
	}()
	sub.fn(event)
}

// ListenerCount returns the number of listeners registered for a kind
func (n *Notifier) ListenerCount(kind Kind) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.subs[kind])
}
