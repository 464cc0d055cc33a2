// Package bridge wires the broker session, topic router, series store, event
// notifier and command publisher into one lifecycle-managed component. It is
// the ingestion path: every inbound message lands in HandleMessage, and every
// outbound command leaves through the embedded publisher.
package bridge

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/c360/telebridge/command"
	"github.com/c360/telebridge/component"
	"github.com/c360/telebridge/errors"
	"github.com/c360/telebridge/metric"
	"github.com/c360/telebridge/notifier"
	"github.com/c360/telebridge/pkg/retry"
	"github.com/c360/telebridge/router"
	"github.com/c360/telebridge/store"
)

// Broker is the slice of the connection manager the bridge depends on
type Broker interface {
	Connect(ctx context.Context) error
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
	IsHealthy() bool
	Close() error
}

// Options configures a Bridge
type Options struct {
	Logger         *slog.Logger
	Metrics        *metric.Metrics
	WindowCapacity int
	ConnectRetry   retry.Config
}

// VariableInfo is what the bridge knows about a live variable
type VariableInfo struct {
	Spec       router.VariableSpec `json:"spec"`
	Parameters map[string]string   `json:"parameters,omitempty"`
	AddedAt    time.Time           `json:"added_at"`
}

// Bridge routes inbound telemetry into the store and notifier, and exposes
// the outbound command surface.
type Bridge struct {
	logger  *slog.Logger
	metrics *metric.Metrics

	broker   Broker
	store    *store.Store
	notifier *notifier.Notifier
	commands *command.Publisher

	connectRetry retry.Config

	varsMu    sync.RWMutex
	variables map[string]*VariableInfo

	stateMu   sync.Mutex
	state     component.State
	startTime time.Time

	errorCount atomic.Int32
	lastError  atomic.Value // stores string
}

// New creates a bridge. The broker is attached separately because the
// connection manager needs the bridge's message handler at construction time.
func New(opts Options) *Bridge {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "bridge")

	connectRetry := opts.ConnectRetry
	if connectRetry.MaxAttempts == 0 {
		connectRetry = retry.Config{
			MaxAttempts:  5,
			InitialDelay: time.Second,
			MaxDelay:     30 * time.Second,
			Multiplier:   2.0,
			AddJitter:    true,
		}
	}

	b := &Bridge{
		logger:       logger,
		metrics:      opts.Metrics,
		store:        store.New(opts.WindowCapacity),
		notifier:     notifier.New(logger, opts.Metrics),
		connectRetry: connectRetry,
		variables:    make(map[string]*VariableInfo),
		state:        component.StateCreated,
	}
	b.lastError.Store("")
	return b
}

// SetBroker attaches the connection manager. Must happen before Initialize.
func (b *Bridge) SetBroker(broker Broker) {
	b.broker = broker
	b.commands = command.NewPublisher(broker, b.logger, b.metrics)
}

// Initialize validates wiring
func (b *Bridge) Initialize() error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.state != component.StateCreated {
		return errors.ErrAlreadyStarted
	}
	if b.broker == nil {
		b.state = component.StateFailed
		return errors.WrapFatal(errors.ErrMissingConfig, "Bridge", "Initialize",
			"no broker attached")
	}

	b.state = component.StateInitialized
	return nil
}

// Start connects to the broker, retrying transient failures with backoff.
// Once connected the session's own reconnect supervision takes over.
func (b *Bridge) Start(ctx context.Context) error {
	b.stateMu.Lock()
	if b.state != component.StateInitialized {
		b.stateMu.Unlock()
		return errors.ErrNotStarted
	}
	b.stateMu.Unlock()

	err := retry.Do(ctx, b.connectRetry, func() error {
		return b.broker.Connect(ctx)
	})
	if err != nil {
		b.stateMu.Lock()
		b.state = component.StateFailed
		b.stateMu.Unlock()
		b.recordError(err)
		return errors.Wrap(err, "Bridge", "Start", "connect to broker")
	}

	b.stateMu.Lock()
	b.state = component.StateStarted
	b.startTime = time.Now()
	b.stateMu.Unlock()

	b.logger.Info("bridge started")
	return nil
}

// Stop closes the broker session
func (b *Bridge) Stop(_ time.Duration) error {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()

	if b.state != component.StateStarted {
		return errors.ErrNotStarted
	}

	if err := b.broker.Close(); err != nil {
		b.state = component.StateFailed
		return errors.Wrap(err, "Bridge", "Stop", "close broker session")
	}

	b.state = component.StateStopped
	b.logger.Info("bridge stopped")
	return nil
}

// State returns the current lifecycle state
func (b *Bridge) State() component.State {
	b.stateMu.Lock()
	defer b.stateMu.Unlock()
	return b.state
}

// Health reports bridge health: healthy means started with a live session
func (b *Bridge) Health() component.HealthStatus {
	b.stateMu.Lock()
	state := b.state
	started := b.startTime
	b.stateMu.Unlock()

	var uptime time.Duration
	if state == component.StateStarted {
		uptime = time.Since(started)
	}

	return component.HealthStatus{
		Healthy:    state == component.StateStarted && b.broker != nil && b.broker.IsHealthy(),
		LastCheck:  time.Now(),
		ErrorCount: int(b.errorCount.Load()),
		LastError:  b.lastError.Load().(string),
		Uptime:     uptime,
	}
}

func (b *Bridge) recordError(err error) {
	b.errorCount.Add(1)
	b.lastError.Store(err.Error())
}

// HandleMessage is the inbound path. It runs on the transport's delivery
// goroutine: classification is pure, store appends lock per series, and
// notification is synchronous, so ordering within one topic is preserved.
// Undecodable input is counted and dropped; the stream keeps flowing.
func (b *Bridge) HandleMessage(topic string, payload []byte) {
	start := time.Now()

	msg, err := router.Classify(topic, payload)
	if err != nil {
		b.handleClassifyError(topic, err)
		return
	}

	switch msg.Class {
	case router.ClassRawSample, router.ClassFilteredSample:
		b.handleSample(msg)
	case router.ClassEntityAdded:
		b.handleEntityAdded(msg)
	case router.ClassEntityRemoved:
		b.handleEntityRemoved(msg)
	case router.ClassFilterAdded:
		b.notifier.Emit(notifier.Event{
			Kind:        notifier.KindFilterAdded,
			SourceTopic: msg.SourceTopic,
		})
	case router.ClassFilterRemoved:
		b.handleFilterRemoved(msg)
	case router.ClassParameterChanged:
		b.handleParameterChanged(msg)
	}

	if b.metrics != nil {
		b.metrics.RecordProcessingDuration(msg.Class.String(), time.Since(start))
	}
}

func (b *Bridge) handleClassifyError(topic string, err error) {
	switch {
	case errors.Is(err, errors.ErrEmptyPayload):
		// Retained-clear from a variable deletion; expected, not an error
		b.logger.Debug("dropped retained-clear payload", "topic", topic)
	case errors.Is(err, errors.ErrUnhandledTopic):
		if b.metrics != nil {
			b.metrics.RecordUnhandled()
		}
		b.logger.Debug("unhandled topic", "topic", topic)
	default:
		if b.metrics != nil {
			b.metrics.RecordMalformed()
		}
		b.recordError(err)
		b.logger.Warn("dropped malformed payload", "topic", topic, "error", err)
	}
}

func (b *Bridge) handleSample(msg router.Message) {
	key := msg.SeriesKey()
	now := time.Now()
	b.store.Append(key, store.Sample{Timestamp: now, Value: msg.Value})

	if b.metrics != nil {
		b.metrics.RecordSample(msg.Class.String())
		b.metrics.RecordSeriesCount(b.store.Count())
	}

	b.notifier.Emit(notifier.Event{
		Kind:      notifier.KindNewSample,
		Timestamp: now,
		Name:      msg.Name,
		SeriesKey: key,
		Value:     msg.Value,
	})
}

func (b *Bridge) handleEntityAdded(msg router.Message) {
	b.varsMu.Lock()
	b.variables[msg.Name] = &VariableInfo{
		Spec:       *msg.Variable,
		Parameters: make(map[string]string),
		AddedAt:    time.Now(),
	}
	b.varsMu.Unlock()

	b.logger.Info("variable announced", "name", msg.Name)
	b.notifier.Emit(notifier.Event{
		Kind: notifier.KindEntityAdded,
		Name: msg.Name,
	})
}

func (b *Bridge) handleEntityRemoved(msg router.Message) {
	b.varsMu.Lock()
	delete(b.variables, msg.Name)
	b.varsMu.Unlock()

	// All of the variable's series go: raw and every filtered derivative
	removed := b.store.RemoveByPrefix(router.SeriesKeyPrefix(msg.Name))
	if b.metrics != nil {
		b.metrics.RecordSeriesCount(b.store.Count())
	}

	b.logger.Info("variable removed", "name", msg.Name, "series_removed", removed)
	b.notifier.Emit(notifier.Event{
		Kind: notifier.KindEntityRemoved,
		Name: msg.Name,
	})
}

func (b *Bridge) handleFilterRemoved(msg router.Message) {
	removed := b.store.RemoveSeries(func(key string) bool {
		return key == msg.FilterName
	})
	if removed > 0 && b.metrics != nil {
		b.metrics.RecordSeriesCount(b.store.Count())
	}

	b.logger.Info("filter removed", "filter", msg.FilterName)
	b.notifier.Emit(notifier.Event{
		Kind:       notifier.KindFilterRemoved,
		FilterName: msg.FilterName,
	})
}

func (b *Bridge) handleParameterChanged(msg router.Message) {
	b.varsMu.Lock()
	if info, ok := b.variables[msg.Name]; ok {
		info.Parameters[msg.Param] = msg.ParamValue
	}
	b.varsMu.Unlock()

	b.notifier.Emit(notifier.Event{
		Kind:       notifier.KindParameterChanged,
		Name:       msg.Name,
		Param:      msg.Param,
		ParamValue: msg.ParamValue,
	})
}

// Samples returns the rolling window of a series, oldest first
func (b *Bridge) Samples(key string) []store.Sample {
	return b.store.Samples(key)
}

// SeriesKeys returns the keys of all live series, sorted
func (b *Bridge) SeriesKeys() []string {
	keys := b.store.Keys()
	sort.Strings(keys)
	return keys
}

// Variables returns a snapshot of the known variables keyed by name
func (b *Bridge) Variables() map[string]VariableInfo {
	b.varsMu.RLock()
	defer b.varsMu.RUnlock()

	out := make(map[string]VariableInfo, len(b.variables))
	for name, info := range b.variables {
		params := make(map[string]string, len(info.Parameters))
		for k, v := range info.Parameters {
			params[k] = v
		}
		out[name] = VariableInfo{Spec: info.Spec, Parameters: params, AddedAt: info.AddedAt}
	}
	return out
}

// Subscribe registers an event listener
func (b *Bridge) Subscribe(kind notifier.Kind, fn notifier.Listener) notifier.SubscriptionID {
	return b.notifier.Subscribe(kind, fn)
}

// Unsubscribe removes an event listener
func (b *Bridge) Unsubscribe(id notifier.SubscriptionID) bool {
	return b.notifier.Unsubscribe(id)
}

// CreateVariable publishes a variable announcement
func (b *Bridge) CreateVariable(ctx context.Context, spec router.VariableSpec) error {
	return b.commands.CreateVariable(ctx, spec)
}

// DeleteVariable publishes a variable deletion
func (b *Bridge) DeleteVariable(ctx context.Context, name string) error {
	return b.commands.DeleteVariable(ctx, name)
}

// CreateFilter publishes a filter announcement for a variable
func (b *Bridge) CreateFilter(ctx context.Context, variableName string) error {
	return b.commands.CreateFilter(ctx, variableName)
}

// DeleteFilter publishes a filter deletion
func (b *Bridge) DeleteFilter(ctx context.Context, filterName string) error {
	return b.commands.DeleteFilter(ctx, filterName)
}

// UpdateParameter publishes a retained parameter update
func (b *Bridge) UpdateParameter(ctx context.Context, name, param, value string) error {
	return b.commands.UpdateParameter(ctx, name, param, value)
}
