// Package mqttclient manages the broker connection: explicit connect,
// supervised reconnection with a fixed delay, and re-installation of the
// subscription set on every successful connect.
package mqttclient

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/c360/telebridge/errors"
	"github.com/c360/telebridge/metric"
)

// ConnectionStatus represents the state of the broker connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// MessageHandler receives every inbound message matching a subscription.
// It runs on the transport's delivery goroutine and must not block.
type MessageHandler func(topic string, payload []byte)

// session is the narrow slice of the paho client the manager needs.
// Kept minimal so tests can substitute a fake transport.
type session interface {
	Connect() mqtt.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload any) mqtt.Token
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
	IsConnected() bool
}

type sessionFactory func(opts *mqtt.ClientOptions) session

func newPahoSession(opts *mqtt.ClientOptions) session {
	return mqtt.NewClient(opts)
}

// Status holds runtime status information for the connection manager
type Status struct {
	Status          ConnectionStatus
	FailureCount    int32
	Reconnects      int32
	LastFailureTime time.Time
}

// Client manages a single persistent broker session
type Client struct {
	brokerURL string
	clientID  string

	status      atomic.Value // stores ConnectionStatus
	failures    atomic.Int32
	reconnects  atomic.Int32
	lastFailure atomic.Value // stores time.Time

	logger  Logger
	metrics *metric.Metrics

	// Subscription set, fixed for the life of the client
	handler       MessageHandler
	subscriptions []string
	qos           byte

	// Connection options
	reconnectWait  time.Duration
	connectTimeout time.Duration
	keepAlive      time.Duration
	username       string
	password       string

	onStateChange func(ConnectionStatus)

	factory sessionFactory
	mu      sync.RWMutex
	sess    session

	done    chan struct{}
	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  atomic.Bool
}

// NewClient creates a broker client with optional configuration
func NewClient(brokerURL string, opts ...ClientOption) (*Client, error) {
	if brokerURL == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "MQTTClient", "NewClient",
			"broker URL is empty")
	}

	c := &Client{
		brokerURL:      brokerURL,
		clientID:       "telebridge-" + uuid.NewString()[:8],
		logger:         &defaultLogger{},
		qos:            1,
		reconnectWait:  5 * time.Second,
		connectTimeout: 10 * time.Second,
		keepAlive:      30 * time.Second,
		factory:        newPahoSession,
		done:           make(chan struct{}),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "MQTTClient", "NewClient", "apply option")
		}
	}

	c.status.Store(StatusDisconnected)
	c.lastFailure.Store(time.Time{})

	c.logger.Debugf("Created MQTT client %s for %s", c.clientID, brokerURL)

	return c, nil
}

// BrokerURL returns the broker URL
func (c *Client) BrokerURL() string {
	return c.brokerURL
}

// ClientID returns the randomized client identifier
func (c *Client) ClientID() string {
	return c.clientID
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	val := c.status.Load()
	if val == nil {
		return StatusDisconnected
	}
	return val.(ConnectionStatus)
}

// IsHealthy returns true if the connection is up
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// GetStatus returns current status information
func (c *Client) GetStatus() *Status {
	return &Status{
		Status:          c.Status(),
		FailureCount:    c.failures.Load(),
		Reconnects:      c.reconnects.Load(),
		LastFailureTime: c.lastFailure.Load().(time.Time),
	}
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
	if c.metrics != nil {
		c.metrics.RecordConnectionState(int(status))
		c.metrics.RecordBrokerStatus(status == StatusConnected)
	}
	if c.onStateChange != nil {
		c.onStateChange(status)
	}
}

func (c *Client) recordFailure() {
	c.failures.Add(1)
	c.lastFailure.Store(time.Now())
}

// buildOptions builds paho options from client configuration. Automatic
// reconnection stays off: the manager supervises reconnects itself so the
// subscription set is always re-installed before the state reads connected.
func (c *Client) buildOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.brokerURL).
		SetClientID(c.clientID).
		SetAutoReconnect(false).
		SetCleanSession(true).
		SetKeepAlive(c.keepAlive).
		SetConnectTimeout(c.connectTimeout).
		SetConnectionLostHandler(c.handleConnectionLost)

	if c.username != "" {
		opts.SetUsername(c.username)
		opts.SetPassword(c.password)
	}

	return opts
}

// Connect establishes the broker session and installs the subscription set.
// A single attempt: callers wanting startup retries wrap this with retry.Do.
func (c *Client) Connect(ctx context.Context) error {
	if c.closed.Load() {
		return errors.ErrShuttingDown
	}

	c.setStatus(StatusConnecting)
	c.logger.Printf("Connecting to broker at %s", c.brokerURL)

	sess := c.factory(c.buildOptions())
	c.mu.Lock()
	c.sess = sess
	c.mu.Unlock()

	if err := c.connectSession(ctx, sess); err != nil {
		c.recordFailure()
		c.setStatus(StatusDisconnected)
		return err
	}

	c.setStatus(StatusConnected)
	c.logger.Printf("Connected to broker, %d subscriptions active", len(c.subscriptions))
	return nil
}

// connectSession dials and subscribes. The subscription set is installed
// before the session counts as connected, so no matching message published
// after this returns can be missed.
func (c *Client) connectSession(ctx context.Context, sess session) error {
	if err := waitToken(ctx, sess.Connect()); err != nil {
		return errors.WrapTransient(err, "MQTTClient", "Connect", "dial broker")
	}

	for _, pattern := range c.subscriptions {
		if err := waitToken(ctx, sess.Subscribe(pattern, c.qos, c.dispatch)); err != nil {
			sess.Disconnect(0)
			return errors.WrapTransient(errors.ErrSubscribeFailed, "MQTTClient", "Connect",
				"subscribe "+pattern)
		}
	}

	return nil
}

// dispatch adapts paho delivery to the registered handler
func (c *Client) dispatch(_ mqtt.Client, msg mqtt.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
	}
}

// handleConnectionLost runs on paho's network goroutine when the session drops
func (c *Client) handleConnectionLost(_ mqtt.Client, err error) {
	// closeMu keeps the Add from landing after Close's Wait has returned
	c.closeMu.Lock()
	if c.closed.Load() {
		c.closeMu.Unlock()
		return
	}
	c.wg.Add(1)
	c.closeMu.Unlock()

	c.recordFailure()
	c.logger.Errorf("Connection lost: %v", err)
	c.setStatus(StatusReconnecting)

	go c.reconnectLoop()
}

// reconnectLoop retries the session at a fixed interval until it comes back
// or the client closes. Attempts are unbounded: a telemetry bridge's job is
// to outlive broker restarts.
func (c *Client) reconnectLoop() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.reconnectWait)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.mu.RLock()
			sess := c.sess
			c.mu.RUnlock()

			ctx, cancel := context.WithTimeout(context.Background(), c.connectTimeout)
			err := c.connectSession(ctx, sess)
			cancel()

			if err != nil {
				c.recordFailure()
				c.logger.Errorf("Reconnect attempt failed: %v", err)
				continue
			}

			c.reconnects.Add(1)
			if c.metrics != nil {
				c.metrics.RecordReconnect()
			}
			c.setStatus(StatusConnected)
			c.logger.Printf("Reconnected to broker after %d failures", c.failures.Load())
			return
		}
	}
}

// Publish sends a message at the client's QoS. Fails fast with
// ErrNotConnected while the session is down: callers treat samples as
// ephemeral and commands as caller-retryable.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	if c.closed.Load() {
		return errors.ErrShuttingDown
	}
	if c.Status() != StatusConnected {
		if c.metrics != nil {
			c.metrics.RecordPublishFailure()
		}
		return errors.ErrNotConnected
	}

	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()

	if err := waitToken(ctx, sess.Publish(topic, c.qos, retain, payload)); err != nil {
		if c.metrics != nil {
			c.metrics.RecordPublishFailure()
		}
		return errors.WrapTransient(err, "MQTTClient", "Publish", "publish "+topic)
	}
	return nil
}

// WaitForConnection blocks until the session is up or the context expires
func (c *Client) WaitForConnection(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return errors.WrapTransient(errors.ErrConnectionTimeout, "MQTTClient",
				"WaitForConnection", "wait for broker session")
		case <-ticker.C:
			if c.IsHealthy() {
				return nil
			}
		}
	}
}

// Close shuts the client down. Idempotent; stops the reconnect loop first so
// it cannot race the disconnect.
func (c *Client) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()

	if c.closed.Swap(true) {
		return nil
	}

	close(c.done)
	c.wg.Wait()

	c.mu.RLock()
	sess := c.sess
	c.mu.RUnlock()
	if sess != nil {
		sess.Disconnect(250)
	}

	c.setStatus(StatusDisconnected)
	c.logger.Printf("MQTT client closed")
	return nil
}

// waitToken waits for a paho token to complete or the context to expire
func waitToken(ctx context.Context, token mqtt.Token) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
		return token.Error()
	}
}
