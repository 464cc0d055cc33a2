package mqttclient

import (
	"fmt"
	"log"
	"log/slog"
	"time"

	"github.com/c360/telebridge/metric"
)

// Logger interface for injecting custom loggers
type Logger interface {
	Printf(format string, v ...any)
	Errorf(format string, v ...any)
	Debugf(format string, v ...any)
}

// defaultLogger implements Logger using standard log package
type defaultLogger struct{}

func (l *defaultLogger) Printf(format string, v ...any) {
	log.Printf("[MQTT] "+format, v...)
}

func (l *defaultLogger) Errorf(format string, v ...any) {
	log.Printf("[MQTT ERROR] "+format, v...)
}

func (l *defaultLogger) Debugf(_ string, _ ...any) {
	// Silent by default
}

// slogLogger adapts a structured logger to the Logger interface
type slogLogger struct {
	logger *slog.Logger
}

// NewSlogLogger wraps a slog.Logger for use as the client logger
func NewSlogLogger(logger *slog.Logger) Logger {
	return &slogLogger{logger: logger}
}

func (l *slogLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...))
}

func (l *slogLogger) Errorf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...))
}

func (l *slogLogger) Debugf(format string, v ...any) {
	l.logger.Debug(fmt.Sprintf(format, v...))
}

// ClientOption is a functional option for configuring the Client
type ClientOption func(*Client) error

// WithClientIDPrefix replaces the default prefix of the randomized client ID
func WithClientIDPrefix(prefix string) ClientOption {
	return func(c *Client) error {
		if prefix != "" {
			c.clientID = prefix + "-" + c.clientID[len("telebridge-"):]
		}
		return nil
	}
}

// WithSubscriptions sets the topic patterns installed on every connect.
// The set is fixed for the life of the client.
func WithSubscriptions(patterns ...string) ClientOption {
	return func(c *Client) error {
		c.subscriptions = append([]string(nil), patterns...)
		return nil
	}
}

// WithMessageHandler sets the handler invoked for every inbound message
func WithMessageHandler(fn MessageHandler) ClientOption {
	return func(c *Client) error {
		c.handler = fn
		return nil
	}
}

// WithQoS sets the quality of service for subscriptions and publishes
func WithQoS(qos byte) ClientOption {
	return func(c *Client) error {
		if qos > 2 {
			qos = 1
		}
		c.qos = qos
		return nil
	}
}

// WithReconnectWait sets the fixed delay between reconnection attempts
func WithReconnectWait(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d > 0 {
			c.reconnectWait = d
		}
		return nil
	}
}

// WithConnectTimeout sets the timeout for a single connection attempt
func WithConnectTimeout(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d > 0 {
			c.connectTimeout = d
		}
		return nil
	}
}

// WithKeepAlive sets the MQTT keep-alive interval
func WithKeepAlive(d time.Duration) ClientOption {
	return func(c *Client) error {
		if d > 0 {
			c.keepAlive = d
		}
		return nil
	}
}

// WithCredentials sets username and password for broker authentication
func WithCredentials(username, password string) ClientOption {
	return func(c *Client) error {
		c.username = username
		c.password = password
		return nil
	}
}

// WithLogger sets a custom logger for the client
func WithLogger(logger Logger) ClientOption {
	return func(c *Client) error {
		if logger == nil {
			logger = &defaultLogger{}
		}
		c.logger = logger
		return nil
	}
}

// WithStateChangeCallback sets a callback invoked on every status transition
func WithStateChangeCallback(fn func(ConnectionStatus)) ClientOption {
	return func(c *Client) error {
		c.onStateChange = fn
		return nil
	}
}

// WithMetrics enables connection metrics collection
func WithMetrics(metrics *metric.Metrics) ClientOption {
	return func(c *Client) error {
		c.metrics = metrics
		return nil
	}
}

// withSessionFactory substitutes the transport constructor (for testing)
func withSessionFactory(factory sessionFactory) ClientOption {
	return func(c *Client) error {
		c.factory = factory
		return nil
	}
}
