package mqttclient

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/telebridge/errors"
)

// fakeToken is a completed paho token with a fixed outcome
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type publishRecord struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

// fakeSession is an in-memory transport standing in for a broker session
type fakeSession struct {
	mu sync.Mutex

	connectErr   error
	subscribeErr error

	connects    int
	disconnects int
	subscribed  []string
	callbacks   map[string]mqtt.MessageHandler
	published   []publishRecord
	connected   bool
}

func (f *fakeSession) Connect() mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectErr != nil {
		return newFakeToken(f.connectErr)
	}
	f.connected = true
	return newFakeToken(nil)
}

func (f *fakeSession) Disconnect(_ uint) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	f.connected = false
}

func (f *fakeSession) Publish(topic string, qos byte, retained bool, payload any) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishRecord{
		topic:   topic,
		payload: payload.([]byte),
		qos:     qos,
		retain:  retained,
	})
	return newFakeToken(nil)
}

func (f *fakeSession) Subscribe(topic string, _ byte, callback mqtt.MessageHandler) mqtt.Token {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return newFakeToken(f.subscribeErr)
	}
	f.subscribed = append(f.subscribed, topic)
	if f.callbacks == nil {
		f.callbacks = make(map[string]mqtt.MessageHandler)
	}
	f.callbacks[topic] = callback
	return newFakeToken(nil)
}

func (f *fakeSession) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeSession) subscribeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed)
}

// fakeMessage satisfies mqtt.Message for dispatch tests
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// newFakeClient builds a client over a fake session and returns both plus
// the captured paho options, whose lost handler simulates a dropped session.
func newFakeClient(t *testing.T, fake *fakeSession, opts ...ClientOption) (*Client, *mqtt.ClientOptions) {
	t.Helper()

	captured := new(mqtt.ClientOptions)
	factory := func(o *mqtt.ClientOptions) session {
		*captured = *o
		return fake
	}

	opts = append(opts, withSessionFactory(factory))
	c, err := NewClient("tcp://localhost:1883", opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, captured
}

func TestNewClientRequiresURL(t *testing.T) {
	_, err := NewClient("")
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrInvalidConfig))
}

func TestNewClientRandomizesID(t *testing.T) {
	a, err := NewClient("tcp://localhost:1883")
	require.NoError(t, err)
	b, err := NewClient("tcp://localhost:1883")
	require.NoError(t, err)

	assert.NotEqual(t, a.ClientID(), b.ClientID())
	assert.Contains(t, a.ClientID(), "telebridge-")
}

func TestConnectInstallsSubscriptions(t *testing.T) {
	fake := &fakeSession{}
	c, _ := newFakeClient(t, fake,
		WithSubscriptions("simulateur/+/value", "simulateur/new"))

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, StatusConnected, c.Status())
	assert.Equal(t, []string{"simulateur/+/value", "simulateur/new"}, fake.subscribed)
}

func TestConnectFailure(t *testing.T) {
	fake := &fakeSession{connectErr: stderrors.New("broker unreachable")}
	c, _ := newFakeClient(t, fake)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
	assert.Equal(t, StatusDisconnected, c.Status())
	assert.Equal(t, int32(1), c.GetStatus().FailureCount)
}

func TestConnectSubscribeFailureDisconnects(t *testing.T) {
	fake := &fakeSession{subscribeErr: stderrors.New("denied")}
	c, _ := newFakeClient(t, fake, WithSubscriptions("simulateur/+/value"))

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrSubscribeFailed))
	assert.Equal(t, StatusDisconnected, c.Status())
	// A half-subscribed session is torn down, not left dangling
	assert.Equal(t, 1, fake.disconnects)
}

func TestPublishWhenDisconnected(t *testing.T) {
	fake := &fakeSession{}
	c, _ := newFakeClient(t, fake)

	err := c.Publish(context.Background(), "simulateur/new", []byte("{}"), false)
	assert.True(t, stderrors.Is(err, errors.ErrNotConnected))
	assert.Empty(t, fake.published)
}

func TestPublish(t *testing.T) {
	fake := &fakeSession{}
	c, _ := newFakeClient(t, fake)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Publish(context.Background(), "simulateur/t/parameters/period", []byte("30"), true))
	require.Len(t, fake.published, 1)
	assert.Equal(t, "simulateur/t/parameters/period", fake.published[0].topic)
	assert.Equal(t, byte(1), fake.published[0].qos)
	assert.True(t, fake.published[0].retain)
}

func TestReconnectReinstallsSubscriptions(t *testing.T) {
	fake := &fakeSession{}
	c, captured := newFakeClient(t, fake,
		WithSubscriptions("simulateur/+/value", "simulateur/new", "Filter/new"),
		WithReconnectWait(5*time.Millisecond))

	require.NoError(t, c.Connect(context.Background()))
	require.Equal(t, 3, fake.subscribeCount())

	// Simulate a dropped session via the lost handler paho would invoke
	captured.OnConnectionLost(nil, stderrors.New("EOF"))
	assert.Equal(t, StatusReconnecting, c.Status())

	require.Eventually(t, func() bool {
		return c.Status() == StatusConnected
	}, time.Second, 5*time.Millisecond)

	// The full set is installed again, not a delta
	assert.Equal(t, 6, fake.subscribeCount())
	assert.Equal(t, int32(1), c.GetStatus().Reconnects)
}

func TestRepeatedDisconnects(t *testing.T) {
	fake := &fakeSession{}
	c, captured := newFakeClient(t, fake,
		WithSubscriptions("simulateur/+/value"),
		WithReconnectWait(5*time.Millisecond))

	require.NoError(t, c.Connect(context.Background()))

	for i := 0; i < 3; i++ {
		captured.OnConnectionLost(nil, stderrors.New("EOF"))
		require.Eventually(t, func() bool {
			return c.Status() == StatusConnected
		}, time.Second, 5*time.Millisecond)
	}

	// One subscription per connect: initial plus three recoveries
	assert.Equal(t, 4, fake.subscribeCount())
	assert.Equal(t, int32(3), c.GetStatus().Reconnects)
}

func TestDispatchInvokesHandler(t *testing.T) {
	fake := &fakeSession{}

	var gotTopic string
	var gotPayload []byte
	c, _ := newFakeClient(t, fake,
		WithSubscriptions("simulateur/+/value"),
		WithMessageHandler(func(topic string, payload []byte) {
			gotTopic = topic
			gotPayload = payload
		}))

	require.NoError(t, c.Connect(context.Background()))

	cb := fake.callbacks["simulateur/+/value"]
	require.NotNil(t, cb)
	cb(nil, &fakeMessage{topic: "simulateur/temp1/value", payload: []byte("42.5")})

	assert.Equal(t, "simulateur/temp1/value", gotTopic)
	assert.Equal(t, []byte("42.5"), gotPayload)
}

func TestCloseIsIdempotent(t *testing.T) {
	fake := &fakeSession{}
	c, _ := newFakeClient(t, fake)
	require.NoError(t, c.Connect(context.Background()))

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())
	assert.Equal(t, 1, fake.disconnects)
	assert.Equal(t, StatusDisconnected, c.Status())

	err := c.Publish(context.Background(), "x", nil, false)
	assert.True(t, stderrors.Is(err, errors.ErrShuttingDown))
}

func TestCloseStopsReconnectLoop(t *testing.T) {
	fake := &fakeSession{connectErr: stderrors.New("still down")}
	c, captured := newFakeClient(t, fake,
		WithReconnectWait(5*time.Millisecond))

	// Force the loop to start from a lost connection, then close under it
	fake.mu.Lock()
	fake.connectErr = nil
	fake.mu.Unlock()
	require.NoError(t, c.Connect(context.Background()))
	fake.mu.Lock()
	fake.connectErr = stderrors.New("still down")
	fake.mu.Unlock()

	captured.OnConnectionLost(nil, stderrors.New("EOF"))
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, c.Close())
	assert.Equal(t, StatusDisconnected, c.Status())
}

func TestConnectionLostAfterCloseIsIgnored(t *testing.T) {
	fake := &fakeSession{}
	c, captured := newFakeClient(t, fake,
		WithReconnectWait(5*time.Millisecond))
	require.NoError(t, c.Connect(context.Background()))
	require.NoError(t, c.Close())

	// A stale paho callback after shutdown must not restart the loop
	captured.OnConnectionLost(nil, stderrors.New("EOF"))
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, StatusDisconnected, c.Status())
	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, 1, fake.connects)
}

func TestStateChangeCallback(t *testing.T) {
	fake := &fakeSession{}

	var mu sync.Mutex
	var states []ConnectionStatus
	c, _ := newFakeClient(t, fake,
		WithStateChangeCallback(func(s ConnectionStatus) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}))

	require.NoError(t, c.Connect(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []ConnectionStatus{StatusConnecting, StatusConnected}, states)
}

func TestWaitForConnection(t *testing.T) {
	fake := &fakeSession{}
	c, _ := newFakeClient(t, fake)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.WaitForConnection(ctx)
	assert.True(t, stderrors.Is(err, errors.ErrConnectionTimeout))

	require.NoError(t, c.Connect(context.Background()))
	ctx2, cancel2 := context.WithTimeout(context.Background(), time.Second)
	defer cancel2()
	assert.NoError(t, c.WaitForConnection(ctx2))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "disconnected", StatusDisconnected.String())
	assert.Equal(t, "connecting", StatusConnecting.String())
	assert.Equal(t, "connected", StatusConnected.String())
	assert.Equal(t, "reconnecting", StatusReconnecting.String())
	assert.Equal(t, "unknown", ConnectionStatus(99).String())
}
