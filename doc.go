// Package telebridge is a live MQTT telemetry bridge: it maintains a
// persistent session to a simulator broker, classifies inbound messages by
// topic into logical time series, buffers each series as a bounded rolling
// window, and republishes control commands back onto the broker.
//
// # Architecture
//
// Data flows through four core components plus an HTTP gateway:
//
//	┌─────────────────────────────────────┐
//	│       Connection Manager            │  mqttclient: session state
//	│  (connect, resubscribe, supervise)  │  machine, reconnect loop
//	└──────────────┬──────────────────────┘
//	               │ inbound messages
//	┌──────────────▼──────────────────────┐
//	│         Topic Router                │  router: pure classification
//	│   (grammar, series keys, specs)     │  of (topic, payload) pairs
//	└──────────────┬──────────────────────┘
//	               │ classified messages
//	┌──────────────▼──────────────────────┐
//	│    Series Store + Event Notifier    │  store: bounded windows
//	│  (rolling windows, synchronous      │  notifier: ordered fan-out
//	│   fan-out to listeners)             │
//	└──────────────┬──────────────────────┘
//	               │ events, queries, commands
//	┌──────────────▼──────────────────────┐
//	│           Gateway                   │  HTTP + websocket surface,
//	│  (REST, websocket stream, metrics)  │  command endpoints
//	└─────────────────────────────────────┘
//
// The bridge package ties these together behind a single lifecycle-managed
// component; the command package builds the outbound control messages
// (create/delete variables and filters, retained parameter updates).
//
// # Guarantees
//
// Ordering within a topic is preserved end to end: classification, store
// append and listener notification all run synchronously on the transport's
// delivery goroutine. Series windows are bounded; when full, the oldest
// sample is dropped. Reconnection re-installs the identical subscription set
// before the session reads connected, and undecodable input is counted and
// dropped without interrupting the stream.
package telebridge
