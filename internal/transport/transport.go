// Package transport defines the contract both carrier adapters
// (WebSocket and MQTT) present to the router: chargers appear as
// bidirectional channels of framed OCPP messages with connect and
// disconnect signals, regardless of how the carrier models a
// connection.
package transport

import (
	"context"
	"time"
)

// Sender is the outbound half of a charger channel. The router hands
// it to the owning session on connect; on reconnect the session adopts
// the new handle.
type Sender interface {
	Send(chargePointID string, data []byte) error
}

// Handler receives transport events. Implemented by the router.
//
// OnInbound returns an error when the frame could not be decoded; the
// transport uses that signal to close channels that keep sending
// garbage. Per-charger inbound ordering is preserved by the transport,
// outbound ordering by the Sender.
type Handler interface {
	OnConnected(sender Sender, chargePointID, authClaim string)
	OnInbound(chargePointID string, data []byte, receivedAt time.Time) error
	OnDisconnected(chargePointID, reason string)
}

// Transport is one carrier adapter. Start blocks until the listener or
// broker subscription is established, then serves in the background
// until Close.
type Transport interface {
	Sender
	Start(ctx context.Context) error
	Close() error
}

// Consecutive decode failures within FailureWindow that force a
// channel closed.
const (
	MaxDecodeFailures = 5
	FailureWindow     = 10 * time.Second
)

// DecodeFailureTracker counts consecutive decode failures per channel.
// Any successful decode resets the count; failures older than the
// window do not count against the channel.
type DecodeFailureTracker struct {
	count int
	first time.Time
}

// Fail records a failure at now and reports whether the channel should
// be closed.
func (t *DecodeFailureTracker) Fail(now time.Time) bool {
	if t.count == 0 || now.Sub(t.first) > FailureWindow {
		t.count = 0
		t.first = now
	}
	t.count++
	return t.count >= MaxDecodeFailures
}

// Reset clears the failure streak after a good frame.
func (t *DecodeFailureTracker) Reset() {
	t.count = 0
}
