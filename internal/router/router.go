// Package router connects the carrier transports to the per-charger
// sessions: it owns the session registry, correlates server-initiated
// calls with their replies, and is the single place a charger's online
// state is decided.
package router

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/ocpp"
	"github.com/voltgrid/csms/internal/session"
	"github.com/voltgrid/csms/internal/transport"
)

// Router implements transport.Handler on the inbound side and
// ports.CallDispatcher on the control-plane side.
type Router struct {
	deps    session.Deps
	replies *session.ReplyCache
	pending *pendingTable
	log     *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session.Session
}

func New(deps session.Deps, replies *session.ReplyCache) *Router {
	return &Router{
		deps:     deps,
		replies:  replies,
		pending:  newPendingTable(),
		log:      deps.Log.Named("router"),
		sessions: make(map[string]*session.Session),
	}
}

func (r *Router) get(chargePointID string) *session.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[chargePointID]
}

// OnConnected binds a transport channel to the charger's session,
// creating it on first contact. The session survives reconnects; a new
// channel is adopted in place.
func (r *Router) OnConnected(sender transport.Sender, chargePointID, authClaim string) {
	id := domain.SanitizeChargePointID(chargePointID)
	if id == "" {
		r.log.Warn("Ignoring connection with unusable charge point id",
			zap.String("raw_id", chargePointID),
		)
		return
	}

	r.mu.Lock()
	sess, exists := r.sessions[id]
	if !exists {
		sess = session.New(id, r.deps, r.replies, sender, r.watchdogExpired)
		r.sessions[id] = sess
	}
	r.mu.Unlock()

	if exists {
		wasOnline := sess.State() != session.StateDisconnected
		sess.Adopt(sender)
		if !wasOnline {
			telemetry.ConnectedChargers.Inc()
		}
	} else {
		telemetry.ConnectedChargers.Inc()
	}

	r.log.Info("Charge point connected",
		zap.String("charge_point_id", id),
		zap.String("auth_claim", authClaim),
	)
	r.recordEvent(id, domain.EventConnected, authClaim)
}

// OnInbound routes one raw frame: CALLs go to the owning session's
// inbox, CALLRESULT and CALLERROR settle the pending server call. The
// returned error tells the transport the channel sent garbage.
func (r *Router) OnInbound(chargePointID string, data []byte, receivedAt time.Time) error {
	id := domain.SanitizeChargePointID(chargePointID)

	frame, err := ocpp.Unmarshal(data)
	if err != nil {
		r.log.Warn("Failed to decode inbound frame",
			zap.String("charge_point_id", id),
			zap.Error(err),
		)
		r.recordEvent(id, domain.EventDecodeFailure, err.Error())
		return err
	}

	sess := r.get(id)
	if sess == nil {
		r.log.Warn("Inbound frame for unregistered charge point",
			zap.String("charge_point_id", id),
		)
		return domain.ErrUnknownCharger
	}

	switch frame.Type {
	case ocpp.MessageTypeCall:
		sess.Submit(frame, receivedAt)
	case ocpp.MessageTypeCallResult, ocpp.MessageTypeCallError:
		sess.Touch(receivedAt)
		r.settleReply(id, frame, receivedAt)
	}
	return nil
}

// settleReply correlates a CALLRESULT or CALLERROR with its pending
// call. Replies arriving after the deadline find nothing and are
// dropped.
func (r *Router) settleReply(chargePointID string, frame *ocpp.Frame, receivedAt time.Time) {
	call, ok := r.pending.take(chargePointID, frame.MessageID)
	if !ok {
		r.log.Debug("Dropping late or unsolicited reply",
			zap.String("charge_point_id", chargePointID),
			zap.String("message_id", frame.MessageID),
		)
		return
	}

	telemetry.OCPPMessagesTotal.WithLabelValues(call.action, "inbound").Inc()

	if frame.Type == ocpp.MessageTypeCallError {
		call.settle(callResult{callErr: &ocpp.CallError{
			Code:        frame.ErrorCode,
			Description: frame.ErrorDescription,
			Details:     frame.ErrorDetails,
		}})
		return
	}
	call.settle(callResult{payload: frame.Payload})
}

// OnDisconnected tears down the charger's channel: the session goes
// Disconnected and every in-flight server call fails immediately.
func (r *Router) OnDisconnected(chargePointID, reason string) {
	id := domain.SanitizeChargePointID(chargePointID)

	sess := r.get(id)
	if sess == nil {
		return
	}
	if sess.State() == session.StateDisconnected {
		return
	}

	sess.HandleDisconnect(reason)
	telemetry.ConnectedChargers.Dec()

	for _, call := range r.pending.takeAll(id) {
		call.settle(callResult{err: domain.ErrChargerDisconnected})
	}
}

// watchdogExpired runs the full disconnect path when a charger goes
// silent past the heartbeat window; the transport channel may still be
// technically open.
func (r *Router) watchdogExpired(chargePointID string) {
	r.OnDisconnected(chargePointID, "heartbeat watchdog expired")
}

// IsOnline implements ports.CallDispatcher.
func (r *Router) IsOnline(chargePointID string) bool {
	sess := r.get(chargePointID)
	return sess != nil && sess.IsOnline()
}

// Dispatch implements ports.CallDispatcher: issue one server-initiated
// CALL and wait for the correlated reply, the deadline, or a
// disconnect, whichever comes first.
func (r *Router) Dispatch(ctx context.Context, chargePointID, action string, payload json.RawMessage, timeout time.Duration) (json.RawMessage, error) {
	sess := r.get(chargePointID)
	if sess == nil {
		return nil, domain.ErrUnknownCharger
	}
	if !sess.IsOnline() {
		return nil, domain.ErrChargerOffline
	}
	if ce := ocpp.ValidateCall(action, payload); ce != nil {
		return nil, ce
	}

	messageID := uuid.New().String()
	data, err := ocpp.Marshal(ocpp.NewCall(messageID, action, payload))
	if err != nil {
		return nil, err
	}

	released := make(chan struct{})
	call := r.pending.add(chargePointID, messageID, action, released)

	if err := sess.EnqueueOutbound(&session.OutboundCall{
		MessageID: messageID,
		Action:    action,
		Data:      data,
		Released:  released,
	}); err != nil {
		r.pending.take(chargePointID, messageID)
		return nil, err
	}

	r.deps.Liveness.MarkPendingCall(ctx, chargePointID, messageID, timeout)
	defer r.deps.Liveness.ClearPendingCall(context.Background(), chargePointID, messageID)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case result := <-call.done:
			if result.err != nil {
				return nil, result.err
			}
			if result.callErr != nil {
				return nil, result.callErr
			}
			return result.payload, nil

		case <-timer.C:
			// The reply may be racing us; whoever removes the entry
			// settles it.
			if expired, ok := r.pending.take(chargePointID, messageID); ok {
				telemetry.DispatchTimeoutsTotal.Inc()
				r.log.Warn("Server call timed out",
					zap.String("charge_point_id", chargePointID),
					zap.String("action", action),
					zap.String("message_id", messageID),
				)
				expired.settle(callResult{err: domain.ErrCallTimeout})
			}

		case <-ctx.Done():
			if cancelled, ok := r.pending.take(chargePointID, messageID); ok {
				cancelled.settle(callResult{err: ctx.Err()})
			}
		}
	}
}

// Shutdown stops every session. Used at process exit only.
func (r *Router) Shutdown() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, sess := range r.sessions {
		sess.Close()
	}
}

func (r *Router) recordEvent(chargePointID string, kind domain.EventKind, payload string) {
	event := &domain.DeviceEvent{
		ChargePointID: chargePointID,
		Kind:          kind,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}
	if err := r.deps.Events.Append(context.Background(), event); err != nil {
		r.log.Warn("Failed to append device event",
			zap.String("charge_point_id", chargePointID),
			zap.String("kind", string(kind)),
			zap.Error(err),
		)
		return
	}
	r.deps.Publisher.PublishDeviceEvent(event)
}
