// Package session implements the per-charge-point state machine: the
// boot handshake, heartbeat liveness, connector status, authorization,
// the transaction lifecycle, and the serialized inbound/outbound work
// queues.
package session

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/adapter/cache"
	"github.com/voltgrid/csms/internal/adapter/queue"
	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/observability/telemetry"
	"github.com/voltgrid/csms/internal/ocpp"
	"github.com/voltgrid/csms/internal/ports"
	"github.com/voltgrid/csms/internal/transport"
	"github.com/voltgrid/csms/pkg/config"
)

// State of the per-charger machine. Sessions outlive connections:
// Disconnected is not terminal.
type State string

const (
	StateDisconnected State = "Disconnected"
	StateBooting      State = "Booting"
	StateOnline       State = "Online"
	StateFaulted      State = "Faulted"
	StateUnavailable  State = "Unavailable"
)

// Deps are the collaborators a session needs. All are safe for
// concurrent use across sessions.
type Deps struct {
	ChargePoints ports.ChargePointRepository
	EVSEs        ports.EVSERepository
	Sessions     ports.SessionRepository
	MeterValues  ports.MeterValueRepository
	Events       ports.EventRepository
	IdTags       ports.IdTagRepository
	Orders       ports.OrderRepository
	Liveness     *cache.Liveness
	Publisher    *queue.EventPublisher
	Config       config.OCPPConfig
	Log          *zap.Logger
}

type inboundFrame struct {
	frame      *ocpp.Frame
	receivedAt time.Time
}

// OutboundCall is one server-initiated CALL queued for a charger.
// Released is closed by the router when the call's waiter settles
// (result, error, timeout, or disconnect); the outbound worker sends
// the next CALL only after that.
type OutboundCall struct {
	MessageID string
	Action    string
	Data      []byte
	Released  chan struct{}
}

// Session owns all mutable per-charger state. Inbound frames are
// drained by a single worker, which is what enforces the per-charger
// single-writer rule.
type Session struct {
	chargePointID string
	deps          Deps
	replies       *ReplyCache
	auth          *AuthCache
	log           *zap.Logger

	mu       sync.Mutex
	state    State
	sender   transport.Sender
	watchdog *time.Timer

	inbox    chan inboundFrame
	outbound chan *OutboundCall

	// onWatchdogExpiry tells the router the charger went silent; the
	// router then runs its full disconnect path.
	onWatchdogExpiry func(chargePointID string)

	closeOnce sync.Once
	closed    chan struct{}
}

// New creates a session in Booting state bound to the given transport
// handle and starts its workers.
func New(chargePointID string, deps Deps, replies *ReplyCache, sender transport.Sender, onWatchdogExpiry func(string)) *Session {
	s := &Session{
		chargePointID:    chargePointID,
		deps:             deps,
		replies:          replies,
		auth:             NewAuthCache(deps.Config.AuthorizeCacheTTL),
		log:              deps.Log.With(zap.String("charge_point_id", chargePointID)),
		state:            StateBooting,
		sender:           sender,
		inbox:            make(chan inboundFrame, deps.Config.InboundBufferDepth),
		outbound:         make(chan *OutboundCall, deps.Config.OutboundQueueDepth),
		onWatchdogExpiry: onWatchdogExpiry,
		closed:           make(chan struct{}),
	}

	s.watchdog = time.AfterFunc(deps.Config.HeartbeatWatchdog(), s.watchdogExpired)

	go s.inboundWorker()
	go s.outboundWorker()

	return s
}

func (s *Session) ChargePointID() string { return s.chargePointID }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// IsOnline reports whether server-initiated calls may be dispatched.
// Faulted chargers are still connected and still answer calls.
func (s *Session) IsOnline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateOnline || s.state == StateFaulted || s.state == StateUnavailable
}

// Adopt atomically swaps in a new transport handle on reconnect.
// Queued outbound calls fail over to the new handle; the auth cache
// and any in-flight waiters are preserved.
func (s *Session) Adopt(sender transport.Sender) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sender = sender
	if s.state == StateDisconnected {
		s.state = StateBooting
	}
	s.watchdog.Reset(s.deps.Config.HeartbeatWatchdog())
}

// HandleDisconnect marks the charger gone. Active charging sessions
// stay active in the store; the charger's StopTransaction after
// reconnect (or the stale sweeper) finalizes them.
func (s *Session) HandleDisconnect(reason string) {
	s.mu.Lock()
	s.state = StateDisconnected
	s.sender = nil
	s.watchdog.Stop()
	s.mu.Unlock()

	s.log.Info("Charge point disconnected", zap.String("reason", reason))
	s.appendEvent(domain.EventDisconnected, reason, nil)
}

// Submit enqueues one inbound frame. When the inbox is full the oldest
// queued frame is dropped and audited: liveness of a misbehaving
// charger wins over completeness.
func (s *Session) Submit(frame *ocpp.Frame, receivedAt time.Time) {
	s.Touch(receivedAt)

	item := inboundFrame{frame: frame, receivedAt: receivedAt}
	for {
		select {
		case s.inbox <- item:
			return
		default:
		}

		select {
		case dropped := <-s.inbox:
			telemetry.InboundDroppedTotal.Inc()
			s.log.Warn("Inbox full, dropping oldest inbound frame",
				zap.String("dropped_action", dropped.frame.Action),
			)
			s.appendEvent(domain.EventInboundDropped, dropped.frame.Action, nil)
		default:
		}
	}
}

// EnqueueOutbound queues one server-initiated CALL. Fails fast with
// ErrChargerBusy beyond the queue cap.
func (s *Session) EnqueueOutbound(call *OutboundCall) error {
	if !s.IsOnline() {
		return domain.ErrChargerOffline
	}
	select {
	case s.outbound <- call:
		return nil
	default:
		return domain.ErrChargerBusy
	}
}

// Close stops the workers. Only used at process shutdown; a session
// that merely lost its connection stays alive.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.watchdog.Stop()
		close(s.closed)
	})
}

// Touch counts one unit of inbound traffic toward liveness: the
// heartbeat watchdog re-arms and the last-seen mark moves. Called for
// every inbound frame, including reply frames that bypass the inbox.
func (s *Session) Touch(seen time.Time) {
	s.mu.Lock()
	s.watchdog.Reset(s.deps.Config.HeartbeatWatchdog())
	s.mu.Unlock()

	s.deps.Liveness.TouchLastSeen(context.Background(), s.chargePointID, seen)
}

func (s *Session) watchdogExpired() {
	s.log.Warn("Heartbeat watchdog expired",
		zap.Duration("window", s.deps.Config.HeartbeatWatchdog()),
	)
	if s.onWatchdogExpiry != nil {
		s.onWatchdogExpiry(s.chargePointID)
	}
}

func (s *Session) inboundWorker() {
	for {
		select {
		case item := <-s.inbox:
			s.processCall(item.frame)
		case <-s.closed:
			return
		}
	}
}

// outboundWorker serializes server-initiated CALLs: at most one in
// flight, the next released only once the previous waiter settled.
func (s *Session) outboundWorker() {
	for {
		select {
		case call := <-s.outbound:
			s.sendOutbound(call)
			select {
			case <-call.Released:
			case <-s.closed:
				return
			}
		case <-s.closed:
			return
		}
	}
}

func (s *Session) sendOutbound(call *OutboundCall) {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		s.log.Warn("Dropping outbound call, no transport handle",
			zap.String("action", call.Action),
			zap.String("message_id", call.MessageID),
		)
		return
	}

	if err := sender.Send(s.chargePointID, call.Data); err != nil {
		s.log.Error("Failed to send outbound call",
			zap.String("action", call.Action),
			zap.String("message_id", call.MessageID),
			zap.Error(err),
		)
		return
	}
	telemetry.OCPPMessagesTotal.WithLabelValues(call.Action, "outbound").Inc()
}

// processCall runs one inbound CALL through dedup, validation, the
// action handler, and the reply path.
func (s *Session) processCall(frame *ocpp.Frame) {
	if frame.Type != ocpp.MessageTypeCall {
		return
	}

	telemetry.OCPPMessagesTotal.WithLabelValues(frame.Action, "inbound").Inc()

	// Redelivery inside the dedup window: resend the cached reply
	// byte-identically, no handler side effects.
	if cached, ok := s.replies.Get(s.chargePointID, frame.MessageID); ok {
		telemetry.DedupHitsTotal.Inc()
		s.log.Debug("Duplicate call, resending cached reply",
			zap.String("message_id", frame.MessageID),
			zap.String("action", frame.Action),
		)
		s.reply(cached)
		return
	}

	if !ocpp.IsChargerAction(frame.Action) {
		s.sendCallError(frame, ocpp.NewCallError(ocpp.ErrNotImplemented, "action not accepted from charge point"))
		return
	}
	if ce := ocpp.ValidateCall(frame.Action, frame.Payload); ce != nil {
		s.sendCallError(frame, ce)
		return
	}

	payload, callErr := s.handleCall(frame.Action, frame.Payload)
	if callErr != nil {
		s.sendCallError(frame, callErr)
		return
	}

	body, err := json.Marshal(payload)
	if err != nil {
		// Encode failure of our own response: audit and stay silent;
		// the charger's retry resynchronizes.
		s.log.Error("Failed to encode response payload",
			zap.String("action", frame.Action),
			zap.Error(err),
		)
		s.appendEvent(domain.EventEncodeFailure, frame.Action, nil)
		return
	}

	data, err := ocpp.Marshal(ocpp.NewCallResult(frame.MessageID, body))
	if err != nil {
		s.log.Error("Failed to encode CALLRESULT", zap.Error(err))
		s.appendEvent(domain.EventEncodeFailure, frame.Action, nil)
		return
	}

	s.reply(data)
	s.replies.Put(s.chargePointID, frame.MessageID, data)
}

func (s *Session) sendCallError(frame *ocpp.Frame, callErr *ocpp.CallError) {
	telemetry.OCPPCallErrorsTotal.WithLabelValues(string(callErr.Code)).Inc()
	s.log.Warn("Rejecting inbound call",
		zap.String("action", frame.Action),
		zap.String("message_id", frame.MessageID),
		zap.String("code", string(callErr.Code)),
		zap.String("description", callErr.Description),
	)

	data, err := ocpp.Marshal(ocpp.NewCallErrorFrame(frame.MessageID, callErr))
	if err != nil {
		s.log.Error("Failed to encode CALLERROR", zap.Error(err))
		return
	}
	s.reply(data)
}

func (s *Session) reply(data []byte) {
	s.mu.Lock()
	sender := s.sender
	s.mu.Unlock()

	if sender == nil {
		return
	}
	if err := sender.Send(s.chargePointID, data); err != nil {
		s.log.Error("Failed to send reply", zap.Error(err))
	}
}

func (s *Session) setState(next State) {
	s.mu.Lock()
	prev := s.state
	s.state = next
	s.mu.Unlock()

	if prev != next {
		s.log.Info("Session state changed",
			zap.String("from", string(prev)),
			zap.String("to", string(next)),
		)
	}
}

func (s *Session) appendEvent(kind domain.EventKind, payload string, evseID *int) {
	event := &domain.DeviceEvent{
		ChargePointID: s.chargePointID,
		EVSEID:        evseID,
		Kind:          kind,
		Payload:       payload,
		Timestamp:     time.Now().UTC(),
	}
	if err := s.deps.Events.Append(context.Background(), event); err != nil {
		s.log.Warn("Failed to append device event", zap.String("kind", string(kind)), zap.Error(err))
		return
	}
	s.deps.Publisher.PublishDeviceEvent(event)
}
