// Package mqtt carries OCPP 1.6J over an MQTT broker for chargers that
// cannot hold a WebSocket open. Each charger publishes on
// {type_code}/{serial}/user/up and subscribes to
// {type_code}/{serial}/user/down; a connection is synthesized from
// traffic because the broker hides the TCP session from us.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ocpp"
	"github.com/voltgrid/csms/internal/transport"
	"github.com/voltgrid/csms/pkg/config"
)

const (
	upSuffix   = "/user/up"
	downSuffix = "/user/down"
)

// envelope is the MQTT body format. A CALL carries its action; replies
// leave it empty and are matched by messageId alone.
type envelope struct {
	Action    string          `json:"action,omitempty"`
	MessageID string          `json:"messageId"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	ErrorCode string          `json:"errorCode,omitempty"`
	ErrorDesc string          `json:"errorDescription,omitempty"`
}

// Transport bridges the broker to the router. Implements
// transport.Transport.
type Transport struct {
	cfg     config.MQTTConfig
	handler transport.Handler
	log     *zap.Logger

	client   paho.Client
	presence *presenceTracker

	// typeCodes maps serial to the type code learned from the inbound
	// topic, needed to address the charger's down topic.
	mu        sync.RWMutex
	typeCodes map[string]string

	failures map[string]*transport.DecodeFailureTracker
}

func NewTransport(cfg config.MQTTConfig, offlineTimeout time.Duration, handler transport.Handler, log *zap.Logger) *Transport {
	t := &Transport{
		cfg:       cfg,
		handler:   handler,
		log:       log,
		typeCodes: make(map[string]string),
		failures:  make(map[string]*transport.DecodeFailureTracker),
	}
	t.presence = newPresenceTracker(offlineTimeout, t.dropCharger, log)
	return t
}

// Start connects to the broker and subscribes to every charger's up
// topic.
func (t *Transport) Start(ctx context.Context) error {
	opts := paho.NewClientOptions().
		AddBroker(t.cfg.BrokerURL).
		SetClientID(t.cfg.ClientID).
		SetUsername(t.cfg.Username).
		SetPassword(t.cfg.Password).
		SetConnectTimeout(t.cfg.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(true)

	opts.OnConnectionLost = func(_ paho.Client, err error) {
		t.log.Warn("MQTT broker connection lost", zap.Error(err))
	}
	opts.OnConnect = func(c paho.Client) {
		if token := c.Subscribe("+/+"+upSuffix, t.cfg.QoS, t.onMessage); token.Wait() && token.Error() != nil {
			t.log.Error("Failed to subscribe to charger up topics", zap.Error(token.Error()))
		}
	}

	t.client = paho.NewClient(opts)
	if token := t.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", t.cfg.BrokerURL, token.Error())
	}

	t.log.Info("Successfully connected to MQTT broker", zap.String("broker", t.cfg.BrokerURL))
	t.presence.start()
	return nil
}

func (t *Transport) Close() error {
	t.presence.stop()
	if t.client != nil {
		t.client.Disconnect(250)
	}
	return nil
}

// Send implements transport.Sender: the OCPP tuple is re-enveloped and
// published on the charger's down topic.
func (t *Transport) Send(chargePointID string, data []byte) error {
	t.mu.RLock()
	typeCode, ok := t.typeCodes[chargePointID]
	t.mu.RUnlock()
	if !ok {
		return domain.ErrChargerDisconnected
	}

	frame, err := ocpp.Unmarshal(data)
	if err != nil {
		return fmt.Errorf("cannot envelope frame: %w", err)
	}

	env := envelope{MessageID: frame.MessageID, Payload: frame.Payload}
	switch frame.Type {
	case ocpp.MessageTypeCall:
		env.Action = frame.Action
	case ocpp.MessageTypeCallError:
		env.ErrorCode = string(frame.ErrorCode)
		env.ErrorDesc = frame.ErrorDescription
	}

	body, err := json.Marshal(env)
	if err != nil {
		return err
	}

	topic := typeCode + "/" + chargePointID + downSuffix
	token := t.client.Publish(topic, t.cfg.QoS, false, body)
	token.Wait()
	return token.Error()
}

// onMessage handles one publication on a charger's up topic.
func (t *Transport) onMessage(_ paho.Client, msg paho.Message) {
	typeCode, serial, ok := parseUpTopic(msg.Topic())
	if !ok {
		t.log.Warn("Ignoring message on malformed topic", zap.String("topic", msg.Topic()))
		return
	}

	chargePointID := domain.SanitizeChargePointID(serial)
	if chargePointID == "" {
		return
	}

	t.mu.Lock()
	t.typeCodes[chargePointID] = typeCode
	tracker, ok := t.failures[chargePointID]
	if !ok {
		tracker = &transport.DecodeFailureTracker{}
		t.failures[chargePointID] = tracker
	}
	t.mu.Unlock()

	// First traffic from a silent charger synthesizes the connection.
	if t.presence.touch(chargePointID) {
		t.handler.OnConnected(t, chargePointID, "mqtt")
	}

	data, err := t.frameFromEnvelope(msg.Payload())
	if err != nil {
		t.log.Warn("Failed to decode MQTT envelope",
			zap.String("charge_point_id", chargePointID),
			zap.Error(err),
		)
		if tracker.Fail(time.Now()) {
			t.dropCharger(chargePointID, "too many undecodable frames")
		}
		return
	}

	if err := t.handler.OnInbound(chargePointID, data, time.Now()); err != nil {
		if tracker.Fail(time.Now()) {
			t.dropCharger(chargePointID, "too many undecodable frames")
		}
		return
	}
	tracker.Reset()
}

// frameFromEnvelope converts the MQTT body back into an OCPP tuple.
func (t *Transport) frameFromEnvelope(body []byte) ([]byte, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("envelope is not JSON: %w", err)
	}
	if env.MessageID == "" {
		return nil, fmt.Errorf("envelope has no messageId")
	}

	payload := env.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	var frame *ocpp.Frame
	switch {
	case env.ErrorCode != "":
		frame = ocpp.NewCallErrorFrame(env.MessageID, &ocpp.CallError{
			Code:        ocpp.ErrorCode(env.ErrorCode),
			Description: env.ErrorDesc,
		})
	case env.Action != "":
		frame = ocpp.NewCall(env.MessageID, env.Action, payload)
	default:
		frame = ocpp.NewCallResult(env.MessageID, payload)
	}
	return ocpp.Marshal(frame)
}

// dropCharger synthesizes a disconnect: silence past the offline
// timeout or persistent garbage.
func (t *Transport) dropCharger(chargePointID, reason string) {
	t.presence.forget(chargePointID)

	t.mu.Lock()
	delete(t.failures, chargePointID)
	t.mu.Unlock()

	t.handler.OnDisconnected(chargePointID, reason)
}

// parseUpTopic splits {type_code}/{serial}/user/up.
func parseUpTopic(topic string) (typeCode, serial string, ok bool) {
	if !strings.HasSuffix(topic, upSuffix) {
		return "", "", false
	}
	parts := strings.Split(strings.TrimSuffix(topic, upSuffix), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
