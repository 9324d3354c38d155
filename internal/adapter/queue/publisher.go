package queue

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/pkg/config"
)

// Subjects fanned out to downstream consumers (billing, log sinks).
const (
	SubjectDeviceEvents         = "device.events"
	SubjectTransactionCompleted = "transaction.completed"
)

// New builds the configured queue driver.
func New(cfg config.QueueConfig, log *zap.Logger) (MessageQueue, error) {
	switch cfg.Driver {
	case "rabbitmq":
		return NewRabbitMQQueue(cfg, log)
	case "nats", "":
		return NewNATSQueue(cfg, log)
	default:
		return nil, fmt.Errorf("queue: unknown driver %q", cfg.Driver)
	}
}

// EventPublisher mirrors audit events and completed transactions onto
// the message bus. Publish failures are logged, never propagated: the
// store remains the source of truth and the bus is best-effort.
type EventPublisher struct {
	queue MessageQueue
	log   *zap.Logger
}

func NewEventPublisher(queue MessageQueue, log *zap.Logger) *EventPublisher {
	return &EventPublisher{
		queue: queue,
		log:   log,
	}
}

func (p *EventPublisher) PublishDeviceEvent(event *domain.DeviceEvent) {
	if p == nil || p.queue == nil {
		return
	}
	data, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to marshal device event", zap.Error(err))
		return
	}
	if err := p.queue.Publish(SubjectDeviceEvents, data); err != nil {
		p.log.Warn("Failed to publish device event",
			zap.String("charge_point_id", event.ChargePointID),
			zap.Error(err),
		)
	}
}

func (p *EventPublisher) PublishTransactionCompleted(session *domain.ChargingSession, order *domain.Order) {
	if p == nil || p.queue == nil {
		return
	}
	payload := struct {
		Session *domain.ChargingSession `json:"session"`
		Order   *domain.Order           `json:"order,omitempty"`
	}{Session: session, Order: order}

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("Failed to marshal completed transaction", zap.Error(err))
		return
	}
	if err := p.queue.Publish(SubjectTransactionCompleted, data); err != nil {
		p.log.Warn("Failed to publish completed transaction",
			zap.String("charge_point_id", session.ChargePointID),
			zap.Int("transaction_id", session.TransactionID),
			zap.Error(err),
		)
	}
}
