// Package billing settles pending orders published on the message bus
// once a charging session completes.
package billing

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	"github.com/voltgrid/csms/internal/adapter/queue"
	"github.com/voltgrid/csms/internal/domain"
	"github.com/voltgrid/csms/internal/ports"
)

type Worker struct {
	orders ports.OrderRepository
	log    *zap.Logger
}

func NewWorker(orders ports.OrderRepository, log *zap.Logger) *Worker {
	return &Worker{
		orders: orders,
		log:    log.Named("billing"),
	}
}

// Start subscribes to completed transactions. The subscription lives
// until the queue connection closes.
func (w *Worker) Start(mq queue.MessageQueue) error {
	return mq.Subscribe(queue.SubjectTransactionCompleted, w.Handle)
}

type completedTransaction struct {
	Session *domain.ChargingSession `json:"session"`
	Order   *domain.Order           `json:"order,omitempty"`
}

// Handle settles the order attached to a completed transaction.
// Sessions without an order (no price configured) are skipped.
func (w *Worker) Handle(data []byte) error {
	var msg completedTransaction
	if err := json.Unmarshal(data, &msg); err != nil {
		w.log.Warn("Undecodable completed transaction", zap.Error(err))
		return err
	}
	if msg.Order == nil {
		return nil
	}

	msg.Order.Status = domain.OrderStatusSettled
	if err := w.orders.Save(context.Background(), msg.Order); err != nil {
		w.log.Error("Failed to settle order",
			zap.String("order_id", msg.Order.ID),
			zap.Error(err),
		)
		return err
	}

	w.log.Info("Order settled",
		zap.String("order_id", msg.Order.ID),
		zap.Float64("cost", msg.Order.Cost),
		zap.String("currency", msg.Order.Currency),
	)
	return nil
}
