package queue

import (
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/voltgrid/csms/pkg/config"
)

type rabbitSubscription struct {
	subject string
	handler func(data []byte) error
}

// RabbitMQQueue maps the flat subject namespace onto AMQP: one fanout
// exchange per subject, with a durable consumer queue per subscriber so
// device events and completed transactions survive a broker restart.
type RabbitMQQueue struct {
	conn    *amqp.Connection
	channel *amqp.Channel
	cfg     config.QueueConfig
	log     *zap.Logger

	mu   sync.RWMutex
	subs []rabbitSubscription
}

func NewRabbitMQQueue(cfg config.QueueConfig, log *zap.Logger) (MessageQueue, error) {
	conn, ch, err := dialRabbit(cfg.URL)
	if err != nil {
		return nil, err
	}

	q := &RabbitMQQueue{
		conn:    conn,
		channel: ch,
		cfg:     cfg,
		log:     log,
	}

	go q.monitorConnection()

	log.Info("Successfully connected to RabbitMQ", zap.String("url", cfg.URL))
	return q, nil
}

func dialRabbit(url string) (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("failed to open RabbitMQ channel: %w", err)
	}
	return conn, ch, nil
}

func (q *RabbitMQQueue) Publish(subject string, data []byte) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.channel == nil {
		return fmt.Errorf("rabbitmq: channel not available")
	}

	if err := q.declareExchange(subject); err != nil {
		return err
	}

	err := q.channel.Publish(
		subject, "", false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        data,
			Timestamp:   time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish %s: %w", subject, err)
	}
	return nil
}

func (q *RabbitMQQueue) Subscribe(subject string, handler func(data []byte) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel == nil {
		return fmt.Errorf("rabbitmq: channel not available")
	}

	if err := q.consume(subject, handler); err != nil {
		return err
	}

	// Remembered so the consumer comes back after a reconnect.
	q.subs = append(q.subs, rabbitSubscription{subject: subject, handler: handler})

	q.log.Info("Subscribed to RabbitMQ exchange", zap.String("exchange", subject))
	return nil
}

// consume binds a durable queue named after the subject and starts a
// drain goroutine. Handler errors are logged and the message stays
// consumed; a failed settlement is retried from the store side, not by
// broker redelivery.
func (q *RabbitMQQueue) consume(subject string, handler func(data []byte) error) error {
	if err := q.declareExchange(subject); err != nil {
		return err
	}

	queueName := "csms." + subject
	queue, err := q.channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: declare queue %s: %w", queueName, err)
	}
	if err := q.channel.QueueBind(queue.Name, "", subject, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: bind queue %s: %w", queueName, err)
	}

	msgs, err := q.channel.Consume(queue.Name, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("rabbitmq: consume %s: %w", queueName, err)
	}

	go func() {
		for msg := range msgs {
			if err := handler(msg.Body); err != nil {
				q.log.Error("Error processing RabbitMQ message",
					zap.String("exchange", subject),
					zap.Error(err),
				)
			}
		}
	}()
	return nil
}

func (q *RabbitMQQueue) declareExchange(subject string) error {
	if err := q.channel.ExchangeDeclare(subject, "fanout", true, false, false, false, nil); err != nil {
		return fmt.Errorf("rabbitmq: declare exchange %s: %w", subject, err)
	}
	return nil
}

func (q *RabbitMQQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.channel != nil {
		q.channel.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

func (q *RabbitMQQueue) monitorConnection() {
	wait := q.cfg.ReconnectWait
	if wait <= 0 {
		wait = 5 * time.Second
	}

	for {
		reason, ok := <-q.conn.NotifyClose(make(chan *amqp.Error))
		if !ok {
			return
		}
		q.log.Warn("RabbitMQ connection lost, reconnecting...", zap.String("reason", reason.Reason))

		for {
			time.Sleep(wait)
			conn, ch, err := dialRabbit(q.cfg.URL)
			if err != nil {
				q.log.Error("Failed to reconnect to RabbitMQ", zap.Error(err))
				continue
			}

			q.mu.Lock()
			q.conn = conn
			q.channel = ch
			subs := append([]rabbitSubscription(nil), q.subs...)
			for _, sub := range subs {
				if err := q.consume(sub.subject, sub.handler); err != nil {
					q.log.Error("Failed to restore RabbitMQ subscription",
						zap.String("exchange", sub.subject),
						zap.Error(err),
					)
				}
			}
			q.mu.Unlock()

			q.log.Info("Successfully reconnected to RabbitMQ",
				zap.Int("restored_subscriptions", len(subs)),
			)
			break
		}
	}
}
