package mailqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cppla/gqlbbs/metrics"
	"github.com/cppla/gqlbbs/services"
	"github.com/cppla/gqlbbs/utils"
)

const publishTimeout = 5 * time.Second

// channel is the part of *amqp.Channel the broker uses.
type channel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
}

// Broker publishes mail to a durable queue and consumes it again in the worker.
type Broker struct {
	conn  *amqp.Connection
	ch    channel
	close func() error
	queue string
}

// Dial connects to RabbitMQ and declares the mail queue.
func Dial(url, queue string) (*Broker, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	q, err := ch.QueueDeclare(
		queue,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare queue %q: %w", queue, err)
	}
	utils.Sugar.Infow("mail queue declared", "queue", q.Name, "messages", q.Messages)

	return &Broker{conn: conn, ch: ch, close: ch.Close, queue: q.Name}, nil
}

// Close releases the channel and the connection.
func (b *Broker) Close() {
	if b.close != nil {
		if err := b.close(); err != nil {
			utils.Sugar.Warnw("close rabbitmq channel failed", "error", err)
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil {
			utils.Sugar.Warnw("close rabbitmq connection failed", "error", err)
		}
	}
}

// Send implements services.Mailer by queueing m for the worker.
func (b *Broker) Send(ctx context.Context, m services.Mail) error {
	body, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("failed to marshal mail: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	err = b.ch.PublishWithContext(publishCtx, "", b.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		metrics.RecordMail("amqp", metrics.OutcomeError)
		return fmt.Errorf("failed to publish mail: %w", err)
	}
	metrics.RecordMail("amqp", metrics.OutcomeSuccess)
	return nil
}

// Consume hands every queued mail to sender until ctx is done or the channel closes.
// Mail that cannot be decoded or delivered is dropped; there is no retry.
func (b *Broker) Consume(ctx context.Context, sender services.Mailer) error {
	msgs, err := b.ch.Consume(
		b.queue,
		"",    // consumer
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register a consumer: %w", err)
	}
	utils.Sugar.Infow("mail consumer started", "queue", b.queue)
	drain(ctx, msgs, sender)
	return nil
}

func drain(ctx context.Context, msgs <-chan amqp.Delivery, sender services.Mailer) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-msgs:
			if !ok {
				utils.Sugar.Info("rabbitmq delivery channel closed, stopping consumer")
				return
			}
			deliver(ctx, d, sender)
		}
	}
}

func deliver(ctx context.Context, d amqp.Delivery, sender services.Mailer) {
	var m services.Mail
	if err := json.Unmarshal(d.Body, &m); err != nil {
		utils.Sugar.Errorw("drop undecodable mail", "error", err)
		if err := d.Nack(false, false); err != nil {
			utils.Sugar.Warnw("nack failed", "error", err)
		}
		return
	}

	if err := sender.Send(ctx, m); err != nil {
		utils.Sugar.Errorw("mail delivery failed", "to", m.To, "error", err)
		if err := d.Nack(false, false); err != nil {
			utils.Sugar.Warnw("nack failed", "error", err)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		utils.Sugar.Warnw("ack failed", "error", err)
	}
}
