package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// AMQPPublisher publishes events to a durable RabbitMQ queue, dialling a
// connection per publish. Errors are logged and returned so callers can
// ignore them without interrupting the request.
type AMQPPublisher struct {
	URL    string
	Queue  string
	Logger *zap.Logger
}

// NewAMQPPublisher returns a publisher for url and queue.
func NewAMQPPublisher(url, queue string, logger *zap.Logger) *AMQPPublisher {
	return &AMQPPublisher{URL: url, Queue: queue, Logger: logger}
}

// Publish sends ev as a persistent JSON message on the default exchange.
func (p *AMQPPublisher) Publish(ctx context.Context, ev Event) error {
	log := p.Logger.With(zap.String("event_type", ev.Type), zap.String("event_id", ev.ID))

	conn, err := amqp.Dial(p.URL)
	if err != nil {
		log.Warn("rabbitmq: dial failed", zap.Error(err))
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		log.Warn("rabbitmq: channel open failed", zap.Error(err))
		return err
	}
	defer func() { _ = ch.Close() }()

	// Ensure the queue exists (idempotent). Durable so messages survive broker restarts.
	if _, err := ch.QueueDeclare(
		p.Queue, // name
		true,    // durable
		false,   // autoDelete
		false,   // exclusive
		false,   // noWait
		nil,     // args
	); err != nil {
		log.Warn("rabbitmq: queue declare failed", zap.Error(err))
		return err
	}

	body, err := json.Marshal(ev)
	if err != nil {
		log.Warn("rabbitmq: marshal event failed", zap.Error(err))
		return err
	}

	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent, // store on disk
		MessageId:    ev.ID,
		Type:         ev.Type,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	}
	if err := ch.PublishWithContext(ctx,
		"",      // default exchange
		p.Queue, // routing key = queue name
		false,   // mandatory
		false,   // immediate
		pub,
	); err != nil {
		log.Warn("rabbitmq: publish failed", zap.Error(err))
		return err
	}
	return nil
}

// NopPublisher drops every event. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

// RecordingPublisher keeps published events in memory.
type RecordingPublisher struct {
	Events []Event
}

func (r *RecordingPublisher) Publish(_ context.Context, ev Event) error {
	r.Events = append(r.Events, ev)
	return nil
}

// Types lists the types of the recorded events in publish order.
func (r *RecordingPublisher) Types() []string {
	out := make([]string, len(r.Events))
	for i, ev := range r.Events {
		out[i] = ev.Type
	}
	return out
}
