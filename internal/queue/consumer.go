package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/notify"
)

// Consumer listens to the events queue and appends one line per event to
// the report log. client.registered events additionally trigger the PIN
// email through Mailer.
type Consumer struct {
	URL        string
	Queue      string
	ReportPath string
	Mailer     notify.Mailer
	Logger     *zap.Logger

	mu sync.Mutex // serialises report writes
}

// Run connects to RabbitMQ, declares the queue (durable), and consumes
// messages until ctx is cancelled. Broker failures are retried with
// exponential backoff; a message that cannot be handled is rejected
// without requeue so the server continues operating.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		conn, err := amqp.Dial(c.URL)
		if err != nil {
			c.Logger.Warn("events-consumer: failed to dial broker", zap.Error(err), zap.Duration("retry_in", backoff))
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		err = c.consumeLoop(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.Logger.Warn("events-consumer: consume loop ended; reconnecting", zap.Error(err))
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.Logger.Warn("events-consumer: set QoS failed", zap.Error(err))
	}
	if _, err := ch.QueueDeclare(c.Queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(c.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := c.HandleMessage(ctx, d.Body); err != nil {
				c.Logger.Error("events-consumer: handle message failed", zap.Error(err))
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// HandleMessage decodes one event, records it and sends the welcome email
// for new clients. A mail failure is logged but does not fail the message.
func (c *Consumer) HandleMessage(ctx context.Context, body []byte) error {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if ev.Type == "" {
		return errors.New("event without type")
	}
	if err := c.appendReport(FormatEvent(ev)); err != nil {
		return err
	}
	if ev.Type == TypeClientRegistered && ev.Email != "" && ev.PIN != "" && c.Mailer != nil {
		if err := c.Mailer.SendPIN(ctx, ev.Email, ev.ClientName, ev.PIN); err != nil {
			c.Logger.Warn("events-consumer: pin email failed", zap.Error(err), zap.Uint64("client_id", ev.ClientID))
		}
	}
	return nil
}

func (c *Consumer) appendReport(line string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := os.MkdirAll(filepath.Dir(c.ReportPath), 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	f, err := os.OpenFile(c.ReportPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

// FormatEvent renders ev as a single human-friendly report line. The PIN
// is never written.
func FormatEvent(ev Event) string {
	switch ev.Type {
	case TypeClientRegistered:
		return fmt.Sprintf("[%s] Client registered | client_id=%d | name=%q\n", ev.OccurredAt, ev.ClientID, ev.ClientName)
	case TypeReservationStatus:
		return fmt.Sprintf("[%s] Reservation status changed | reservation_id=%d | status=%q | actor_id=%d\n",
			ev.OccurredAt, ev.ReservationID, ev.Status, ev.ActorID)
	default:
		return fmt.Sprintf("[%s] %s | reservation_id=%d | client_id=%d | category=%q | date=%q | status=%q\n",
			ev.OccurredAt, ev.Type, ev.ReservationID, ev.ClientID, ev.Category, ev.Date, ev.Status)
	}
}
