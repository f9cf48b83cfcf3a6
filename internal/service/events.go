package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/iliyamo/busbooking/internal/model"
	"github.com/iliyamo/busbooking/internal/queue"
)

// EventPublisher sends domain events after a change has been committed.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.Event) error
}

// publish never fails the caller: the change is already durable.
func publish(ctx context.Context, p EventPublisher, logger *zap.Logger, ev queue.Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, ev); err != nil {
		logger.Warn("event publish failed", zap.String("event_type", ev.Type), zap.Error(err))
	}
}

func clientRegistered(c model.Client) queue.Event {
	ev := queue.NewEvent(queue.TypeClientRegistered)
	ev.ClientID = c.ID
	ev.ClientName = c.FullName()
	ev.Email = c.Email
	ev.PIN = c.PIN
	return ev
}

func reservationEvent(typ string, r model.Reservation) queue.Event {
	ev := queue.NewEvent(typ)
	ev.ReservationID = r.ID
	if r.ClientID != nil {
		ev.ClientID = *r.ClientID
	}
	ev.Category = string(r.Category)
	ev.Date = r.Date
	ev.Status = string(r.Status)
	return ev
}
