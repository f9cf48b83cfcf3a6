// Package queue defines message payloads exchanged over the message broker,
// the publisher that sends them and the consumer that records them.
package queue

import (
	"time"

	"github.com/google/uuid"
)

// Event types published on the events queue.
const (
	TypeClientRegistered      = "client.registered"
	TypeReservationSubmitted  = "reservation.submitted"
	TypeReservationUpdated    = "reservation.updated"
	TypeReservationCancelled  = "reservation.cancelled"
	TypeReservationStatus     = "reservation.status_changed"
)

// Event is published after a client or reservation change has been
// committed. It carries enough information for downstream consumers to log
// or notify without querying the primary database. PIN is only set on
// client.registered events, which feed the welcome email.
type Event struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	OccurredAt    string `json:"occurred_at"`
	ReservationID uint64 `json:"reservation_id,omitempty"`
	ClientID      uint64 `json:"client_id,omitempty"`
	ClientName    string `json:"client_name,omitempty"`
	Email         string `json:"email,omitempty"`
	PIN           string `json:"pin,omitempty"`
	Category      string `json:"service_category,omitempty"`
	Date          string `json:"date,omitempty"`
	Status        string `json:"status,omitempty"`
	ActorID       uint64 `json:"actor_id,omitempty"`
}

// NewEvent stamps a fresh event of the given type.
func NewEvent(typ string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
}
