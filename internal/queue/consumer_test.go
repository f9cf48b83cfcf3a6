package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeMailer struct {
	to, name, pin string
	calls         int
	err           error
}

func (m *fakeMailer) SendPIN(_ context.Context, to, name, pin string) error {
	m.calls++
	m.to, m.name, m.pin = to, name, pin
	return m.err
}

func newConsumer(t *testing.T, m *fakeMailer) *Consumer {
	return &Consumer{
		ReportPath: filepath.Join(t.TempDir(), "logs", "reservations.log"),
		Mailer:     m,
		Logger:     zap.NewNop(),
	}
}

func encode(t *testing.T, ev Event) []byte {
	b, err := json.Marshal(ev)
	require.NoError(t, err)
	return b
}

func TestHandleMessageAppendsReportLines(t *testing.T) {
	m := &fakeMailer{}
	c := newConsumer(t, m)

	sub := NewEvent(TypeReservationSubmitted)
	sub.ReservationID, sub.ClientID, sub.Category, sub.Date, sub.Status = 7, 3, "Special Services", "Pending", "Pendiente"
	require.NoError(t, c.HandleMessage(context.Background(), encode(t, sub)))

	st := NewEvent(TypeReservationStatus)
	st.ReservationID, st.Status, st.ActorID = 7, "Aprobada", 1
	require.NoError(t, c.HandleMessage(context.Background(), encode(t, st)))

	data, err := os.ReadFile(c.ReportPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "reservation.submitted | reservation_id=7 | client_id=3")
	assert.Contains(t, lines[1], `status="Aprobada"`)
	assert.Zero(t, m.calls)
}

func TestHandleMessageMailsPINButNeverLogsIt(t *testing.T) {
	m := &fakeMailer{err: errors.New("smtp down")}
	c := newConsumer(t, m)

	ev := NewEvent(TypeClientRegistered)
	ev.ClientID, ev.ClientName, ev.Email, ev.PIN = 3, "Ana Mora", "ana@x.com", "AB12CD34"
	require.NoError(t, c.HandleMessage(context.Background(), encode(t, ev)))

	assert.Equal(t, 1, m.calls)
	assert.Equal(t, "AB12CD34", m.pin)
	assert.Equal(t, "ana@x.com", m.to)

	data, err := os.ReadFile(c.ReportPath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "AB12CD34")
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	c := newConsumer(t, &fakeMailer{})
	assert.Error(t, c.HandleMessage(context.Background(), []byte("{")))
	assert.Error(t, c.HandleMessage(context.Background(), []byte(`{"id":"x"}`)))
}

func TestRecordingPublisher(t *testing.T) {
	var p RecordingPublisher
	require.NoError(t, p.Publish(context.Background(), NewEvent(TypeReservationCancelled)))
	assert.Equal(t, []string{TypeReservationCancelled}, p.Types())
	assert.NotEmpty(t, p.Events[0].ID)
}
