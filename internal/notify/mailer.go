// Package notify sends transactional email to clients.
package notify

import (
	"context"
	"fmt"
	"html"

	"github.com/resend/resend-go/v2"
	"go.uber.org/zap"
)

// Mailer delivers the PIN of a newly registered client.
type Mailer interface {
	SendPIN(ctx context.Context, to, name, pin string) error
}

// ResendMailer sends emails via the Resend API.
type ResendMailer struct {
	client  *resend.Client
	from    string
	baseURL string
	logger  *zap.Logger
}

// NewResendMailer creates a mailer for the given API key and from address.
// baseURL is used to link the client profile page in the message.
func NewResendMailer(apiKey, from, baseURL string, logger *zap.Logger) *ResendMailer {
	return &ResendMailer{
		client:  resend.NewClient(apiKey),
		from:    from,
		baseURL: baseURL,
		logger:  logger,
	}
}

// SendPIN emails the PIN to a client.
func (m *ResendMailer) SendPIN(ctx context.Context, to, name, pin string) error {
	params := &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{to},
		Subject: "Su PIN de reservas",
		Html:    pinBody(name, pin, m.baseURL),
	}
	sent, err := m.client.Emails.SendWithContext(ctx, params)
	if err != nil {
		m.logger.Error("resend_send_failed", zap.Error(err), zap.String("to", to))
		return fmt.Errorf("resend send failed: %w", err)
	}
	m.logger.Info("resend_sent", zap.String("message_id", sent.Id), zap.String("to", to))
	return nil
}

func pinBody(name, pin, baseURL string) string {
	return fmt.Sprintf(`<p>Hola %s,</p>
<p>Su PIN de cliente es <strong>%s</strong>. Úselo para consultar, editar o cancelar sus solicitudes en <a href="%s/mis-solicitudes">%s</a>.</p>`,
		html.EscapeString(name), pin, baseURL, baseURL)
}

// NopMailer discards every message.
type NopMailer struct{}

func (NopMailer) SendPIN(context.Context, string, string, string) error { return nil }
