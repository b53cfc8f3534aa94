package email

import (
	"context"
	"fmt"

	sendgrid "github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/tablepoints/tablepoints-backend/pkg/config"
)

// Mailer sends transactional email. Delivery failures are the caller's to log;
// nothing here blocks or rolls back a ledger write.
type Mailer interface {
	SendWelcome(ctx context.Context, toEmail, toName, memberCode string) error
}

// SendgridMailer delivers mail through the Sendgrid API.
type SendgridMailer struct {
	cfg    config.SendgridConfig
	client *sendgrid.Client
}

// NewSendgridMailer builds a mailer, or returns nil when no API key is set so
// callers can treat email as disabled.
func NewSendgridMailer(cfg config.SendgridConfig) *SendgridMailer {
	if cfg.APIKey == "" {
		return nil
	}
	return &SendgridMailer{
		cfg:    cfg,
		client: sendgrid.NewSendClient(cfg.APIKey),
	}
}

func (m *SendgridMailer) SendWelcome(ctx context.Context, toEmail, toName, memberCode string) error {
	if m == nil || m.client == nil {
		return fmt.Errorf("sendgrid mailer not configured")
	}

	from := mail.NewEmail(m.cfg.FromName, m.cfg.DefaultFrom)
	to := mail.NewEmail(toName, toEmail)
	subject := "Welcome to the loyalty program"
	plain := fmt.Sprintf("Welcome! Your member code is %s. Show it at the counter to earn points.", memberCode)
	html := fmt.Sprintf("<p>Welcome! Your member code is <strong>%s</strong>. Show it at the counter to earn points.</p>", memberCode)
	message := mail.NewSingleEmail(from, subject, to, plain, html)

	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("sending welcome email: %w", err)
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
