package mail

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
	"go.uber.org/zap"
)

// Mailer sends transactional mail. Delivery mechanics live behind this
// interface; the sign-up flow only depends on Send.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// MailgunMailer sends through the Mailgun API.
type MailgunMailer struct {
	mg     *mailgun.MailgunImpl
	sender string
	logger *zap.Logger
}

var _ Mailer = (*MailgunMailer)(nil)

// NewMailgunMailer configures a Mailgun-backed mailer.
func NewMailgunMailer(domain, apiKey, sender string, logger *zap.Logger) *MailgunMailer {
	return &MailgunMailer{
		mg:     mailgun.NewMailgun(domain, apiKey),
		sender: sender,
		logger: logger,
	}
}

func (m *MailgunMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := m.mg.NewMessage(m.sender, subject, body, to)
	_, id, err := m.mg.Send(ctx, msg)
	if err != nil {
		return fmt.Errorf("send mail: %w", err)
	}
	m.logger.Debug("mail queued", zap.String("to", to), zap.String("message_id", id))
	return nil
}

// NopMailer logs instead of sending. Used in development when no Mailgun
// credentials are configured.
type NopMailer struct {
	logger *zap.Logger
}

var _ Mailer = (*NopMailer)(nil)

func NewNopMailer(logger *zap.Logger) *NopMailer {
	return &NopMailer{logger: logger}
}

func (m *NopMailer) Send(ctx context.Context, to, subject, body string) error {
	m.logger.Info("mail suppressed",
		zap.String("to", to),
		zap.String("subject", subject),
	)
	return nil
}
