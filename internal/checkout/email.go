package checkout

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/safar/go-storefront/internal/config"
	"gopkg.in/gomail.v2"
)

// SMTPSender delivers receipts over SMTP.
type SMTPSender struct {
	dialer *gomail.Dialer
	from   string
}

func NewSMTPSender(cfg config.SMTPConfig) *SMTPSender {
	return &SMTPSender{
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:   cfg.From,
	}
}

func (s *SMTPSender) Send(_ context.Context, subject, body, recipient string) error {
	m := gomail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", recipient)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send mail to %s: %w", recipient, err)
	}
	return nil
}

// LogSender writes the receipt to the log instead of sending it. Used when
// SMTP is not configured.
type LogSender struct {
	Logger *slog.Logger
}

func (s *LogSender) Send(ctx context.Context, subject, body, recipient string) error {
	s.Logger.InfoContext(ctx, "receipt (smtp disabled)",
		"recipient", recipient, "subject", subject, "body", body)
	return nil
}
