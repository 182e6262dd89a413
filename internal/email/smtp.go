package email

import (
	"context"
	"crypto/tls"

	"github.com/markwell-app/markwell/internal/config"
	"gopkg.in/gomail.v2"
)

// SMTPSender delivers mail through an SMTP relay
type SMTPSender struct {
	dialer *gomail.Dialer
}

// NewSMTPSender creates a sender for the configured relay
func NewSMTPSender(cfg *config.EmailConfig) *SMTPSender {
	d := gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword)
	if !cfg.SMTPTLS {
		// Local relays such as MailHog speak plain SMTP
		d.TLSConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec
		d.SSL = false
	} else {
		d.TLSConfig = &tls.Config{ServerName: cfg.SMTPHost, MinVersion: tls.VersionTLS12}
	}
	return &SMTPSender{dialer: d}
}

// Name returns the provider name
func (s *SMTPSender) Name() string { return "smtp" }

// Deliver sends one message. gomail has no context support, so cancellation
// is only honoured before dialing.
func (s *SMTPSender) Deliver(ctx context.Context, from Address, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.dialer.DialAndSend(buildMessage(from, msg))
}

func buildMessage(from Address, msg Message) *gomail.Message {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", from.Email, from.Name)
	m.SetHeader("To", msg.To)
	if from.ReplyTo != "" {
		m.SetHeader("Reply-To", from.ReplyTo)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTML)
	return m
}
