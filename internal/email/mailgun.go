package email

import (
	"context"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/rs/zerolog/log"
)

// MailgunSender delivers mail through the Mailgun API
type MailgunSender struct {
	client *mailgun.MailgunImpl
}

// NewMailgunSender creates a sender for domain
func NewMailgunSender(domain, apiKey string) *MailgunSender {
	return &MailgunSender{client: mailgun.NewMailgun(domain, apiKey)}
}

// SetAPIBase points the client at another endpoint (EU region, tests)
func (s *MailgunSender) SetAPIBase(base string) {
	s.client.SetAPIBase(base)
}

// Name returns the provider name
func (s *MailgunSender) Name() string { return "mailgun" }

// Deliver sends one message
func (s *MailgunSender) Deliver(ctx context.Context, from Address, msg Message) error {
	message := s.client.NewMessage(from.String(), msg.Subject, "", msg.To)
	message.SetHtml(msg.HTML)
	if from.ReplyTo != "" {
		message.SetReplyTo(from.ReplyTo)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, id, err := s.client.Send(ctx, message)
	if err != nil {
		return err
	}

	log.Debug().Str("message_id", id).Msg("Mailgun accepted message")
	return nil
}
