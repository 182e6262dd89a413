package email

import (
	"context"
	"fmt"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridSender delivers mail through the SendGrid v3 API
type SendGridSender struct {
	client *sendgrid.Client
}

// NewSendGridSender creates a sender. An empty host uses the public API.
func NewSendGridSender(apiKey, host string) *SendGridSender {
	request := sendgrid.GetRequest(apiKey, "/v3/mail/send", host)
	request.Method = "POST"
	return &SendGridSender{client: &sendgrid.Client{Request: request}}
}

// Name returns the provider name
func (s *SendGridSender) Name() string { return "sendgrid" }

// Deliver sends one message
func (s *SendGridSender) Deliver(ctx context.Context, from Address, msg Message) error {
	message := mail.NewSingleEmail(
		mail.NewEmail(from.Name, from.Email),
		msg.Subject,
		mail.NewEmail("", msg.To),
		"",
		msg.HTML,
	)
	if from.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", from.ReplyTo))
	}

	response, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		return err
	}
	if response.StatusCode >= 400 {
		return fmt.Errorf("SendGrid API error: %s (status %d)", response.Body, response.StatusCode)
	}
	return nil
}
