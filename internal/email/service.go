// Package email delivers transactional mail through a configurable provider.
package email

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/markwell-app/markwell/internal/config"
	"github.com/rs/zerolog/log"
)

var (
	// ErrDeliveryFailed wraps any provider failure
	ErrDeliveryFailed = errors.New("email delivery failed")
	// ErrInvalidMessage is returned for messages that cannot be sent as written
	ErrInvalidMessage = errors.New("invalid email message")
)

// Send results reported to the Recorder
const (
	resultSent    = "sent"
	resultSkipped = "skipped"
	resultFailed  = "failed"
)

// Message is a single outgoing HTML email
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Validate checks the fields a provider needs. An empty recipient is not an
// error here: Service.Send skips such messages.
func (m Message) Validate() error {
	if m.To != "" {
		if _, err := mail.ParseAddress(m.To); err != nil {
			return fmt.Errorf("%w: bad recipient %q", ErrInvalidMessage, m.To)
		}
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidMessage)
	}
	if strings.ContainsAny(m.Subject, "\r\n") {
		return fmt.Errorf("%w: subject contains line breaks", ErrInvalidMessage)
	}
	return nil
}

// Sender is a provider transport
type Sender interface {
	Name() string
	Deliver(ctx context.Context, from Address, msg Message) error
}

// Address identifies the sending mailbox
type Address struct {
	Name    string
	Email   string
	ReplyTo string
}

// String renders the address as a From header value
func (a Address) String() string {
	if a.Name == "" {
		return a.Email
	}
	return (&mail.Address{Name: a.Name, Address: a.Email}).String()
}

// Recorder receives send outcomes, typically the Prometheus metrics
type Recorder interface {
	RecordMailSend(provider, result string)
}

// Service applies the send policy in front of a provider
type Service struct {
	from     Address
	sender   Sender // nil when mail is disabled or unconfigured
	reason   string
	recorder Recorder
}

// NewService creates the service for the configured provider. A disabled or
// unconfigured provider is not an error: Send logs and skips instead.
func NewService(cfg *config.EmailConfig) (*Service, error) {
	from := Address{Name: cfg.FromName, Email: cfg.FromAddress, ReplyTo: cfg.ReplyToAddress}

	if !cfg.Enabled {
		return &Service{from: from, reason: "email is disabled"}, nil
	}
	if !cfg.IsConfigured() {
		log.Warn().Str("provider", cfg.Provider).Msg("Email provider is missing credentials; messages will be skipped")
		return &Service{from: from, reason: "email provider is not configured"}, nil
	}

	sender, err := newSender(cfg)
	if err != nil {
		return nil, err
	}

	log.Info().Str("provider", sender.Name()).Msg("Email service initialized")
	return NewServiceWithSender(from, sender), nil
}

// NewServiceWithSender builds a service around an explicit transport
func NewServiceWithSender(from Address, sender Sender) *Service {
	return &Service{from: from, sender: sender}
}

func newSender(cfg *config.EmailConfig) (Sender, error) {
	switch cfg.Provider {
	case "smtp", "":
		return NewSMTPSender(cfg), nil
	case "sendgrid":
		return NewSendGridSender(cfg.SendGridAPIKey, ""), nil
	case "mailgun":
		return NewMailgunSender(cfg.MailgunDomain, cfg.MailgunAPIKey), nil
	case "ses":
		return NewSESSender(cfg)
	default:
		return nil, fmt.Errorf("unsupported email provider: %s", cfg.Provider)
	}
}

// SetRecorder sets where send outcomes are reported
func (s *Service) SetRecorder(r Recorder) {
	s.recorder = r
}

// Enabled reports whether messages will actually be handed to a provider
func (s *Service) Enabled() bool {
	return s.sender != nil
}

// Provider returns the active provider name, or "none"
func (s *Service) Provider() string {
	if s.sender == nil {
		return "none"
	}
	return s.sender.Name()
}

// Send delivers msg. A message without recipient, or a service without a
// usable provider, is logged and skipped with a nil error. Provider failures
// are returned wrapped in ErrDeliveryFailed.
func (s *Service) Send(ctx context.Context, msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		log.Warn().Str("subject", msg.Subject).Msg("Email has no recipient, skipping")
		s.record(resultSkipped)
		return nil
	}
	if s.sender == nil {
		log.Warn().Str("to", msg.To).Str("reason", s.reason).Msg("Email not sent")
		s.record(resultSkipped)
		return nil
	}
	if err := msg.Validate(); err != nil {
		return err
	}

	if err := s.sender.Deliver(ctx, s.from, msg); err != nil {
		log.Error().
			Err(err).
			Str("provider", s.sender.Name()).
			Str("to", msg.To).
			Str("subject", msg.Subject).
			Msg("Failed to send email")
		s.record(resultFailed)
		return fmt.Errorf("%w: %w", ErrDeliveryFailed, err)
	}

	log.Info().
		Str("provider", s.sender.Name()).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("Email sent")
	s.record(resultSent)
	return nil
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.RecordMailSend(s.Provider(), result)
	}
}
