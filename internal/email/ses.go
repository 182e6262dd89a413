package email

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/markwell-app/markwell/internal/config"
	"github.com/rs/zerolog/log"
)

// SESSender delivers mail through AWS SES
type SESSender struct {
	client *ses.Client
}

// NewSESSender creates a sender. Without static keys the SDK's default
// credential chain applies (environment, instance role).
func NewSESSender(cfg *config.EmailConfig) (*SESSender, error) {
	if cfg.SESRegion == "" {
		return nil, fmt.Errorf("AWS SES region is required")
	}

	awsConfig := aws.Config{Region: cfg.SESRegion}
	if cfg.SESAccessKey != "" && cfg.SESSecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentialsProvider(cfg.SESAccessKey, cfg.SESSecretKey, "")
	}

	return &SESSender{client: ses.NewFromConfig(awsConfig)}, nil
}

// Name returns the provider name
func (s *SESSender) Name() string { return "ses" }

// Deliver sends one message
func (s *SESSender) Deliver(ctx context.Context, from Address, msg Message) error {
	input := &ses.SendEmailInput{
		Source: aws.String(from.String()),
		Destination: &types.Destination{
			ToAddresses: []string{msg.To},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(msg.Subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(msg.HTML),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}
	if from.ReplyTo != "" {
		input.ReplyToAddresses = []string{from.ReplyTo}
	}

	output, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return err
	}

	log.Debug().Str("message_id", aws.ToString(output.MessageId)).Msg("SES accepted message")
	return nil
}
