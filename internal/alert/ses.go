package alert

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"go.uber.org/zap"
)

// SESEmailer is the subset of the SES client used here.
type SESEmailer interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SESAlerter emails alerts to the on-call address.
type SESAlerter struct {
	client SESEmailer
	from   string
	to     string
	logger *zap.Logger
}

func NewSESAlerter(client SESEmailer, from, to string, logger *zap.Logger) *SESAlerter {
	return &SESAlerter{
		client: client,
		from:   from,
		to:     to,
		logger: logger,
	}
}

func NewSESAlerterFromConfig(cfg aws.Config, from, to string, logger *zap.Logger) *SESAlerter {
	return NewSESAlerter(ses.NewFromConfig(cfg), from, to, logger)
}

func (s *SESAlerter) Alert(ctx context.Context, subject, message string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses: []string{s.to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String("[fellowship] " + subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Text: &types.Content{
					Data:    aws.String(message),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	result, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}

	s.logger.Info("alert emailed via SES",
		zap.String("to", s.to),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
