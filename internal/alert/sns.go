package alert

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"go.uber.org/zap"
)

// SNSPublisher is the subset of the SNS client used here.
type SNSPublisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSAlerter publishes alerts to an operator topic.
type SNSAlerter struct {
	client   SNSPublisher
	topicARN string
	logger   *zap.Logger
}

func NewSNSAlerter(client SNSPublisher, topicARN string, logger *zap.Logger) *SNSAlerter {
	return &SNSAlerter{
		client:   client,
		topicARN: topicARN,
		logger:   logger,
	}
}

// NewSNSAlerterFromConfig builds the SNS client from a loaded AWS config.
func NewSNSAlerterFromConfig(cfg aws.Config, topicARN string, logger *zap.Logger) *SNSAlerter {
	return NewSNSAlerter(sns.NewFromConfig(cfg), topicARN, logger)
}

func (s *SNSAlerter) Alert(ctx context.Context, subject, message string) error {
	// SNS caps subjects at 100 characters
	if len(subject) > 100 {
		subject = subject[:100]
	}

	result, err := s.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(s.topicARN),
		Subject:  aws.String(subject),
		Message:  aws.String(message),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"source": {
				DataType:    aws.String("String"),
				StringValue: aws.String("fellowship-push"),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("publish alert to SNS: %w", err)
	}

	s.logger.Info("alert published to SNS",
		zap.String("topic_arn", s.topicARN),
		zap.String("message_id", aws.ToString(result.MessageId)),
	)

	return nil
}
