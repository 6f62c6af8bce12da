// Package sqs consumes activity envelopes from an SQS queue.
package sqs

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"go.uber.org/zap"
)

// BatchHandler processes message bodies and returns one error slot per body.
type BatchHandler interface {
	HandleBatch(ctx context.Context, source string, bodies [][]byte) []error
}

// API is the part of *sqs.Client the consumer uses.
type API interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

type Config struct {
	QueueURL          string
	WaitTimeSeconds   int32 // long poll, default 20
	VisibilityTimeout int32 // default 60
}

// Consumer long-polls the queue and deletes messages once handled.
type Consumer struct {
	client   API
	handler  BatchHandler
	queueURL string
	wait     int32
	visible  int32
	logger   *zap.Logger
}

// NewConsumer creates a consumer from a loaded AWS config.
func NewConsumer(awsCfg aws.Config, cfg Config, handler BatchHandler, logger *zap.Logger) *Consumer {
	logger.Info("sqs consumer initialized",
		zap.String("queue_url", cfg.QueueURL),
	)
	return NewConsumerFromClient(sqs.NewFromConfig(awsCfg), cfg, handler, logger)
}

func NewConsumerFromClient(client API, cfg Config, handler BatchHandler, logger *zap.Logger) *Consumer {
	if cfg.WaitTimeSeconds <= 0 {
		cfg.WaitTimeSeconds = 20
	}
	if cfg.VisibilityTimeout <= 0 {
		cfg.VisibilityTimeout = 60
	}
	return &Consumer{
		client:   client,
		handler:  handler,
		queueURL: cfg.QueueURL,
		wait:     cfg.WaitTimeSeconds,
		visible:  cfg.VisibilityTimeout,
		logger:   logger,
	}
}

// Run polls until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		if ctx.Err() != nil {
			c.logger.Info("sqs consumer shutting down")
			return nil
		}

		n, err := c.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("sqs consumer shutting down")
				return nil
			}
			c.logger.Error("sqs poll failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(5 * time.Second):
			}
			continue
		}

		if n > 0 {
			c.logger.Debug("sqs batch processed", zap.Int("messages", n))
		}
	}
}

// Poll receives one batch of up to 10 messages, handles it and deletes the
// messages that were handled. Messages whose handling failed stay on the
// queue and come back after the visibility timeout.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	out, err := c.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(c.queueURL),
		MaxNumberOfMessages: 10,
		WaitTimeSeconds:     c.wait,
		VisibilityTimeout:   c.visible,
	})
	if err != nil {
		return 0, fmt.Errorf("sqs receive failed: %w", err)
	}

	if len(out.Messages) == 0 {
		return 0, nil
	}

	bodies := make([][]byte, len(out.Messages))
	for i, m := range out.Messages {
		bodies[i] = []byte(aws.ToString(m.Body))
	}

	errs := c.handler.HandleBatch(ctx, "sqs", bodies)
	for i, m := range out.Messages {
		if errs[i] != nil {
			c.logger.Warn("leaving sqs message for redelivery",
				zap.String("message_id", aws.ToString(m.MessageId)),
				zap.Error(errs[i]),
			)
			continue
		}
		if err := c.delete(ctx, m); err != nil {
			c.logger.Error("failed to delete sqs message",
				zap.String("message_id", aws.ToString(m.MessageId)),
				zap.Error(err),
			)
		}
	}

	return len(out.Messages), nil
}

func (c *Consumer) delete(ctx context.Context, m types.Message) error {
	_, err := c.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(c.queueURL),
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		return fmt.Errorf("sqs delete failed: %w", err)
	}
	return nil
}
