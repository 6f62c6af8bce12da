// Package kafka consumes activity envelopes from a kafka topic.
package kafka

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// BatchHandler processes message values and returns one error slot per value.
type BatchHandler interface {
	HandleBatch(ctx context.Context, source string, bodies [][]byte) []error
}

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	Brokers   string // comma separated
	Topic     string
	GroupID   string
	BatchSize int           // default 50
	BatchWait time.Duration // how long to wait for more messages, default 200ms
}

// Consumer reads envelopes in small batches and commits them after handling.
type Consumer struct {
	reader    Reader
	handler   BatchHandler
	batchSize int
	batchWait time.Duration
	logger    *zap.Logger
}

func NewConsumer(cfg Config, handler BatchHandler, logger *zap.Logger) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:        strings.Split(cfg.Brokers, ","),
		GroupID:        cfg.GroupID,
		Topic:          cfg.Topic,
		MinBytes:       1,
		MaxBytes:       10e6,
		CommitInterval: 0,
	})

	logger.Info("kafka consumer initialized",
		zap.String("topic", cfg.Topic),
		zap.String("group_id", cfg.GroupID),
	)

	return NewConsumerFromReader(reader, cfg, handler, logger)
}

func NewConsumerFromReader(reader Reader, cfg Config, handler BatchHandler, logger *zap.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.BatchWait <= 0 {
		cfg.BatchWait = 200 * time.Millisecond
	}
	return &Consumer{
		reader:    reader,
		handler:   handler,
		batchSize: cfg.BatchSize,
		batchWait: cfg.BatchWait,
		logger:    logger,
	}
}

// Run consumes until ctx is cancelled, then closes the reader.
func (c *Consumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("failed to close kafka reader", zap.Error(err))
		}
	}()

	for {
		batch, err := c.fetchBatch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("kafka consumer shutting down")
				return nil
			}
			c.logger.Error("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		c.process(ctx, batch)
	}
}

// fetchBatch blocks for the first message, then collects whatever else
// arrives within batchWait.
func (c *Consumer) fetchBatch(ctx context.Context) ([]kafka.Message, error) {
	first, err := c.reader.FetchMessage(ctx)
	if err != nil {
		return nil, err
	}
	batch := []kafka.Message{first}

	waitCtx, cancel := context.WithTimeout(ctx, c.batchWait)
	defer cancel()

	for len(batch) < c.batchSize {
		m, err := c.reader.FetchMessage(waitCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || waitCtx.Err() != nil {
				break
			}
			return batch, nil
		}
		batch = append(batch, m)
	}
	return batch, nil
}

// process hands the batch over and commits it. Offsets only move forward, so
// messages that failed are logged and committed with the rest.
func (c *Consumer) process(ctx context.Context, batch []kafka.Message) {
	bodies := make([][]byte, len(batch))
	for i, m := range batch {
		bodies[i] = m.Value
	}

	errs := c.handler.HandleBatch(ctx, "kafka", bodies)
	for i, err := range errs {
		if err != nil {
			c.logger.Error("failed to handle kafka message",
				zap.Int("partition", batch[i].Partition),
				zap.Int64("offset", batch[i].Offset),
				zap.Error(err),
			)
		}
	}

	if err := c.reader.CommitMessages(ctx, batch...); err != nil {
		c.logger.Error("kafka commit failed", zap.Int("messages", len(batch)), zap.Error(err))
	}
}
